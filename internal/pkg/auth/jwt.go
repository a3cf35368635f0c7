package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const defaultTokenTTL = 24 * time.Hour

var ErrMissingToken = errors.New("missing auth token")

type Claims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

// Manager выпускает и проверяет токены, подписанные HS256
type Manager struct {
	key []byte
	ttl time.Duration
}

func NewManager(key string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Manager{key: []byte(key), ttl: ttl}
}

func (m *Manager) GenerateToken(userID string) (string, error) {
	expirationTime := time.Now().Add(m.ttl)
	claims := &Claims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(m.key)
}

func (m *Manager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.key, nil
	})

	if err != nil {
		return nil, err
	}

	if !tkn.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}

// TokenFromRequest достает токен из "Authorization: Bearer", заголовка Bearer
// или параметра token (браузерный WebSocket не умеет ставить заголовки)
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
			return strings.TrimSpace(token), nil
		}
	}

	if token := strings.TrimSpace(r.Header.Get("Bearer")); token != "" {
		return token, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrMissingToken
}
