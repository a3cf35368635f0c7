package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Константы
const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 64 * 1024 // 64KB
	maxSendChannelSize = 256

	defaultRatePerSecond = 10
	defaultRateBurst     = 20
)

// Типы событий соединения. События самой переписки (history, message,
// message_updated, typing) передаются под именами thread.EventType.
const (
	EventTypeError       = "error"
	EventTypeMessageSent = "message_sent"
	EventTypeState       = "state"

	// входящие
	EventTypeTyping = "typing"
	EventTypeSend   = "send"
	EventTypeLoad   = "load"
)

// OutEvent исходящее событие
type OutEvent struct {
	Type      string    `json:"type"`
	Message   any       `json:"message,omitempty"`
	Messages  any       `json:"messages,omitempty"`
	Typing    any       `json:"typing,omitempty"`
	State     any       `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
	ApplyID   string    `json:"apply_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InEvent входящее событие: typing (Text - текущий текст поля), send, load
type InEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Client представляет WebSocket соединение
type Client struct {
	UserID    string
	ApplyID   string
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	send      chan []byte
	mu        sync.RWMutex
	isClosed  bool
	rateLimit *rate.Limiter
}

// NewClient создает нового клиента
func NewClient(ctx context.Context, conn *websocket.Conn, userID, applyID string) *Client {
	ctx, cancel := context.WithCancel(ctx)

	return &Client{
		UserID:    userID,
		ApplyID:   applyID,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		send:      make(chan []byte, maxSendChannelSize),
		rateLimit: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultRateBurst),
	}
}

// Context закрывается вместе с клиентом
func (c *Client) Context() context.Context {
	return c.ctx
}

// SetRateLimit устанавливает лимит на частоту входящих событий
func (c *Client) SetRateLimit(limitPerSecond, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateLimit = rate.NewLimiter(rate.Limit(limitPerSecond), burst)
}

// CheckRateLimit проверяет лимит частоты
func (c *Client) CheckRateLimit() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rateLimit.Allow()
}

// ReadPump читает события клиента до закрытия соединения
func (c *Client) ReadPump(handleIncoming func(*Client, InEvent)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev InEvent
			if err := c.conn.ReadJSON(&ev); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure) {
					log.Printf("client read error: %v", err)
				}
				return
			}

			if ev.Timestamp == 0 {
				ev.Timestamp = time.Now().UnixMilli()
			}

			if !c.CheckRateLimit() {
				c.SendJSON(OutEvent{
					Type:      EventTypeError,
					Error:     "rate limit exceeded",
					Timestamp: time.Now(),
				})
				continue
			}

			handleIncoming(c, ev)
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// Канал закрыт
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return nil
			}

			// одно событие - один фрейм, клиент парсит каждый как JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return err
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// SendJSON отправляет JSON сообщение
func (c *Client) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("client marshal error: %v", err)
		return false
	}

	return c.SendRaw(data)
}

// SendRaw отправляет сырые данные
func (c *Client) SendRaw(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isClosed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		// Перегруз - пропускаем сообщение
		return false
	}
}

// Close закрывает соединение
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return
	}

	c.isClosed = true
	c.cancel()
	close(c.send)
	c.conn.Close()
}

// IsClosed проверяет, закрыто ли соединение
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isClosed
}
