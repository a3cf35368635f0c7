package model

import "time"

// Presence heartbeat пользователя, открывшего переписку
type Presence struct {
	UserID   string    `json:"user_id" gorm:"primaryKey;size:36"`
	ApplyID  string    `json:"apply_id" gorm:"primaryKey;size:36"`
	LastSeen time.Time `json:"last_seen" gorm:"not null"`
}

func (Presence) TableName() string {
	return "user_presence"
}

// TypingPayload то, что клиент публикует в presence-канал переписки
type TypingPayload struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// PresenceState агрегированное состояние канала: connection id -> последний payload
type PresenceState map[string]TypingPayload

// AnyoneTypingExcept проверяет, печатает ли кто-то, кроме userID
func (s PresenceState) AnyoneTypingExcept(userID string) bool {
	for _, p := range s {
		if p.Typing && p.UserID != userID {
			return true
		}
	}
	return false
}
