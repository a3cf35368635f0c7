package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message сообщение в переписке по отклику
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ApplyID   string    `json:"apply_id" gorm:"size:36;index;not null"`
	SenderID  string    `json:"sender_id" gorm:"size:36;index;not null"`
	Content   string    `json:"content" gorm:"size:2000;not null"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Before сравнивает сообщения по времени создания, при равенстве по ID
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
