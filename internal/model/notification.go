package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationTypeMessage = "message"
	EntityTypeMessage       = "message"
)

// Notification сгруппированное уведомление: одна строка на (получатель, переписка)
type Notification struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	RecipientID string     `json:"recipient_id" gorm:"size:36;index;not null"`
	ActorID     string     `json:"actor_id" gorm:"size:36"`
	Type        string     `json:"type" gorm:"size:30;index"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	EntityType  string     `json:"entity_type" gorm:"size:30;index"`
	EntityID    string     `json:"entity_id" gorm:"size:36;index"`
	IsRead      bool       `json:"is_read" gorm:"not null;default:false;index"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
