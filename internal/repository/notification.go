package repository

import (
	"context"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	"gorm.io/gorm"
)

type NotificationRepository interface {
	ReplaceForThread(ctx context.Context, n *model.Notification) error
	MarkThreadRead(ctx context.Context, recipientID, applyID string, at time.Time) (int64, error)
	ListForRecipient(ctx context.Context, recipientID string) ([]model.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// ReplaceForThread удаляет все уведомления о сообщениях для пары
// (получатель, переписка) и создает одно новое в той же транзакции
func (r *notificationRepository) ReplaceForThread(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("recipient_id = ? AND entity_type = ? AND entity_id = ?",
			n.RecipientID, n.EntityType, n.EntityID).
			Delete(&model.Notification{}).Error
		if err != nil {
			return err
		}

		return tx.Create(n).Error
	})
}

// MarkThreadRead отмечает прочитанными уведомления о сообщениях переписки
func (r *notificationRepository) MarkThreadRead(ctx context.Context, recipientID, applyID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND entity_type = ? AND entity_id = ? AND is_read = ?",
			recipientID, model.EntityTypeMessage, applyID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, recipientID string) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}
