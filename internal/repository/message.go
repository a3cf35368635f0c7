package repository

import (
	"context"
	"log"

	"tush00nka/secujob_messaging/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChangePublisher получает события ленты изменений после записи в таблицу messages
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev model.ChangeEvent) error
}

type MessageRepository interface {
	ListByThread(ctx context.Context, applyID string) ([]model.Message, error)
	Create(ctx context.Context, msg *model.Message) error
	MarkRead(ctx context.Context, ids []string) ([]model.Message, error)
	CountUnreadFrom(ctx context.Context, applyID, senderID string) (int64, error)
	CountUnreadFor(ctx context.Context, applyID, recipientID string) (int64, error)
}

type messageRepository struct {
	db  *gorm.DB
	pub ChangePublisher
}

// NewMessageRepository pub может быть nil, тогда лента изменений не ведется
func NewMessageRepository(db *gorm.DB, pub ChangePublisher) MessageRepository {
	return &messageRepository{db: db, pub: pub}
}

// ListByThread возвращает сообщения переписки от старых к новым
func (r *messageRepository) ListByThread(ctx context.Context, applyID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("apply_id = ?", applyID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = Now()
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}

	r.publish(ctx, model.ChangeInsert, *msg)
	return nil
}

// MarkRead отмечает прочитанными только еще непрочитанные сообщения и
// возвращает именно их, поэтому повторный вызов ничего не меняет
func (r *messageRepository) MarkRead(ctx context.Context, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// UPDATE ... RETURNING: параллельный вызов не получит уже переведенные строки
	var updated []model.Message
	err := r.db.WithContext(ctx).Model(&updated).
		Clauses(clause.Returning{}).
		Where("id IN ? AND is_read = ?", ids, false).
		UpdateColumn("is_read", true).Error
	if err != nil {
		return nil, err
	}

	for _, msg := range updated {
		r.publish(ctx, model.ChangeUpdate, msg)
	}

	return updated, nil
}

// CountUnreadFrom количество непрочитанных сообщений отправителя в переписке
func (r *messageRepository) CountUnreadFrom(ctx context.Context, applyID, senderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("apply_id = ? AND sender_id = ? AND is_read = ?", applyID, senderID, false).
		Count(&count).Error
	return count, err
}

// CountUnreadFor количество непрочитанных сообщений, адресованных получателю
func (r *messageRepository) CountUnreadFor(ctx context.Context, applyID, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("apply_id = ? AND sender_id <> ? AND is_read = ?", applyID, recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) publish(ctx context.Context, kind model.ChangeKind, msg model.Message) {
	if r.pub == nil {
		return
	}

	ev := model.ChangeEvent{Kind: kind, ApplyID: msg.ApplyID, Message: msg}
	if err := r.pub.PublishChange(ctx, ev); err != nil {
		log.Printf("[repository] failed to publish %s for message %s: %v", kind, msg.ID, err)
	}
}
