package repository

import (
	"context"
	"errors"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PresenceRepository interface {
	Touch(ctx context.Context, userID, applyID string, at time.Time) error
	LastSeen(ctx context.Context, userID, applyID string) (time.Time, bool, error)
}

type presenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

// Touch перезаписывает heartbeat пользователя в переписке
func (r *presenceRepository) Touch(ctx context.Context, userID, applyID string, at time.Time) error {
	p := model.Presence{UserID: userID, ApplyID: applyID, LastSeen: at}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "apply_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
	}).Create(&p).Error
}

func (r *presenceRepository) LastSeen(ctx context.Context, userID, applyID string) (time.Time, bool, error) {
	var p model.Presence
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND apply_id = ?", userID, applyID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return p.LastSeen, true, nil
}
