package repository

import (
	"context"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	"gorm.io/gorm"
)

type ApplicationRepository interface {
	GetWithParties(ctx context.Context, applyID string) (*model.Application, error)
	Touch(ctx context.Context, applyID string, at time.Time) error
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// GetWithParties загружает отклик вместе с вакансией и профилем кандидата
func (r *applicationRepository) GetWithParties(ctx context.Context, applyID string) (*model.Application, error) {
	var app model.Application
	err := r.db.WithContext(ctx).
		Preload("Job").
		Preload("Candidate").
		Where("id = ?", applyID).
		First(&app).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

// Touch обновляет updated_at отклика
func (r *applicationRepository) Touch(ctx context.Context, applyID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Application{}).
		Where("id = ?", applyID).
		UpdateColumn("updated_at", at).Error
}
