// Package repotest поднимает изолированную in-memory SQLite базу для тестов
package repotest

import (
	"fmt"
	"testing"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/repository"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: repository.Now,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// одна коннекция: sqlite не любит параллельные писатели
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// Fixture отклик с кандидатом и компанией
type Fixture struct {
	ApplyID     string
	CandidateID string
	CompanyID   string
	Application model.Application
}

func SeedApplication(t testing.TB, db *gorm.DB, status string) Fixture {
	t.Helper()

	f := Fixture{
		ApplyID:     uuid.NewString(),
		CandidateID: uuid.NewString(),
		CompanyID:   uuid.NewString(),
	}
	f.Application = model.Application{
		ID:            f.ApplyID,
		CandidateID:   f.CandidateID,
		JobID:         uuid.NewString(),
		CurrentStatus: status,
		Job: model.Job{
			CompanyID: f.CompanyID,
			Title:     "Agent de sécurité",
		},
		Candidate: model.Profile{
			ID:        f.CandidateID,
			Firstname: "Karim",
			Lastname:  "Benali",
		},
	}
	f.Application.Job.ID = f.Application.JobID

	if err := db.Create(&f.Application).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}
	return f
}
