package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCandidate Role = "candidat"
	RolePro       Role = "pro"
)

const (
	StatusRejected = "rejected"

	defaultJobTitle      = "Offre d'emploi"
	defaultCandidateName = "Candidat"
)

// Application отклик кандидата на вакансию; его ID служит ключом переписки
type Application struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	CandidateID   string    `json:"candidate_id" gorm:"size:36;index"`
	JobID         string    `json:"job_id" gorm:"size:36;index"`
	Job           Job       `json:"job" gorm:"foreignKey:JobID"`
	Candidate     Profile   `json:"candidate" gorm:"foreignKey:CandidateID"`
	CurrentStatus string    `json:"current_status" gorm:"size:30"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Job struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	CompanyID string `json:"company_id" gorm:"size:36;index"`
	Title     string `json:"title"`
}

type Profile struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// IsParticipant проверяет, участвует ли пользователь в переписке
func (a *Application) IsParticipant(userID string) bool {
	return userID != "" && (userID == a.CandidateID || userID == a.Job.CompanyID)
}

// RoleOf возвращает роль участника
func (a *Application) RoleOf(userID string) Role {
	if userID == a.CandidateID {
		return RoleCandidate
	}
	return RolePro
}

// OtherParty возвращает ID собеседника
func (a *Application) OtherParty(userID string) string {
	if userID == a.CandidateID {
		return a.Job.CompanyID
	}
	return a.CandidateID
}

func (a *Application) JobTitle() string {
	if t := strings.TrimSpace(a.Job.Title); t != "" {
		return t
	}
	return defaultJobTitle
}

func (a *Application) CandidateName() string {
	name := strings.TrimSpace(a.Candidate.Firstname + " " + a.Candidate.Lastname)
	if name == "" {
		return defaultCandidateName
	}
	return name
}

// NotificationTitle заголовок уведомления зависит от того, кто его получает:
// кандидату - название вакансии, компании - "имя кандидата - вакансия"
func (a *Application) NotificationTitle(recipientID string) string {
	if recipientID == a.CandidateID {
		return a.JobTitle()
	}
	return a.CandidateName() + " - " + a.JobTitle()
}

func (a *Application) IsReadOnly() bool {
	return a.CurrentStatus == StatusRejected
}
