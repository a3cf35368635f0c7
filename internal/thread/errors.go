package thread

import (
	"errors"
	"fmt"
)

var (
	ErrIncompleteIdentity = errors.New("thread id, user id and token are required")
	ErrClosed             = errors.New("thread is closed")
	ErrAlreadyStarted     = errors.New("thread already started")
	ErrMissingDependency  = errors.New("thread dependency is missing")

	// ErrRejected отправка отклонена до обращения к базе. Вызывающий код
	// не показывает такие ошибки пользователю: контролы уже заблокированы.
	ErrRejected = errors.New("send rejected")

	ErrEmptyMessage   = fmt.Errorf("%w: empty message", ErrRejected)
	ErrTooLong        = fmt.Errorf("%w: message too long", ErrRejected)
	ErrSendInFlight   = fmt.Errorf("%w: send already in progress", ErrRejected)
	ErrReadOnly       = fmt.Errorf("%w: thread is read-only", ErrRejected)
	ErrColdOpen       = fmt.Errorf("%w: candidate cannot start the conversation", ErrRejected)
	ErrConsecutiveCap = fmt.Errorf("%w: too many messages without a reply", ErrRejected)
)

// rejectReason метка для метрики отклоненных отправок
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "empty"
	case errors.Is(err, ErrTooLong):
		return "too_long"
	case errors.Is(err, ErrSendInFlight):
		return "in_flight"
	case errors.Is(err, ErrReadOnly):
		return "read_only"
	case errors.Is(err, ErrColdOpen):
		return "cold_open"
	case errors.Is(err, ErrConsecutiveCap):
		return "consecutive_cap"
	default:
		return "other"
	}
}
