package service

import (
	"context"
	"errors"
	"log"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/repository"
	"tush00nka/secujob_messaging/internal/thread"

	"github.com/jonboulle/clockwork"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrNotParticipant = errors.New("user is not a participant of the thread")
)

// ThreadService открывает переписки по откликам и отвечает на простые запросы о них
type ThreadService interface {
	NewThread(ctx context.Context, userID, token, applyID string) (*thread.Thread, error)
	Messages(ctx context.Context, userID, applyID string) ([]model.Message, error)
	UnreadCount(ctx context.Context, userID, applyID string) (int64, error)
	PeerOnline(ctx context.Context, userID, applyID string) (bool, error)
}

// ThreadServiceDeps зависимости сервиса; Sink, Clock, Logger и Metrics необязательны
type ThreadServiceDeps struct {
	Messages      repository.MessageRepository
	Notifications repository.NotificationRepository
	Presence      repository.PresenceRepository
	Applications  repository.ApplicationRepository
	Realtime      thread.Realtime
	Sink          thread.NotificationSink
	Clock         clockwork.Clock
	Logger        *log.Logger
	Metrics       *thread.Metrics
}

type threadService struct {
	deps ThreadServiceDeps
	opts thread.Options
}

// NewThreadService создает новый экземпляр ThreadService
func NewThreadService(deps ThreadServiceDeps, opts thread.Options) ThreadService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &threadService{deps: deps, opts: opts}
}

// NewThread проверяет участие пользователя и создает координатор, не запуская
// его: до Start ничего не читается и не отмечается прочитанным.
// Вызывающий обязан закрыть возвращенный Thread.
func (s *threadService) NewThread(ctx context.Context, userID, token, applyID string) (*thread.Thread, error) {
	app, err := s.application(ctx, userID, applyID)
	if err != nil {
		return nil, err
	}

	opts := s.opts
	opts.ReadOnly = app.IsReadOnly()

	th, err := thread.New(thread.Identity{
		UserID: userID,
		Role:   app.RoleOf(userID),
		Token:  token,
	}, applyID, thread.Deps{
		Messages:      s.deps.Messages,
		Notifications: s.deps.Notifications,
		Presence:      s.deps.Presence,
		Applications:  s.deps.Applications,
		Realtime:      s.deps.Realtime,
		Sink:          s.deps.Sink,
		Clock:         s.deps.Clock,
		Logger:        s.deps.Logger,
		Metrics:       s.deps.Metrics,
	}, opts)
	if err != nil {
		return nil, err
	}
	return th, nil
}

// Messages история переписки без открытия подписок
func (s *threadService) Messages(ctx context.Context, userID, applyID string) ([]model.Message, error) {
	if _, err := s.application(ctx, userID, applyID); err != nil {
		return nil, err
	}
	return s.deps.Messages.ListByThread(ctx, applyID)
}

// UnreadCount непрочитанные сообщения пользователя в переписке
func (s *threadService) UnreadCount(ctx context.Context, userID, applyID string) (int64, error) {
	if _, err := s.application(ctx, userID, applyID); err != nil {
		return 0, err
	}
	return s.deps.Messages.CountUnreadFor(ctx, applyID, userID)
}

// PeerOnline собеседник считается в сети, если его heartbeat свежее PresenceFreshness
func (s *threadService) PeerOnline(ctx context.Context, userID, applyID string) (bool, error) {
	app, err := s.application(ctx, userID, applyID)
	if err != nil {
		return false, err
	}

	seen, ok, err := s.deps.Presence.LastSeen(ctx, app.OtherParty(userID), applyID)
	if err != nil || !ok {
		return false, err
	}

	freshness := s.opts.PresenceFreshness
	if freshness <= 0 {
		freshness = thread.DefaultOptions().PresenceFreshness
	}
	return !seen.Before(s.deps.Clock.Now().Add(-freshness)), nil
}

func (s *threadService) application(ctx context.Context, userID, applyID string) (*model.Application, error) {
	app, err := s.deps.Applications.GetWithParties(ctx, applyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if !app.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return app, nil
}
