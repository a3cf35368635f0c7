package thread

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/realtime"
	"tush00nka/secujob_messaging/internal/repository"
	"tush00nka/secujob_messaging/internal/repository/repotest"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const waitTimeout = 3 * time.Second

var errBoom = errors.New("boom")

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// countingMessages считает обращения к хранилищу и умеет ломать вставку
type countingMessages struct {
	MessageStore

	mu         sync.Mutex
	creates    int
	markCalls  int
	markedRows int
	failCreate error
}

func (c *countingMessages) Create(ctx context.Context, msg *model.Message) error {
	c.mu.Lock()
	c.creates++
	fail := c.failCreate
	c.mu.Unlock()

	if fail != nil {
		return fail
	}
	return c.MessageStore.Create(ctx, msg)
}

func (c *countingMessages) MarkRead(ctx context.Context, ids []string) ([]model.Message, error) {
	updated, err := c.MessageStore.MarkRead(ctx, ids)

	c.mu.Lock()
	c.markCalls++
	c.markedRows += len(updated)
	c.mu.Unlock()

	return updated, err
}

func (c *countingMessages) Creates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates
}

func (c *countingMessages) Marked() (calls, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markCalls, c.markedRows
}

type failingApplications struct{}

func (failingApplications) GetWithParties(ctx context.Context, applyID string) (*model.Application, error) {
	return nil, errBoom
}

func (failingApplications) Touch(ctx context.Context, applyID string, at time.Time) error {
	return errBoom
}

type recordingSink struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (s *recordingSink) NotificationCreated(ctx context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// recordingRealtime запоминает все публикации typing
type recordingRealtime struct {
	bus realtime.Bus

	mu     sync.Mutex
	tracks []bool
}

func (r *recordingRealtime) SubscribeMessages(ctx context.Context, applyID string) (realtime.MessageSubscription, error) {
	return r.bus.SubscribeMessages(ctx, applyID)
}

func (r *recordingRealtime) JoinPresence(ctx context.Context, applyID, connID string) (realtime.PresenceChannel, error) {
	ch, err := r.bus.JoinPresence(ctx, applyID, connID)
	if err != nil {
		return nil, err
	}
	return &recordingPresence{PresenceChannel: ch, rec: r}, nil
}

func (r *recordingRealtime) Tracks() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.tracks))
	copy(out, r.tracks)
	return out
}

type recordingPresence struct {
	realtime.PresenceChannel
	rec *recordingRealtime
}

func (p *recordingPresence) Track(ctx context.Context, payload model.TypingPayload) error {
	p.rec.mu.Lock()
	p.rec.tracks = append(p.rec.tracks, payload.Typing)
	p.rec.mu.Unlock()
	return p.PresenceChannel.Track(ctx, payload)
}

type env struct {
	db            *gorm.DB
	fx            repotest.Fixture
	hub           *realtime.Hub
	clock         *clockwork.FakeClock
	repo          repository.MessageRepository
	messages      *countingMessages
	notifications repository.NotificationRepository
	presence      repository.PresenceRepository
	applications  repository.ApplicationRepository
	sink          *recordingSink
	metrics       *Metrics
}

func newEnv(t *testing.T, status string) *env {
	t.Helper()

	db := repotest.OpenDB(t)
	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	repo := repository.NewMessageRepository(db, hub)
	return &env{
		db:            db,
		fx:            repotest.SeedApplication(t, db, status),
		hub:           hub,
		clock:         clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
		repo:          repo,
		messages:      &countingMessages{MessageStore: repo},
		notifications: repository.NewNotificationRepository(db),
		presence:      repository.NewPresenceRepository(db),
		applications:  repository.NewApplicationRepository(db),
		sink:          &recordingSink{},
		metrics:       NewMetrics(prometheus.NewRegistry()),
	}
}

func (e *env) deps() Deps {
	return Deps{
		Messages:      e.messages,
		Notifications: e.notifications,
		Presence:      e.presence,
		Applications:  e.applications,
		Realtime:      e.hub,
		Sink:          e.sink,
		Clock:         e.clock,
		Logger:        log.New(io.Discard, "", 0),
		Metrics:       e.metrics,
	}
}

func (e *env) candidate() Identity {
	return Identity{UserID: e.fx.CandidateID, Role: model.RoleCandidate, Token: "candidate-token"}
}

func (e *env) pro() Identity {
	return Identity{UserID: e.fx.CompanyID, Role: model.RolePro, Token: "pro-token"}
}

func (e *env) open(t *testing.T, who Identity, deps Deps, opts Options) *Thread {
	t.Helper()

	th, err := New(who, e.fx.ApplyID, deps, opts)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("start thread: %v", err)
	}
	t.Cleanup(th.Close)
	return th
}

// seed пишет сообщение напрямую в базу с явным временем
func (e *env) seed(t *testing.T, senderID, content string, at time.Time, read bool) model.Message {
	t.Helper()

	msg := model.Message{
		ApplyID:   e.fx.ApplyID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: at,
		IsRead:    read,
	}
	if err := e.db.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return msg
}

func (e *env) notificationsFor(t *testing.T, recipientID string) []model.Notification {
	t.Helper()

	list, err := e.notifications.ListForRecipient(context.Background(), recipientID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return list
}

func hasMessage(v View, id string) bool {
	for _, m := range v.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
