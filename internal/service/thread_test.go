package service_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/realtime"
	"tush00nka/secujob_messaging/internal/repository"
	"tush00nka/secujob_messaging/internal/repository/repotest"
	"tush00nka/secujob_messaging/internal/service"
	"tush00nka/secujob_messaging/internal/thread"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	fx    repotest.Fixture
	clock *clockwork.FakeClock
	svc   service.ThreadService
	msgs  repository.MessageRepository
	pres  repository.PresenceRepository
}

func setup(t *testing.T, status string) *fixture {
	t.Helper()

	db := repotest.OpenDB(t)
	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	msgs := repository.NewMessageRepository(db, hub)
	pres := repository.NewPresenceRepository(db)

	svc := service.NewThreadService(service.ThreadServiceDeps{
		Messages:      msgs,
		Notifications: repository.NewNotificationRepository(db),
		Presence:      pres,
		Applications:  repository.NewApplicationRepository(db),
		Realtime:      hub,
		Clock:         clock,
		Logger:        log.New(io.Discard, "", 0),
	}, thread.DefaultOptions())

	return &fixture{
		db:    db,
		fx:    repotest.SeedApplication(t, db, status),
		clock: clock,
		svc:   svc,
		msgs:  msgs,
		pres:  pres,
	}
}

func openThread(t *testing.T, f *fixture, userID string) *thread.Thread {
	t.Helper()

	th, err := f.svc.NewThread(context.Background(), userID, "token", f.fx.ApplyID)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	t.Cleanup(th.Close)

	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return th
}

func TestNewThreadRejectsStrangers(t *testing.T) {
	f := setup(t, "pending")
	ctx := context.Background()

	if _, err := f.svc.NewThread(ctx, "stranger", "token", f.fx.ApplyID); !errors.Is(err, service.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := f.svc.NewThread(ctx, f.fx.CandidateID, "token", "missing"); !errors.Is(err, service.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestThreadDerivesRoleAndReadOnly(t *testing.T) {
	f := setup(t, model.StatusRejected)
	ctx := context.Background()

	// компания может писать первой, но отклик отклонен
	th := openThread(t, f, f.fx.CompanyID)

	view := th.Snapshot()
	if !view.ReadOnly || view.CanSend {
		t.Fatalf("rejected application must be read-only, got %+v", view)
	}
	if err := th.SendMessage(ctx, "Bonjour"); !errors.Is(err, thread.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestThreadCandidateColdOpen(t *testing.T) {
	f := setup(t, "pending")
	ctx := context.Background()

	th := openThread(t, f, f.fx.CandidateID)

	if err := th.SendMessage(ctx, "Bonjour"); !errors.Is(err, thread.ErrColdOpen) {
		t.Fatalf("expected ErrColdOpen, got %v", err)
	}
}

func TestMessagesAndUnread(t *testing.T) {
	f := setup(t, "pending")
	ctx := context.Background()

	for _, content := range []string{"Bonjour", "Êtes-vous disponible ?"} {
		msg := &model.Message{ApplyID: f.fx.ApplyID, SenderID: f.fx.CompanyID, Content: content}
		if err := f.msgs.Create(ctx, msg); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	msgs, err := f.svc.Messages(ctx, f.fx.CandidateID, f.fx.ApplyID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "Bonjour" {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	n, err := f.svc.UnreadCount(ctx, f.fx.CandidateID, f.fx.ApplyID)
	if err != nil || n != 2 {
		t.Fatalf("candidate unread = %d, %v; want 2", n, err)
	}
	n, err = f.svc.UnreadCount(ctx, f.fx.CompanyID, f.fx.ApplyID)
	if err != nil || n != 0 {
		t.Fatalf("company unread = %d, %v; want 0", n, err)
	}

	if _, err := f.svc.UnreadCount(ctx, "stranger", f.fx.ApplyID); !errors.Is(err, service.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestPeerOnline(t *testing.T) {
	f := setup(t, "pending")
	ctx := context.Background()

	online, err := f.svc.PeerOnline(ctx, f.fx.CandidateID, f.fx.ApplyID)
	if err != nil || online {
		t.Fatalf("peer without heartbeat must be offline: %v, %v", online, err)
	}

	if err := f.pres.Touch(ctx, f.fx.CompanyID, f.fx.ApplyID, f.clock.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}
	online, err = f.svc.PeerOnline(ctx, f.fx.CandidateID, f.fx.ApplyID)
	if err != nil || !online {
		t.Fatalf("fresh heartbeat must be online: %v, %v", online, err)
	}

	f.clock.Advance(6 * time.Second)
	online, err = f.svc.PeerOnline(ctx, f.fx.CandidateID, f.fx.ApplyID)
	if err != nil || online {
		t.Fatalf("stale heartbeat must be offline: %v, %v", online, err)
	}
}

func TestNewThreadReadsNothingUntilStart(t *testing.T) {
	f := setup(t, "pending")
	ctx := context.Background()

	msg := &model.Message{ApplyID: f.fx.ApplyID, SenderID: f.fx.CompanyID, Content: "Bonjour"}
	if err := f.msgs.Create(ctx, msg); err != nil {
		t.Fatalf("create: %v", err)
	}

	th, err := f.svc.NewThread(ctx, f.fx.CandidateID, "token", f.fx.ApplyID)
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	defer th.Close()

	if n, err := f.svc.UnreadCount(ctx, f.fx.CandidateID, f.fx.ApplyID); err != nil || n != 1 {
		t.Fatalf("unread before start = %d, %v; want 1", n, err)
	}

	if err := th.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, err := f.svc.UnreadCount(ctx, f.fx.CandidateID, f.fx.ApplyID); err != nil || n != 0 {
		t.Fatalf("unread after start = %d, %v; want 0", n, err)
	}
}
