// Package thread координирует одну открытую переписку по отклику: историю
// сообщений, живую ленту изменений, индикатор набора собеседника, heartbeat
// присутствия и отправку с группированными уведомлениями.
package thread

import (
	"context"
	"fmt"
	"log"
	"sync"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/realtime"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Thread одна открытая переписка одного пользователя
type Thread struct {
	applyID string
	self    Identity
	connID  string
	opts    Options
	deps    Deps
	clock   clockwork.Clock
	logger  *log.Logger
	metrics *Metrics

	mu            sync.Mutex
	list          *messageList
	indicator     Indicator
	transitionSeq uint64
	revealTimer   clockwork.Timer
	settleTimer   clockwork.Timer
	outbound      outboundTyping
	draft         string
	sending       bool
	started       bool
	closed        bool

	ctx      context.Context
	cancel   context.CancelFunc
	sub      realtime.MessageSubscription
	presence realtime.PresenceChannel
	loops    sync.WaitGroup
	effects  sync.WaitGroup

	events       chan Event
	emitMu       sync.Mutex
	eventsClosed bool
}

// New создает переписку; подписки открываются в Start
func New(self Identity, applyID string, deps Deps, opts Options) (*Thread, error) {
	if applyID == "" || self.UserID == "" || self.Token == "" {
		return nil, ErrIncompleteIdentity
	}
	if deps.Messages == nil || deps.Notifications == nil || deps.Presence == nil ||
		deps.Applications == nil || deps.Realtime == nil {
		return nil, ErrMissingDependency
	}

	opts = opts.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	return &Thread{
		applyID: applyID,
		self:    self,
		connID:  uuid.NewString(),
		opts:    opts,
		deps:    deps,
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		list:    newMessageList(),
		events:  make(chan Event, opts.EventBuffer),
	}, nil
}

func (t *Thread) ApplyID() string { return t.applyID }

func (t *Thread) UserID() string { return t.self.UserID }

// Events поток изменений представления. Закрывается в Close.
func (t *Thread) Events() <-chan Event {
	return t.events
}

// Start подписывается на ленту сообщений и presence, запускает heartbeat
// и загружает историю. Ошибка загрузки истории только логируется.
func (t *Thread) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// подписка раньше загрузки, чтобы не потерять сообщения между ними
	sub, err := t.deps.Realtime.SubscribeMessages(ctx, t.applyID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to messages: %w", err)
	}

	presence, err := t.deps.Realtime.JoinPresence(ctx, t.applyID, t.connID)
	if err != nil {
		sub.Close()
		cancel()
		return fmt.Errorf("join presence: %w", err)
	}

	heartbeat := t.clock.NewTicker(t.opts.HeartbeatInterval)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		heartbeat.Stop()
		presence.Close()
		sub.Close()
		cancel()
		return ErrClosed
	}
	t.ctx = runCtx
	t.cancel = cancel
	t.sub = sub
	t.presence = presence
	t.loops.Add(2)
	t.mu.Unlock()

	t.metrics.threadOpened()

	go t.run(runCtx, sub, presence)
	go t.heartbeatLoop(runCtx, heartbeat)

	if err := t.LoadMessages(ctx); err != nil {
		t.logger.Printf("[thread] initial load for %s failed: %v", t.applyID, err)
	}

	return nil
}

// Close освобождает все ресурсы переписки. Повторный вызов ничего не делает.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.stopTransitionLocked()
	t.outbound.stop()
	cancel := t.cancel
	sub, presence := t.sub, t.presence
	started := t.started && cancel != nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.loops.Wait()

	if sub != nil {
		sub.Close()
	}
	if presence != nil {
		presence.Close()
	}

	t.effects.Wait()

	if started {
		t.metrics.threadClosed()
	}

	t.emitMu.Lock()
	t.eventsClosed = true
	close(t.events)
	t.emitMu.Unlock()
}

// run единый цикл обработки ленты изменений и presence
func (t *Thread) run(ctx context.Context, sub realtime.MessageSubscription, presence realtime.PresenceChannel) {
	defer t.loops.Done()

	changes := sub.Events()
	syncs := presence.Syncs()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			t.handleChange(ctx, ev)
		case st, ok := <-syncs:
			if !ok {
				syncs = nil
				continue
			}
			t.handlePresence(st)
		}
	}
}

func (t *Thread) handleChange(ctx context.Context, ev model.ChangeEvent) {
	if ev.ApplyID != "" && ev.ApplyID != t.applyID {
		return
	}

	switch ev.Kind {
	case model.ChangeInsert:
		t.applyInsert(ctx, ev.Message)
	case model.ChangeUpdate:
		t.applyUpdate(ev.Message)
	case model.ChangeResync:
		if err := t.LoadMessages(ctx); err != nil {
			t.logger.Printf("[thread] resync of %s failed: %v", t.applyID, err)
		}
	}
}

// Snapshot текущее представление переписки
func (t *Thread) Snapshot() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *Thread) viewLocked() View {
	consecutive := t.consecutiveLocked()
	return View{
		Messages:         t.list.Messages(),
		Typing:           t.indicator.View(),
		PeerTyping:       t.indicator.State == TypingPeer,
		ConsecutiveCount: consecutive,
		CanSend:          t.gateLocked() == nil,
		Sending:          t.sending,
		ReadOnly:         t.opts.ReadOnly,
		Draft:            t.draft,
	}
}
