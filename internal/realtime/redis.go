package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
)

const (
	defaultPresenceTTL  = 30 * time.Second
	defaultChannelSize  = 256
	presenceCleanupWait = 2 * time.Second
)

// RedisOptions опции шины поверх Redis
type RedisOptions struct {
	// PresenceTTL записи presence старше этого срока не попадают в состояние
	PresenceTTL time.Duration
	ChannelSize int
	Clock       clockwork.Clock
}

// RedisBus шина на Redis pub/sub: лента изменений публикуется в канал
// thread:{id}:messages, presence хранится в хэше thread:{id}:presence
// и сопровождается уведомлениями в thread:{id}:presence_sync
type RedisBus struct {
	client  *redis.Client
	opts    RedisOptions
	metrics *Metrics
	closed  atomic.Bool
}

type presenceEntry struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
	At     int64  `json:"at"`
}

// NewRedisBus создает шину поверх существующего клиента
func NewRedisBus(client *redis.Client, options ...RedisOptions) *RedisBus {
	opts := RedisOptions{}
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = defaultPresenceTTL
	}
	if opts.ChannelSize <= 0 {
		opts.ChannelSize = defaultChannelSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &RedisBus{
		client:  client,
		opts:    opts,
		metrics: &Metrics{},
	}
}

// Metrics возвращает счетчики шины
func (b *RedisBus) Metrics() *Metrics {
	return b.metrics
}

func (b *RedisBus) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := b.client.Publish(ctx, messagesChannel(ev.ApplyID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	b.metrics.Published.Inc()
	return nil
}

func (b *RedisBus) SubscribeMessages(ctx context.Context, applyID string) (MessageSubscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	ps := b.client.Subscribe(ctx, messagesChannel(applyID))
	// Дожидаемся подтверждения, чтобы не потерять события сразу после подписки
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to thread %s: %w", applyID, err)
	}

	sub := &redisSubscription{
		applyID: applyID,
		pubsub:  ps,
		events:  make(chan model.ChangeEvent, b.opts.ChannelSize),
		done:    make(chan struct{}),
		metrics: b.metrics,
	}
	b.metrics.Subscriptions.Inc()

	sub.wg.Add(1)
	go sub.run(ps.ChannelWithSubscriptions(redis.WithChannelSize(b.opts.ChannelSize)))

	return sub, nil
}

func (b *RedisBus) JoinPresence(ctx context.Context, applyID, connID string) (PresenceChannel, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	ps := b.client.Subscribe(ctx, presenceSyncChannel(applyID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to join presence of thread %s: %w", applyID, err)
	}

	m := &redisMember{
		bus:     b,
		applyID: applyID,
		connID:  connID,
		pubsub:  ps,
		syncs:   make(chan model.PresenceState, 1),
		done:    make(chan struct{}),
	}

	// перечитываем хэш и без уведомлений: запись упавшего инстанса должна устареть
	refresh := b.opts.Clock.NewTicker(b.opts.PresenceTTL / 2)

	m.wg.Add(1)
	go m.run(ps.Channel(redis.WithChannelSize(b.opts.ChannelSize)), refresh)

	return m, nil
}

// Close помечает шину закрытой; клиент Redis закрывает владелец
func (b *RedisBus) Close() error {
	b.closed.Store(true)
	return nil
}

// readPresence читает хэш присутствия и отбрасывает устаревшие записи
func (b *RedisBus) readPresence(ctx context.Context, applyID string) (model.PresenceState, error) {
	raw, err := b.client.HGetAll(ctx, presenceKey(applyID)).Result()
	if err != nil {
		return nil, err
	}

	cutoff := b.opts.Clock.Now().Add(-b.opts.PresenceTTL).UnixMilli()
	state := make(model.PresenceState, len(raw))
	for connID, value := range raw {
		var entry presenceEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			log.Printf("redis bus: bad presence entry %s in thread %s: %v", connID, applyID, err)
			continue
		}
		if entry.At < cutoff {
			continue
		}
		state[connID] = model.TypingPayload{UserID: entry.UserID, Typing: entry.Typing}
	}
	return state, nil
}

type redisSubscription struct {
	applyID   string
	pubsub    *redis.PubSub
	events    chan model.ChangeEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	metrics   *Metrics
}

func (s *redisSubscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *redisSubscription) run(ch <-chan interface{}) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}

			var ev model.ChangeEvent
			switch msg := raw.(type) {
			case *redis.Message:
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("redis bus: failed to decode change event for thread %s: %v", s.applyID, err)
					continue
				}
			case *redis.Subscription:
				// Повторная подписка после переподключения: события могли потеряться
				if msg.Kind != "subscribe" {
					continue
				}
				ev = model.ChangeEvent{Kind: model.ChangeResync, ApplyID: s.applyID}
				s.metrics.Resyncs.Inc()
			default:
				continue
			}

			select {
			case s.events <- ev:
				s.metrics.Delivered.Inc()
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.pubsub.Close(); err != nil {
			log.Printf("redis bus: failed to close subscription for thread %s: %v", s.applyID, err)
		}
		s.wg.Wait()
		s.metrics.Subscriptions.Dec()
	})
}

type redisMember struct {
	bus       *RedisBus
	applyID   string
	connID    string
	pubsub    *redis.PubSub
	syncs     chan model.PresenceState
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (m *redisMember) Syncs() <-chan model.PresenceState {
	return m.syncs
}

func (m *redisMember) Track(ctx context.Context, payload model.TypingPayload) error {
	entry := presenceEntry{
		UserID: payload.UserID,
		Typing: payload.Typing,
		At:     m.bus.opts.Clock.Now().UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(m.applyID)
	_, err = m.bus.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, m.connID, data)
		pipe.Expire(ctx, key, m.bus.opts.PresenceTTL)
		pipe.Publish(ctx, presenceSyncChannel(m.applyID), m.connID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to track presence: %w", err)
	}
	return nil
}

func (m *redisMember) run(ch <-chan *redis.Message, ticker clockwork.Ticker) {
	defer m.wg.Done()
	defer close(m.syncs)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-m.done:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			m.refresh()
		case <-ticker.Chan():
			m.refresh()
		}
	}
}

func (m *redisMember) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), presenceCleanupWait)
	defer cancel()

	state, err := m.bus.readPresence(ctx, m.applyID)
	if err != nil {
		log.Printf("redis bus: failed to read presence for thread %s: %v", m.applyID, err)
		return
	}

	select {
	case <-m.syncs:
	default:
	}
	m.syncs <- state
	m.bus.metrics.PresenceSyncs.Inc()
}

func (m *redisMember) Close() {
	m.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceCleanupWait)
		defer cancel()

		_, err := m.bus.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, presenceKey(m.applyID), m.connID)
			pipe.Publish(ctx, presenceSyncChannel(m.applyID), m.connID)
			return nil
		})
		if err != nil {
			log.Printf("redis bus: failed to leave presence of thread %s: %v", m.applyID, err)
		}

		close(m.done)
		if err := m.pubsub.Close(); err != nil {
			log.Printf("redis bus: failed to close presence subscription for thread %s: %v", m.applyID, err)
		}
		m.wg.Wait()
	})
}
