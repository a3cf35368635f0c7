package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	"go.uber.org/atomic"
)

const (
	defaultSubscriberBuffer = 256
	defaultCleanupInterval  = 5 * time.Minute
	defaultRoomIdleTimeout  = time.Hour
)

// ErrBusClosed шина уже остановлена
var ErrBusClosed = errors.New("realtime bus is closed")

// HubOptions опции хаба
type HubOptions struct {
	SubscriberBuffer int
	CleanupInterval  time.Duration
	RoomIdleTimeout  time.Duration
}

// Metrics счетчики шины
type Metrics struct {
	Published     atomic.Int64
	Delivered     atomic.Int64
	Dropped       atomic.Int64
	Resyncs       atomic.Int64
	Subscriptions atomic.Int64
	PresenceSyncs atomic.Int64
}

// Hub держит комнаты переписок в памяти процесса
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	options   HubOptions
	shutdown  chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	metrics   *Metrics
}

// NewHub создает новый хаб
func NewHub(options ...HubOptions) *Hub {
	opts := HubOptions{}
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.SubscriberBuffer < 2 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.RoomIdleTimeout <= 0 {
		opts.RoomIdleTimeout = defaultRoomIdleTimeout
	}

	hub := &Hub{
		rooms:    make(map[string]*Room),
		options:  opts,
		shutdown: make(chan struct{}),
		metrics:  &Metrics{},
	}

	go hub.cleanupLoop()

	return hub
}

// Metrics возвращает счетчики хаба
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// GetRoom возвращает комнату переписки, создавая ее при необходимости
func (h *Hub) GetRoom(applyID string) *Room {
	h.mu.RLock()
	room, exists := h.rooms[applyID]
	h.mu.RUnlock()

	if exists {
		room.touch()
		return room
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Двойная проверка
	if room, exists := h.rooms[applyID]; exists {
		return room
	}

	room = newRoom(applyID, h.metrics)
	h.rooms[applyID] = room
	return room
}

// GetRoomSafe возвращает комнату, если она существует
func (h *Hub) GetRoomSafe(applyID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, exists := h.rooms[applyID]
	return room, exists
}

// RoomCount количество открытых комнат
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomsInfo снимок состояния всех комнат
func (h *Hub) RoomsInfo() []RoomInfo {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.GetInfo())
	}
	return infos
}

// PublishChange рассылает событие всем подписчикам переписки
func (h *Hub) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	if h.closed.Load() {
		return ErrBusClosed
	}

	h.metrics.Published.Inc()

	room, exists := h.GetRoomSafe(ev.ApplyID)
	if !exists {
		return nil
	}

	room.broadcast(ev)
	return nil
}

// SubscribeMessages подписывает на ленту изменений переписки
func (h *Hub) SubscribeMessages(ctx context.Context, applyID string) (MessageSubscription, error) {
	if h.closed.Load() {
		return nil, ErrBusClosed
	}

	room := h.GetRoom(applyID)
	sub := &hubSubscription{
		room:   room,
		events: make(chan model.ChangeEvent, h.options.SubscriberBuffer),
	}
	room.addSubscriber(sub)
	h.metrics.Subscriptions.Inc()

	return sub, nil
}

// JoinPresence подключает соединение к presence-каналу переписки
func (h *Hub) JoinPresence(ctx context.Context, applyID, connID string) (PresenceChannel, error) {
	if h.closed.Load() {
		return nil, ErrBusClosed
	}

	room := h.GetRoom(applyID)
	member := &hubMember{
		room:   room,
		connID: connID,
		syncs:  make(chan model.PresenceState, 1),
	}
	room.addMember(member)

	return member, nil
}

// Close останавливает хаб и закрывает все подписки
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.shutdown)

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, room := range h.rooms {
			room.shutdown()
		}
		h.rooms = make(map[string]*Room)
	})
	return nil
}

// cleanupLoop периодически очищает неактивные комнаты
func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(h.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			return
		case <-ticker.C:
			h.cleanupInactiveRooms()
		}
	}
}

// cleanupInactiveRooms очищает неактивные комнаты
func (h *Hub) cleanupInactiveRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for applyID, room := range h.rooms {
		if room.IsEmpty() && room.IsInactive(h.options.RoomIdleTimeout) {
			delete(h.rooms, applyID)
			log.Printf("hub: removed idle room %s", applyID)
		}
	}
}

// RoomInfo информация о комнате
type RoomInfo struct {
	ApplyID       string    `json:"apply_id"`
	Subscribers   int       `json:"subscribers"`
	PresenceConns int       `json:"presence_conns"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Room подписчики и presence-состояние одной переписки
type Room struct {
	applyID     string
	mu          sync.Mutex
	subscribers map[*hubSubscription]struct{}
	members     map[string]*hubMember
	state       model.PresenceState
	createdAt   time.Time
	lastActive  atomic.Time
	metrics     *Metrics
}

func newRoom(applyID string, metrics *Metrics) *Room {
	room := &Room{
		applyID:     applyID,
		subscribers: make(map[*hubSubscription]struct{}),
		members:     make(map[string]*hubMember),
		state:       make(model.PresenceState),
		createdAt:   time.Now(),
		metrics:     metrics,
	}
	room.lastActive.Store(time.Now())
	return room
}

// GetInfo возвращает информацию о комнате
func (r *Room) GetInfo() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RoomInfo{
		ApplyID:       r.applyID,
		Subscribers:   len(r.subscribers),
		PresenceConns: len(r.members),
		CreatedAt:     r.createdAt,
		LastActivity:  r.lastActive.Load(),
	}
}

// IsEmpty проверяет, пуста ли комната
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers) == 0 && len(r.members) == 0
}

// IsInactive проверяет, неактивна ли комната
func (r *Room) IsInactive(idle time.Duration) bool {
	return time.Since(r.lastActive.Load()) > idle
}

func (r *Room) touch() {
	r.lastActive.Store(time.Now())
}

func (r *Room) addSubscriber(sub *hubSubscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers[sub] = struct{}{}
	r.touch()
}

func (r *Room) removeSubscriber(sub *hubSubscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[sub]; !ok {
		return false
	}
	delete(r.subscribers, sub)
	r.touch()
	return true
}

func (r *Room) broadcast(ev model.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sub := range r.subscribers {
		if sub.deliver(ev) {
			r.metrics.Delivered.Inc()
			continue
		}
		r.metrics.Dropped.Inc()
	}
	r.touch()
}

func (r *Room) addMember(m *hubMember) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[m.connID] = m
	m.push(cloneState(r.state))
	r.touch()
}

func (r *Room) track(connID string, payload model.TypingPayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[connID]; !ok {
		return false
	}
	r.state[connID] = payload
	r.syncLocked()
	return true
}

func (r *Room) removeMember(m *hubMember) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stored, ok := r.members[m.connID]; !ok || stored != m {
		return
	}
	delete(r.members, m.connID)
	delete(r.state, m.connID)
	close(m.syncs)
	r.syncLocked()
}

// syncLocked рассылает текущее состояние всем участникам
func (r *Room) syncLocked() {
	for _, m := range r.members {
		m.push(cloneState(r.state))
		r.metrics.PresenceSyncs.Inc()
	}
	r.touch()
}

func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sub := range r.subscribers {
		sub.close()
	}
	r.subscribers = make(map[*hubSubscription]struct{})

	for _, m := range r.members {
		close(m.syncs)
	}
	r.members = make(map[string]*hubMember)
	r.state = make(model.PresenceState)
}

type hubSubscription struct {
	room      *Room
	mu        sync.Mutex
	events    chan model.ChangeEvent
	lost      bool
	closed    bool
	closeOnce sync.Once
}

func (s *hubSubscription) Events() <-chan model.ChangeEvent {
	return s.events
}

// deliver не блокируется. Последний слот буфера зарезервирован под resync:
// если подписчик не успевает, события отбрасываются, а он получает
// ChangeResync и перечитывает переписку целиком.
func (s *hubSubscription) deliver(ev model.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if len(s.events) < cap(s.events)-1 {
		s.events <- ev
		s.lost = false
		return true
	}

	if !s.lost {
		s.lost = true
		s.events <- model.ChangeEvent{Kind: model.ChangeResync, ApplyID: ev.ApplyID}
		s.room.metrics.Resyncs.Inc()
	}
	return false
}

func (s *hubSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *hubSubscription) Close() {
	s.closeOnce.Do(func() {
		if s.room.removeSubscriber(s) {
			s.room.metrics.Subscriptions.Dec()
		}
		s.close()
	})
}

type hubMember struct {
	room      *Room
	connID    string
	syncs     chan model.PresenceState
	closeOnce sync.Once
}

func (m *hubMember) Syncs() <-chan model.PresenceState {
	return m.syncs
}

// push заменяет непрочитанное состояние новым; вызывается под мьютексом комнаты
func (m *hubMember) push(state model.PresenceState) {
	select {
	case <-m.syncs:
	default:
	}
	m.syncs <- state
}

func (m *hubMember) Track(ctx context.Context, payload model.TypingPayload) error {
	if !m.room.track(m.connID, payload) {
		return ErrBusClosed
	}
	return nil
}

func (m *hubMember) Close() {
	m.closeOnce.Do(func() {
		m.room.removeMember(m)
	})
}
