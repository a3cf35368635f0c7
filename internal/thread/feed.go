package thread

import (
	"context"
	"fmt"

	"tush00nka/secujob_messaging/internal/model"
)

// LoadMessages загружает историю, отмечает прочитанными сообщения собеседника
// и гасит уведомления переписки. Безопасно вызывать параллельно с живой лентой:
// слияние идет по ID, сообщение в переходе не добавляется раньше времени.
func (t *Thread) LoadMessages(ctx context.Context) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	t.touchPresence(ctx)

	msgs, err := t.deps.Messages.ListByThread(ctx, t.applyID)
	if err != nil {
		t.logger.Printf("[thread] failed to load messages for %s: %v", t.applyID, err)
		return fmt.Errorf("load messages: %w", err)
	}

	var unread []string
	for i := range msgs {
		if msgs[i].SenderID != t.self.UserID && !msgs[i].IsRead {
			unread = append(unread, msgs[i].ID)
		}
	}
	if t.markRead(ctx, unread) {
		for i := range msgs {
			if msgs[i].SenderID != t.self.UserID {
				msgs[i].IsRead = true
			}
		}
	}

	t.mu.Lock()
	if !t.closed {
		t.list.Merge(msgs, t.indicator.pendingID())
		t.emit(Event{Type: EventHistory, Messages: t.list.Messages()})
	}
	t.mu.Unlock()

	if _, err := t.deps.Notifications.MarkThreadRead(ctx, t.self.UserID, t.applyID, t.clock.Now()); err != nil {
		t.metrics.sideEffectFailed("mark_notifications_read")
		t.logger.Printf("[thread] failed to mark notifications read for %s: %v", t.applyID, err)
	}

	return nil
}

// markRead отмечает сообщения прочитанными; false при ошибке
func (t *Thread) markRead(ctx context.Context, ids []string) bool {
	if len(ids) == 0 {
		return true
	}

	updated, err := t.deps.Messages.MarkRead(ctx, ids)
	if err != nil {
		t.metrics.sideEffectFailed("mark_read")
		t.logger.Printf("[thread] failed to mark %d messages read in %s: %v", len(ids), t.applyID, err)
		return false
	}

	t.metrics.read(len(updated))
	return true
}

// applyInsert новое сообщение из ленты. Свое сообщение добавляется как есть,
// сообщение собеседника сразу считается прочитанным и гасит индикатор набора.
func (t *Thread) applyInsert(ctx context.Context, msg model.Message) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if msg.SenderID == t.self.UserID {
		if t.list.Upsert(msg) {
			t.emitMessage(EventMessage, msg)
		} else if stored, ok := t.list.Get(msg.ID); ok {
			t.emitMessage(EventMessageUpdated, stored)
		}
		t.mu.Unlock()
		return
	}

	needsMark := !msg.IsRead
	msg.IsRead = true

	switch {
	case t.list.Has(msg.ID):
		if stored, _ := t.list.Get(msg.ID); stored.IsRead {
			needsMark = false
		}
		stored, _ := t.list.Update(msg)
		t.emitMessage(EventMessageUpdated, stored)
	case t.indicator.pendingID() == msg.ID:
		if t.indicator.Pending.IsRead {
			needsMark = false
		}
		t.indicator, _ = t.indicator.UpdatePending(msg)
	default:
		t.acceptPeerMessageLocked(msg)
	}
	t.mu.Unlock()

	if needsMark {
		t.markRead(ctx, []string{msg.ID})
	}
}

// acceptPeerMessageLocked прогоняет новое сообщение собеседника через индикатор
func (t *Thread) acceptPeerMessageLocked(msg model.Message) {
	prev := t.indicator.State
	next, ready := t.indicator.PeerMessage(msg)
	if prev == TypingTransition {
		t.stopTransitionLocked()
	}
	t.indicator = next

	for _, m := range ready {
		if t.list.Upsert(m) {
			t.emitMessage(EventMessage, m)
		}
	}

	if next.State == TypingTransition {
		t.startTransitionLocked()
	}
	if prev != TypingIdle || next.State != TypingIdle {
		t.emitTypingLocked()
	}
}

// applyUpdate замена известного сообщения на месте
func (t *Thread) applyUpdate(msg model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if stored, ok := t.list.Update(msg); ok {
		t.emitMessage(EventMessageUpdated, stored)
		return
	}
	t.indicator, _ = t.indicator.UpdatePending(msg)
}

// handlePresence агрегированное состояние presence-канала
func (t *Thread) handlePresence(state model.PresenceState) {
	typing := state.AnyoneTypingExcept(t.self.UserID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	prev := t.indicator.State
	t.indicator = t.indicator.Presence(typing)
	if t.indicator.State != prev {
		t.emitTypingLocked()
	}
}

func (t *Thread) startTransitionLocked() {
	t.transitionSeq++
	seq := t.transitionSeq
	t.revealTimer = t.clock.AfterFunc(t.opts.TransitionReveal, func() { t.revealTransition(seq) })
	t.settleTimer = t.clock.AfterFunc(t.opts.TransitionSettle, func() { t.settleTransition(seq) })
}

func (t *Thread) stopTransitionLocked() {
	t.transitionSeq++
	if t.revealTimer != nil {
		t.revealTimer.Stop()
		t.revealTimer = nil
	}
	if t.settleTimer != nil {
		t.settleTimer.Stop()
		t.settleTimer = nil
	}
}

func (t *Thread) revealTransition(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || seq != t.transitionSeq || t.indicator.State != TypingTransition {
		return
	}
	t.indicator = t.indicator.Reveal()
	t.emitTypingLocked()
}

func (t *Thread) settleTransition(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || seq != t.transitionSeq {
		return
	}

	next, msg := t.indicator.Settle()
	t.indicator = next
	t.revealTimer, t.settleTimer = nil, nil

	if msg != nil && t.list.Upsert(*msg) {
		t.emitMessage(EventMessage, *msg)
	}
	t.emitTypingLocked()
}
