package thread

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"tush00nka/secujob_messaging/internal/model"
)

// SendMessage отправляет сообщение. Ошибки из ErrRejected означают, что
// отправка не дошла до базы; ошибка вставки возвращается обернутой, черновик
// при этом сохраняется. Все, что идет после вставки, выполняется в фоне и
// на результат не влияет.
func (t *Thread) SendMessage(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if err := t.checkSendLocked(content); err != nil {
		t.mu.Unlock()
		t.metrics.rejected(err)
		return err
	}
	t.sending = true
	t.outbound.stop()
	t.outbound.typing = false
	t.mu.Unlock()

	// собеседник не должен видеть "печатает" для уже пришедшего сообщения
	t.track(ctx, false)

	msg := &model.Message{
		ApplyID:  t.applyID,
		SenderID: t.self.UserID,
		Content:  content,
	}
	err := t.deps.Messages.Create(ctx, msg)

	t.mu.Lock()
	t.sending = false
	if err != nil {
		t.mu.Unlock()
		t.metrics.sendFailed()
		t.logger.Printf("[thread] failed to send message in %s: %v", t.applyID, err)
		return fmt.Errorf("send message: %w", err)
	}

	t.metrics.sent()
	t.draft = ""
	t.outbound.afterSend = true

	// вставка подтверждена, эхо из ленты будет идемпотентным
	if !t.closed && t.list.Upsert(*msg) {
		t.emitMessage(EventMessage, *msg)
	}

	inline := t.closed
	if !inline {
		t.effects.Add(1)
	}
	t.mu.Unlock()

	sent := *msg
	effectsCtx := context.WithoutCancel(ctx)
	if inline {
		t.afterSend(effectsCtx, sent)
		return nil
	}

	go func() {
		defer t.effects.Done()
		t.afterSend(effectsCtx, sent)
	}()
	return nil
}

// CanSend можно ли сейчас отправить непустое сообщение
func (t *Thread) CanSend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.gateLocked() == nil
}

func (t *Thread) checkSendLocked(content string) error {
	if content == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > t.opts.MaxMessageLength {
		return ErrTooLong
	}
	return t.gateLocked()
}

// gateLocked ограничения, не зависящие от текста сообщения
func (t *Thread) gateLocked() error {
	if t.sending {
		return ErrSendInFlight
	}
	if t.opts.ReadOnly {
		return ErrReadOnly
	}
	if t.self.Role != model.RoleCandidate {
		return nil
	}
	if t.indicator.Pending == nil && !t.list.HasFromOther(t.self.UserID) {
		return ErrColdOpen
	}
	if t.consecutiveLocked() >= t.opts.ConsecutiveCap {
		return ErrConsecutiveCap
	}
	return nil
}

// consecutiveLocked сколько последних сообщений подряд отправил текущий пользователь.
// Сообщение собеседника в переходе уже считается ответом.
func (t *Thread) consecutiveLocked() int {
	return t.list.TrailingFrom(t.self.UserID, t.indicator.Pending)
}

// afterSend побочные эффекты отправки: отметка активности отклика и
// группированное уведомление получателю. Ошибки только логируются.
func (t *Thread) afterSend(ctx context.Context, msg model.Message) {
	now := t.clock.Now()

	if err := t.deps.Applications.Touch(ctx, t.applyID, now); err != nil {
		t.metrics.sideEffectFailed("touch_application")
		t.logger.Printf("[thread] failed to touch application %s: %v", t.applyID, err)
	}

	app, err := t.deps.Applications.GetWithParties(ctx, t.applyID)
	if err != nil {
		t.metrics.sideEffectFailed("load_application")
		t.logger.Printf("[thread] failed to load application %s: %v", t.applyID, err)
		return
	}

	recipient := app.OtherParty(t.self.UserID)
	if recipient == "" {
		return
	}

	seen, ok, err := t.deps.Presence.LastSeen(ctx, recipient, t.applyID)
	if err != nil {
		// присутствие неизвестно, считаем получателя отсутствующим
		t.metrics.sideEffectFailed("presence_check")
		t.logger.Printf("[thread] failed to check presence of %s in %s: %v", recipient, t.applyID, err)
	} else if ok && !seen.Before(now.Add(-t.opts.PresenceFreshness)) {
		t.metrics.suppressed()
		return
	}

	unread, err := t.deps.Messages.CountUnreadFrom(ctx, t.applyID, t.self.UserID)
	if err != nil {
		t.metrics.sideEffectFailed("count_unread")
		t.logger.Printf("[thread] failed to count unread messages in %s: %v", t.applyID, err)
		return
	}

	n := model.Notification{
		RecipientID: recipient,
		ActorID:     t.self.UserID,
		Type:        model.NotificationTypeMessage,
		Title:       app.NotificationTitle(recipient),
		Body:        NotificationBody(unread),
		EntityType:  model.EntityTypeMessage,
		EntityID:    t.applyID,
	}
	if err := t.deps.Notifications.ReplaceForThread(ctx, &n); err != nil {
		t.metrics.sideEffectFailed("replace_notification")
		t.logger.Printf("[thread] failed to write notification for %s in %s: %v", recipient, t.applyID, err)
		return
	}
	t.metrics.notified()

	if t.deps.Sink != nil {
		if err := t.deps.Sink.NotificationCreated(ctx, n); err != nil {
			t.metrics.sideEffectFailed("notification_sink")
			t.logger.Printf("[thread] failed to hand off notification %s: %v", n.ID, err)
		}
	}
}

// NotificationBody текст уведомления по числу непрочитанных сообщений
func NotificationBody(unread int64) string {
	if unread <= 1 {
		return "Nouveau message"
	}
	return fmt.Sprintf("%d nouveaux messages", unread)
}
