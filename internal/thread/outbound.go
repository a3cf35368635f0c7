package thread

import (
	"context"
	"time"

	"tush00nka/secujob_messaging/internal/model"

	"github.com/jonboulle/clockwork"
)

// outboundTyping собственный индикатор набора, публикуемый в presence-канал
type outboundTyping struct {
	timer     clockwork.Timer
	seq       uint64
	typing    bool
	lastTrack time.Time
	// afterSend следующий пустой текст пришел от очистки поля после отправки
	afterSend bool
}

func (o *outboundTyping) stop() {
	o.seq++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// HandleTyping вызывается на каждое изменение текста в поле ввода
func (t *Thread) HandleTyping(ctx context.Context, text string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	t.draft = text

	if text == "" {
		t.outbound.stop()
		if t.outbound.afterSend {
			// отправка уже опубликовала typing=false
			t.outbound.afterSend = false
			t.mu.Unlock()
			return
		}
		t.outbound.typing = false
		t.mu.Unlock()
		t.track(ctx, false)
		return
	}

	t.outbound.afterSend = false
	t.outbound.stop()
	seq := t.outbound.seq
	t.outbound.timer = t.clock.AfterFunc(t.opts.TypingIdle, func() { t.typingIdle(seq) })

	now := t.clock.Now()
	// повторяем true не чаще раза в TypingIdle, чтобы запись в канале не устаревала
	publish := !t.outbound.typing || now.Sub(t.outbound.lastTrack) >= t.opts.TypingIdle
	if publish {
		t.outbound.typing = true
		t.outbound.lastTrack = now
	}
	t.mu.Unlock()

	if publish {
		t.track(ctx, true)
	}
}

// typingIdle истек таймер тишины после последнего нажатия
func (t *Thread) typingIdle(seq uint64) {
	t.mu.Lock()
	if t.closed || seq != t.outbound.seq {
		t.mu.Unlock()
		return
	}
	t.outbound.timer = nil
	t.outbound.typing = false
	ctx := t.ctx
	t.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	t.track(ctx, false)
}

func (t *Thread) track(ctx context.Context, typing bool) {
	t.mu.Lock()
	presence := t.presence
	t.mu.Unlock()

	if presence == nil {
		return
	}

	payload := model.TypingPayload{UserID: t.self.UserID, Typing: typing}
	if err := presence.Track(ctx, payload); err != nil {
		t.metrics.sideEffectFailed("track_typing")
		t.logger.Printf("[thread] failed to publish typing=%t for %s: %v", typing, t.applyID, err)
	}
}
