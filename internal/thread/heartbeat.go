package thread

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// heartbeatLoop обновляет heartbeat сразу и затем каждые HeartbeatInterval
func (t *Thread) heartbeatLoop(ctx context.Context, ticker clockwork.Ticker) {
	defer t.loops.Done()
	defer ticker.Stop()

	t.touchPresence(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.touchPresence(ctx)
		}
	}
}

func (t *Thread) touchPresence(ctx context.Context) {
	if err := t.deps.Presence.Touch(ctx, t.self.UserID, t.applyID, t.clock.Now()); err != nil {
		if ctx.Err() != nil {
			return
		}
		t.metrics.sideEffectFailed("heartbeat")
		t.logger.Printf("[thread] heartbeat for %s failed: %v", t.applyID, err)
	}
}
