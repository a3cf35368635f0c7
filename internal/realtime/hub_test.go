package realtime

import (
	"context"
	"testing"
	"time"

	"tush00nka/secujob_messaging/internal/model"
)

const waitTimeout = 2 * time.Second

func recvEvent(t *testing.T, sub MessageSubscription) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for change event")
	}
	return model.ChangeEvent{}
}

func recvState(t *testing.T, ch PresenceChannel) model.PresenceState {
	t.Helper()
	select {
	case st, ok := <-ch.Syncs():
		if !ok {
			t.Fatal("presence channel closed unexpectedly")
		}
		return st
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for presence sync")
	}
	return nil
}

func TestHub_PublishReachesThreadSubscribersOnly(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	subA, err := hub.SubscribeMessages(ctx, "apply-a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer subA.Close()
	subB, err := hub.SubscribeMessages(ctx, "apply-b")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer subB.Close()

	ev := model.ChangeEvent{
		Kind:    model.ChangeInsert,
		ApplyID: "apply-a",
		Message: model.Message{ID: "m1", ApplyID: "apply-a", Content: "Bonjour"},
	}
	if err := hub.PublishChange(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recvEvent(t, subA)
	if got.Message.ID != "m1" || got.Kind != model.ChangeInsert {
		t.Errorf("unexpected event: %+v", got)
	}

	select {
	case ev := <-subB.Events():
		t.Errorf("other thread received %+v", ev)
	default:
	}
}

func TestHub_OverflowDeliversSingleResync(t *testing.T) {
	hub := NewHub(HubOptions{SubscriberBuffer: 3})
	defer hub.Close()
	ctx := context.Background()

	sub, err := hub.SubscribeMessages(ctx, "apply-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	for i := 0; i < 6; i++ {
		_ = hub.PublishChange(ctx, model.ChangeEvent{Kind: model.ChangeInsert, ApplyID: "apply-1"})
	}

	kinds := []model.ChangeKind{recvEvent(t, sub).Kind, recvEvent(t, sub).Kind, recvEvent(t, sub).Kind}
	want := []model.ChangeKind{model.ChangeInsert, model.ChangeInsert, model.ChangeResync}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("expected buffer to be drained, got %+v", ev)
	default:
	}

	if hub.Metrics().Dropped.Load() != 4 {
		t.Errorf("dropped = %d, want 4", hub.Metrics().Dropped.Load())
	}

	// после вычитывания доставка возобновляется
	_ = hub.PublishChange(ctx, model.ChangeEvent{Kind: model.ChangeUpdate, ApplyID: "apply-1"})
	if ev := recvEvent(t, sub); ev.Kind != model.ChangeUpdate {
		t.Errorf("expected update after recovery, got %s", ev.Kind)
	}
}

func TestHub_CloseSubscriptionClosesChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub, err := hub.SubscribeMessages(context.Background(), "apply-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}

	room, ok := hub.GetRoomSafe("apply-1")
	if !ok {
		t.Fatal("room should still exist until cleanup")
	}
	if !room.IsEmpty() {
		t.Error("room should be empty after unsubscribe")
	}
}

func TestHub_PresenceSyncsAggregateState(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	alice, err := hub.JoinPresence(ctx, "apply-1", "conn-alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer alice.Close()

	if st := recvState(t, alice); len(st) != 0 {
		t.Fatalf("expected empty initial state, got %v", st)
	}

	bob, err := hub.JoinPresence(ctx, "apply-1", "conn-bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := bob.Track(ctx, model.TypingPayload{UserID: "bob", Typing: true}); err != nil {
		t.Fatalf("track: %v", err)
	}

	st := recvState(t, alice)
	if !st.AnyoneTypingExcept("alice") {
		t.Errorf("alice should see bob typing: %v", st)
	}
	if st.AnyoneTypingExcept("bob") {
		t.Errorf("bob's own typing must not count for bob: %v", st)
	}

	bob.Close()
	st = recvState(t, alice)
	if _, ok := st["conn-bob"]; ok {
		t.Errorf("bob should be gone after close: %v", st)
	}

	// канал закрывается после последнего непрочитанного состояния
	for range bob.Syncs() {
	}
}

func TestHub_PresenceCoalescesUnreadSyncs(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	member, err := hub.JoinPresence(ctx, "apply-1", "conn-1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer member.Close()

	for _, typing := range []bool{true, false, true} {
		if err := member.Track(ctx, model.TypingPayload{UserID: "u1", Typing: typing}); err != nil {
			t.Fatalf("track: %v", err)
		}
	}

	st := recvState(t, member)
	if !st["conn-1"].Typing {
		t.Errorf("expected latest state, got %v", st)
	}

	select {
	case extra := <-member.Syncs():
		t.Errorf("expected a single coalesced sync, got extra %v", extra)
	default:
	}
}

func TestHub_ClosedHubRejectsOperations(t *testing.T) {
	hub := NewHub()
	sub, err := hub.SubscribeMessages(context.Background(), "apply-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := hub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("subscriptions must be closed with the hub")
	}
	sub.Close()

	if _, err := hub.SubscribeMessages(context.Background(), "apply-1"); err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	if err := hub.PublishChange(context.Background(), model.ChangeEvent{ApplyID: "apply-1"}); err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}
