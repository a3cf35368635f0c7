// Package realtime доставляет ленту изменений сообщений и presence-состояние
// участникам переписки. Есть две реализации: Hub в памяти процесса и RedisBus
// поверх Redis pub/sub для нескольких инстансов.
package realtime

import (
	"context"
	"fmt"

	"tush00nka/secujob_messaging/internal/model"
)

// MessageSubscription подписка на ленту изменений одной переписки.
// Канал Events закрывается после Close.
type MessageSubscription interface {
	Events() <-chan model.ChangeEvent
	Close()
}

// PresenceChannel участие соединения в presence-канале переписки.
// Syncs отдает последнее агрегированное состояние, промежуточные схлопываются.
type PresenceChannel interface {
	Track(ctx context.Context, payload model.TypingPayload) error
	Syncs() <-chan model.PresenceState
	Close()
}

type Bus interface {
	PublishChange(ctx context.Context, ev model.ChangeEvent) error
	SubscribeMessages(ctx context.Context, applyID string) (MessageSubscription, error)
	JoinPresence(ctx context.Context, applyID, connID string) (PresenceChannel, error)
	Close() error
}

var (
	_ Bus = (*Hub)(nil)
	_ Bus = (*RedisBus)(nil)
)

func messagesChannel(applyID string) string {
	return fmt.Sprintf("thread:%s:messages", applyID)
}

func presenceKey(applyID string) string {
	return fmt.Sprintf("thread:%s:presence", applyID)
}

func presenceSyncChannel(applyID string) string {
	return fmt.Sprintf("thread:%s:presence_sync", applyID)
}

func cloneState(s model.PresenceState) model.PresenceState {
	out := make(model.PresenceState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
