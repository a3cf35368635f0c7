package thread

import (
	"context"
	"log"
	"time"

	"tush00nka/secujob_messaging/internal/model"
	"tush00nka/secujob_messaging/internal/realtime"

	"github.com/jonboulle/clockwork"
)

type MessageStore interface {
	ListByThread(ctx context.Context, applyID string) ([]model.Message, error)
	Create(ctx context.Context, msg *model.Message) error
	MarkRead(ctx context.Context, ids []string) ([]model.Message, error)
	CountUnreadFrom(ctx context.Context, applyID, senderID string) (int64, error)
}

type NotificationStore interface {
	ReplaceForThread(ctx context.Context, n *model.Notification) error
	MarkThreadRead(ctx context.Context, recipientID, applyID string, at time.Time) (int64, error)
}

type PresenceStore interface {
	Touch(ctx context.Context, userID, applyID string, at time.Time) error
	LastSeen(ctx context.Context, userID, applyID string) (time.Time, bool, error)
}

type ApplicationStore interface {
	GetWithParties(ctx context.Context, applyID string) (*model.Application, error)
	Touch(ctx context.Context, applyID string, at time.Time) error
}

// Realtime подписки, которыми владеет одна открытая переписка
type Realtime interface {
	SubscribeMessages(ctx context.Context, applyID string) (realtime.MessageSubscription, error)
	JoinPresence(ctx context.Context, applyID, connID string) (realtime.PresenceChannel, error)
}

// NotificationSink получает уже записанное уведомление (например, для push)
type NotificationSink interface {
	NotificationCreated(ctx context.Context, n model.Notification) error
}

// Deps внешние зависимости переписки. Sink, Clock, Logger и Metrics необязательны.
type Deps struct {
	Messages      MessageStore
	Notifications NotificationStore
	Presence      PresenceStore
	Applications  ApplicationStore
	Realtime      Realtime
	Sink          NotificationSink
	Clock         clockwork.Clock
	Logger        *log.Logger
	Metrics       *Metrics
}

// Identity текущий пользователь переписки
type Identity struct {
	UserID string
	Role   model.Role
	Token  string
}
