package thread

import "tush00nka/secujob_messaging/internal/model"

type EventType string

const (
	EventHistory        EventType = "history"
	EventMessage        EventType = "message"
	EventMessageUpdated EventType = "message_updated"
	EventTyping         EventType = "typing"
)

// Event изменение представления переписки
type Event struct {
	Type     EventType       `json:"type"`
	Messages []model.Message `json:"messages,omitempty"`
	Message  *model.Message  `json:"message,omitempty"`
	Typing   *TypingView     `json:"typing,omitempty"`
}

// View снимок состояния переписки
type View struct {
	Messages         []model.Message `json:"messages"`
	Typing           TypingView      `json:"typing"`
	PeerTyping       bool            `json:"peer_typing"`
	ConsecutiveCount int             `json:"consecutive_count"`
	CanSend          bool            `json:"can_send"`
	Sending          bool            `json:"sending"`
	ReadOnly         bool            `json:"read_only"`
	Draft            string          `json:"draft"`
}

// emit не блокируется: медленный потребитель теряет события, а не тормозит переписку
func (t *Thread) emit(ev Event) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	if t.eventsClosed {
		return
	}

	select {
	case t.events <- ev:
	default:
		t.metrics.dropped()
		t.logger.Printf("[thread] dropped %s event for %s: consumer is too slow", ev.Type, t.applyID)
	}
}

func (t *Thread) emitMessage(typ EventType, msg model.Message) {
	t.emit(Event{Type: typ, Message: &msg})
}

func (t *Thread) emitTypingLocked() {
	v := t.indicator.View()
	t.emit(Event{Type: EventTyping, Typing: &v})
}
