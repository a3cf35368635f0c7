package thread

import "tush00nka/secujob_messaging/internal/model"

// TypingState состояние индикатора набора собеседника
type TypingState int

const (
	TypingIdle TypingState = iota
	TypingPeer
	// TypingTransition пузырь "печатает..." превращается в пришедшее сообщение
	TypingTransition
)

func (s TypingState) String() string {
	switch s {
	case TypingPeer:
		return "peer_typing"
	case TypingTransition:
		return "transition"
	default:
		return "idle"
	}
}

// Indicator индикатор набора как одно состояние. Все переходы чистые,
// таймеры живут в Thread и только вызывают Reveal и Settle.
type Indicator struct {
	State    TypingState
	Pending  *model.Message
	Revealed bool

	// peerTyping последнее значение из presence, переживает переход
	peerTyping bool
}

// Presence применяет агрегированный флаг набора собеседника.
// Идущий переход не прерывается, флаг учитывается при Settle.
func (ind Indicator) Presence(typing bool) Indicator {
	ind.peerTyping = typing
	if ind.State == TypingTransition {
		return ind
	}
	if typing {
		ind.State = TypingPeer
	} else {
		ind.State = TypingIdle
	}
	return ind
}

// PeerMessage применяет новое сообщение собеседника и возвращает сообщения,
// которые нужно сразу добавить в список. Если собеседник печатал, сообщение
// задерживается в переходе; если переход уже шел, он завершается досрочно.
func (ind Indicator) PeerMessage(msg model.Message) (Indicator, []model.Message) {
	switch ind.State {
	case TypingPeer:
		return Indicator{State: TypingTransition, Pending: &msg}, nil
	case TypingTransition:
		return Indicator{State: TypingIdle}, []model.Message{*ind.Pending, msg}
	default:
		return Indicator{State: TypingIdle}, []model.Message{msg}
	}
}

// Reveal показывает текст сообщения в пузыре перехода
func (ind Indicator) Reveal() Indicator {
	if ind.State == TypingTransition {
		ind.Revealed = true
	}
	return ind
}

// Settle завершает переход и отдает задержанное сообщение
func (ind Indicator) Settle() (Indicator, *model.Message) {
	if ind.State != TypingTransition {
		return ind, nil
	}

	next := Indicator{State: TypingIdle, peerTyping: ind.peerTyping}
	if ind.peerTyping {
		next.State = TypingPeer
	}
	return next, ind.Pending
}

// UpdatePending применяет обновление к задержанному сообщению
func (ind Indicator) UpdatePending(msg model.Message) (Indicator, bool) {
	if ind.Pending == nil || ind.Pending.ID != msg.ID {
		return ind, false
	}
	merged := mergeMessage(*ind.Pending, msg)
	ind.Pending = &merged
	return ind, true
}

func (ind Indicator) pendingID() string {
	if ind.Pending == nil {
		return ""
	}
	return ind.Pending.ID
}

// TypingView то, что видит интерфейс
type TypingView struct {
	State    TypingState    `json:"-"`
	Name     string         `json:"state"`
	Pending  *model.Message `json:"pending,omitempty"`
	Revealed bool           `json:"revealed"`
}

func (ind Indicator) View() TypingView {
	v := TypingView{State: ind.State, Name: ind.State.String(), Revealed: ind.Revealed}
	if ind.Pending != nil {
		p := *ind.Pending
		v.Pending = &p
	}
	return v
}
