package thread

import "time"

// Options тайминги и лимиты переписки
type Options struct {
	// TypingIdle тишина после последнего нажатия, после которой публикуется typing=false
	TypingIdle time.Duration
	// HeartbeatInterval период обновления heartbeat в user_presence
	HeartbeatInterval time.Duration
	// PresenceFreshness получатель с heartbeat не старше этого срока не получает уведомление
	PresenceFreshness time.Duration
	// TransitionReveal задержка, после которой в пузыре набора появляется текст сообщения
	TransitionReveal time.Duration
	// TransitionSettle полная длительность перехода, после нее сообщение попадает в список
	TransitionSettle time.Duration
	// ConsecutiveCap сколько сообщений подряд кандидат может отправить без ответа
	ConsecutiveCap   int
	MaxMessageLength int
	EventBuffer      int
	ReadOnly         bool
}

// DefaultOptions значения по умолчанию
func DefaultOptions() Options {
	return Options{
		TypingIdle:        3 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		PresenceFreshness: 5 * time.Second,
		TransitionReveal:  300 * time.Millisecond,
		TransitionSettle:  800 * time.Millisecond,
		ConsecutiveCap:    3,
		MaxMessageLength:  500,
		EventBuffer:       256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TypingIdle <= 0 {
		o.TypingIdle = d.TypingIdle
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.PresenceFreshness <= 0 {
		o.PresenceFreshness = d.PresenceFreshness
	}
	if o.TransitionReveal <= 0 {
		o.TransitionReveal = d.TransitionReveal
	}
	if o.TransitionSettle <= o.TransitionReveal {
		o.TransitionSettle = o.TransitionReveal + (d.TransitionSettle - d.TransitionReveal)
	}
	if o.ConsecutiveCap <= 0 {
		o.ConsecutiveCap = d.ConsecutiveCap
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = d.EventBuffer
	}
	return o
}
