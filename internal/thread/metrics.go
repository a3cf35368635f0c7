package thread

import "github.com/prometheus/client_golang/prometheus"

// Metrics счетчики переписок. Nil-значение допустимо: все методы ничего не делают.
type Metrics struct {
	openThreads             prometheus.Gauge
	messagesSent            prometheus.Counter
	sendFailures            prometheus.Counter
	sendRejected            *prometheus.CounterVec
	readReceipts            prometheus.Counter
	notificationsCreated    prometheus.Counter
	notificationsSuppressed prometheus.Counter
	sideEffectErrors        *prometheus.CounterVec
	eventsDropped           prometheus.Counter
}

// NewMetrics создает и регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		openThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "open",
			Help:      "Currently open message threads.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "messages_sent_total",
			Help:      "Messages inserted by the send pipeline.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "send_failures_total",
			Help:      "Message inserts that failed.",
		}),
		sendRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "send_rejected_total",
			Help:      "Sends rejected before reaching the database.",
		}, []string{"reason"}),
		readReceipts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "read_receipts_total",
			Help:      "Messages transitioned to read.",
		}),
		notificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "notifications_created_total",
			Help:      "Grouped notifications written.",
		}),
		notificationsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "notifications_suppressed_total",
			Help:      "Notifications skipped because the recipient was viewing the thread.",
		}),
		sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "side_effect_errors_total",
			Help:      "Best-effort operations that failed.",
		}, []string{"op"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "thread",
			Name:      "events_dropped_total",
			Help:      "View events dropped because the consumer was too slow.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.openThreads,
			m.messagesSent,
			m.sendFailures,
			m.sendRejected,
			m.readReceipts,
			m.notificationsCreated,
			m.notificationsSuppressed,
			m.sideEffectErrors,
			m.eventsDropped,
		)
	}

	return m
}

func (m *Metrics) threadOpened() {
	if m != nil {
		m.openThreads.Inc()
	}
}

func (m *Metrics) threadClosed() {
	if m != nil {
		m.openThreads.Dec()
	}
}

func (m *Metrics) sent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) sendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Metrics) rejected(err error) {
	if m != nil {
		m.sendRejected.WithLabelValues(rejectReason(err)).Inc()
	}
}

func (m *Metrics) read(n int) {
	if m != nil && n > 0 {
		m.readReceipts.Add(float64(n))
	}
}

func (m *Metrics) notified() {
	if m != nil {
		m.notificationsCreated.Inc()
	}
}

func (m *Metrics) suppressed() {
	if m != nil {
		m.notificationsSuppressed.Inc()
	}
}

func (m *Metrics) sideEffectFailed(op string) {
	if m != nil {
		m.sideEffectErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}
