package realtime

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics выставляет счетчики шины в prometheus
func RegisterMetrics(reg prometheus.Registerer, m *Metrics) {
	counter := func(name, help string, v func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "secujob",
			Subsystem: "realtime",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v()) })
	}

	reg.MustRegister(
		counter("published_total", "Change events published to the bus.", m.Published.Load),
		counter("delivered_total", "Change events delivered to subscribers.", m.Delivered.Load),
		counter("dropped_total", "Change events dropped for slow subscribers.", m.Dropped.Load),
		counter("resyncs_total", "Resync markers sent to subscribers.", m.Resyncs.Load),
		counter("presence_syncs_total", "Presence states pushed to members.", m.PresenceSyncs.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "secujob",
			Subsystem: "realtime",
			Name:      "subscriptions",
			Help:      "Open message feed subscriptions.",
		}, func() float64 { return float64(m.Subscriptions.Load()) }),
	)
}

// RegisterHubMetrics комнаты и presence-подключения in-memory хаба
func RegisterHubMetrics(reg prometheus.Registerer, hub *Hub) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "secujob",
			Subsystem: "realtime",
			Name:      "rooms",
			Help:      "Thread rooms held by the in-memory hub.",
		}, func() float64 { return float64(hub.RoomCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "secujob",
			Subsystem: "realtime",
			Name:      "presence_members",
			Help:      "Presence connections joined across all rooms.",
		}, func() float64 {
			var n int
			for _, info := range hub.RoomsInfo() {
				n += info.PresenceConns
			}
			return float64(n)
		}),
	)
}
