package scanner

import "github.com/prometheus/client_golang/prometheus"

// Drop reasons, used as the "reason" label on the dropped-events counter.
const (
	DropUnresolvedInstrument = "unresolved_instrument"
	DropEmptyBookSide        = "empty_book_side"
	DropOutOfUniverse        = "out_of_universe"
	DropDegenerateReference  = "degenerate_reference"
)

// Metrics exposes engine counters to Prometheus.
type Metrics struct {
	events *prometheus.CounterVec
	alerts prometheus.Counter
	drops  *prometheus.CounterVec
}

// NewMetrics creates and registers the engine's counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movescan",
			Subsystem: "scanner",
			Name:      "events_total",
			Help:      "Feed events processed, by event type.",
		}, []string{"type"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movescan",
			Subsystem: "scanner",
			Name:      "alerts_fired_total",
			Help:      "Alerts emitted this session.",
		}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movescan",
			Subsystem: "scanner",
			Name:      "dropped_events_total",
			Help:      "Quote updates skipped without evaluation, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.events, m.alerts, m.drops)
	return m
}
