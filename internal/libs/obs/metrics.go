package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes reported to metrics
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// Metrics holds the poll cycle collectors
type Metrics struct {
	cycles       *prometheus.CounterVec
	failures     *prometheus.CounterVec
	rowsEmitted  *prometheus.CounterVec
	cursor       *prometheus.GaugeVec
	cycleSeconds *prometheus.HistogramVec
	reconnects   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Use prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlpoll",
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome (success, empty, failed)",
		}, []string{"source", "outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlpoll",
			Name:      "cycle_failures_total",
			Help:      "Failed poll cycles by failure kind",
		}, []string{"source", "kind"}),
		rowsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlpoll",
			Name:      "rows_emitted_total",
			Help:      "Rows accepted by the sink",
		}, []string{"source"}),
		cursor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sqlpoll",
			Name:      "cursor_value",
			Help:      "Last persisted cursor value",
		}, []string{"source"}),
		cycleSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sqlpoll",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"source"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlpoll",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after connection failures",
		}, []string{"source", "result"}),
	}
}

// ObserveCycle records one finished cycle. kind is empty unless the outcome is failed.
func (m *Metrics) ObserveCycle(source, outcome, kind string, rows int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(source, outcome).Inc()
	m.cycleSeconds.WithLabelValues(source).Observe(elapsed.Seconds())
	if outcome == OutcomeFailed {
		m.failures.WithLabelValues(source, kind).Inc()
		return
	}
	m.rowsEmitted.WithLabelValues(source).Add(float64(rows))
}

// SetCursor records the persisted cursor
func (m *Metrics) SetCursor(source string, value int64) {
	if m == nil {
		return
	}
	m.cursor.WithLabelValues(source).Set(float64(value))
}

// ObserveReconnect records a reconnect attempt
func (m *Metrics) ObserveReconnect(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconnects.WithLabelValues(source, result).Inc()
}
