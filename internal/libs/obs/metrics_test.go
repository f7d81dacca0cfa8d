package obs

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserveCycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCycle("orders", OutcomeSuccess, "", 3, 10*time.Millisecond)
	m.ObserveCycle("orders", OutcomeEmpty, "", 0, time.Millisecond)
	m.ObserveCycle("orders", OutcomeFailed, "connection", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("orders", OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 success cycle, got %v", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues("orders", OutcomeEmpty)); got != 1 {
		t.Errorf("expected 1 empty cycle, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("orders", "connection")); got != 1 {
		t.Errorf("expected 1 connection failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.rowsEmitted.WithLabelValues("orders")); got != 3 {
		t.Errorf("expected 3 rows emitted, got %v", got)
	}
}

func TestMetricsCursorAndReconnect(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetCursor("orders", 42)
	m.ObserveReconnect("orders", nil)
	m.ObserveReconnect("orders", errors.New("refused"))

	if got := testutil.ToFloat64(m.cursor.WithLabelValues("orders")); got != 42 {
		t.Errorf("expected cursor 42, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconnects.WithLabelValues("orders", "error")); got != 1 {
		t.Errorf("expected 1 failed reconnect, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("orders", OutcomeSuccess, "", 1, time.Second)
	m.SetCursor("orders", 1)
	m.ObserveReconnect("orders", nil)
}
