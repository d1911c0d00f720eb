package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Ingested(3)
	m.Dropped(DropQueueFull)
	m.Transition("distracted", 0)
	m.Transition("focused", 1500)
	m.SessionOpened()

	if got := testutil.ToFloat64(m.SamplesIngested); got != 3 {
		t.Errorf("samples ingested = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.SamplesDropped.WithLabelValues(DropQueueFull)); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.DistractionSeconds); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Ingested(1)
	m.Dropped(DropRejected)
	m.Transition("focused", 10)
	m.SessionOpened()
	m.SessionClosed()
	m.Connected("candidate", 1)
	m.Export("ok")
}

func TestHandler(t *testing.T) {
	m := New()
	m.Export("ok")
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `attention_report_exports_total{result="ok"} 1`) {
		t.Errorf("metrics output missing export counter:\n%s", w.Body.String())
	}
}
