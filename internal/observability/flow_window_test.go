package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFlowWindowSnapshot(t *testing.T) {
	w := newFlowWindow(8)
	w.Observe("report", 500)
	w.Observe("report", 16000)
	w.Observe("report", 900)
	w.Fallback("report")
	w.Observe("empathy", 40)

	snap := w.Snapshot(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Flows) != 2 || snap.Flows[0].Flow != "empathy" || snap.Flows[1].Flow != "report" {
		t.Fatalf("Flows = %+v, want empathy then report", snap.Flows)
	}
	r := snap.Flows[1]
	if r.Calls != 3 || r.Samples != 3 || r.Fallbacks != 1 {
		t.Fatalf("report counts = %+v", r)
	}
	if r.FallbackRatio != 0.33 {
		t.Fatalf("FallbackRatio = %.2f, want 0.33", r.FallbackRatio)
	}
	if r.LastMS != 900 || r.P50MS != 900 || r.P95MS != 16000 || r.MaxMS != 16000 {
		t.Fatalf("latency = %+v", r)
	}
	if r.BudgetMS != 15000 || r.OverBudget != 1 {
		t.Fatalf("budget = %.0f over = %d, want 15000 and 1", r.BudgetMS, r.OverBudget)
	}
	if e := snap.Flows[0]; e.FallbackRatio != 0 || e.OverBudget != 0 {
		t.Fatalf("empathy = %+v", e)
	}
}

func TestFlowWindowKeepsRecentSamples(t *testing.T) {
	w := newFlowWindow(2)
	w.Observe("empathy", 1)
	w.Observe("empathy", 2)
	w.Observe("empathy", 3)

	s := w.Snapshot(time.Now()).Flows[0]
	if s.Samples != 2 || s.Calls != 3 || s.P50MS != 2 || s.MaxMS != 3 || s.LastMS != 3 {
		t.Fatalf("stats = %+v, want the last two samples of three calls", s)
	}
}

func TestFlowWindowFallbackBeforeObserve(t *testing.T) {
	w := newFlowWindow(4)
	w.Fallback("mental_question")

	s := w.Snapshot(time.Now()).Flows[0]
	if s.Calls != 0 || s.Samples != 0 || s.FallbackRatio != 1 {
		t.Fatalf("stats = %+v, want a pending fallback with ratio 1", s)
	}
	w.Observe("mental_question", 10)
	if s := w.Snapshot(time.Now()).Flows[0]; s.FallbackRatio != 1 || s.Calls != 1 {
		t.Fatalf("stats = %+v, want ratio capped at 1", s)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionEvent("created")
	m.Fallback("report")
	m.ObserveGeneration("report", time.Second)
	if snap := m.SnapshotLatency(); len(snap.Flows) != 0 {
		t.Fatalf("nil metrics snapshot has flows: %+v", snap.Flows)
	}
}

func TestMetricsHandlerExposesNamespace(t *testing.T) {
	m := NewMetrics("anees_test")
	m.SessionEvent("created")
	m.ObserveGeneration("empathy", 120*time.Millisecond)
	m.Fallback("empathy")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `anees_test_session_events_total{event="created"} 1`) {
		t.Fatalf("missing session counter in:\n%s", body)
	}
	if !strings.Contains(body, "anees_test_generation_latency_ms_bucket") {
		t.Fatalf("missing latency histogram")
	}
	got := m.SnapshotLatency().Flows
	if len(got) != 1 || got[0].Flow != "empathy" || got[0].LastMS != 120 || got[0].FallbackRatio != 1 {
		t.Fatalf("latency window = %+v", got)
	}
}
