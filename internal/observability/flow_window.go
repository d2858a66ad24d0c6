package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// flowBudgetMS is the p95 latency each generation flow is expected to stay under.
var flowBudgetMS = map[string]float64{
	"empathy":              2500,
	"mental_question":      3000,
	"personality_question": 4000,
	"report":               15000,
}

// FlowStats summarizes one generation flow. Latency figures cover the most recent
// samples only; Calls and Fallbacks count since process start.
type FlowStats struct {
	Flow          string  `json:"flow"`
	Calls         int     `json:"calls"`
	Fallbacks     int     `json:"fallbacks"`
	FallbackRatio float64 `json:"fallback_ratio"`
	Samples       int     `json:"samples"`
	LastMS        float64 `json:"last_ms"`
	P50MS         float64 `json:"p50_ms"`
	P95MS         float64 `json:"p95_ms"`
	MaxMS         float64 `json:"max_ms"`
	BudgetMS      float64 `json:"budget_ms,omitempty"`
	OverBudget    int     `json:"over_budget"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time   `json:"generated_at"`
	WindowSize  int         `json:"window_size"`
	Flows       []FlowStats `json:"flows"`
}

type flowRing struct {
	samples   []float64
	pos       int
	last      float64
	calls     int
	fallbacks int
}

func (r *flowRing) push(ms float64, capacity int) {
	r.last = ms
	r.calls++
	if len(r.samples) < capacity {
		r.samples = append(r.samples, ms)
		return
	}
	r.samples[r.pos] = ms
	r.pos = (r.pos + 1) % capacity
}

// flowWindow tracks generation latency and fallback rates per flow.
type flowWindow struct {
	mu       sync.Mutex
	capacity int
	flows    map[string]*flowRing
}

func newFlowWindow(capacity int) *flowWindow {
	if capacity <= 0 {
		capacity = 256
	}
	return &flowWindow{capacity: capacity, flows: make(map[string]*flowRing)}
}

func (w *flowWindow) ring(flow string) *flowRing {
	r, ok := w.flows[flow]
	if !ok {
		r = &flowRing{}
		w.flows[flow] = r
	}
	return r
}

func (w *flowWindow) Observe(flow string, ms float64) {
	if flow == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	w.ring(flow).push(ms, w.capacity)
	w.mu.Unlock()
}

func (w *flowWindow) Fallback(flow string) {
	if flow == "" {
		return
	}
	w.mu.Lock()
	w.ring(flow).fallbacks++
	w.mu.Unlock()
}

func (w *flowWindow) Snapshot(now time.Time) LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := LatencySnapshot{GeneratedAt: now.UTC(), WindowSize: w.capacity, Flows: make([]FlowStats, 0, len(w.flows))}
	for flow, r := range w.flows {
		st := FlowStats{
			Flow:      flow,
			Calls:     r.calls,
			Fallbacks: r.fallbacks,
			Samples:   len(r.samples),
			LastMS:    round2(r.last),
			BudgetMS:  flowBudgetMS[flow],
		}
		// A fallback is counted before its call finishes, so cap the ratio.
		if r.calls > 0 {
			st.FallbackRatio = round2(math.Min(1, float64(r.fallbacks)/float64(r.calls)))
		} else if r.fallbacks > 0 {
			st.FallbackRatio = 1
		}
		if len(r.samples) > 0 {
			sorted := append([]float64(nil), r.samples...)
			sort.Float64s(sorted)
			st.P50MS = round2(nearestRank(sorted, 0.50))
			st.P95MS = round2(nearestRank(sorted, 0.95))
			st.MaxMS = round2(sorted[len(sorted)-1])
			if st.BudgetMS > 0 {
				st.OverBudget = len(sorted) - sort.SearchFloat64s(sorted, math.Nextafter(st.BudgetMS, math.Inf(1)))
			}
		}
		out.Flows = append(out.Flows, st)
	}
	sort.Slice(out.Flows, func(i, j int) bool { return out.Flows[i].Flow < out.Flows[j].Flow })
	return out
}

func nearestRank(sorted []float64, q float64) float64 {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
