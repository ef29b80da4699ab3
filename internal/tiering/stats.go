package tiering

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DurationSummary reports duration percentiles for one action.
type DurationSummary struct {
	Count int64   `json:"count"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
}

// OperationStats tracks per-action operation durations with DDSketch so the
// status endpoint can report stable percentiles without keeping raw samples.
type OperationStats struct {
	mu       sync.Mutex
	sketches map[string]*ddsketch.DDSketch
	counts   map[string]int64
}

// NewOperationStats creates an empty stats tracker.
func NewOperationStats() *OperationStats {
	return &OperationStats{
		sketches: make(map[string]*ddsketch.DDSketch),
		counts:   make(map[string]int64),
	}
}

// Record adds one observed duration for an action.
func (s *OperationStats) Record(action string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sketch, ok := s.sketches[action]
	if !ok {
		var err error
		sketch, err = ddsketch.NewDefaultDDSketch(0.01)
		if err != nil {
			return
		}
		s.sketches[action] = sketch
	}

	ms := float64(d) / float64(time.Millisecond)
	if ms <= 0 {
		ms = 0.001
	}
	if err := sketch.Add(ms); err != nil {
		return
	}
	s.counts[action]++
}

// Summary returns percentile summaries for every recorded action.
func (s *OperationStats) Summary() map[string]DurationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]DurationSummary, len(s.sketches))
	for action, sketch := range s.sketches {
		p50, err50 := sketch.GetValueAtQuantile(0.50)
		p95, err95 := sketch.GetValueAtQuantile(0.95)
		p99, err99 := sketch.GetValueAtQuantile(0.99)
		if err50 != nil || err95 != nil || err99 != nil {
			continue
		}
		out[action] = DurationSummary{
			Count: s.counts[action],
			P50Ms: p50,
			P95Ms: p95,
			P99Ms: p99,
		}
	}
	return out
}
