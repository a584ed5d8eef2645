package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stage names recorded by the orchestrators.
const (
	StageRecognition = "recognition"
	StageCompletion  = "completion"
	StageSynthesis   = "synthesis"
	StageVoiceTurn   = "voice_turn"
)

// pipelineStages lists the tracked stages in the order a voice turn runs
// them, with the p95 each one is expected to stay under.
var pipelineStages = []struct {
	name      string
	targetP95 time.Duration
}{
	{StageRecognition, 10 * time.Second},
	{StageCompletion, 2500 * time.Millisecond},
	{StageSynthesis, 1500 * time.Millisecond},
	{StageVoiceTurn, 12 * time.Second},
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type OutcomeCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageStats   `json:"stages"`
	Outcomes    []OutcomeCount `json:"outcomes,omitempty"`
}

// latencyWindow holds the most recent durations of each pipeline stage.
// Stages outside pipelineStages are not tracked.
type latencyWindow struct {
	mu       sync.Mutex
	size     int
	samples  map[string][]time.Duration
	outcomes map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 128
	}
	w := &latencyWindow{
		size:     size,
		samples:  make(map[string][]time.Duration, len(pipelineStages)),
		outcomes: make(map[string]int),
	}
	for _, s := range pipelineStages {
		w.samples[s.name] = make([]time.Duration, 0, size)
	}
	return w
}

func (w *latencyWindow) observe(stage string, d time.Duration) {
	if d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	buf, ok := w.samples[stage]
	if !ok {
		return
	}
	if len(buf) == w.size {
		buf = append(buf[:0], buf[1:]...)
	}
	w.samples[stage] = append(buf, d)
}

func (w *latencyWindow) count(outcome string) {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return
	}
	w.mu.Lock()
	w.outcomes[outcome]++
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(pipelineStages)),
	}
	for _, s := range pipelineStages {
		buf := w.samples[s.name]
		if len(buf) == 0 {
			continue
		}
		sorted := append([]time.Duration(nil), buf...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var total time.Duration
		for _, d := range sorted {
			total += d
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:       s.name,
			Samples:     len(sorted),
			LastMS:      millis(buf[len(buf)-1]),
			AvgMS:       millis(total / time.Duration(len(sorted))),
			P50MS:       millis(nearestRank(sorted, 0.50)),
			P95MS:       millis(nearestRank(sorted, 0.95)),
			MaxMS:       millis(sorted[len(sorted)-1]),
			TargetP95MS: millis(s.targetP95),
		})
	}

	for name, n := range w.outcomes {
		snap.Outcomes = append(snap.Outcomes, OutcomeCount{Name: name, Count: n})
	}
	sort.Slice(snap.Outcomes, func(i, j int) bool { return snap.Outcomes[i].Name < snap.Outcomes[j].Name })
	return snap
}

// nearestRank expects an ascending, non-empty slice.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
