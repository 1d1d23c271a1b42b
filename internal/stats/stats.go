// Package stats accumulates run counters across optimization sessions.
package stats

import (
	"sync"
	"time"
)

// Summary is a point-in-time view of the collected counters.
type Summary struct {
	OptimizationsPerformed int       `json:"optimizations_performed"`
	SuggestionsGenerated   int       `json:"suggestions_generated"`
	SuggestionsAccepted    int       `json:"suggestions_accepted"`
	FixesApplied           int       `json:"fixes_applied"`
	AverageProcessingMs    float64   `json:"average_processing_ms"`
	AverageScoreGain       float64   `json:"average_score_gain"`
	SnapshotAt             time.Time `json:"snapshot_at"`
}

// Collector aggregates counters from concurrent optimization runs.
// A session contributes once, when its run reaches a terminal state.
type Collector struct {
	mu sync.Mutex

	optimizations int
	suggestions   int
	accepted      int
	fixes         int

	totalProcessing time.Duration
	totalGain       int
	gainSamples     int
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRun registers one completed optimization run. Score regressions
// count as zero gain so a single bad run cannot drag the average below
// the floor.
func (c *Collector) RecordRun(initialScore, finalScore int, elapsed time.Duration) {
	gain := finalScore - initialScore
	if gain < 0 {
		gain = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.optimizations++
	c.totalProcessing += elapsed
	c.totalGain += gain
	c.gainSamples++
}

// RecordSuggestion counts one AI suggestion round trip and whether the
// candidate was adopted.
func (c *Collector) RecordSuggestion(accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestions++
	if accepted {
		c.accepted++
	}
}

// RecordFixes counts automatic repairs applied during a cycle.
func (c *Collector) RecordFixes(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixes += n
}

// Summary returns the current aggregate view.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		OptimizationsPerformed: c.optimizations,
		SuggestionsGenerated:   c.suggestions,
		SuggestionsAccepted:    c.accepted,
		FixesApplied:           c.fixes,
		SnapshotAt:             time.Now(),
	}
	if c.optimizations > 0 {
		s.AverageProcessingMs = float64(c.totalProcessing.Milliseconds()) / float64(c.optimizations)
	}
	if c.gainSamples > 0 {
		s.AverageScoreGain = float64(c.totalGain) / float64(c.gainSamples)
	}
	return s
}
