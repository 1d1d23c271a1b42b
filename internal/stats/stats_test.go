package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCountsEveryRun(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 5; i++ {
		c.RecordRun(40, 80, 100*time.Millisecond)
	}

	s := c.Summary()
	assert.Equal(t, 5, s.OptimizationsPerformed)
	assert.InDelta(t, 100, s.AverageProcessingMs, 0.01)
	assert.InDelta(t, 40, s.AverageScoreGain, 0.01)
}

func TestCollectorClampsRegressionsToZeroGain(t *testing.T) {
	c := NewCollector()
	c.RecordRun(50, 90, time.Second)
	c.RecordRun(70, 30, time.Second)

	s := c.Summary()
	assert.InDelta(t, 20, s.AverageScoreGain, 0.01, "regression counts as zero, not negative")
}

func TestCollectorSuggestionAcceptance(t *testing.T) {
	c := NewCollector()
	c.RecordSuggestion(true)
	c.RecordSuggestion(false)
	c.RecordSuggestion(true)

	s := c.Summary()
	assert.Equal(t, 3, s.SuggestionsGenerated)
	assert.Equal(t, 2, s.SuggestionsAccepted)
}

func TestCollectorFixes(t *testing.T) {
	c := NewCollector()
	c.RecordFixes(3)
	c.RecordFixes(0)
	c.RecordFixes(-1)
	c.RecordFixes(2)

	assert.Equal(t, 5, c.Summary().FixesApplied)
}

func TestCollectorEmpty(t *testing.T) {
	s := NewCollector().Summary()
	assert.Zero(t, s.OptimizationsPerformed)
	assert.Zero(t, s.AverageProcessingMs)
	assert.Zero(t, s.AverageScoreGain)
}

func TestCollectorConcurrentRecords(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordRun(10, 20, time.Millisecond)
			c.RecordSuggestion(true)
		}()
	}
	wg.Wait()

	s := c.Summary()
	assert.Equal(t, 20, s.OptimizationsPerformed)
	assert.Equal(t, 20, s.SuggestionsGenerated)
}
