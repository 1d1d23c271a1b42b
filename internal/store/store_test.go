package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rybkagreen/pagetune/internal/orchestrator"
	"github.com/rybkagreen/pagetune/internal/stats"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())
}

func TestSaveAndLoadRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	rec := orchestrator.RunRecord{
		SessionID:    "s1",
		Caller:       "alice",
		State:        "completed",
		InitialScore: 38,
		FinalScore:   81,
		Cycles:       2,
		HTML:         "<html><head><title>ok</title></head><body></body></html>",
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Second),
	}
	require.NoError(t, db.SaveRun(ctx, rec))

	got, err := db.LatestRun(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Caller)
	assert.Equal(t, 38, got.InitialScore)
	assert.Equal(t, 81, got.FinalScore)
	assert.Equal(t, 2, got.Cycles)
	assert.Equal(t, started, got.StartedAt)
	assert.Contains(t, got.HTML, "<title>")
}

func TestLatestRunMissingSession(t *testing.T) {
	db := openTestDB(t)
	got, err := db.LatestRun(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestRunPicksNewest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for score := 40; score <= 60; score += 10 {
		require.NoError(t, db.SaveRun(ctx, orchestrator.RunRecord{
			SessionID:  "s1",
			State:      "completed",
			FinalScore: score,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		}))
	}

	got, err := db.LatestRun(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 60, got.FinalScore)
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveRun(ctx, orchestrator.RunRecord{
			SessionID:  "s1",
			State:      "completed",
			Cycles:     i,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		}))
	}

	runs, err := db.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 4, runs[0].Cycles, "newest first")
}

func TestStatsSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	none, err := db.LatestStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	s := stats.Summary{
		OptimizationsPerformed: 7,
		SuggestionsGenerated:   4,
		SuggestionsAccepted:    3,
		FixesApplied:           12,
		AverageProcessingMs:    220.5,
		AverageScoreGain:       18.25,
		SnapshotAt:             time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.SaveStats(ctx, s))

	got, err := db.LatestStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.OptimizationsPerformed)
	assert.Equal(t, 3, got.SuggestionsAccepted)
	assert.InDelta(t, 18.25, got.AverageScoreGain, 0.001)
}
