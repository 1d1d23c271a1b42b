package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rybkagreen/pagetune/internal/bus"
	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/session"
	"github.com/rybkagreen/pagetune/internal/stats"
	"github.com/rybkagreen/pagetune/internal/suggest"
)

const barePage = `<html><head></head><body><p>hi</p></body></html>`

// sparsePage scores poorly but is large enough that repairs fit under
// the doubled-size cap.
func sparsePage() string {
	words := strings.Repeat("notes on slow mornings and fresh coffee at home ", 12)
	return `<html><head></head><body><p>` + words + `</p></body></html>`
}

// polishedPage satisfies every analyzer: full metadata, social tags,
// enough body copy and an internal link.
func polishedPage() string {
	body := strings.Repeat("rich coffee brewing advice for patient home baristas ", 40)
	return `<!DOCTYPE html><html lang="en"><head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Artisan Coffee Brewing Guide for Home Baristas</title>
<meta name="description" content="Learn how to brew rich artisan coffee at home with simple tools, from grind size to water temperature.">
<meta property="og:title" content="Artisan Coffee Brewing Guide">
<meta property="og:description" content="Brew rich artisan coffee at home with simple tools.">
<meta property="og:type" content="article">
<meta property="og:url" content="https://example.com/coffee">
<meta property="og:image" content="https://example.com/coffee.jpg">
<meta name="twitter:card" content="summary">
<meta name="twitter:title" content="Artisan Coffee Brewing Guide">
<meta name="twitter:description" content="Brew rich artisan coffee at home.">
<style>body{margin:0}</style>
</head><body>
<h1>Artisan Coffee Brewing Guide</h1>
<p>` + body + `</p>
<a href="/grinders">Grinder reviews</a>
</body></html>`
}

type stubSuggester struct {
	mu    sync.Mutex
	calls int
	fn    func(req suggest.Request) (string, error)
}

func (s *stubSuggester) Suggest(_ context.Context, req suggest.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(req)
}

func (s *stubSuggester) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testOptimization() config.Optimization {
	return config.Optimization{
		MinScoreThreshold:       75,
		CriticalIssuesAutoFix:   true,
		OptimizationCyclesLimit: 3,
		AISuggestionsThreshold:  60,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.Optimization, opts ...Option) (*Orchestrator, *bus.Bus, *stats.Collector) {
	t.Helper()
	events := bus.New()
	collector := stats.NewCollector()
	reg := session.NewRegistry(0, time.Hour)
	o := New(reg, events, collector, cfg, opts...)
	t.Cleanup(func() {
		o.Stop()
		events.Close()
	})
	return o, events, collector
}

func TestCreateRejectsEmptyHTML(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptimization())
	_, err := o.Create(StartRequest{HTML: "  \n "})
	var ve *session.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "validation_error", ve.Kind())
}

func TestCreateGeneratesIDWhenAbsent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{HTML: barePage})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
}

func TestHighScoringPageCompletesWithoutCycles(t *testing.T) {
	o, _, collector := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: polishedPage()})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, session.StateCompleted, s.State())
	assert.Equal(t, 0, s.Cycles())

	snap := s.Snapshot()
	require.NotNil(t, snap.FinalScore)
	assert.GreaterOrEqual(t, *snap.FinalScore, 75)
	assert.Equal(t, 1, collector.Summary().OptimizationsPerformed)
}

func TestFixPassImprovesSparsePage(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: sparsePage()})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, session.StateCompleted, s.State())
	assert.LessOrEqual(t, s.Cycles(), 3)

	snap := s.Snapshot()
	require.NotNil(t, snap.InitialScore)
	require.NotNil(t, snap.FinalScore)
	assert.Greater(t, *snap.FinalScore, *snap.InitialScore)
	assert.Contains(t, s.HTML(), "<title>")
}

func TestFixCycleRepairsBareMinimumPage(t *testing.T) {
	// Even a tiny page whose repairs more than double its size must come
	// out of the first fix cycle with the critical metadata in place.
	o, _, _ := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	html := s.HTML()
	assert.Contains(t, html, "<title>")
	assert.Contains(t, html, `name="description"`)
	assert.Contains(t, html, "<h1>")

	snap := s.Snapshot()
	require.NotNil(t, snap.InitialScore)
	require.NotNil(t, snap.FinalScore)
	assert.Less(t, *snap.InitialScore, 40)
	assert.Greater(t, *snap.FinalScore, *snap.InitialScore)
}

func TestSuggestionAdoptedWhenNotWorse(t *testing.T) {
	stub := &stubSuggester{fn: func(req suggest.Request) (string, error) {
		return polishedPage(), nil
	}}
	cfg := testOptimization()
	cfg.AISuggestionsThreshold = 101
	o, _, collector := newTestOrchestrator(t, cfg, WithSuggester(stub))

	// A generous cap so the polished rewrite fits.
	big := barePage + strings.Repeat("<!-- pad -->", 200)
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: big})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, session.StateCompleted, s.State())
	assert.GreaterOrEqual(t, stub.callCount(), 1)
	assert.Contains(t, s.HTML(), "Artisan Coffee")
	assert.Equal(t, collector.Summary().SuggestionsAccepted, collector.Summary().SuggestionsGenerated)
}

func TestSuggestionRejectedWhenWorse(t *testing.T) {
	// An empty document scores far below the repaired page; the working
	// HTML must survive the rejected candidate untouched.
	stub := &stubSuggester{fn: func(req suggest.Request) (string, error) {
		return "<html></html>", nil
	}}
	cfg := testOptimization()
	cfg.AISuggestionsThreshold = 101
	cfg.MinScoreThreshold = 101
	o, _, collector := newTestOrchestrator(t, cfg, WithSuggester(stub))

	s, err := o.Create(StartRequest{SessionID: "s1", HTML: sparsePage()})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	assert.NotEqual(t, "<html></html>", s.HTML())
	assert.Contains(t, s.HTML(), "<title>")
	sum := collector.Summary()
	assert.Greater(t, sum.SuggestionsGenerated, 0)
	assert.Zero(t, sum.SuggestionsAccepted)
}

func TestSuggestionTieIsAccepted(t *testing.T) {
	// Echoing the current HTML back keeps the score level; a tie is
	// accepted rather than rejected so a lateral rewrite can stand.
	stub := &stubSuggester{fn: func(req suggest.Request) (string, error) {
		return req.HTML, nil
	}}
	cfg := testOptimization()
	cfg.AISuggestionsThreshold = 101
	cfg.MinScoreThreshold = 101
	cfg.OptimizationCyclesLimit = 1
	o, _, collector := newTestOrchestrator(t, cfg, WithSuggester(stub))

	s, err := o.Create(StartRequest{SessionID: "s1", HTML: sparsePage()})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	sum := collector.Summary()
	assert.Equal(t, 1, sum.SuggestionsGenerated)
	assert.Equal(t, 1, sum.SuggestionsAccepted)
}

func TestSuggestionRejectedWhenOversized(t *testing.T) {
	stub := &stubSuggester{fn: func(req suggest.Request) (string, error) {
		// Same page padded past twice the original size. Equal score,
		// over the cap.
		return req.HTML + strings.Repeat("<!-- padding -->", 1000), nil
	}}
	cfg := testOptimization()
	cfg.AISuggestionsThreshold = 101
	cfg.MinScoreThreshold = 101
	cfg.OptimizationCyclesLimit = 1
	o, _, collector := newTestOrchestrator(t, cfg, WithSuggester(stub))

	s, err := o.Create(StartRequest{SessionID: "s1", HTML: sparsePage()})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	assert.NotContains(t, s.HTML(), "<!-- padding -->")
	assert.Greater(t, collector.Summary().SuggestionsGenerated, 0)
	assert.Zero(t, collector.Summary().SuggestionsAccepted)
}

func TestProviderFailureDoesNotFailRun(t *testing.T) {
	stub := &stubSuggester{fn: func(suggest.Request) (string, error) {
		return "", &suggest.Failure{Reason: suggest.ReasonProvider, Message: "upstream 500"}
	}}
	cfg := testOptimization()
	cfg.AISuggestionsThreshold = 101
	o, events, _ := newTestOrchestrator(t, cfg, WithSuggester(stub))

	sub := events.Subscribe(bus.Filter{SessionID: "s1", Types: []bus.EventType{bus.EventErrorOccurred}})
	defer events.Unsubscribe(sub)

	s, err := o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, session.StateCompleted, s.State())

	select {
	case e := <-sub.C:
		assert.Equal(t, bus.EventErrorOccurred, e.Type)
		assert.Contains(t, e.Message, "upstream 500")
	case <-time.After(time.Second):
		t.Fatal("expected an error event")
	}
}

func TestCancelDuringSuggestionKeepsLastReport(t *testing.T) {
	var sess *session.Session
	stub := &stubSuggester{fn: func(req suggest.Request) (string, error) {
		sess.Cancel()
		return polishedPage(), nil
	}}
	cfg := testOptimization()
	cfg.AISuggestionsThreshold = 101
	cfg.MinScoreThreshold = 101
	o, _, _ := newTestOrchestrator(t, cfg, WithSuggester(stub))

	var err error
	sess, err = o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), sess))

	assert.Equal(t, session.StateCancelled, sess.State())
	snap := sess.Snapshot()
	require.NotNil(t, snap.FinalScore, "cancellation must preserve the last analysis")

	// The interrupted cycle never finished, so it does not count.
	assert.Equal(t, 0, sess.Cycles())
}

func TestCancelBeforeRunIsTerminal(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)

	require.NoError(t, o.Cancel("s1"))
	assert.Equal(t, session.StateCancelled, s.State())

	// Idempotent on a terminal session, not found for strangers.
	assert.NoError(t, o.Cancel("s1"))
	var nf *session.NotFoundError
	assert.ErrorAs(t, o.Cancel("ghost"), &nf)

	// A later run observes the terminal state and does nothing.
	require.NoError(t, o.Run(context.Background(), s))
	assert.Equal(t, session.StateCancelled, s.State())
}

func TestConcurrentRunRejected(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)

	require.True(t, s.TryAcquire())
	defer s.Release()

	err = o.Run(context.Background(), s)
	var conflict *session.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestEventOrdering(t *testing.T) {
	o, events, _ := newTestOrchestrator(t, testOptimization())
	sub := events.Subscribe(bus.Filter{SessionID: "s1"})
	defer events.Unsubscribe(sub)

	s, err := o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	var seen []bus.EventType
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub.C:
			seen = append(seen, e.Type)
			if e.Type == bus.EventOptimizationCompleted {
				require.Equal(t, bus.EventAnalysisComplete, seen[0])
				assert.Equal(t, 100, e.Progress)
				return
			}
		case <-deadline:
			t.Fatalf("no completion event, saw %v", seen)
		}
	}
}

func TestStatusReportsSnapshot(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testOptimization())
	s, err := o.Create(StartRequest{SessionID: "s1", HTML: barePage})
	require.NoError(t, err)

	snap, err := o.Status("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.ID)
	assert.Equal(t, session.StateCreated, snap.State)

	require.NoError(t, o.Run(context.Background(), s))
	snap, err = o.Status("s1")
	require.NoError(t, err)
	assert.True(t, snap.State.Terminal())

	_, err = o.Status("ghost")
	var nf *session.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

type recordingPersister struct {
	mu   sync.Mutex
	recs []RunRecord
}

func (p *recordingPersister) SaveRun(_ context.Context, rec RunRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func TestCompletedRunIsPersisted(t *testing.T) {
	p := &recordingPersister{}
	o, _, _ := newTestOrchestrator(t, testOptimization(), WithPersister(p))

	s, err := o.Create(StartRequest{SessionID: "s1", Caller: "alice", HTML: barePage})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), s))

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.recs, 1)
	assert.Equal(t, "s1", p.recs[0].SessionID)
	assert.Equal(t, "alice", p.recs[0].Caller)
	assert.Equal(t, string(session.StateCompleted), p.recs[0].State)
	assert.NotEmpty(t, p.recs[0].HTML)
}

func TestCancelledSessionIsPersisted(t *testing.T) {
	p := &recordingPersister{}
	o, _, _ := newTestOrchestrator(t, testOptimization(), WithPersister(p))

	_, err := o.Create(StartRequest{SessionID: "s1", Caller: "alice", HTML: barePage})
	require.NoError(t, err)
	require.NoError(t, o.Cancel("s1"))

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.recs, 1)
	assert.Equal(t, string(session.StateCancelled), p.recs[0].State)
	assert.Equal(t, "s1", p.recs[0].SessionID)
}

func TestStartSupersededRequestsFreeCapacity(t *testing.T) {
	events := bus.New()
	collector := stats.NewCollector()
	reg := session.NewRegistry(2, time.Hour)
	cfg := testOptimization()
	cfg.AnalysisDebounceMs = 40
	o := New(reg, events, collector, cfg)
	t.Cleanup(func() {
		o.Stop()
		events.Close()
	})

	var last *session.Session
	for i := 0; i < 5; i++ {
		s, err := o.Start(context.Background(), StartRequest{Caller: "alice", HTML: sparsePage()})
		require.NoError(t, err, "superseded bursts must not exhaust the caller's capacity")
		last = s
	}

	// Only the newest request survives; the four it replaced are gone.
	assert.Equal(t, 1, reg.Len())

	require.Eventually(t, func() bool {
		return last.State().Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.StateCompleted, last.State())
}
