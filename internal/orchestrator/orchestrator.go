// Package orchestrator drives the optimization loop: analyze, fix,
// escalate to the suggestion provider, validate, repeat until the score
// threshold is met or the cycle budget runs out.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rybkagreen/pagetune/internal/analyzer"
	"github.com/rybkagreen/pagetune/internal/bus"
	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/fixer"
	"github.com/rybkagreen/pagetune/internal/session"
	"github.com/rybkagreen/pagetune/internal/stats"
	"github.com/rybkagreen/pagetune/internal/suggest"
)

// Suggester produces an improved HTML candidate for a struggling page.
// *suggest.Gateway satisfies it; tests substitute stubs.
type Suggester interface {
	Suggest(ctx context.Context, req suggest.Request) (string, error)
}

// RunRecord is the durable trace of one finished optimization run.
type RunRecord struct {
	SessionID    string
	Caller       string
	State        string
	InitialScore int
	FinalScore   int
	Cycles       int
	HTML         string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Persister stores finished runs. A nil Persister disables persistence.
type Persister interface {
	SaveRun(ctx context.Context, rec RunRecord) error
}

// StartRequest describes a new optimization session.
type StartRequest struct {
	SessionID string
	Caller    string
	HTML      string
	Keywords  []string
}

// Orchestrator coordinates sessions, analysis, fixing and suggestions.
type Orchestrator struct {
	registry  *session.Registry
	fixer     *fixer.Engine
	suggester Suggester
	events    *bus.Bus
	stats     *stats.Collector
	persister Persister
	debouncer *session.Debouncer
	logger    *slog.Logger
	cfg       config.Optimization

	pmu     sync.Mutex
	pending map[string]*session.Session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSuggester wires the AI suggestion provider. Without one, low
// scores are never escalated.
func WithSuggester(s Suggester) Option {
	return func(o *Orchestrator) { o.suggester = s }
}

// WithPersister wires durable run storage.
func WithPersister(p Persister) Option {
	return func(o *Orchestrator) { o.persister = p }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator around an existing registry and event bus.
func New(reg *session.Registry, events *bus.Bus, collector *stats.Collector, cfg config.Optimization, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		fixer:     fixer.NewEngine(),
		events:    events,
		stats:     collector,
		debouncer: session.NewDebouncer(time.Duration(cfg.AnalysisDebounceMs) * time.Millisecond),
		logger:    slog.Default(),
		cfg:       cfg,
		pending:   make(map[string]*session.Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create validates the request and registers a new session in the
// created state. It does not start the loop.
func (o *Orchestrator) Create(req StartRequest) (*session.Session, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, &session.ValidationError{Field: "html", Message: "must not be empty"}
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	s := session.New(id, req.Caller, req.HTML, req.Keywords, session.Config{
		MinScoreThreshold:       o.cfg.MinScoreThreshold,
		CriticalIssuesAutoFix:   o.cfg.CriticalIssuesAutoFix,
		OptimizationCyclesLimit: o.cfg.OptimizationCyclesLimit,
		AISuggestionsThreshold:  o.cfg.AISuggestionsThreshold,
	})
	if err := o.registry.Create(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Start creates the session and launches its run in the background.
// Rapid repeated starts from the same caller are debounced; only the
// newest request within the window runs, and a superseded request's
// session is retired so it never occupies a registry slot.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*session.Session, error) {
	if req.Caller != "" {
		o.retirePending(req.Caller)
	}

	s, err := o.Create(req)
	if err != nil {
		return nil, err
	}
	key := req.Caller
	if key == "" {
		key = s.ID
	}
	o.pmu.Lock()
	o.pending[key] = s
	o.pmu.Unlock()

	// The run outlives the start request; detach from its deadline but
	// keep its values.
	runCtx := context.WithoutCancel(ctx)
	o.debouncer.Trigger(key, func() {
		o.clearPending(key, s)
		if err := o.Run(runCtx, s); err != nil {
			o.logger.Error("optimization run failed", "session", s.ID, "error", err)
		}
	})
	return s, nil
}

// retirePending cancels and removes a still-waiting session for the
// given caller. Sessions whose run already began are left alone; the
// debouncer guarantees a pending one has not run yet.
func (o *Orchestrator) retirePending(key string) {
	o.pmu.Lock()
	prev, ok := o.pending[key]
	if ok {
		delete(o.pending, key)
	}
	o.pmu.Unlock()

	if !ok || prev.State().Terminal() {
		return
	}
	prev.Cancel()
	prev.SetState(session.StateCancelled)
	o.registry.Delete(prev.ID)
	o.logger.Debug("superseded pending session", "session", prev.ID, "caller", key)
}

func (o *Orchestrator) clearPending(key string, s *session.Session) {
	o.pmu.Lock()
	if o.pending[key] == s {
		delete(o.pending, key)
	}
	o.pmu.Unlock()
}

// Status returns the external view of a session.
func (o *Orchestrator) Status(id string) (session.Snapshot, error) {
	s, err := o.registry.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// ListActive returns snapshots of all non-terminal sessions.
func (o *Orchestrator) ListActive() []session.Snapshot {
	return o.registry.ListActive()
}

// Cancel requests cancellation. Cancelling an already terminal session
// is a no-op; unknown sessions report not found.
func (o *Orchestrator) Cancel(id string) error {
	s, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	if s.State().Terminal() {
		return nil
	}
	s.Cancel()
	if s.TryAcquire() {
		// No run in flight; finalize here instead of waiting for one.
		o.finishCancelled(context.Background(), s, s.InitialAnalysis(), s.CreatedAt())
		s.Release()
	}
	return nil
}

// Stop shuts down pending debounced runs.
func (o *Orchestrator) Stop() {
	o.debouncer.Stop()
}

// Run executes the optimization loop synchronously. At most one run per
// session is in flight; a second concurrent call is rejected.
func (o *Orchestrator) Run(ctx context.Context, s *session.Session) error {
	if !s.TryAcquire() {
		return &session.ConflictError{ID: s.ID}
	}
	defer s.Release()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.SetState(session.StateFailed)
			o.events.Publish(bus.Event{
				Type:      bus.EventErrorOccurred,
				SessionID: s.ID,
				Message:   fmt.Sprintf("internal error: %v", r),
			})
			o.persist(ctx, s, started)
			o.logger.Error("optimization run panicked", "session", s.ID, "panic", r)
		}
	}()

	if s.State().Terminal() {
		return nil
	}

	engine := analyzer.NewEngine(analyzer.Options{TargetKeywords: s.Keywords})

	s.SetState(session.StateAnalyzing)
	report := engine.Analyze(s.HTML())
	s.SetInitialAnalysis(report)
	o.publishAnalysis(s, report)

	if report.Score >= s.Config.MinScoreThreshold {
		o.finish(ctx, s, report, started)
		return nil
	}

	floor := analyzer.SeverityCritical
	if s.Config.CriticalIssuesAutoFix {
		floor = analyzer.SeverityWarning
	}

	for s.Cycles() < s.Config.OptimizationCyclesLimit {
		if s.Cancelled() || ctx.Err() != nil {
			o.finishCancelled(ctx, s, report, started)
			return nil
		}
		before := report.Score
		o.publishProgress(s)

		report = o.fixPass(s, engine, report, floor)
		if report.Score < s.Config.MinScoreThreshold {
			if s.Cancelled() || ctx.Err() != nil {
				o.finishCancelled(ctx, s, report, started)
				return nil
			}
			if o.suggester != nil && report.Score < s.Config.AISuggestionsThreshold {
				report = o.suggestPass(ctx, s, engine, report)
				if s.Cancelled() || ctx.Err() != nil {
					o.finishCancelled(ctx, s, report, started)
					return nil
				}
			}
		}

		// A cycle counts only once it ran to its end; an interrupted one
		// never reaches here.
		s.IncrementCycles()

		if report.Score >= s.Config.MinScoreThreshold {
			break
		}
		if report.Score <= before {
			// The cycle moved nothing; further cycles would repeat it.
			o.logger.Debug("score stagnated, stopping early",
				"session", s.ID, "score", report.Score, "cycle", s.Cycles())
			break
		}
	}

	o.finish(ctx, s, report, started)
	return nil
}

// fixPass applies automatic repairs and re-analyzes. Rule output is
// always adopted; the size cap constrains suggestion candidates only,
// since rules insert bounded markup.
func (o *Orchestrator) fixPass(s *session.Session, engine *analyzer.Engine, report *analyzer.Report, floor analyzer.Severity) *analyzer.Report {
	if o.fixer.FixableCount(report.Issues, floor) == 0 {
		return report
	}

	s.SetState(session.StateFixing)
	repaired, applied := o.fixer.Apply(s.HTML(), report.Issues, floor)
	if len(applied) > 0 {
		s.SetHTML(repaired)
		o.stats.RecordFixes(len(applied))
		o.publishApplied(s, applied)
	}

	s.SetState(session.StateAnalyzing)
	next := engine.Analyze(s.HTML())
	o.publishAnalysis(s, next)
	return next
}

// suggestPass asks the provider for a rewrite and adopts it only when
// the candidate scores at least as well and fits the size cap. Provider
// failures are reported but never abort the loop.
func (o *Orchestrator) suggestPass(ctx context.Context, s *session.Session, engine *analyzer.Engine, report *analyzer.Report) *analyzer.Report {
	s.SetState(session.StateSuggesting)
	candidate, err := o.suggester.Suggest(ctx, suggest.Request{
		HTML:     s.HTML(),
		Issues:   report.Issues,
		Keywords: s.Keywords,
	})
	if err != nil {
		o.stats.RecordSuggestion(false)
		o.publishError(s, err)
		s.SetState(session.StateAnalyzing)
		return report
	}

	s.SetState(session.StateValidating)
	validated := engine.Analyze(candidate)
	accepted := validated.Score >= report.Score && len(candidate) <= s.MaxHTMLBytes
	o.stats.RecordSuggestion(accepted)
	o.publishSuggestion(s, report.Score, validated.Score, accepted)

	s.SetState(session.StateAnalyzing)
	if !accepted {
		return report
	}
	s.SetHTML(candidate)
	return validated
}

func (o *Orchestrator) finish(ctx context.Context, s *session.Session, report *analyzer.Report, started time.Time) {
	s.SetFinalAnalysis(report)
	s.SetState(session.StateCompleted)

	initial := report.Score
	if ir := s.InitialAnalysis(); ir != nil {
		initial = ir.Score
	}
	o.stats.RecordRun(initial, report.Score, time.Since(started))
	o.publishCompleted(s)
	o.persist(ctx, s, started)

	o.logger.Info("optimization completed",
		"session", s.ID, "score", report.Score, "cycles", s.Cycles())
}

func (o *Orchestrator) finishCancelled(ctx context.Context, s *session.Session, report *analyzer.Report, started time.Time) {
	if report != nil {
		s.SetFinalAnalysis(report)
	}
	s.SetState(session.StateCancelled)
	o.events.Publish(bus.Event{
		Type:      bus.EventOptimizationCompleted,
		SessionID: s.ID,
		Message:   "cancelled",
		Payload:   marshalSnapshot(s),
	})
	o.persist(ctx, s, started)
	o.logger.Info("optimization cancelled", "session", s.ID, "cycles", s.Cycles())
}

func (o *Orchestrator) persist(ctx context.Context, s *session.Session, started time.Time) {
	if o.persister == nil {
		return
	}
	snap := s.Snapshot()
	rec := RunRecord{
		SessionID:  s.ID,
		Caller:     s.Caller,
		State:      string(snap.State),
		Cycles:     snap.CyclesPerformed,
		HTML:       s.HTML(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if snap.InitialScore != nil {
		rec.InitialScore = *snap.InitialScore
	}
	if snap.FinalScore != nil {
		rec.FinalScore = *snap.FinalScore
	}
	if err := o.persister.SaveRun(ctx, rec); err != nil {
		o.logger.Warn("persisting run failed", "session", s.ID, "error", err)
	}
}

func (o *Orchestrator) publishAnalysis(s *session.Session, report *analyzer.Report) {
	payload, _ := json.Marshal(map[string]any{
		"score":          report.Score,
		"issue_count":    len(report.Issues),
		"critical_count": report.CriticalCount(),
	})
	o.events.Publish(bus.Event{
		Type:      bus.EventAnalysisComplete,
		SessionID: s.ID,
		Progress:  o.progress(s),
		Payload:   payload,
	})
}

func (o *Orchestrator) publishApplied(s *session.Session, applied []fixer.Applied) {
	payload, _ := json.Marshal(applied)
	o.events.Publish(bus.Event{
		Type:      bus.EventOptimizationApplied,
		SessionID: s.ID,
		Progress:  o.progress(s),
		Message:   "automatic fixes applied",
		Payload:   payload,
	})
}

func (o *Orchestrator) publishSuggestion(s *session.Session, beforeScore, candidateScore int, accepted bool) {
	payload, _ := json.Marshal(map[string]any{
		"score_before":    beforeScore,
		"candidate_score": candidateScore,
		"accepted":        accepted,
	})
	o.events.Publish(bus.Event{
		Type:      bus.EventAISuggestionGenerated,
		SessionID: s.ID,
		Progress:  o.progress(s),
		Payload:   payload,
	})
}

func (o *Orchestrator) publishProgress(s *session.Session) {
	o.events.Publish(bus.Event{
		Type:      bus.EventOptimizationProgress,
		SessionID: s.ID,
		Progress:  o.progress(s),
		Message:   "cycle started",
		Payload:   marshalSnapshot(s),
	})
}

func (o *Orchestrator) publishCompleted(s *session.Session) {
	o.events.Publish(bus.Event{
		Type:      bus.EventOptimizationCompleted,
		SessionID: s.ID,
		Progress:  100,
		Payload:   marshalSnapshot(s),
	})
}

func (o *Orchestrator) publishError(s *session.Session, err error) {
	kind := "internal_error"
	if f, ok := suggest.AsFailure(err); ok {
		kind = f.Kind()
	}
	payload, _ := json.Marshal(map[string]any{"kind": kind})
	o.events.Publish(bus.Event{
		Type:      bus.EventErrorOccurred,
		SessionID: s.ID,
		Message:   err.Error(),
		Payload:   payload,
	})
}

// progress estimates completion from cycles consumed. It reaches 100
// only through the completion event.
func (o *Orchestrator) progress(s *session.Session) int {
	limit := s.Config.OptimizationCyclesLimit
	if limit <= 0 {
		return 0
	}
	p := s.Cycles() * 100 / limit
	if p > 99 {
		p = 99
	}
	return p
}

func marshalSnapshot(s *session.Session) json.RawMessage {
	payload, _ := json.Marshal(s.Snapshot())
	return payload
}
