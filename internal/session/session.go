// Package session holds optimization session state and the concurrent-safe
// registry that owns it.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rybkagreen/pagetune/internal/analyzer"
)

// State is the optimization session lifecycle state.
type State string

const (
	StateCreated    State = "created"
	StateAnalyzing  State = "analyzing"
	StateFixing     State = "fixing"
	StateSuggesting State = "suggesting"
	StateValidating State = "validating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Config is the per-session snapshot of the optimization thresholds.
// It is copied from the system configuration at creation time; later
// system changes never reach a running session.
type Config struct {
	MinScoreThreshold       int  `json:"min_score_threshold"`
	CriticalIssuesAutoFix   bool `json:"critical_issues_auto_fix"`
	OptimizationCyclesLimit int  `json:"optimization_cycles_limit"`
	AISuggestionsThreshold  int  `json:"ai_suggestions_threshold"`
}

// Session is one optimization session. The registry owns it for its
// lifetime; the orchestrator borrows it for the duration of one cycle,
// guarded by TryAcquire.
type Session struct {
	// ID is the caller-supplied identifier, unique among live sessions.
	ID string `json:"session_id"`

	// Caller identifies the session owner for capacity accounting.
	Caller string `json:"caller,omitempty"`

	// Keywords are the caller's target keywords.
	Keywords []string `json:"target_keywords,omitempty"`

	// Config is the effective threshold snapshot.
	Config Config `json:"config"`

	// MaxHTMLBytes caps suggestion candidates at twice the initial HTML
	// size before they may replace the working HTML.
	MaxHTMLBytes int `json:"max_html_bytes"`

	mu              sync.Mutex
	state           State
	html            string
	cyclesPerformed int
	initialAnalysis *analyzer.Report
	finalAnalysis   *analyzer.Report
	createdAt       time.Time
	updatedAt       time.Time

	cancelled atomic.Bool
	running   atomic.Bool
}

// sizeCapMultiple bounds accepted suggestions relative to the initial input.
const sizeCapMultiple = 2

// New creates a session in the created state.
func New(id, caller, html string, keywords []string, cfg Config) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Caller:       caller,
		Keywords:     keywords,
		Config:       cfg,
		MaxHTMLBytes: sizeCapMultiple * len(html),
		state:        StateCreated,
		html:         html,
		createdAt:    now,
		updatedAt:    now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session. Transitions out of a terminal state
// are ignored.
func (s *Session) SetState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = next
	s.updatedAt = time.Now()
}

// HTML returns the current working HTML.
func (s *Session) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.html
}

// SetHTML replaces the working HTML.
func (s *Session) SetHTML(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = html
	s.updatedAt = time.Now()
}

// Cycles returns the number of completed cycles.
func (s *Session) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cyclesPerformed
}

// IncrementCycles records one completed cycle.
func (s *Session) IncrementCycles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cyclesPerformed++
	s.updatedAt = time.Now()
}

// InitialAnalysis returns the first report, nil before analysis ran.
func (s *Session) InitialAnalysis() *analyzer.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialAnalysis
}

// SetInitialAnalysis records the first report. Later calls are ignored.
func (s *Session) SetInitialAnalysis(r *analyzer.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialAnalysis == nil {
		s.initialAnalysis = r
		s.updatedAt = time.Now()
	}
}

// FinalAnalysis returns the terminal report, nil until a terminal state
// recorded one.
func (s *Session) FinalAnalysis() *analyzer.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalAnalysis
}

// SetFinalAnalysis records the terminal report exactly once.
func (s *Session) SetFinalAnalysis(r *analyzer.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalAnalysis == nil {
		s.finalAnalysis = r
		s.updatedAt = time.Now()
	}
}

// Cancel requests cooperative cancellation. The orchestrator observes it
// at the next suspension point. Cancelling is idempotent.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// TryAcquire marks the session as having an in-flight cycle. It returns
// false when a run is already active; callers must reject, not queue.
func (s *Session) TryAcquire() bool {
	return s.running.CompareAndSwap(false, true)
}

// Release clears the in-flight marker.
func (s *Session) Release() {
	s.running.Store(false)
}

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// UpdatedAt returns the last mutation timestamp.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Snapshot is the read-only external view of a session.
type Snapshot struct {
	ID              string           `json:"session_id"`
	State           State            `json:"state"`
	CyclesPerformed int              `json:"cycles_performed"`
	InitialScore    *int             `json:"initial_score,omitempty"`
	FinalScore      *int             `json:"final_score,omitempty"`
	Issues          []analyzer.Issue `json:"issues,omitempty"`
	Config          Config           `json:"config"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Snapshot captures the externally visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:              s.ID,
		State:           s.state,
		CyclesPerformed: s.cyclesPerformed,
		Config:          s.Config,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
	if s.initialAnalysis != nil {
		score := s.initialAnalysis.Score
		snap.InitialScore = &score
	}
	if s.finalAnalysis != nil {
		score := s.finalAnalysis.Score
		snap.FinalScore = &score
		snap.Issues = s.finalAnalysis.Issues
	}
	return snap
}
