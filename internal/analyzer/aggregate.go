package analyzer

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rybkagreen/pagetune/internal/page"
)

// Composite weights. They sum to 100 so the weighted sum of clamped
// sub-scores is itself bounded to [0, 100].
var defaultWeights = map[string]int{
	"structural":  40,
	"social":      35,
	"performance": 25,
}

// Report is the composite analysis of one HTML snapshot. Reports are
// immutable once produced; each cycle creates a new one.
type Report struct {
	// Score is the weighted composite, 0-100.
	Score int `json:"score"`

	// Issues is the deduplicated union of all sub-report issues, sorted
	// severity-first so repair order is deterministic.
	Issues []Issue `json:"issues"`

	// SubReports holds each analyzer's output, keyed by analyzer name.
	SubReports map[string]SubReport `json:"sub_reports"`
}

// HasIssue reports whether the report contains an issue of the given kind.
func (r *Report) HasIssue(kind IssueKind) bool {
	for _, is := range r.Issues {
		if is.Kind == kind {
			return true
		}
	}
	return false
}

// CriticalCount returns the number of critical issues.
func (r *Report) CriticalCount() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// Engine runs a fixed analyzer set over a document and aggregates the
// results. The zero value is not usable; construct with NewEngine.
type Engine struct {
	analyzers []Analyzer
	weights   map[string]int
}

// NewEngine creates an Engine with the standard analyzer set. Options
// feed per-session hints (target keywords) into the analyzers.
func NewEngine(opts Options) *Engine {
	return &Engine{
		analyzers: []Analyzer{
			&Structural{Keywords: opts.TargetKeywords},
			&Social{},
			&Performance{},
		},
		weights: defaultWeights,
	}
}

// Analyze parses the HTML and runs all analyzers in parallel. Analyzers
// are stateless over the same snapshot, so parallel and sequential runs
// produce identical reports. An analyzer that panics despite its total
// contract contributes a zero sub-score and a synthetic issue instead of
// aborting the run.
func (e *Engine) Analyze(raw string) *Report {
	doc := page.Parse(raw)

	subs := make([]SubReport, len(e.analyzers))
	var g errgroup.Group
	for i, a := range e.analyzers {
		g.Go(func() error {
			subs[i] = runSafely(a, doc)
			return nil
		})
	}
	_ = g.Wait()

	return e.aggregate(subs)
}

// runSafely invokes one analyzer, converting a panic into a zero-score
// sub-report carrying a synthetic issue.
func runSafely(a Analyzer, doc *page.Document) (sub SubReport) {
	defer func() {
		if r := recover(); r != nil {
			sub = SubReport{
				Analyzer: a.Name(),
				Score:    0,
				Issues: []Issue{{
					Kind:     KindAnalyzerPanic,
					Severity: SeverityCritical,
					Message:  fmt.Sprintf("analyzer %s failed: %v", a.Name(), r),
				}},
			}
		}
	}()
	return a.Analyze(doc)
}

// aggregate combines sub-reports into one Report: weighted composite
// score, issue union deduplicated by (kind, location), severity-first
// ordering.
func (e *Engine) aggregate(subs []SubReport) *Report {
	report := &Report{SubReports: make(map[string]SubReport, len(subs))}

	weighted := 0
	for _, sub := range subs {
		w := e.weights[sub.Analyzer]
		weighted += clampScore(sub.Score) * w
		report.SubReports[sub.Analyzer] = sub
		report.Issues = append(report.Issues, sub.Issues...)
	}
	report.Score = clampScore(weighted / 100)

	report.Issues = dedupeIssues(report.Issues)
	sortIssues(report.Issues)

	return report
}

// dedupeIssues drops issues sharing (kind, location) with an earlier one.
func dedupeIssues(issues []Issue) []Issue {
	type key struct {
		kind     IssueKind
		location string
	}
	seen := make(map[key]bool, len(issues))
	out := issues[:0]
	for _, is := range issues {
		k := key{is.Kind, is.Location}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, is)
	}
	return out
}

// sortIssues orders critical first, then warning, then info. Within a
// severity the detection order is preserved.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity > issues[j].Severity
	})
}
