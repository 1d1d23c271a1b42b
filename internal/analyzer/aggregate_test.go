package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rybkagreen/pagetune/internal/page"
)

func TestCompositeScoreBounds(t *testing.T) {
	inputs := []string{
		"",
		"garbage <<<< not html",
		`<html><head></head><body><p>hi</p></body></html>`,
		`<html lang="en"><head><meta charset="utf-8"><title>Fine Enough Title Here</title></head><body><h1>x</h1></body></html>`,
		strings.Repeat("<div>", 5000),
	}
	engine := NewEngine(Options{})
	for _, in := range inputs {
		report := engine.Analyze(in)
		assert.GreaterOrEqual(t, report.Score, 0, "input %.30q", in)
		assert.LessOrEqual(t, report.Score, 100, "input %.30q", in)
	}
}

func TestBarePageScoresBelowForty(t *testing.T) {
	report := NewEngine(Options{}).Analyze(`<html><head></head><body><p>hi</p></body></html>`)

	assert.True(t, report.HasIssue(KindMissingTitle))
	assert.True(t, report.HasIssue(KindMissingDescription))
	assert.True(t, report.HasIssue(KindMissingH1))
	assert.Less(t, report.Score, 40)
}

func TestIssuesSortedSeverityFirst(t *testing.T) {
	report := NewEngine(Options{}).Analyze(`<html><head></head><body><p>hi</p><img src="a.png"></body></html>`)
	require.NotEmpty(t, report.Issues)

	last := SeverityCritical
	for _, is := range report.Issues {
		assert.LessOrEqual(t, is.Severity, last, "issues must be ordered critical, warning, info")
		last = is.Severity
	}
}

func TestIssuesDedupedByKindAndLocation(t *testing.T) {
	issues := []Issue{
		{Kind: KindMissingAlt, Severity: SeverityWarning, Location: "img[0]"},
		{Kind: KindMissingAlt, Severity: SeverityWarning, Location: "img[0]"},
		{Kind: KindMissingAlt, Severity: SeverityWarning, Location: "img[1]"},
	}
	out := dedupeIssues(issues)
	assert.Len(t, out, 2)
}

func TestParallelMatchesSequential(t *testing.T) {
	raw := `<html><head><title>Some Title Of Decent Length</title></head>
		<body><h1>h</h1><img src="x.png"><p>` + strings.Repeat("word ", 50) + `</p></body></html>`

	engine := NewEngine(Options{})
	parallel := engine.Analyze(raw)

	// Sequential reference run over the same snapshot.
	doc := page.Parse(raw)
	var subs []SubReport
	for _, a := range engine.analyzers {
		subs = append(subs, a.Analyze(doc))
	}
	sequential := engine.aggregate(subs)

	assert.Equal(t, sequential.Score, parallel.Score)
	assert.Equal(t, sequential.Issues, parallel.Issues)
}

// panicking is an analyzer that always violates the total contract.
type panicking struct{}

func (p *panicking) Name() string                        { return "broken" }
func (p *panicking) Analyze(_ *page.Document) SubReport { panic("defect") }

func TestAnalyzerPanicIsContained(t *testing.T) {
	engine := &Engine{
		analyzers: []Analyzer{&Structural{}, &panicking{}},
		weights:   map[string]int{"structural": 40, "broken": 60},
	}
	report := engine.Analyze(`<html><head><title>Good Enough Title Text</title></head><body><h1>x</h1></body></html>`)

	sub, ok := report.SubReports["broken"]
	require.True(t, ok)
	assert.Equal(t, 0, sub.Score)
	assert.True(t, report.HasIssue(KindAnalyzerPanic))
	assert.GreaterOrEqual(t, report.Score, 0)
}

func TestCriticalCount(t *testing.T) {
	report := NewEngine(Options{}).Analyze(`<html><head></head><body><p>hi</p></body></html>`)
	assert.Equal(t, 2, report.CriticalCount()) // missing title + missing description
}
