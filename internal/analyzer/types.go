// Package analyzer provides the independent page analyzers and the score
// aggregator. Each analyzer is stateless and total: malformed input lowers
// the score and adds an issue, it never fails.
package analyzer

import "github.com/rybkagreen/pagetune/internal/page"

// Severity classifies how much an issue hurts the page.
type Severity int

const (
	// SeverityInfo is advisory; it does not gate auto-fixing.
	SeverityInfo Severity = iota

	// SeverityWarning indicates a real defect worth fixing.
	SeverityWarning

	// SeverityCritical indicates a defect that significantly suppresses
	// the composite score.
	SeverityCritical
)

// String returns the lowercase name used in reports and events.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// IssueKind identifies a detectable page defect. Kinds are stable strings:
// the fixer rule table and event payloads key on them.
type IssueKind string

// Structural kinds.
const (
	KindMissingTitle       IssueKind = "missing-title"
	KindTitleLength        IssueKind = "title-length"
	KindMissingDescription IssueKind = "missing-meta-description"
	KindDescriptionLength  IssueKind = "meta-description-length"
	KindMissingH1          IssueKind = "missing-h1"
	KindMultipleH1         IssueKind = "multiple-h1"
	KindSkippedHeading     IssueKind = "skipped-heading-level"
	KindMissingAlt         IssueKind = "missing-alt"
	KindNoInternalLinks    IssueKind = "no-internal-links"
	KindThinContent        IssueKind = "thin-content"
	KindMissingViewport    IssueKind = "missing-viewport"
	KindMissingLang        IssueKind = "missing-lang"
	KindMissingCharset     IssueKind = "missing-charset"
	KindUnsafeExternalLink IssueKind = "unsafe-external-link"
	KindKeywordAbsent      IssueKind = "keyword-absent"
)

// Social metadata kinds.
const (
	KindMissingOGTitle       IssueKind = "missing-og-title"
	KindMissingOGDescription IssueKind = "missing-og-description"
	KindMissingOGType        IssueKind = "missing-og-type"
	KindMissingOGURL         IssueKind = "missing-og-url"
	KindMissingOGImage       IssueKind = "missing-og-image"
	KindMissingTwitterField  IssueKind = "missing-twitter-field"
	KindSocialImageMismatch  IssueKind = "social-image-mismatch"
)

// Performance kinds.
const (
	KindOversizedResource IssueKind = "oversized-resource"
	KindUnminifiedCSS     IssueKind = "unminified-css"
	KindUnminifiedJS      IssueKind = "unminified-js"
	KindMissingLazyLoad   IssueKind = "missing-lazy-loading"
	KindNoCriticalCSS     IssueKind = "no-critical-css"
	KindOversizedDOM      IssueKind = "oversized-dom"
	KindHeadBlocking      IssueKind = "head-blocking-resource"
)

// KindAnalyzerPanic is the synthetic kind emitted when an analyzer violates
// its total-function contract.
const KindAnalyzerPanic IssueKind = "analyzer-panic"

// Issue is one detected defect. Issues are immutable data; recomputation
// supersedes them, nothing mutates them in place.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`

	// Location narrows the issue to a tag or fragment when known
	// (e.g. "img[3]", "head"). Empty when the issue is page-wide.
	Location string `json:"location,omitempty"`
}

// SubReport is the output of one analyzer over one HTML snapshot.
type SubReport struct {
	// Analyzer is the producing analyzer's name.
	Analyzer string `json:"analyzer"`

	// Score is the analyzer-local score, 0-100.
	Score int `json:"score"`

	// Issues lists defects in detection order.
	Issues []Issue `json:"issues"`
}

// Analyzer scores one aspect of a page. Implementations are stateless and
// safe for concurrent use over the same document snapshot.
type Analyzer interface {
	// Name identifies the analyzer in sub-reports and logs.
	Name() string

	// Analyze scores the document. It must be total: it never panics on
	// malformed or empty input.
	Analyze(doc *page.Document) SubReport
}

// Options carries per-session hints into the analyzers.
type Options struct {
	// TargetKeywords are caller-supplied keywords; their absence from the
	// title and description is reported as informational issues.
	TargetKeywords []string
}

// clampScore bounds a raw score to [0, 100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
