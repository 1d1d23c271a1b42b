// Package fixer provides deterministic, rule-based repair of page defects
// detected by the analyzers. Each rule maps one issue kind to a markup
// transformation; every rule is idempotent, so re-running a fix pass over
// already-repaired HTML is a no-op.
package fixer

import (
	"github.com/rybkagreen/pagetune/internal/analyzer"
	"github.com/rybkagreen/pagetune/internal/page"
)

// Rule transforms a document to repair one issue kind. It returns true
// when the document was changed. Rules never fail: an inapplicable rule
// (e.g. nothing to synthesize a title from) leaves the document alone
// and returns false.
type Rule func(doc *page.Document, issue analyzer.Issue) bool

// Applied records one successful rule application.
type Applied struct {
	Kind        analyzer.IssueKind `json:"kind"`
	Description string             `json:"description"`
}

// Engine holds the rule table. It is stateless and safe for concurrent
// use across sessions.
type Engine struct {
	rules map[analyzer.IssueKind]Rule
}

// NewEngine creates an Engine with the full built-in rule table.
func NewEngine() *Engine {
	return &Engine{rules: map[analyzer.IssueKind]Rule{
		analyzer.KindMissingTitle:         fixMissingTitle,
		analyzer.KindMissingDescription:   fixMissingDescription,
		analyzer.KindMissingH1:            fixMissingH1,
		analyzer.KindMissingViewport:      fixMissingViewport,
		analyzer.KindMissingLang:          fixMissingLang,
		analyzer.KindMissingCharset:       fixMissingCharset,
		analyzer.KindMissingAlt:           fixMissingAlt,
		analyzer.KindMissingLazyLoad:      fixMissingLazyLoad,
		analyzer.KindUnsafeExternalLink:   fixUnsafeExternalLinks,
		analyzer.KindMissingOGTitle:       fixOpenGraph,
		analyzer.KindMissingOGDescription: fixOpenGraph,
		analyzer.KindMissingOGType:        fixOpenGraph,
		analyzer.KindMissingOGURL:         fixOpenGraph,
		analyzer.KindMissingOGImage:       fixOpenGraph,
	}}
}

// CanFix reports whether any rule exists for the given issue kind.
func (e *Engine) CanFix(kind analyzer.IssueKind) bool {
	_, ok := e.rules[kind]
	return ok
}

// FixableCount returns how many of the given issues have a rule at or
// above the severity floor.
func (e *Engine) FixableCount(issues []analyzer.Issue, floor analyzer.Severity) int {
	n := 0
	for _, is := range issues {
		if is.Severity >= floor && e.CanFix(is.Kind) {
			n++
		}
	}
	return n
}

// Apply runs the rule table over every issue at or above the severity
// floor. Fixes are applied sequentially against the same document so each
// rule sees the previous rule's output. Returns the revised HTML and the
// list of applied fixes; when nothing applied, the input HTML is returned
// unchanged.
func (e *Engine) Apply(raw string, issues []analyzer.Issue, floor analyzer.Severity) (string, []Applied) {
	doc := page.Parse(raw)

	var applied []Applied
	for _, is := range issues {
		if is.Severity < floor {
			continue
		}
		rule, ok := e.rules[is.Kind]
		if !ok {
			continue
		}
		if rule(doc, is) {
			applied = append(applied, Applied{
				Kind:        is.Kind,
				Description: is.Message,
			})
		}
	}

	if len(applied) == 0 {
		return raw, nil
	}
	return doc.Render(), applied
}
