package analyzer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/rybkagreen/pagetune/internal/page"
)

// Performance estimates rendering cost from static markers in the markup:
// inline asset sizes, minification signals, lazy-loading attributes,
// critical CSS, DOM size, and head-blocking resources. Thresholds are
// three-tier per resource class; a critical-tier finding costs more than
// a warning-tier one.
type Performance struct{}

// Name implements Analyzer.
func (p *Performance) Name() string { return "performance" }

// tier thresholds. Sizes are bytes of inline content; counts are elements.
const (
	inlineScriptWarnBytes = 10 * 1024
	inlineScriptCritBytes = 50 * 1024

	inlineStyleWarnBytes = 8 * 1024
	inlineStyleCritBytes = 40 * 1024

	domNodesWarn = 1500
	domNodesCrit = 3000

	headBlockingWarn = 3
	headBlockingCrit = 6

	// Images past this document-order index are treated as below the fold.
	aboveFoldImages = 3
)

const (
	perfWarningPenalty  = 10
	perfCriticalPenalty = 25
)

// Analyze implements Analyzer.
func (p *Performance) Analyze(doc *page.Document) SubReport {
	var issues []Issue

	issues = append(issues, checkInlineAssets(doc)...)
	issues = append(issues, checkMinification(doc)...)
	issues = append(issues, checkLazyLoading(doc)...)
	issues = append(issues, checkCriticalCSS(doc)...)
	issues = append(issues, checkDOMSize(doc)...)
	issues = append(issues, checkHeadBlocking(doc)...)

	score := 100
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			score -= perfCriticalPenalty
		case SeverityWarning:
			score -= perfWarningPenalty
		default:
			score -= 3
		}
	}

	return SubReport{Analyzer: p.Name(), Score: clampScore(score), Issues: issues}
}

// sizeTier maps an inline byte size onto a severity, or false when the
// size is in the good tier.
func sizeTier(size, warn, crit int) (Severity, bool) {
	switch {
	case size >= crit:
		return SeverityCritical, true
	case size >= warn:
		return SeverityWarning, true
	default:
		return SeverityInfo, false
	}
}

// checkInlineAssets flags oversized inline scripts and styles.
func checkInlineAssets(doc *page.Document) []Issue {
	var issues []Issue

	for i, s := range doc.FindAll("script") {
		if _, ok := page.Attr(s, "src"); ok {
			continue
		}
		size := len(page.Text(s))
		if sev, bad := sizeTier(size, inlineScriptWarnBytes, inlineScriptCritBytes); bad {
			issues = append(issues, Issue{
				Kind:     KindOversizedResource,
				Severity: sev,
				Message:  fmt.Sprintf("inline script is %d bytes", size),
				Location: fmt.Sprintf("script[%d]", i),
			})
		}
	}

	for i, s := range doc.FindAll("style") {
		size := len(page.Text(s))
		if sev, bad := sizeTier(size, inlineStyleWarnBytes, inlineStyleCritBytes); bad {
			issues = append(issues, Issue{
				Kind:     KindOversizedResource,
				Severity: sev,
				Message:  fmt.Sprintf("inline style block is %d bytes", size),
				Location: fmt.Sprintf("style[%d]", i),
			})
		}
	}

	return issues
}

// checkMinification uses the ".min." filename convention as the
// minification signal for linked assets.
func checkMinification(doc *page.Document) []Issue {
	var issues []Issue

	for i, l := range doc.FindAll("link") {
		rel, _ := page.Attr(l, "rel")
		if !strings.EqualFold(rel, "stylesheet") {
			continue
		}
		href, ok := page.Attr(l, "href")
		if ok && strings.HasSuffix(strings.ToLower(pathOf(href)), ".css") &&
			!strings.Contains(strings.ToLower(href), ".min.") {
			issues = append(issues, Issue{
				Kind:     KindUnminifiedCSS,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("stylesheet %s carries no minification signal", href),
				Location: fmt.Sprintf("link[%d]", i),
			})
		}
	}

	for i, s := range doc.FindAll("script") {
		src, ok := page.Attr(s, "src")
		if ok && strings.HasSuffix(strings.ToLower(pathOf(src)), ".js") &&
			!strings.Contains(strings.ToLower(src), ".min.") {
			issues = append(issues, Issue{
				Kind:     KindUnminifiedJS,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("script %s carries no minification signal", src),
				Location: fmt.Sprintf("script[%d]", i),
			})
		}
	}

	return issues
}

// pathOf strips query and fragment from a URL-ish string.
func pathOf(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// checkLazyLoading flags below-the-fold images and iframes without
// loading="lazy".
func checkLazyLoading(doc *page.Document) []Issue {
	var issues []Issue

	for i, img := range doc.FindAll("img") {
		if i < aboveFoldImages {
			continue
		}
		if v, _ := page.Attr(img, "loading"); !strings.EqualFold(v, "lazy") {
			issues = append(issues, Issue{
				Kind:     KindMissingLazyLoad,
				Severity: SeverityWarning,
				Message:  "below-the-fold image is not lazy-loaded",
				Location: fmt.Sprintf("img[%d]", i),
			})
		}
	}

	for i, f := range doc.FindAll("iframe") {
		if v, _ := page.Attr(f, "loading"); !strings.EqualFold(v, "lazy") {
			issues = append(issues, Issue{
				Kind:     KindMissingLazyLoad,
				Severity: SeverityWarning,
				Message:  "iframe is not lazy-loaded",
				Location: fmt.Sprintf("iframe[%d]", i),
			})
		}
	}

	return issues
}

// checkCriticalCSS looks for any inline <style> in the head.
func checkCriticalCSS(doc *page.Document) []Issue {
	head := doc.Find("head")
	if head == nil {
		return []Issue{{
			Kind:     KindNoCriticalCSS,
			Severity: SeverityInfo,
			Message:  "no inline critical-CSS block in head",
			Location: "head",
		}}
	}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "style" {
			return nil
		}
	}
	return []Issue{{
		Kind:     KindNoCriticalCSS,
		Severity: SeverityInfo,
		Message:  "no inline critical-CSS block in head",
		Location: "head",
	}}
}

// checkDOMSize flags oversized DOM trees.
func checkDOMSize(doc *page.Document) []Issue {
	nodes := doc.NodeCount()
	if sev, bad := sizeTier(nodes, domNodesWarn, domNodesCrit); bad {
		return []Issue{{
			Kind:     KindOversizedDOM,
			Severity: sev,
			Message:  fmt.Sprintf("document has %d element nodes", nodes),
		}}
	}
	return nil
}

// checkHeadBlocking counts synchronous scripts and stylesheets in the head.
func checkHeadBlocking(doc *page.Document) []Issue {
	head := doc.Find("head")
	if head == nil {
		return nil
	}

	blocking := 0
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "script":
			_, hasSrc := page.Attr(c, "src")
			_, async := page.Attr(c, "async")
			_, defer_ := page.Attr(c, "defer")
			if hasSrc && !async && !defer_ {
				blocking++
			}
		case "link":
			if rel, _ := page.Attr(c, "rel"); strings.EqualFold(rel, "stylesheet") {
				blocking++
			}
		}
	}

	if sev, bad := sizeTier(blocking, headBlockingWarn, headBlockingCrit); bad {
		return []Issue{{
			Kind:     KindHeadBlocking,
			Severity: sev,
			Message:  fmt.Sprintf("head loads %d render-blocking resources", blocking),
			Location: "head",
		}}
	}
	return nil
}
