package analyzer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/rybkagreen/pagetune/internal/page"
)

// Structural thresholds. Lengths are in characters, counts in words.
const (
	titleMinLen = 10
	titleMaxLen = 70

	descriptionMinLen = 50
	descriptionMaxLen = 160

	thinContentWords = 300
)

// Structural checks the classic on-page SEO signals: title, meta
// description, heading hierarchy, alt coverage, links, and word count.
type Structural struct {
	// Keywords are optional target keywords to check for in the title
	// and meta description.
	Keywords []string
}

// Name implements Analyzer.
func (s *Structural) Name() string { return "structural" }

// Penalty per violated rule, keyed by severity of the rule.
const (
	structuralCriticalPenalty = 20
	structuralWarningPenalty  = 10
	structuralInfoPenalty     = 3
)

// Analyze implements Analyzer.
func (s *Structural) Analyze(doc *page.Document) SubReport {
	var issues []Issue

	issues = append(issues, s.checkTitle(doc)...)
	issues = append(issues, s.checkDescription(doc)...)
	issues = append(issues, checkHeadings(doc)...)
	issues = append(issues, checkImages(doc)...)
	issues = append(issues, checkLinks(doc)...)
	issues = append(issues, checkContent(doc)...)
	issues = append(issues, checkTechnicalDefaults(doc)...)

	score := 100
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			score -= structuralCriticalPenalty
		case SeverityWarning:
			score -= structuralWarningPenalty
		default:
			score -= structuralInfoPenalty
		}
	}

	return SubReport{Analyzer: s.Name(), Score: clampScore(score), Issues: issues}
}

func (s *Structural) checkTitle(doc *page.Document) []Issue {
	title, ok := doc.Title()
	if !ok || title == "" {
		return []Issue{{
			Kind:     KindMissingTitle,
			Severity: SeverityCritical,
			Message:  "page has no <title> element",
			Location: "head",
		}}
	}

	var issues []Issue
	if n := len(title); n < titleMinLen || n > titleMaxLen {
		issues = append(issues, Issue{
			Kind:     KindTitleLength,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("title is %d characters; aim for %d-%d", n, titleMinLen, titleMaxLen),
			Location: "head",
		})
	}
	issues = append(issues, s.checkKeywords(title, "title")...)
	return issues
}

func (s *Structural) checkDescription(doc *page.Document) []Issue {
	desc, ok := doc.MetaContent("description")
	if !ok || desc == "" {
		return []Issue{{
			Kind:     KindMissingDescription,
			Severity: SeverityCritical,
			Message:  "page has no meta description",
			Location: "head",
		}}
	}

	var issues []Issue
	if n := len(desc); n < descriptionMinLen || n > descriptionMaxLen {
		issues = append(issues, Issue{
			Kind:     KindDescriptionLength,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("meta description is %d characters; aim for %d-%d", n, descriptionMinLen, descriptionMaxLen),
			Location: "head",
		})
	}
	issues = append(issues, s.checkKeywords(desc, "meta description")...)
	return issues
}

// checkKeywords reports target keywords absent from the given text.
func (s *Structural) checkKeywords(text, where string) []Issue {
	var issues []Issue
	lower := strings.ToLower(text)
	for _, kw := range s.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || strings.Contains(lower, strings.ToLower(kw)) {
			continue
		}
		issues = append(issues, Issue{
			Kind:     KindKeywordAbsent,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("target keyword %q does not appear in the %s", kw, where),
			Location: where,
		})
	}
	return issues
}

// checkHeadings flags a missing H1, multiple H1s, and skipped levels
// (e.g. an H3 directly after an H1).
func checkHeadings(doc *page.Document) []Issue {
	var issues []Issue

	h1s := doc.FindAll("h1")
	switch {
	case len(h1s) == 0:
		issues = append(issues, Issue{
			Kind:     KindMissingH1,
			Severity: SeverityWarning,
			Message:  "page has no <h1> heading",
		})
	case len(h1s) > 1:
		issues = append(issues, Issue{
			Kind:     KindMultipleH1,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("page has %d <h1> headings; use exactly one", len(h1s)),
		})
	}

	// Collect heading levels in document order and flag skipped levels.
	var levels []int
	doc.Walk(func(n *html.Node) bool {
		if n.Type == html.ElementNode && len(n.Data) == 2 && n.Data[0] == 'h' &&
			n.Data[1] >= '1' && n.Data[1] <= '6' {
			levels = append(levels, int(n.Data[1]-'0'))
		}
		return true
	})
	for i := 1; i < len(levels); i++ {
		if levels[i] > levels[i-1]+1 {
			issues = append(issues, Issue{
				Kind:     KindSkippedHeading,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("heading jumps from h%d to h%d", levels[i-1], levels[i]),
				Location: fmt.Sprintf("h%d[%d]", levels[i], i),
			})
			break
		}
	}

	return issues
}

// checkImages flags images without alt text.
func checkImages(doc *page.Document) []Issue {
	var issues []Issue
	for i, img := range doc.FindAll("img") {
		if _, ok := page.Attr(img, "alt"); !ok {
			issues = append(issues, Issue{
				Kind:     KindMissingAlt,
				Severity: SeverityWarning,
				Message:  "image has no alt attribute",
				Location: fmt.Sprintf("img[%d]", i),
			})
		}
	}
	return issues
}

// checkLinks counts internal and external anchors and flags pages with
// no internal links and external links missing rel="noopener".
func checkLinks(doc *page.Document) []Issue {
	var issues []Issue
	internal := 0
	for i, a := range doc.FindAll("a") {
		href, ok := page.Attr(a, "href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}
		if !page.IsExternalLink(href) {
			internal++
			continue
		}
		if rel, _ := page.Attr(a, "rel"); !strings.Contains(strings.ToLower(rel), "noopener") {
			issues = append(issues, Issue{
				Kind:     KindUnsafeExternalLink,
				Severity: SeverityInfo,
				Message:  "external link without rel=\"noopener\"",
				Location: fmt.Sprintf("a[%d]", i),
			})
		}
	}
	if internal == 0 {
		issues = append(issues, Issue{
			Kind:     KindNoInternalLinks,
			Severity: SeverityInfo,
			Message:  "page has no internal links",
		})
	}
	return issues
}

// checkContent flags thin content below the word-count floor.
func checkContent(doc *page.Document) []Issue {
	words := doc.WordCount()
	if words >= thinContentWords {
		return nil
	}
	return []Issue{{
		Kind:     KindThinContent,
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("body has %d words; thin content threshold is %d", words, thinContentWords),
	}}
}

// checkTechnicalDefaults flags missing viewport, lang, and charset.
func checkTechnicalDefaults(doc *page.Document) []Issue {
	var issues []Issue

	if !doc.HasMeta("viewport") {
		issues = append(issues, Issue{
			Kind:     KindMissingViewport,
			Severity: SeverityWarning,
			Message:  "page has no viewport meta tag",
			Location: "head",
		})
	}

	langSet := false
	if root := doc.Find("html"); root != nil {
		if v, ok := page.Attr(root, "lang"); ok && strings.TrimSpace(v) != "" {
			langSet = true
		}
	}
	if !langSet {
		issues = append(issues, Issue{
			Kind:     KindMissingLang,
			Severity: SeverityWarning,
			Message:  "html element has no lang attribute",
			Location: "html",
		})
	}

	charsetSet := false
	for _, m := range doc.FindAll("meta") {
		if _, ok := page.Attr(m, "charset"); ok {
			charsetSet = true
			break
		}
	}
	if !charsetSet {
		issues = append(issues, Issue{
			Kind:     KindMissingCharset,
			Severity: SeverityWarning,
			Message:  "page declares no character encoding",
			Location: "head",
		})
	}

	return issues
}
