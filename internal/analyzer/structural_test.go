package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rybkagreen/pagetune/internal/page"
)

func kinds(issues []Issue) []IssueKind {
	out := make([]IssueKind, len(issues))
	for i, is := range issues {
		out[i] = is.Kind
	}
	return out
}

func TestStructuralMissingEssentials(t *testing.T) {
	doc := page.Parse(`<html><head></head><body><p>hi</p></body></html>`)
	sub := (&Structural{}).Analyze(doc)

	ks := kinds(sub.Issues)
	assert.Contains(t, ks, KindMissingTitle)
	assert.Contains(t, ks, KindMissingDescription)
	assert.Contains(t, ks, KindMissingH1)

	for _, is := range sub.Issues {
		switch is.Kind {
		case KindMissingTitle, KindMissingDescription:
			assert.Equal(t, SeverityCritical, is.Severity, "kind %s", is.Kind)
		case KindMissingH1:
			assert.Equal(t, SeverityWarning, is.Severity)
		}
	}
}

func TestStructuralCleanPage(t *testing.T) {
	doc := page.Parse(`<html lang="en"><head>
		<meta charset="utf-8">
		<meta name="viewport" content="width=device-width, initial-scale=1">
		<title>A Perfectly Reasonable Page Title</title>
		<meta name="description" content="` + strings.Repeat("good description text ", 4) + `">
	</head><body>
		<h1>Heading</h1>
		<h2>Sub</h2>
		<a href="/home">home</a>
		<p>` + strings.Repeat("word ", 400) + `</p>
	</body></html>`)

	sub := (&Structural{}).Analyze(doc)
	assert.Empty(t, sub.Issues)
	assert.Equal(t, 100, sub.Score)
}

func TestStructuralTitleLength(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{"too short", "hi", true},
		{"too long", strings.Repeat("x", 90), true},
		{"in range", "A title of sensible length", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := page.Parse(`<html><head><title>` + tt.title + `</title></head><body></body></html>`)
			sub := (&Structural{}).Analyze(doc)
			assert.Equal(t, tt.want, hasKind(sub.Issues, KindTitleLength))
		})
	}
}

func TestStructuralHeadingHierarchy(t *testing.T) {
	t.Run("multiple h1", func(t *testing.T) {
		doc := page.Parse(`<html><body><h1>a</h1><h1>b</h1></body></html>`)
		sub := (&Structural{}).Analyze(doc)
		assert.True(t, hasKind(sub.Issues, KindMultipleH1))
	})

	t.Run("skipped level", func(t *testing.T) {
		doc := page.Parse(`<html><body><h1>a</h1><h3>b</h3></body></html>`)
		sub := (&Structural{}).Analyze(doc)
		assert.True(t, hasKind(sub.Issues, KindSkippedHeading))
	})

	t.Run("descending levels are fine", func(t *testing.T) {
		doc := page.Parse(`<html><body><h1>a</h1><h2>b</h2><h3>c</h3><h2>d</h2></body></html>`)
		sub := (&Structural{}).Analyze(doc)
		assert.False(t, hasKind(sub.Issues, KindSkippedHeading))
	})
}

func TestStructuralAltCoverage(t *testing.T) {
	doc := page.Parse(`<html><body>
		<img src="a.png" alt="described">
		<img src="b.png">
	</body></html>`)
	sub := (&Structural{}).Analyze(doc)

	var altIssues []Issue
	for _, is := range sub.Issues {
		if is.Kind == KindMissingAlt {
			altIssues = append(altIssues, is)
		}
	}
	require.Len(t, altIssues, 1)
	assert.Equal(t, "img[1]", altIssues[0].Location)
}

func TestStructuralExternalLinkHygiene(t *testing.T) {
	doc := page.Parse(`<html><body>
		<a href="https://elsewhere.example">out</a>
		<a href="https://other.example" rel="noopener">safe</a>
		<a href="/inside">in</a>
	</body></html>`)
	sub := (&Structural{}).Analyze(doc)

	count := 0
	for _, is := range sub.Issues {
		if is.Kind == KindUnsafeExternalLink {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.False(t, hasKind(sub.Issues, KindNoInternalLinks))
}

func TestStructuralKeywordHints(t *testing.T) {
	doc := page.Parse(`<html><head>
		<title>All about coffee brewing at home</title>
		<meta name="description" content="` + strings.Repeat("a coffee brewing guide ", 4) + `">
	</head><body></body></html>`)

	sub := (&Structural{Keywords: []string{"coffee", "espresso"}}).Analyze(doc)

	// "coffee" appears in the title; "espresso" appears nowhere.
	absences := 0
	for _, is := range sub.Issues {
		if is.Kind == KindKeywordAbsent {
			absences++
			assert.Equal(t, SeverityInfo, is.Severity)
			assert.Contains(t, is.Message, "espresso")
		}
	}
	assert.Equal(t, 2, absences) // absent from both title and description
}

func hasKind(issues []Issue, kind IssueKind) bool {
	for _, is := range issues {
		if is.Kind == kind {
			return true
		}
	}
	return false
}
