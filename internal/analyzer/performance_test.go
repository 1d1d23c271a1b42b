package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rybkagreen/pagetune/internal/page"
)

func TestPerformanceInlineAssetTiers(t *testing.T) {
	tests := []struct {
		name string
		size int
		want Severity
		bad  bool
	}{
		{"small script is good", 1024, SeverityInfo, false},
		{"medium script warns", 20 * 1024, SeverityWarning, true},
		{"huge script is critical", 60 * 1024, SeverityCritical, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := page.Parse(`<html><head></head><body><script>` +
				strings.Repeat("x", tt.size) + `</script></body></html>`)
			sub := (&Performance{}).Analyze(doc)

			var found *Issue
			for i := range sub.Issues {
				if sub.Issues[i].Kind == KindOversizedResource {
					found = &sub.Issues[i]
				}
			}
			if !tt.bad {
				assert.Nil(t, found)
				return
			}
			require.NotNil(t, found)
			assert.Equal(t, tt.want, found.Severity)
		})
	}
}

func TestPerformanceMinificationSignals(t *testing.T) {
	doc := page.Parse(`<html><head>
		<link rel="stylesheet" href="/css/site.css">
		<link rel="stylesheet" href="/css/vendor.min.css">
	</head><body>
		<script src="/js/app.js"></script>
		<script src="/js/lib.min.js?v=3"></script>
	</body></html>`)
	sub := (&Performance{}).Analyze(doc)

	css, js := 0, 0
	for _, is := range sub.Issues {
		switch is.Kind {
		case KindUnminifiedCSS:
			css++
		case KindUnminifiedJS:
			js++
		}
	}
	assert.Equal(t, 1, css)
	assert.Equal(t, 1, js)
}

func TestPerformanceLazyLoading(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<html><body>`)
	for i := 0; i < 6; i++ {
		sb.WriteString(`<img src="p.png" alt="p">`)
	}
	sb.WriteString(`<iframe src="https://example.com/embed"></iframe>`)
	sb.WriteString(`</body></html>`)

	sub := (&Performance{}).Analyze(page.Parse(sb.String()))

	lazy := 0
	for _, is := range sub.Issues {
		if is.Kind == KindMissingLazyLoad {
			lazy++
		}
	}
	// Images 3-5 are below the fold, plus the iframe.
	assert.Equal(t, 4, lazy)
}

func TestPerformanceCriticalCSS(t *testing.T) {
	with := page.Parse(`<html><head><style>body{margin:0}</style></head><body></body></html>`)
	without := page.Parse(`<html><head></head><body></body></html>`)

	assert.False(t, hasKind((&Performance{}).Analyze(with).Issues, KindNoCriticalCSS))
	assert.True(t, hasKind((&Performance{}).Analyze(without).Issues, KindNoCriticalCSS))
}

func TestPerformanceHeadBlocking(t *testing.T) {
	doc := page.Parse(`<html><head>
		<link rel="stylesheet" href="/a.min.css">
		<link rel="stylesheet" href="/b.min.css">
		<script src="/sync.min.js"></script>
		<script src="/later.min.js" defer></script>
	</head><body></body></html>`)
	sub := (&Performance{}).Analyze(doc)

	// Two stylesheets + one synchronous script = 3 blockers, warning tier.
	var found *Issue
	for i := range sub.Issues {
		if sub.Issues[i].Kind == KindHeadBlocking {
			found = &sub.Issues[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, SeverityWarning, found.Severity)
}

func TestPerformanceOversizedDOM(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<html><body>`)
	for i := 0; i < 3200; i++ {
		sb.WriteString(`<span>x</span>`)
	}
	sb.WriteString(`</body></html>`)

	sub := (&Performance{}).Analyze(page.Parse(sb.String()))

	var found *Issue
	for i := range sub.Issues {
		if sub.Issues[i].Kind == KindOversizedDOM {
			found = &sub.Issues[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, SeverityCritical, found.Severity)
}
