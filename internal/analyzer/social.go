package analyzer

import (
	"fmt"
	"strings"

	"github.com/rybkagreen/pagetune/internal/page"
)

// Social validates the Open Graph and Twitter Card metadata that controls
// link previews. Open Graph and Twitter are scored separately and combined
// by the aggregator with their own weights.
type Social struct{}

// Name implements Analyzer.
func (s *Social) Name() string { return "social" }

// ogRequired maps the required Open Graph properties to their issue kinds.
var ogRequired = []struct {
	property string
	kind     IssueKind
}{
	{"og:title", KindMissingOGTitle},
	{"og:description", KindMissingOGDescription},
	{"og:type", KindMissingOGType},
	{"og:url", KindMissingOGURL},
	{"og:image", KindMissingOGImage},
}

// twitterRequired maps each declared card type to its required fields.
// The card tag itself is always required once Twitter metadata is scored.
var twitterRequired = map[string][]string{
	"summary":             {"twitter:title", "twitter:description"},
	"summary_large_image": {"twitter:title", "twitter:description", "twitter:image"},
	"app":                 {"twitter:app:id:iphone", "twitter:app:id:googleplay"},
	"player":              {"twitter:title", "twitter:player", "twitter:player:width", "twitter:player:height"},
}

const socialFieldPenalty = 20

// Open Graph carries 20 of the social analyzer's 35 composite points,
// Twitter Cards the other 15. The sub-score folds that split in so the
// aggregator can treat social as a single 35% component.
const (
	ogShare      = 20
	twitterShare = 15
)

// Analyze implements Analyzer.
func (s *Social) Analyze(doc *page.Document) SubReport {
	ogScore, ogIssues := s.analyzeOpenGraph(doc)
	twScore, twIssues := s.analyzeTwitter(doc)

	issues := append(ogIssues, twIssues...)
	issues = append(issues, s.crossCheck(doc)...)

	combined := (ogScore*ogShare + twScore*twitterShare) / (ogShare + twitterShare)

	return SubReport{
		Analyzer: s.Name(),
		Score:    clampScore(combined),
		Issues:   issues,
	}
}

func (s *Social) analyzeOpenGraph(doc *page.Document) (int, []Issue) {
	var issues []Issue
	score := 100
	for _, req := range ogRequired {
		if v, ok := doc.MetaContent(req.property); !ok || v == "" {
			score -= socialFieldPenalty
			issues = append(issues, Issue{
				Kind:     req.kind,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("missing Open Graph property %s", req.property),
				Location: "head",
			})
		}
	}
	return clampScore(score), issues
}

func (s *Social) analyzeTwitter(doc *page.Document) (int, []Issue) {
	card, ok := doc.MetaContent("twitter:card")
	card = strings.ToLower(strings.TrimSpace(card))
	if !ok || card == "" {
		// No card declaration at all costs double a single missing field.
		return clampScore(100 - 2*socialFieldPenalty), []Issue{{
			Kind:     KindMissingTwitterField,
			Severity: SeverityWarning,
			Message:  "missing twitter:card declaration",
			Location: "head",
		}}
	}

	required, known := twitterRequired[card]
	if !known {
		return clampScore(100 - socialFieldPenalty), []Issue{{
			Kind:     KindMissingTwitterField,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("unknown twitter:card type %q", card),
			Location: "head",
		}}
	}

	var issues []Issue
	score := 100
	for _, field := range required {
		if v, ok := doc.MetaContent(field); !ok || v == "" {
			score -= socialFieldPenalty
			issues = append(issues, Issue{
				Kind:     KindMissingTwitterField,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("card type %q requires %s", card, field),
				Location: "head",
			})
		}
	}
	return clampScore(score), issues
}

// crossCheck flags divergence between Open Graph and Twitter images.
// Divergence is a warning, not critical: previews still render, they just
// differ between platforms.
func (s *Social) crossCheck(doc *page.Document) []Issue {
	ogImage, ok1 := doc.MetaContent("og:image")
	twImage, ok2 := doc.MetaContent("twitter:image")
	if !ok1 || !ok2 || ogImage == "" || twImage == "" {
		return nil
	}
	if ogImage == twImage {
		return nil
	}
	return []Issue{{
		Kind:     KindSocialImageMismatch,
		Severity: SeverityWarning,
		Message:  "og:image and twitter:image point at different resources",
		Location: "head",
	}}
}
