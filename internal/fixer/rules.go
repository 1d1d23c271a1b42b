package fixer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/rybkagreen/pagetune/internal/analyzer"
	"github.com/rybkagreen/pagetune/internal/page"
)

// Synthesis limits, matching the analyzer's length expectations.
const (
	synthesizedTitleMaxLen       = 60
	synthesizedDescriptionMaxLen = 155
)

// fixMissingTitle synthesizes a <title> from the first heading, or from
// the opening body text when no heading exists.
func fixMissingTitle(doc *page.Document, _ analyzer.Issue) bool {
	if title, ok := doc.Title(); ok && title != "" {
		return false
	}

	text := ""
	for _, tag := range []string{"h1", "h2", "h3"} {
		if h := doc.Find(tag); h != nil {
			text = strings.TrimSpace(page.Text(h))
			if text != "" {
				break
			}
		}
	}
	if text == "" {
		text = truncateWords(doc.BodyText(), synthesizedTitleMaxLen)
	}
	if text == "" {
		return false
	}

	text = truncateWords(text, synthesizedTitleMaxLen)
	if existing := doc.Find("title"); existing != nil {
		// Empty <title></title>: fill it instead of inserting a second one.
		existing.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		return true
	}
	doc.AppendToHead(page.NewTextElement("title", text))
	return true
}

// fixMissingDescription synthesizes a meta description by truncating the
// first paragraph.
func fixMissingDescription(doc *page.Document, _ analyzer.Issue) bool {
	if doc.HasMeta("description") {
		return false
	}

	text := doc.FirstParagraphText()
	if text == "" {
		text = doc.BodyText()
	}
	if text == "" {
		return false
	}

	doc.InsertMeta("name", "description", truncateWords(text, synthesizedDescriptionMaxLen))
	return true
}

// fixMissingH1 inserts an <h1> derived from the title at the top of the
// body. Requires a non-empty title; runs after fixMissingTitle when both
// issues are present because the analyzer orders criticals first.
func fixMissingH1(doc *page.Document, _ analyzer.Issue) bool {
	if doc.Find("h1") != nil {
		return false
	}
	title, ok := doc.Title()
	if !ok || title == "" {
		return false
	}
	doc.PrependToBody(page.NewTextElement("h1", title))
	return true
}

// fixMissingViewport inserts the standard responsive viewport meta.
func fixMissingViewport(doc *page.Document, _ analyzer.Issue) bool {
	if doc.HasMeta("viewport") {
		return false
	}
	doc.InsertMeta("name", "viewport", "width=device-width, initial-scale=1")
	return true
}

// fixMissingLang sets lang="en" on the html element when no language is
// declared. "en" is a default, not a detection; callers wanting another
// language set it upstream.
func fixMissingLang(doc *page.Document, _ analyzer.Issue) bool {
	root := doc.Find("html")
	if root == nil {
		return false
	}
	if v, ok := page.Attr(root, "lang"); ok && strings.TrimSpace(v) != "" {
		return false
	}
	page.SetAttr(root, "lang", "en")
	return true
}

// fixMissingCharset inserts <meta charset="utf-8"> as the first head child.
func fixMissingCharset(doc *page.Document, _ analyzer.Issue) bool {
	for _, m := range doc.FindAll("meta") {
		if _, ok := page.Attr(m, "charset"); ok {
			return false
		}
	}
	head := doc.Head()
	head.InsertBefore(page.NewElement("meta", html.Attribute{Key: "charset", Val: "utf-8"}), head.FirstChild)
	return true
}

// fixMissingAlt inserts an empty alt="" on every image lacking the
// attribute. Empty alt marks the image decorative, which is valid; a
// meaningful description needs a human or a suggestion pass.
func fixMissingAlt(doc *page.Document, _ analyzer.Issue) bool {
	changed := false
	for _, img := range doc.FindAll("img") {
		if _, ok := page.Attr(img, "alt"); !ok {
			page.SetAttr(img, "alt", "")
			changed = true
		}
	}
	return changed
}

// fixMissingLazyLoad adds loading="lazy" to below-the-fold images and all
// iframes that lack it. The fold heuristic matches the analyzer's.
func fixMissingLazyLoad(doc *page.Document, _ analyzer.Issue) bool {
	const aboveFold = 3

	changed := false
	for i, img := range doc.FindAll("img") {
		if i < aboveFold {
			continue
		}
		if v, _ := page.Attr(img, "loading"); !strings.EqualFold(v, "lazy") {
			page.SetAttr(img, "loading", "lazy")
			changed = true
		}
	}
	for _, f := range doc.FindAll("iframe") {
		if v, _ := page.Attr(f, "loading"); !strings.EqualFold(v, "lazy") {
			page.SetAttr(f, "loading", "lazy")
			changed = true
		}
	}
	return changed
}

// fixUnsafeExternalLinks appends noopener to the rel attribute of every
// external link missing it.
func fixUnsafeExternalLinks(doc *page.Document, _ analyzer.Issue) bool {
	changed := false
	for _, a := range doc.FindAll("a") {
		href, ok := page.Attr(a, "href")
		if !ok || !page.IsExternalLink(href) {
			continue
		}
		rel, _ := page.Attr(a, "rel")
		if strings.Contains(strings.ToLower(rel), "noopener") {
			continue
		}
		if rel == "" {
			page.SetAttr(a, "rel", "noopener")
		} else {
			page.SetAttr(a, "rel", rel+" noopener")
		}
		changed = true
	}
	return changed
}

// fixOpenGraph derives the minimal Open Graph tag set from metadata the
// page already declares. Only properties with a known source value are
// inserted; og:image and og:url have no on-page source and are filled
// from twitter equivalents when present.
func fixOpenGraph(doc *page.Document, _ analyzer.Issue) bool {
	changed := false

	insert := func(property, value string) {
		if value == "" || doc.HasMeta(property) {
			return
		}
		doc.InsertMeta("property", property, value)
		changed = true
	}

	title, _ := doc.Title()
	desc, _ := doc.MetaContent("description")
	twImage, _ := doc.MetaContent("twitter:image")
	canonical := canonicalHref(doc)

	insert("og:title", title)
	insert("og:description", desc)
	insert("og:url", canonical)
	insert("og:image", twImage)
	if title != "" || desc != "" {
		insert("og:type", "website")
	}

	return changed
}

// canonicalHref returns the canonical link URL when declared.
func canonicalHref(doc *page.Document) string {
	for _, l := range doc.FindAll("link") {
		if rel, _ := page.Attr(l, "rel"); strings.EqualFold(rel, "canonical") {
			href, _ := page.Attr(l, "href")
			return strings.TrimSpace(href)
		}
	}
	return ""
}

// truncateWords shortens s to at most max bytes, cutting on a word
// boundary when possible and never inside a rune.
func truncateWords(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
