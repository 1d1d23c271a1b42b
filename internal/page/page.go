// Package page wraps golang.org/x/net/html with the query and mutation
// helpers the analyzers and fix rules need. Parsing is tolerant: malformed
// or partial markup produces a best-effort tree, never an error.
package page

import (
	"strings"

	"golang.org/x/net/html"
)

// Document is a parsed HTML page. The underlying tree is mutable; callers
// that need a stable snapshot should work on the rendered string.
type Document struct {
	root *html.Node
}

// Parse builds a Document from raw HTML. html.Parse repairs malformed
// markup (unclosed tags, missing html/head/body) rather than failing, so
// the only error path is a reader failure, which cannot happen for a
// string input.
func Parse(raw string) *Document {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// Unreachable for string input; keep a usable empty document anyway.
		root, _ = html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	}
	return &Document{root: root}
}

// Render serializes the document back to HTML.
func (d *Document) Render() string {
	var sb strings.Builder
	_ = html.Render(&sb, d.root)
	return sb.String()
}

// Root returns the document root node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Walk visits every node in document order. Returning false from fn stops
// the walk.
func (d *Document) Walk(fn func(*html.Node) bool) {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if !fn(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(d.root)
}

// Find returns the first element with the given tag name, or nil.
func (d *Document) Find(tag string) *html.Node {
	var found *html.Node
	d.Walk(func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindAll returns every element with the given tag name in document order.
func (d *Document) FindAll(tag string) []*html.Node {
	var found []*html.Node
	d.Walk(func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = append(found, n)
		}
		return true
	})
	return found
}

// Attr returns the value of the named attribute on n and whether it exists.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute on n.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// Text returns the concatenated text content of n and its descendants,
// with runs of whitespace collapsed.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			// Script and style bodies are not page text.
			if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// BodyText returns the visible text of the document body. Falls back to
// the whole tree when no body element exists.
func (d *Document) BodyText() string {
	if body := d.Find("body"); body != nil {
		return Text(body)
	}
	return Text(d.root)
}

// WordCount returns the number of whitespace-separated words in the body.
func (d *Document) WordCount() int {
	return len(strings.Fields(d.BodyText()))
}

// Title returns the trimmed content of the <title> element and whether
// the element exists at all.
func (d *Document) Title() (string, bool) {
	t := d.Find("title")
	if t == nil {
		return "", false
	}
	return strings.TrimSpace(Text(t)), true
}

// MetaContent returns the content attribute of the first meta element
// whose name or property attribute equals key (case-insensitive).
func (d *Document) MetaContent(key string) (string, bool) {
	for _, m := range d.FindAll("meta") {
		name, _ := Attr(m, "name")
		prop, _ := Attr(m, "property")
		if strings.EqualFold(name, key) || strings.EqualFold(prop, key) {
			v, _ := Attr(m, "content")
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// NodeCount returns the number of element nodes in the document.
func (d *Document) NodeCount() int {
	count := 0
	d.Walk(func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			count++
		}
		return true
	})
	return count
}
