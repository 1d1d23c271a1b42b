package page

import (
	"strings"

	"golang.org/x/net/html"
)

// Head returns the document's head element, creating one under <html>
// if the parse did not produce it.
func (d *Document) Head() *html.Node {
	if h := d.Find("head"); h != nil {
		return h
	}
	h := NewElement("head")
	if root := d.Find("html"); root != nil {
		root.InsertBefore(h, root.FirstChild)
	} else {
		d.root.AppendChild(h)
	}
	return h
}

// Body returns the document's body element, creating one if absent.
func (d *Document) Body() *html.Node {
	if b := d.Find("body"); b != nil {
		return b
	}
	b := NewElement("body")
	if root := d.Find("html"); root != nil {
		root.AppendChild(b)
	} else {
		d.root.AppendChild(b)
	}
	return b
}

// NewElement creates a detached element node.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type: html.ElementNode,
		Data: tag,
		Attr: attrs,
	}
}

// NewTextElement creates a detached element node containing a single
// text child.
func NewTextElement(tag, text string) *html.Node {
	n := NewElement(tag)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

// AppendToHead appends n to the head element.
func (d *Document) AppendToHead(n *html.Node) {
	d.Head().AppendChild(n)
}

// PrependToBody inserts n as the first child of the body element.
func (d *Document) PrependToBody(n *html.Node) {
	body := d.Body()
	body.InsertBefore(n, body.FirstChild)
}

// InsertMeta appends a <meta> with the given key attribute (name or
// property) and content to the head.
func (d *Document) InsertMeta(keyAttr, key, content string) {
	d.AppendToHead(NewElement("meta",
		html.Attribute{Key: keyAttr, Val: key},
		html.Attribute{Key: "content", Val: content},
	))
}

// HasMeta reports whether a meta element with the given name or property
// key already exists.
func (d *Document) HasMeta(key string) bool {
	_, ok := d.MetaContent(key)
	return ok
}

// FirstParagraphText returns the text of the first non-empty <p> element.
func (d *Document) FirstParagraphText() string {
	for _, p := range d.FindAll("p") {
		if t := strings.TrimSpace(Text(p)); t != "" {
			return t
		}
	}
	return ""
}

// IsExternalLink reports whether href points outside the current site.
// Protocol-relative and absolute http(s) URLs count as external; paths,
// fragments, and mailto links do not.
func IsExternalLink(href string) bool {
	href = strings.TrimSpace(strings.ToLower(href))
	return strings.HasPrefix(href, "http://") ||
		strings.HasPrefix(href, "https://") ||
		strings.HasPrefix(href, "//")
}
