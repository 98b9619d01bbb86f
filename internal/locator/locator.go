// Package locator finds the editable field an event landed in.
package locator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/v0xg/ohmycomment/internal/dom"
)

// DefaultRichEditorPrefixes are tag-name prefixes of custom elements that
// wrap their own contenteditable surface (Reddit's shreddit-composer etc.).
var DefaultRichEditorPrefixes = []string{"shreddit-"}

// Locator decides which element counts as editable.
type Locator struct {
	RichEditorPrefixes []string
}

// New returns a Locator using the default rich-editor prefixes.
func New() *Locator {
	return &Locator{RichEditorPrefixes: DefaultRichEditorPrefixes}
}

// Find walks from n (inclusive) up through its ancestors and returns the
// first element that IsEditable accepts. It returns nil when the walk
// reaches the document without a match.
func (l *Locator) Find(n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.DocumentNode {
			return nil
		}
		if l.IsEditable(cur) {
			return cur
		}
	}
	return nil
}

// IsEditable reports whether n is a text-entry surface.
func (l *Locator) IsEditable(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	if n.Data == "textarea" {
		return true
	}
	if v, ok := dom.Attr(n, "contenteditable"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "true", "plaintext-only":
			return true
		}
	}
	if l.isRichEditor(n.Data) {
		return goquery.NewDocumentFromNode(n).Find(`[contenteditable="true"]`).Length() > 0
	}
	return false
}

func (l *Locator) isRichEditor(tag string) bool {
	for _, prefix := range l.RichEditorPrefixes {
		if strings.HasPrefix(tag, prefix) {
			return true
		}
	}
	return false
}
