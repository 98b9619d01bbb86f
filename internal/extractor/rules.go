package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/xid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/v0xg/ohmycomment/internal/dom"
)

// noiseSelector lists elements dropped with everything inside them.
const noiseSelector = "script, style, noscript, iframe, canvas, svg, template, object, embed, head, link"

// Boilerplate is the list of action phrases dropped when they are the whole
// text of a link, button, div or span.
var Boilerplate = []string{
	"click here", "read more", "learn more", "more info", "report", "submit",
	"sign up", "log in", "download", "举报", "点击这里", "了解更多", "举报评论",
}

var metaNames = map[string]bool{
	"description":         true,
	"keywords":            true,
	"author":              true,
	"viewport":            true,
	"og:title":            true,
	"og:description":      true,
	"twitter:title":       true,
	"twitter:description": true,
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// scratch is the detached copy of the page one Extract call works on.
// Literal output (brackets and the sentinel) is written as opaque tokens so
// the markdown converter cannot escape it; expand swaps them back. Tokens
// carry a per-call nonce so page text cannot spell one.
type scratch struct {
	container *html.Node
	nonce     string
	literals  []string
}

func newScratch() *scratch {
	return &scratch{nonce: xid.New().String()}
}

func (s *scratch) tokenFor(i int) string {
	return fmt.Sprintf("omc%st%dx", s.nonce, i)
}

func (s *scratch) token(literal string) string {
	s.literals = append(s.literals, literal)
	return s.tokenFor(len(s.literals) - 1)
}

func (s *scratch) expand(md string) string {
	if len(s.literals) == 0 {
		return md
	}
	pairs := make([]string, 0, 2*len(s.literals))
	for i, lit := range s.literals {
		pairs = append(pairs, s.tokenFor(i), lit)
	}
	return strings.NewReplacer(pairs...).Replace(md)
}

// fallback is the plain visible text of whatever the scratch tree holds.
func (s *scratch) fallback() string {
	if s.container == nil {
		return ""
	}
	return s.expand(dom.Text(s.container))
}

func textNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func paragraph(text string) *html.Node {
	p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	p.AppendChild(textNode(text))
	return p
}

func replaceWith(old, repl *html.Node) {
	if old.Parent == nil {
		return
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
}

// unwrap moves n's children into its place and drops n.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

// headSummary renders the page title and descriptive meta tags.
func (s *scratch) headSummary(head *html.Node) *html.Node {
	box := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case dom.IsElement(c, "title"):
			if t := dom.Text(c); t != "" {
				box.AppendChild(paragraph(t))
			}
		case dom.IsElement(c, "meta"):
			name, ok := dom.Attr(c, "name")
			if !ok {
				name, ok = dom.Attr(c, "property")
			}
			if !ok || !metaNames[strings.ToLower(name)] {
				continue
			}
			content, _ := dom.Attr(c, "content")
			box.AppendChild(paragraph(s.token(fmt.Sprintf("[Meta: %s = %s]", name, content))))
		}
	}
	return box
}

// apply runs every transformation rule over the scratch tree. Each rule is
// independent; the order only matters where one rule's output feeds
// another's test (the marker must go before its contents are annotated).
func (s *scratch) apply() {
	doc := goquery.NewDocumentFromNode(s.container)

	doc.Find("[" + MarkerAttr + `="true"]`).Each(func(_ int, sel *goquery.Selection) {
		replaceWith(sel.Get(0), paragraph(s.token(Sentinel)))
	})

	doc.Find(noiseSelector).Remove()

	doc.Find("[aria-label], [aria-description]").Each(func(_ int, sel *goquery.Selection) {
		s.annotate(sel.Get(0))
	})

	doc.Find("a, button, div, span").Each(func(_ int, sel *goquery.Selection) {
		if isBoilerplate(dom.Text(sel.Get(0))) {
			sel.Remove()
		}
	})

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		label := "[image]"
		if alt, ok := dom.Attr(sel.Get(0), "alt"); ok && strings.TrimSpace(alt) != "" {
			label = fmt.Sprintf("[image (alt: %s)]", alt)
		}
		replaceWith(sel.Get(0), textNode(s.token(label)))
	})

	doc.Find("audio, video").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		replaceWith(n, textNode(s.token("["+n.Data+"]")))
	})

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		unwrap(sel.Get(0))
	})
}

func (s *scratch) annotate(n *html.Node) {
	for _, attr := range []string{"aria-label", "aria-description"} {
		v, ok := dom.Attr(n, attr)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		note := textNode(" " + s.token(fmt.Sprintf("[%s: %s]", attr, v)))
		if voidTags[n.Data] {
			if n.Parent != nil {
				n.Parent.InsertBefore(note, n.NextSibling)
			}
			continue
		}
		n.AppendChild(note)
	}
}

func isBoilerplate(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, phrase := range Boilerplate {
		if text == phrase {
			return true
		}
	}
	return false
}
