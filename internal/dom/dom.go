// Package dom holds small helpers over golang.org/x/net/html trees. The
// browser session snapshots the live document into one of these trees and
// every lookup the assistant does (locating the editable field, building
// the prompt context) runs against the snapshot.
package dom

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Parse parses a full HTML document.
func Parse(doc string) (*html.Node, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return root, nil
}

// Render serialises n (including n itself) back to HTML.
func Render(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// IsElement reports whether n is an element with one of the given tag names.
// With no names it only checks the node type.
func IsElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets (or replaces) attribute key on n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr drops every occurrence of attribute key from n.
func RemoveAttr(n *html.Node, key string) {
	if n == nil {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// ElementParent returns the nearest ancestor that is an element, or nil
// once the document node is reached.
func ElementParent(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// Find returns the first node (depth-first, n included) for which match
// returns true.
func Find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindByAttr returns the first element carrying attribute key=val.
func FindByAttr(n *html.Node, key, val string) *html.Node {
	return Find(n, func(c *html.Node) bool {
		v, ok := Attr(c, key)
		return ok && c.Type == html.ElementNode && v == val
	})
}

// Clone returns a deep copy of n detached from any parent.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// invisible elements never contribute text a reader would see.
var invisible = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// Text returns the visible text under n with whitespace runs collapsed.
func Text(n *html.Node) string {
	var sb strings.Builder
	collectText(n, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	case html.ElementNode:
		if invisible[n.Data] {
			return
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// VisibleTextLen counts the non-space runes of the visible text under n.
func VisibleTextLen(n *html.Node) int {
	count := 0
	for _, r := range Text(n) {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

// XPath builds an absolute, index-qualified path to element n, e.g.
// /html[1]/body[1]/div[3]/textarea[1]. The page evaluates it with
// document.evaluate to get the live element back.
func XPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		idx := 1
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == cur.Data {
				idx++
			}
		}
		parts = append(parts, cur.Data+"["+strconv.Itoa(idx)+"]")
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// ResolveXPath follows a path produced by XPath back to the element in doc.
func ResolveXPath(doc *html.Node, path string) (*html.Node, error) {
	cur := doc
	for _, step := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		open := strings.IndexByte(step, '[')
		if open < 0 || !strings.HasSuffix(step, "]") {
			return nil, fmt.Errorf("malformed xpath step %q", step)
		}
		tag := step[:open]
		idx, err := strconv.Atoi(step[open+1 : len(step)-1])
		if err != nil || idx < 1 {
			return nil, fmt.Errorf("malformed xpath index in %q", step)
		}
		var next *html.Node
		seen := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				seen++
				if seen == idx {
					next = c
					break
				}
			}
		}
		if next == nil {
			return nil, fmt.Errorf("xpath %s: no element for step %q", path, step)
		}
		cur = next
	}
	return cur, nil
}
