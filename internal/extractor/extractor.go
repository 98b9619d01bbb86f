// Package extractor turns the page around an editable field into a compact
// markdown prompt context with the field's position marked by Sentinel.
package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/v0xg/ohmycomment/internal/dom"
)

const (
	// Sentinel marks where the target field sits in the markdown. Model
	// output is expected to be free of it; see StripSentinel.
	Sentinel = "[HERE_IS_THE_INPUT_BOX_I_WANT_TO_GENERATE_FOR]"

	// MarkerAttr is set on the target for the duration of one Extract call.
	MarkerAttr = "data-oh-my-comment-target"
)

var (
	urlPattern     = regexp.MustCompile(`(https?://|/)[^\s)]+`)
	blankRunsRegex = regexp.MustCompile(`\n{3,}`)
)

// Extractor serialises page context for prompts. It holds no per-call state
// and is safe to reuse.
type Extractor struct {
	opts Options
	conv *converter.Converter
	log  zerolog.Logger

	// render converts the prepared scratch tree; swapped in tests.
	render func(root *html.Node) (string, error)
}

// New creates an Extractor.
func New(opts Options, log zerolog.Logger) *Extractor {
	e := &Extractor{
		opts: opts.withDefaults(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		log: log.With().Str("component", "extractor").Logger(),
	}
	e.render = e.toMarkdown
	return e
}

// Options returns the effective climb options.
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract returns the markdown context for target. It never fails: broken
// input degrades to whatever text could be recovered, and the transient
// marker attribute is always removed from target before returning.
func (e *Extractor) Extract(target *html.Node) (markdown string) {
	if target == nil {
		return ""
	}

	dom.SetAttr(target, MarkerAttr, "true")
	defer dom.RemoveAttr(target, MarkerAttr)

	s := newScratch()
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().Interface("panic", r).Msg("extract: serialisation panicked, using fallback")
			markdown = e.finish(s.fallback())
		}
	}()

	root := ChooseContextRoot(target, e.opts)
	s.container = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if head := findHead(target); head != nil {
		s.container.AppendChild(s.headSummary(head))
	}
	s.container.AppendChild(dom.Clone(root))
	s.apply()

	out, err := e.render(s.container)
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			e.log.Debug().Err(err).Msg("extract: markdown conversion failed, using fallback")
		}
		return e.finish(s.fallback())
	}
	return e.finish(s.expand(out))
}

func (e *Extractor) toMarkdown(root *html.Node) (string, error) {
	out, err := e.conv.ConvertString(dom.Render(root))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return out, nil
}

// finish collapses long URLs and normalises blank lines.
func (e *Extractor) finish(md string) string {
	md = CollapseURLs(md, e.opts.URLMaxLen)
	md = blankRunsRegex.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

// CollapseURLs replaces every URL-like run longer than maxLen with [url].
func CollapseURLs(s string, maxLen int) string {
	return urlPattern.ReplaceAllStringFunc(s, func(u string) string {
		if utf8.RuneCountInString(u) > maxLen {
			return "[url]"
		}
		return u
	})
}

// StripSentinel removes the position marker from model output.
func StripSentinel(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, Sentinel, ""))
}

func findHead(n *html.Node) *html.Node {
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	return dom.Find(top, func(c *html.Node) bool { return dom.IsElement(c, "head") })
}
