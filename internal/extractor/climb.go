package extractor

import (
	"golang.org/x/net/html"

	"github.com/v0xg/ohmycomment/internal/dom"
)

// Options bounds how much of the page ends up in the prompt.
type Options struct {
	// InitialLevels is how many ancestors to climb unconditionally.
	InitialLevels int `yaml:"initial_levels"`
	// MinText is the visible-text length (runes) the context root should
	// reach before the climb stops.
	MinText int `yaml:"min_text"`
	// MaxLevels caps the total climb.
	MaxLevels int `yaml:"max_levels"`
	// Step is how many levels each retry climbs.
	Step int `yaml:"step"`
	// URLMaxLen is the longest URL-like run kept verbatim in the output.
	URLMaxLen int `yaml:"url_max_len"`
}

// DefaultOptions returns the climb used by the assistant out of the box.
func DefaultOptions() Options {
	return Options{
		InitialLevels: 10,
		MinText:       1000,
		MaxLevels:     30,
		Step:          2,
		URLMaxLen:     20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InitialLevels <= 0 {
		o.InitialLevels = d.InitialLevels
	}
	if o.MinText < 0 {
		o.MinText = 0
	}
	if o.MaxLevels < o.InitialLevels {
		o.MaxLevels = o.InitialLevels
	}
	if o.Step <= 0 {
		o.Step = d.Step
	}
	if o.URLMaxLen <= 0 {
		o.URLMaxLen = d.URLMaxLen
	}
	return o
}

// isPageRoot reports whether climbing past n would leave page content.
func isPageRoot(n *html.Node) bool {
	return n.Type != html.ElementNode || n.Data == "body" || n.Data == "html"
}

// ChooseContextRoot returns the ancestor of target whose subtree becomes
// the prompt context. It climbs opts.InitialLevels parents, then keeps
// climbing opts.Step levels at a time while the subtree has fewer than
// opts.MinText visible runes. The climb never passes <body> and never
// exceeds opts.MaxLevels.
func ChooseContextRoot(target *html.Node, opts Options) *html.Node {
	opts = opts.withDefaults()

	cur := target
	levels := 0
	climb := func(n int) bool {
		for i := 0; i < n; i++ {
			if levels >= opts.MaxLevels || isPageRoot(cur) {
				return false
			}
			p := dom.ElementParent(cur)
			if p == nil {
				return false
			}
			cur = p
			levels++
		}
		return true
	}

	climb(opts.InitialLevels)
	for dom.VisibleTextLen(cur) < opts.MinText {
		if !climb(opts.Step) {
			break
		}
	}
	return cur
}
