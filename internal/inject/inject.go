// Package inject writes generated text into an editable field by trying a
// fixed list of strategies in order until one reports success.
package inject

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// ErrNotApplied is returned by Run when no strategy succeeded.
var ErrNotApplied = errors.New("text could not be inserted")

// Target is the live editable element text is written into.
type Target interface {
	// Focus gives the element keyboard focus.
	Focus(ctx context.Context) error
	// Paste dispatches a synthetic paste event carrying text. It reports
	// whether a page handler cancelled the event.
	Paste(ctx context.Context, text string) (cancelled bool, err error)
	// ExecInsert runs document.execCommand("insertText") and returns its
	// result.
	ExecInsert(ctx context.Context, text string) (bool, error)
	// Splice writes text directly: replacing the selection of an input-like
	// control and firing input and change, or inserting a text node at the
	// selection of an editable region and firing input.
	Splice(ctx context.Context, text string) error
}

// Strategy is one way of writing text. Apply reports whether the text
// landed; a false result or an error moves the chain on to the next one.
type Strategy struct {
	Name  string
	Apply func(ctx context.Context, t Target, text string) (bool, error)
}

// Chain is an ordered list of strategies.
type Chain struct {
	strategies []Strategy
	log        zerolog.Logger
}

// NewChain returns a chain running strategies in the given order.
func NewChain(log zerolog.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		log:        log.With().Str("component", "inject").Logger(),
	}
}

// Default returns the clipboard, paste, execCommand, direct chain.
func Default(log zerolog.Logger) *Chain {
	return NewChain(log,
		Clipboard(clipboard.WriteAll),
		Paste(),
		ExecCommand(),
		Direct(),
	)
}

// Run focuses t and tries each strategy in order, stopping at the first
// success. It returns the name of the strategy that applied the text.
func (c *Chain) Run(ctx context.Context, t Target, text string) (string, error) {
	if err := t.Focus(ctx); err != nil {
		c.log.Debug().Err(err).Msg("focus failed")
	}
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ok, err := s.Apply(ctx, t, text)
		if err != nil {
			c.log.Debug().Err(err).Str("strategy", s.Name).Msg("strategy failed")
			continue
		}
		if ok {
			c.log.Debug().Str("strategy", s.Name).Int("chars", len(text)).Msg("text inserted")
			return s.Name, nil
		}
	}
	return "", ErrNotApplied
}

// Clipboard copies text to the host clipboard with write. The result is
// ignored so the chain always continues.
func Clipboard(write func(string) error) Strategy {
	return Strategy{
		Name: "clipboard",
		Apply: func(_ context.Context, _ Target, text string) (bool, error) {
			if write != nil {
				_ = write(text)
			}
			return false, nil
		},
	}
}

// Paste dispatches a synthetic paste. A page handler cancelling the event
// means the page took the text itself.
func Paste() Strategy {
	return Strategy{
		Name: "paste",
		Apply: func(ctx context.Context, t Target, text string) (bool, error) {
			cancelled, err := t.Paste(ctx, text)
			if err != nil {
				return false, fmt.Errorf("paste: %w", err)
			}
			return cancelled, nil
		},
	}
}

// ExecCommand uses document.execCommand("insertText").
func ExecCommand() Strategy {
	return Strategy{
		Name: "execCommand",
		Apply: func(ctx context.Context, t Target, text string) (bool, error) {
			ok, err := t.ExecInsert(ctx, text)
			if err != nil {
				return false, fmt.Errorf("execCommand: %w", err)
			}
			return ok, nil
		},
	}
}

// Direct splices the text into the element and fires the input events.
func Direct() Strategy {
	return Strategy{
		Name: "direct",
		Apply: func(ctx context.Context, t Target, text string) (bool, error) {
			if err := t.Splice(ctx, text); err != nil {
				return false, fmt.Errorf("direct: %w", err)
			}
			return true, nil
		},
	}
}

var plain = bluemonday.StrictPolicy()

// PlainText strips any HTML markup a model put into its reply and decodes
// entities, leaving the text a user would have typed.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(plain.Sanitize(s))
}
