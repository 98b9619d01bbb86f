// Package dispatch is the page side of a completion round trip: it builds
// the request for one editable field, hands it to the background over a
// Transport and returns the text to insert.
package dispatch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/extractor"
)

// ErrBusy is returned when a generation is already in flight.
var ErrBusy = errors.New("generation already in progress")

// Transport delivers a request to the background and waits for its
// single response.
type Transport interface {
	Send(ctx context.Context, req background.Request) (background.Response, error)
}

// Input describes one generation.
type Input struct {
	// Target is the editable field in the page snapshot.
	Target *html.Node

	Host         string
	SystemPrompt string
	PersonaID    string
	CurrentValue string
}

// Dispatcher runs at most one generation at a time.
type Dispatcher struct {
	extractor *extractor.Extractor
	transport Transport
	log       zerolog.Logger

	busy atomic.Bool

	// OnBusy, when set, is called with true as a generation starts and
	// with false once it has finished.
	OnBusy func(busy bool)
}

// New creates a Dispatcher.
func New(ex *extractor.Extractor, t Transport, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		extractor: ex,
		transport: t,
		log:       log.With().Str("component", "dispatch").Logger(),
	}
}

// Busy reports whether a generation is in flight.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Generate extracts the page context around in.Target, asks the background
// for a reply and returns the text to surface: the reply with any sentinel
// removed, or an "Error: ..." message. The only returned error is ErrBusy.
func (d *Dispatcher) Generate(ctx context.Context, in Input) (string, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	d.notify(true)
	defer func() {
		d.busy.Store(false)
		d.notify(false)
	}()

	req := background.Request{
		Host:         in.Host,
		SystemPrompt: in.SystemPrompt,
		PersonaID:    in.PersonaID,
		PageMarkdown: d.extractor.Extract(in.Target),
		CurrentValue: in.CurrentValue,
	}
	d.log.Debug().Str("host", in.Host).Int("markdown_bytes", len(req.PageMarkdown)).Msg("sending generate request")

	resp, err := d.transport.Send(ctx, req)
	if err != nil {
		d.log.Warn().Err(err).Msg("transport failed")
		return "Error: " + err.Error(), nil
	}
	return extractor.StripSentinel(resp.Text()), nil
}

func (d *Dispatcher) notify(busy bool) {
	if d.OnBusy != nil {
		d.OnBusy(busy)
	}
}
