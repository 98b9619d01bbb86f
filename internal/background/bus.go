package background

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Handler answers one request.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// Bus carries requests from the page session to a Handler. Each request
// is handled on its own goroutine and answered exactly once.
type Bus struct {
	handler Handler
	log     zerolog.Logger
}

// NewBus returns a bus delivering to h.
func NewBus(h Handler, log zerolog.Logger) *Bus {
	return &Bus{handler: h, log: log.With().Str("component", "bus").Logger()}
}

// Post starts handling req and returns the channel its single response
// arrives on. The channel is buffered so the handler never blocks on a
// caller that went away.
func (b *Bus) Post(ctx context.Context, req Request) <-chan Response {
	ch := make(chan Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error().Interface("panic", r).Str("request_id", req.ID).Msg("handler panicked")
				ch <- Response{ID: req.ID, Error: fmt.Sprintf("internal error: %v", r)}
			}
		}()
		ch <- b.handler.Handle(ctx, req)
	}()
	return ch
}

// Send posts req and waits for its response or for ctx to end.
func (b *Bus) Send(ctx context.Context, req Request) (Response, error) {
	select {
	case resp := <-b.Post(ctx, req):
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
