package background

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/ohmycomment/internal/ai"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/settings"
)

type fakeProvider struct {
	reply   *ai.Completion
	err     error
	prompts []string
}

func (f *fakeProvider) Complete(_ context.Context, prompt string) (*ai.Completion, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) Model() string { return "gpt-4o" }

type harness struct {
	store    *settings.Store
	provider *fakeProvider
	calls    atomic.Int32
	keys     []string
	debug    *debuglog.Log
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "s.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:    store,
		provider: &fakeProvider{reply: &ai.Completion{Text: "nice post", InputTokens: 40, OutputTokens: 3}},
		debug:    debuglog.New(10),
	}
	h.svc = NewService(store, func(key string) (ai.Provider, error) {
		h.calls.Add(1)
		h.keys = append(h.keys, key)
		return h.provider, nil
	}, h.debug, zerolog.Nop())
	return h
}

func TestHandleWithoutAPIKey(t *testing.T) {
	h := newHarness(t)

	resp := h.svc.Handle(context.Background(), Request{PageMarkdown: "page"})
	assert.Empty(t, resp.Reply)
	assert.True(t, strings.HasPrefix(resp.Text(), "Error: API key is not configured"))
	assert.Zero(t, h.calls.Load(), "no provider may be built without a key")

	u, err := h.store.Usage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, u.RequestCount)
}

func TestHandleFallbackAPIKey(t *testing.T) {
	h := newHarness(t)
	h.svc.FallbackAPIKey = "env-key"

	resp := h.svc.Handle(context.Background(), Request{PageMarkdown: "page"})
	assert.Equal(t, "nice post", resp.Text())
	assert.Equal(t, []string{"env-key"}, h.keys)
}

func TestHandleSuccessRecordsUsage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.SetAPIKey(ctx, "k"))

	resp := h.svc.Handle(ctx, Request{PageMarkdown: "thread [HERE]", CurrentValue: "draft"})
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "nice post", resp.Reply)
	assert.Empty(t, resp.Error)

	require.Len(t, h.provider.prompts, 1)
	assert.Contains(t, h.provider.prompts[0], "thread [HERE]")
	assert.Contains(t, h.provider.prompts[0], "draft")

	u, err := h.store.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Usage{RequestCount: 1, TotalInputTokens: 40, TotalOutputTokens: 3}, u)

	entries := h.debug.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, debuglog.KindRequest, entries[0].Kind)
	assert.Equal(t, debuglog.KindResponse, entries[1].Kind)
}

func TestHandleEstimatesMissingUsage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.SetAPIKey(ctx, "k"))
	h.provider.reply = &ai.Completion{Text: "hello there"}

	h.svc.Handle(ctx, Request{PageMarkdown: "some page text"})

	u, err := h.store.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, u.RequestCount)
	assert.Positive(t, u.TotalInputTokens)
	assert.Positive(t, u.TotalOutputTokens)
}

func TestHandleEmptyReply(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.SetAPIKey(ctx, "k"))
	h.provider.reply = &ai.Completion{Text: "  \n"}

	resp := h.svc.Handle(ctx, Request{})
	assert.Equal(t, NoReply, resp.Text())
}

func TestHandleRemoteError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.SetAPIKey(ctx, "k"))
	h.provider.err = &ai.APIError{StatusCode: 401, Body: `{"error":"bad key"}`}

	resp := h.svc.Handle(ctx, Request{})
	assert.Equal(t, `Error: LLM API error: 401 - {"error":"bad key"}`, resp.Text())

	h.provider.err = errors.New("dial tcp: connection refused")
	resp = h.svc.Handle(ctx, Request{})
	assert.Equal(t, "Error: dial tcp: connection refused", resp.Text())

	u, err := h.store.Usage(ctx)
	require.NoError(t, err)
	assert.Zero(t, u.RequestCount)
}

func TestPersonaResolutionOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.SetAPIKey(ctx, "k"))

	first, err := h.store.AddPersona(ctx, "first", "PERSONA-FIRST")
	require.NoError(t, err)
	second, err := h.store.AddPersona(ctx, "second", "PERSONA-SECOND")
	require.NoError(t, err)
	third, err := h.store.AddPersona(ctx, "third", "PERSONA-THIRD")
	require.NoError(t, err)
	require.NoError(t, h.store.SelectDefault(ctx, second.ID))
	require.NoError(t, h.store.PinHostPersona(ctx, "news.example.com", third.ID))

	last := func() string { return h.provider.prompts[len(h.provider.prompts)-1] }

	h.svc.Handle(ctx, Request{PersonaID: first.ID, Host: "news.example.com"})
	assert.Contains(t, last(), "PERSONA-FIRST")

	h.svc.Handle(ctx, Request{Host: "news.example.com"})
	assert.Contains(t, last(), "PERSONA-THIRD")

	h.svc.Handle(ctx, Request{Host: "other.example.com"})
	assert.Contains(t, last(), "PERSONA-SECOND")

	h.svc.Handle(ctx, Request{PersonaID: "deleted", Host: "other.example.com"})
	assert.Contains(t, last(), "PERSONA-SECOND")
}

func TestPersonaNoneConfigured(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.SetAPIKey(ctx, "k"))

	h.svc.Handle(ctx, Request{})
	require.Len(t, h.provider.prompts, 1)
	assert.Contains(t, h.provider.prompts[0], "No preset prompts provided.")
}

type blockingHandler struct{ release chan struct{} }

func (b blockingHandler) Handle(_ context.Context, req Request) Response {
	<-b.release
	return Response{ID: req.ID, Reply: "late"}
}

type panickyHandler struct{}

func (panickyHandler) Handle(context.Context, Request) Response { panic("boom") }

func TestBusDeliversOneResponse(t *testing.T) {
	h := newHarness(t)
	bus := NewBus(h.svc, zerolog.Nop())

	resp, err := bus.Send(context.Background(), Request{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.ID)
	assert.Contains(t, resp.Error, "API key")
}

func TestBusSendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	bus := NewBus(blockingHandler{release: release}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := bus.Send(ctx, Request{ID: "r2"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(panickyHandler{}, zerolog.Nop())

	select {
	case resp := <-bus.Post(context.Background(), Request{ID: "r3"}):
		assert.Equal(t, "r3", resp.ID)
		assert.Equal(t, "Error: internal error: boom", resp.Text())
	case <-time.After(time.Second):
		t.Fatal("no response delivered")
	}
}
