package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/dispatch"
	"github.com/v0xg/ohmycomment/internal/extractor"
	"github.com/v0xg/ohmycomment/internal/inject"
	"github.com/v0xg/ohmycomment/internal/overlay"
)

// threadDoc is the tab as the bridge leaves it: event 3 hit the textarea,
// event 4 hit a paragraph, and the textarea was tagged "f1".
const threadDoc = `<html><head><title>t</title></head><body><main>
  <p data-oh-my-comment-event="4">Gophers dig tunnels all day long.</p>
  <textarea data-oh-my-comment-event="3" data-oh-my-comment-id="f1"></textarea>
</main></body></html>`

type call struct {
	method string
	args   []any
}

type fakeDriver struct {
	mu      sync.Mutex
	html    string
	calls   []call
	results map[string]string
}

func (d *fakeDriver) HTML(context.Context) (string, error) {
	return d.html, nil
}

func (d *fakeDriver) Call(_ context.Context, method string, args ...any) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{method: method, args: args})
	if r, ok := d.results[method]; ok {
		return json.RawMessage(r), nil
	}
	return json.RawMessage("null"), nil
}

func (d *fakeDriver) Shape(context.Context, overlay.Target) (overlay.Rect, error) {
	return overlay.Rect{Top: 100, Left: 10, Bottom: 200, Right: 410}, nil
}

func (d *fakeDriver) Screenshot(context.Context, overlay.Target) ([]byte, error) {
	return nil, fmt.Errorf("no screenshots here")
}

func (d *fakeDriver) methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		out = append(out, c.method)
	}
	return out
}

func (d *fakeDriver) find(method string) (call, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.calls {
		if c.method == method {
			return c, true
		}
	}
	return call{}, false
}

func (d *fakeDriver) reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

type fakeHosts struct {
	mu       sync.Mutex
	disabled map[string]bool
}

func (h *fakeHosts) IsHostDisabled(_ context.Context, host string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disabled[host], nil
}

func (h *fakeHosts) set(host string, disabled bool) {
	h.mu.Lock()
	h.disabled[host] = disabled
	h.mu.Unlock()
}

type fakeTransport struct {
	mu    sync.Mutex
	reqs  []background.Request
	reply string
}

func (f *fakeTransport) Send(_ context.Context, req background.Request) (background.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return background.Response{Reply: f.reply}, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type harness struct {
	sess      *Session
	drv       *fakeDriver
	hosts     *fakeHosts
	transport *fakeTransport
	debug     *debuglog.Log
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()
	h := &harness{
		drv: &fakeDriver{html: threadDoc, results: map[string]string{
			"tag":    `"f1"`,
			"scroll": `{"x":0,"y":50}`,
			"value":  `"draft"`,
			"paste":  `true`,
		}},
		hosts:     &fakeHosts{disabled: map[string]bool{}},
		transport: &fakeTransport{reply: "Nice <b>tunnels</b>"},
		debug:     debuglog.New(10),
	}
	h.sess = newSession(context.Background(), h.drv, SessionConfig{
		Dispatcher: dispatch.New(extractor.New(extractor.DefaultOptions(), log), h.transport, log),
		Chain:      inject.NewChain(log, inject.Paste(), inject.ExecCommand(), inject.Direct()),
		Hosts:      h.hosts,
		Debug:      h.debug,
		Logger:     log,
	})
	require.NoError(t, h.sess.setURL(context.Background(), "https://news.example.com/item?id=1"))
	return h
}

func (h *harness) handle(ev event) {
	h.sess.handle(context.Background(), ev)
}

func TestFocusOnFieldMountsOverlay(t *testing.T) {
	h := newHarness(t)

	h.handle(event{Type: eventFocus, Seq: 3})

	target, ok := h.sess.overlay.Current()
	require.True(t, ok)
	assert.Equal(t, overlay.Target("f1"), target)
	assert.Equal(t, []string{"tag", "mount", "scroll", "place"}, h.drv.methods())

	tag, _ := h.drv.find("tag")
	assert.Equal(t, []any{"/html[1]/body[1]/main[1]/textarea[1]"}, tag.args)
	place, _ := h.drv.find("place")
	assert.Equal(t, []any{float64(258), float64(362)}, place.args)
}

func TestClickOutsideFieldUnmounts(t *testing.T) {
	h := newHarness(t)
	h.handle(event{Type: eventFocus, Seq: 3})
	h.drv.reset()

	h.handle(event{Type: eventClick, Seq: 4})

	_, ok := h.sess.overlay.Current()
	assert.False(t, ok)
	assert.Equal(t, []string{"unmount"}, h.drv.methods())
}

func TestClickInsideOverlayKeepsIt(t *testing.T) {
	h := newHarness(t)
	h.handle(event{Type: eventFocus, Seq: 3})
	h.drv.reset()

	h.handle(event{Type: eventClick, Seq: 5, Inside: true})

	_, ok := h.sess.overlay.Current()
	assert.True(t, ok)
	assert.Empty(t, h.drv.methods())
}

func TestReadyResetsWithoutTouchingPage(t *testing.T) {
	h := newHarness(t)
	h.handle(event{Type: eventFocus, Seq: 3})
	h.drv.reset()
	h.hosts.set("blocked.example.org", true)

	h.handle(event{Type: eventReady, URL: "https://blocked.example.org/post"})

	_, ok := h.sess.overlay.Current()
	assert.False(t, ok)
	assert.Empty(t, h.drv.methods())
	assert.Equal(t, "blocked.example.org", h.sess.Host())

	h.handle(event{Type: eventFocus, Seq: 3})
	assert.Empty(t, h.drv.methods(), "disabled host ignores focus")
}

func TestPolicyRefreshTakesOverlayDown(t *testing.T) {
	h := newHarness(t)
	h.handle(event{Type: eventFocus, Seq: 3})
	h.drv.reset()

	h.hosts.set("news.example.com", true)
	h.handle(event{Type: eventPolicy})

	_, ok := h.sess.overlay.Current()
	assert.False(t, ok)
	assert.Equal(t, []string{"unmount"}, h.drv.methods())

	h.hosts.set("news.example.com", false)
	h.handle(event{Type: eventPolicy})
	h.handle(event{Type: eventFocus, Seq: 3})
	_, ok = h.sess.overlay.Current()
	assert.True(t, ok, "re-enabled host works again")
}

func TestRefreshHostPolicyPostsEvent(t *testing.T) {
	h := newHarness(t)
	h.sess.RefreshHostPolicy(context.Background())

	select {
	case ev := <-h.sess.events:
		assert.Equal(t, eventPolicy, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no policy event")
	}
}

func TestGenerateThenReplyInserts(t *testing.T) {
	h := newHarness(t)
	h.handle(event{Type: eventFocus, Seq: 3})
	h.drv.reset()

	h.handle(event{Type: eventGenerate})

	var reply event
	select {
	case reply = <-h.sess.events:
	case <-time.After(2 * time.Second):
		t.Fatal("no reply event")
	}
	require.Equal(t, eventReply, reply.Type)
	assert.Equal(t, "f1", reply.target)

	require.Equal(t, 1, h.transport.count())
	req := h.transport.reqs[0]
	assert.Equal(t, "news.example.com", req.Host)
	assert.Equal(t, "draft", req.CurrentValue)
	assert.Equal(t, 1, strings.Count(req.PageMarkdown, extractor.Sentinel))
	assert.Contains(t, req.PageMarkdown, "Gophers dig tunnels")

	busy := []any{}
	for _, c := range h.drv.calls {
		if c.method == "busy" {
			busy = append(busy, c.args[0])
		}
	}
	assert.Equal(t, []any{true, false}, busy)
	assert.False(t, h.sess.overlay.Busy())

	h.drv.reset()
	h.handle(reply)

	assert.Equal(t, []string{"focus", "paste"}, h.drv.methods())
	paste, _ := h.drv.find("paste")
	assert.Equal(t, []any{"f1", "Nice tunnels"}, paste.args)

	entries := h.debug.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, debuglog.KindInsert, entries[0].Kind)
}

func TestGenerateRefusedWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.handle(event{Type: eventFocus, Seq: 3})
	require.NoError(t, h.sess.overlay.SetBusy(true))

	h.handle(event{Type: eventGenerate})

	assert.Equal(t, 0, h.transport.count())
	assert.Empty(t, h.sess.events)
}

func TestGenerateWithoutOverlayDoesNothing(t *testing.T) {
	h := newHarness(t)

	h.handle(event{Type: eventGenerate})

	assert.Equal(t, 0, h.transport.count())
	assert.Empty(t, h.drv.methods())
}
