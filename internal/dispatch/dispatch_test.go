package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/dom"
	"github.com/v0xg/ohmycomment/internal/extractor"
	"github.com/v0xg/ohmycomment/internal/locator"
	"github.com/v0xg/ohmycomment/internal/settings"
)

type transportFunc func(ctx context.Context, req background.Request) (background.Response, error)

func (f transportFunc) Send(ctx context.Context, req background.Request) (background.Response, error) {
	return f(ctx, req)
}

const commentPage = `<html><head><title>Thread</title></head><body>
<article><h1>Why Go?</h1><p>Because it is boring in a good way.</p></article>
<form><div id="wrap"><span id="inner">reply</span><textarea id="box">my draft</textarea></div></form>
</body></html>`

func target(t *testing.T) *html.Node {
	t.Helper()
	doc, err := dom.Parse(commentPage)
	require.NoError(t, err)
	clicked := dom.FindByAttr(doc, "id", "box")
	require.NotNil(t, clicked)
	found := locator.New().Find(clicked)
	require.NotNil(t, found)
	return found
}

func newDispatcher(t transportFunc) *Dispatcher {
	return New(extractor.New(extractor.DefaultOptions(), zerolog.Nop()), t, zerolog.Nop())
}

func TestGenerateSendsContextAndStripsSentinel(t *testing.T) {
	var got background.Request
	d := newDispatcher(func(_ context.Context, req background.Request) (background.Response, error) {
		got = req
		return background.Response{Reply: "Agreed " + extractor.Sentinel + "!"}, nil
	})

	text, err := d.Generate(context.Background(), Input{Target: target(t), Host: "example.com", CurrentValue: "my draft"})
	require.NoError(t, err)

	assert.Equal(t, "Agreed !", text)
	assert.Equal(t, "example.com", got.Host)
	assert.Equal(t, "my draft", got.CurrentValue)
	assert.Contains(t, got.PageMarkdown, "Why Go?")
	assert.Equal(t, 1, strings.Count(got.PageMarkdown, extractor.Sentinel))
	assert.False(t, d.Busy())
}

func TestGenerateSurfacesBackgroundError(t *testing.T) {
	d := newDispatcher(func(context.Context, background.Request) (background.Response, error) {
		return background.Response{Error: "LLM API error: 500 - {}"}, nil
	})

	text, err := d.Generate(context.Background(), Input{Target: target(t)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Error:"), text)
	assert.False(t, d.Busy())
}

func TestGenerateSurfacesTransportError(t *testing.T) {
	d := newDispatcher(func(context.Context, background.Request) (background.Response, error) {
		return background.Response{}, errors.New("connection reset")
	})

	text, err := d.Generate(context.Background(), Input{Target: target(t)})
	require.NoError(t, err)
	assert.Equal(t, "Error: connection reset", text)
	assert.False(t, d.Busy())
}

func TestGenerateRefusesWhileBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	d := newDispatcher(func(context.Context, background.Request) (background.Response, error) {
		close(started)
		<-release
		return background.Response{Reply: "ok"}, nil
	})

	var states []bool
	var mu sync.Mutex
	d.OnBusy = func(b bool) {
		mu.Lock()
		states = append(states, b)
		mu.Unlock()
	}

	first := target(t)
	done := make(chan string)
	go func() {
		text, _ := d.Generate(context.Background(), Input{Target: first})
		done <- text
	}()

	<-started
	assert.True(t, d.Busy())
	_, err := d.Generate(context.Background(), Input{Target: target(t)})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	select {
	case text := <-done:
		assert.Equal(t, "ok", text)
	case <-time.After(time.Second):
		t.Fatal("generation did not finish")
	}
	assert.False(t, d.Busy())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, states)
}

type noKeySettings struct{}

func (noKeySettings) APIKey(context.Context) (string, error) { return "", nil }

func (noKeySettings) Personas(context.Context) ([]settings.Persona, error) { return nil, nil }

func (noKeySettings) HostPersonas(context.Context) (map[string]string, error) { return nil, nil }

func (noKeySettings) AddUsage(context.Context, int, int) (settings.Usage, error) {
	return settings.Usage{}, errors.New("unexpected usage update")
}

func TestGenerateThroughBusWithoutKey(t *testing.T) {
	h := background.NewService(noKeySettings{}, nil, nil, zerolog.Nop())
	bus := background.NewBus(h, zerolog.Nop())
	d := New(extractor.New(extractor.DefaultOptions(), zerolog.Nop()), bus, zerolog.Nop())

	text, err := d.Generate(context.Background(), Input{Target: target(t)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Error: API key is not configured"), text)
}
