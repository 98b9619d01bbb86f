package browser

import (
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
)

func TestNewBrowserAttachedOnlyWithControlURL(t *testing.T) {
	assert.True(t, newBrowser(rod.New(), Options{ControlURL: "ws://127.0.0.1:9222/devtools/browser/x"}, nil).attached)
	assert.False(t, newBrowser(rod.New(), Options{}, nil).attached)
}

func TestCloseLeavesAttachedBrowserRunning(t *testing.T) {
	cancelled := false
	// The rod browser is never connected and closing it would panic, so a nil
	// error shows Close stayed away from it.
	b := newBrowser(rod.New(), Options{ControlURL: "ws://127.0.0.1:9222/devtools/browser/x"}, func() { cancelled = true })

	assert.NoError(t, b.Close())
	assert.True(t, cancelled, "connection dropped")
	assert.Empty(t, b.pages)
}
