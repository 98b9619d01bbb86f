// Package browser attaches the assistant to a live Chromium tab over the
// DevTools protocol and runs the page-side event loop.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Options configures how the browser is started or attached to.
type Options struct {
	// ControlURL attaches to an already running browser instead of
	// launching one (e.g. ws://127.0.0.1:9222/devtools/browser/...).
	ControlURL string `yaml:"control_url"`
	Bin        string `yaml:"bin"`
	Headless   bool   `yaml:"headless"`
	// ProfileDir is a Chrome/Chromium profile directory, so pages see the
	// user's logged-in sessions.
	ProfileDir string        `yaml:"profile_dir"`
	Stealth    bool          `yaml:"stealth"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Browser wraps the Rod browser.
type Browser struct {
	browser *rod.Browser
	opts    Options

	// attached is set when the browser belongs to the user (ControlURL).
	// Close then only closes the tabs Open created.
	attached bool
	pages    []*rod.Page
	cancel   context.CancelFunc
}

func newBrowser(b *rod.Browser, opts Options, cancel context.CancelFunc) *Browser {
	return &Browser{
		browser:  b,
		opts:     opts,
		attached: opts.ControlURL != "",
		cancel:   cancel,
	}
}

// Launch starts (or connects to) a browser.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	u := opts.ControlURL
	if u == "" {
		path := opts.Bin
		if path == "" {
			path, _ = launcher.LookPath()
		}
		l := launcher.New().Bin(path).Headless(opts.Headless)
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		var err error
		u, err = l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	connCtx, cancel := context.WithCancel(ctx)
	b := rod.New().ControlURL(u).Context(connCtx)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return newBrowser(b, opts, cancel), nil
}

// Close shuts a launched browser down. An attached browser keeps running:
// only the tabs Open created are closed and the connection is dropped.
func (b *Browser) Close() error {
	if b.cancel != nil {
		defer b.cancel()
	}
	if b.browser == nil {
		return nil
	}
	if !b.attached {
		return b.browser.Close()
	}
	var errs []error
	for _, p := range b.pages {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.pages = nil
	return errors.Join(errs...)
}

// Open creates a tab and navigates it to url.
func (b *Browser) Open(ctx context.Context, url string) (*rod.Page, error) {
	var page *rod.Page
	var err error
	if b.opts.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}

	if b.opts.Width > 0 && b.opts.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.opts.Width,
			Height:            b.opts.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			page.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}

	// Don't hang on persistent connections (WebSockets, polling, ...).
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	b.pages = append(b.pages, page)
	return page, nil
}

// CountEditables polls until the page shows at least one editable field
// or timeout passes, and returns the last count. Comment boxes on SPAs
// usually render well after the load event.
func CountEditables(page *rod.Page, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	count := 0
	for {
		res, err := page.Eval(`() => document.querySelectorAll(
			'textarea, [contenteditable=""], [contenteditable="true"], [contenteditable="plaintext-only"]'
		).length`)
		if err == nil {
			count = res.Value.Int()
		}
		if count > 0 || time.Now().After(deadline) {
			return count
		}
		time.Sleep(200 * time.Millisecond)
	}
}
