package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/browser"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/dispatch"
	"github.com/v0xg/ohmycomment/internal/extractor"
	"github.com/v0xg/ohmycomment/internal/inject"
	"github.com/v0xg/ohmycomment/internal/locator"
	"github.com/v0xg/ohmycomment/internal/server"
	"github.com/v0xg/ohmycomment/internal/settings"
)

var (
	headless  bool
	stealth   bool
	profile   string
	chromeURL string
	remoteURL string
	personaID string
	debugDir  string
	width     int
	height    int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Open a page and assist in its comment boxes",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession,
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless")
	cmd.Flags().BoolVar(&stealth, "stealth", false, "Open the tab with stealth evasions")
	cmd.Flags().StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	cmd.Flags().StringVar(&chromeURL, "chrome-url", "", "Attach to a running browser's DevTools URL instead of launching one")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "Send requests to a running 'ohmycomment serve' at this URL")
	cmd.Flags().StringVar(&personaID, "persona", "", "Persona id to use for every request")
	cmd.Flags().StringVar(&debugDir, "debug-dir", "", "Save a thumbnail of each filled field here")
	cmd.Flags().IntVar(&width, "width", 0, "Viewport width")
	cmd.Flags().IntVar(&height, "height", 0, "Viewport height")
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	url := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if flags.Changed("stealth") {
		cfg.Browser.Stealth = stealth
	}
	if profile != "" {
		cfg.Browser.ProfileDir = profile
	}
	if chromeURL != "" {
		cfg.Browser.ControlURL = chromeURL
	}
	if remoteURL != "" {
		cfg.Server.RemoteURL = remoteURL
	}
	if debugDir != "" {
		cfg.Debug.Dir = debugDir
	}
	if width > 0 {
		cfg.Browser.Width = width
	}
	if height > 0 {
		cfg.Browser.Height = height
	}

	log := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logVerbose("Starting ohmycomment")
	logVerbose("  URL: %s", url)
	logVerbose("  Provider: %s", cfg.AI.Provider)

	fmt.Print("→ Opening settings... ")
	store, err := openStore(cfg, log)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer store.Close()
	fmt.Println("done")

	debug := debuglog.New(cfg.Debug.Capacity)

	var transport dispatch.Transport
	if cfg.Server.RemoteURL != "" {
		transport = server.NewClient(cfg.Server.RemoteURL, cfg.Server.Token)
		logVerbose("  Background: %s", cfg.Server.RemoteURL)
	} else {
		transport = background.NewBus(newBackground(cfg, store, debug, log), log)
	}

	fmt.Print("→ Launching browser... ")
	b, err := browser.Launch(ctx, cfg.Browser)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer b.Close()
	fmt.Println("done")

	fmt.Printf("→ Opening %s... ", url)
	page, err := b.Open(ctx, url)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Printf("done (found %d editable fields)\n", browser.CountEditables(page, 5*time.Second))

	loc := locator.New()
	if len(cfg.RichEditorPrefixes) > 0 {
		loc.RichEditorPrefixes = cfg.RichEditorPrefixes
	}
	disp := dispatch.New(extractor.New(cfg.Extractor, log), transport, log)

	sess, err := browser.Attach(ctx, page, browser.SessionConfig{
		Locator:        loc,
		Dispatcher:     disp,
		Chain:          inject.Default(log),
		Hosts:          store,
		SystemPrompt:   cfg.SystemPrompt,
		PersonaID:      personaID,
		Debug:          debug,
		DebugDir:       cfg.Debug.Dir,
		ThumbnailWidth: cfg.Debug.ThumbnailWidth,
		Logger:         log,
	})
	if errors.Is(err, browser.ErrHostDisabled) {
		fmt.Printf("✗ ohmycomment is disabled on this host (see 'ohmycomment host list')\n")
		return nil
	}
	if err != nil {
		return err
	}

	// Pick up 'ohmycomment host disable' from another terminal.
	unwatch := store.Watch(func(key string) {
		if key == settings.KeyDisabledHosts {
			sess.RefreshHostPolicy(ctx)
		}
	})
	defer unwatch()
	followCtx, stopFollow := context.WithCancel(ctx)
	defer stopFollow()
	go store.Follow(followCtx, 2*time.Second)

	fmt.Printf("✓ Attached to %s. Click into a comment box and press ✦ (Ctrl+C to quit)\n", sess.Host())
	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("→ Closing browser")
	return nil
}
