package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/dispatch"
	"github.com/v0xg/ohmycomment/internal/dom"
	"github.com/v0xg/ohmycomment/internal/inject"
	"github.com/v0xg/ohmycomment/internal/locator"
	"github.com/v0xg/ohmycomment/internal/overlay"
)

// ErrHostDisabled is returned by Attach for hosts the user switched off.
var ErrHostDisabled = errors.New("assistant is disabled for this host")

// HostPolicy decides whether the assistant may run on a host.
type HostPolicy interface {
	IsHostDisabled(ctx context.Context, host string) (bool, error)
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Locator    *locator.Locator
	Dispatcher *dispatch.Dispatcher
	Chain      *inject.Chain
	Hosts      HostPolicy

	// SystemPrompt overrides the default system prompt when set.
	SystemPrompt string
	// PersonaID pins a persona for every request of this session.
	PersonaID string

	// Debug, when set, receives one entry per insertion. With DebugDir
	// also set, a thumbnail of the field is saved next to it.
	Debug          *debuglog.Log
	DebugDir       string
	ThumbnailWidth uint

	Logger zerolog.Logger
}

// Session runs the page side of the assistant on one tab. All page events
// are handled in order on the goroutine that called Run; only completion
// round trips run elsewhere and come back as events.
type Session struct {
	cfg     SessionConfig
	page    *rod.Page
	drv     driver
	overlay *overlay.Controller
	log     zerolog.Logger

	events   chan event
	host     string
	disabled bool
}

// Attach installs the bridge on page. It fails with ErrHostDisabled when
// the page's host is switched off.
func Attach(ctx context.Context, page *rod.Page, cfg SessionConfig) (*Session, error) {
	s := newSession(ctx, &rodDriver{page: page}, cfg)
	s.page = page

	info, err := page.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}
	if err := s.setURL(ctx, info.URL); err != nil {
		return nil, err
	}
	if s.disabled {
		return nil, fmt.Errorf("%s: %w", s.host, ErrHostDisabled)
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		s.log.Warn().Err(err).Msg("addBinding failed (may already exist)")
	}
	if _, err := page.EvalOnNewDocument(bridgeJS); err != nil {
		return nil, fmt.Errorf("install bridge: %w", err)
	}
	if _, err := page.Context(ctx).Eval("() => { " + bridgeJS + " }"); err != nil {
		return nil, fmt.Errorf("inject bridge: %w", err)
	}
	s.log.Info().Str("host", s.host).Msg("session attached")
	return s, nil
}

func newSession(ctx context.Context, drv driver, cfg SessionConfig) *Session {
	if cfg.Locator == nil {
		cfg.Locator = locator.New()
	}
	if cfg.Chain == nil {
		cfg.Chain = inject.Default(cfg.Logger)
	}
	s := &Session{
		cfg:     cfg,
		drv:     drv,
		overlay: overlay.NewController(&pageSurface{ctx: ctx, drv: drv}),
		log:     cfg.Logger.With().Str("component", "session").Logger(),
		events:  make(chan event, 64),
	}
	if cfg.Dispatcher != nil {
		cfg.Dispatcher.OnBusy = func(busy bool) {
			if err := s.overlay.SetBusy(busy); err != nil {
				s.log.Debug().Err(err).Msg("overlay busy state not shown")
			}
		}
	}
	return s
}

// RefreshHostPolicy asks the session to re-read whether its host is
// disabled. It is safe to call from any goroutine.
func (s *Session) RefreshHostPolicy(ctx context.Context) {
	go s.post(ctx, event{Type: eventPolicy})
}

// Host returns the host of the current document.
func (s *Session) Host() string {
	return s.host
}

// Run handles page events until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	go s.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		ev, err := parseEvent(e.Payload)
		if err != nil {
			s.log.Warn().Err(err).Msg("bad bridge event")
			return
		}
		s.post(ctx, ev)
	})()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) post(ctx context.Context, ev event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	log := s.log.With().Str("event", ev.Type).Logger()

	switch ev.Type {
	case eventReady:
		s.overlay.Reset()
		if err := s.setURL(ctx, ev.URL); err != nil {
			log.Warn().Err(err).Msg("host policy lookup failed")
		}
		log.Debug().Str("host", s.host).Bool("disabled", s.disabled).Msg("document ready")

	case eventPolicy:
		if err := s.refreshDisabled(ctx); err != nil {
			log.Warn().Err(err).Msg("host policy lookup failed")
			return
		}
		if s.disabled {
			if err := s.overlay.Leave(false); err != nil {
				log.Debug().Err(err).Msg("overlay not removed")
			}
		}
		log.Debug().Str("host", s.host).Bool("disabled", s.disabled).Msg("host policy refreshed")

	case eventFocus, eventClick:
		if s.disabled {
			return
		}
		if err := s.activate(ctx, ev); err != nil {
			log.Debug().Err(err).Msg("activate failed")
		}

	case eventReposition:
		if err := s.overlay.Reposition(); err != nil {
			log.Debug().Err(err).Msg("reposition failed")
		}

	case eventGenerate:
		if s.disabled {
			return
		}
		s.generate(ctx, log)

	case eventReply:
		s.insert(ctx, ev, log)

	default:
		log.Debug().Msg("unknown bridge event")
	}
}

// activate locates the editable field the event hit and moves the overlay
// to it, or takes the overlay down when the event left the field.
func (s *Session) activate(ctx context.Context, ev event) error {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	xpath := ""
	if !ev.Inside {
		xpath = locate(doc, s.cfg.Locator, ev.Seq)
	}
	if xpath == "" {
		return s.overlay.Leave(ev.Inside)
	}

	var id string
	if err := callInto(ctx, s.drv, &id, "tag", xpath); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("field %s vanished before it could be tagged", xpath)
	}
	return s.overlay.Activate(overlay.Target(id))
}

func (s *Session) generate(ctx context.Context, log zerolog.Logger) {
	if s.overlay.Busy() || (s.cfg.Dispatcher != nil && s.cfg.Dispatcher.Busy()) {
		log.Debug().Msg("generation already running")
		return
	}
	target, ok := s.overlay.Current()
	if !ok || s.cfg.Dispatcher == nil {
		return
	}

	doc, err := s.snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot failed")
		return
	}
	node := dom.FindByAttr(doc, IDAttr, string(target))
	if node == nil {
		log.Warn().Str("target", string(target)).Msg("field missing from snapshot")
		return
	}

	field := &fieldTarget{drv: s.drv, id: target}
	in := dispatch.Input{
		Target:       node,
		Host:         s.host,
		SystemPrompt: s.cfg.SystemPrompt,
		PersonaID:    s.cfg.PersonaID,
		CurrentValue: field.value(ctx),
	}

	go func() {
		text, err := s.cfg.Dispatcher.Generate(ctx, in)
		if err != nil {
			log.Debug().Err(err).Msg("generation refused")
			return
		}
		s.post(ctx, event{Type: eventReply, target: string(target), text: text})
	}()
}

func (s *Session) insert(ctx context.Context, ev event, log zerolog.Logger) {
	field := &fieldTarget{drv: s.drv, id: overlay.Target(ev.target)}
	text := inject.PlainText(ev.text)

	strategy, err := s.cfg.Chain.Run(ctx, field, text)
	if err != nil {
		log.Warn().Err(err).Str("target", ev.target).Msg("insert failed")
		return
	}
	log.Info().Str("strategy", strategy).Int("chars", len(text)).Msg("reply inserted")

	if s.cfg.Debug == nil {
		return
	}
	entry := s.cfg.Debug.Add(debuglog.KindInsert, map[string]any{
		"host":     s.host,
		"strategy": strategy,
		"text":     text,
	})
	if s.cfg.DebugDir == "" {
		return
	}
	png, err := field.screenshot(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("field screenshot failed")
		return
	}
	path, err := debuglog.SaveThumbnail(s.cfg.DebugDir, entry.ID, png, s.cfg.ThumbnailWidth)
	if err != nil {
		log.Debug().Err(err).Msg("thumbnail not saved")
		return
	}
	s.cfg.Debug.Attach(entry.ID, path)
}

// snapshot parses the live document.
func (s *Session) snapshot(ctx context.Context) (*html.Node, error) {
	raw, err := s.drv.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return dom.Parse(raw)
}

func (s *Session) setURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse page url: %w", err)
	}
	s.host = u.Hostname()
	return s.refreshDisabled(ctx)
}

func (s *Session) refreshDisabled(ctx context.Context) error {
	s.disabled = false
	if s.cfg.Hosts == nil || s.host == "" {
		return nil
	}
	disabled, err := s.cfg.Hosts.IsHostDisabled(ctx, s.host)
	if err != nil {
		return err
	}
	s.disabled = disabled
	return nil
}
