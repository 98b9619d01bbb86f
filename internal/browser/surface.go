package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/ohmycomment/internal/overlay"
)

// IDAttr carries the stable id the bridge assigns to a located field.
const IDAttr = "data-oh-my-comment-id"

// driver is what the session needs from a tab.
type driver interface {
	// HTML returns the serialised live document.
	HTML(ctx context.Context) (string, error)
	// Call invokes a bridge method and returns its JSON result.
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	// Shape returns the field's viewport-relative box.
	Shape(ctx context.Context, id overlay.Target) (overlay.Rect, error)
	// Screenshot captures the field as PNG.
	Screenshot(ctx context.Context, id overlay.Target) ([]byte, error)
}

func selectorFor(id overlay.Target) string {
	return fmt.Sprintf(`[%s="%s"]`, IDAttr, string(id))
}

// rodDriver talks to a tab over CDP.
type rodDriver struct {
	page *rod.Page
}

// element looks the field up without waiting for it to appear.
func (d *rodDriver) element(ctx context.Context, id overlay.Target) (*rod.Element, error) {
	has, el, err := d.page.Context(ctx).Has(selectorFor(id))
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("element not found: %s", id)
	}
	return el, nil
}

func (d *rodDriver) HTML(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *rodDriver) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	js := fmt.Sprintf(`(...args) => window.__ohmycomment.%s(...args)`, method)
	res, err := d.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", method, err)
	}
	return res.Value.MarshalJSON()
}

// Shape measures the target from its content quads, the same way a click
// position is computed.
func (d *rodDriver) Shape(ctx context.Context, id overlay.Target) (overlay.Rect, error) {
	el, err := d.element(ctx, id)
	if err != nil {
		return overlay.Rect{}, err
	}
	shape, err := el.Shape()
	if err != nil {
		return overlay.Rect{}, err
	}
	if len(shape.Quads) == 0 {
		return overlay.Rect{}, fmt.Errorf("element has no shape: %s", id)
	}

	r := overlay.Rect{Top: math.Inf(1), Left: math.Inf(1), Bottom: math.Inf(-1), Right: math.Inf(-1)}
	for _, quad := range shape.Quads {
		for i := 0; i+1 < len(quad); i += 2 {
			x, y := quad[i], quad[i+1]
			r.Left = math.Min(r.Left, x)
			r.Right = math.Max(r.Right, x)
			r.Top = math.Min(r.Top, y)
			r.Bottom = math.Max(r.Bottom, y)
		}
	}
	return r, nil
}

func (d *rodDriver) Screenshot(ctx context.Context, id overlay.Target) ([]byte, error) {
	el, err := d.element(ctx, id)
	if err != nil {
		return nil, err
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

// callInto invokes a bridge method and decodes its result into dst.
func callInto(ctx context.Context, d driver, dst any, method string, args ...any) error {
	raw, err := d.Call(ctx, method, args...)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("bridge %s result: %w", method, err)
	}
	return nil
}

// pageSurface draws the overlay through the bridge.
type pageSurface struct {
	ctx context.Context
	drv driver
}

func (s *pageSurface) Mount(t overlay.Target) error {
	_, err := s.drv.Call(s.ctx, "mount", string(t))
	return err
}

func (s *pageSurface) Unmount() error {
	_, err := s.drv.Call(s.ctx, "unmount")
	return err
}

func (s *pageSurface) Place(p overlay.Position) error {
	_, err := s.drv.Call(s.ctx, "place", p.Top, p.Left)
	return err
}

func (s *pageSurface) SetBusy(busy bool) error {
	_, err := s.drv.Call(s.ctx, "busy", busy)
	return err
}

// Bounds combines the field's box with the page scroll offsets.
func (s *pageSurface) Bounds(t overlay.Target) (overlay.Rect, overlay.Viewport, error) {
	r, err := s.drv.Shape(s.ctx, t)
	if err != nil {
		return overlay.Rect{}, overlay.Viewport{}, err
	}
	var scroll struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := callInto(s.ctx, s.drv, &scroll, "scroll"); err != nil {
		return overlay.Rect{}, overlay.Viewport{}, err
	}
	return r, overlay.Viewport{ScrollX: scroll.X, ScrollY: scroll.Y}, nil
}

// fieldTarget writes text into a located field through the bridge.
type fieldTarget struct {
	drv driver
	id  overlay.Target
}

func (f *fieldTarget) Focus(ctx context.Context) error {
	_, err := f.drv.Call(ctx, "focus", string(f.id))
	return err
}

func (f *fieldTarget) Paste(ctx context.Context, text string) (bool, error) {
	var cancelled bool
	err := callInto(ctx, f.drv, &cancelled, "paste", string(f.id), text)
	return cancelled, err
}

func (f *fieldTarget) ExecInsert(ctx context.Context, text string) (bool, error) {
	var ok bool
	err := callInto(ctx, f.drv, &ok, "execInsert", string(f.id), text)
	return ok, err
}

func (f *fieldTarget) Splice(ctx context.Context, text string) error {
	_, err := f.drv.Call(ctx, "splice", string(f.id), text)
	return err
}

// value returns the field's current text.
func (f *fieldTarget) value(ctx context.Context) string {
	var v string
	if err := callInto(ctx, f.drv, &v, "value", string(f.id)); err != nil {
		return ""
	}
	return v
}

func (f *fieldTarget) screenshot(ctx context.Context) ([]byte, error) {
	return f.drv.Screenshot(ctx, f.id)
}
