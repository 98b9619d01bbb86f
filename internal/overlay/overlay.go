// Package overlay owns the lifecycle of the single floating button anchored
// next to the active editable field.
package overlay

import (
	"fmt"
	"sync"
)

// Anchor offsets from the target's bottom-right corner, in CSS pixels.
const (
	OffsetTop  = 8
	OffsetLeft = 48
)

// Target identifies a live editable element. Two activations refer to the
// same element iff their Targets are equal.
type Target string

// Rect is a viewport-relative bounding box.
type Rect struct {
	Top, Left, Bottom, Right float64
}

// Viewport carries the document scroll offsets.
type Viewport struct {
	ScrollX, ScrollY float64
}

// Position is a document-relative placement for the overlay host.
type Position struct {
	Top, Left float64
}

// Anchor places the overlay just below the target's bottom-right corner.
func Anchor(r Rect, vp Viewport) Position {
	return Position{
		Top:  vp.ScrollY + r.Bottom + OffsetTop,
		Left: vp.ScrollX + r.Right - OffsetLeft,
	}
}

// Surface performs the page-side work for the controller.
type Surface interface {
	Mount(t Target) error
	Unmount() error
	Place(p Position) error
	Bounds(t Target) (Rect, Viewport, error)
	SetBusy(busy bool) error
}

// Controller is the Unmounted/Mounted(target) state machine. At most one
// overlay exists at a time and mounting a new one always unmounts the old
// one first.
type Controller struct {
	surface Surface

	mu      sync.Mutex
	target  Target
	mounted bool
	busy    bool
}

// NewController returns an unmounted controller.
func NewController(s Surface) *Controller {
	return &Controller{surface: s}
}

// Current returns the mounted target.
func (c *Controller) Current() (Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.mounted
}

// Activate is called when focus or a click located an editable element.
func (c *Controller) Activate(t Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mounted && c.target == t {
		return nil
	}
	if c.mounted {
		if err := c.unmountLocked(); err != nil {
			return err
		}
	}
	if err := c.surface.Mount(t); err != nil {
		return fmt.Errorf("mount overlay: %w", err)
	}
	c.target, c.mounted = t, true
	if c.busy {
		_ = c.surface.SetBusy(true)
	}
	return c.placeLocked()
}

// Leave is called when focus or a click located no editable element.
// insideOverlay reports whether the event path went through the overlay
// itself, in which case the overlay stays.
func (c *Controller) Leave(insideOverlay bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if insideOverlay || !c.mounted {
		return nil
	}
	return c.unmountLocked()
}

// Reposition re-anchors the overlay after scroll or resize. A target that
// can no longer be measured is treated as gone and the overlay unmounts.
func (c *Controller) Reposition() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		return nil
	}
	return c.placeLocked()
}

// Reset forgets the mounted target without touching the page. It is used
// after a navigation replaced the document the overlay lived in.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.target, c.mounted = "", false
	c.mu.Unlock()
}

// Busy reports whether a generation started from the overlay is running.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// SetBusy toggles the in-flight state of the overlay button.
func (c *Controller) SetBusy(busy bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busy = busy
	if !c.mounted {
		return nil
	}
	return c.surface.SetBusy(busy)
}

func (c *Controller) placeLocked() error {
	r, vp, err := c.surface.Bounds(c.target)
	if err != nil {
		if uerr := c.unmountLocked(); uerr != nil {
			return uerr
		}
		return fmt.Errorf("measure target: %w", err)
	}
	return c.surface.Place(Anchor(r, vp))
}

func (c *Controller) unmountLocked() error {
	c.target, c.mounted = "", false
	if err := c.surface.Unmount(); err != nil {
		return fmt.Errorf("unmount overlay: %w", err)
	}
	return nil
}
