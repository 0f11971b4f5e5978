// Package viewport sizes the display surface to the viewport at startup.
package viewport

import (
	"log/slog"
)

// Source reports the current viewport dimensions.
type Source interface {
	ViewportSize() (width, height int)
}

// Sizer is the subset of the render surface the controller needs.
type Sizer interface {
	SetSize(width, height int)
}

// Fixed is a Source with constant dimensions.
type Fixed struct {
	Width  int
	Height int
}

// ViewportSize returns the fixed dimensions.
func (f Fixed) ViewportSize() (int, int) {
	return f.Width, f.Height
}

// Controller applies viewport dimensions to a surface.
type Controller struct {
	log    *slog.Logger
	source Source
}

// NewController creates a Controller reading dimensions from source.
// If log is nil, slog.Default() is used.
func NewController(source Source, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		log:    log.With("component", "viewport"),
		source: source,
	}
}

// Apply sizes the surface from the current viewport, assigning width and
// height independently. Run once at startup; callers may re-run it on a
// resize, but nothing binds it to resize events automatically.
func (c *Controller) Apply(surface Sizer) {
	width, height := c.source.ViewportSize()
	surface.SetSize(width, height)
	c.log.Debug("surface sized", "width", width, "height", height)
}
