// Package render consumes decoded frames in arrival order and composites
// them onto a display surface, falling back to a static placeholder while
// no stream is active.
package render

import (
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// Surface is a 2D drawable render target sized to the viewport.
type Surface interface {
	// Bounds returns the current drawable area.
	Bounds() image.Rectangle
	// SetSize resizes the drawable area.
	SetSize(width, height int)
	// Draw scales src over the whole surface. No aspect-ratio preservation:
	// the source rectangle is the image's own bounds, the destination is the
	// full surface.
	Draw(src image.Image)
}

// ImageSurface is an in-memory Surface backed by an RGBA image. Frontends
// present its snapshot however they like (framebuffer blit, PNG dump, test
// assertions).
type ImageSurface struct {
	mu    sync.Mutex
	img   *image.RGBA
	draws int
}

// NewImageSurface creates a surface with the given initial size.
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Bounds returns the current drawable area.
func (s *ImageSurface) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.Bounds()
}

// SetSize resizes the surface, discarding its contents.
func (s *ImageSurface) SetSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Draw scales src to cover the whole surface.
func (s *ImageSurface) Draw(src image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xdraw.NearestNeighbor.Scale(s.img, s.img.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	s.draws++
}

// Snapshot returns a copy of the surface contents.
func (s *ImageSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// DrawCount returns how many draws the surface has received.
func (s *ImageSurface) DrawCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}
