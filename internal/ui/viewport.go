package ui

import "LiveBoard/internal/shape"

// Zoom limits and steps.
const (
	MinZoom    = 0.1
	MaxZoom    = 10.0
	ZoomStep   = 0.1
	wheelScale = -0.001
)

// Viewport maps screen pixels to world coordinates:
// world = (screen - offset) / zoom.
type Viewport struct {
	OffsetX, OffsetY float64
	Zoom             float64
	Width, Height    float64
}

func NewViewport(width, height float64) Viewport {
	return Viewport{Zoom: 1, Width: width, Height: height}
}

func (v Viewport) ToWorld(sx, sy float64) shape.Point {
	return shape.Point{X: (sx - v.OffsetX) / v.Zoom, Y: (sy - v.OffsetY) / v.Zoom}
}

func (v Viewport) ToScreen(p shape.Point) (float64, float64) {
	return p.X*v.Zoom + v.OffsetX, p.Y*v.Zoom + v.OffsetY
}

// ZoomAt sets the zoom, clamped, keeping the world point under (sx, sy) fixed.
func (v *Viewport) ZoomAt(sx, sy, zoom float64) {
	zoom = min(max(zoom, MinZoom), MaxZoom)
	v.OffsetX = sx - (sx-v.OffsetX)*(zoom/v.Zoom)
	v.OffsetY = sy - (sy-v.OffsetY)*(zoom/v.Zoom)
	v.Zoom = zoom
}

// Wheel zooms by one wheel event around the cursor.
func (v *Viewport) Wheel(sx, sy, deltaY float64) {
	v.ZoomAt(sx, sy, v.Zoom+deltaY*wheelScale)
}

func (v *Viewport) ZoomIn()  { v.ZoomAt(v.Width/2, v.Height/2, v.Zoom+ZoomStep) }
func (v *Viewport) ZoomOut() { v.ZoomAt(v.Width/2, v.Height/2, v.Zoom-ZoomStep) }

// Scaled converts a screen-pixel distance to world units.
func (v Viewport) Scaled(px float64) float64 { return px / v.Zoom }
