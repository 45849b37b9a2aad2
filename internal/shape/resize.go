package shape

import (
	"fmt"
	"math"
	"strings"
)

// Handle names one of the eight resize grips around a bounding box.
type Handle string

const (
	HandleNW Handle = "nw"
	HandleN  Handle = "n"
	HandleNE Handle = "ne"
	HandleE  Handle = "e"
	HandleSE Handle = "se"
	HandleS  Handle = "s"
	HandleSW Handle = "sw"
	HandleW  Handle = "w"
)

// Handles in hit-test order.
var Handles = []Handle{HandleNW, HandleN, HandleNE, HandleE, HandleSE, HandleS, HandleSW, HandleW}

const (
	// MinExtent is the smallest width or height a resize may produce.
	MinExtent = 10
	// MinFontSize bounds the font-size rescale of text shapes.
	MinFontSize = 8
)

func (h Handle) north() bool { return strings.Contains(string(h), "n") }
func (h Handle) south() bool { return strings.Contains(string(h), "s") }
func (h Handle) east() bool  { return strings.Contains(string(h), "e") }
func (h Handle) west() bool  { return strings.Contains(string(h), "w") }

// Position returns where h sits on b.
func (h Handle) Position(b Box) Point {
	midX, midY := (b.MinX+b.MaxX)/2, (b.MinY+b.MaxY)/2
	p := Point{X: midX, Y: midY}
	if h.west() {
		p.X = b.MinX
	}
	if h.east() {
		p.X = b.MaxX
	}
	if h.north() {
		p.Y = b.MinY
	}
	if h.south() {
		p.Y = b.MaxY
	}
	return p
}

// HandleAt returns the grip of g under (x, y), given the on-screen grip size
// already converted to world units.
func HandleAt(g Geometry, x, y, size float64) (Handle, bool) {
	b := Bounds(g)
	tol := size / 2
	for _, h := range Handles {
		p := h.Position(b)
		if math.Abs(x-p.X) <= tol && math.Abs(y-p.Y) <= tol {
			return h, true
		}
	}
	return "", false
}

// Resize derives a new geometry from the pre-gesture original and the
// cumulative pointer delta since the gesture started. Callers must always pass
// the original, never the previous result, so deltas do not compound.
func Resize(orig Geometry, h Handle, dx, dy float64) Geometry {
	ob := Bounds(orig)
	nb := ob
	if h.west() {
		nb.MinX += dx
	}
	if h.east() {
		nb.MaxX += dx
	}
	if h.north() {
		nb.MinY += dy
	}
	if h.south() {
		nb.MaxY += dy
	}
	if nb.Width() < MinExtent {
		if h.west() {
			nb.MinX = nb.MaxX - MinExtent
		}
		if h.east() {
			nb.MaxX = nb.MinX + MinExtent
		}
	}
	if nb.Height() < MinExtent {
		if h.north() {
			nb.MinY = nb.MaxY - MinExtent
		}
		if h.south() {
			nb.MaxY = nb.MinY + MinExtent
		}
	}

	sx, sy := 1.0, 1.0
	if ob.Width() != 0 {
		sx = nb.Width() / ob.Width()
	}
	if ob.Height() != 0 {
		sy = nb.Height() / ob.Height()
	}
	mapX := func(x float64) float64 { return nb.MinX + (x-ob.MinX)*sx }
	mapY := func(y float64) float64 { return nb.MinY + (y-ob.MinY)*sy }

	switch g := orig.(type) {
	case Rect:
		return Rect{X: nb.MinX, Y: nb.MinY, Width: nb.Width(), Height: nb.Height()}
	case Rhombus:
		return Rhombus{X: nb.MinX, Y: nb.MinY, Width: nb.Width(), Height: nb.Height()}
	case Ellipse:
		return Ellipse{
			CenterX: (nb.MinX + nb.MaxX) / 2, CenterY: (nb.MinY + nb.MaxY) / 2,
			RadiusX: nb.Width() / 2, RadiusY: nb.Height() / 2,
		}
	case Line:
		return Line{X1: mapX(g.X1), Y1: mapY(g.Y1), X2: mapX(g.X2), Y2: mapY(g.Y2)}
	case Arrow:
		return Arrow{X1: mapX(g.X1), Y1: mapY(g.Y1), X2: mapX(g.X2), Y2: mapY(g.Y2)}
	case Freehand:
		pts := make([]Point, len(g.Points))
		for i, p := range g.Points {
			pts[i] = Point{X: mapX(p.X), Y: mapY(p.Y)}
		}
		return Freehand{Points: pts}
	case Text:
		size := g.FontSize
		if size <= 0 {
			size = DefaultFontSize
		}
		g.X, g.Y = nb.MinX, nb.MaxY
		g.FontSize = math.Max(MinFontSize, math.Round(size*sy))
		return g
	default:
		panic(fmt.Sprintf("shape: unknown geometry %T", g))
	}
}
