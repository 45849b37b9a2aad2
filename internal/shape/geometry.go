package shape

import (
	"fmt"
	"math"
)

// Box is an axis-aligned bounding box with Min <= Max on both axes.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Grow expands b by r on every side.
func (b Box) Grow(r float64) Box {
	return Box{MinX: b.MinX - r, MinY: b.MinY - r, MaxX: b.MaxX + r, MaxY: b.MaxY + r}
}

// Contains is inclusive on every edge.
func (b Box) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Union returns the smallest box holding both.
func (b Box) Union(o Box) Box {
	return Box{
		MinX: math.Min(b.MinX, o.MinX), MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX), MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

func span(a, b float64) (float64, float64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// TextWidth estimates the rendered width of a text shape. There is no font
// metrics backend, so it is proportional to the rune count.
func TextWidth(t Text) float64 {
	n := len([]rune(t.Content))
	if n == 0 {
		return math.Max(100, t.FontSize*6)
	}
	return float64(n) * t.FontSize * 0.6
}

// Bounds returns the bounding box of g.
func Bounds(g Geometry) Box {
	switch g := g.(type) {
	case Rect:
		return rectBox(g.X, g.Y, g.Width, g.Height)
	case Rhombus:
		return rectBox(g.X, g.Y, g.Width, g.Height)
	case Ellipse:
		rx, ry := math.Abs(g.RadiusX), math.Abs(g.RadiusY)
		return Box{MinX: g.CenterX - rx, MinY: g.CenterY - ry, MaxX: g.CenterX + rx, MaxY: g.CenterY + ry}
	case Line:
		return segmentBox(g.X1, g.Y1, g.X2, g.Y2)
	case Arrow:
		return segmentBox(g.X1, g.Y1, g.X2, g.Y2)
	case Freehand:
		if len(g.Points) == 0 {
			return Box{}
		}
		b := Box{MinX: g.Points[0].X, MinY: g.Points[0].Y, MaxX: g.Points[0].X, MaxY: g.Points[0].Y}
		for _, p := range g.Points[1:] {
			b = b.Union(Box{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y})
		}
		return b
	case Text:
		return Box{MinX: g.X, MinY: g.Y - g.FontSize, MaxX: g.X + TextWidth(g), MaxY: g.Y}
	default:
		panic(fmt.Sprintf("shape: unknown geometry %T", g))
	}
}

func rectBox(x, y, w, h float64) Box {
	minX, maxX := span(x, x+w)
	minY, maxY := span(y, y+h)
	return Box{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func segmentBox(x1, y1, x2, y2 float64) Box {
	minX, maxX := span(x1, x2)
	minY, maxY := span(y1, y2)
	return Box{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Translate moves every coordinate of g by (dx, dy).
func Translate(g Geometry, dx, dy float64) Geometry {
	switch g := g.(type) {
	case Rect:
		g.X, g.Y = g.X+dx, g.Y+dy
		return g
	case Rhombus:
		g.X, g.Y = g.X+dx, g.Y+dy
		return g
	case Ellipse:
		g.CenterX, g.CenterY = g.CenterX+dx, g.CenterY+dy
		return g
	case Line:
		g.X1, g.Y1, g.X2, g.Y2 = g.X1+dx, g.Y1+dy, g.X2+dx, g.Y2+dy
		return g
	case Arrow:
		g.X1, g.Y1, g.X2, g.Y2 = g.X1+dx, g.Y1+dy, g.X2+dx, g.Y2+dy
		return g
	case Freehand:
		pts := make([]Point, len(g.Points))
		for i, p := range g.Points {
			pts[i] = Point{X: p.X + dx, Y: p.Y + dy}
		}
		return Freehand{Points: pts}
	case Text:
		g.X, g.Y = g.X+dx, g.Y+dy
		return g
	default:
		panic(fmt.Sprintf("shape: unknown geometry %T", g))
	}
}

// Hits reports whether (x, y) lies within radius of g. Erasing passes the
// eraser radius, selection passes the click padding.
func Hits(g Geometry, x, y, radius float64) bool {
	switch g := g.(type) {
	case Rect, Rhombus, Text:
		return Bounds(g).Grow(radius).Contains(x, y)
	case Ellipse:
		return math.Hypot(x-g.CenterX, y-g.CenterY) <= math.Max(math.Abs(g.RadiusX), math.Abs(g.RadiusY))+radius
	case Line:
		return SegmentDistance(x, y, g.X1, g.Y1, g.X2, g.Y2) <= radius
	case Arrow:
		return SegmentDistance(x, y, g.X1, g.Y1, g.X2, g.Y2) <= radius
	case Freehand:
		return PolylineDistance(x, y, g.Points) <= radius
	default:
		panic(fmt.Sprintf("shape: unknown geometry %T", g))
	}
}

// SegmentDistance is the distance from (px, py) to the segment (x1,y1)-(x2,y2).
func SegmentDistance(px, py, x1, y1, x2, y2 float64) float64 {
	l2 := (x2-x1)*(x2-x1) + (y2-y1)*(y2-y1)
	if l2 == 0 {
		return math.Hypot(px-x1, py-y1)
	}
	t := ((px-x1)*(x2-x1) + (py-y1)*(y2-y1)) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(x1+t*(x2-x1)), py-(y1+t*(y2-y1)))
}

// PolylineDistance is the distance from (px, py) to the closest segment of
// pts. An empty stroke is infinitely far away.
func PolylineDistance(px, py float64, pts []Point) float64 {
	switch len(pts) {
	case 0:
		return math.Inf(1)
	case 1:
		return math.Hypot(px-pts[0].X, py-pts[0].Y)
	}
	best := math.Inf(1)
	for i := 1; i < len(pts); i++ {
		d := SegmentDistance(px, py, pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y)
		if d < best {
			best = d
		}
	}
	return best
}
