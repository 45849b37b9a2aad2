// Package shape is the drawable-primitive model shared by the server and the
// client: a closed set of geometry variants, their wire encoding, and the pure
// geometry used for hit-testing, moving and resizing.
package shape

import (
	"fmt"
	"math"
)

// Kind is the wire discriminant of a shape variant.
type Kind string

const (
	KindRect     Kind = "rect"
	KindEllipse  Kind = "circle"
	KindRhombus  Kind = "rhombus"
	KindLine     Kind = "line"
	KindArrow    Kind = "arrow"
	KindFreehand Kind = "pencil"
	KindText     Kind = "text"
)

// Kinds lists every variant in a stable order.
var Kinds = []Kind{KindRect, KindEllipse, KindRhombus, KindLine, KindArrow, KindFreehand, KindText}

// Point is a world-coordinate position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometry is implemented only by the variant types in this package, so a
// type switch over them is exhaustive.
type Geometry interface {
	Kind() Kind
	geometry()
}

type Rect struct {
	X, Y, Width, Height float64
}

// Ellipse is axis-aligned; the wire name is "circle" for compatibility with
// clients that only ever drew circles.
type Ellipse struct {
	CenterX, CenterY, RadiusX, RadiusY float64
}

// Rhombus is the diamond inscribed in its X/Y/Width/Height box.
type Rhombus struct {
	X, Y, Width, Height float64
}

type Line struct {
	X1, Y1, X2, Y2 float64
}

// Arrow is a line with a head drawn at (X2, Y2).
type Arrow struct {
	X1, Y1, X2, Y2 float64
}

// Freehand is an ordered stroke.
type Freehand struct {
	Points []Point
}

// Text is anchored at its baseline-left corner (X, Y).
type Text struct {
	X, Y     float64
	Content  string
	Font     string
	FontSize float64
	Color    string
}

func (Rect) Kind() Kind     { return KindRect }
func (Ellipse) Kind() Kind  { return KindEllipse }
func (Rhombus) Kind() Kind  { return KindRhombus }
func (Line) Kind() Kind     { return KindLine }
func (Arrow) Kind() Kind    { return KindArrow }
func (Freehand) Kind() Kind { return KindFreehand }
func (Text) Kind() Kind     { return KindText }

func (Rect) geometry()     {}
func (Ellipse) geometry()  {}
func (Rhombus) geometry()  {}
func (Line) geometry()     {}
func (Arrow) geometry()    {}
func (Freehand) geometry() {}
func (Text) geometry()     {}

// Text defaults applied when a payload omits the styling fields.
const (
	DefaultFont     = "sans"
	DefaultFontSize = 16
	DefaultColor    = "#000000"
)

// Shape is one entry of a room's canvas.
//
// Pending and CorrelationID are local to a client replica and are never
// encoded. A pending shape has no ID; once the server assigns one both local
// fields are cleared.
type Shape struct {
	ID       int64
	Geometry Geometry

	Pending       bool
	CorrelationID string
}

// Kind returns the variant discriminant, or "" for a shape without geometry.
func (s Shape) Kind() Kind {
	if s.Geometry == nil {
		return ""
	}
	return s.Geometry.Kind()
}

// Stored reports whether the server has assigned a persistent identity.
func (s Shape) Stored() bool { return s.ID != 0 }

// Confirmed returns s with the persistent id set and the local-only fields cleared.
func (s Shape) Confirmed(id int64) Shape {
	s.ID = id
	s.Pending = false
	s.CorrelationID = ""
	return s
}

// Clone returns a deep copy.
func (s Shape) Clone() Shape {
	if f, ok := s.Geometry.(Freehand); ok {
		pts := make([]Point, len(f.Points))
		copy(pts, f.Points)
		s.Geometry = Freehand{Points: pts}
	}
	return s
}

// CloneAll deep-copies a shape list.
func CloneAll(in []Shape) []Shape {
	out := make([]Shape, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Validate rejects geometry that cannot be drawn: non-finite numbers and empty strokes.
func Validate(g Geometry) error {
	if g == nil {
		return &ValidationError{Field: "type", Reason: "missing geometry"}
	}
	check := func(field string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Kind: g.Kind(), Field: field, Reason: "not a finite number"}
		}
		return nil
	}
	// Fields are checked in declaration order so the first bad one is reported.
	type field struct {
		name string
		v    float64
	}
	var fields []field
	switch g := g.(type) {
	case Rect:
		fields = []field{{"x", g.X}, {"y", g.Y}, {"width", g.Width}, {"height", g.Height}}
	case Rhombus:
		fields = []field{{"x", g.X}, {"y", g.Y}, {"width", g.Width}, {"height", g.Height}}
	case Ellipse:
		fields = []field{{"centerX", g.CenterX}, {"centerY", g.CenterY}, {"radiusX", g.RadiusX}, {"radiusY", g.RadiusY}}
	case Line:
		fields = []field{{"x1", g.X1}, {"y1", g.Y1}, {"x2", g.X2}, {"y2", g.Y2}}
	case Arrow:
		fields = []field{{"x1", g.X1}, {"y1", g.Y1}, {"x2", g.X2}, {"y2", g.Y2}}
	case Freehand:
		if len(g.Points) == 0 {
			return &ValidationError{Kind: KindFreehand, Field: "points", Reason: "empty stroke"}
		}
		for i, p := range g.Points {
			if err := check(fmt.Sprintf("points[%d].x", i), p.X); err != nil {
				return err
			}
			if err := check(fmt.Sprintf("points[%d].y", i), p.Y); err != nil {
				return err
			}
		}
		return nil
	case Text:
		fields = []field{{"x", g.X}, {"y", g.Y}, {"fontSize", g.FontSize}}
	default:
		panic(fmt.Sprintf("shape: unknown geometry %T", g))
	}
	for _, f := range fields {
		if err := check(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}
