package ui

import (
	"math"
	"strings"

	"LiveBoard/internal/shape"
)

// Tool is the active pointer tool.
type Tool int

const (
	ToolPointer Tool = iota
	ToolSelect
	ToolPan
	ToolRect
	ToolEllipse
	ToolRhombus
	ToolLine
	ToolArrow
	ToolFreehand
	ToolErase
	ToolText
)

var toolNames = [...]string{
	ToolPointer:  "pointer",
	ToolSelect:   "select",
	ToolPan:      "pan",
	ToolRect:     "rect",
	ToolEllipse:  "ellipse",
	ToolRhombus:  "rhombus",
	ToolLine:     "line",
	ToolArrow:    "arrow",
	ToolFreehand: "freehand",
	ToolErase:    "erase",
	ToolText:     "text",
}

func (t Tool) String() string {
	if t < 0 || int(t) >= len(toolNames) {
		return "unknown"
	}
	return toolNames[t]
}

// Draws reports whether the tool creates shapes by dragging.
func (t Tool) Draws() bool {
	switch t {
	case ToolRect, ToolEllipse, ToolRhombus, ToolLine, ToolArrow, ToolFreehand:
		return true
	}
	return false
}

// Single-key tool shortcuts, only honoured without modifiers.
var shortcuts = map[string]Tool{
	"r": ToolRect,
	"c": ToolEllipse,
	"d": ToolRhombus,
	"l": ToolLine,
	"a": ToolArrow,
	"p": ToolFreehand,
	"t": ToolText,
	"e": ToolErase,
	"s": ToolSelect,
	"h": ToolPan,
	"1": ToolPointer,
}

// ToolForKey returns the shortcut tool for key, if any.
func ToolForKey(key string) (Tool, bool) {
	t, ok := shortcuts[strings.ToLower(key)]
	return t, ok
}

// sketch returns the geometry a drag from a to b draws with tool t. points
// is the stroke so far for the freehand tool.
func sketch(t Tool, a, b shape.Point, points []shape.Point) shape.Geometry {
	switch t {
	case ToolRect:
		x, w := extent(a.X, b.X)
		y, h := extent(a.Y, b.Y)
		return shape.Rect{X: x, Y: y, Width: w, Height: h}
	case ToolRhombus:
		x, w := extent(a.X, b.X)
		y, h := extent(a.Y, b.Y)
		return shape.Rhombus{X: x, Y: y, Width: w, Height: h}
	case ToolEllipse:
		// The anchor is the centre.
		return shape.Ellipse{CenterX: a.X, CenterY: a.Y, RadiusX: math.Abs(b.X - a.X), RadiusY: math.Abs(b.Y - a.Y)}
	case ToolLine:
		return shape.Line{X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y}
	case ToolArrow:
		return shape.Arrow{X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y}
	case ToolFreehand:
		pts := make([]shape.Point, len(points))
		copy(pts, points)
		return shape.Freehand{Points: pts}
	}
	return nil
}

// degenerate reports a sketch left by a click without a drag.
func degenerate(g shape.Geometry) bool {
	switch g := g.(type) {
	case shape.Rect:
		return g.Width == 0 && g.Height == 0
	case shape.Rhombus:
		return g.Width == 0 && g.Height == 0
	case shape.Ellipse:
		return g.RadiusX == 0 && g.RadiusY == 0
	case shape.Line:
		return g.X1 == g.X2 && g.Y1 == g.Y2
	case shape.Arrow:
		return g.X1 == g.X2 && g.Y1 == g.Y2
	case nil:
		return true
	}
	return false
}

func extent(a, b float64) (float64, float64) {
	if b < a {
		return b, a - b
	}
	return a, b - a
}
