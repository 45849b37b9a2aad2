package shape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// wire is the flat object shapes travel and rest as. Optional pointers let the
// decoder tell a missing field from a zero.
type wire struct {
	Type Kind  `json:"type"`
	ID   int64 `json:"id,omitempty"`

	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	CenterX *float64 `json:"centerX,omitempty"`
	CenterY *float64 `json:"centerY,omitempty"`
	RadiusX *float64 `json:"radiusX,omitempty"`
	RadiusY *float64 `json:"radiusY,omitempty"`
	// Radius is the legacy circle field; it fills both radii when they are absent.
	Radius *float64 `json:"radius,omitempty"`

	X1 *float64 `json:"x1,omitempty"`
	Y1 *float64 `json:"y1,omitempty"`
	X2 *float64 `json:"x2,omitempty"`
	Y2 *float64 `json:"y2,omitempty"`

	Points json.RawMessage `json:"points,omitempty"`

	Content  *string  `json:"content,omitempty"`
	Font     *string  `json:"font,omitempty"`
	FontSize *float64 `json:"fontSize,omitempty"`
	Color    *string  `json:"color,omitempty"`

	// TempID is read for clients that carry the correlation id inside the
	// shape. It is never written.
	TempID string `json:"_tempId,omitempty"`
}

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func num(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

// MarshalJSON encodes the persistent part of s. Pending and CorrelationID are dropped.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s.Geometry == nil {
		return nil, &ValidationError{Field: "type", Reason: "missing geometry"}
	}
	w := wire{Type: s.Geometry.Kind(), ID: s.ID}
	switch g := s.Geometry.(type) {
	case Rect:
		w.X, w.Y, w.Width, w.Height = num(g.X), num(g.Y), num(g.Width), num(g.Height)
	case Rhombus:
		w.X, w.Y, w.Width, w.Height = num(g.X), num(g.Y), num(g.Width), num(g.Height)
	case Ellipse:
		w.CenterX, w.CenterY, w.RadiusX, w.RadiusY = num(g.CenterX), num(g.CenterY), num(g.RadiusX), num(g.RadiusY)
	case Line:
		w.X1, w.Y1, w.X2, w.Y2 = num(g.X1), num(g.Y1), num(g.X2), num(g.Y2)
	case Arrow:
		w.X1, w.Y1, w.X2, w.Y2 = num(g.X1), num(g.Y1), num(g.X2), num(g.Y2)
	case Freehand:
		pts, err := json.Marshal(g.Points)
		if err != nil {
			return nil, err
		}
		w.Points = pts
	case Text:
		w.X, w.Y = num(g.X), num(g.Y)
		w.Content, w.Font, w.FontSize, w.Color = str(g.Content), str(g.Font), num(g.FontSize), str(g.Color)
	default:
		panic(fmt.Sprintf("shape: unknown geometry %T", g))
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates a payload. Every failure is a *ValidationError.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return &ValidationError{Field: te.Field, Reason: "expected " + te.Type.String()}
		}
		return &ValidationError{Field: "shape", Reason: err.Error()}
	}
	g, err := w.geometry()
	if err != nil {
		return err
	}
	if err := Validate(g); err != nil {
		return err
	}
	*s = Shape{ID: w.ID, Geometry: g, CorrelationID: w.TempID}
	return nil
}

func (w *wire) geometry() (Geometry, error) {
	var missing string
	need := func(name string, v *float64) float64 {
		if v == nil {
			if missing == "" {
				missing = name
			}
			return 0
		}
		return *v
	}
	var g Geometry
	switch w.Type {
	case KindRect:
		g = Rect{X: need("x", w.X), Y: need("y", w.Y), Width: need("width", w.Width), Height: need("height", w.Height)}
	case KindRhombus:
		g = Rhombus{X: need("x", w.X), Y: need("y", w.Y), Width: need("width", w.Width), Height: need("height", w.Height)}
	case KindEllipse:
		rx, ry := w.RadiusX, w.RadiusY
		if rx == nil && ry == nil && w.Radius != nil {
			rx, ry = w.Radius, w.Radius
		}
		g = Ellipse{CenterX: need("centerX", w.CenterX), CenterY: need("centerY", w.CenterY), RadiusX: need("radiusX", rx), RadiusY: need("radiusY", ry)}
	case KindLine:
		g = Line{X1: need("x1", w.X1), Y1: need("y1", w.Y1), X2: need("x2", w.X2), Y2: need("y2", w.Y2)}
	case KindArrow:
		g = Arrow{X1: need("x1", w.X1), Y1: need("y1", w.Y1), X2: need("x2", w.X2), Y2: need("y2", w.Y2)}
	case KindFreehand:
		pts, err := decodePoints(w.Points)
		if err != nil {
			return nil, err
		}
		g = Freehand{Points: pts}
	case KindText:
		if w.Content == nil {
			return nil, &ValidationError{Kind: KindText, Field: "content", Reason: "missing"}
		}
		t := Text{X: need("x", w.X), Y: need("y", w.Y), Content: *w.Content, Font: DefaultFont, FontSize: DefaultFontSize, Color: DefaultColor}
		if w.Font != nil {
			t.Font = *w.Font
		}
		if w.FontSize != nil {
			t.FontSize = *w.FontSize
		}
		if w.Color != nil {
			t.Color = *w.Color
		}
		g = t
	case "":
		return nil, &ValidationError{Field: "type", Reason: "missing"}
	default:
		return nil, &ValidationError{Kind: w.Type, Field: "type", Reason: "unknown variant"}
	}
	if missing != "" {
		return nil, &ValidationError{Kind: w.Type, Field: missing, Reason: "missing"}
	}
	return g, nil
}

// decodePoints accepts an array of {x, y} or the same array encoded as a JSON
// string, which is how some stores hand points back.
func decodePoints(raw json.RawMessage) ([]Point, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &ValidationError{Kind: KindFreehand, Field: "points", Reason: "missing"}
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, &ValidationError{Kind: KindFreehand, Field: "points", Reason: err.Error()}
		}
		raw = json.RawMessage(inner)
	}
	var wp []wirePoint
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, &ValidationError{Kind: KindFreehand, Field: "points", Reason: "expected array of {x, y}"}
	}
	pts := make([]Point, len(wp))
	for i, p := range wp {
		if p.X == nil || p.Y == nil {
			return nil, &ValidationError{Kind: KindFreehand, Field: fmt.Sprintf("points[%d]", i), Reason: "missing coordinate"}
		}
		pts[i] = Point{X: *p.X, Y: *p.Y}
	}
	return pts, nil
}

// Decode parses and validates one shape.
func Decode(data []byte) (Shape, error) {
	var s Shape
	if err := json.Unmarshal(data, &s); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return Shape{}, ve
		}
		return Shape{}, &ValidationError{Field: "shape", Reason: err.Error()}
	}
	return s, nil
}

// Encode is json.Marshal for a single shape.
func Encode(s Shape) ([]byte, error) { return json.Marshal(s) }
