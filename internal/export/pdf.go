// Package export renders a room's shapes to PDF.
package export

import (
	"fmt"
	"io"
	"math"

	"github.com/jung-kurt/gofpdf"

	"LiveBoard/internal/shape"
)

const (
	pageW, pageH = 210.0, 297.0 // A4, mm
	margin       = 10.0
	ptPerMM      = 72 / 25.4
	headLen      = 12.0 // arrow head length in world units
)

var fonts = map[string]string{
	"sans":  "Helvetica",
	"serif": "Times",
	"mono":  "Courier",
}

// PDF writes shapes, in paint order, scaled to fit one A4 page.
func PDF(w io.Writer, shapes []shape.Shape) error {
	p := gofpdf.New("P", "mm", "A4", "")
	p.AddPage()
	p.SetDrawColor(0, 0, 0)
	p.SetLineWidth(0.5)

	if len(shapes) == 0 {
		return p.Output(w)
	}

	box := shape.Bounds(shapes[0].Geometry)
	for _, s := range shapes[1:] {
		box = box.Union(shape.Bounds(s.Geometry))
	}
	scale := 1.0
	if box.Width() > 0 || box.Height() > 0 {
		scale = math.Min((pageW-2*margin)/math.Max(box.Width(), 1), (pageH-2*margin)/math.Max(box.Height(), 1))
	}
	scale = math.Min(scale, 1)
	x := func(v float64) float64 { return margin + (v-box.MinX)*scale }
	y := func(v float64) float64 { return margin + (v-box.MinY)*scale }
	tr := p.UnicodeTranslatorFromDescriptor("")

	for _, s := range shapes {
		switch g := s.Geometry.(type) {
		case shape.Rect:
			b := shape.Bounds(g)
			p.Rect(x(b.MinX), y(b.MinY), b.Width()*scale, b.Height()*scale, "D")
		case shape.Ellipse:
			p.Ellipse(x(g.CenterX), y(g.CenterY), math.Abs(g.RadiusX)*scale, math.Abs(g.RadiusY)*scale, 0, "D")
		case shape.Rhombus:
			b := shape.Bounds(g)
			midX, midY := (b.MinX+b.MaxX)/2, (b.MinY+b.MaxY)/2
			p.Polygon([]gofpdf.PointType{
				{X: x(midX), Y: y(b.MinY)},
				{X: x(b.MaxX), Y: y(midY)},
				{X: x(midX), Y: y(b.MaxY)},
				{X: x(b.MinX), Y: y(midY)},
			}, "D")
		case shape.Line:
			p.Line(x(g.X1), y(g.Y1), x(g.X2), y(g.Y2))
		case shape.Arrow:
			p.Line(x(g.X1), y(g.Y1), x(g.X2), y(g.Y2))
			angle := math.Atan2(g.Y2-g.Y1, g.X2-g.X1)
			for _, side := range []float64{-math.Pi / 6, math.Pi / 6} {
				hx := g.X2 - headLen*math.Cos(angle+side)
				hy := g.Y2 - headLen*math.Sin(angle+side)
				p.Line(x(g.X2), y(g.Y2), x(hx), y(hy))
			}
		case shape.Freehand:
			for i := 1; i < len(g.Points); i++ {
				p.Line(x(g.Points[i-1].X), y(g.Points[i-1].Y), x(g.Points[i].X), y(g.Points[i].Y))
			}
		case shape.Text:
			family, ok := fonts[g.Font]
			if !ok {
				family = "Helvetica"
			}
			r, gr, b := parseColor(g.Color)
			p.SetTextColor(r, gr, b)
			p.SetFont(family, "", g.FontSize*scale*ptPerMM)
			p.Text(x(g.X), y(g.Y), tr(g.Content))
		}
	}
	return p.Output(w)
}

// parseColor reads #rrggbb, falling back to black.
func parseColor(c string) (int, int, int) {
	var r, g, b int
	if _, err := fmt.Sscanf(c, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0
	}
	return r, g, b
}
