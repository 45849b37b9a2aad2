// Package ui is the headless interaction layer of the board client: the
// active tool, the viewport transform, and the pointer/keyboard state
// machine that turns input events into board edits. Rendering is left to
// whatever front end drives it.
package ui

import (
	"log/slog"
	"strings"

	"LiveBoard/internal/shape"
)

// Screen-pixel sizes; they are divided by zoom before use.
const (
	eraseRadius   = 20
	selectPadding = 10
	handleSize    = 8
	duplicateStep = 20
)

// Board is the part of the client replica the canvas drives.
// *state.Board implements it.
type Board interface {
	BeginLocalShape(shape.Geometry) (string, error)
	EraseAt(x, y, radius float64) bool
	SelectAt(x, y, padding float64) bool
	ClearSelection()
	HandleAt(x, y, size float64) (shape.Handle, bool)
	MoveSelected(dx, dy float64) bool
	ResizeSelected(h shape.Handle, dx, dy float64) bool
	EndGesture() bool
	DeleteSelected() bool
	DuplicateSelected(d float64) bool
	Undo() bool
	Redo() bool
}

// Mode is the state of the pointer state machine.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDrawing
	ModePanning
	ModeMoving
	ModeResizing
	ModeTextEditing
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeDrawing:
		return "drawing"
	case ModePanning:
		return "panning"
	case ModeMoving:
		return "moving-selection"
	case ModeResizing:
		return "resizing-selection"
	case ModeTextEditing:
		return "text-editing"
	}
	return "unknown"
}

type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Key is one key press. Name is the key value as reported by the front
// end ("z", "Delete", "Backspace", ...).
type Key struct {
	Name                   string
	Ctrl, Meta, Shift, Alt bool
}

func (k Key) mod() bool { return k.Ctrl || k.Meta }

// Canvas is the interaction state machine for one open room. It is driven
// from a single UI goroutine and is not safe for concurrent use.
type Canvas struct {
	board Board
	view  Viewport
	tool  Tool
	mode  Mode

	// Drawing.
	anchor  shape.Point
	points  []shape.Point
	preview shape.Geometry

	// Panning: world origin offset relative to the grab point.
	grabX, grabY float64

	// Moving keeps the last world point; resizing the start point.
	last   shape.Point
	handle shape.Handle

	erasing bool
	textAt  shape.Point

	// OnToolChange fires when a shortcut switches tools.
	OnToolChange func(Tool)

	log *slog.Logger
}

func NewCanvas(board Board, width, height float64, log *slog.Logger) *Canvas {
	if log == nil {
		log = slog.Default()
	}
	return &Canvas{board: board, view: NewViewport(width, height), tool: ToolPointer, log: log}
}

func (c *Canvas) Tool() Tool         { return c.tool }
func (c *Canvas) Mode() Mode         { return c.mode }
func (c *Canvas) Viewport() Viewport { return c.view }

// Preview is the shape being drawn, or nil.
func (c *Canvas) Preview() shape.Geometry { return c.preview }

// TextAnchor is where the text being edited will be placed.
func (c *Canvas) TextAnchor() (shape.Point, bool) { return c.textAt, c.mode == ModeTextEditing }

// Resize records the new size of the drawing surface.
func (c *Canvas) Resize(width, height float64) {
	c.view.Width, c.view.Height = width, height
}

// SelectTool switches tools. It only applies while idle.
func (c *Canvas) SelectTool(t Tool) bool {
	if c.mode != ModeIdle {
		return false
	}
	if c.tool == ToolSelect && t != ToolSelect {
		c.board.ClearSelection()
	}
	c.tool = t
	c.erasing = false
	c.handle = ""
	c.preview = nil
	c.points = nil
	return true
}

func (c *Canvas) PointerDown(b Button, sx, sy float64) {
	if c.mode != ModeIdle {
		return
	}
	w := c.view.ToWorld(sx, sy)
	if b == ButtonMiddle || (b == ButtonPrimary && c.tool == ToolPan) {
		c.mode = ModePanning
		c.grabX, c.grabY = sx-c.view.OffsetX, sy-c.view.OffsetY
		return
	}
	if b != ButtonPrimary {
		return
	}

	switch {
	case c.tool == ToolErase:
		c.erasing = true
		c.board.EraseAt(w.X, w.Y, c.view.Scaled(eraseRadius))
	case c.tool == ToolSelect:
		if h, ok := c.board.HandleAt(w.X, w.Y, c.view.Scaled(handleSize)); ok {
			c.mode = ModeResizing
			c.handle = h
			c.last = w
			return
		}
		if c.board.SelectAt(w.X, w.Y, c.view.Scaled(selectPadding)) {
			c.mode = ModeMoving
			c.last = w
		}
	case c.tool == ToolText:
		c.mode = ModeTextEditing
		c.textAt = w
	case c.tool.Draws():
		c.mode = ModeDrawing
		c.anchor = w
		c.points = []shape.Point{w}
		c.preview = sketch(c.tool, w, w, c.points)
	}
}

func (c *Canvas) PointerMove(sx, sy float64) {
	w := c.view.ToWorld(sx, sy)
	switch c.mode {
	case ModeIdle:
		if c.erasing {
			c.board.EraseAt(w.X, w.Y, c.view.Scaled(eraseRadius))
		}
	case ModeDrawing:
		if c.tool == ToolFreehand {
			c.points = append(c.points, w)
		}
		c.preview = sketch(c.tool, c.anchor, w, c.points)
	case ModePanning:
		c.view.OffsetX, c.view.OffsetY = sx-c.grabX, sy-c.grabY
	case ModeMoving:
		c.board.MoveSelected(w.X-c.last.X, w.Y-c.last.Y)
		c.last = w
	case ModeResizing:
		c.board.ResizeSelected(c.handle, w.X-c.last.X, w.Y-c.last.Y)
	}
}

func (c *Canvas) PointerUp(b Button, sx, sy float64) {
	c.erasing = false
	switch c.mode {
	case ModeDrawing:
		if c.tool != ToolFreehand {
			c.preview = sketch(c.tool, c.anchor, c.view.ToWorld(sx, sy), nil)
		}
		g := c.preview
		c.preview, c.points = nil, nil
		c.mode = ModeIdle
		if degenerate(g) {
			return
		}
		if _, err := c.board.BeginLocalShape(g); err != nil {
			c.log.Warn("discarding shape", "tool", c.tool, "err", err)
		}
	case ModeMoving, ModeResizing:
		c.board.EndGesture()
		c.handle = ""
		c.mode = ModeIdle
	case ModePanning:
		c.mode = ModeIdle
	}
}

// Wheel zooms around the cursor.
func (c *Canvas) Wheel(sx, sy, deltaY float64) { c.view.Wheel(sx, sy, deltaY) }

func (c *Canvas) ZoomIn()  { c.view.ZoomIn() }
func (c *Canvas) ZoomOut() { c.view.ZoomOut() }

// CommitText places content at the text anchor. Blank content just closes
// the editor.
func (c *Canvas) CommitText(content string) {
	if c.mode != ModeTextEditing {
		return
	}
	c.mode = ModeIdle
	if strings.TrimSpace(content) == "" {
		return
	}
	t := shape.Text{
		X:        c.textAt.X,
		Y:        c.textAt.Y,
		Content:  content,
		Font:     shape.DefaultFont,
		FontSize: shape.DefaultFontSize,
		Color:    shape.DefaultColor,
	}
	if _, err := c.board.BeginLocalShape(t); err != nil {
		c.log.Warn("discarding text", "err", err)
	}
}

func (c *Canvas) CancelText() {
	if c.mode == ModeTextEditing {
		c.mode = ModeIdle
	}
}

// KeyDown handles shortcuts and reports whether k was consumed. Nothing is
// handled while the text editor is open or a selection is being dragged.
func (c *Canvas) KeyDown(k Key) bool {
	switch c.mode {
	case ModeTextEditing, ModeMoving, ModeResizing:
		return false
	}
	name := strings.ToLower(k.Name)
	switch {
	case k.mod() && name == "z" && !k.Shift:
		c.board.Undo()
		return true
	case k.mod() && (name == "y" || (name == "z" && k.Shift)):
		c.board.Redo()
		return true
	case name == "delete" || name == "backspace":
		return c.board.DeleteSelected()
	case k.mod() && name == "d":
		return c.board.DuplicateSelected(c.view.Scaled(duplicateStep))
	}
	if k.mod() || k.Alt || k.Shift {
		return false
	}
	t, ok := ToolForKey(name)
	if !ok || t == c.tool || !c.SelectTool(t) {
		return false
	}
	if c.OnToolChange != nil {
		c.OnToolChange(t)
	}
	return true
}
