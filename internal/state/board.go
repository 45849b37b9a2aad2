// Package state is the client replica of a room: the local shape list with
// optimistic edits, reconciliation against server echoes, and undo history.
package state

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"LiveBoard/internal/protocol"
	"LiveBoard/internal/shape"
)

// Sender carries edit messages to the server. A nil Sender keeps the board offline.
type Sender interface {
	Send(protocol.Message) error
}

// Change is emitted after every mutation of the board.
type Change struct {
	Shapes   int
	Selected int
	CanUndo  bool
	CanRedo  bool
}

// Board owns one room's replica. All methods are safe for concurrent use;
// observers and the sender run outside the board lock.
type Board struct {
	room    int64
	mu      sync.Mutex
	shapes  []shape.Shape
	history *History
	// selected is an index into shapes or -1.
	selected int

	// gesture holds the selected shape as it was when a move or resize began.
	gesture *shape.Shape

	// Pending shapes that were erased locally before the server confirmed them.
	erased map[string]bool
	// Pending shapes whose geometry changed after their create was sent.
	dirty map[string]bool
	// Pending shapes wiped by a remote clear; the server stored them after it.
	orphaned map[string]bool
	// Pending shapes wiped by our own clear; dropped when its echo arrives.
	cleared map[string]bool

	// outbox keeps edits in mutation order until flush hands them to sender.
	outbox   []protocol.Message
	flushing bool
	sender   Sender

	observers []func(Change)
	log       *slog.Logger
}

func NewBoard(room int64, sender Sender, log *slog.Logger) *Board {
	if log == nil {
		log = slog.Default()
	}
	return &Board{
		room:     room,
		history:  NewHistory(HistorySize, nil),
		selected: -1,
		erased:   make(map[string]bool),
		dirty:    make(map[string]bool),
		orphaned: make(map[string]bool),
		cleared:  make(map[string]bool),
		sender:   sender,
		log:      log,
	}
}

// Room is the room this replica mirrors.
func (b *Board) Room() int64 { return b.room }

// Subscribe registers fn for every Change.
func (b *Board) Subscribe(fn func(Change)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Detach drops observers and the sender when the room view closes.
func (b *Board) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = nil
	b.sender = nil
	b.outbox = nil
}

// update runs fn under the lock, queues what fn produced and notifies
// observers if fn reports a change.
func (b *Board) update(fn func(out *[]protocol.Message) bool) bool {
	b.mu.Lock()
	var out []protocol.Message
	changed := fn(&out)
	var (
		ch        Change
		observers []func(Change)
	)
	if changed {
		ch = b.changeLocked()
		observers = append(observers, b.observers...)
	}
	if b.sender != nil {
		b.outbox = append(b.outbox, out...)
	}
	b.mu.Unlock()
	b.flush()
	for _, fn := range observers {
		fn(ch)
	}
	return changed
}

// flush sends the outbox in order without holding the lock. One goroutine
// drains at a time; concurrent callers leave their edits to it and return.
func (b *Board) flush() {
	b.mu.Lock()
	if b.flushing {
		b.mu.Unlock()
		return
	}
	b.flushing = true
	for len(b.outbox) > 0 && b.sender != nil {
		m, sender := b.outbox[0], b.sender
		b.outbox = b.outbox[1:]
		b.mu.Unlock()
		if err := sender.Send(m); err != nil {
			b.log.Warn("send failed", "room", b.room, "type", m.Type, "err", err)
		}
		b.mu.Lock()
	}
	b.flushing = false
	b.mu.Unlock()
}

func (b *Board) changeLocked() Change {
	return Change{
		Shapes:   len(b.shapes),
		Selected: b.selected,
		CanUndo:  b.history.CanUndo(),
		CanRedo:  b.history.CanRedo(),
	}
}

func (b *Board) commitLocked() { b.history.Push(b.shapes) }

// Shapes returns a deep copy of the replica in paint order.
func (b *Board) Shapes() []shape.Shape {
	b.mu.Lock()
	defer b.mu.Unlock()
	return shape.CloneAll(b.shapes)
}

func (b *Board) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.CanUndo()
}

func (b *Board) CanRedo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.CanRedo()
}

// Load replaces the replica with a server listing, as after a reconnect,
// and restarts history from it.
func (b *Board) Load(shapes []shape.Shape) {
	b.update(func(*[]protocol.Message) bool {
		b.shapes = shape.CloneAll(shapes)
		b.selected = -1
		b.gesture = nil
		clear(b.erased)
		clear(b.dirty)
		clear(b.orphaned)
		clear(b.cleared)
		b.history.Reset(b.shapes)
		return true
	})
}

func (b *Board) createLocked(out *[]protocol.Message, s shape.Shape) {
	msg, err := protocol.CreateShape(b.room, s, s.CorrelationID)
	if err != nil {
		b.log.Error("encode shape", "err", err)
		return
	}
	*out = append(*out, msg)
}

func (b *Board) updateLocked(out *[]protocol.Message, s shape.Shape) {
	msg, err := protocol.UpdateShape(b.room, s)
	if err != nil {
		b.log.Error("encode shape", "err", err)
		return
	}
	*out = append(*out, msg)
}

// BeginLocalShape appends g optimistically as a pending shape and sends its
// create. It returns the correlation id the echo will carry.
func (b *Board) BeginLocalShape(g shape.Geometry) (string, error) {
	if err := shape.Validate(g); err != nil {
		return "", err
	}
	corr := uuid.NewString()
	b.update(func(out *[]protocol.Message) bool {
		s := shape.Shape{Geometry: g, Pending: true, CorrelationID: corr}
		b.shapes = append(b.shapes, s.Clone())
		b.commitLocked()
		b.createLocked(out, s)
		return true
	})
	return corr, nil
}

// Apply dispatches one server message. Messages for other rooms are ignored.
func (b *Board) Apply(msg protocol.Message) error {
	if msg.RoomID != b.room {
		return nil
	}
	switch msg.Type {
	case protocol.TypeShape:
		s, err := msg.DecodeShape()
		if err != nil {
			return err
		}
		b.OnRemoteShapeConfirmed(s.Confirmed(s.ID), s.CorrelationID)
	case protocol.TypeShapeUpdated:
		s, err := msg.DecodeShape()
		if err != nil {
			return err
		}
		b.OnRemoteShapeUpdated(s)
	case protocol.TypeErase:
		b.OnRemoteErase(msg.ShapeIDs)
	case protocol.TypeClearAll:
		b.OnRemoteClear()
	case protocol.TypeError:
		b.log.Warn("server rejected edit", "room", b.room, "correlation", msg.CorrelationID, "err", msg.Error)
		b.OnRemoteRejected(msg.CorrelationID)
	default:
		return fmt.Errorf("%w: unexpected %s from server", protocol.ErrMalformed, msg.Type)
	}
	return nil
}

// OnRemoteShapeConfirmed applies a stored-shape broadcast. corr is the
// correlation id the echo carried, empty for shapes of other participants.
func (b *Board) OnRemoteShapeConfirmed(stored shape.Shape, corr string) {
	if !stored.Stored() {
		b.log.Warn("ignoring shape echo without id", "room", b.room)
		return
	}
	stored = stored.Clone().Confirmed(stored.ID)
	b.update(func(out *[]protocol.Message) bool {
		if i := indexOfPending(b.shapes, corr); i >= 0 {
			confirmed := stored
			dragging := b.gesture != nil && i == b.selected
			if b.dirty[corr] || dragging {
				// Keep the geometry the user left it with.
				confirmed = b.shapes[i].Confirmed(stored.ID)
			}
			if b.dirty[corr] {
				b.updateLocked(out, confirmed)
			}
			if dragging {
				g := b.gesture.Confirmed(stored.ID)
				b.gesture = &g
			}
			b.shapes[i] = confirmed
			b.history.confirm(corr, stored.ID)
			delete(b.dirty, corr)
			delete(b.erased, corr)
			delete(b.orphaned, corr)
			return true
		}
		if corr != "" && b.cleared[corr] {
			// Our clear_all reached the server after this create.
			delete(b.cleared, corr)
			delete(b.dirty, corr)
			b.history.confirm(corr, stored.ID)
			return false
		}
		if corr != "" && b.erased[corr] {
			delete(b.erased, corr)
			delete(b.dirty, corr)
			b.history.confirm(corr, stored.ID)
			*out = append(*out, protocol.Erase(b.room, []int64{stored.ID}))
			return false
		}
		if corr != "" && b.orphaned[corr] {
			delete(b.orphaned, corr)
			b.history.confirm(corr, stored.ID)
		} else if corr != "" && b.history.holds(corr) {
			// Undone before the echo came back: undo stays local.
			delete(b.dirty, corr)
			b.history.confirm(corr, stored.ID)
			return false
		}
		if i := indexOfID(b.shapes, stored.ID); i >= 0 {
			b.shapes[i] = stored
			return true
		}
		b.shapes = append(b.shapes, stored)
		return true
	})
}

// OnRemoteShapeUpdated replaces a known shape's geometry in place.
func (b *Board) OnRemoteShapeUpdated(s shape.Shape) {
	b.update(func(*[]protocol.Message) bool {
		i := indexOfID(b.shapes, s.ID)
		if i < 0 {
			return false
		}
		b.shapes[i] = s.Clone().Confirmed(s.ID)
		return true
	})
}

// removeLocked drops every shape matching drop and keeps selection pointing
// at the same shape. It returns the removed shapes.
func (b *Board) removeLocked(drop func(shape.Shape) bool) []shape.Shape {
	var removed []shape.Shape
	kept := b.shapes[:0]
	sel := -1
	for i, s := range b.shapes {
		if drop(s) {
			removed = append(removed, s)
			continue
		}
		if i == b.selected {
			sel = len(kept)
		}
		kept = append(kept, s)
	}
	b.shapes = kept
	if sel != b.selected {
		b.gesture = nil
	}
	b.selected = sel
	return removed
}

// OnRemoteErase drops shapes by persistent id.
func (b *Board) OnRemoteErase(ids []int64) {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	b.update(func(*[]protocol.Message) bool {
		removed := b.removeLocked(func(s shape.Shape) bool { return s.Stored() && set[s.ID] })
		return len(removed) > 0
	})
}

// OnRemoteClear empties the replica and records one history entry unless it
// was already empty.
func (b *Board) OnRemoteClear() {
	b.update(func(*[]protocol.Message) bool {
		if len(b.shapes) == 0 {
			return false
		}
		for _, s := range b.shapes {
			if s.Pending {
				b.orphaned[s.CorrelationID] = true
			}
		}
		b.shapes = nil
		b.selected = -1
		b.gesture = nil
		b.commitLocked()
		return true
	})
}

// OnRemoteRejected drops a pending shape the server refused to store.
func (b *Board) OnRemoteRejected(corr string) {
	if corr == "" {
		return
	}
	b.update(func(*[]protocol.Message) bool {
		delete(b.erased, corr)
		delete(b.dirty, corr)
		delete(b.orphaned, corr)
		delete(b.cleared, corr)
		removed := b.removeLocked(func(s shape.Shape) bool { return s.Pending && s.CorrelationID == corr })
		b.history.forget(corr)
		return len(removed) > 0
	})
}

// Selected returns the selected shape.
func (b *Board) Selected() (shape.Shape, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected < 0 {
		return shape.Shape{}, false
	}
	return b.shapes[b.selected].Clone(), true
}

// SelectAt selects the top-most shape within padding of (x, y), or clears
// the selection. It reports whether a shape was hit.
func (b *Board) SelectAt(x, y, padding float64) bool {
	hit := false
	b.update(func(*[]protocol.Message) bool {
		prev := b.selected
		b.selected = -1
		b.gesture = nil
		for i := len(b.shapes) - 1; i >= 0; i-- {
			if shape.Hits(b.shapes[i].Geometry, x, y, padding) {
				b.selected = i
				hit = true
				break
			}
		}
		return prev != b.selected
	})
	return hit
}

// ClearSelection drops the selection.
func (b *Board) ClearSelection() {
	b.update(func(*[]protocol.Message) bool {
		changed := b.selected != -1
		b.selected = -1
		b.gesture = nil
		return changed
	})
}

// HandleAt reports the resize grip of the selection under (x, y).
func (b *Board) HandleAt(x, y, size float64) (shape.Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected < 0 {
		return "", false
	}
	return shape.HandleAt(b.shapes[b.selected].Geometry, x, y, size)
}

func (b *Board) beginGestureLocked() bool {
	if b.selected < 0 {
		return false
	}
	if b.gesture == nil {
		s := b.shapes[b.selected].Clone()
		b.gesture = &s
	}
	return true
}

// MoveSelected translates the selection by an incremental delta.
func (b *Board) MoveSelected(dx, dy float64) bool {
	return b.update(func(*[]protocol.Message) bool {
		if !b.beginGestureLocked() {
			return false
		}
		s := &b.shapes[b.selected]
		s.Geometry = shape.Translate(s.Geometry, dx, dy)
		return true
	})
}

// ResizeSelected reshapes the selection from its pre-gesture geometry by the
// cumulative delta since the gesture began.
func (b *Board) ResizeSelected(h shape.Handle, dx, dy float64) bool {
	return b.update(func(*[]protocol.Message) bool {
		if !b.beginGestureLocked() {
			return false
		}
		b.shapes[b.selected].Geometry = shape.Resize(b.gesture.Geometry, h, dx, dy)
		return true
	})
}

// EndGesture commits a move or resize: one history entry, then an update
// for stored shapes. Pending shapes sync once their create is confirmed.
func (b *Board) EndGesture() bool {
	return b.update(b.endGestureLocked)
}

func (b *Board) endGestureLocked(out *[]protocol.Message) bool {
	if b.gesture == nil {
		return false
	}
	b.gesture = nil
	if b.selected < 0 {
		return false
	}
	s := b.shapes[b.selected]
	b.commitLocked()
	if s.Stored() {
		b.updateLocked(out, s)
	} else {
		b.dirty[s.CorrelationID] = true
	}
	return true
}

// eraseLocked queues the server side of removing shapes.
func (b *Board) eraseLocked(out *[]protocol.Message, removed []shape.Shape) {
	var ids []int64
	for _, s := range removed {
		if s.Stored() {
			ids = append(ids, s.ID)
		} else {
			b.erased[s.CorrelationID] = true
			delete(b.dirty, s.CorrelationID)
		}
	}
	if len(ids) > 0 {
		*out = append(*out, protocol.Erase(b.room, ids))
	}
}

// EraseAt removes every shape within radius of (x, y) as one history entry.
func (b *Board) EraseAt(x, y, radius float64) bool {
	return b.update(func(out *[]protocol.Message) bool {
		removed := b.removeLocked(func(s shape.Shape) bool { return shape.Hits(s.Geometry, x, y, radius) })
		if len(removed) == 0 {
			return false
		}
		b.commitLocked()
		b.eraseLocked(out, removed)
		return true
	})
}

// DeleteSelected removes the selection.
func (b *Board) DeleteSelected() bool {
	return b.update(func(out *[]protocol.Message) bool {
		if b.selected < 0 {
			return false
		}
		sel := b.selected
		victim := b.shapes[sel]
		b.shapes = append(b.shapes[:sel], b.shapes[sel+1:]...)
		b.selected = -1
		b.gesture = nil
		b.commitLocked()
		b.eraseLocked(out, []shape.Shape{victim})
		return true
	})
}

// DuplicateSelected copies the selection, offset by (d, d), and selects the copy.
func (b *Board) DuplicateSelected(d float64) bool {
	return b.update(func(out *[]protocol.Message) bool {
		if b.selected < 0 {
			return false
		}
		// A move or resize still in progress is committed first.
		b.endGestureLocked(out)
		src := b.shapes[b.selected].Clone()
		dup := shape.Shape{
			Geometry:      shape.Translate(src.Geometry, d, d),
			Pending:       true,
			CorrelationID: uuid.NewString(),
		}
		b.shapes = append(b.shapes, dup)
		b.selected = len(b.shapes) - 1
		b.gesture = nil
		b.commitLocked()
		b.createLocked(out, dup)
		return true
	})
}

// ClearAll empties the room for everyone.
func (b *Board) ClearAll() bool {
	return b.update(func(out *[]protocol.Message) bool {
		for _, s := range b.shapes {
			if s.Pending {
				b.cleared[s.CorrelationID] = true
			}
		}
		b.shapes = nil
		b.selected = -1
		b.gesture = nil
		b.commitLocked()
		*out = append(*out, protocol.ClearAll(b.room))
		return true
	})
}

// Undo restores the previous snapshot locally. The server is not told.
func (b *Board) Undo() bool {
	return b.update(func(*[]protocol.Message) bool {
		snap, ok := b.history.Undo()
		if !ok {
			return false
		}
		b.restoreLocked(snap)
		return true
	})
}

func (b *Board) Redo() bool {
	return b.update(func(*[]protocol.Message) bool {
		snap, ok := b.history.Redo()
		if !ok {
			return false
		}
		b.restoreLocked(snap)
		return true
	})
}

func (b *Board) restoreLocked(snap []shape.Shape) {
	b.shapes = snap
	b.selected = -1
	b.gesture = nil
	// A restored pending shape is live again; its echo must confirm it.
	for _, s := range snap {
		if s.Pending {
			delete(b.erased, s.CorrelationID)
			delete(b.cleared, s.CorrelationID)
		}
	}
}

// Render calls draw for each shape in paint order. A shape whose drawing
// panics is logged and skipped. It returns how many shapes were drawn.
func (b *Board) Render(draw func(shape.Shape)) int {
	shapes := b.Shapes()
	n := 0
	for _, s := range shapes {
		if b.renderOne(draw, s) {
			n++
		}
	}
	return n
}

func (b *Board) renderOne(draw func(shape.Shape), s shape.Shape) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("skipping shape that failed to render", "id", s.ID, "kind", s.Kind(), "panic", r)
			ok = false
		}
	}()
	draw(s)
	return true
}
