package state

import "LiveBoard/internal/shape"

// HistorySize is the number of snapshots kept, the current state included,
// which leaves HistorySize-1 undo steps.
const HistorySize = 50

// History is a bounded list of shape-list snapshots with a cursor. The
// snapshot at the cursor is always the current state.
type History struct {
	snaps  [][]shape.Shape
	cursor int
	limit  int
}

func NewHistory(limit int, initial []shape.Shape) *History {
	h := &History{limit: limit}
	h.Reset(initial)
	return h
}

// Reset drops every entry and starts over from initial.
func (h *History) Reset(initial []shape.Shape) {
	h.snaps = [][]shape.Shape{shape.CloneAll(initial)}
	h.cursor = 0
}

// Push records shapes as the newest state, discarding any redo branch.
func (h *History) Push(shapes []shape.Shape) {
	h.snaps = append(h.snaps[:h.cursor+1], shape.CloneAll(shapes))
	if len(h.snaps) > h.limit {
		h.snaps = h.snaps[len(h.snaps)-h.limit:]
	}
	h.cursor = len(h.snaps) - 1
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.snaps)-1 }

// Undo steps back and returns a copy of the snapshot there.
func (h *History) Undo() ([]shape.Shape, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.cursor--
	return shape.CloneAll(h.snaps[h.cursor]), true
}

func (h *History) Redo() ([]shape.Shape, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.cursor++
	return shape.CloneAll(h.snaps[h.cursor]), true
}

// Len is the number of stored snapshots.
func (h *History) Len() int { return len(h.snaps) }

// holds reports whether any snapshot contains the pending shape corr.
func (h *History) holds(corr string) bool {
	for _, snap := range h.snaps {
		if indexOfPending(snap, corr) >= 0 {
			return true
		}
	}
	return false
}

// confirm gives every pending copy of corr its persistent id, keeping the
// geometry each snapshot recorded.
func (h *History) confirm(corr string, id int64) {
	for _, snap := range h.snaps {
		for i := range snap {
			if snap[i].Pending && snap[i].CorrelationID == corr {
				snap[i] = snap[i].Confirmed(id)
			}
		}
	}
}

// forget removes every pending copy of corr.
func (h *History) forget(corr string) {
	for n, snap := range h.snaps {
		kept := snap[:0]
		for _, s := range snap {
			if !(s.Pending && s.CorrelationID == corr) {
				kept = append(kept, s)
			}
		}
		h.snaps[n] = kept
	}
}

func indexOfPending(shapes []shape.Shape, corr string) int {
	if corr == "" {
		return -1
	}
	for i, s := range shapes {
		if s.Pending && s.CorrelationID == corr {
			return i
		}
	}
	return -1
}

func indexOfID(shapes []shape.Shape, id int64) int {
	if id == 0 {
		return -1
	}
	for i, s := range shapes {
		if s.ID == id {
			return i
		}
	}
	return -1
}
