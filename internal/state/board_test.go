package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/protocol"
	"LiveBoard/internal/shape"
)

const room = 1

type recorder struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (r *recorder) Send(m protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

func (r *recorder) last(t *testing.T) protocol.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newBoard() (*Board, *recorder) {
	rec := &recorder{}
	return NewBoard(room, rec, nil), rec
}

func rect(x, y, w, h float64) shape.Rect { return shape.Rect{X: x, Y: y, Width: w, Height: h} }

// echo plays the server: it stores the last create with id and feeds the
// broadcast back.
func echo(t *testing.T, b *Board, create protocol.Message, id int64) {
	t.Helper()
	require.Equal(t, protocol.TypeShape, create.Type)
	s, err := create.DecodeShape()
	require.NoError(t, err)
	out, err := protocol.ShapeCreated(room, s.Confirmed(id), create.CorrelationID)
	require.NoError(t, err)
	require.NoError(t, b.Apply(out))
}

func TestTempIDReconciliation(t *testing.T) {
	b, rec := newBoard()
	corr, err := b.BeginLocalShape(rect(10, 10, 50, 50))
	require.NoError(t, err)

	shapes := b.Shapes()
	require.Len(t, shapes, 1)
	assert.True(t, shapes[0].Pending)
	assert.Equal(t, corr, shapes[0].CorrelationID)
	assert.False(t, shapes[0].Stored())

	sent := rec.last(t)
	assert.Equal(t, corr, sent.CorrelationID)
	echo(t, b, sent, 7)

	shapes = b.Shapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, shape.Shape{ID: 7, Geometry: rect(10, 10, 50, 50)}, shapes[0])
}

func TestConfirmationIsIdempotent(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	create := rec.last(t)
	echo(t, b, create, 3)
	echo(t, b, create, 3)
	assert.Len(t, b.Shapes(), 1)

	remote := shape.Shape{ID: 9, Geometry: shape.Line{X2: 5}}
	b.OnRemoteShapeConfirmed(remote, "")
	b.OnRemoteShapeConfirmed(remote, "")
	assert.Len(t, b.Shapes(), 2)
}

func TestRemoteAppendCreatesNoHistory(t *testing.T) {
	b, _ := newBoard()
	b.OnRemoteShapeConfirmed(shape.Shape{ID: 1, Geometry: rect(0, 0, 1, 1)}, "")
	assert.False(t, b.CanUndo())
	assert.Len(t, b.Shapes(), 1)
}

func TestUndoRedoInverse(t *testing.T) {
	for _, n := range []int{1, 3, 10, HistorySize - 1} {
		b, _ := newBoard()
		for i := 0; i < n; i++ {
			switch i % 3 {
			case 0, 1:
				_, err := b.BeginLocalShape(rect(float64(i*30), 0, 20, 20))
				require.NoError(t, err)
			case 2:
				require.True(t, b.SelectAt(float64((i-1)*30+5), 5, 0))
				require.True(t, b.MoveSelected(0, 100))
				require.True(t, b.EndGesture())
			}
		}
		final := b.Shapes()
		for i := 0; i < n; i++ {
			require.True(t, b.Undo(), "undo %d of %d", i+1, n)
		}
		assert.Empty(t, b.Shapes())
		for i := 0; i < n; i++ {
			require.True(t, b.Redo(), "redo %d of %d", i+1, n)
		}
		assert.Equal(t, final, b.Shapes(), "n=%d", n)
	}
}

func TestUndoRedoBounds(t *testing.T) {
	b, _ := newBoard()
	assert.False(t, b.Undo())
	assert.False(t, b.Redo())

	_, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	before := b.Shapes()
	assert.False(t, b.Redo())
	assert.Equal(t, before, b.Shapes())

	require.True(t, b.Undo())
	assert.False(t, b.Undo())
	assert.Empty(t, b.Shapes())
}

func TestHistoryCapacity(t *testing.T) {
	b, _ := newBoard()
	for i := 0; i < HistorySize+10; i++ {
		_, err := b.BeginLocalShape(rect(float64(i), 0, 1, 1))
		require.NoError(t, err)
	}
	undos := 0
	for b.Undo() {
		undos++
	}
	assert.Equal(t, HistorySize-1, undos)
	assert.Len(t, b.Shapes(), 11)
}

func TestMoveThenErase(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(10, 10, 50, 50)}})

	require.True(t, b.SelectAt(30, 30, 0))
	require.True(t, b.MoveSelected(5, 5))
	require.True(t, b.EndGesture())

	upd := rec.last(t)
	assert.Equal(t, protocol.TypeUpdateShape, upd.Type)
	s, err := upd.DecodeShape()
	require.NoError(t, err)
	assert.Equal(t, shape.Shape{ID: 1, Geometry: rect(15, 15, 50, 50)}, s)

	require.True(t, b.EraseAt(15, 15, 5))
	er := rec.last(t)
	assert.Equal(t, protocol.TypeErase, er.Type)
	assert.Equal(t, []int64{1}, er.ShapeIDs)
	assert.Empty(t, b.Shapes())

	// Our own erase echo is a no-op.
	b.OnRemoteErase([]int64{1})
	assert.Empty(t, b.Shapes())
}

func TestEraseRadius(t *testing.T) {
	const radius, eps = 20.0, 1e-6
	b, _ := newBoard()
	b.Load([]shape.Shape{
		{ID: 1, Geometry: shape.Freehand{Points: []shape.Point{{X: 100 + radius - eps, Y: 100}}}},
		{ID: 2, Geometry: shape.Freehand{Points: []shape.Point{{X: 100, Y: 100 + radius + eps}}}},
	})
	require.True(t, b.EraseAt(100, 100, radius))
	left := b.Shapes()
	require.Len(t, left, 1)
	assert.Equal(t, int64(2), left[0].ID)
}

func TestEraseMissIsNoop(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(0, 0, 10, 10)}})
	assert.False(t, b.EraseAt(500, 500, 5))
	assert.False(t, b.CanUndo())
	assert.Zero(t, rec.count())
}

func TestErasePendingThenEcho(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	create := rec.last(t)

	require.True(t, b.EraseAt(5, 5, 1))
	assert.Equal(t, 1, rec.count(), "pending shapes are dropped without a message")

	echo(t, b, create, 4)
	assert.Empty(t, b.Shapes())
	er := rec.last(t)
	assert.Equal(t, protocol.TypeErase, er.Type)
	assert.Equal(t, []int64{4}, er.ShapeIDs)
}

func TestUndoPendingThenEcho(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	create := rec.last(t)
	require.True(t, b.Undo())

	echo(t, b, create, 5)
	assert.Empty(t, b.Shapes(), "undo stays local")
	assert.Equal(t, 1, rec.count())

	require.True(t, b.Redo())
	assert.Equal(t, []shape.Shape{{ID: 5, Geometry: rect(0, 0, 10, 10)}}, b.Shapes())
}

func TestMovePendingSyncsOnConfirm(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	create := rec.last(t)

	require.True(t, b.SelectAt(5, 5, 0))
	require.True(t, b.MoveSelected(20, 0))
	require.True(t, b.EndGesture())
	assert.Equal(t, 1, rec.count(), "no update before the shape has an id")

	echo(t, b, create, 8)
	want := shape.Shape{ID: 8, Geometry: rect(20, 0, 10, 10)}
	assert.Equal(t, []shape.Shape{want}, b.Shapes())

	upd := rec.last(t)
	require.Equal(t, protocol.TypeUpdateShape, upd.Type)
	got, err := upd.DecodeShape()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfirmMidGestureKeepsDrag(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	create := rec.last(t)

	require.True(t, b.SelectAt(5, 5, 0))
	require.True(t, b.MoveSelected(30, 0))
	echo(t, b, create, 2)
	require.True(t, b.EndGesture())

	upd := rec.last(t)
	require.Equal(t, protocol.TypeUpdateShape, upd.Type)
	got, err := upd.DecodeShape()
	require.NoError(t, err)
	assert.Equal(t, shape.Shape{ID: 2, Geometry: rect(30, 0, 10, 10)}, got)
}

func TestResizeUsesOriginal(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(0, 0, 100, 100)}})
	require.True(t, b.SelectAt(50, 50, 0))

	h, ok := b.HandleAt(100, 100, 8)
	require.True(t, ok)
	require.Equal(t, shape.HandleSE, h)
	for _, d := range []float64{10, 20, 30} {
		require.True(t, b.ResizeSelected(h, d, d))
	}
	require.True(t, b.EndGesture())

	assert.Equal(t, rect(0, 0, 130, 130), b.Shapes()[0].Geometry)
	assert.Equal(t, protocol.TypeUpdateShape, rec.last(t).Type)

	require.True(t, b.Undo())
	assert.Equal(t, rect(0, 0, 100, 100), b.Shapes()[0].Geometry)
}

func TestStateErrorsAreNoops(t *testing.T) {
	b, rec := newBoard()
	assert.False(t, b.MoveSelected(1, 1))
	assert.False(t, b.ResizeSelected(shape.HandleE, 1, 1))
	assert.False(t, b.EndGesture())
	assert.False(t, b.DeleteSelected())
	assert.False(t, b.DuplicateSelected(20))
	_, ok := b.HandleAt(0, 0, 8)
	assert.False(t, ok)
	assert.Zero(t, rec.count())
}

func TestRejectedDropsPending(t *testing.T) {
	b, rec := newBoard()
	corr, err := b.BeginLocalShape(rect(0, 0, 10, 10))
	require.NoError(t, err)
	require.NoError(t, b.Apply(protocol.Failure(room, corr, assert.AnError)))
	assert.Empty(t, b.Shapes())

	// Undo cannot bring the rejected shape back.
	require.True(t, b.Undo())
	assert.Empty(t, b.Shapes())
	assert.Equal(t, 1, rec.count())
}

func TestRemoteUpdateAndErase(t *testing.T) {
	b, _ := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(0, 0, 1, 1)}, {ID: 2, Geometry: rect(5, 5, 1, 1)}})

	b.OnRemoteShapeUpdated(shape.Shape{ID: 2, Geometry: rect(9, 9, 1, 1)})
	b.OnRemoteShapeUpdated(shape.Shape{ID: 99, Geometry: rect(9, 9, 1, 1)})
	assert.Equal(t, []shape.Shape{
		{ID: 1, Geometry: rect(0, 0, 1, 1)},
		{ID: 2, Geometry: rect(9, 9, 1, 1)},
	}, b.Shapes())

	require.True(t, b.SelectAt(9.5, 9.5, 0))
	b.OnRemoteErase([]int64{1})
	sel, ok := b.Selected()
	require.True(t, ok, "selection follows the shape")
	assert.Equal(t, int64(2), sel.ID)
	assert.False(t, b.CanUndo())
}

func TestRemoteClear(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(0, 0, 1, 1)}})
	_, err := b.BeginLocalShape(rect(5, 5, 1, 1))
	require.NoError(t, err)
	create := rec.last(t)

	require.NoError(t, b.Apply(protocol.ClearAll(room)))
	assert.Empty(t, b.Shapes())
	_, ok := b.Selected()
	assert.False(t, ok)

	// The server stored our shape after the clear.
	echo(t, b, create, 2)
	assert.Equal(t, []shape.Shape{{ID: 2, Geometry: rect(5, 5, 1, 1)}}, b.Shapes())

	// Before the clear, the shape carries its id in history too.
	require.True(t, b.Undo())
	assert.Equal(t, []shape.Shape{
		{ID: 1, Geometry: rect(0, 0, 1, 1)},
		{ID: 2, Geometry: rect(5, 5, 1, 1)},
	}, b.Shapes())
}

func TestLocalClearAll(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(0, 0, 1, 1)}})
	require.True(t, b.ClearAll())
	assert.Equal(t, protocol.TypeClearAll, rec.last(t).Type)

	// The echo of our own clear adds nothing to undo.
	b.OnRemoteClear()
	require.True(t, b.Undo())
	assert.Len(t, b.Shapes(), 1)
	assert.False(t, b.CanUndo())
}

func TestDeleteAndDuplicate(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 1, Geometry: rect(0, 0, 10, 10)}})
	require.True(t, b.SelectAt(5, 5, 0))

	require.True(t, b.DuplicateSelected(20))
	create := rec.last(t)
	assert.Equal(t, protocol.TypeShape, create.Type)
	shapes := b.Shapes()
	require.Len(t, shapes, 2)
	assert.Equal(t, rect(20, 20, 10, 10), shapes[1].Geometry)
	assert.True(t, shapes[1].Pending)
	sel, ok := b.Selected()
	require.True(t, ok)
	assert.Equal(t, shapes[1].CorrelationID, sel.CorrelationID)

	// Deleting the pending copy sends nothing.
	require.True(t, b.DeleteSelected())
	assert.Equal(t, 1, rec.count())

	require.True(t, b.SelectAt(5, 5, 0))
	require.True(t, b.DeleteSelected())
	er := rec.last(t)
	assert.Equal(t, protocol.TypeErase, er.Type)
	assert.Equal(t, []int64{1}, er.ShapeIDs)
	assert.Empty(t, b.Shapes())
}

func TestDuplicateCommitsOpenGesture(t *testing.T) {
	b, rec := newBoard()
	b.Load([]shape.Shape{{ID: 7, Geometry: rect(0, 0, 10, 10)}})
	require.True(t, b.SelectAt(5, 5, 0))
	require.True(t, b.MoveSelected(100, 100))

	require.True(t, b.DuplicateSelected(20))
	assert.False(t, b.EndGesture(), "the move was already committed")

	require.Equal(t, 2, rec.count())
	rec.mu.Lock()
	upd, create := rec.sent[0], rec.sent[1]
	rec.mu.Unlock()
	require.Equal(t, protocol.TypeUpdateShape, upd.Type)
	moved, err := upd.DecodeShape()
	require.NoError(t, err)
	assert.Equal(t, int64(7), moved.ID)
	assert.Equal(t, shape.Geometry(rect(100, 100, 10, 10)), moved.Geometry)
	require.Equal(t, protocol.TypeShape, create.Type)

	// Undo drops the copy, then the move.
	require.True(t, b.Undo())
	assert.Equal(t, []shape.Shape{{ID: 7, Geometry: rect(100, 100, 10, 10)}}, b.Shapes())
	require.True(t, b.Undo())
	assert.Equal(t, []shape.Shape{{ID: 7, Geometry: rect(0, 0, 10, 10)}}, b.Shapes())
}

func TestClearAllDropsPendingEcho(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(rect(0, 0, 5, 5))
	require.NoError(t, err)
	create := rec.last(t)
	require.True(t, b.ClearAll())
	require.Equal(t, 2, rec.count())

	// The server stored the create before the clear; its echo is dropped quietly.
	echo(t, b, create, 4)
	require.NoError(t, b.Apply(protocol.ClearAll(room)))
	assert.Empty(t, b.Shapes())
	assert.Equal(t, 2, rec.count())
}

type stalledSender struct {
	entered chan struct{}
	release chan struct{}
	recorder
}

func (s *stalledSender) Send(m protocol.Message) error {
	s.entered <- struct{}{}
	<-s.release
	return s.recorder.Send(m)
}

func TestSlowSenderDoesNotBlockBoard(t *testing.T) {
	s := &stalledSender{entered: make(chan struct{}, 4), release: make(chan struct{})}
	b := NewBoard(room, s, nil)

	go func() { _, _ = b.BeginLocalShape(rect(0, 0, 1, 1)) }()
	<-s.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.BeginLocalShape(rect(5, 5, 1, 1))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BeginLocalShape waited for an in-flight send")
	}

	shapes := make(chan []shape.Shape, 1)
	go func() { shapes <- b.Shapes() }()
	select {
	case got := <-shapes:
		assert.Len(t, got, 2)
	case <-time.After(time.Second):
		t.Fatal("Shapes waited for an in-flight send")
	}

	close(s.release)
	require.Eventually(t, func() bool { return s.count() == 2 }, time.Second, 5*time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, want := range []shape.Geometry{rect(0, 0, 1, 1), rect(5, 5, 1, 1)} {
		got, err := s.sent[i].DecodeShape()
		require.NoError(t, err)
		assert.Equal(t, want, got.Geometry, "creates keep their order")
	}
}

func TestApplyIgnoresOtherRooms(t *testing.T) {
	b, _ := newBoard()
	out, err := protocol.ShapeCreated(room+1, shape.Shape{ID: 1, Geometry: rect(0, 0, 1, 1)}, "")
	require.NoError(t, err)
	require.NoError(t, b.Apply(out))
	assert.Empty(t, b.Shapes())

	assert.Error(t, b.Apply(protocol.Join(room)))
}

func TestObserversRunOutsideLock(t *testing.T) {
	b, _ := newBoard()
	var changes []Change
	b.Subscribe(func(c Change) {
		// Calling back into the board must not deadlock.
		assert.Equal(t, c.CanUndo, b.CanUndo())
		changes = append(changes, c)
	})
	_, err := b.BeginLocalShape(rect(0, 0, 1, 1))
	require.NoError(t, err)
	b.Undo()
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Shapes: 1, Selected: -1, CanUndo: true}, changes[0])
	assert.Equal(t, Change{Shapes: 0, Selected: -1, CanRedo: true}, changes[1])

	b.Detach()
	b.Redo()
	assert.Len(t, changes, 2)
}

func TestRenderSkipsFailingShape(t *testing.T) {
	b, _ := newBoard()
	b.Load([]shape.Shape{
		{ID: 1, Geometry: rect(0, 0, 1, 1)},
		{ID: 2, Geometry: shape.Line{X2: 1}},
		{ID: 3, Geometry: rect(2, 2, 1, 1)},
	})
	var drawn []int64
	n := b.Render(func(s shape.Shape) {
		if s.ID == 2 {
			panic("bad stroke")
		}
		drawn = append(drawn, s.ID)
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, drawn)
}

func TestBeginLocalShapeValidates(t *testing.T) {
	b, rec := newBoard()
	_, err := b.BeginLocalShape(shape.Freehand{})
	assert.ErrorIs(t, err, shape.ErrValidation)
	assert.Empty(t, b.Shapes())
	assert.Zero(t, rec.count())
}
