package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/shape"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	lite, err := OpenSQL(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": lite,
	}
}

func rect(x float64) shape.Shape {
	return shape.Shape{Geometry: shape.Rect{X: x, Y: x, Width: 10, Height: 10}}
}

func TestShapeLifecycle(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pending := rect(1)
			pending.Pending, pending.CorrelationID = true, "c"
			a, err := st.CreateShape(ctx, 1, pending)
			require.NoError(t, err)
			assert.True(t, a.Stored())
			assert.False(t, a.Pending)
			assert.Empty(t, a.CorrelationID)

			b, err := st.CreateShape(ctx, 1, shape.Shape{Geometry: shape.Freehand{Points: []shape.Point{{X: 1, Y: 2}}}})
			require.NoError(t, err)
			assert.NotEqual(t, a.ID, b.ID)

			_, err = st.CreateShape(ctx, 2, rect(9))
			require.NoError(t, err)

			moved := a
			moved.Geometry = shape.Translate(a.Geometry, 5, 5)
			got, err := st.UpdateShape(ctx, 1, moved)
			require.NoError(t, err)
			assert.Equal(t, moved, got)

			list, err := st.ListShapes(ctx, 1)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, []shape.Shape{moved, b}, list)

			require.NoError(t, st.DeleteShapes(ctx, 1, []int64{a.ID, 999}))
			list, err = st.ListShapes(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []shape.Shape{b}, list)

			require.NoError(t, st.DeleteAllShapes(ctx, 1))
			list, err = st.ListShapes(ctx, 1)
			require.NoError(t, err)
			assert.Empty(t, list)

			other, err := st.ListShapes(ctx, 2)
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestUpdateIsRoomScoped(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := st.CreateShape(ctx, 1, rect(1))
			require.NoError(t, err)

			_, err = st.UpdateShape(ctx, 2, a)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = st.UpdateShape(ctx, 1, rect(1))
			assert.ErrorIs(t, err, ErrNoIdentity)
		})
	}
}

func TestSessionKeys(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := st.RoomBySessionKey(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.SetSessionKey(ctx, 5, "first"))
			require.NoError(t, st.SetSessionKey(ctx, 5, "second"))

			room, err := st.RoomBySessionKey(ctx, "second")
			require.NoError(t, err)
			assert.Equal(t, int64(5), room)

			// A room holds at most one live key.
			_, err = st.RoomBySessionKey(ctx, "first")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), "memory:")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(context.Background(), "mysql://x")
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().CreateShape(ctx, 1, rect(1))
	assert.ErrorIs(t, err, context.Canceled)
}
