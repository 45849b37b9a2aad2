// Package store persists room shapes. It is the authoritative copy: the
// server keeps nothing cached between requests.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"LiveBoard/internal/shape"
)

var (
	// ErrNotFound is returned when a shape or session key does not exist in the room.
	ErrNotFound = errors.New("not found")
	// ErrNoIdentity is returned when an update names a shape without a persistent id.
	ErrNoIdentity = errors.New("shape has no persistent id")
)

// Store is the persistence collaborator used by the broadcast router and
// the HTTP surface. Calls for one room are sequentially consistent.
type Store interface {
	// CreateShape stores s in room and returns it with its new id.
	CreateShape(ctx context.Context, room int64, s shape.Shape) (shape.Shape, error)
	// UpdateShape replaces the geometry of an existing shape of room.
	UpdateShape(ctx context.Context, room int64, s shape.Shape) (shape.Shape, error)
	// DeleteShapes removes ids from room. Unknown ids are ignored.
	DeleteShapes(ctx context.Context, room int64, ids []int64) error
	DeleteAllShapes(ctx context.Context, room int64) error
	// ListShapes returns room's shapes in paint order.
	ListShapes(ctx context.Context, room int64) ([]shape.Shape, error)

	// SetSessionKey grants guest access to room through key.
	SetSessionKey(ctx context.Context, room int64, key string) error
	RoomBySessionKey(ctx context.Context, key string) (int64, error)

	Close() error
}

// Open picks a backend from a DATABASE_URL style string:
// "memory:", "sqlite:<path>" or "postgres://...".
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case url == "" || url == "memory:":
		return NewMemory(), nil
	case strings.HasPrefix(url, "sqlite:"), strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		s, err := OpenSQL(ctx, url)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unsupported database url %q", url)
	}
}

// Memory is an in-process Store for tests and single-node runs.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rooms  map[int64][]shape.Shape
	keys   map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[int64][]shape.Shape),
		keys:  make(map[string]int64),
	}
}

func (m *Memory) CreateShape(ctx context.Context, room int64, s shape.Shape) (shape.Shape, error) {
	if err := ctx.Err(); err != nil {
		return shape.Shape{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stored := s.Clone().Confirmed(m.nextID)
	m.rooms[room] = append(m.rooms[room], stored)
	return stored.Clone(), nil
}

func (m *Memory) UpdateShape(ctx context.Context, room int64, s shape.Shape) (shape.Shape, error) {
	if err := ctx.Err(); err != nil {
		return shape.Shape{}, err
	}
	if !s.Stored() {
		return shape.Shape{}, ErrNoIdentity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	shapes := m.rooms[room]
	for i := range shapes {
		if shapes[i].ID == s.ID {
			shapes[i] = s.Clone().Confirmed(s.ID)
			return shapes[i].Clone(), nil
		}
	}
	return shape.Shape{}, ErrNotFound
}

func (m *Memory) DeleteShapes(ctx context.Context, room int64, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rooms[room][:0]
	for _, s := range m.rooms[room] {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	m.rooms[room] = kept
	return nil
}

func (m *Memory) DeleteAllShapes(ctx context.Context, room int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, room)
	return nil
}

func (m *Memory) ListShapes(ctx context.Context, room int64) ([]shape.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return shape.CloneAll(m.rooms[room]), nil
}

func (m *Memory) SetSessionKey(ctx context.Context, room int64, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.keys {
		if r == room {
			delete(m.keys, k)
		}
	}
	m.keys[key] = room
	return nil
}

func (m *Memory) RoomBySessionKey(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.keys[key]
	if !ok {
		return 0, ErrNotFound
	}
	return room, nil
}

func (m *Memory) Close() error { return nil }
