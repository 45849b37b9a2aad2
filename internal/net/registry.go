package net

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"LiveBoard/internal/auth"
)

// Session is one live connection: its identity, the rooms it joined and its
// transport. Room membership is guarded by the owning Registry.
type Session struct {
	ID       string
	Identity auth.Identity

	peer  Peer
	rooms map[int64]struct{}

	// handling serializes inbound messages of this session.
	handling sync.Mutex
}

// Send delivers one frame to the session's peer.
func (s *Session) Send(data []byte) error { return s.peer.Send(data) }

// Registry is the process-wide table of live sessions.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		log:      log,
	}
}

// Register admits a connection already joined to rooms.
func (r *Registry) Register(peer Peer, id auth.Identity, rooms ...int64) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Identity: id,
		peer:     peer,
		rooms:    make(map[int64]struct{}, len(rooms)),
	}
	for _, room := range rooms {
		s.rooms[room] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.log.Info("session registered", "session", s.ID, "user", id.ID, "role", id.Role.String(), "rooms", rooms)
	return s
}

func (r *Registry) JoinRoom(s *Session, room int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.rooms[room] = struct{}{}
}

func (r *Registry) LeaveRoom(s *Session, room int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(s.rooms, room)
}

// InRoom reports whether s is currently a member of room.
func (r *Registry) InRoom(s *Session, room int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// ForEachInRoom calls fn for every member of room. fn runs outside the lock
// on a snapshot, so it may block or touch the registry.
func (r *Registry) ForEachInRoom(room int64, fn func(*Session)) {
	r.mu.RLock()
	members := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if _, ok := s.rooms[room]; ok {
			members = append(members, s)
		}
	}
	r.mu.RUnlock()
	for _, s := range members {
		fn(s)
	}
}

// Unregister removes s. It is safe to call more than once and reports
// whether this call removed it.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return false
	}
	delete(r.sessions, s.ID)
	s.rooms = map[int64]struct{}{}
	r.log.Info("session unregistered", "session", s.ID, "user", s.Identity.ID)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
