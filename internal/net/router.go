package net

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"LiveBoard/internal/auth"
	"LiveBoard/internal/metrics"
	"LiveBoard/internal/protocol"
	"LiveBoard/internal/shape"
	"LiveBoard/internal/store"
)

var (
	// ErrNotJoined rejects edits for a room the session is not a member of.
	ErrNotJoined = errors.New("not joined to room")
	// ErrGuestJoin rejects explicit joins from guest sessions.
	ErrGuestJoin = errors.New("guest sessions are bound to their room")
)

// storageError marks failures of the persistence collaborator.
type storageError struct{ err error }

func (e *storageError) Error() string { return "storage: " + e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

// Router applies inbound edit messages: validate, persist, then fan out to
// every session joined to the room, the sender included.
type Router struct {
	reg   *Registry
	store store.Store
	log   *slog.Logger
}

func NewRouter(reg *Registry, st store.Store, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{reg: reg, store: st, log: log}
}

// Handle processes one frame from sess. Errors are contained to this frame:
// they are logged, reported to the sender where useful and returned for
// callers that want them, but never close the connection.
func (rt *Router) Handle(ctx context.Context, sess *Session, data []byte) error {
	sess.handling.Lock()
	defer sess.handling.Unlock()

	start := time.Now()
	msg, err := protocol.Parse(data)
	if err != nil {
		rt.log.Warn("dropping malformed message", "session", sess.ID, "err", err)
		metrics.RecordMessage("unknown", metrics.StatusInvalid, time.Since(start))
		return err
	}

	err = rt.dispatch(ctx, sess, msg)
	status := metrics.StatusOK
	if err != nil {
		status = classify(err)
		rt.log.Warn("dropping message", "session", sess.ID, "room", msg.RoomID, "type", msg.Type, "status", status, "err", err)
		rt.reply(sess, protocol.Failure(msg.RoomID, msg.Correlation(), err))
	}
	metrics.RecordMessage(string(msg.Type), status, time.Since(start))
	return err
}

func classify(err error) string {
	var se *storageError
	switch {
	case errors.As(err, &se):
		return metrics.StatusStorageError
	case errors.Is(err, shape.ErrValidation), errors.Is(err, protocol.ErrMalformed):
		return metrics.StatusInvalid
	default:
		return metrics.StatusRejected
	}
}

func (rt *Router) dispatch(ctx context.Context, sess *Session, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeJoinRoom:
		return rt.join(sess, msg.RoomID)
	case protocol.TypeLeaveRoom:
		rt.reg.LeaveRoom(sess, msg.RoomID)
		rt.log.Info("left room", "session", sess.ID, "room", msg.RoomID)
		return nil
	}

	if !rt.reg.InRoom(sess, msg.RoomID) {
		return fmt.Errorf("%w %d", ErrNotJoined, msg.RoomID)
	}
	switch msg.Type {
	case protocol.TypeShape:
		return rt.create(ctx, msg)
	case protocol.TypeUpdateShape:
		return rt.update(ctx, msg)
	case protocol.TypeErase:
		return rt.erase(ctx, msg)
	case protocol.TypeClearAll:
		return rt.clear(ctx, msg)
	default:
		return fmt.Errorf("%w: %s is not accepted from clients", protocol.ErrMalformed, msg.Type)
	}
}

func (rt *Router) join(sess *Session, room int64) error {
	if sess.Identity.Role == auth.Guest && room != sess.Identity.RoomID {
		return fmt.Errorf("%w: room %d", ErrGuestJoin, room)
	}
	rt.reg.JoinRoom(sess, room)
	rt.log.Info("joined room", "session", sess.ID, "user", sess.Identity.ID, "room", room)
	return nil
}

func (rt *Router) create(ctx context.Context, msg protocol.Message) error {
	s, err := msg.DecodeShape()
	if err != nil {
		return err
	}
	stored, err := rt.store.CreateShape(ctx, msg.RoomID, s)
	if err != nil {
		return &storageError{err}
	}
	out, err := protocol.ShapeCreated(msg.RoomID, stored, s.CorrelationID)
	if err != nil {
		return err
	}
	rt.broadcast(msg.RoomID, out)
	return nil
}

func (rt *Router) update(ctx context.Context, msg protocol.Message) error {
	s, err := msg.DecodeShape()
	if err != nil {
		return err
	}
	if !s.Stored() {
		return &shape.ValidationError{Kind: s.Kind(), Field: "id", Reason: "update requires a persistent id"}
	}
	stored, err := rt.store.UpdateShape(ctx, msg.RoomID, s)
	if err != nil {
		return &storageError{err}
	}
	out, err := protocol.ShapeUpdated(msg.RoomID, stored)
	if err != nil {
		return err
	}
	rt.broadcast(msg.RoomID, out)
	return nil
}

func (rt *Router) erase(ctx context.Context, msg protocol.Message) error {
	if len(msg.ShapeIDs) == 0 {
		return nil
	}
	if err := rt.store.DeleteShapes(ctx, msg.RoomID, msg.ShapeIDs); err != nil {
		return &storageError{err}
	}
	rt.broadcast(msg.RoomID, protocol.Erase(msg.RoomID, msg.ShapeIDs))
	return nil
}

func (rt *Router) clear(ctx context.Context, msg protocol.Message) error {
	if err := rt.store.DeleteAllShapes(ctx, msg.RoomID); err != nil {
		return &storageError{err}
	}
	rt.broadcast(msg.RoomID, protocol.ClearAll(msg.RoomID))
	return nil
}

// broadcast sends to every member; a failing recipient is logged and skipped.
func (rt *Router) broadcast(room int64, msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		rt.log.Error("encode broadcast", "room", room, "type", msg.Type, "err", err)
		return
	}
	rt.reg.ForEachInRoom(room, func(s *Session) {
		err := s.Send(data)
		metrics.RecordDelivery(err)
		if err != nil {
			rt.log.Warn("broadcast send failed", "session", s.ID, "room", room, "type", msg.Type, "err", err)
		}
	})
}

func (rt *Router) reply(sess *Session, msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		return
	}
	if err := sess.Send(data); err != nil {
		rt.log.Debug("reply failed", "session", sess.ID, "err", err)
	}
}
