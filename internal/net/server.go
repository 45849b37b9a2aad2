package net

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"LiveBoard/internal/auth"
	"LiveBoard/internal/export"
	"LiveBoard/internal/metrics"
	"LiveBoard/internal/shape"
	"LiveBoard/internal/store"
)

// Resolver turns handshake credentials into an identity.
type Resolver interface {
	Resolve(ctx context.Context, c auth.Credentials) (auth.Identity, error)
}

// Server is the HTTP surface: the board websocket plus the read endpoints
// clients use to refetch a room after reconnecting.
type Server struct {
	reg      *Registry
	router   *Router
	store    store.Store
	auth     Resolver
	outbox   int
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(reg *Registry, router *Router, st store.Store, resolver Resolver, outbox int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		reg:    reg,
		router: router,
		store:  st,
		auth:   resolver,
		outbox: outbox,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Boards are opened from share links on any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes returns the handler tree.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withLogging)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWS)
	r.Methods(http.MethodGet).Path("/shapes/{roomId:[0-9]+}").HandlerFunc(s.listShapes)
	r.Methods(http.MethodGet).Path("/rooms/{roomId:[0-9]+}/export.pdf").HandlerFunc(s.exportPDF)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path("/metrics").Handler(metrics.Handler())
	return r
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info("handled", "method", r.Method, "path", r.URL.Path, "duration", m.Duration, "status", m.Code)
	})
}

func credentials(r *http.Request) auth.Credentials {
	q := r.URL.Query()
	return auth.Credentials{Token: q.Get("token"), SessionKey: q.Get("sessionKey")}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade", "err", err)
		return
	}

	id, err := s.auth.Resolve(r.Context(), credentials(r))
	if err != nil {
		s.log.Warn("handshake rejected", "remote", r.RemoteAddr, "err", err)
		metrics.RecordHandshakeFailure()
		closeWith(conn, websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	var rooms []int64
	if id.Role == auth.Guest {
		rooms = append(rooms, id.RoomID)
	}
	peer := newWSPeer(conn, s.outbox, s.log)
	sess := s.reg.Register(peer, id, rooms...)
	metrics.RecordSession(id.Role.String(), 1)
	defer func() {
		if s.reg.Unregister(sess) {
			metrics.RecordSession(id.Role.String(), -1)
		}
		peer.Close()
	}()

	conn.SetReadLimit(maxFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("connection lost", "session", sess.ID, "err", err)
			}
			return
		}
		// Errors are already logged and contained by the router.
		_ = s.router.Handle(r.Context(), sess, data)
	}
}

// authorizeRoom resolves the caller and checks it may read room.
func (s *Server) authorizeRoom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	room, err := strconv.ParseInt(mux.Vars(r)["roomId"], 10, 64)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return 0, false
	}
	id, err := s.auth.Resolve(r.Context(), credentials(r))
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, auth.ErrUnauthorized) {
			status = http.StatusInternalServerError
		}
		http.Error(w, http.StatusText(status), status)
		return 0, false
	}
	if id.Role == auth.Guest && id.RoomID != room {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return 0, false
	}
	return room, true
}

func (s *Server) listShapes(w http.ResponseWriter, r *http.Request) {
	room, ok := s.authorizeRoom(w, r)
	if !ok {
		return
	}
	shapes, err := s.store.ListShapes(r.Context(), room)
	if err != nil {
		s.log.Error("list shapes", "room", room, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if shapes == nil {
		shapes = []shape.Shape{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Shapes []shape.Shape `json:"shapes"`
	}{shapes}); err != nil {
		s.log.Error("failed to write out", "err", err)
	}
}

func (s *Server) exportPDF(w http.ResponseWriter, r *http.Request) {
	room, ok := s.authorizeRoom(w, r)
	if !ok {
		return
	}
	shapes, err := s.store.ListShapes(r.Context(), room)
	if err != nil {
		s.log.Error("list shapes", "room", room, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	if err := export.PDF(w, shapes); err != nil {
		s.log.Error("export pdf", "room", room, "err", err)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessions": s.reg.Len()})
}
