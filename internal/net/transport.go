package net

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrOutboxFull means the peer is not draining its frames; it is closed.
	ErrOutboxFull = errors.New("peer outbox full")
	// ErrSessionClosed is returned when sending to a peer that already went away.
	ErrSessionClosed = errors.New("session closed")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrame bounds an inbound frame; long freehand strokes stay well below it.
	maxFrame = 1 << 20
)

// Peer is the transport handle of one session. Send must not block.
type Peer interface {
	Send(data []byte) error
	Close() error
}

// wsPeer queues frames for a single writer goroutine, since a websocket
// connection allows only one concurrent writer.
type wsPeer struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
	// drain asks the writer to flush out, send a normal close and stop.
	drain     chan struct{}
	drainOnce sync.Once
	stopped   chan struct{}
	log       *slog.Logger
}

func newWSPeer(conn *websocket.Conn, outbox int, log *slog.Logger) *wsPeer {
	p := &wsPeer{
		conn: conn,
		out:     make(chan []byte, outbox),
		done:    make(chan struct{}),
		drain:   make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log,
	}
	go p.writeLoop()
	return p
}

func (p *wsPeer) Send(data []byte) error {
	select {
	case <-p.done:
		return ErrSessionClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	default:
		// Drop the slow consumer rather than stall the room.
		p.Close()
		return ErrOutboxFull
	}
}

func (p *wsPeer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}

// Shutdown writes what is still queued and a normal close frame, waiting
// at most timeout, then closes the connection.
func (p *wsPeer) Shutdown(timeout time.Duration) error {
	p.drainOnce.Do(func() { close(p.drain) })
	select {
	case <-p.stopped:
	case <-time.After(timeout):
	}
	return p.Close()
}

func (p *wsPeer) write(data []byte) bool {
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.log.Debug("write failed", "remote", p.conn.RemoteAddr().String(), "err", err)
		p.Close()
		return false
	}
	return true
}

func (p *wsPeer) writeLoop() {
	defer close(p.stopped)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-p.out:
			if !p.write(data) {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.Close()
				return
			}
		case <-p.drain:
			for {
				select {
				case data := <-p.out:
					if !p.write(data) {
						return
					}
				default:
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
					return
				}
			}
		case <-p.done:
			return
		}
	}
}

// closeWith sends a close frame with code before dropping the connection.
func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
