package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"LiveBoard/internal/auth"
	"LiveBoard/internal/protocol"
	"LiveBoard/internal/shape"
)

const (
	// clientOutbox bounds edits queued behind a slow connection.
	clientOutbox = 256
	closeWait    = time.Second
)

// Client is the board connection of one client replica.
type Client struct {
	addr  string
	creds auth.Credentials
	room  int64

	conn *websocket.Conn
	// peer owns every write to conn.
	peer *wsPeer
	// joined is true when the room was joined explicitly and must be left.
	joined bool
	log    *slog.Logger
}

func query(creds auth.Credentials) url.Values {
	q := url.Values{}
	if creds.Token != "" {
		q.Set("token", creds.Token)
	}
	if creds.SessionKey != "" {
		q.Set("sessionKey", creds.SessionKey)
	}
	return q
}

// Dial connects to the board server at addr (host:port) for room. Owners
// join the room explicitly; guests are joined by the server.
func Dial(ctx context.Context, addr string, creds auth.Credentials, room int64, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{addr: addr, creds: creds, room: room, log: log}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: query(creds).Encode()}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.conn = conn
	c.peer = newWSPeer(conn, clientOutbox, log)
	if creds.Token != "" {
		if err := c.Send(protocol.Join(room)); err != nil {
			c.peer.Close()
			return nil, err
		}
		c.joined = true
	}
	log.Info("connected", "addr", addr, "room", room)
	return c, nil
}

// Room is the room this client edits.
func (c *Client) Room() int64 { return c.room }

// Send queues one message for the writer and never blocks. A full queue
// drops the connection with ErrOutboxFull; Run then returns.
func (c *Client) Send(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.peer.Send(data)
}

// Run reads server messages and hands each to fn until the connection ends
// or ctx is done. Malformed frames are logged and skipped.
func (c *Client) Run(ctx context.Context, fn func(protocol.Message)) error {
	stop := context.AfterFunc(ctx, func() { c.peer.Close() })
	defer stop()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsUnauthorized(err) {
				return fmt.Errorf("%w: %v", auth.ErrUnauthorized, err)
			}
			return err
		}
		msg, err := protocol.Parse(data)
		if err != nil {
			c.log.Warn("dropping malformed message", "err", err)
			continue
		}
		fn(msg)
	}
}

// IsUnauthorized reports whether err is the server's handshake rejection.
func IsUnauthorized(err error) bool {
	return websocket.IsCloseError(err, websocket.ClosePolicyViolation)
}

// FetchShapes loads the room's current shapes over HTTP.
func (c *Client) FetchShapes(ctx context.Context) ([]shape.Shape, error) {
	return FetchShapes(ctx, http.DefaultClient, c.addr, c.creds, c.room)
}

// FetchShapes is the reconnect refetch: GET /shapes/{room}.
func FetchShapes(ctx context.Context, hc *http.Client, addr string, creds auth.Credentials, room int64) ([]shape.Shape, error) {
	u := url.URL{Scheme: "http", Host: addr, Path: "/shapes/" + strconv.FormatInt(room, 10), RawQuery: query(creds).Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", auth.ErrUnauthorized, resp.Status)
	default:
		return nil, fmt.Errorf("fetch shapes: %s", resp.Status)
	}
	var body struct {
		Shapes []shape.Shape `json:"shapes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch shapes: %w", err)
	}
	return body.Shapes, nil
}

// Close leaves an explicitly joined room, best effort, then closes.
func (c *Client) Close() error {
	if c.joined {
		if err := c.Send(protocol.Leave(c.room)); err != nil {
			c.log.Debug("leave_room not sent", "err", err)
		}
	}
	err := c.peer.Shutdown(closeWait)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
