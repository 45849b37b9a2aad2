package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"LiveBoard/internal/auth"
	"LiveBoard/internal/export"
	"LiveBoard/internal/net"
	"LiveBoard/internal/protocol"
	"LiveBoard/internal/state"
)

var errOffline = errors.New("not connected")

// relay lets one board outlive the connections it is synced over.
type relay struct {
	mu sync.Mutex
	c  *net.Client
}

func (r *relay) set(c *net.Client) {
	r.mu.Lock()
	r.c = c
	r.mu.Unlock()
}

func (r *relay) Send(m protocol.Message) error {
	r.mu.Lock()
	c := r.c
	r.mu.Unlock()
	if c == nil {
		return errOffline
	}
	return c.Send(m)
}

func runClient(args []string) error {
	fs := flag.NewFlagSet("liveboard join", flag.ContinueOnError)
	token := fs.String("token", os.Getenv("LIVEBOARD_TOKEN"), "owner token")
	room := fs.Int64("room", 0, "room to open when the link carries none")
	discover := fs.Bool("discover", false, "find a board on the local network")
	pdfPath := fs.String("pdf", "", "write the board to this pdf on exit")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")

	var link net.Link
	if len(args) > 0 && strings.HasPrefix(args[0], net.Scheme) {
		l, err := net.ParseLink(args[0])
		if err != nil {
			return err
		}
		link = l
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	log, err := newLogger(*logLevel)
	if err != nil {
		return err
	}

	if link.Addr == "" {
		if !*discover {
			return errors.New("a liveboard:// link or -discover is required")
		}
		found, err := net.Browse(3 * time.Second)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.New("no board found on the local network")
		}
		link.Addr = found[0]
		log.Info("discovered board", "addr", link.Addr, "candidates", len(found))
	}
	if link.Room == 0 {
		link.Room = *room
	}
	if link.Room == 0 {
		return errors.New("no room given")
	}
	creds := auth.Credentials{Token: *token, SessionKey: link.SessionKey}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-exit
		cancel()
	}()

	r := &relay{}
	board := state.NewBoard(link.Room, r, log)
	board.Subscribe(func(ch state.Change) {
		log.Debug("board changed", "shapes", ch.Shapes, "undo", ch.CanUndo, "redo", ch.CanRedo)
	})
	defer board.Detach()

	err = keepSynced(ctx, link, creds, board, r, log)
	if *pdfPath != "" {
		if werr := writePDF(*pdfPath, board); werr != nil {
			log.Error("pdf export failed", "path", *pdfPath, "err", werr)
		} else {
			log.Info("board exported", "path", *pdfPath, "shapes", len(board.Shapes()))
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// keepSynced keeps board connected until ctx ends or the server rejects us.
func keepSynced(ctx context.Context, link net.Link, creds auth.Credentials, board *state.Board, r *relay, log *slog.Logger) error {
	backoff := time.Second
	for {
		connected, err := session(ctx, link, creds, board, r, log)
		if connected {
			backoff = time.Second
		}
		if errors.Is(err, auth.ErrUnauthorized) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("disconnected, reconnecting", "err", err, "in", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// session runs one connection. connected reports whether the board was
// loaded before the connection ended.
func session(ctx context.Context, link net.Link, creds auth.Credentials, board *state.Board, r *relay, log *slog.Logger) (connected bool, err error) {
	c, err := net.Dial(ctx, link.Addr, creds, link.Room, log)
	if err != nil {
		return false, err
	}
	defer c.Close()

	shapes, err := c.FetchShapes(ctx)
	if err != nil {
		return false, err
	}
	board.Load(shapes)
	log.Info("connected", "addr", link.Addr, "room", link.Room, "shapes", len(shapes))

	r.set(c)
	defer r.set(nil)
	return true, c.Run(ctx, func(m protocol.Message) {
		if err := board.Apply(m); err != nil {
			log.Debug("ignored message", "type", m.Type, "err", err)
		}
	})
}

func writePDF(path string, board *state.Board) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.PDF(f, board.Shapes()); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	return f.Close()
}
