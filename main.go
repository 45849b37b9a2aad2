package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"LiveBoard/internal/auth"
	"LiveBoard/internal/config"
	"LiveBoard/internal/net"
	"LiveBoard/internal/store"
)

func main() {
	args := os.Args[1:]
	var err error
	if len(args) > 0 && (strings.HasPrefix(args[0], net.Scheme) || args[0] == "join") {
		if args[0] == "join" {
			args = args[1:]
		}
		err = runClient(args)
	} else {
		err = runHost(args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log, nil
}

func runHost(args []string) error {
	fs := flag.NewFlagSet("liveboard", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a yaml config file")
	addr := fs.String("addr", "", "the address to listen on")
	dbURL := fs.String("db", "", "postgres:// or sqlite: url, empty for in-memory")
	secret := fs.String("secret", "", "HS256 secret used to verify owner tokens")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	advertise := fs.Bool("mdns", false, "advertise the board on the local network")
	grantRoom := fs.Int64("grant-room", 0, "issue a guest share link for this room")
	issueFor := fs.String("issue-token", "", "print an owner token for this user id and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "db":
			cfg.DatabaseURL = *dbURL
		case "secret":
			cfg.JWTSecret = *secret
		case "log-level":
			cfg.LogLevel = *logLevel
		case "mdns":
			cfg.MDNS = *advertise
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	if *issueFor != "" {
		if cfg.JWTSecret == "" {
			return errors.New("a jwt secret is required to issue tokens")
		}
		tok, err := auth.Sign(cfg.JWTSecret, *issueFor, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}
	if cfg.JWTSecret == "" {
		log.Warn("no jwt secret configured, only guest links will be accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	port, err := cfg.Port()
	if err != nil {
		return err
	}
	share := net.Link{Addr: fmt.Sprintf("%s:%d", net.GetOutgoingIP(), port)}
	log.Info("share link", "link", share.String())

	if *grantRoom != 0 {
		key := auth.NewSessionKey()
		if err := st.SetSessionKey(ctx, *grantRoom, key); err != nil {
			return fmt.Errorf("failed to grant room %d: %w", *grantRoom, err)
		}
		guest := net.Link{Addr: share.Addr, Room: *grantRoom, SessionKey: key}
		log.Info("guest link", "room", *grantRoom, "link", guest.String())
	}

	if cfg.MDNS {
		md, err := net.Advertise(port)
		if err != nil {
			log.Warn("mdns advertisement failed", "err", err)
		} else {
			defer md.Shutdown()
			log.Info("advertising on mdns", "port", port)
		}
	}

	reg := net.NewRegistry(log)
	srv := net.NewServer(reg, net.NewRouter(reg, st, log), st, auth.NewResolver(cfg.JWTSecret, st), cfg.OutboxSize, log)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("http server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errs:
		wg.Wait()
		return fmt.Errorf("http server failed: %w", err)
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
	wg.Wait()
	return nil
}
