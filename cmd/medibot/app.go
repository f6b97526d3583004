package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"medibot/internal/backend"
	"medibot/internal/bus"
	"medibot/internal/config"
	"medibot/internal/dispatch"
	"medibot/internal/domain"
	"medibot/internal/router"
	"medibot/internal/server"
	"medibot/internal/session"
	"medibot/internal/store"
)

// busSize bounds messages waiting for the dispatcher.
const busSize = 100

// app is the wired bot core shared by serve, chat and ask.
type app struct {
	cfg      *config.Config
	store    store.Store
	backend  *backend.Client
	contexts domain.ContextStore
	janitor  *session.Janitor
	router   *router.Router
	bus      *bus.Queue
	closers  []io.Closer
}

// newApp opens the store and context store and builds the router.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path, cfg.Store.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st)

	retries := cfg.Backend.Retries
	if retries == 0 {
		retries = -1
	}
	client, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout(),
		Retries: retries,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("backend client: %w", err)
	}
	a.backend = client

	switch cfg.Session.Driver {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Session.Redis.Addr, cfg.Session.Redis.Password, cfg.Session.Redis.DB, cfg.Session.TTL())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("context store: %w", err)
		}
		a.contexts = rs
		a.closers = append(a.closers, rs)
	default:
		a.contexts = session.NewMemoryStore(cfg.Session.TTL(), nil)
	}

	a.janitor, err = session.NewJanitor(a.contexts, cfg.Session.SweepSchedule, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.router = router.New(router.Config{
		Search:         client,
		Orders:         client,
		Accounts:       st,
		Intake:         client,
		Contexts:       a.contexts,
		SupportContact: cfg.Support.Contact,
		SearchLimit:    cfg.Search.Limit,
		Logger:         logger,
	})
	a.bus = bus.New(busSize, logger)
	return a, nil
}

// dispatcher builds the bus consumer that answers through the originating channel.
func (a *app) dispatcher() *dispatch.Dispatcher {
	return dispatch.New(dispatch.Config{
		Bus:        a.bus,
		Handler:    a.router,
		Lanes:      a.cfg.Dispatch.Lanes,
		LaneBuffer: a.cfg.Dispatch.LaneBuffer,
		Logger:     logger,
	})
}

// healthChecks reports store and context store reachability.
func (a *app) healthChecks() map[string]server.Check {
	return map[string]server.Check{
		"store": func(ctx context.Context) error {
			_, err := a.store.Stats(ctx)
			return err
		},
		"sessions": func(ctx context.Context) error {
			_, err := a.contexts.Len(ctx)
			return err
		},
		"queue": func(context.Context) error {
			if d := a.bus.Depth(); d >= busSize {
				return fmt.Errorf("inbound queue full (%d)", d)
			}
			return nil
		},
	}
}

func (a *app) Close() error {
	var errs []string
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// buildLogger creates the process logger from general.logLevel and general.logFile.
// The returned closer is nil when logging to stderr only.
func buildLogger(cfg config.GeneralConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, f), opts)), f, nil
}
