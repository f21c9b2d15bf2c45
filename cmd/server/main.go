package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-tracker/internal/api"
	"github.com/p-n-ai/pai-tracker/internal/catalog"
	"github.com/p-n-ai/pai-tracker/internal/events"
	"github.com/p-n-ai/pai-tracker/internal/notify"
	"github.com/p-n-ai/pai-tracker/internal/platform/cache"
	"github.com/p-n-ai/pai-tracker/internal/platform/config"
	"github.com/p-n-ai/pai-tracker/internal/platform/database"
	"github.com/p-n-ai/pai-tracker/internal/platform/metrics"
	"github.com/p-n-ai/pai-tracker/internal/realtime"
	"github.com/p-n-ai/pai-tracker/internal/session"
	"github.com/p-n-ai/pai-tracker/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// app is the assembled service.
type app struct {
	handler  http.Handler
	sessions *session.Manager
	writer   *store.Writer
	bus      realtime.Bus
	hub      *realtime.Hub
	closers  []func()
}

// newApp wires every component from cfg. Optional backends are connected
// only when configured.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{hub: realtime.NewHub()}
	var (
		gateway store.Gateway = store.NewMemoryStore()
		logger  events.Logger = events.NopLogger{}
		checks  []api.Check
	)

	if cfg.UsePostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.close()
				return nil, err
			}
		}
		pg, err := store.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		gateway = pg
		logger = events.NewPostgresLogger(db.Pool)
		checks = append(checks, api.Check{Name: "database", Ping: db.HealthCheck})
		slog.Info("using postgres store")
	}

	a.bus = realtime.NewLocalBus()
	if cfg.UseCache() {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		gateway = store.NewCachedGateway(gateway, c, cfg.Cache.TTL)
		bus, err := realtime.NewRedisBus(c.Client, cfg.Realtime.Channel)
		if err != nil {
			a.close()
			return nil, err
		}
		a.bus = bus
		checks = append(checks, api.Check{Name: "cache", Ping: c.HealthCheck})
		slog.Info("using redis cache and realtime bus", "channel", cfg.Realtime.Channel)
	}

	units, err := catalog.New(cfg.CatalogPath)
	if err != nil {
		a.close()
		return nil, err
	}

	notifier := notify.NewGateway()
	notifier.Register("realtime", notify.NewRealtimeChannel(a.bus))
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			a.close()
			return nil, err
		}
		notifier.Register("telegram", tg)
	}

	m := metrics.New()
	a.writer = store.NewWriter(store.WriterOptions{
		Timeout: cfg.Store.WriteTimeout,
		OnError: func(key string, err error) { a.sessions.PersistFailed(key, err) },
	})
	a.sessions, err = session.NewManager(session.Options{
		Gateway:             gateway,
		Persister:           store.NewAsync(gateway, a.writer),
		Catalog:             units,
		Events:              logger,
		Metrics:             m,
		Bus:                 a.bus,
		Notifier:            notifier,
		CompletionDelay:     cfg.Tracker.CompletionDelay,
		QuizCompletionDelay: cfg.Tracker.QuizCompletionDelay,
		DefaultPassingScore: cfg.Tracker.DefaultPassingScore,
		OnClosed:            a.hub.CloseChannel,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.handler = api.NewServer(api.Options{
		Sessions: a.sessions,
		Gateway:  gateway,
		Hub:      a.hub,
		Metrics:  m,
		Checks:   checks,
	}).Handler()
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// drain closes every session and waits for pending writes.
func (a *app) drain(ctx context.Context) error {
	return errors.Join(
		a.sessions.Shutdown(ctx),
		a.writer.Flush(ctx),
		a.bus.Close(),
	)
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting tracker: %w", err)
	}
	defer a.close()

	if err := a.bus.StartForwarder(ctx, a.hub.Broadcast); err != nil {
		return fmt.Errorf("starting realtime forwarder: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), a.drain(shutdownCtx))
	})
	return g.Wait()
}
