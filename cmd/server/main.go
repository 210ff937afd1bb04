package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/aggregate"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/config"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/database"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/hub"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/logging"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/registry"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/server"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/titlecache"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/youtube"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

// setupTitleStore picks Redis when a URL is configured, otherwise an
// in-process cache. Returns the store and an optional closer.
func setupTitleStore(cfg *config.Config, clock clockwork.Clock) (titlecache.Store, func()) {
	if cfg.RedisURL == "" {
		return titlecache.NewMemoryStore(titlecache.TTL, clock), func() {}
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		os.Exit(1)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	return titlecache.NewRedisStore(client, titlecache.TTL), func() { _ = client.Close() }
}

// maybeSeed creates a starter event on an empty catalogue so a fresh
// deployment has something to look at.
func maybeSeed(ctx context.Context, cfg *config.Config, store domain.EventStore, clock clockwork.Clock) {
	if !cfg.SeedOnStart {
		return
	}
	events, err := store.ListActive(ctx)
	if err != nil || len(events) > 0 {
		return
	}
	ev := domain.Event{
		ID:           "demo",
		Name:         "Demo Event",
		PollInterval: cfg.DefaultPollInterval,
		Paused:       true,
		CreatedAt:    clock.Now(),
	}
	if err := store.InsertEvent(ctx, ev); err != nil {
		slog.Warn("Seeding demo event failed", "error", err)
		return
	}
	slog.Info("Seeded demo event", "event_id", ev.ID)
}

func runGracefulShutdown(srv *server.Server, reg *registry.Registry, h *hub.Hub, cancelPollers context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		reg.Stop()
		cancelPollers()
		h.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	sampleRepo := database.NewSampleRepo(pool)
	eventRepo := database.NewEventRepo(pool)

	titleStore, closeTitleStore := setupTitleStore(cfg, clock)
	defer closeTitleStore()

	ytClient := youtube.NewClient(cfg.YouTubeAPIKey)
	titles := titlecache.NewResolver(ytClient, titleStore)

	engine := aggregate.NewEngine(ytClient, sampleRepo, clock)

	// The registry and the hub reference each other: the hub pulls the
	// current snapshot when a subscriber joins, the registry pushes one
	// after every cycle.
	pollerCtx, cancelPollers := context.WithCancel(context.Background())
	var reg *registry.Registry
	h := hub.New(domain.SnapshotSourceFunc(func(eventID string) (*domain.Snapshot, error) {
		return reg.Snapshot(eventID)
	}), clock)
	reg = registry.New(pollerCtx, eventRepo, engine, h, clock, cfg.DefaultPollInterval)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	maybeSeed(bootCtx, cfg, eventRepo, clock)
	if err := reg.Bootstrap(bootCtx); err != nil {
		cancelBoot()
		slog.Error("Failed to restore event catalogue", "error", err)
		os.Exit(1)
	}
	cancelBoot()

	srv := server.NewServer(cfg, reg, h, sampleRepo, titles, clock)

	done := runGracefulShutdown(srv, reg, h, cancelPollers)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
