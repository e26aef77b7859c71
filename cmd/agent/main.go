package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driftq/internal/api"
	"driftq/internal/config"
	"driftq/internal/events"
	"driftq/internal/logging"
	"driftq/internal/metrics"
	"driftq/internal/push"
	"driftq/internal/queue"
	"driftq/internal/store"
	"driftq/internal/syncer"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	metrics.Register()

	st := openStore(cfg, logger)
	defer st.Close()

	installID := uuid.NewString()
	bus := events.NewEventBus()

	monitor := syncer.NewMonitor(
		cfg.Remote.BaseURL+cfg.Remote.HealthPath,
		cfg.Remote.ProbeInterval(),
		cfg.Remote.Timeout(),
		bus,
		logger,
	)

	deliverer := syncer.NewHTTPDeliverer(cfg.Remote.BaseURL, installID, cfg.Remote.Timeout(), logger)
	coord := syncer.NewCoordinator(
		st,
		deliverer,
		monitor,
		bus,
		cfg.Queue.BatchSize,
		cfg.Queue.RetrySpacing(),
		cfg.Queue.SyncTag,
		logger,
	)

	q := queue.New(st, coord, monitor, bus, logger)
	if err := q.Init(context.Background()); err != nil {
		logger.Error().Err(err).Msg("seed queue depth")
	}

	pushManager := initPush(cfg, installID, logger)

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	httpServer := api.NewHTTPServer(*cfg, q, pushManager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pushManager.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("push manager initial probe failed")
	}

	var wg conc.WaitGroup
	wg.Go(func() { monitor.Run(ctx) })
	wg.Go(func() { coord.Run(ctx) })
	if redisClient != nil {
		wake := syncer.NewWake(redisClient, cfg.Redis.WakeChannel, coord, logger)
		wg.Go(func() { wake.Run(ctx) })
	}
	if cfg.API.Enabled {
		wg.Go(func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("control API server stopped")
			}
		})
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("control API shutdown")
	}

	wg.Wait()
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, closer, nil
}

// openStore never fails the agent: if the database cannot be opened the
// store runs degraded and enqueue callers get soft failures.
func openStore(cfg *config.Config, logger *zerolog.Logger) *store.Store {
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Database.Path).Msg("durable store unavailable, running degraded")
		return store.Disabled(logger)
	}
	return st
}

func initPush(cfg *config.Config, installID string, logger *zerolog.Logger) *push.Manager {
	capability := push.NewUnsupportedCapability()
	registrar := push.NewHTTPRegistrar(cfg.Remote.BaseURL, installID, cfg.Remote.Timeout(), logger)

	vapidKey := ""
	if cfg.Push.Enabled {
		vapidKey = cfg.Push.VAPIDPublicKey
	}

	return push.NewManager(capability, registrar, vapidKey, cfg.Push.NotifyIcon, cfg.Push.NotifyBadge, logger)
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, wake channel disabled")
		client.Close()
		return nil
	}

	return client
}
