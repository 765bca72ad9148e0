// Package main is the entry point of the crop price prediction server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/alert"
	"github.com/agri-forecast/crop-price/internal/api"
	"github.com/agri-forecast/crop-price/internal/cache"
	"github.com/agri-forecast/crop-price/internal/config"
	"github.com/agri-forecast/crop-price/internal/datastore"
	"github.com/agri-forecast/crop-price/internal/dbwriter"
	"github.com/agri-forecast/crop-price/internal/http/handler"
	"github.com/agri-forecast/crop-price/internal/learning"
	"github.com/agri-forecast/crop-price/internal/metrics"
	"github.com/agri-forecast/crop-price/internal/scheduler"
	"github.com/agri-forecast/crop-price/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()
	zl := logger.Zap()
	logger.Info("Crop price server starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloadOnHangup(ctx, *configPath, hup)

	recorder := metrics.NewRecorder()

	// --- Price archive (Optional) ---
	var storeOpts []datastore.Option
	if cfg.Database.Enabled {
		archive, closeArchive, err := openArchive(ctx, cfg, zl)
		if err != nil {
			logger.Fatalf("Failed to initialize price archive: %v", err)
		}
		defer closeArchive()
		storeOpts = append(storeOpts, datastore.WithSink(archive))
		logger.Info("Price archive initialized successfully.")
	}

	// --- Data store ---
	store := datastore.NewStore(cfg.Data.Path, zl, storeOpts...)
	if cfg.Data.SeedIfMissing {
		seeded, err := store.SeedIfMissing()
		if err != nil {
			logger.Fatalf("Failed to seed price data: %v", err)
		}
		if seeded {
			logger.Infof("Seeded sample price data at %s", store.Path())
		}
	}

	// --- Prediction cache ---
	priceCache, closeCache := openCache(ctx, cfg, zl)
	defer closeCache()

	// --- Learning service ---
	artifacts := learning.NewArtifactStore(cfg.Model.Dir)
	trainer := learning.NewTrainer(store, artifacts, zl)
	events := learning.NewInMemoryEventStream(64)
	svc := learning.NewService(store, trainer, artifacts, zl,
		learning.WithCache(priceCache),
		learning.WithEvents(events),
		learning.WithRecorder(recorder),
		learning.WithHistoryWindow(cfg.Data.HistoryWindowDays),
	)

	// --- Alerts ---
	notifier, err := alert.New(cfg.Alert, zl)
	if err != nil {
		logger.Warnf("Training alerts disabled: %v", err)
		notifier = alert.NewNoOpNotifier()
	}
	defer notifier.Close()
	go func() {
		if err := alert.RelayTrainingFailures(ctx, events, notifier, zl); err != nil {
			logger.Errorf("Training alert relay stopped: %v", err)
		}
	}()

	if trained, err := svc.TrainModelIfNeeded(ctx, false); err != nil {
		logger.Warnf("Initial training failed, predictions will retry: %v", err)
	} else if trained {
		logger.Info("Initial model trained.")
	}

	// --- Scheduler ---
	if cfg.Scheduler.Enabled {
		hour, minute, _ := cfg.Scheduler.DailyTime()
		sched := scheduler.New(svc, scheduler.Config{
			DailyHour:     hour,
			DailyMinute:   minute,
			CheckInterval: time.Duration(cfg.Scheduler.CheckIntervalMinutes) * time.Minute,
			PollInterval:  time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second,
		}, zl, nil)
		go sched.Start(ctx)
		daily, check := sched.NextRuns()
		logger.Infof("Scheduler started: next daily update %s, next staleness check %s",
			daily.Format(time.RFC3339), check.Format(time.RFC3339))
	}

	// --- Ops server (health, readiness, training events) ---
	opsSrv := &http.Server{
		Addr:              cfg.Server.OpsAddr,
		Handler:           handler.NewOpsMux(svc, handler.NewEventsHandler(events, zl)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Ops server starting on %s", cfg.Server.OpsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Ops server failed: %v", err)
			stop()
		}
	}()

	// --- API server ---
	app := api.NewApp(api.NewHandler(svc, zl, nil), recorder.Handler())
	go func() {
		logger.Infof("API server starting on %s", cfg.Server.Addr)
		if err := app.Listen(cfg.Server.Addr); err != nil {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping servers...")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warnf("API server shutdown: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Ops server shutdown: %v", err)
	}
	logger.Info("Crop price server shut down gracefully.")
}

// reloadOnHangup re-reads the configuration for every value received on hup
// and applies the log level. Other settings take effect on restart.
func reloadOnHangup(ctx context.Context, configPath string, hup <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := config.ReloadConfig(configPath); err != nil {
				logger.Errorf("Failed to reload configuration from %s: %v", configPath, err)
				continue
			}
			cfg := config.GetConfig()
			logger.SetGlobalLogLevel(cfg.LogLevel)
			logger.Infof("Reloaded configuration from %s, log level %s", configPath, cfg.LogLevel)
		}
	}
}

// openArchive migrates the archive schema and starts the buffered writer.
func openArchive(ctx context.Context, cfg *config.Config, zl *zap.Logger) (dbwriter.DBWriter, func(), error) {
	if err := dbwriter.Migrate(cfg.Database.URL(), cfg.Database.MigrationsDir, zl); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	w := dbwriter.NewTimescaleWriter(pool, cfg.DBWriter, zl)
	return w, w.Close, nil
}

// openCache prefers Redis and falls back to an in-process cache.
func openCache(ctx context.Context, cfg *config.Config, zl *zap.Logger) (learning.PriceCache, func()) {
	ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.DB, ttl, zl)
		if err == nil {
			logger.Infof("Prediction cache: redis at %s", cfg.Redis.Addr)
			return rc, func() {
				if err := rc.Close(); err != nil {
					logger.Warnf("Closing redis cache: %v", err)
				}
			}
		}
		logger.Warnf("Redis unavailable, using in-memory prediction cache: %v", err)
	}
	return cache.NewMemoryCache(ttl), func() {}
}
