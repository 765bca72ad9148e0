// Package main is a one-shot command for seeding, refreshing and training.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agri-forecast/crop-price/internal/config"
	"github.com/agri-forecast/crop-price/internal/datastore"
	"github.com/agri-forecast/crop-price/internal/learning"
	"github.com/agri-forecast/crop-price/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	seed := flag.Bool("seed", false, "generate sample data when the price file is missing")
	refresh := flag.Bool("refresh", false, "append today's prices before training")
	train := flag.Bool("train", true, "train when the model is missing or out of date")
	force := flag.Bool("force", false, "train even when the model is current")
	status := flag.Bool("status", false, "print model and data status as JSON and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()
	zl := logger.Zap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := datastore.NewStore(cfg.Data.Path, zl)
	artifacts := learning.NewArtifactStore(cfg.Model.Dir)
	svc := learning.NewService(store, learning.NewTrainer(store, artifacts, zl), artifacts, zl)

	if *status {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(svc.Status()); err != nil {
			logger.Fatalf("Failed to write status: %v", err)
		}
		return
	}

	if *seed {
		seeded, err := store.SeedIfMissing()
		if err != nil {
			logger.Fatalf("Failed to seed price data: %v", err)
		}
		logger.Infof("Seed sample data: %t", seeded)
	}

	if *refresh {
		n, err := svc.UpdateDailyData(ctx)
		if err != nil {
			logger.Fatalf("Failed to refresh price data: %v", err)
		}
		logger.Infof("Appended %d records for today", n)
	}

	if *train || *force {
		trained, err := svc.TrainModelIfNeeded(ctx, *force)
		if err != nil {
			logger.Fatalf("Training failed: %v", err)
		}
		if !trained {
			logger.Info("Model is current, nothing to do. Use -force to retrain.")
			return
		}
		meta, err := artifacts.LoadMetadata()
		if err != nil {
			logger.Fatalf("Failed to read new model metadata: %v", err)
		}
		logger.Infof("Model trained at %s with %d features (generation %s)",
			meta.TrainingDate, meta.FeatureCount, meta.Generation)
	}
}
