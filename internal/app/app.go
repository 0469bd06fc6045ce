package app

import (
	"context"
	"fmt"
	"time"

	"ultraseeker/internal/api"
	"ultraseeker/internal/config"
	"ultraseeker/internal/engine"
	"ultraseeker/internal/health"
	"ultraseeker/internal/history"
	"ultraseeker/internal/ingest"
	"ultraseeker/internal/logging"
	"ultraseeker/internal/model"
	"ultraseeker/internal/storage"
)

const Version = "1.0.0"

// Run assembles the full pipeline from a config file and blocks until the
// context is cancelled: ingest transports feed the raw input channel, the
// engine assesses on its cadence, and the API serves the results.
func Run(ctx context.Context, configPath string) error {
	manager, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting", "version", Version, "config", manager.Path())

	healthStore := health.NewStore(cfg.Health.StoreLimit)
	historyStore := history.NewStore(cfg.History.StoreLimit)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
	}

	eng := engine.NewEngine(cfg, logger, nil, healthStore, historyStore, store)

	in := make(chan model.RawInput, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, in)

	parser := ingest.NewParser()
	if cfg.Ingest.REST.Enabled {
		ingest.StartREST(ctx, manager, in, logger)
	}
	if cfg.Ingest.Kafka.Enabled {
		ingest.StartKafka(ctx, manager, parser, in, logger)
	}
	if cfg.Ingest.TCPStream.Enabled {
		ingest.StartTCPStream(ctx, manager, parser, in, logger)
	}
	if cfg.Ingest.FileTail.Enabled {
		ingest.StartFileTail(ctx, manager, parser, in, logger)
	}

	api.Start(ctx, manager, healthStore, historyStore, eng, logger, Version)

	go manager.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "sensitivity", next.Engine.Sensitivity)
		eng.UpdateConfig(next)
		eng.SetSensitivity(next.Engine.Sensitivity)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
