package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/lock"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/notify"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/pipeline"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/scoring"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/services"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/sources"
)

// app holds the wired process dependencies shared by every command.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.Database
	store    repository.Provider
	registry services.RegistryService
	runner   *pipeline.Runner
	closers  []func() error
}

// loadConfig reads the optional dotenv file and then the environment.
func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return config.Load()
}

// connect opens the database only; migrate needs nothing else.
func connect(ctx context.Context, envFile string) (*app, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Server.Env)
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", err, logger.Fields{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
		return nil, err
	}
	log.Info("Database connection established", logger.Fields{
		"host":     cfg.Database.Host,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	a := &app{cfg: cfg, log: log, db: db}
	a.closers = append(a.closers, func() error { db.Close(); return nil })
	return a, nil
}

// bootstrap wires the full pipeline on top of connect.
func bootstrap(ctx context.Context, envFile string) (*app, error) {
	a, err := connect(ctx, envFile)
	if err != nil {
		return nil, err
	}
	cfg, log := a.cfg, a.log

	client := socrata.New(socrata.Options{
		BaseURL:    cfg.Sources.BaseURL,
		AppToken:   cfg.Sources.AppToken,
		Timeout:    cfg.Pipeline.CallTimeout,
		CallDelay:  cfg.Pipeline.CallDelay,
		MaxRetries: cfg.Sources.MaxRetries,
	}, log)

	a.store = repository.NewProvider(a.db)
	a.registry = services.NewRegistryService(a.store, log)

	deps := pipeline.Deps{
		Store:      a.store,
		Registry:   a.registry,
		Enrichment: services.NewEnrichmentService(a.store, log),
		Extractor:  services.NewExtractorService(a.store, sources.NewACRIS(client, cfg.Sources), log),
		Scorer:     services.NewScorerService(a.store, scoring.WeightsFromConfig(cfg.Scoring), log),
		Connectors: sources.NewConnectors(client, cfg.Sources, log),
	}

	if cfg.Redis.Addr != "" {
		rdb := lock.NewRedisClient(cfg.Redis)
		a.closers = append(a.closers, rdb.Close)
		deps.Locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.Info("Run lock enabled", logger.Fields{"addr": cfg.Redis.Addr, "ttl": cfg.Redis.LockTTL.String()})
	}

	if cfg.AMQP.URL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.AMQP, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		deps.Notifier = pub
		log.Info("Run summaries will be published", logger.Fields{"exchange": cfg.AMQP.Exchange})
	}

	a.runner = pipeline.NewRunner(deps, cfg.Pipeline, log)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to close resource", logger.Fields{"error": err.Error()})
		}
	}
}
