package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	rewardengine "jubilee/contexts/rewards-core/reward-engine"
	rewardchain "jubilee/contexts/rewards-core/reward-engine/adapters/chain"
	rewardpostgres "jubilee/contexts/rewards-core/reward-engine/adapters/postgres"
	rewardworkers "jubilee/contexts/rewards-core/reward-engine/application/workers"
	snapshotservice "jubilee/contexts/rewards-core/snapshot-service"
	"jubilee/contexts/rewards-core/snapshot-service/adapters/holderindex"
	snapshotpostgres "jubilee/contexts/rewards-core/snapshot-service/adapters/postgres"
	snapshotworkers "jubilee/contexts/rewards-core/snapshot-service/application/workers"
	"jubilee/internal/platform/config"
	"jubilee/internal/platform/db"
	"jubilee/internal/platform/httpserver"
	"jubilee/internal/platform/logging"
	"jubilee/internal/platform/messaging"

	"github.com/shopspring/decimal"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	snapshotRelay snapshotworkers.OutboxRelay
	rewardRelay   rewardworkers.OutboxRelay
	processorJob  rewardworkers.ProcessorJob
	pollInterval  time.Duration
	logger        *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.ServiceName, "api", cfg.LogVerbose)

	pg, snapshots, rewards, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(snapshots, rewards, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.ServiceName, "worker", cfg.LogVerbose)

	pg, _, rewards, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	bus := messaging.NewBus(logger)
	snapshotRepo := snapshotpostgres.NewRepository(pg.DB, logger)
	rewardRepo := rewardpostgres.NewRepository(pg.DB, logger)

	return &WorkerApp{
		postgres: pg,
		snapshotRelay: snapshotworkers.OutboxRelay{
			Outbox:    snapshotRepo,
			Publisher: bus,
			Clock:     snapshotpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		rewardRelay: rewardworkers.OutboxRelay{
			Outbox:    rewardRepo,
			Publisher: bus,
			Clock:     rewardpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		processorJob: rewards.ProcessorJob,
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}, nil
}

// buildModules wires both service modules on the shared postgres handle.
func buildModules(cfg config.Config, logger *slog.Logger) (*db.Postgres, snapshotservice.Module, rewardengine.Module, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, snapshotservice.Module{}, rewardengine.Module{}, errors.New("POSTGRES_DSN is required")
	}
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, snapshotservice.Module{}, rewardengine.Module{}, err
	}

	snapshotRepo := snapshotpostgres.NewRepository(pg.DB, logger)
	holderClient := holderindex.NewClient(
		cfg.HolderIndexBaseURL,
		cfg.HolderIndexAPIKey,
		cfg.HolderIndexRPS,
		logger,
	)
	snapshots := snapshotservice.NewModule(snapshotservice.Dependencies{
		Repository: snapshotRepo,
		Holders:    holderClient,
		Clock:      snapshotpostgres.SystemClock{},
		IDGen:      snapshotpostgres.UUIDGenerator{},
		Outbox:     snapshotRepo,
		PageSize:   cfg.HolderIndexPageSize,
		Logger:     logger,
	})

	maxFeePrice, err := decimal.NewFromString(strings.TrimSpace(cfg.MaxFeePriceGwei))
	if err != nil {
		_ = pg.Close()
		return nil, snapshotservice.Module{}, rewardengine.Module{}, errors.New("MAX_FEE_PRICE_GWEI must be a decimal number")
	}

	rewardRepo := rewardpostgres.NewRepository(pg.DB, logger)
	rewards := rewardengine.NewModule(rewardengine.Dependencies{
		Repository: rewardRepo,
		Snapshots:  rewardpostgres.NewSnapshotReader(pg.DB, logger),
		Gate: &rewardchain.CachedPriceGate{
			Oracle:      rewardchain.NewFeeOracle(cfg.FeeOracleRPCURL),
			MaxFeePrice: maxFeePrice,
			TTL:         cfg.PriceCacheTTL,
			Logger:      logger,
		},
		Executor: rewardchain.NewTreasuryClient(
			cfg.TreasuryBaseURL,
			cfg.TreasuryAPIKey,
			cfg.TreasuryConfirmWait,
			logger,
		),
		Clock:    rewardpostgres.SystemClock{},
		IDGen:    rewardpostgres.UUIDGenerator{},
		Outbox:   rewardRepo,
		Cooldown: cfg.BatchCooldown,
		LeaseTTL: cfg.ProcessingLeaseTTL,
		Logger:   logger,
	})

	return pg, snapshots, rewards, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	pollInterval := w.pollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", pollInterval.String(),
	)

	for {
		// Relay and processing errors are logged inside the workers; a cycle
		// error never stops the loop, only context cancellation does.
		_ = w.snapshotRelay.RunOnce(ctx)
		_ = w.rewardRelay.RunOnce(ctx)
		_ = w.processorJob.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
