package application

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"jubilee/contexts/rewards-core/reward-engine/ports"
)

// BalanceResolver loads the materialized holder balances for a period.
// It is a pure read: a period whose snapshot is missing or not completed
// fails fast without touching any reward state.
type BalanceResolver struct {
	Snapshots ports.SnapshotReader
	Logger    *slog.Logger
}

// Resolve returns the period's address to balance map plus the snapshot id it
// was read from. Addresses absent from the map are treated as zero-balance by
// the calculator's union semantics.
func (r BalanceResolver) Resolve(ctx context.Context, periodID string) (map[string]*big.Int, string, error) {
	logger := ResolveLogger(r.Logger)
	normalizedPeriodID := strings.TrimSpace(periodID)

	snapshotID, err := r.Snapshots.GetCompletedSnapshot(ctx, normalizedPeriodID)
	if err != nil {
		logger.Warn("balance resolve rejected",
			"event", "balance_resolve_rejected",
			"module", "rewards-core/reward-engine",
			"layer", "application",
			"period_id", normalizedPeriodID,
			"error", err.Error(),
		)
		return nil, "", err
	}

	balances, err := r.Snapshots.HolderBalances(ctx, snapshotID)
	if err != nil {
		logger.Error("balance resolve load failed",
			"event", "balance_resolve_load_failed",
			"module", "rewards-core/reward-engine",
			"layer", "application",
			"period_id", normalizedPeriodID,
			"snapshot_id", snapshotID,
			"error", err.Error(),
		)
		return nil, "", err
	}
	return balances, snapshotID, nil
}
