package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"

	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"

	"gorm.io/gorm"
)

// SnapshotReader is a read-only projection over the snapshot service's
// tables. The reward engine never writes them; ownership stays with the
// snapshot service.
type SnapshotReader struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSnapshotReader(db *gorm.DB, logger *slog.Logger) *SnapshotReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotReader{
		db:     db,
		logger: logger,
	}
}

type snapshotProjection struct {
	ID     string `gorm:"column:id"`
	Status string `gorm:"column:status"`
}

func (snapshotProjection) TableName() string {
	return "snapshots"
}

type holderBalanceProjection struct {
	Address string `gorm:"column:address"`
	Balance string `gorm:"column:balance"`
}

func (holderBalanceProjection) TableName() string {
	return "snapshot_holder_balances"
}

func (r *SnapshotReader) GetCompletedSnapshot(ctx context.Context, periodID string) (string, error) {
	var row snapshotProjection
	err := r.db.WithContext(ctx).
		Select("id, status").
		Where("period_id = ?", strings.TrimSpace(periodID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domainerrors.ErrSnapshotNotFound
		}
		r.logger.Error("snapshot projection lookup failed",
			"event", "snapshot_projection_lookup_failed",
			"module", "rewards-core/reward-engine",
			"layer", "adapter",
			"period_id", strings.TrimSpace(periodID),
			"error", err.Error(),
		)
		return "", err
	}
	if row.Status != "completed" {
		return "", domainerrors.ErrSnapshotNotCompleted
	}
	return row.ID, nil
}

func (r *SnapshotReader) HolderBalances(ctx context.Context, snapshotID string) (map[string]*big.Int, error) {
	var rows []holderBalanceProjection
	err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", strings.TrimSpace(snapshotID)).
		Find(&rows).
		Error
	if err != nil {
		r.logger.Error("snapshot projection balances failed",
			"event", "snapshot_projection_balances_failed",
			"module", "rewards-core/reward-engine",
			"layer", "adapter",
			"snapshot_id", strings.TrimSpace(snapshotID),
			"error", err.Error(),
		)
		return nil, err
	}
	balances := make(map[string]*big.Int, len(rows))
	for _, row := range rows {
		balance, err := parseAmount(row.Balance)
		if err != nil {
			return nil, err
		}
		balances[row.Address] = balance
	}
	return balances, nil
}

var _ ports.SnapshotReader = (*SnapshotReader)(nil)
