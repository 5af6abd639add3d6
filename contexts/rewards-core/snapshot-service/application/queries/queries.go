package queries

import (
	"context"
	"log/slog"
	"strings"

	application "jubilee/contexts/rewards-core/snapshot-service/application"
	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	"jubilee/contexts/rewards-core/snapshot-service/ports"
)

type UseCase struct {
	Repository ports.Repository
	Logger     *slog.Logger
}

func (uc UseCase) GetSnapshot(ctx context.Context, periodID string) (entities.Snapshot, error) {
	logger := application.ResolveLogger(uc.Logger)
	normalizedPeriodID := strings.TrimSpace(periodID)
	snapshot, err := uc.Repository.GetSnapshot(ctx, normalizedPeriodID)
	if err != nil {
		logger.Warn("snapshot query get failed",
			"event", "snapshot_query_get_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", normalizedPeriodID,
			"error", err.Error(),
		)
		return entities.Snapshot{}, err
	}
	return snapshot, nil
}
