package commands

import (
	"context"
	"strings"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
)

// Retry re-arms a failed distribution: every batch whose retries are
// exhausted gets its counter reset, and the distribution returns to ready so
// the next processing pass picks it up. This is the only path out of an
// exhausted-batch failure, and it is always an explicit operator action.
func (uc UseCase) Retry(ctx context.Context, periodID string) (entities.Distribution, error) {
	logger := application.ResolveLogger(uc.Logger)
	normalizedPeriodID := strings.TrimSpace(periodID)

	distribution, err := uc.Repository.GetDistribution(ctx, normalizedPeriodID)
	if err != nil {
		return entities.Distribution{}, err
	}
	if distribution.Status != entities.DistributionStatusFailed {
		logger.Warn("distribution retry rejected",
			"event", "distribution_retry_rejected",
			"module", "rewards-core/reward-engine",
			"layer", "application",
			"period_id", normalizedPeriodID,
			"status", string(distribution.Status),
		)
		return distribution, domainerrors.ErrInvalidDistributionState
	}

	batches, err := uc.Repository.ListBatches(ctx, distribution.ID)
	if err != nil {
		return entities.Distribution{}, err
	}
	now := uc.now()
	reset := 0
	for _, batch := range batches {
		if batch.Status != entities.BatchStatusFailed || !batch.RetriesExhausted() {
			continue
		}
		batch.RetryCount = 0
		batch.UpdatedAt = now
		if err := uc.Repository.UpdateBatch(ctx, batch); err != nil {
			return entities.Distribution{}, err
		}
		reset++
	}

	distribution.Status = entities.DistributionStatusReady
	distribution.LastError = ""
	distribution.UpdatedAt = now
	if err := uc.Repository.UpdateDistribution(ctx, distribution); err != nil {
		return entities.Distribution{}, err
	}

	logger.Info("distribution retry armed",
		"event", "distribution_retry_armed",
		"module", "rewards-core/reward-engine",
		"layer", "application",
		"period_id", normalizedPeriodID,
		"distribution_id", distribution.ID,
		"reset_batches", reset,
	)
	return distribution, nil
}
