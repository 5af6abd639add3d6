package queries

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

type UseCase struct {
	Repository ports.DistributionRepository
	Logger     *slog.Logger
}

func (uc UseCase) GetDistribution(ctx context.Context, periodID string) (entities.Distribution, error) {
	logger := application.ResolveLogger(uc.Logger)
	normalizedPeriodID := strings.TrimSpace(periodID)
	distribution, err := uc.Repository.GetDistribution(ctx, normalizedPeriodID)
	if err != nil {
		logger.Warn("distribution query get failed",
			"event", "distribution_query_get_failed",
			"module", "rewards-core/reward-engine",
			"layer", "application",
			"period_id", normalizedPeriodID,
			"error", err.Error(),
		)
		return entities.Distribution{}, err
	}
	return distribution, nil
}

func (uc UseCase) ListBatches(ctx context.Context, periodID string) ([]entities.Batch, error) {
	distribution, err := uc.GetDistribution(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return uc.Repository.ListBatches(ctx, distribution.ID)
}

type RecipientPage struct {
	Recipients []entities.Recipient
	Total      int
	Limit      int
	Offset     int
}

func (uc UseCase) ListRecipients(ctx context.Context, periodID string, limit, offset int) (RecipientPage, error) {
	distribution, err := uc.GetDistribution(ctx, periodID)
	if err != nil {
		return RecipientPage{}, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	recipients, err := uc.Repository.ListRecipients(ctx, distribution.ID, limit, offset)
	if err != nil {
		return RecipientPage{}, err
	}
	total, err := uc.Repository.CountRecipients(ctx, distribution.ID)
	if err != nil {
		return RecipientPage{}, err
	}
	return RecipientPage{
		Recipients: recipients,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// ProgressReport summarizes how far a distribution's execution has advanced.
type ProgressReport struct {
	PeriodID         string
	Status           entities.DistributionStatus
	TotalBatches     int
	BatchCounts      map[entities.BatchStatus]int
	TotalDistributed *big.Int
	RewardPool       *big.Int
}

func (uc UseCase) Progress(ctx context.Context, periodID string) (ProgressReport, error) {
	distribution, err := uc.GetDistribution(ctx, periodID)
	if err != nil {
		return ProgressReport{}, err
	}
	counts, err := uc.Repository.CountBatchesByStatus(ctx, distribution.ID)
	if err != nil {
		return ProgressReport{}, err
	}
	distributed, err := uc.Repository.SumCompletedBatchAmounts(ctx, distribution.ID)
	if err != nil {
		return ProgressReport{}, err
	}
	totalBatches := 0
	for _, count := range counts {
		totalBatches += count
	}
	return ProgressReport{
		PeriodID:         distribution.PeriodID,
		Status:           distribution.Status,
		TotalBatches:     totalBatches,
		BatchCounts:      counts,
		TotalDistributed: distributed,
		RewardPool:       distribution.RewardPool,
	}, nil
}
