package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

type CalculateCommand struct {
	PeriodID         string
	PreviousPeriodID string
	RewardPool       *big.Int
	MinHolding       *big.Int
	BatchSize        int
	MaxRetries       int
	PolicyExcluded   []string
	Restricted       []string
}

type UseCase struct {
	Repository ports.DistributionRepository
	Snapshots  ports.SnapshotReader
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Outbox     ports.OutboxWriter
	Logger     *slog.Logger
}

// Calculate computes a period's reward distribution from its two completed
// balance snapshots and persists the resulting recipient and batch sets in
// ready state. Recomputing a period that has not completed supersedes the
// previous result set entirely; a completed period is rejected. Snapshot
// lookups happen before any write, so input errors leave no partial state.
func (uc UseCase) Calculate(ctx context.Context, cmd CalculateCommand) (entities.Distribution, error) {
	logger := application.ResolveLogger(uc.Logger)
	periodID := strings.TrimSpace(cmd.PeriodID)
	previousPeriodID := strings.TrimSpace(cmd.PreviousPeriodID)
	if periodID == "" || previousPeriodID == "" || periodID == previousPeriodID {
		return entities.Distribution{}, domainerrors.ErrInvalidDistributionInput
	}
	if cmd.RewardPool == nil || cmd.RewardPool.Sign() <= 0 {
		return entities.Distribution{}, domainerrors.ErrInvalidDistributionInput
	}
	if cmd.BatchSize <= 0 || cmd.MaxRetries <= 0 {
		return entities.Distribution{}, domainerrors.ErrInvalidDistributionInput
	}
	minHolding := cmd.MinHolding
	if minHolding == nil {
		minHolding = big.NewInt(0)
	}
	if minHolding.Sign() < 0 {
		return entities.Distribution{}, domainerrors.ErrInvalidDistributionInput
	}

	existing, err := uc.Repository.GetDistribution(ctx, periodID)
	recompute := false
	switch {
	case err == nil:
		if existing.Status == entities.DistributionStatusCompleted {
			logger.Warn("distribution calculate rejected for completed period",
				"event", "distribution_calculate_already_completed",
				"module", "rewards-core/reward-engine",
				"layer", "application",
				"period_id", periodID,
				"distribution_id", existing.ID,
			)
			return existing, domainerrors.ErrDistributionCompleted
		}
		if existing.LeaseHeldAt(uc.now()) {
			// Superseding recipients and batches under an active processing
			// lease would replace rows mid-execution.
			logger.Warn("distribution calculate rejected while processing lease is held",
				"event", "distribution_calculate_lease_held",
				"module", "rewards-core/reward-engine",
				"layer", "application",
				"period_id", periodID,
				"distribution_id", existing.ID,
				"lease_owner", existing.LeaseOwner,
			)
			return existing, domainerrors.ErrDistributionBusy
		}
		recompute = true
	case errors.Is(err, domainerrors.ErrDistributionNotFound):
	default:
		return entities.Distribution{}, err
	}

	resolver := application.BalanceResolver{Snapshots: uc.Snapshots, Logger: uc.Logger}
	previousBalances, previousSnapshotID, err := resolver.Resolve(ctx, previousPeriodID)
	if err != nil {
		return entities.Distribution{}, err
	}
	currentBalances, currentSnapshotID, err := resolver.Resolve(ctx, periodID)
	if err != nil {
		return entities.Distribution{}, err
	}

	result := application.CalculateRewards(application.CalculationInput{
		Previous:       previousBalances,
		Current:        currentBalances,
		PolicyExcluded: normalizeAddressSet(cmd.PolicyExcluded),
		Restricted:     normalizeAddressSet(cmd.Restricted),
		MinHolding:     minHolding,
		RewardPool:     cmd.RewardPool,
	})
	batches := application.PartitionRecipients(result.Recipients, cmd.BatchSize, cmd.MaxRetries)
	if !application.VerifyPartition(result.Recipients, batches) {
		return entities.Distribution{}, fmt.Errorf("recipient batches are not a perfect partition for period %s", periodID)
	}

	now := uc.now()
	distribution := entities.Distribution{
		PeriodID:           periodID,
		PreviousPeriodID:   previousPeriodID,
		PreviousSnapshotID: previousSnapshotID,
		CurrentSnapshotID:  currentSnapshotID,
		MinHolding:         minHolding,
		RewardPool:         cmd.RewardPool,
		BatchSize:          cmd.BatchSize,
		MaxRetries:         cmd.MaxRetries,
		Stats:              result.Stats,
		Status:             entities.DistributionStatusCalculating,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if recompute {
		distribution.ID = existing.ID
		distribution.CreatedAt = existing.CreatedAt
		if err := uc.Repository.UpdateDistribution(ctx, distribution); err != nil {
			return entities.Distribution{}, err
		}
	} else {
		distributionID, idErr := uc.IDGen.NewID(ctx)
		if idErr != nil {
			return entities.Distribution{}, idErr
		}
		distribution.ID = distributionID
		if err := uc.Repository.CreateDistribution(ctx, distribution); err != nil {
			return entities.Distribution{}, err
		}
	}

	for i := range result.Recipients {
		result.Recipients[i].DistributionID = distribution.ID
		result.Recipients[i].UpdatedAt = now
	}
	for i := range batches {
		batches[i].DistributionID = distribution.ID
		batches[i].UpdatedAt = now
	}
	if err := uc.Repository.ReplaceRecipients(ctx, distribution.ID, result.Recipients); err != nil {
		return entities.Distribution{}, err
	}
	if err := uc.Repository.ReplaceBatches(ctx, distribution.ID, batches); err != nil {
		return entities.Distribution{}, err
	}

	distribution.Status = entities.DistributionStatusReady
	distribution.UpdatedAt = uc.now()
	if err := uc.Repository.UpdateDistribution(ctx, distribution); err != nil {
		return entities.Distribution{}, err
	}

	if err := uc.appendOutbox(ctx, "reward.distribution.calculated", periodID, map[string]any{
		"period_id":             periodID,
		"distribution_id":       distribution.ID,
		"eligible_count":        result.Stats.EligibleCount,
		"batch_count":           len(batches),
		"total_eligible_weight": result.Stats.TotalEligibleWeight.String(),
		"reward_pool":           cmd.RewardPool.String(),
		"recomputed":            recompute,
	}); err != nil {
		return distribution, err
	}

	logger.Info("distribution calculated",
		"event", "distribution_calculated",
		"module", "rewards-core/reward-engine",
		"layer", "application",
		"period_id", periodID,
		"distribution_id", distribution.ID,
		"total_holders", result.Stats.TotalHolders,
		"eligible_count", result.Stats.EligibleCount,
		"batch_count", len(batches),
		"total_eligible_weight", result.Stats.TotalEligibleWeight.String(),
		"recomputed", recompute,
	)
	return distribution, nil
}

func normalizeAddressSet(addresses []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		normalized := strings.ToLower(strings.TrimSpace(address))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}

func (uc UseCase) appendOutbox(
	ctx context.Context,
	eventType string,
	partitionKey string,
	data map[string]any,
) error {
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       uc.now(),
		SourceService:    "reward-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "period_id",
		PartitionKey:     partitionKey,
		Data:             payload,
	})
}

func (uc UseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
