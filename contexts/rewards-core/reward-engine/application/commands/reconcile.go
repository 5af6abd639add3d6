package commands

import (
	"context"
	"strings"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

type ReconcileOutcome string

const (
	ReconcileOutcomeCompleted ReconcileOutcome = "completed"
	ReconcileOutcomeFailed    ReconcileOutcome = "failed"
)

type ReconcileCommand struct {
	PeriodID     string
	BatchNumber  int
	Outcome      ReconcileOutcome
	Receipt      *ports.ExecutionReceipt
	ErrorMessage string
}

// Reconcile resolves a batch left in processing by a crash between the
// persisted broadcast intent and the persisted result. The operator checks
// the chain and reports what actually happened; processing cannot resume for
// the distribution until every such batch is resolved.
func (uc UseCase) Reconcile(ctx context.Context, cmd ReconcileCommand) (entities.Batch, error) {
	logger := application.ResolveLogger(uc.Logger)
	periodID := strings.TrimSpace(cmd.PeriodID)

	distribution, err := uc.Repository.GetDistribution(ctx, periodID)
	if err != nil {
		return entities.Batch{}, err
	}
	batch, err := uc.Repository.GetBatch(ctx, distribution.ID, cmd.BatchNumber)
	if err != nil {
		return entities.Batch{}, err
	}
	if batch.Status != entities.BatchStatusProcessing {
		logger.Warn("batch reconcile rejected",
			"event", "batch_reconcile_rejected",
			"module", "rewards-core/reward-engine",
			"layer", "application",
			"period_id", periodID,
			"batch_number", cmd.BatchNumber,
			"status", string(batch.Status),
		)
		return batch, domainerrors.ErrInvalidDistributionState
	}

	now := uc.now()
	switch cmd.Outcome {
	case ReconcileOutcomeCompleted:
		if cmd.Receipt == nil || strings.TrimSpace(cmd.Receipt.TxID) == "" {
			return batch, domainerrors.ErrInvalidDistributionInput
		}
		batch.Status = entities.BatchStatusCompleted
		batch.LastError = ""
		batch.Execution = &entities.ExecutionRecord{
			TxID:              cmd.Receipt.TxID,
			GasUsed:           cmd.Receipt.GasUsed,
			EffectiveGasPrice: cmd.Receipt.EffectiveGasPrice,
			BlockNumber:       cmd.Receipt.BlockNumber,
			ConfirmedAt:       cmd.Receipt.ConfirmedAt,
		}
		batch.UpdatedAt = now
		if err := uc.Repository.UpdateBatch(ctx, batch); err != nil {
			return entities.Batch{}, err
		}
		if err := uc.Repository.UpdateRecipientsForBatch(ctx, distribution.ID, batch.Number,
			entities.RecipientStatusCompleted, cmd.Receipt.TxID, "", now); err != nil {
			return entities.Batch{}, err
		}
		if err := uc.appendOutbox(ctx, "reward.batch.completed", periodID, map[string]any{
			"period_id":       periodID,
			"distribution_id": distribution.ID,
			"batch_number":    batch.Number,
			"tx_id":           cmd.Receipt.TxID,
			"total_amount":    batch.TotalAmount.String(),
			"reconciled":      true,
		}); err != nil {
			return batch, err
		}
	case ReconcileOutcomeFailed:
		message := strings.TrimSpace(cmd.ErrorMessage)
		if message == "" {
			message = "reconciled as failed"
		}
		batch.Status = entities.BatchStatusFailed
		batch.RetryCount++
		batch.LastError = message
		batch.UpdatedAt = now
		if err := uc.Repository.UpdateBatch(ctx, batch); err != nil {
			return entities.Batch{}, err
		}
		if err := uc.Repository.UpdateRecipientsForBatch(ctx, distribution.ID, batch.Number,
			entities.RecipientStatusFailed, "", message, now); err != nil {
			return entities.Batch{}, err
		}
		if err := uc.appendOutbox(ctx, "reward.batch.failed", periodID, map[string]any{
			"period_id":       periodID,
			"distribution_id": distribution.ID,
			"batch_number":    batch.Number,
			"error":           message,
			"retry_count":     batch.RetryCount,
			"reconciled":      true,
		}); err != nil {
			return batch, err
		}
	default:
		return batch, domainerrors.ErrInvalidDistributionInput
	}

	logger.Info("batch reconciled",
		"event", "batch_reconciled",
		"module", "rewards-core/reward-engine",
		"layer", "application",
		"period_id", periodID,
		"distribution_id", distribution.ID,
		"batch_number", batch.Number,
		"outcome", string(cmd.Outcome),
	)
	return batch, nil
}
