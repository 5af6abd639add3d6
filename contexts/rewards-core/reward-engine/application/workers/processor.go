package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

// Processor drives a distribution's batches through the transfer executor.
// It is a resumable reducer over persisted batch state: every pass walks the
// still-runnable batches in order, and any number of passes converge to the
// same terminal outcome because completed batches are never revisited.
type Processor struct {
	Repository ports.DistributionRepository
	Gate       ports.PriceGate
	Executor   ports.TransferExecutor
	Outbox     ports.OutboxWriter
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Cooldown   time.Duration
	LeaseTTL   time.Duration
	RunID      string
	Logger     *slog.Logger
}

// Summary reports what one processing pass did.
type Summary struct {
	PeriodID         string
	DistributionID   string
	Attempted        int
	Completed        int
	Failed           int
	Exhausted        int
	GatePaused       bool
	FinalStatus      entities.DistributionStatus
	TotalDistributed *big.Int
}

// ProcessDistribution runs one pass over the period's runnable batches.
//
// The pass claims the distribution's processing lease first; losing the
// compare-and-swap means another run is active and yields
// ErrDistributionBusy. A batch found in processing state was broadcast by a
// run that never recorded the result, so the pass refuses to continue until
// an operator reconciles it. Within the loop the price gate is consulted
// before every batch, and an unacceptable price pauses the pass without
// marking anything failed. Batches run strictly sequentially with a cooldown
// between them.
func (p Processor) ProcessDistribution(ctx context.Context, periodID string) (Summary, error) {
	logger := application.ResolveLogger(p.Logger)
	normalizedPeriodID := strings.TrimSpace(periodID)
	summary := Summary{PeriodID: normalizedPeriodID}

	distribution, err := p.Repository.GetDistribution(ctx, normalizedPeriodID)
	if err != nil {
		return summary, err
	}
	summary.DistributionID = distribution.ID
	switch distribution.Status {
	case entities.DistributionStatusReady, entities.DistributionStatusProcessing, entities.DistributionStatusFailed:
	case entities.DistributionStatusCompleted:
		return summary, domainerrors.ErrDistributionCompleted
	default:
		return summary, domainerrors.ErrInvalidDistributionState
	}

	runID := strings.TrimSpace(p.RunID)
	if runID == "" {
		runID, err = p.IDGen.NewID(ctx)
		if err != nil {
			return summary, err
		}
	}
	leaseTTL := p.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}

	distribution, err = p.Repository.ClaimDistribution(ctx, normalizedPeriodID, runID, p.now(), leaseTTL)
	if err != nil {
		return summary, err
	}

	logger.Info("distribution processing pass started",
		"event", "distribution_pass_started",
		"module", "rewards-core/reward-engine",
		"layer", "worker",
		"period_id", normalizedPeriodID,
		"distribution_id", distribution.ID,
		"run_id", runID,
	)

	unreconciled, err := p.Repository.CountProcessingBatches(ctx, distribution.ID)
	if err != nil {
		p.release(ctx, normalizedPeriodID, runID, entities.DistributionStatusProcessing, nil, nil)
		return summary, err
	}
	if unreconciled > 0 {
		p.release(ctx, normalizedPeriodID, runID, entities.DistributionStatusProcessing, nil, nil)
		logger.Warn("distribution pass blocked on unreconciled batches",
			"event", "distribution_pass_unreconciled",
			"module", "rewards-core/reward-engine",
			"layer", "worker",
			"period_id", normalizedPeriodID,
			"distribution_id", distribution.ID,
			"processing_batches", unreconciled,
		)
		return summary, domainerrors.ErrBatchUnreconciled
	}

	runnable, err := p.Repository.ListRunnableBatches(ctx, distribution.ID)
	if err != nil {
		p.release(ctx, normalizedPeriodID, runID, entities.DistributionStatusProcessing, nil, nil)
		return summary, err
	}

	for i, batch := range runnable {
		acceptable, gateErr := p.Gate.Acceptable(ctx)
		if gateErr != nil {
			// Unknown price means the gate is closed, never a run failure.
			logger.Warn("price gate check failed, pausing pass",
				"event", "price_gate_check_failed",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"period_id", normalizedPeriodID,
				"error", gateErr.Error(),
			)
			acceptable = false
		}
		if !acceptable {
			summary.GatePaused = true
			logger.Info("price gate paused distribution pass",
				"event", "distribution_pass_gate_paused",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"period_id", normalizedPeriodID,
				"distribution_id", distribution.ID,
				"next_batch", batch.Number,
			)
			break
		}

		if batch.RetriesExhausted() {
			summary.Exhausted++
			logger.Warn("batch skipped after exhausted retries",
				"event", "batch_retries_exhausted",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"period_id", normalizedPeriodID,
				"batch_number", batch.Number,
				"retry_count", batch.RetryCount,
				"max_retries", batch.MaxRetries,
			)
			continue
		}

		// Persisting the intent before the broadcast is what makes a crash
		// detectable: a processing batch after restart means status-unknown.
		batch.Status = entities.BatchStatusProcessing
		batch.UpdatedAt = p.now()
		if err := p.Repository.UpdateBatch(ctx, batch); err != nil {
			p.release(ctx, normalizedPeriodID, runID, entities.DistributionStatusProcessing, nil, nil)
			return summary, err
		}

		summary.Attempted++
		if err := p.executeBatch(ctx, normalizedPeriodID, distribution.ID, batch, &summary); err != nil {
			p.release(ctx, normalizedPeriodID, runID, entities.DistributionStatusProcessing, nil, nil)
			return summary, err
		}

		if p.Cooldown > 0 && i < len(runnable)-1 {
			select {
			case <-ctx.Done():
				p.release(ctx, normalizedPeriodID, runID, entities.DistributionStatusProcessing, nil, nil)
				return summary, ctx.Err()
			case <-time.After(p.Cooldown):
			}
		}
	}

	return p.finalize(ctx, normalizedPeriodID, runID, distribution, summary)
}

// executeBatch invokes the transfer executor and persists the batch and
// recipient outcome. Execution failures are recorded as data, not returned;
// only store failures propagate.
func (p Processor) executeBatch(
	ctx context.Context,
	periodID string,
	distributionID string,
	batch entities.Batch,
	summary *Summary,
) error {
	logger := application.ResolveLogger(p.Logger)
	transfers := make([]ports.Transfer, 0, len(batch.Members))
	for _, member := range batch.Members {
		transfers = append(transfers, ports.Transfer{
			Address: member.Address,
			Amount:  member.Amount,
		})
	}

	receipt, execErr := p.Executor.ExecuteBatch(ctx, distributionID, batch.Number, batch.RetryCount, transfers)
	now := p.now()
	if errors.Is(execErr, domainerrors.ErrExecutionUnconfirmed) {
		// The broadcast may still confirm; counting a retry here would make
		// the next attempt submit under a fresh idempotency key and risk a
		// double payout. The batch stays processing until an operator
		// reconciles it against the observed chain outcome.
		batch.LastError = strings.TrimSpace(execErr.Error())
		batch.UpdatedAt = now
		if err := p.Repository.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		logger.Warn("batch execution outcome unknown, awaiting reconciliation",
			"event", "batch_execution_unconfirmed",
			"module", "rewards-core/reward-engine",
			"layer", "worker",
			"period_id", periodID,
			"batch_number", batch.Number,
			"retry_count", batch.RetryCount,
			"error", batch.LastError,
		)
		return domainerrors.ErrBatchUnreconciled
	}
	if execErr != nil {
		batch.Status = entities.BatchStatusFailed
		batch.RetryCount++
		batch.LastError = strings.TrimSpace(execErr.Error())
		batch.UpdatedAt = now
		if err := p.Repository.UpdateBatch(ctx, batch); err != nil {
			return err
		}
		if err := p.Repository.UpdateRecipientsForBatch(ctx, distributionID, batch.Number,
			entities.RecipientStatusFailed, "", batch.LastError, now); err != nil {
			return err
		}
		summary.Failed++
		logger.Warn("batch execution failed",
			"event", "batch_execution_failed",
			"module", "rewards-core/reward-engine",
			"layer", "worker",
			"period_id", periodID,
			"batch_number", batch.Number,
			"retry_count", batch.RetryCount,
			"max_retries", batch.MaxRetries,
			"error", batch.LastError,
		)
		return p.appendOutbox(ctx, "reward.batch.failed", periodID, map[string]any{
			"period_id":       periodID,
			"distribution_id": distributionID,
			"batch_number":    batch.Number,
			"error":           batch.LastError,
			"retry_count":     batch.RetryCount,
		})
	}

	batch.Status = entities.BatchStatusCompleted
	batch.LastError = ""
	batch.Execution = &entities.ExecutionRecord{
		TxID:              receipt.TxID,
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		BlockNumber:       receipt.BlockNumber,
		ConfirmedAt:       receipt.ConfirmedAt,
	}
	batch.UpdatedAt = now
	if err := p.Repository.UpdateBatch(ctx, batch); err != nil {
		return err
	}
	if err := p.Repository.UpdateRecipientsForBatch(ctx, distributionID, batch.Number,
		entities.RecipientStatusCompleted, receipt.TxID, "", now); err != nil {
		return err
	}
	summary.Completed++
	logger.Info("batch executed",
		"event", "batch_executed",
		"module", "rewards-core/reward-engine",
		"layer", "worker",
		"period_id", periodID,
		"batch_number", batch.Number,
		"tx_id", receipt.TxID,
		"total_amount", batch.TotalAmount.String(),
		"block_number", receipt.BlockNumber,
	)
	return p.appendOutbox(ctx, "reward.batch.completed", periodID, map[string]any{
		"period_id":       periodID,
		"distribution_id": distributionID,
		"batch_number":    batch.Number,
		"tx_id":           receipt.TxID,
		"total_amount":    batch.TotalAmount.String(),
	})
}

// finalize recounts batch states and derives the distribution's status: all
// done and none failed means completed, all done with failures means failed,
// anything still runnable leaves it in processing for a later pass. The
// distributed total is always re-derived from completed batch sums rather
// than accumulated in memory, so a crashed pass never undercounts.
func (p Processor) finalize(
	ctx context.Context,
	periodID string,
	runID string,
	distribution entities.Distribution,
	summary Summary,
) (Summary, error) {
	logger := application.ResolveLogger(p.Logger)
	counts, err := p.Repository.CountBatchesByStatus(ctx, distribution.ID)
	if err != nil {
		p.release(ctx, periodID, runID, entities.DistributionStatusProcessing, nil, nil)
		return summary, err
	}
	total, err := p.Repository.SumCompletedBatchAmounts(ctx, distribution.ID)
	if err != nil {
		p.release(ctx, periodID, runID, entities.DistributionStatusProcessing, nil, nil)
		return summary, err
	}
	summary.TotalDistributed = total

	open := counts[entities.BatchStatusPending] + counts[entities.BatchStatusProcessing]
	failed := counts[entities.BatchStatusFailed]

	var status entities.DistributionStatus
	var completedAt *time.Time
	switch {
	case open == 0 && failed == 0:
		status = entities.DistributionStatusCompleted
		now := p.now()
		completedAt = &now
	case open == 0:
		status = entities.DistributionStatusFailed
	default:
		status = entities.DistributionStatusProcessing
	}
	summary.FinalStatus = status

	if err := p.Repository.ReleaseDistribution(ctx, periodID, runID, status, completedAt, total, p.now()); err != nil {
		return summary, err
	}

	switch status {
	case entities.DistributionStatusCompleted:
		if err := p.appendOutbox(ctx, "reward.distribution.completed", periodID, map[string]any{
			"period_id":         periodID,
			"distribution_id":   distribution.ID,
			"total_distributed": total.String(),
		}); err != nil {
			return summary, err
		}
	case entities.DistributionStatusFailed:
		if err := p.appendOutbox(ctx, "reward.distribution.failed", periodID, map[string]any{
			"period_id":       periodID,
			"distribution_id": distribution.ID,
			"failed_batches":  failed,
		}); err != nil {
			return summary, err
		}
	}

	logger.Info("distribution processing pass finished",
		"event", "distribution_pass_finished",
		"module", "rewards-core/reward-engine",
		"layer", "worker",
		"period_id", periodID,
		"distribution_id", distribution.ID,
		"run_id", runID,
		"status", string(status),
		"attempted", summary.Attempted,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"exhausted", summary.Exhausted,
		"gate_paused", summary.GatePaused,
		"total_distributed", total.String(),
	)
	return summary, nil
}

// release clears the lease without deriving a terminal status, used on every
// early-exit path. Best effort: the lease also expires on its own.
func (p Processor) release(
	ctx context.Context,
	periodID string,
	runID string,
	status entities.DistributionStatus,
	completedAt *time.Time,
	total *big.Int,
) {
	if err := p.Repository.ReleaseDistribution(ctx, periodID, runID, status, completedAt, total, p.now()); err != nil {
		application.ResolveLogger(p.Logger).Error("distribution lease release failed",
			"event", "distribution_release_failed",
			"module", "rewards-core/reward-engine",
			"layer", "worker",
			"period_id", periodID,
			"run_id", runID,
			"error", err.Error(),
		)
	}
}

func (p Processor) appendOutbox(
	ctx context.Context,
	eventType string,
	partitionKey string,
	data map[string]any,
) error {
	if p.Outbox == nil {
		return nil
	}
	eventID, err := p.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       p.now(),
		SourceService:    "reward-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "period_id",
		PartitionKey:     partitionKey,
		Data:             payload,
	})
}

func (p Processor) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now().UTC()
}
