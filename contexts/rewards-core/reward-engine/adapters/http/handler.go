package httpadapter

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/application/commands"
	"jubilee/contexts/rewards-core/reward-engine/application/queries"
	"jubilee/contexts/rewards-core/reward-engine/application/workers"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
	httptransport "jubilee/contexts/rewards-core/reward-engine/transport/http"
	"jubilee/internal/platform/metrics"
)

type Handler struct {
	Commands  commands.UseCase
	Queries   queries.UseCase
	Processor workers.Processor
	Logger    *slog.Logger
}

func (h Handler) CalculateHandler(
	ctx context.Context,
	periodID string,
	req httptransport.CalculateDistributionRequest,
) (httptransport.DistributionResponse, error) {
	rewardPool, ok := parseOptionalAmount(req.RewardPool)
	if !ok {
		return httptransport.DistributionResponse{}, domainerrors.ErrInvalidDistributionInput
	}
	minHolding, ok := parseOptionalAmount(req.MinHolding)
	if !ok {
		return httptransport.DistributionResponse{}, domainerrors.ErrInvalidDistributionInput
	}
	distribution, err := h.Commands.Calculate(ctx, commands.CalculateCommand{
		PeriodID:         periodID,
		PreviousPeriodID: req.PreviousPeriodID,
		RewardPool:       rewardPool,
		MinHolding:       minHolding,
		BatchSize:        req.BatchSize,
		MaxRetries:       req.MaxRetries,
		PolicyExcluded:   req.PolicyExcluded,
		Restricted:       req.Restricted,
	})
	if err != nil {
		return httptransport.DistributionResponse{}, err
	}
	return toDistributionResponse(distribution), nil
}

func (h Handler) ProcessHandler(ctx context.Context, periodID string) (httptransport.ProcessDistributionResponse, error) {
	summary, err := h.Processor.ProcessDistribution(ctx, periodID)
	if err != nil {
		return httptransport.ProcessDistributionResponse{}, err
	}
	if summary.GatePaused {
		metrics.PriceGateStopsTotal.Inc()
	}
	metrics.DistributionRunsTotal.WithLabelValues(string(summary.FinalStatus)).Inc()

	resp := httptransport.ProcessDistributionResponse{
		PeriodID:         summary.PeriodID,
		Status:           string(summary.FinalStatus),
		Attempted:        summary.Attempted,
		Completed:        summary.Completed,
		Failed:           summary.Failed,
		Exhausted:        summary.Exhausted,
		GatePaused:       summary.GatePaused,
		TotalDistributed: "0",
	}
	if summary.TotalDistributed != nil {
		resp.TotalDistributed = summary.TotalDistributed.String()
	}
	return resp, nil
}

func (h Handler) RetryHandler(ctx context.Context, periodID string) (httptransport.DistributionResponse, error) {
	distribution, err := h.Commands.Retry(ctx, periodID)
	if err != nil {
		return httptransport.DistributionResponse{}, err
	}
	return toDistributionResponse(distribution), nil
}

func (h Handler) ReconcileHandler(
	ctx context.Context,
	periodID string,
	batchNumber int,
	req httptransport.ReconcileBatchRequest,
) (httptransport.BatchResponse, error) {
	cmd := commands.ReconcileCommand{
		PeriodID:     periodID,
		BatchNumber:  batchNumber,
		Outcome:      commands.ReconcileOutcome(strings.ToLower(strings.TrimSpace(req.Outcome))),
		ErrorMessage: req.Error,
	}
	if cmd.Outcome == commands.ReconcileOutcomeCompleted {
		gasPrice, ok := parseOptionalAmount(req.EffectiveGasPrice)
		if !ok {
			return httptransport.BatchResponse{}, domainerrors.ErrInvalidDistributionInput
		}
		if gasPrice == nil {
			gasPrice = big.NewInt(0)
		}
		confirmedAt := time.Now().UTC()
		if req.ConfirmedAt != "" {
			parsed, err := time.Parse(time.RFC3339, req.ConfirmedAt)
			if err != nil {
				return httptransport.BatchResponse{}, domainerrors.ErrInvalidDistributionInput
			}
			confirmedAt = parsed.UTC()
		}
		cmd.Receipt = &ports.ExecutionReceipt{
			TxID:              req.TxID,
			GasUsed:           req.GasUsed,
			EffectiveGasPrice: gasPrice,
			BlockNumber:       req.BlockNumber,
			ConfirmedAt:       confirmedAt,
		}
	}
	batch, err := h.Commands.Reconcile(ctx, cmd)
	if err != nil {
		return httptransport.BatchResponse{}, err
	}
	return toBatchResponse(batch), nil
}

func (h Handler) GetDistributionHandler(ctx context.Context, periodID string) (httptransport.DistributionResponse, error) {
	distribution, err := h.Queries.GetDistribution(ctx, periodID)
	if err != nil {
		return httptransport.DistributionResponse{}, err
	}
	return toDistributionResponse(distribution), nil
}

func (h Handler) ListBatchesHandler(ctx context.Context, periodID string) ([]httptransport.BatchResponse, error) {
	batches, err := h.Queries.ListBatches(ctx, periodID)
	if err != nil {
		return nil, err
	}
	responses := make([]httptransport.BatchResponse, 0, len(batches))
	for _, batch := range batches {
		responses = append(responses, toBatchResponse(batch))
	}
	return responses, nil
}

func (h Handler) ListRecipientsHandler(
	ctx context.Context,
	periodID string,
	limit, offset int,
) (httptransport.RecipientPageResponse, error) {
	page, err := h.Queries.ListRecipients(ctx, periodID, limit, offset)
	if err != nil {
		return httptransport.RecipientPageResponse{}, err
	}
	recipients := make([]httptransport.RecipientResponse, 0, len(page.Recipients))
	for _, recipient := range page.Recipients {
		recipients = append(recipients, httptransport.RecipientResponse{
			Address:          recipient.Address,
			PreviousBalance:  formatAmount(recipient.PreviousBalance),
			CurrentBalance:   formatAmount(recipient.CurrentBalance),
			EligibleBalance:  formatAmount(recipient.EligibleBalance),
			RewardAmount:     formatAmount(recipient.RewardAmount),
			ShareBasisPoints: recipient.ShareBasisPoints,
			BatchNumber:      recipient.BatchNumber,
			Status:           string(recipient.Status),
			TxID:             recipient.TxID,
			LastError:        recipient.LastError,
		})
	}
	return httptransport.RecipientPageResponse{
		Recipients: recipients,
		Total:      page.Total,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}, nil
}

func (h Handler) ProgressHandler(ctx context.Context, periodID string) (httptransport.ProgressResponse, error) {
	report, err := h.Queries.Progress(ctx, periodID)
	if err != nil {
		return httptransport.ProgressResponse{}, err
	}
	counts := make(map[string]int, len(report.BatchCounts))
	for status, count := range report.BatchCounts {
		counts[string(status)] = count
	}
	return httptransport.ProgressResponse{
		PeriodID:         report.PeriodID,
		Status:           string(report.Status),
		TotalBatches:     report.TotalBatches,
		BatchCounts:      counts,
		TotalDistributed: formatAmount(report.TotalDistributed),
		RewardPool:       formatAmount(report.RewardPool),
	}, nil
}

func toDistributionResponse(distribution entities.Distribution) httptransport.DistributionResponse {
	resp := httptransport.DistributionResponse{
		DistributionID:     distribution.ID,
		PeriodID:           distribution.PeriodID,
		PreviousPeriodID:   distribution.PreviousPeriodID,
		PreviousSnapshotID: distribution.PreviousSnapshotID,
		CurrentSnapshotID:  distribution.CurrentSnapshotID,
		MinHolding:         formatAmount(distribution.MinHolding),
		RewardPool:         formatAmount(distribution.RewardPool),
		BatchSize:          distribution.BatchSize,
		MaxRetries:         distribution.MaxRetries,
		Status:             string(distribution.Status),
		Stats: httptransport.DistributionStatsResponse{
			TotalHolders:        distribution.Stats.TotalHolders,
			EligibleCount:       distribution.Stats.EligibleCount,
			PolicyExcluded:      distribution.Stats.PolicyExcluded,
			RestrictedExcluded:  distribution.Stats.RestrictedExcluded,
			NotHeldPrevious:     distribution.Stats.NotHeldPrevious,
			NotHeldCurrent:      distribution.Stats.NotHeldCurrent,
			BelowMinimum:        distribution.Stats.BelowMinimum,
			ZeroReward:          distribution.Stats.ZeroReward,
			TotalEligibleWeight: formatAmount(distribution.Stats.TotalEligibleWeight),
			TotalDistributed:    formatAmount(distribution.Stats.TotalDistributed),
		},
		LastError: distribution.LastError,
		CreatedAt: distribution.CreatedAt.UTC().Format(time.RFC3339),
	}
	if distribution.CompletedAt != nil {
		resp.CompletedAt = distribution.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toBatchResponse(batch entities.Batch) httptransport.BatchResponse {
	resp := httptransport.BatchResponse{
		BatchNumber:    batch.Number,
		RecipientCount: batch.RecipientCount,
		TotalAmount:    formatAmount(batch.TotalAmount),
		Status:         string(batch.Status),
		RetryCount:     batch.RetryCount,
		MaxRetries:     batch.MaxRetries,
		LastError:      batch.LastError,
	}
	if batch.Execution != nil {
		resp.Execution = &httptransport.ExecutionRecordResponse{
			TxID:              batch.Execution.TxID,
			GasUsed:           batch.Execution.GasUsed,
			EffectiveGasPrice: formatAmount(batch.Execution.EffectiveGasPrice),
			BlockNumber:       batch.Execution.BlockNumber,
			ConfirmedAt:       batch.Execution.ConfirmedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

// parseOptionalAmount accepts an empty string as nil; malformed or negative
// values report not-ok.
func parseOptionalAmount(value string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, true
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, false
	}
	return parsed, true
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
