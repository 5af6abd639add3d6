package workers

import (
	"context"
	"errors"
	"log/slog"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

// ProcessorJob is the scheduled entrypoint: each cycle it picks up every
// distribution that is ready, or stuck in processing with an expired lease,
// and runs one processing pass on it. Failed distributions are deliberately
// not picked up here; re-entering a failed run is a manual operator action.
type ProcessorJob struct {
	Repository ports.DistributionRepository
	Processor  Processor
	Logger     *slog.Logger
}

func (j ProcessorJob) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)

	candidates, err := j.Repository.ListProcessableDistributions(ctx, j.Processor.now())
	if err != nil {
		logger.Error("processable distribution scan failed",
			"event", "processor_job_scan_failed",
			"module", "rewards-core/reward-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	for _, distribution := range candidates {
		_, err := j.Processor.ProcessDistribution(ctx, distribution.PeriodID)
		switch {
		case err == nil:
		case errors.Is(err, domainerrors.ErrDistributionBusy):
			// Another run claimed it between the scan and the pass.
			continue
		case errors.Is(err, domainerrors.ErrBatchUnreconciled):
			logger.Warn("distribution waiting on operator reconciliation",
				"event", "processor_job_awaiting_reconcile",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"period_id", distribution.PeriodID,
			)
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			logger.Error("distribution processing pass errored",
				"event", "processor_job_pass_failed",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"period_id", distribution.PeriodID,
				"error", err.Error(),
			)
			continue
		}
	}
	return nil
}
