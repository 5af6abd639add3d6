package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "jubilee/contexts/rewards-core/snapshot-service/application"
	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/snapshot-service/domain/errors"
	"jubilee/contexts/rewards-core/snapshot-service/ports"
)

const defaultPageSize = 1000

type CollectCommand struct {
	PeriodID     string
	TokenAddress string
}

type UseCase struct {
	Repository ports.Repository
	Holders    ports.HolderIndex
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Outbox     ports.OutboxWriter
	PageSize   int
	Logger     *slog.Logger
}

// Collect walks the holder index page by page and materializes the period's
// balance snapshot. The cursor is persisted after every page, so a collection
// interrupted by a crash or index outage resumes from the last stored page.
// Balances are upserted, which makes replaying an already stored page safe.
func (uc UseCase) Collect(ctx context.Context, cmd CollectCommand) (entities.Snapshot, error) {
	logger := application.ResolveLogger(uc.Logger)
	periodID := strings.TrimSpace(cmd.PeriodID)
	token := strings.ToLower(strings.TrimSpace(cmd.TokenAddress))
	if periodID == "" || token == "" {
		logger.Warn("snapshot collect invalid input",
			"event", "snapshot_collect_invalid_input",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", periodID,
			"token_address", token,
		)
		return entities.Snapshot{}, domainerrors.ErrInvalidSnapshotInput
	}

	now := uc.now()
	snapshot, err := uc.Repository.GetSnapshot(ctx, periodID)
	resumed := false
	switch {
	case err == nil:
		if snapshot.Status == entities.SnapshotStatusCompleted {
			logger.Warn("snapshot collect rejected for completed period",
				"event", "snapshot_collect_already_completed",
				"module", "rewards-core/snapshot-service",
				"layer", "application",
				"period_id", periodID,
				"snapshot_id", snapshot.ID,
			)
			return snapshot, domainerrors.ErrSnapshotCompleted
		}
		if snapshot.TokenAddress != token {
			logger.Warn("snapshot collect token mismatch",
				"event", "snapshot_collect_token_mismatch",
				"module", "rewards-core/snapshot-service",
				"layer", "application",
				"period_id", periodID,
				"snapshot_token", snapshot.TokenAddress,
				"requested_token", token,
			)
			return entities.Snapshot{}, domainerrors.ErrTokenMismatch
		}
		resumed = true
		snapshot.Status = entities.SnapshotStatusCollecting
		snapshot.LastError = ""
		snapshot.UpdatedAt = now
		if err := uc.Repository.UpdateSnapshot(ctx, snapshot); err != nil {
			logger.Error("snapshot collect resume state update failed",
				"event", "snapshot_collect_resume_update_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "application",
				"period_id", periodID,
				"snapshot_id", snapshot.ID,
				"error", err.Error(),
			)
			return entities.Snapshot{}, err
		}
	case errors.Is(err, domainerrors.ErrSnapshotNotFound):
		snapshotID, idErr := uc.IDGen.NewID(ctx)
		if idErr != nil {
			logger.Error("snapshot collect id generation failed",
				"event", "snapshot_collect_id_generation_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "application",
				"period_id", periodID,
				"error", idErr.Error(),
			)
			return entities.Snapshot{}, idErr
		}
		snapshot = entities.Snapshot{
			ID:           snapshotID,
			PeriodID:     periodID,
			TokenAddress: token,
			Status:       entities.SnapshotStatusCollecting,
			TotalBalance: big.NewInt(0),
			StartedAt:    now,
			UpdatedAt:    now,
		}
		if err := uc.Repository.CreateSnapshot(ctx, snapshot); err != nil {
			logger.Error("snapshot collect create failed",
				"event", "snapshot_collect_create_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "application",
				"period_id", periodID,
				"error", err.Error(),
			)
			return entities.Snapshot{}, err
		}
	default:
		logger.Error("snapshot collect lookup failed",
			"event", "snapshot_collect_lookup_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", periodID,
			"error", err.Error(),
		)
		return entities.Snapshot{}, err
	}

	logger.Info("snapshot collection started",
		"event", "snapshot_collection_started",
		"module", "rewards-core/snapshot-service",
		"layer", "application",
		"period_id", periodID,
		"snapshot_id", snapshot.ID,
		"token_address", token,
		"resumed", resumed,
		"cursor", snapshot.Cursor,
	)

	pageSize := uc.pageSize()
	for {
		page, err := uc.Holders.FetchHolders(ctx, token, snapshot.Cursor, pageSize)
		if err != nil {
			return uc.markFailed(ctx, snapshot, err)
		}

		balances := make([]entities.HolderBalance, 0, len(page.Holders))
		for _, holder := range page.Holders {
			address := strings.ToLower(strings.TrimSpace(holder.Address))
			if address == "" || holder.Balance == nil || holder.Balance.Sign() < 0 {
				logger.Warn("snapshot collect skipping malformed holder row",
					"event", "snapshot_collect_holder_row_skipped",
					"module", "rewards-core/snapshot-service",
					"layer", "application",
					"period_id", periodID,
					"address", address,
				)
				continue
			}
			balances = append(balances, entities.HolderBalance{
				SnapshotID: snapshot.ID,
				Address:    address,
				Balance:    holder.Balance,
			})
		}
		if err := uc.Repository.UpsertHolderBalances(ctx, snapshot.ID, balances); err != nil {
			return uc.markFailed(ctx, snapshot, err)
		}

		count, err := uc.Repository.CountHolderBalances(ctx, snapshot.ID)
		if err != nil {
			return uc.markFailed(ctx, snapshot, err)
		}
		snapshot.HolderCount = count
		snapshot.Cursor = page.NextCursor
		snapshot.UpdatedAt = uc.now()
		if err := uc.Repository.UpdateSnapshot(ctx, snapshot); err != nil {
			logger.Error("snapshot collect cursor update failed",
				"event", "snapshot_collect_cursor_update_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "application",
				"period_id", periodID,
				"snapshot_id", snapshot.ID,
				"error", err.Error(),
			)
			return snapshot, err
		}
		logger.Debug("snapshot page stored",
			"event", "snapshot_page_stored",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", periodID,
			"page_size", len(page.Holders),
			"holder_count", snapshot.HolderCount,
			"has_more", page.HasMore,
		)
		if !page.HasMore {
			break
		}
	}

	stored, err := uc.Repository.HolderBalances(ctx, snapshot.ID)
	if err != nil {
		return uc.markFailed(ctx, snapshot, err)
	}
	total := big.NewInt(0)
	for _, balance := range stored {
		total.Add(total, balance)
	}

	completedAt := uc.now()
	snapshot.Status = entities.SnapshotStatusCompleted
	snapshot.Cursor = ""
	snapshot.HolderCount = len(stored)
	snapshot.TotalBalance = total
	snapshot.CompletedAt = &completedAt
	snapshot.UpdatedAt = completedAt
	if err := uc.Repository.UpdateSnapshot(ctx, snapshot); err != nil {
		logger.Error("snapshot collect completion update failed",
			"event", "snapshot_collect_completion_update_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", periodID,
			"snapshot_id", snapshot.ID,
			"error", err.Error(),
		)
		return snapshot, err
	}

	if err := uc.appendOutbox(ctx, "snapshot.completed", periodID, map[string]any{
		"period_id":     periodID,
		"snapshot_id":   snapshot.ID,
		"token_address": snapshot.TokenAddress,
		"holder_count":  snapshot.HolderCount,
		"total_balance": snapshot.TotalBalance.String(),
	}); err != nil {
		logger.Error("snapshot completion outbox append failed",
			"event", "snapshot_completion_outbox_append_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", periodID,
			"snapshot_id", snapshot.ID,
			"error", err.Error(),
		)
		return snapshot, err
	}

	logger.Info("snapshot collection completed",
		"event", "snapshot_collection_completed",
		"module", "rewards-core/snapshot-service",
		"layer", "application",
		"period_id", periodID,
		"snapshot_id", snapshot.ID,
		"holder_count", snapshot.HolderCount,
		"total_balance", snapshot.TotalBalance.String(),
	)
	return snapshot, nil
}

func (uc UseCase) markFailed(
	ctx context.Context,
	snapshot entities.Snapshot,
	cause error,
) (entities.Snapshot, error) {
	logger := application.ResolveLogger(uc.Logger)
	snapshot.Status = entities.SnapshotStatusFailed
	snapshot.LastError = strings.TrimSpace(cause.Error())
	snapshot.UpdatedAt = uc.now()
	if err := uc.Repository.UpdateSnapshot(ctx, snapshot); err != nil {
		logger.Error("snapshot failure state update failed",
			"event", "snapshot_failure_update_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", snapshot.PeriodID,
			"snapshot_id", snapshot.ID,
			"error", err.Error(),
		)
		return snapshot, cause
	}
	if err := uc.appendOutbox(ctx, "snapshot.failed", snapshot.PeriodID, map[string]any{
		"period_id":   snapshot.PeriodID,
		"snapshot_id": snapshot.ID,
		"reason":      snapshot.LastError,
	}); err != nil {
		logger.Error("snapshot failure outbox append failed",
			"event", "snapshot_failure_outbox_append_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"period_id", snapshot.PeriodID,
			"snapshot_id", snapshot.ID,
			"error", err.Error(),
		)
		return snapshot, cause
	}
	logger.Warn("snapshot collection failed",
		"event", "snapshot_collection_failed",
		"module", "rewards-core/snapshot-service",
		"layer", "application",
		"period_id", snapshot.PeriodID,
		"snapshot_id", snapshot.ID,
		"cursor", snapshot.Cursor,
		"error", snapshot.LastError,
	)
	return snapshot, cause
}

func (uc UseCase) appendOutbox(
	ctx context.Context,
	eventType string,
	partitionKey string,
	data map[string]any,
) error {
	logger := application.ResolveLogger(uc.Logger)
	if uc.Outbox == nil {
		logger.Debug("snapshot outbox disabled for module",
			"event", "snapshot_outbox_disabled",
			"module", "rewards-core/snapshot-service",
			"layer", "application",
			"event_type", eventType,
		)
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
		SourceService:    "snapshot-service",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "period_id",
		PartitionKey:     partitionKey,
		Data:             payload,
	})
}

func (uc UseCase) pageSize() int {
	if uc.PageSize <= 0 {
		return defaultPageSize
	}
	return uc.PageSize
}

func (uc UseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
