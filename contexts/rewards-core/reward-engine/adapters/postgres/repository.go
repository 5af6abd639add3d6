package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

var claimableStatuses = []string{
	string(entities.DistributionStatusReady),
	string(entities.DistributionStatusProcessing),
	string(entities.DistributionStatusFailed),
}

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateDistribution(ctx context.Context, distribution entities.Distribution) error {
	row := distributionModelFromEntity(distribution)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDistributionExists
		}
		return r.logError("reward_repo_create_distribution_failed", err,
			"period_id", distribution.PeriodID,
		)
	}
	return nil
}

func (r *Repository) GetDistribution(ctx context.Context, periodID string) (entities.Distribution, error) {
	var row distributionModel
	err := r.db.WithContext(ctx).
		Where("period_id = ?", strings.TrimSpace(periodID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Distribution{}, domainerrors.ErrDistributionNotFound
		}
		return entities.Distribution{}, r.logError("reward_repo_get_distribution_failed", err,
			"period_id", strings.TrimSpace(periodID),
		)
	}
	return row.toEntity()
}

func (r *Repository) UpdateDistribution(ctx context.Context, distribution entities.Distribution) error {
	row := distributionModelFromEntity(distribution)
	result := r.db.WithContext(ctx).
		Model(&distributionModel{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"previous_period_id":    row.PreviousPeriodID,
			"previous_snapshot_id":  row.PreviousSnapshotID,
			"current_snapshot_id":   row.CurrentSnapshotID,
			"min_holding":           row.MinHolding,
			"reward_pool":           row.RewardPool,
			"batch_size":            row.BatchSize,
			"max_retries":           row.MaxRetries,
			"total_holders":         row.TotalHolders,
			"eligible_count":        row.EligibleCount,
			"policy_excluded":       row.PolicyExcluded,
			"restricted_excluded":   row.RestrictedExcluded,
			"not_held_previous":     row.NotHeldPrevious,
			"not_held_current":      row.NotHeldCurrent,
			"below_minimum":         row.BelowMinimum,
			"zero_reward":           row.ZeroReward,
			"total_eligible_weight": row.TotalEligibleWeight,
			"total_distributed":     row.TotalDistributed,
			"status":                row.Status,
			"last_error":            row.LastError,
			"completed_at":          row.CompletedAt,
			"updated_at":            row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("reward_repo_update_distribution_failed", result.Error,
			"distribution_id", row.ID,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDistributionNotFound
	}
	return nil
}

// ClaimDistribution is the single-writer compare-and-swap: one conditional
// UPDATE moves the row to processing and stamps the lease only when its
// status allows processing and no other run holds an unexpired lease.
func (r *Repository) ClaimDistribution(
	ctx context.Context,
	periodID string,
	runID string,
	now time.Time,
	leaseTTL time.Duration,
) (entities.Distribution, error) {
	normalizedPeriodID := strings.TrimSpace(periodID)
	expiresAt := now.UTC().Add(leaseTTL)
	result := r.db.WithContext(ctx).
		Model(&distributionModel{}).
		Where("period_id = ?", normalizedPeriodID).
		Where("status IN ?", claimableStatuses).
		Where("lease_owner = '' OR lease_owner = ? OR lease_expires_at IS NULL OR lease_expires_at < ?", runID, now.UTC()).
		Updates(map[string]any{
			"status":           string(entities.DistributionStatusProcessing),
			"lease_owner":      runID,
			"lease_expires_at": expiresAt,
			"updated_at":       now.UTC(),
		})
	if result.Error != nil {
		return entities.Distribution{}, r.logError("reward_repo_claim_distribution_failed", result.Error,
			"period_id", normalizedPeriodID,
			"run_id", runID,
		)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetDistribution(ctx, normalizedPeriodID); err != nil {
			return entities.Distribution{}, err
		}
		return entities.Distribution{}, domainerrors.ErrDistributionBusy
	}
	return r.GetDistribution(ctx, normalizedPeriodID)
}

func (r *Repository) ReleaseDistribution(
	ctx context.Context,
	periodID string,
	runID string,
	status entities.DistributionStatus,
	completedAt *time.Time,
	totalDistributed *big.Int,
	now time.Time,
) error {
	updates := map[string]any{
		"status":           string(status),
		"lease_owner":      "",
		"lease_expires_at": nil,
		"updated_at":       now.UTC(),
	}
	if completedAt != nil {
		stamp := completedAt.UTC()
		updates["completed_at"] = stamp
		updates["updated_at"] = stamp
	}
	if totalDistributed != nil {
		updates["total_distributed"] = totalDistributed.String()
	}
	result := r.db.WithContext(ctx).
		Model(&distributionModel{}).
		Where("period_id = ? AND lease_owner = ?", strings.TrimSpace(periodID), runID).
		Updates(updates)
	if result.Error != nil {
		return r.logError("reward_repo_release_distribution_failed", result.Error,
			"period_id", strings.TrimSpace(periodID),
			"run_id", runID,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListProcessableDistributions(ctx context.Context, now time.Time) ([]entities.Distribution, error) {
	var rows []distributionModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.DistributionStatusReady)).
		Or("status = ? AND (lease_expires_at IS NULL OR lease_expires_at < ?)",
			string(entities.DistributionStatusProcessing), now.UTC()).
		Order("period_id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("reward_repo_list_processable_failed", err)
	}
	distributions := make([]entities.Distribution, 0, len(rows))
	for _, row := range rows {
		distribution, err := row.toEntity()
		if err != nil {
			return nil, r.logError("reward_repo_distribution_decode_failed", err, "distribution_id", row.ID)
		}
		distributions = append(distributions, distribution)
	}
	return distributions, nil
}

func (r *Repository) ReplaceRecipients(ctx context.Context, distributionID string, recipients []entities.Recipient) error {
	normalizedID := strings.TrimSpace(distributionID)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("distribution_id = ?", normalizedID).
			Delete(&recipientModel{}).Error; err != nil {
			return err
		}
		if len(recipients) == 0 {
			return nil
		}
		rows := make([]recipientModel, 0, len(recipients))
		for i, recipient := range recipients {
			rows = append(rows, recipientModelFromEntity(recipient, i))
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
	if err != nil {
		return r.logError("reward_repo_replace_recipients_failed", err,
			"distribution_id", normalizedID,
			"row_count", len(recipients),
		)
	}
	return nil
}

func (r *Repository) ReplaceBatches(ctx context.Context, distributionID string, batches []entities.Batch) error {
	normalizedID := strings.TrimSpace(distributionID)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("distribution_id = ?", normalizedID).
			Delete(&batchModel{}).Error; err != nil {
			return err
		}
		if len(batches) == 0 {
			return nil
		}
		rows := make([]batchModel, 0, len(batches))
		for _, batch := range batches {
			row, err := batchModelFromEntity(batch)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return tx.CreateInBatches(&rows, 200).Error
	})
	if err != nil {
		return r.logError("reward_repo_replace_batches_failed", err,
			"distribution_id", normalizedID,
			"row_count", len(batches),
		)
	}
	return nil
}

func (r *Repository) ListBatches(ctx context.Context, distributionID string) ([]entities.Batch, error) {
	return r.listBatchesWhere(ctx, distributionID, nil)
}

func (r *Repository) ListRunnableBatches(ctx context.Context, distributionID string) ([]entities.Batch, error) {
	statuses := []string{
		string(entities.BatchStatusPending),
		string(entities.BatchStatusFailed),
	}
	return r.listBatchesWhere(ctx, distributionID, statuses)
}

func (r *Repository) listBatchesWhere(ctx context.Context, distributionID string, statuses []string) ([]entities.Batch, error) {
	normalizedID := strings.TrimSpace(distributionID)
	query := r.db.WithContext(ctx).
		Where("distribution_id = ?", normalizedID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []batchModel
	if err := query.Order("batch_number ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("reward_repo_list_batches_failed", err,
			"distribution_id", normalizedID,
		)
	}
	batches := make([]entities.Batch, 0, len(rows))
	for _, row := range rows {
		batch, err := row.toEntity()
		if err != nil {
			return nil, r.logError("reward_repo_batch_decode_failed", err,
				"distribution_id", normalizedID,
				"batch_number", row.BatchNumber,
			)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func (r *Repository) GetBatch(ctx context.Context, distributionID string, number int) (entities.Batch, error) {
	var row batchModel
	err := r.db.WithContext(ctx).
		Where("distribution_id = ? AND batch_number = ?", strings.TrimSpace(distributionID), number).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Batch{}, domainerrors.ErrBatchNotFound
		}
		return entities.Batch{}, r.logError("reward_repo_get_batch_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
			"batch_number", number,
		)
	}
	return row.toEntity()
}

func (r *Repository) UpdateBatch(ctx context.Context, batch entities.Batch) error {
	row, err := batchModelFromEntity(batch)
	if err != nil {
		return r.logError("reward_repo_batch_encode_failed", err,
			"distribution_id", batch.DistributionID,
			"batch_number", batch.Number,
		)
	}
	result := r.db.WithContext(ctx).
		Model(&batchModel{}).
		Where("distribution_id = ? AND batch_number = ?", row.DistributionID, row.BatchNumber).
		Updates(map[string]any{
			"status":              row.Status,
			"retry_count":         row.RetryCount,
			"last_error":          row.LastError,
			"tx_id":               row.TxID,
			"gas_used":            row.GasUsed,
			"effective_gas_price": row.EffectiveGasPrice,
			"block_number":        row.BlockNumber,
			"confirmed_at":        row.ConfirmedAt,
			"updated_at":          row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("reward_repo_update_batch_failed", result.Error,
			"distribution_id", row.DistributionID,
			"batch_number", row.BatchNumber,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrBatchNotFound
	}
	return nil
}

func (r *Repository) UpdateRecipientsForBatch(
	ctx context.Context,
	distributionID string,
	batchNumber int,
	status entities.RecipientStatus,
	txID string,
	lastError string,
	updatedAt time.Time,
) error {
	err := r.db.WithContext(ctx).
		Model(&recipientModel{}).
		Where("distribution_id = ? AND batch_number = ?", strings.TrimSpace(distributionID), batchNumber).
		Updates(map[string]any{
			"status":     string(status),
			"tx_id":      txID,
			"last_error": lastError,
			"updated_at": updatedAt.UTC(),
		}).
		Error
	if err != nil {
		return r.logError("reward_repo_update_recipients_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
			"batch_number", batchNumber,
		)
	}
	return nil
}

func (r *Repository) ListRecipients(ctx context.Context, distributionID string, limit, offset int) ([]entities.Recipient, error) {
	normalizedID := strings.TrimSpace(distributionID)
	var rows []recipientModel
	err := r.db.WithContext(ctx).
		Where("distribution_id = ?", normalizedID).
		Order("position ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("reward_repo_list_recipients_failed", err,
			"distribution_id", normalizedID,
		)
	}
	recipients := make([]entities.Recipient, 0, len(rows))
	for _, row := range rows {
		recipient, err := row.toEntity()
		if err != nil {
			return nil, r.logError("reward_repo_recipient_decode_failed", err,
				"distribution_id", normalizedID,
				"address", row.Address,
			)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

func (r *Repository) CountRecipients(ctx context.Context, distributionID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&recipientModel{}).
		Where("distribution_id = ?", strings.TrimSpace(distributionID)).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("reward_repo_count_recipients_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
		)
	}
	return int(count), nil
}

func (r *Repository) CountBatchesByStatus(ctx context.Context, distributionID string) (map[entities.BatchStatus]int, error) {
	type statusCount struct {
		Status string
		Count  int
	}
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&batchModel{}).
		Select("status, count(*) as count").
		Where("distribution_id = ?", strings.TrimSpace(distributionID)).
		Group("status").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("reward_repo_count_batches_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
		)
	}
	counts := make(map[entities.BatchStatus]int, len(rows))
	for _, row := range rows {
		counts[entities.BatchStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// SumCompletedBatchAmounts sums in Go over the numeric column values so the
// arithmetic stays big.Int rather than trusting driver float conversion.
func (r *Repository) SumCompletedBatchAmounts(ctx context.Context, distributionID string) (*big.Int, error) {
	var amounts []string
	err := r.db.WithContext(ctx).
		Model(&batchModel{}).
		Where("distribution_id = ? AND status = ?",
			strings.TrimSpace(distributionID), string(entities.BatchStatusCompleted)).
		Pluck("total_amount", &amounts).
		Error
	if err != nil {
		return nil, r.logError("reward_repo_sum_batches_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
		)
	}
	total := big.NewInt(0)
	for _, amount := range amounts {
		value, err := parseAmount(amount)
		if err != nil {
			return nil, r.logError("reward_repo_sum_parse_failed", err,
				"distribution_id", strings.TrimSpace(distributionID),
			)
		}
		total.Add(total, value)
	}
	return total, nil
}

func (r *Repository) CountProcessingBatches(ctx context.Context, distributionID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&batchModel{}).
		Where("distribution_id = ? AND status = ?",
			strings.TrimSpace(distributionID), string(entities.BatchStatusProcessing)).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("reward_repo_count_processing_failed", err,
			"distribution_id", strings.TrimSpace(distributionID),
		)
	}
	return int(count), nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("reward_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("reward_repo_append_outbox_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("reward_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("reward_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("reward_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "rewards-core/reward-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("reward repository operation failed", fields...)
	return err
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric column value %q", trimmed)
	}
	return parsed, nil
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.DistributionRepository = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
