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

	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/snapshot-service/domain/errors"
	"jubilee/contexts/rewards-core/snapshot-service/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

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

func (r *Repository) CreateSnapshot(ctx context.Context, snapshot entities.Snapshot) error {
	row := snapshotModelFromEntity(snapshot)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrSnapshotExists
		}
		return r.logError("snapshot_repo_create_failed", err,
			"period_id", snapshot.PeriodID,
		)
	}
	return nil
}

func (r *Repository) GetSnapshot(ctx context.Context, periodID string) (entities.Snapshot, error) {
	var row snapshotModel
	err := r.db.WithContext(ctx).
		Where("period_id = ?", strings.TrimSpace(periodID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Snapshot{}, domainerrors.ErrSnapshotNotFound
		}
		return entities.Snapshot{}, r.logError("snapshot_repo_get_failed", err,
			"period_id", strings.TrimSpace(periodID),
		)
	}
	return row.toEntity()
}

func (r *Repository) UpdateSnapshot(ctx context.Context, snapshot entities.Snapshot) error {
	row := snapshotModelFromEntity(snapshot)
	result := r.db.WithContext(ctx).
		Model(&snapshotModel{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"status":        row.Status,
			"cursor":        row.Cursor,
			"holder_count":  row.HolderCount,
			"total_balance": row.TotalBalance,
			"last_error":    row.LastError,
			"completed_at":  row.CompletedAt,
			"updated_at":    row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("snapshot_repo_update_failed", result.Error,
			"snapshot_id", row.ID,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrSnapshotNotFound
	}
	return nil
}

func (r *Repository) UpsertHolderBalances(
	ctx context.Context,
	snapshotID string,
	balances []entities.HolderBalance,
) error {
	if len(balances) == 0 {
		return nil
	}
	rows := make([]holderBalanceModel, 0, len(balances))
	for _, balance := range balances {
		rows = append(rows, holderBalanceModelFromEntity(snapshotID, balance))
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "snapshot_id"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"balance",
		}),
	}).Create(&rows)
	if create.Error != nil {
		return r.logError("snapshot_repo_upsert_balances_failed", create.Error,
			"snapshot_id", strings.TrimSpace(snapshotID),
			"row_count", len(rows),
		)
	}
	return nil
}

func (r *Repository) DeleteHolderBalances(ctx context.Context, snapshotID string) error {
	err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", strings.TrimSpace(snapshotID)).
		Delete(&holderBalanceModel{}).
		Error
	if err != nil {
		return r.logError("snapshot_repo_delete_balances_failed", err,
			"snapshot_id", strings.TrimSpace(snapshotID),
		)
	}
	return nil
}

func (r *Repository) HolderBalances(ctx context.Context, snapshotID string) (map[string]*big.Int, error) {
	var rows []holderBalanceModel
	if err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", strings.TrimSpace(snapshotID)).
		Find(&rows).Error; err != nil {
		return nil, r.logError("snapshot_repo_list_balances_failed", err,
			"snapshot_id", strings.TrimSpace(snapshotID),
		)
	}
	balances := make(map[string]*big.Int, len(rows))
	for _, row := range rows {
		balance, err := parseAmount(row.Balance)
		if err != nil {
			return nil, r.logError("snapshot_repo_balance_parse_failed", err,
				"snapshot_id", strings.TrimSpace(snapshotID),
				"address", row.Address,
			)
		}
		balances[row.Address] = balance
	}
	return balances, nil
}

func (r *Repository) CountHolderBalances(ctx context.Context, snapshotID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&holderBalanceModel{}).
		Where("snapshot_id = ?", strings.TrimSpace(snapshotID)).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("snapshot_repo_count_balances_failed", err,
			"snapshot_id", strings.TrimSpace(snapshotID),
		)
	}
	return int(count), nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("snapshot_repo_append_outbox_marshal_failed", err,
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
		return r.logError("snapshot_repo_append_outbox_failed", create.Error,
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
		return r.logError("snapshot_repo_append_outbox_load_existing_failed", err,
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
		return nil, r.logError("snapshot_repo_list_pending_outbox_failed", err, "limit", limit)
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
		return r.logError("snapshot_repo_mark_outbox_published_failed", result.Error,
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
		"module", "rewards-core/snapshot-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("snapshot repository operation failed", fields...)
	return err
}

type snapshotModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	PeriodID     string     `gorm:"column:period_id;uniqueIndex"`
	TokenAddress string     `gorm:"column:token_address"`
	Status       string     `gorm:"column:status"`
	Cursor       string     `gorm:"column:cursor"`
	HolderCount  int        `gorm:"column:holder_count"`
	TotalBalance string     `gorm:"column:total_balance;type:numeric(78,0)"`
	LastError    string     `gorm:"column:last_error"`
	StartedAt    time.Time  `gorm:"column:started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (snapshotModel) TableName() string {
	return "snapshots"
}

func snapshotModelFromEntity(snapshot entities.Snapshot) snapshotModel {
	row := snapshotModel{
		ID:           strings.TrimSpace(snapshot.ID),
		PeriodID:     strings.TrimSpace(snapshot.PeriodID),
		TokenAddress: strings.TrimSpace(snapshot.TokenAddress),
		Status:       string(snapshot.Status),
		Cursor:       snapshot.Cursor,
		HolderCount:  snapshot.HolderCount,
		TotalBalance: formatAmount(snapshot.TotalBalance),
		LastError:    snapshot.LastError,
		StartedAt:    snapshot.StartedAt.UTC(),
		CompletedAt:  normalizeOptionalTime(snapshot.CompletedAt),
		UpdatedAt:    snapshot.UpdatedAt.UTC(),
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	return row
}

func (m snapshotModel) toEntity() (entities.Snapshot, error) {
	total, err := parseAmount(m.TotalBalance)
	if err != nil {
		return entities.Snapshot{}, err
	}
	return entities.Snapshot{
		ID:           m.ID,
		PeriodID:     m.PeriodID,
		TokenAddress: m.TokenAddress,
		Status:       entities.SnapshotStatus(m.Status),
		Cursor:       m.Cursor,
		HolderCount:  m.HolderCount,
		TotalBalance: total,
		LastError:    m.LastError,
		StartedAt:    m.StartedAt.UTC(),
		CompletedAt:  normalizeOptionalTime(m.CompletedAt),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}, nil
}

type holderBalanceModel struct {
	SnapshotID string `gorm:"column:snapshot_id;primaryKey"`
	Address    string `gorm:"column:address;primaryKey"`
	Balance    string `gorm:"column:balance;type:numeric(78,0)"`
}

func (holderBalanceModel) TableName() string {
	return "snapshot_holder_balances"
}

func holderBalanceModelFromEntity(snapshotID string, balance entities.HolderBalance) holderBalanceModel {
	return holderBalanceModel{
		SnapshotID: strings.TrimSpace(snapshotID),
		Address:    strings.TrimSpace(balance.Address),
		Balance:    formatAmount(balance.Balance),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "snapshot_outbox"
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

var _ ports.Repository = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
