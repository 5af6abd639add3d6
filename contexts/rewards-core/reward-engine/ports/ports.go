package ports

import (
	"context"
	"math/big"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	contractsv1 "jubilee/contracts/gen/events/v1"
)

// DistributionRepository persists distributions, recipients and batches.
// Single-row updates are atomic; the claim and release operations below are
// the only cross-field conditional writes the engine relies on.
type DistributionRepository interface {
	CreateDistribution(ctx context.Context, distribution entities.Distribution) error
	GetDistribution(ctx context.Context, periodID string) (entities.Distribution, error)
	UpdateDistribution(ctx context.Context, distribution entities.Distribution) error

	// ClaimDistribution atomically moves the period's distribution to
	// processing and stamps the lease, but only when its status allows
	// processing and no unexpired lease is held by another run. Returns
	// ErrDistributionBusy when the compare-and-swap loses.
	ClaimDistribution(ctx context.Context, periodID string, runID string, now time.Time, leaseTTL time.Duration) (entities.Distribution, error)

	// ReleaseDistribution writes the pass outcome and clears the lease in one
	// update, guarded on the lease still being owned by runID.
	ReleaseDistribution(ctx context.Context, periodID string, runID string, status entities.DistributionStatus, completedAt *time.Time, totalDistributed *big.Int, now time.Time) error

	// ReplaceRecipients and ReplaceBatches discard the period's previous
	// result set and install the new one. A recompute never merges.
	ReplaceRecipients(ctx context.Context, distributionID string, recipients []entities.Recipient) error
	ReplaceBatches(ctx context.Context, distributionID string, batches []entities.Batch) error

	// ListProcessableDistributions returns distributions a worker pass may
	// pick up: ready ones and processing ones whose lease has expired.
	ListProcessableDistributions(ctx context.Context, now time.Time) ([]entities.Distribution, error)

	ListBatches(ctx context.Context, distributionID string) ([]entities.Batch, error)

	// ListRunnableBatches returns pending and failed batches in ascending
	// batch number order, the exact walk order of a processing pass.
	ListRunnableBatches(ctx context.Context, distributionID string) ([]entities.Batch, error)

	GetBatch(ctx context.Context, distributionID string, number int) (entities.Batch, error)
	UpdateBatch(ctx context.Context, batch entities.Batch) error

	// UpdateRecipientsForBatch stamps status, txID and error onto every
	// recipient owned by the batch.
	UpdateRecipientsForBatch(ctx context.Context, distributionID string, batchNumber int, status entities.RecipientStatus, txID string, lastError string, updatedAt time.Time) error

	ListRecipients(ctx context.Context, distributionID string, limit, offset int) ([]entities.Recipient, error)
	CountRecipients(ctx context.Context, distributionID string) (int, error)

	CountBatchesByStatus(ctx context.Context, distributionID string) (map[entities.BatchStatus]int, error)
	SumCompletedBatchAmounts(ctx context.Context, distributionID string) (*big.Int, error)
	CountProcessingBatches(ctx context.Context, distributionID string) (int, error)
}

// SnapshotReader resolves completed balance snapshots for reward input. It is
// a read-only projection over the snapshot service's storage.
type SnapshotReader interface {
	// GetCompletedSnapshot returns the snapshot id for the period, or
	// ErrSnapshotNotFound / ErrSnapshotNotCompleted.
	GetCompletedSnapshot(ctx context.Context, periodID string) (string, error)
	HolderBalances(ctx context.Context, snapshotID string) (map[string]*big.Int, error)
}

// PriceGate answers whether external fee conditions currently allow
// broadcasting. An error means the answer is unknown and callers treat the
// gate as closed.
type PriceGate interface {
	Acceptable(ctx context.Context) (bool, error)
}

// Transfer is one recipient payment inside a batch execution request.
type Transfer struct {
	Address string
	Amount  *big.Int
}

// ExecutionReceipt is the confirmed result of a broadcast batch.
type ExecutionReceipt struct {
	TxID              string
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	BlockNumber       uint64
	ConfirmedAt       time.Time
}

// TransferExecutor broadcasts one batch of transfers and waits for
// confirmation. Idempotency across retries of the same logical attempt is the
// executor's responsibility.
type TransferExecutor interface {
	ExecuteBatch(ctx context.Context, distributionID string, batchNumber int, retryCount int, transfers []Transfer) (ExecutionReceipt, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
