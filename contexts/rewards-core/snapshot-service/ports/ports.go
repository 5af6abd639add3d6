package ports

import (
	"context"
	"math/big"
	"time"

	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	contractsv1 "jubilee/contracts/gen/events/v1"
)

type Repository interface {
	CreateSnapshot(ctx context.Context, snapshot entities.Snapshot) error
	GetSnapshot(ctx context.Context, periodID string) (entities.Snapshot, error)
	UpdateSnapshot(ctx context.Context, snapshot entities.Snapshot) error
	UpsertHolderBalances(ctx context.Context, snapshotID string, balances []entities.HolderBalance) error
	DeleteHolderBalances(ctx context.Context, snapshotID string) error
	HolderBalances(ctx context.Context, snapshotID string) (map[string]*big.Int, error)
	CountHolderBalances(ctx context.Context, snapshotID string) (int, error)
}

// AddressBalance is one holder row as returned by the external index.
type AddressBalance struct {
	Address string
	Balance *big.Int
}

// HolderPage is one page of the holder index listing. NextCursor is opaque
// and only meaningful when HasMore is true.
type HolderPage struct {
	Holders    []AddressBalance
	NextCursor string
	HasMore    bool
}

// HolderIndex is the external service that knows per-address token balances.
type HolderIndex interface {
	FetchHolders(ctx context.Context, tokenAddress string, cursor string, limit int) (HolderPage, error)
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
