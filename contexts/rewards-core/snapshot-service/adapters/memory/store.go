package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/snapshot-service/domain/errors"
	"jubilee/contexts/rewards-core/snapshot-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type balanceKey struct {
	snapshotID string
	address    string
}

type Store struct {
	mu sync.RWMutex

	snapshots map[string]entities.Snapshot // keyed by period id
	balances  map[balanceKey]*big.Int
	outbox    map[string]outboxRecord
}

func NewStore(seed []entities.Snapshot) *Store {
	snapshots := make(map[string]entities.Snapshot, len(seed))
	for _, snapshot := range seed {
		snapshots[snapshot.PeriodID] = snapshot.Clone()
	}
	return &Store{
		snapshots: snapshots,
		balances:  make(map[balanceKey]*big.Int),
		outbox:    make(map[string]outboxRecord),
	}
}

// SeedBalances installs holder balances for a snapshot directly, bypassing
// the collection flow. Test wiring only.
func (s *Store) SeedBalances(snapshotID string, balances map[string]*big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for address, balance := range balances {
		s.balances[balanceKey{snapshotID: snapshotID, address: address}] = new(big.Int).Set(balance)
	}
}

func (s *Store) CreateSnapshot(_ context.Context, snapshot entities.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	periodID := strings.TrimSpace(snapshot.PeriodID)
	if _, exists := s.snapshots[periodID]; exists {
		return domainerrors.ErrSnapshotExists
	}
	s.snapshots[periodID] = snapshot.Clone()
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, periodID string) (entities.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[strings.TrimSpace(periodID)]
	if !ok {
		return entities.Snapshot{}, domainerrors.ErrSnapshotNotFound
	}
	return snapshot.Clone(), nil
}

func (s *Store) UpdateSnapshot(_ context.Context, snapshot entities.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	periodID := strings.TrimSpace(snapshot.PeriodID)
	if _, ok := s.snapshots[periodID]; !ok {
		return domainerrors.ErrSnapshotNotFound
	}
	s.snapshots[periodID] = snapshot.Clone()
	return nil
}

func (s *Store) UpsertHolderBalances(
	_ context.Context,
	snapshotID string,
	balances []entities.HolderBalance,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, balance := range balances {
		key := balanceKey{
			snapshotID: strings.TrimSpace(snapshotID),
			address:    strings.TrimSpace(balance.Address),
		}
		s.balances[key] = new(big.Int).Set(balance.Balance)
	}
	return nil
}

func (s *Store) DeleteHolderBalances(_ context.Context, snapshotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.balances {
		if key.snapshotID == strings.TrimSpace(snapshotID) {
			delete(s.balances, key)
		}
	}
	return nil
}

func (s *Store) HolderBalances(_ context.Context, snapshotID string) (map[string]*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make(map[string]*big.Int)
	for key, balance := range s.balances {
		if key.snapshotID == strings.TrimSpace(snapshotID) {
			balances[key.address] = new(big.Int).Set(balance)
		}
	}
	return balances, nil
}

func (s *Store) CountHolderBalances(_ context.Context, snapshotID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.balances {
		if key.snapshotID == strings.TrimSpace(snapshotID) {
			count++
		}
	}
	return count, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.Repository = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
