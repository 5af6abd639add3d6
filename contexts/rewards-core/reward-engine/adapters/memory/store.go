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

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type seededSnapshot struct {
	snapshotID string
	completed  bool
}

// Store is the in-memory distribution repository plus snapshot reader used by
// NewInMemoryModule and tests. Claim and release preserve the compare-and-swap
// semantics of the postgres adapter under a single mutex.
type Store struct {
	mu sync.RWMutex

	distributions map[string]entities.Distribution // keyed by period id
	recipients    map[string][]entities.Recipient  // keyed by distribution id
	batches       map[string][]entities.Batch      // keyed by distribution id
	snapshots     map[string]seededSnapshot        // keyed by period id
	balances      map[string]map[string]*big.Int   // keyed by snapshot id
	outbox        map[string]outboxRecord
}

func NewStore(seed []entities.Distribution) *Store {
	distributions := make(map[string]entities.Distribution, len(seed))
	for _, distribution := range seed {
		distributions[distribution.PeriodID] = distribution.Clone()
	}
	return &Store{
		distributions: distributions,
		recipients:    make(map[string][]entities.Recipient),
		batches:       make(map[string][]entities.Batch),
		snapshots:     make(map[string]seededSnapshot),
		balances:      make(map[string]map[string]*big.Int),
		outbox:        make(map[string]outboxRecord),
	}
}

// SeedSnapshot installs a period's snapshot projection directly. Test wiring
// only; completed=false lets tests exercise the not-completed rejection.
func (s *Store) SeedSnapshot(periodID, snapshotID string, completed bool, balances map[string]*big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[strings.TrimSpace(periodID)] = seededSnapshot{
		snapshotID: snapshotID,
		completed:  completed,
	}
	copied := make(map[string]*big.Int, len(balances))
	for address, balance := range balances {
		copied[address] = new(big.Int).Set(balance)
	}
	s.balances[snapshotID] = copied
}

func (s *Store) GetCompletedSnapshot(_ context.Context, periodID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[strings.TrimSpace(periodID)]
	if !ok {
		return "", domainerrors.ErrSnapshotNotFound
	}
	if !snapshot.completed {
		return "", domainerrors.ErrSnapshotNotCompleted
	}
	return snapshot.snapshotID, nil
}

func (s *Store) HolderBalances(_ context.Context, snapshotID string) (map[string]*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.balances[strings.TrimSpace(snapshotID)]
	if !ok {
		return nil, domainerrors.ErrSnapshotNotFound
	}
	balances := make(map[string]*big.Int, len(stored))
	for address, balance := range stored {
		balances[address] = new(big.Int).Set(balance)
	}
	return balances, nil
}

func (s *Store) CreateDistribution(_ context.Context, distribution entities.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	periodID := strings.TrimSpace(distribution.PeriodID)
	if _, exists := s.distributions[periodID]; exists {
		return domainerrors.ErrDistributionExists
	}
	s.distributions[periodID] = distribution.Clone()
	return nil
}

func (s *Store) GetDistribution(_ context.Context, periodID string) (entities.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	distribution, ok := s.distributions[strings.TrimSpace(periodID)]
	if !ok {
		return entities.Distribution{}, domainerrors.ErrDistributionNotFound
	}
	return distribution.Clone(), nil
}

func (s *Store) UpdateDistribution(_ context.Context, distribution entities.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	periodID := strings.TrimSpace(distribution.PeriodID)
	if _, ok := s.distributions[periodID]; !ok {
		return domainerrors.ErrDistributionNotFound
	}
	s.distributions[periodID] = distribution.Clone()
	return nil
}

func (s *Store) ClaimDistribution(
	_ context.Context,
	periodID string,
	runID string,
	now time.Time,
	leaseTTL time.Duration,
) (entities.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	distribution, ok := s.distributions[strings.TrimSpace(periodID)]
	if !ok {
		return entities.Distribution{}, domainerrors.ErrDistributionNotFound
	}
	switch distribution.Status {
	case entities.DistributionStatusReady, entities.DistributionStatusProcessing, entities.DistributionStatusFailed:
	default:
		return entities.Distribution{}, domainerrors.ErrDistributionBusy
	}
	if distribution.LeaseHeldAt(now) && distribution.LeaseOwner != runID {
		return entities.Distribution{}, domainerrors.ErrDistributionBusy
	}
	expiresAt := now.Add(leaseTTL)
	distribution.Status = entities.DistributionStatusProcessing
	distribution.LeaseOwner = runID
	distribution.LeaseExpiresAt = &expiresAt
	distribution.UpdatedAt = now
	s.distributions[strings.TrimSpace(periodID)] = distribution.Clone()
	return distribution.Clone(), nil
}

func (s *Store) ReleaseDistribution(
	_ context.Context,
	periodID string,
	runID string,
	status entities.DistributionStatus,
	completedAt *time.Time,
	totalDistributed *big.Int,
	now time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	distribution, ok := s.distributions[strings.TrimSpace(periodID)]
	if !ok {
		return domainerrors.ErrDistributionNotFound
	}
	if distribution.LeaseOwner != runID {
		return domainerrors.ErrConflict
	}
	distribution.Status = status
	distribution.LeaseOwner = ""
	distribution.LeaseExpiresAt = nil
	distribution.UpdatedAt = now.UTC()
	if completedAt != nil {
		stamp := completedAt.UTC()
		distribution.CompletedAt = &stamp
		distribution.UpdatedAt = stamp
	}
	if totalDistributed != nil {
		distribution.Stats.TotalDistributed = new(big.Int).Set(totalDistributed)
	}
	s.distributions[strings.TrimSpace(periodID)] = distribution.Clone()
	return nil
}

func (s *Store) ListProcessableDistributions(_ context.Context, now time.Time) ([]entities.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var processable []entities.Distribution
	for _, distribution := range s.distributions {
		switch distribution.Status {
		case entities.DistributionStatusReady:
			processable = append(processable, distribution.Clone())
		case entities.DistributionStatusProcessing:
			if !distribution.LeaseHeldAt(now) {
				processable = append(processable, distribution.Clone())
			}
		}
	}
	sort.Slice(processable, func(i, j int) bool {
		return processable[i].PeriodID < processable[j].PeriodID
	})
	return processable, nil
}

func (s *Store) ReplaceRecipients(_ context.Context, distributionID string, recipients []entities.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]entities.Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		copied = append(copied, recipient.Clone())
	}
	s.recipients[strings.TrimSpace(distributionID)] = copied
	return nil
}

func (s *Store) ReplaceBatches(_ context.Context, distributionID string, batches []entities.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]entities.Batch, 0, len(batches))
	for _, batch := range batches {
		copied = append(copied, batch.Clone())
	}
	sort.Slice(copied, func(i, j int) bool { return copied[i].Number < copied[j].Number })
	s.batches[strings.TrimSpace(distributionID)] = copied
	return nil
}

func (s *Store) ListBatches(_ context.Context, distributionID string) ([]entities.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.batches[strings.TrimSpace(distributionID)]
	batches := make([]entities.Batch, 0, len(stored))
	for _, batch := range stored {
		batches = append(batches, batch.Clone())
	}
	return batches, nil
}

func (s *Store) ListRunnableBatches(_ context.Context, distributionID string) ([]entities.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runnable []entities.Batch
	for _, batch := range s.batches[strings.TrimSpace(distributionID)] {
		if batch.Status == entities.BatchStatusPending || batch.Status == entities.BatchStatusFailed {
			runnable = append(runnable, batch.Clone())
		}
	}
	return runnable, nil
}

func (s *Store) GetBatch(_ context.Context, distributionID string, number int) (entities.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, batch := range s.batches[strings.TrimSpace(distributionID)] {
		if batch.Number == number {
			return batch.Clone(), nil
		}
	}
	return entities.Batch{}, domainerrors.ErrBatchNotFound
}

func (s *Store) UpdateBatch(_ context.Context, updated entities.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.batches[strings.TrimSpace(updated.DistributionID)]
	for i, batch := range stored {
		if batch.Number == updated.Number {
			stored[i] = updated.Clone()
			return nil
		}
	}
	return domainerrors.ErrBatchNotFound
}

func (s *Store) UpdateRecipientsForBatch(
	_ context.Context,
	distributionID string,
	batchNumber int,
	status entities.RecipientStatus,
	txID string,
	lastError string,
	updatedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.recipients[strings.TrimSpace(distributionID)]
	for i, recipient := range stored {
		if recipient.BatchNumber != batchNumber {
			continue
		}
		stored[i].Status = status
		stored[i].TxID = txID
		stored[i].LastError = lastError
		stored[i].UpdatedAt = updatedAt
	}
	return nil
}

func (s *Store) ListRecipients(_ context.Context, distributionID string, limit, offset int) ([]entities.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.recipients[strings.TrimSpace(distributionID)]
	if offset >= len(stored) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(stored) {
		end = len(stored)
	}
	recipients := make([]entities.Recipient, 0, end-offset)
	for _, recipient := range stored[offset:end] {
		recipients = append(recipients, recipient.Clone())
	}
	return recipients, nil
}

func (s *Store) CountRecipients(_ context.Context, distributionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recipients[strings.TrimSpace(distributionID)]), nil
}

func (s *Store) CountBatchesByStatus(_ context.Context, distributionID string) (map[entities.BatchStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[entities.BatchStatus]int)
	for _, batch := range s.batches[strings.TrimSpace(distributionID)] {
		counts[batch.Status]++
	}
	return counts, nil
}

func (s *Store) SumCompletedBatchAmounts(_ context.Context, distributionID string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := big.NewInt(0)
	for _, batch := range s.batches[strings.TrimSpace(distributionID)] {
		if batch.Status == entities.BatchStatusCompleted && batch.TotalAmount != nil {
			total.Add(total, batch.TotalAmount)
		}
	}
	return total, nil
}

func (s *Store) CountProcessingBatches(_ context.Context, distributionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, batch := range s.batches[strings.TrimSpace(distributionID)] {
		if batch.Status == entities.BatchStatusProcessing {
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

var _ ports.DistributionRepository = (*Store)(nil)
var _ ports.SnapshotReader = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
