package commands

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/adapters/memory"
	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

func newUseCase() (UseCase, *memory.Store) {
	store := memory.NewStore(nil)
	return UseCase{
		Repository: store,
		Snapshots:  store,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
	}, store
}

func seedWorkedExample(store *memory.Store) {
	store.SeedSnapshot("2026-07", "snap-prev", true, map[string]*big.Int{
		"a": big.NewInt(1000),
		"b": big.NewInt(2000),
		"c": big.NewInt(0),
	})
	store.SeedSnapshot("2026-08", "snap-cur", true, map[string]*big.Int{
		"a": big.NewInt(500),
		"b": big.NewInt(2500),
		"c": big.NewInt(300),
	})
}

func TestCalculatePersistsOrderedRecipientsAndBatches(t *testing.T) {
	usecase, store := newUseCase()
	seedWorkedExample(store)

	distribution, err := usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(900),
		MinHolding:       big.NewInt(400),
		BatchSize:        1,
		MaxRetries:       3,
	})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if distribution.Status != entities.DistributionStatusReady {
		t.Fatalf("expected ready distribution, got %s", distribution.Status)
	}
	if distribution.PreviousSnapshotID != "snap-prev" || distribution.CurrentSnapshotID != "snap-cur" {
		t.Fatalf("snapshot ids not recorded: %+v", distribution)
	}
	if distribution.Stats.EligibleCount != 2 || distribution.Stats.NotHeldPrevious != 1 {
		t.Fatalf("unexpected stats: %+v", distribution.Stats)
	}

	recipients, err := store.ListRecipients(context.Background(), distribution.ID, 10, 0)
	if err != nil {
		t.Fatalf("list recipients failed: %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(recipients))
	}
	if recipients[0].Address != "b" || recipients[0].RewardAmount.Cmp(big.NewInt(720)) != 0 {
		t.Fatalf("expected b with 720 first, got %s with %s", recipients[0].Address, recipients[0].RewardAmount)
	}
	if recipients[0].BatchNumber != 1 || recipients[1].BatchNumber != 2 {
		t.Fatalf("expected batch numbers 1 and 2, got %d and %d",
			recipients[0].BatchNumber, recipients[1].BatchNumber)
	}

	batches, err := store.ListBatches(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("list batches failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches at size 1, got %d", len(batches))
	}
	if batches[0].TotalAmount.Cmp(big.NewInt(720)) != 0 || batches[1].TotalAmount.Cmp(big.NewInt(180)) != 0 {
		t.Fatalf("unexpected batch totals: %s, %s", batches[0].TotalAmount, batches[1].TotalAmount)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "reward.distribution.calculated" {
		t.Fatalf("expected one reward.distribution.calculated outbox row, got %+v", pending)
	}
}

func TestCalculateRejectsCompletedPeriod(t *testing.T) {
	usecase, store := newUseCase()
	seedWorkedExample(store)
	if err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:       "dist-1",
		PeriodID: "2026-08",
		Status:   entities.DistributionStatusCompleted,
	}); err != nil {
		t.Fatalf("seed distribution failed: %v", err)
	}

	_, err := usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(900),
		BatchSize:        1,
		MaxRetries:       3,
	})
	if !errors.Is(err, domainerrors.ErrDistributionCompleted) {
		t.Fatalf("expected ErrDistributionCompleted, got %v", err)
	}
}

func TestCalculateRejectsRecomputeWhileLeaseHeld(t *testing.T) {
	usecase, store := newUseCase()
	seedWorkedExample(store)

	first, err := usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(900),
		MinHolding:       big.NewInt(400),
		BatchSize:        1,
		MaxRetries:       3,
	})
	if err != nil {
		t.Fatalf("first calculate failed: %v", err)
	}
	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-other", time.Now().UTC(), time.Hour); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// A recompute while a pass holds the lease would replace recipients and
	// batches mid-execution.
	_, err = usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(9000),
		MinHolding:       big.NewInt(400),
		BatchSize:        10,
		MaxRetries:       3,
	})
	if !errors.Is(err, domainerrors.ErrDistributionBusy) {
		t.Fatalf("expected ErrDistributionBusy, got %v", err)
	}

	recipients, err := store.ListRecipients(context.Background(), first.ID, 10, 0)
	if err != nil {
		t.Fatalf("list recipients failed: %v", err)
	}
	if recipients[0].RewardAmount.Cmp(big.NewInt(720)) != 0 {
		t.Fatalf("result set must stay untouched under a held lease, got %s", recipients[0].RewardAmount)
	}
}

func TestCalculateRecomputeSupersedesResultSet(t *testing.T) {
	usecase, store := newUseCase()
	seedWorkedExample(store)

	first, err := usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(900),
		MinHolding:       big.NewInt(400),
		BatchSize:        1,
		MaxRetries:       3,
	})
	if err != nil {
		t.Fatalf("first calculate failed: %v", err)
	}

	second, err := usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(9000),
		MinHolding:       big.NewInt(400),
		BatchSize:        10,
		MaxRetries:       3,
	})
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("recompute must keep the distribution id, got %s and %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("recompute must keep CreatedAt")
	}

	recipients, err := store.ListRecipients(context.Background(), second.ID, 10, 0)
	if err != nil {
		t.Fatalf("list recipients failed: %v", err)
	}
	if recipients[0].RewardAmount.Cmp(big.NewInt(7200)) != 0 {
		t.Fatalf("recompute did not supersede rewards, got %s", recipients[0].RewardAmount)
	}
	batches, err := store.ListBatches(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("list batches failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected a single batch at size 10, got %d", len(batches))
	}
}

func TestCalculateFailsFastOnNotCompletedSnapshot(t *testing.T) {
	usecase, store := newUseCase()
	store.SeedSnapshot("2026-07", "snap-prev", true, map[string]*big.Int{"a": big.NewInt(10)})
	store.SeedSnapshot("2026-08", "snap-cur", false, map[string]*big.Int{"a": big.NewInt(10)})

	_, err := usecase.Calculate(context.Background(), CalculateCommand{
		PeriodID:         "2026-08",
		PreviousPeriodID: "2026-07",
		RewardPool:       big.NewInt(100),
		BatchSize:        1,
		MaxRetries:       1,
	})
	if !errors.Is(err, domainerrors.ErrSnapshotNotCompleted) {
		t.Fatalf("expected ErrSnapshotNotCompleted, got %v", err)
	}
	if _, err := store.GetDistribution(context.Background(), "2026-08"); !errors.Is(err, domainerrors.ErrDistributionNotFound) {
		t.Fatalf("snapshot failure must leave no distribution, got %v", err)
	}
}

func TestCalculateValidatesInput(t *testing.T) {
	usecase, store := newUseCase()
	seedWorkedExample(store)

	bad := []CalculateCommand{
		{PeriodID: "", PreviousPeriodID: "2026-07", RewardPool: big.NewInt(1), BatchSize: 1, MaxRetries: 1},
		{PeriodID: "2026-08", PreviousPeriodID: "2026-08", RewardPool: big.NewInt(1), BatchSize: 1, MaxRetries: 1},
		{PeriodID: "2026-08", PreviousPeriodID: "2026-07", RewardPool: nil, BatchSize: 1, MaxRetries: 1},
		{PeriodID: "2026-08", PreviousPeriodID: "2026-07", RewardPool: big.NewInt(0), BatchSize: 1, MaxRetries: 1},
		{PeriodID: "2026-08", PreviousPeriodID: "2026-07", RewardPool: big.NewInt(1), BatchSize: 0, MaxRetries: 1},
		{PeriodID: "2026-08", PreviousPeriodID: "2026-07", RewardPool: big.NewInt(1), BatchSize: 1, MaxRetries: 0},
		{PeriodID: "2026-08", PreviousPeriodID: "2026-07", RewardPool: big.NewInt(1), MinHolding: big.NewInt(-1), BatchSize: 1, MaxRetries: 1},
	}
	for i, cmd := range bad {
		if _, err := usecase.Calculate(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidDistributionInput) {
			t.Fatalf("case %d: expected ErrInvalidDistributionInput, got %v", i, err)
		}
	}
}

func TestRetryResetsExhaustedBatches(t *testing.T) {
	usecase, store := newUseCase()
	if err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:        "dist-1",
		PeriodID:  "2026-08",
		Status:    entities.DistributionStatusFailed,
		LastError: "2 batches failed",
	}); err != nil {
		t.Fatalf("seed distribution failed: %v", err)
	}
	if err := store.ReplaceBatches(context.Background(), "dist-1", []entities.Batch{
		{DistributionID: "dist-1", Number: 1, Status: entities.BatchStatusCompleted, TotalAmount: big.NewInt(10), MaxRetries: 2},
		{DistributionID: "dist-1", Number: 2, Status: entities.BatchStatusFailed, TotalAmount: big.NewInt(10), RetryCount: 2, MaxRetries: 2},
	}); err != nil {
		t.Fatalf("seed batches failed: %v", err)
	}

	distribution, err := usecase.Retry(context.Background(), "2026-08")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if distribution.Status != entities.DistributionStatusReady || distribution.LastError != "" {
		t.Fatalf("expected ready with cleared error, got %s %q", distribution.Status, distribution.LastError)
	}

	batch, err := store.GetBatch(context.Background(), "dist-1", 2)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if batch.RetryCount != 0 {
		t.Fatalf("expected retry count reset, got %d", batch.RetryCount)
	}
	completed, err := store.GetBatch(context.Background(), "dist-1", 1)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if completed.Status != entities.BatchStatusCompleted {
		t.Fatalf("completed batch must not be touched, got %s", completed.Status)
	}
}

func TestRetryRejectsNonFailedDistribution(t *testing.T) {
	usecase, store := newUseCase()
	if err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:       "dist-1",
		PeriodID: "2026-08",
		Status:   entities.DistributionStatusReady,
	}); err != nil {
		t.Fatalf("seed distribution failed: %v", err)
	}
	if _, err := usecase.Retry(context.Background(), "2026-08"); !errors.Is(err, domainerrors.ErrInvalidDistributionState) {
		t.Fatalf("expected ErrInvalidDistributionState, got %v", err)
	}
}

func seedProcessingBatch(t *testing.T, store *memory.Store) {
	t.Helper()
	if err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:       "dist-1",
		PeriodID: "2026-08",
		Status:   entities.DistributionStatusProcessing,
	}); err != nil {
		t.Fatalf("seed distribution failed: %v", err)
	}
	if err := store.ReplaceBatches(context.Background(), "dist-1", []entities.Batch{
		{DistributionID: "dist-1", Number: 1, Status: entities.BatchStatusProcessing, TotalAmount: big.NewInt(30), MaxRetries: 2},
	}); err != nil {
		t.Fatalf("seed batches failed: %v", err)
	}
	if err := store.ReplaceRecipients(context.Background(), "dist-1", []entities.Recipient{
		{DistributionID: "dist-1", Address: "a", BatchNumber: 1, RewardAmount: big.NewInt(30), Status: entities.RecipientStatusPending},
	}); err != nil {
		t.Fatalf("seed recipients failed: %v", err)
	}
}

func TestReconcileCompletedRecordsReceipt(t *testing.T) {
	usecase, store := newUseCase()
	seedProcessingBatch(t, store)

	confirmedAt := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	batch, err := usecase.Reconcile(context.Background(), ReconcileCommand{
		PeriodID:    "2026-08",
		BatchNumber: 1,
		Outcome:     ReconcileOutcomeCompleted,
		Receipt: &ports.ExecutionReceipt{
			TxID:        "0xtx",
			GasUsed:     21000,
			BlockNumber: 123,
			ConfirmedAt: confirmedAt,
		},
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if batch.Status != entities.BatchStatusCompleted {
		t.Fatalf("expected completed batch, got %s", batch.Status)
	}
	if batch.Execution == nil || batch.Execution.TxID != "0xtx" {
		t.Fatalf("expected execution record with tx id, got %+v", batch.Execution)
	}

	recipients, err := store.ListRecipients(context.Background(), "dist-1", 10, 0)
	if err != nil {
		t.Fatalf("list recipients failed: %v", err)
	}
	if recipients[0].Status != entities.RecipientStatusCompleted || recipients[0].TxID != "0xtx" {
		t.Fatalf("recipient not stamped completed: %+v", recipients[0])
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "reward.batch.completed" {
		t.Fatalf("expected reward.batch.completed outbox row, got %+v", pending)
	}
}

func TestReconcileCompletedRequiresReceipt(t *testing.T) {
	usecase, store := newUseCase()
	seedProcessingBatch(t, store)

	_, err := usecase.Reconcile(context.Background(), ReconcileCommand{
		PeriodID:    "2026-08",
		BatchNumber: 1,
		Outcome:     ReconcileOutcomeCompleted,
	})
	if !errors.Is(err, domainerrors.ErrInvalidDistributionInput) {
		t.Fatalf("expected ErrInvalidDistributionInput without receipt, got %v", err)
	}
}

func TestReconcileFailedCountsRetry(t *testing.T) {
	usecase, store := newUseCase()
	seedProcessingBatch(t, store)

	batch, err := usecase.Reconcile(context.Background(), ReconcileCommand{
		PeriodID:     "2026-08",
		BatchNumber:  1,
		Outcome:      ReconcileOutcomeFailed,
		ErrorMessage: "tx never mined",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if batch.Status != entities.BatchStatusFailed || batch.RetryCount != 1 {
		t.Fatalf("expected failed batch with one retry counted, got %s retry=%d", batch.Status, batch.RetryCount)
	}
	if batch.LastError != "tx never mined" {
		t.Fatalf("expected error message recorded, got %q", batch.LastError)
	}
}

func TestReconcileRejectsNonProcessingBatch(t *testing.T) {
	usecase, store := newUseCase()
	if err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:       "dist-1",
		PeriodID: "2026-08",
		Status:   entities.DistributionStatusReady,
	}); err != nil {
		t.Fatalf("seed distribution failed: %v", err)
	}
	if err := store.ReplaceBatches(context.Background(), "dist-1", []entities.Batch{
		{DistributionID: "dist-1", Number: 1, Status: entities.BatchStatusPending, TotalAmount: big.NewInt(1), MaxRetries: 1},
	}); err != nil {
		t.Fatalf("seed batches failed: %v", err)
	}

	_, err := usecase.Reconcile(context.Background(), ReconcileCommand{
		PeriodID:    "2026-08",
		BatchNumber: 1,
		Outcome:     ReconcileOutcomeFailed,
	})
	if !errors.Is(err, domainerrors.ErrInvalidDistributionState) {
		t.Fatalf("expected ErrInvalidDistributionState, got %v", err)
	}
}
