package commands

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"jubilee/contexts/rewards-core/snapshot-service/adapters/memory"
	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/snapshot-service/domain/errors"
	"jubilee/contexts/rewards-core/snapshot-service/ports"
)

type fakeHolderIndex struct {
	pages map[string]ports.HolderPage
	fail  map[string]error
	calls []string
}

func (f *fakeHolderIndex) FetchHolders(
	_ context.Context,
	_ string,
	cursor string,
	_ int,
) (ports.HolderPage, error) {
	f.calls = append(f.calls, cursor)
	if err, ok := f.fail[cursor]; ok {
		delete(f.fail, cursor)
		return ports.HolderPage{}, err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return ports.HolderPage{}, errors.New("unknown cursor")
	}
	return page, nil
}

func newCollectUseCase(index ports.HolderIndex) (UseCase, *memory.Store) {
	store := memory.NewStore(nil)
	return UseCase{
		Repository: store,
		Holders:    index,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
		PageSize:   2,
	}, store
}

func TestCollectPaginatesAndCompletes(t *testing.T) {
	index := &fakeHolderIndex{
		pages: map[string]ports.HolderPage{
			"": {
				Holders: []ports.AddressBalance{
					{Address: "0xAAA", Balance: big.NewInt(1000)},
					{Address: "0xBBB", Balance: big.NewInt(2000)},
				},
				NextCursor: "page-2",
				HasMore:    true,
			},
			"page-2": {
				Holders: []ports.AddressBalance{
					{Address: "0xCCC", Balance: big.NewInt(300)},
				},
			},
		},
	}
	usecase, store := newCollectUseCase(index)

	snapshot, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xToken",
	})
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if snapshot.Status != entities.SnapshotStatusCompleted {
		t.Fatalf("expected completed snapshot, got %s", snapshot.Status)
	}
	if snapshot.HolderCount != 3 {
		t.Fatalf("expected 3 holders, got %d", snapshot.HolderCount)
	}
	if snapshot.TotalBalance.Cmp(big.NewInt(3300)) != 0 {
		t.Fatalf("expected total balance 3300, got %s", snapshot.TotalBalance)
	}
	if snapshot.Cursor != "" {
		t.Fatalf("expected cursor cleared on completion, got %q", snapshot.Cursor)
	}

	balances, err := store.HolderBalances(context.Background(), snapshot.ID)
	if err != nil {
		t.Fatalf("holder balances failed: %v", err)
	}
	if balances["0xaaa"].Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected lowercased address with balance 1000, got %v", balances)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "snapshot.completed" {
		t.Fatalf("expected one snapshot.completed outbox row, got %+v", pending)
	}
}

func TestCollectResumesFromPersistedCursor(t *testing.T) {
	index := &fakeHolderIndex{
		pages: map[string]ports.HolderPage{
			"": {
				Holders: []ports.AddressBalance{
					{Address: "0xaaa", Balance: big.NewInt(10)},
				},
				NextCursor: "page-2",
				HasMore:    true,
			},
			"page-2": {
				Holders: []ports.AddressBalance{
					{Address: "0xbbb", Balance: big.NewInt(20)},
				},
			},
		},
		fail: map[string]error{"page-2": errors.New("index outage")},
	}
	usecase, store := newCollectUseCase(index)

	_, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xtoken",
	})
	if err == nil {
		t.Fatalf("expected first collect to fail on page 2")
	}

	stored, err := store.GetSnapshot(context.Background(), "2026-08")
	if err != nil {
		t.Fatalf("get snapshot failed: %v", err)
	}
	if stored.Status != entities.SnapshotStatusFailed {
		t.Fatalf("expected failed snapshot, got %s", stored.Status)
	}
	if stored.Cursor != "page-2" {
		t.Fatalf("expected cursor retained for resume, got %q", stored.Cursor)
	}

	snapshot, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xtoken",
	})
	if err != nil {
		t.Fatalf("resume collect failed: %v", err)
	}
	if snapshot.Status != entities.SnapshotStatusCompleted {
		t.Fatalf("expected completed snapshot after resume, got %s", snapshot.Status)
	}
	if snapshot.HolderCount != 2 {
		t.Fatalf("expected 2 holders after resume, got %d", snapshot.HolderCount)
	}

	// Resume must continue from the stored cursor, not refetch page one.
	if index.calls[len(index.calls)-1] != "page-2" {
		t.Fatalf("expected final fetch from cursor page-2, calls were %v", index.calls)
	}
	for _, cursor := range index.calls[1:] {
		if cursor == "" {
			t.Fatalf("expected no refetch of first page after resume, calls were %v", index.calls)
		}
	}
}

func TestCollectRejectsCompletedPeriod(t *testing.T) {
	index := &fakeHolderIndex{
		pages: map[string]ports.HolderPage{
			"": {Holders: []ports.AddressBalance{{Address: "0xaaa", Balance: big.NewInt(1)}}},
		},
	}
	usecase, _ := newCollectUseCase(index)

	if _, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xtoken",
	}); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	_, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xtoken",
	})
	if !errors.Is(err, domainerrors.ErrSnapshotCompleted) {
		t.Fatalf("expected ErrSnapshotCompleted, got %v", err)
	}
}

func TestCollectRejectsTokenMismatch(t *testing.T) {
	index := &fakeHolderIndex{
		pages: map[string]ports.HolderPage{
			"": {
				Holders:    []ports.AddressBalance{{Address: "0xaaa", Balance: big.NewInt(1)}},
				NextCursor: "page-2",
				HasMore:    true,
			},
		},
		fail: map[string]error{"page-2": errors.New("index outage")},
	}
	usecase, _ := newCollectUseCase(index)

	if _, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xtoken",
	}); err == nil {
		t.Fatalf("expected collect to fail")
	}

	_, err := usecase.Collect(context.Background(), CollectCommand{
		PeriodID:     "2026-08",
		TokenAddress: "0xother",
	})
	if !errors.Is(err, domainerrors.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}
