package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/domain/entities"
	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
)

func seedReady(t *testing.T, store *Store) {
	t.Helper()
	err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:       "dist-1",
		PeriodID: "2026-08",
		Status:   entities.DistributionStatusReady,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestClaimDistributionRejectsHeldLease(t *testing.T) {
	store := NewStore(nil)
	seedReady(t, store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-a", now, time.Hour); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	_, err := store.ClaimDistribution(context.Background(), "2026-08", "run-b", now.Add(time.Minute), time.Hour)
	if !errors.Is(err, domainerrors.ErrDistributionBusy) {
		t.Fatalf("expected ErrDistributionBusy while lease held, got %v", err)
	}
}

func TestClaimDistributionTakesOverExpiredLease(t *testing.T) {
	store := NewStore(nil)
	seedReady(t, store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-a", now, time.Minute); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	claimed, err := store.ClaimDistribution(context.Background(), "2026-08", "run-b", now.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("takeover of expired lease failed: %v", err)
	}
	if claimed.LeaseOwner != "run-b" {
		t.Fatalf("expected run-b to own the lease, got %q", claimed.LeaseOwner)
	}
}

func TestClaimDistributionIsReentrantForOwner(t *testing.T) {
	store := NewStore(nil)
	seedReady(t, store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-a", now, time.Hour); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-a", now.Add(time.Minute), time.Hour); err != nil {
		t.Fatalf("owner reclaim failed: %v", err)
	}
}

func TestReleaseDistributionGuardsOnOwner(t *testing.T) {
	store := NewStore(nil)
	seedReady(t, store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-a", now, time.Hour); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	err := store.ReleaseDistribution(context.Background(), "2026-08", "run-b", entities.DistributionStatusProcessing, nil, nil, now)
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict for non-owner release, got %v", err)
	}
	released := now.Add(time.Minute)
	if err := store.ReleaseDistribution(context.Background(), "2026-08", "run-a", entities.DistributionStatusProcessing, nil, nil, released); err != nil {
		t.Fatalf("owner release failed: %v", err)
	}

	distribution, err := store.GetDistribution(context.Background(), "2026-08")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if distribution.LeaseOwner != "" || distribution.LeaseExpiresAt != nil {
		t.Fatalf("lease fields not cleared: %+v", distribution)
	}
	if !distribution.UpdatedAt.Equal(released) {
		t.Fatalf("release must stamp the supplied time, got %s", distribution.UpdatedAt)
	}
}

func TestClaimDistributionRejectsCalculating(t *testing.T) {
	store := NewStore(nil)
	err := store.CreateDistribution(context.Background(), entities.Distribution{
		ID:       "dist-1",
		PeriodID: "2026-08",
		Status:   entities.DistributionStatusCalculating,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if _, err := store.ClaimDistribution(context.Background(), "2026-08", "run-a", now, time.Hour); !errors.Is(err, domainerrors.ErrDistributionBusy) {
		t.Fatalf("expected ErrDistributionBusy for calculating distribution, got %v", err)
	}
}
