package entities

import (
	"math/big"
	"time"
)

type SnapshotStatus string

const (
	SnapshotStatusCollecting SnapshotStatus = "collecting"
	SnapshotStatusCompleted  SnapshotStatus = "completed"
	SnapshotStatusFailed     SnapshotStatus = "failed"
)

// Snapshot is one period's materialized view of token holder balances.
// Cursor is the opaque resume token persisted after every page so an
// interrupted collection continues where it stopped instead of restarting.
type Snapshot struct {
	ID           string
	PeriodID     string
	TokenAddress string
	Status       SnapshotStatus
	Cursor       string
	HolderCount  int
	TotalBalance *big.Int
	LastError    string
	StartedAt    time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

// HolderBalance is one address's balance inside a snapshot. Balances are
// upserted per page, so replaying a page after a crash converges.
type HolderBalance struct {
	SnapshotID string
	Address    string
	Balance    *big.Int
}

// Clone returns a deep copy. Balances are big.Int pointers, so stores that
// hand entities across goroutines must not share the underlying words.
func (s Snapshot) Clone() Snapshot {
	copied := s
	if s.TotalBalance != nil {
		copied.TotalBalance = new(big.Int).Set(s.TotalBalance)
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		copied.CompletedAt = &completedAt
	}
	return copied
}

func (h HolderBalance) Clone() HolderBalance {
	copied := h
	if h.Balance != nil {
		copied.Balance = new(big.Int).Set(h.Balance)
	}
	return copied
}
