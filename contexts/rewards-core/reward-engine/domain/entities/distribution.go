package entities

import (
	"math/big"
	"time"
)

type DistributionStatus string

const (
	DistributionStatusCalculating DistributionStatus = "calculating"
	DistributionStatusReady       DistributionStatus = "ready"
	DistributionStatusProcessing  DistributionStatus = "processing"
	DistributionStatusCompleted   DistributionStatus = "completed"
	DistributionStatusFailed      DistributionStatus = "failed"
)

// distributionTransitions is the closed transition table for a distribution.
// calculating and ready may loop back to calculating because a recompute
// supersedes the previous result set. completed is terminal.
var distributionTransitions = map[DistributionStatus][]DistributionStatus{
	DistributionStatusCalculating: {DistributionStatusCalculating, DistributionStatusReady, DistributionStatusFailed},
	DistributionStatusReady:       {DistributionStatusCalculating, DistributionStatusProcessing},
	DistributionStatusProcessing:  {DistributionStatusCalculating, DistributionStatusProcessing, DistributionStatusCompleted, DistributionStatusFailed},
	DistributionStatusFailed:      {DistributionStatusCalculating, DistributionStatusReady, DistributionStatusProcessing},
	DistributionStatusCompleted:   {},
}

// CanTransitionTo reports whether the status may move to next.
func (s DistributionStatus) CanTransitionTo(next DistributionStatus) bool {
	for _, allowed := range distributionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible without an
// explicit operator retry. failed is re-enterable, so only completed counts.
func (s DistributionStatus) IsTerminal() bool {
	return s == DistributionStatusCompleted
}

// DistributionStats aggregates the outcome of one calculation pass. The
// exclusion counters subdivide every address that was considered but did not
// receive a reward, so TotalHolders equals EligibleCount plus the sum of the
// exclusion counters.
type DistributionStats struct {
	TotalHolders        int
	EligibleCount       int
	PolicyExcluded      int
	RestrictedExcluded  int
	NotHeldPrevious     int
	NotHeldCurrent      int
	BelowMinimum        int
	ZeroReward          int
	TotalEligibleWeight *big.Int
	TotalDistributed    *big.Int
}

// Distribution is one reward period's payout run. The reward pool, threshold
// and batch size are frozen on the entity at calculation time so later config
// changes never alter an approved run. LeaseOwner and LeaseExpiresAt implement
// the single-writer claim taken by a processing pass.
type Distribution struct {
	ID                 string
	PeriodID           string
	PreviousPeriodID   string
	PreviousSnapshotID string
	CurrentSnapshotID  string
	MinHolding         *big.Int
	RewardPool         *big.Int
	BatchSize          int
	MaxRetries         int
	Stats              DistributionStats
	Status             DistributionStatus
	LeaseOwner         string
	LeaseExpiresAt     *time.Time
	LastError          string
	CreatedAt          time.Time
	CompletedAt        *time.Time
	UpdatedAt          time.Time
}

// LeaseHeldAt reports whether another run still holds the processing lease.
func (d Distribution) LeaseHeldAt(now time.Time) bool {
	return d.LeaseOwner != "" && d.LeaseExpiresAt != nil && d.LeaseExpiresAt.After(now)
}

func (s DistributionStats) Clone() DistributionStats {
	copied := s
	if s.TotalEligibleWeight != nil {
		copied.TotalEligibleWeight = new(big.Int).Set(s.TotalEligibleWeight)
	}
	if s.TotalDistributed != nil {
		copied.TotalDistributed = new(big.Int).Set(s.TotalDistributed)
	}
	return copied
}

// Clone returns a deep copy so stores can hand entities across goroutines
// without sharing big.Int words or timestamps.
func (d Distribution) Clone() Distribution {
	copied := d
	if d.MinHolding != nil {
		copied.MinHolding = new(big.Int).Set(d.MinHolding)
	}
	if d.RewardPool != nil {
		copied.RewardPool = new(big.Int).Set(d.RewardPool)
	}
	copied.Stats = d.Stats.Clone()
	if d.LeaseExpiresAt != nil {
		leaseExpiresAt := *d.LeaseExpiresAt
		copied.LeaseExpiresAt = &leaseExpiresAt
	}
	if d.CompletedAt != nil {
		completedAt := *d.CompletedAt
		copied.CompletedAt = &completedAt
	}
	return copied
}
