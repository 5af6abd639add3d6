package entities

import (
	"math/big"
	"time"
)

type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusCompleted RecipientStatus = "completed"
	RecipientStatusFailed    RecipientStatus = "failed"
)

// Recipient is one (distribution, address) payout line. EligibleBalance is
// min(PreviousBalance, CurrentBalance), the anti-gaming weight the reward was
// computed from. ShareBasisPoints is display-only and never feeds arithmetic.
// Status mirrors the owning batch's outcome and carries the same TxID or
// error message.
type Recipient struct {
	DistributionID   string
	Address          string
	PreviousBalance  *big.Int
	CurrentBalance   *big.Int
	EligibleBalance  *big.Int
	RewardAmount     *big.Int
	ShareBasisPoints int64
	BatchNumber      int
	Status           RecipientStatus
	TxID             string
	LastError        string
	UpdatedAt        time.Time
}

func (r Recipient) Clone() Recipient {
	copied := r
	if r.PreviousBalance != nil {
		copied.PreviousBalance = new(big.Int).Set(r.PreviousBalance)
	}
	if r.CurrentBalance != nil {
		copied.CurrentBalance = new(big.Int).Set(r.CurrentBalance)
	}
	if r.EligibleBalance != nil {
		copied.EligibleBalance = new(big.Int).Set(r.EligibleBalance)
	}
	if r.RewardAmount != nil {
		copied.RewardAmount = new(big.Int).Set(r.RewardAmount)
	}
	return copied
}
