package entities

import (
	"math/big"
	"time"
)

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// batchTransitions is the closed transition table for a batch. failed may
// re-enter processing while retries remain. completed is terminal.
var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusPending:    {BatchStatusProcessing},
	BatchStatusProcessing: {BatchStatusCompleted, BatchStatusFailed},
	BatchStatusFailed:     {BatchStatusProcessing, BatchStatusPending},
	BatchStatusCompleted:  {},
}

func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BatchMember is one (address, amount) transfer inside a batch.
type BatchMember struct {
	Address string
	Amount  *big.Int
}

// ExecutionRecord is the confirmed on-chain result of a batch transfer.
// It exists only on completed batches.
type ExecutionRecord struct {
	TxID              string
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	BlockNumber       uint64
	ConfirmedAt       time.Time
}

// Batch is one execution unit of a distribution: a contiguous slice of the
// ordered recipient list, numbered from 1. Members preserve that order, and
// TotalAmount is the exact sum of member amounts.
type Batch struct {
	DistributionID string
	Number         int
	Members        []BatchMember
	RecipientCount int
	TotalAmount    *big.Int
	Status         BatchStatus
	RetryCount     int
	MaxRetries     int
	LastError      string
	Execution      *ExecutionRecord
	UpdatedAt      time.Time
}

// RetriesExhausted reports whether the batch may no longer be attempted
// without an operator reset.
func (b Batch) RetriesExhausted() bool {
	return b.RetryCount >= b.MaxRetries
}

func (m BatchMember) Clone() BatchMember {
	copied := m
	if m.Amount != nil {
		copied.Amount = new(big.Int).Set(m.Amount)
	}
	return copied
}

func (e ExecutionRecord) Clone() ExecutionRecord {
	copied := e
	if e.EffectiveGasPrice != nil {
		copied.EffectiveGasPrice = new(big.Int).Set(e.EffectiveGasPrice)
	}
	return copied
}

func (b Batch) Clone() Batch {
	copied := b
	if b.Members != nil {
		copied.Members = make([]BatchMember, len(b.Members))
		for i, member := range b.Members {
			copied.Members[i] = member.Clone()
		}
	}
	if b.TotalAmount != nil {
		copied.TotalAmount = new(big.Int).Set(b.TotalAmount)
	}
	if b.Execution != nil {
		execution := b.Execution.Clone()
		copied.Execution = &execution
	}
	return copied
}
