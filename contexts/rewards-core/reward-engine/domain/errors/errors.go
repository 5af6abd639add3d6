package errors

import "errors"

var (
	ErrDistributionNotFound     = errors.New("distribution not found")
	ErrDistributionExists       = errors.New("distribution already exists")
	ErrDistributionCompleted    = errors.New("distribution already completed")
	ErrDistributionBusy         = errors.New("distribution is claimed by another run")
	ErrInvalidDistributionInput = errors.New("invalid distribution input")
	ErrInvalidDistributionState = errors.New("distribution state does not allow this operation")
	ErrInvalidStateTransition   = errors.New("invalid status transition")
	ErrBatchNotFound            = errors.New("batch not found")
	ErrBatchUnreconciled        = errors.New("batch has an unresolved broadcast and must be reconciled")
	ErrSnapshotNotFound         = errors.New("snapshot not found for period")
	ErrSnapshotNotCompleted     = errors.New("snapshot is not completed")
	ErrPriceOracleFailure       = errors.New("price oracle request failed")
	ErrExecutionFailure         = errors.New("batch transfer execution failed")
	ErrExecutionUnconfirmed     = errors.New("batch transfer outcome unknown")
	ErrConflict                 = errors.New("distribution store conflict")
)
