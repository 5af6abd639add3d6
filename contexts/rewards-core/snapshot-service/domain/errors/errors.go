package errors

import "errors"

var (
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrSnapshotExists       = errors.New("snapshot already exists")
	ErrSnapshotCompleted    = errors.New("snapshot already completed")
	ErrInvalidSnapshotInput = errors.New("invalid snapshot input")
	ErrTokenMismatch        = errors.New("snapshot was started for a different token")
	ErrHolderIndexFailure   = errors.New("holder index request failed")
	ErrConflict             = errors.New("snapshot store conflict")
)
