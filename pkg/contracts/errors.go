package contracts

import "errors"

// Structural errors abort the operation entirely; no partial state change
// survives a failed call. Denial outcomes are not errors (see Decision).
var (
	// ErrInvalidParameter is returned for malformed policy bounds or an
	// out-of-enum status value.
	ErrInvalidParameter = errors.New("chronicler: invalid parameter")
	// ErrNotFound is returned for an unknown policy, batch, action or
	// assignment.
	ErrNotFound = errors.New("chronicler: not found")
	// ErrDuplicateAction is returned when an action id has already been logged.
	ErrDuplicateAction = errors.New("chronicler: duplicate action id")
	// ErrInvalidStatus is returned when a status value is outside the enum.
	ErrInvalidStatus = errors.New("chronicler: invalid action status")
	// ErrEmptyBatch is returned when sealing with an empty pending queue.
	ErrEmptyBatch = errors.New("chronicler: pending queue is empty")
	// ErrMissingReference is returned when a seal lacks an external data
	// reference.
	ErrMissingReference = errors.New("chronicler: external data reference required")
	// ErrNoOp is returned when a status update would not change anything.
	ErrNoOp = errors.New("chronicler: status unchanged")
)
