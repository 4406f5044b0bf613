package operations

import "errors"

var (
	// ErrOperationNotFound indicates an unknown operation identifier.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrAlreadyTerminal indicates a lifecycle action targeting an operation
	// that already completed, failed, or was canceled.
	ErrAlreadyTerminal = errors.New("operation already terminal")

	// ErrQueueFull indicates the pending queue reached its admission bound.
	ErrQueueFull = errors.New("operation queue is full")

	// ErrUnknownType indicates a submission with a type outside the closed set.
	ErrUnknownType = errors.New("unknown operation type")

	// ErrSchedulerStopped indicates a submission after shutdown began.
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)
