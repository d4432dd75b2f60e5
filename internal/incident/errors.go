package incident

import "errors"

var (
	// ErrInvalidTransition is returned when a draft status change falls
	// outside draft -> analyzing -> ready -> submitted.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBusy is returned when a save or submit is attempted while another
	// submission is already in flight.
	ErrBusy = errors.New("submission already in flight")

	// ErrNotReady is returned when submission is attempted before the
	// submission gate is satisfied.
	ErrNotReady = errors.New("draft does not satisfy the submission gate")

	// ErrClosed is returned for operations on a workspace that has been
	// torn down.
	ErrClosed = errors.New("workspace is closed")
)
