package apply

import "errors"

var (
	// ErrNotFound is returned for an unknown scheduled item ID.
	ErrNotFound = errors.New("scheduled item not found")

	// ErrAlreadyInFlight is returned by Send when the item is already
	// SENDING. Callers treat it as a benign no-op.
	ErrAlreadyInFlight = errors.New("send already in flight")

	// ErrAlreadyTerminal is returned by Send when the item is SENT or
	// FAILED. Callers treat it as a benign no-op.
	ErrAlreadyTerminal = errors.New("item already in a terminal state")

	// ErrInvalidTransition signals a caller bug: Complete on an item that is
	// not SENDING, or with a non-terminal outcome.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSubmissionFailed wraps an error reported by the submission
	// transport. The item is recorded as FAILED and may be retried.
	ErrSubmissionFailed = errors.New("submission failed")
)

// IsBenign reports whether err is one of the idempotency guards that a
// caller should treat as a no-op.
func IsBenign(err error) bool {
	return errors.Is(err, ErrAlreadyInFlight) || errors.Is(err, ErrAlreadyTerminal)
}
