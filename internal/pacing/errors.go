package pacing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig marks a malformed PaceConfig. It is fatal to Generate: no
// schedule is returned.
var ErrInvalidConfig = errors.New("invalid pace config")

// ErrInsufficientWindow marks a window too narrow to hold every selected
// match at the configured spacing.
var ErrInsufficientWindow = errors.New("insufficient window")

// InsufficientWindowError is returned by Generate together with the partial
// schedule when some matches could not be placed. Callers recover by raising
// the window width or lowering the cap or the minimum delay.
type InsufficientWindowError struct {
	Requested int
	Placed    int
	// Unplaced holds the IDs of the matches that did not fit, best score
	// first.
	Unplaced []string
}

func (e *InsufficientWindowError) Error() string {
	return fmt.Sprintf("insufficient window: placed %d of %d (unplaced: %s)",
		e.Placed, e.Requested, strings.Join(e.Unplaced, ", "))
}

func (e *InsufficientWindowError) Is(target error) bool { return target == ErrInsufficientWindow }
