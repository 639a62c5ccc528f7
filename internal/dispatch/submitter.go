// Package dispatch drives scheduled items through the external transport:
// it claims due items, submits them with bounded parallelism and records the
// outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"jobmate/autoapply-service/internal/pacing"
)

// ErrTransient marks a submission error worth retrying (timeouts, throttling).
// Any other error is a final rejection.
var ErrTransient = errors.New("transient submission error")

// Submitter delivers one application to its job board. A nil error means
// the board accepted it.
type Submitter interface {
	Submit(ctx context.Context, item pacing.ScheduledItem) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, item pacing.ScheduledItem) error

func (f SubmitterFunc) Submit(ctx context.Context, item pacing.ScheduledItem) error { return f(ctx, item) }

// SimulatedSubmitter stands in for real board integrations. It waits a fixed
// latency and fails a seeded fraction of submissions. Half of those failures
// are ErrTransient timeouts, the rest are rejections.
type SimulatedSubmitter struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	latency     time.Duration
}

// NewSimulatedSubmitter returns a SimulatedSubmitter. failureRate is clamped
// to [0, 1].
func NewSimulatedSubmitter(seed uint64, failureRate float64, latency time.Duration) *SimulatedSubmitter {
	return &SimulatedSubmitter{
		rng:         rand.New(rand.NewPCG(seed, seed+1)),
		failureRate: min(max(failureRate, 0), 1),
		latency:     latency,
	}
}

func (s *SimulatedSubmitter) Submit(ctx context.Context, item pacing.ScheduledItem) error {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()
	switch {
	case roll < s.failureRate/2:
		return fmt.Errorf("%s timed out for job %s: %w", item.Board, item.JobID, ErrTransient)
	case roll < s.failureRate:
		return fmt.Errorf("%s rejected application for job %s", item.Board, item.JobID)
	}
	return nil
}
