package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"jobmate/autoapply-service/internal/apply"
)

// Lifecycle is the part of the auto-apply service the dispatcher drives.
type Lifecycle interface {
	Send(ctx context.Context, ids []string) []apply.SendResult
	Complete(ctx context.Context, id string, outcome apply.State, reason string) (apply.Entry, error)
	Record(id string) (apply.Entry, error)
	Due() []apply.Entry
}

// Options tunes a Dispatcher.
type Options struct {
	// Interval between two sweeps of due items.
	Interval time.Duration
	// Concurrency caps in-flight submissions (minimum 1).
	Concurrency int
	// RatePerMinute caps submissions per minute; 0 means unlimited.
	RatePerMinute int
	// MaxAttempts bounds tries per item on ErrTransient (default 3).
	MaxAttempts int
	// RetryInterval is the first backoff delay (default 1s).
	RetryInterval time.Duration
}

// Report summarizes one Dispatch call.
type Report struct {
	Sent    []string `json:"sent"`
	Failed  []string `json:"failed"`
	Skipped []string `json:"skipped"`
}

// Dispatcher wraps robfig/cron and manages the submission loop.
type Dispatcher struct {
	svc         Lifecycle
	sub         Submitter
	limiter     *rate.Limiter
	concurrency int
	attempts    uint
	retryBase   time.Duration
	cron        *cron.Cron
	spec        string
}

// New creates a Dispatcher that sweeps due items every opts.Interval.
func New(svc Lifecycle, sub Submitter, opts Options) *Dispatcher {
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	}
	return &Dispatcher{
		svc:         svc,
		sub:         sub,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: max(opts.Concurrency, 1),
		attempts:    uint(cmp.Or(max(opts.MaxAttempts, 0), 3)),
		retryBase:   cmp.Or(opts.RetryInterval, time.Second),
		cron:        cron.New(cron.WithLogger(cron.DefaultLogger)),
		spec:        fmt.Sprintf("@every %s", opts.Interval),
	}
}

// Start registers the sweep job and starts the scheduler.
func (d *Dispatcher) Start(ctx context.Context) error {
	if _, err := d.cron.AddFunc(d.spec, func() { d.RunDue(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	d.cron.Start()
	log.Printf("[dispatch] Cron started, spec: %s", d.spec)
	return nil
}

// Stop shuts down the scheduler and waits for a running sweep to finish.
func (d *Dispatcher) Stop() {
	<-d.cron.Stop().Done()
	log.Println("[dispatch] Cron stopped")
}

// RunDue dispatches every PLANNED item whose planned time has passed.
func (d *Dispatcher) RunDue(ctx context.Context) Report {
	due := d.svc.Due()
	if len(due) == 0 {
		return Report{}
	}
	ids := make([]string, 0, len(due))
	for _, en := range due {
		ids = append(ids, en.Item.ID)
	}
	rep := d.Dispatch(ctx, ids)
	log.Printf("[dispatch] Sweep done: due=%d sent=%d failed=%d skipped=%d",
		len(ids), len(rep.Sent), len(rep.Failed), len(rep.Skipped))
	return rep
}

// Dispatch claims ids for sending and submits the claimed ones in parallel.
// Ids that cannot be claimed (unknown, in flight, terminal) are skipped.
// Every claimed item ends SENT or FAILED, even when ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, ids []string) Report {
	var (
		mu  sync.Mutex
		rep = Report{Sent: []string{}, Failed: []string{}, Skipped: []string{}}
		g   errgroup.Group
	)
	g.SetLimit(d.concurrency)

	for _, r := range d.svc.Send(ctx, ids) {
		if r.Err != nil {
			rep.Skipped = append(rep.Skipped, r.ID)
			continue
		}
		id := r.ID
		g.Go(func() error {
			outcome := d.submit(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if outcome == apply.StateSent {
				rep.Sent = append(rep.Sent, id)
			} else {
				rep.Failed = append(rep.Failed, id)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// submit delivers one claimed item and records the outcome.
func (d *Dispatcher) submit(ctx context.Context, id string) apply.State {
	err := d.deliver(ctx, id)
	outcome, reason := apply.StateSent, ""
	if err != nil {
		outcome = apply.StateFailed
		reason = fmt.Errorf("%w: %w", apply.ErrSubmissionFailed, err).Error()
		log.Printf("[dispatch] Submission %s failed: %v", id, err)
	}
	// The outcome must be recorded even if the sweep was cancelled.
	if _, cerr := d.svc.Complete(context.WithoutCancel(ctx), id, outcome, reason); cerr != nil {
		log.Printf("[dispatch] Complete %s error: %v", id, cerr)
	}
	return outcome
}

// deliver submits one item, retrying ErrTransient failures with exponential
// backoff. Every attempt waits for the rate limiter.
func (d *Dispatcher) deliver(ctx context.Context, id string) error {
	en, err := d.svc.Record(id)
	if err != nil {
		return err
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		if err := d.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("rate limit: %w", err))
		}
		err := d.sub.Submit(ctx, en.Item)
		if err != nil && !errors.Is(err, ErrTransient) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			log.Printf("[dispatch] Submission %s attempt %d: %v, retrying", id, attempt, err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.retryBase
	bo.MaxInterval = 10 * d.retryBase
	_, err = backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(d.attempts))
	return err
}
