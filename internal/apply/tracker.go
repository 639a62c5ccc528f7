package apply

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmate/autoapply-service/internal/pacing"
)

var retryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("jobmate/autoapply/retry"))

// ApplyRecord is the lifecycle state of one scheduled item. States only move
// forward along the graph in states.go.
type ApplyRecord struct {
	ScheduledItemID string     `json:"scheduledItemId"`
	State           State      `json:"state"`
	SentAt          *time.Time `json:"sentAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Reason          string     `json:"reason,omitempty"`
	// Attempt is 1 for a planned item and grows by one per Retry.
	Attempt int    `json:"attempt"`
	RetryOf string `json:"retryOf,omitempty"`
	// RetriedAs is the live item that re-plans this FAILED one.
	RetriedAs string `json:"retriedAs,omitempty"`
}

// Entry pairs a scheduled item with its current record.
type Entry struct {
	Item   pacing.ScheduledItem `json:"item"`
	Record ApplyRecord          `json:"record"`
}

// Transition describes one state change, for journals and event streams.
type Transition struct {
	ID     string    `json:"id"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// SendResult is the per-ID outcome of SendBatch.
type SendResult struct {
	ID         string
	Transition Transition
	Err        error
}

// Tracker owns the ApplyRecords of the current session.
//
// Each item has its own lock: transitions on different IDs never contend,
// and concurrent transitions on the same ID are serialized so exactly one of
// them moves the item out of PLANNED.
type Tracker struct {
	entries sync.Map // id → *entry
}

type entry struct {
	mu      sync.Mutex
	item    pacing.ScheduledItem
	rec     ApplyRecord
	dropped bool
	retries int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Register adds items in PLANNED state. IDs already tracked keep their
// current record, so re-planning never resets a sent item. It returns the
// items that were actually added.
func (t *Tracker) Register(items []pacing.ScheduledItem, at time.Time) []pacing.ScheduledItem {
	added := make([]pacing.ScheduledItem, 0, len(items))
	for _, it := range items {
		e := &entry{item: it, rec: ApplyRecord{
			ScheduledItemID: it.ID,
			State:           StatePlanned,
			UpdatedAt:       at,
			Attempt:         1,
		}}
		if _, loaded := t.entries.LoadOrStore(it.ID, e); !loaded {
			added = append(added, it)
		}
	}
	return added
}

// Send moves id from PLANNED to SENDING. Only one caller ever succeeds for a
// given id; the others get ErrAlreadyInFlight or ErrAlreadyTerminal.
func (t *Tracker) Send(id string, at time.Time) (Transition, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Transition{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.dropped:
		return Transition{}, fmt.Errorf("send %s: %w", id, ErrNotFound)
	case e.rec.State == StateSending:
		return Transition{}, fmt.Errorf("send %s: %w", id, ErrAlreadyInFlight)
	case IsTerminal(e.rec.State):
		return Transition{}, fmt.Errorf("send %s (%s): %w", id, e.rec.State, ErrAlreadyTerminal)
	}
	return e.move(StateSending, at, ""), nil
}

// SendBatch calls Send for every id. A failure on one id never stops the
// others.
func (t *Tracker) SendBatch(ids []string, at time.Time) []SendResult {
	out := make([]SendResult, 0, len(ids))
	for _, id := range ids {
		tr, err := t.Send(id, at)
		out = append(out, SendResult{ID: id, Transition: tr, Err: err})
	}
	return out
}

// Complete records the outcome of a send. outcome must be SENT or FAILED and
// the item must currently be SENDING.
func (t *Tracker) Complete(id string, outcome State, at time.Time, reason string) (Transition, error) {
	if !IsTerminal(outcome) {
		return Transition{}, fmt.Errorf("complete %s: outcome %q: %w", id, outcome, ErrInvalidTransition)
	}
	e, err := t.lookup(id)
	if err != nil {
		return Transition{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !IsTransitionAllowed(e.rec.State, outcome) {
		return Transition{}, fmt.Errorf("complete %s: %s → %s: %w", id, e.rec.State, outcome, ErrInvalidTransition)
	}
	return e.move(outcome, at, reason), nil
}

// Drop removes a PLANNED item from the plan and returns the PLANNED →
// DROPPED transition for the audit trail. Items already SENDING run to
// completion and cannot be dropped.
func (t *Tracker) Drop(id string, at time.Time) (Transition, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Transition{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.dropped:
		return Transition{}, fmt.Errorf("drop %s: %w", id, ErrNotFound)
	case e.rec.State == StateSending:
		return Transition{}, fmt.Errorf("drop %s: %w", id, ErrAlreadyInFlight)
	case IsTerminal(e.rec.State):
		return Transition{}, fmt.Errorf("drop %s (%s): %w", id, e.rec.State, ErrAlreadyTerminal)
	}
	e.dropped = true
	t.entries.Delete(id)
	return Transition{ID: id, From: e.rec.State, To: StateDropped, At: at}, nil
}

// Retry re-plans a FAILED item as a new PLANNED item due at plannedTime.
// The new item gets a derived ID. While that item is tracked, retrying the
// same failure again returns it unchanged; once it has been dropped, a
// fresh item with a new ID takes its place.
func (t *Tracker) Retry(id string, at, plannedTime time.Time) (Entry, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Entry{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.State != StateFailed {
		return Entry{}, fmt.Errorf("retry %s: state %s: %w", id, e.rec.State, ErrInvalidTransition)
	}
	if e.rec.RetriedAs != "" {
		if en, err := t.Get(e.rec.RetriedAs); err == nil {
			return en, nil
		}
		e.rec.RetriedAs = ""
	}

	e.retries++
	item := e.item
	item.ID = uuid.NewSHA1(retryNamespace, []byte(fmt.Sprintf("%s#%d", id, e.retries))).String()
	item.PlannedTime = plannedTime
	next := &entry{item: item, rec: ApplyRecord{
		ScheduledItemID: item.ID,
		State:           StatePlanned,
		UpdatedAt:       at,
		Attempt:         e.rec.Attempt + 1,
		RetryOf:         id,
	}}
	t.entries.LoadOrStore(item.ID, next)
	e.rec.RetriedAs = item.ID
	return t.Get(item.ID)
}

// Retried returns the live item re-planning the FAILED item id, if any.
func (t *Tracker) Retried(id string) (Entry, bool) {
	en, err := t.Get(id)
	if err != nil || en.Record.RetriedAs == "" {
		return Entry{}, false
	}
	next, err := t.Get(en.Record.RetriedAs)
	return next, err == nil
}

// Get returns the current entry for id.
func (t *Tracker) Get(id string) (Entry, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Entry{}, err
	}
	return e.snapshot(), nil
}

// List returns every tracked entry ordered by planned time.
func (t *Tracker) List() []Entry {
	return t.collect(func(Entry) bool { return true })
}

// Due returns the PLANNED entries whose planned time is not after now.
func (t *Tracker) Due(now time.Time) []Entry {
	return t.collect(func(en Entry) bool {
		return en.Record.State == StatePlanned && !en.Item.PlannedTime.After(now)
	})
}

func (t *Tracker) collect(keep func(Entry) bool) []Entry {
	out := make([]Entry, 0)
	t.entries.Range(func(_, v any) bool {
		if en := v.(*entry).snapshot(); keep(en) {
			out = append(out, en)
		}
		return true
	})
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.Item.PlannedTime.Compare(b.Item.PlannedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	return out
}

func (t *Tracker) lookup(id string) (*entry, error) {
	v, ok := t.entries.Load(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return v.(*entry), nil
}

// move applies a transition; e.mu must be held.
func (e *entry) move(to State, at time.Time, reason string) Transition {
	tr := Transition{ID: e.item.ID, From: e.rec.State, To: to, At: at, Reason: reason}
	e.rec.State = to
	e.rec.UpdatedAt = at
	e.rec.Reason = reason
	if to == StateSent {
		sentAt := at
		e.rec.SentAt = &sentAt
	}
	return tr
}

func (e *entry) snapshot() Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.rec
	if rec.SentAt != nil {
		sentAt := *rec.SentAt
		rec.SentAt = &sentAt
	}
	return Entry{Item: e.item, Record: rec}
}
