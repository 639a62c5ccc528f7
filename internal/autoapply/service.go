// Package autoapply contains the business logic of the auto-apply service.
// It is transport-agnostic: used by both the REST handler and the gRPC server.
package autoapply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/keywords"
	"jobmate/autoapply-service/internal/match"
	"jobmate/autoapply-service/internal/pacing"
)

// ─── Collaborators ───────────────────────────────────────────────────────────

// Journal records plans and transitions outside the process. Failures are
// logged and never fail the operation.
type Journal interface {
	SavePlanned(ctx context.Context, items []pacing.ScheduledItem) error
	RecordTransition(ctx context.Context, tr apply.Transition) error
}

// HistoryReader is implemented by journals that can read an item's
// transitions back.
type HistoryReader interface {
	History(ctx context.Context, id string) ([]map[string]string, error)
}

// Publisher forwards plans and transitions to subscribers (UI push).
type Publisher interface {
	PublishPlan(ctx context.Context, items []pacing.ScheduledItem) error
	PublishTransition(ctx context.Context, tr apply.Transition) error
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service ties keyword extraction, scoring, scheduling and the apply
// lifecycle together for one session.
type Service struct {
	gen     *pacing.Generator
	tracker *apply.Tracker
	topN    int
	journal Journal
	pub     Publisher
	loc     *time.Location
	now     func() time.Time

	// pace is the config of the latest plan, used to place retries.
	pace    atomic.Pointer[pacing.PaceConfig]
	retryMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithJournal sets the journal. Nil disables journaling.
func WithJournal(j Journal) Option { return func(s *Service) { s.journal = j } }

// WithPublisher sets the event publisher. Nil disables publishing.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }

// WithLocation sets the time zone the send window is interpreted in.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithPace sets the pacing used to place retries until a plan is made.
func WithPace(cfg pacing.PaceConfig) Option {
	return func(s *Service) { s.setPace(cfg) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService returns a configured Service. topN is the number of JD keywords
// used when scoring postings.
func NewService(gen *pacing.Generator, tracker *apply.Tracker, topN int, opts ...Option) *Service {
	s := &Service{
		gen:     gen,
		tracker: tracker,
		topN:    topN,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the service clock in the configured location.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// ─── Matching ────────────────────────────────────────────────────────────────

// Keywords extracts the topN ranked keywords of a job description.
func (s *Service) Keywords(text string, topN int) []keywords.Keyword {
	return keywords.Extract(text, topN)
}

// Match compares a skill set with a job description.
func (s *Service) Match(skills []string, jdText string) match.Alignment {
	return match.Align(skills, keywords.Extract(jdText, s.topN))
}

// Posting is a job posting that still needs a local match score.
type Posting struct {
	pacing.Candidate
	Description string `json:"description"`
}

// ScorePostings scores each posting's title and description against the
// candidate's skills.
func (s *Service) ScorePostings(skills []string, postings []Posting) []pacing.Candidate {
	out := make([]pacing.Candidate, 0, len(postings))
	for _, p := range postings {
		c := p.Candidate
		c.MatchScore = match.Score(skills, keywords.Extract(p.Title+" "+p.Description, s.topN))
		out = append(out, c)
	}
	return out
}

// ─── Planning ────────────────────────────────────────────────────────────────

// PlanRequest is the input of Plan.
type PlanRequest struct {
	// ResumeID is the active resume; planning is refused without one.
	ResumeID string            `json:"resumeId"`
	Config   pacing.PaceConfig `json:"config"`
	// Matches arrive pre-scored from a posting source.
	Matches []pacing.Candidate `json:"matches"`
	// Postings are scored locally against Skills before planning.
	Postings []Posting `json:"postings"`
	Skills   []string  `json:"skills"`
}

// NewPlanRequest returns a request whose Config starts as a copy of
// defaults, so that decoding a partial config over it only overrides the
// fields given.
func NewPlanRequest(defaults pacing.PaceConfig) PlanRequest {
	cfg := defaults
	cfg.Boards = slices.Clone(defaults.Boards)
	cfg.RedFlags = slices.Clone(defaults.RedFlags)
	return PlanRequest{Config: cfg}
}

// PlanResult is the output of Plan.
type PlanResult struct {
	*pacing.Schedule
	// Preview is true when no matches were given and placeholders were
	// planned instead.
	Preview bool `json:"preview"`
	// Registered counts the items new to the tracker.
	Registered int `json:"registered"`
	// Warning describes why some matches are unplaced.
	Warning string `json:"warning,omitempty"`
}

// Plan builds today's schedule and registers its items as PLANNED.
//
// A *pacing.InsufficientWindowError is returned together with a usable
// result; any other error returns no result.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	if req.ResumeID == "" {
		return nil, ErrNoActiveResume
	}

	cands := make([]pacing.Candidate, 0, len(req.Matches)+len(req.Postings))
	cands = append(cands, req.Matches...)
	cands = append(cands, s.ScorePostings(req.Skills, req.Postings)...)
	preview := len(cands) == 0
	if preview {
		cands = pacing.PreviewCandidates(req.Config.DailyCap, req.Config.MinScore)
	}

	now := s.Now()
	sched, err := s.gen.Generate(cands, req.Config, now)
	if sched == nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if err != nil {
		slog.Warn("plan window too small", "resumeId", req.ResumeID, "err", err)
	}
	s.setPace(req.Config)

	added := s.tracker.Register(sched.Items, now)
	if len(added) > 0 {
		if s.journal != nil {
			if jerr := s.journal.SavePlanned(ctx, added); jerr != nil {
				slog.Warn("journal SavePlanned failed", "count", len(added), "err", jerr)
			}
		}
		if s.pub != nil {
			if perr := s.pub.PublishPlan(ctx, added); perr != nil {
				slog.Warn("publish plan failed", "err", perr)
			}
		}
	}

	slog.Info("plan generated",
		"resumeId", req.ResumeID,
		"candidates", len(cands),
		"planned", len(sched.Items),
		"unplaced", len(sched.Unplaced),
		"new", len(added),
		"preview", preview,
	)
	res := &PlanResult{Schedule: sched, Preview: preview, Registered: len(added)}
	if err != nil {
		res.Warning = err.Error()
	}
	return res, err
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Send moves every id to SENDING. Per-id failures are reported in the result
// and never stop the batch.
func (s *Service) Send(ctx context.Context, ids []string) []apply.SendResult {
	results := s.tracker.SendBatch(ids, s.Now())
	for _, r := range results {
		switch {
		case r.Err == nil:
			s.notify(ctx, r.Transition)
		case apply.IsBenign(r.Err):
			slog.Debug("send skipped", "id", r.ID, "err", r.Err)
		default:
			slog.Warn("send rejected", "id", r.ID, "err", r.Err)
		}
	}
	return results
}

// Complete records the transport's verdict for a SENDING item.
func (s *Service) Complete(ctx context.Context, id string, outcome apply.State, reason string) (apply.Entry, error) {
	tr, err := s.tracker.Complete(id, outcome, s.Now(), reason)
	if err != nil {
		if errors.Is(err, apply.ErrInvalidTransition) {
			slog.Error("invalid completion", "id", id, "outcome", outcome, "err", err)
		}
		return apply.Entry{}, err
	}
	s.notify(ctx, tr)
	return s.tracker.Get(id)
}

// Retry re-plans a FAILED item as a new PLANNED item.
//
// The plan time is the next free slot in the window of the latest plan,
// spaced from every tracked item and counted against its daily cap; see
// pacing.Generator.Slot. When neither today nor tomorrow has room, a
// *pacing.InsufficientWindowError naming id is returned. Retrying an item
// whose retry is still tracked returns that retry.
func (s *Service) Retry(ctx context.Context, id string) (apply.Entry, error) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	en, err := s.tracker.Get(id)
	if err != nil {
		return apply.Entry{}, err
	}
	if en.Record.State != apply.StateFailed {
		return apply.Entry{}, fmt.Errorf("retry %s: state %s: %w", id, en.Record.State, apply.ErrInvalidTransition)
	}
	if next, ok := s.tracker.Retried(id); ok {
		return next, nil
	}

	cfg := s.pace.Load()
	if cfg == nil {
		return apply.Entry{}, fmt.Errorf("retry %s: no pacing configured: %w", id, pacing.ErrInvalidConfig)
	}
	all := s.tracker.List()
	taken := make([]time.Time, 0, len(all))
	for _, e := range all {
		taken = append(taken, e.Item.PlannedTime)
	}

	now := s.Now()
	at, err := s.gen.Slot(*cfg, now, taken)
	if err != nil {
		var iw *pacing.InsufficientWindowError
		if errors.As(err, &iw) {
			iw.Unplaced = []string{id}
		}
		slog.Warn("retry not placed", "id", id, "err", err)
		return apply.Entry{}, fmt.Errorf("retry %s: %w", id, err)
	}

	next, err := s.tracker.Retry(id, now, at)
	if err != nil {
		return apply.Entry{}, err
	}
	items := []pacing.ScheduledItem{next.Item}
	if s.journal != nil {
		if jerr := s.journal.SavePlanned(ctx, items); jerr != nil {
			slog.Warn("journal SavePlanned failed", "id", next.Item.ID, "err", jerr)
		}
	}
	if s.pub != nil {
		if perr := s.pub.PublishPlan(ctx, items); perr != nil {
			slog.Warn("publish plan failed", "err", perr)
		}
	}
	slog.Info("retry planned", "id", id, "retry", next.Item.ID, "plannedTime", at)
	return next, nil
}

// Drop removes a PLANNED item from the plan. The drop is journaled and
// published as a PLANNED → DROPPED transition.
func (s *Service) Drop(ctx context.Context, id string) error {
	tr, err := s.tracker.Drop(id, s.Now())
	if err != nil {
		return err
	}
	s.notify(ctx, tr)
	return nil
}

// History returns the journaled transitions of id, oldest first. It needs a
// journal that implements HistoryReader.
func (s *Service) History(ctx context.Context, id string) ([]map[string]string, error) {
	hr, ok := s.journal.(HistoryReader)
	if !ok {
		return nil, ErrNoHistory
	}
	return hr.History(ctx, id)
}

// Record returns the current entry for id.
func (s *Service) Record(id string) (apply.Entry, error) { return s.tracker.Get(id) }

// Records lists every tracked entry, optionally filtered by state.
func (s *Service) Records(state apply.State) []apply.Entry {
	all := s.tracker.List()
	if state == "" {
		return all
	}
	out := make([]apply.Entry, 0, len(all))
	for _, en := range all {
		if en.Record.State == state {
			out = append(out, en)
		}
	}
	return out
}

// Due lists PLANNED entries whose planned time has passed.
func (s *Service) Due() []apply.Entry { return s.tracker.Due(s.Now()) }

func (s *Service) setPace(cfg pacing.PaceConfig) {
	cfg.Boards = slices.Clone(cfg.Boards)
	cfg.RedFlags = slices.Clone(cfg.RedFlags)
	s.pace.Store(&cfg)
}

// notify journals and publishes a transition (non-fatal).
func (s *Service) notify(ctx context.Context, tr apply.Transition) {
	if s.journal != nil {
		if err := s.journal.RecordTransition(ctx, tr); err != nil {
			slog.Warn("journal RecordTransition failed", "id", tr.ID, "err", err)
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishTransition(ctx, tr); err != nil {
			slog.Warn("publish transition failed", "id", tr.ID, "err", err)
		}
	}
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

var (
	// ErrNoActiveResume is returned by Plan when no resume is selected.
	ErrNoActiveResume = errors.New("an active resume is required to plan")
	// ErrNoHistory is returned by History when no readable journal is set.
	ErrNoHistory = errors.New("transition history requires a journal")
)
