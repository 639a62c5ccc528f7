package pacing

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
)

// itemNamespace scopes the name-based UUIDs of scheduled items.
var itemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("jobmate/autoapply/scheduled-item"))

// Schedule is the output of one Generate call.
type Schedule struct {
	// Items are sorted ascending by PlannedTime.
	Items []ScheduledItem `json:"items"`
	// Unplaced holds selected matches the window could not fit.
	Unplaced []Candidate `json:"unplaced"`
}

// Generator builds send schedules. It holds no mutable state: every call
// seeds its own PRNG, so one Generator may be shared across goroutines.
type Generator struct {
	seed func() uint64
}

// NewGenerator returns a Generator seeded differently on every call.
func NewGenerator() *Generator {
	return &Generator{seed: rand.Uint64}
}

// NewSeededGenerator returns a Generator that produces identical schedules
// for identical inputs.
func NewSeededGenerator(seed uint64) *Generator {
	return &Generator{seed: func() uint64 { return seed }}
}

// Generate selects the matches worth sending today and gives each one a
// plan time inside cfg's window on now's calendar day.
//
// Matches below cfg.MinScore, on boards outside cfg.Boards or carrying a red
// flag are dropped; the best cfg.DailyCap of the rest are kept. When the
// window cannot hold them at cfg.MinDelaySeconds spacing, the lowest scored
// ones are returned in Schedule.Unplaced together with an
// *InsufficientWindowError. A config error returns no schedule at all.
func (g *Generator) Generate(matches []Candidate, cfg PaceConfig, now time.Time) (*Schedule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := g.seed()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	// Offsets are elapsed seconds from the real window start, so the window
	// keeps its wall-clock bounds on DST days.
	start, end := cfg.Window(now)
	width := int64(end.Sub(start) / time.Second)

	selected := selectMatches(matches, cfg)
	sched := &Schedule{
		Items:    make([]ScheduledItem, 0, len(selected)),
		Unplaced: make([]Candidate, 0),
	}
	if c := cfg.capacity(width); c >= 0 && len(selected) > c {
		sched.Unplaced = append(sched.Unplaced, selected[c:]...)
		selected = selected[:c]
	}

	type slot struct {
		match  Candidate
		board  string
		offset int64
	}
	boards := cfg.boardSet()
	slots := make([]slot, 0, len(selected))
	next := 0
	for _, m := range selected {
		board := normalizeBoard(m.Source)
		if board == "" {
			board = boards[next%len(boards)]
			next++
		}
		slots = append(slots, slot{match: m, board: board, offset: rng.Int64N(width + 1)})
	}

	slices.SortStableFunc(slots, func(a, b slot) int { return cmp.Compare(a.offset, b.offset) })
	offsets := make([]int64, len(slots))
	for i, s := range slots {
		offsets[i] = s.offset
	}
	space(offsets, int64(cfg.MinDelaySeconds), int64(cfg.MaxDelaySeconds), width)

	day := start.Format(time.DateOnly)
	for i, s := range slots {
		sched.Items = append(sched.Items, ScheduledItem{
			ID:                 ItemID(s.match.ID, s.board, day),
			JobID:              s.match.ID,
			Board:              s.board,
			PlannedTime:        start.Add(time.Duration(offsets[i]) * time.Second),
			MinScoreAtPlanTime: cfg.MinScore,
			MatchScore:         s.match.MatchScore,
			ParaphraseLevel:    cfg.ParaphraseLevel,
		})
	}

	if len(sched.Unplaced) > 0 {
		ids := make([]string, 0, len(sched.Unplaced))
		for _, m := range sched.Unplaced {
			ids = append(ids, m.ID)
		}
		return sched, &InsufficientWindowError{
			Requested: len(sched.Items) + len(sched.Unplaced),
			Placed:    len(sched.Items),
			Unplaced:  ids,
		}
	}
	return sched, nil
}

// ItemID is the scheduled item ID of jobID on board for the given date
// (YYYY-MM-DD). Planning the same job twice on one day yields the same ID.
func ItemID(jobID, board, day string) string {
	return uuid.NewSHA1(itemNamespace, []byte(jobID+"|"+board+"|"+day)).String()
}

// selectMatches filters matches against cfg and keeps the DailyCap best,
// stable on equal scores.
func selectMatches(matches []Candidate, cfg PaceConfig) []Candidate {
	out := make([]Candidate, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if m.MatchScore < cfg.MinScore {
			continue
		}
		if normalizeBoard(m.Source) != "" && !cfg.HasBoard(m.Source) {
			continue
		}
		if ContainsRedFlag(m.Title, m.Company, cfg.RedFlags) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	slices.SortStableFunc(out, func(a, b Candidate) int { return cmp.Compare(b.MatchScore, a.MatchScore) })
	if len(out) > cfg.DailyCap {
		out = out[:cfg.DailyCap]
	}
	return out
}

// space adjusts sorted offsets (seconds into a window of the given width)
// in place so that consecutive offsets are at least minGap apart, at most
// maxGap apart when maxGap > 0, and all lie in [0, width].
//
// The caller guarantees (len(offs)-1)*minGap ≤ width.
func space(offs []int64, minGap, maxGap, width int64) {
	n := len(offs)
	if n == 0 {
		return
	}

	for i := 1; i < n; i++ {
		if offs[i]-offs[i-1] < minGap {
			offs[i] = offs[i-1] + minGap
		}
	}

	// Pushing forward may run past the window end; pull the tail back.
	if offs[n-1] > width {
		offs[n-1] = width
		for i := n - 2; i >= 0; i-- {
			if offs[i] > offs[i+1]-minGap {
				offs[i] = offs[i+1] - minGap
			}
		}
	}

	if maxGap > 0 {
		for i := 1; i < n; i++ {
			if offs[i]-offs[i-1] > maxGap {
				offs[i] = offs[i-1] + maxGap
			}
		}
	}
}
