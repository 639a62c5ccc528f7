package pacing

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Slot picks a plan time for one extra send, such as a retry, around the
// plan times already taken.
//
// The slot is the earliest instant at or after now that lies inside cfg's
// window and keeps MinDelaySeconds from every taken time, pushed later by a
// random jitter of at most MinDelaySeconds that never closes the gap to the
// next taken time. A day whose taken times already reach DailyCap is full.
// When today has no room the same search runs on tomorrow's window; if that
// fails too an *InsufficientWindowError is returned.
func (g *Generator) Slot(cfg PaceConfig, now time.Time, taken []time.Time) (time.Time, error) {
	if err := cfg.Validate(); err != nil {
		return time.Time{}, err
	}
	seed := g.seed()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	gap := time.Duration(cfg.MinDelaySeconds) * time.Second
	sorted := slices.SortedFunc(slices.Values(taken), time.Time.Compare)

	for d := range 2 {
		day := now.AddDate(0, 0, d)
		if countOn(sorted, day) >= cfg.DailyCap {
			continue
		}
		start, end := cfg.Window(day)
		t := start
		if now.After(t) {
			t = now.Truncate(time.Second)
			if t.Before(now) {
				t = t.Add(time.Second)
			}
		}

		limit := end
		for _, tk := range sorted {
			if tk.Sub(t) >= gap {
				if l := tk.Add(-gap); l.Before(limit) {
					limit = l
				}
				break
			}
			if t.Sub(tk) < gap {
				t = tk.Add(gap)
			}
		}
		if t.After(end) {
			continue
		}

		if span := min(limit.Sub(t), gap) / time.Second; span > 0 {
			t = t.Add(time.Duration(rng.Int64N(int64(span)+1)) * time.Second)
		}
		return t, nil
	}
	return time.Time{}, &InsufficientWindowError{Requested: 1}
}

// countOn counts the times falling on day's calendar date in day's location.
func countOn(times []time.Time, day time.Time) int {
	y, m, d := day.Date()
	n := 0
	for _, t := range times {
		ty, tm, td := t.In(day.Location()).Date()
		if ty == y && tm == m && td == d {
			n++
		}
	}
	return n
}
