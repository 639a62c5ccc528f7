// Package pacing turns scored job matches into a humanized send schedule.
//
// A schedule respects a daily volume cap, a local time-of-day window and
// minimum/maximum gaps between consecutive sends. Plan times are drawn at
// random inside the window and then spaced, so the result never looks like a
// fixed-interval burst.
package pacing

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is an offset from local midnight, in whole seconds.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" on a 24h clock, up to
// 23:59:59.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time of day %q: want HH:MM or HH:MM:SS", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("time of day %q: bad field %q", s, p)
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return 0, fmt.Errorf("time of day %q: minutes and seconds must be < 60", s)
	}
	t := TimeOfDay(v[0]*3600 + v[1]*60 + v[2])
	if t >= secondsPerDay {
		return 0, fmt.Errorf("time of day %q: past end of day", s)
	}
	return t, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants; it panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Duration returns the offset as a time.Duration.
func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) * time.Second }

// On returns the wall-clock instant at this time of day on day's calendar
// date, in day's location. On DST transition days it is not midnight plus
// Duration.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	sec := int(t)
	return time.Date(y, m, d, sec/3600, sec/60%60, sec%60, 0, day.Location())
}

func (t TimeOfDay) String() string {
	h, rem := int(t)/3600, int(t)%3600
	if s := rem % 60; s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, rem/60, s)
	}
	return fmt.Sprintf("%02d:%02d", h, rem/60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// PaceConfig is the caller-owned pacing preference set. The engine only
// reads it.
type PaceConfig struct {
	Boards          []string  `json:"boards"`
	MinScore        int       `json:"minScore"`
	DailyCap        int       `json:"dailyCap"`
	MinDelaySeconds int       `json:"minDelaySeconds"`
	MaxDelaySeconds int       `json:"maxDelaySeconds"`
	WindowStart     TimeOfDay `json:"windowStart"`
	WindowEnd       TimeOfDay `json:"windowEnd"`
	// ParaphraseLevel is copied onto every scheduled item and never
	// interpreted here.
	ParaphraseLevel int `json:"paraphraseLevel"`
	// RedFlags are exclusion terms; a match whose title or company contains
	// one is never scheduled.
	RedFlags []string `json:"redFlags,omitempty"`
}

// Validate reports every problem with c. Each joined error wraps
// ErrInvalidConfig.
func (c PaceConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if len(c.boardSet()) == 0 {
		bad("at least one board is required")
	}
	if c.MinScore < 0 || c.MinScore > 100 {
		bad("minScore %d must be between 0 and 100", c.MinScore)
	}
	if c.DailyCap < 1 {
		bad("dailyCap %d must be at least 1", c.DailyCap)
	}
	if c.MinDelaySeconds < 0 {
		bad("minDelaySeconds %d must not be negative", c.MinDelaySeconds)
	}
	if c.MinDelaySeconds > c.MaxDelaySeconds {
		bad("minDelaySeconds %d exceeds maxDelaySeconds %d", c.MinDelaySeconds, c.MaxDelaySeconds)
	}
	if c.WindowStart < 0 || c.WindowStart >= secondsPerDay {
		bad("windowStart %s is outside the day", c.WindowStart)
	}
	if c.WindowEnd < 0 || c.WindowEnd >= secondsPerDay {
		bad("windowEnd %s is outside the day", c.WindowEnd)
	}
	if c.WindowStart > c.WindowEnd {
		bad("windowStart %s is after windowEnd %s", c.WindowStart, c.WindowEnd)
	}
	if c.ParaphraseLevel < 0 || c.ParaphraseLevel > 100 {
		bad("paraphraseLevel %d must be between 0 and 100", c.ParaphraseLevel)
	}
	return errors.Join(errs...)
}

// HasBoard reports whether board is one of the configured boards. Board
// identifiers compare case-insensitively.
func (c PaceConfig) HasBoard(board string) bool {
	return slices.Contains(c.boardSet(), normalizeBoard(board))
}

// boardSet returns the configured boards normalized, without blanks or
// duplicates, in the order given.
func (c PaceConfig) boardSet() []string {
	out := make([]string, 0, len(c.Boards))
	for _, b := range c.Boards {
		b = normalizeBoard(b)
		if b == "" || slices.Contains(out, b) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// windowSeconds is the nominal width of the send window.
func (c PaceConfig) windowSeconds() int64 { return int64(c.WindowEnd - c.WindowStart) }

// Window returns the send window on day's calendar date in day's location.
// Across a DST change the elapsed width differs from the nominal one.
func (c PaceConfig) Window(day time.Time) (start, end time.Time) {
	start, end = c.WindowStart.On(day), c.WindowEnd.On(day)
	if end.Before(start) {
		end = start
	}
	return start, end
}

// Capacity returns how many sends fit in the nominal window at
// MinDelaySeconds spacing. With no minimum delay the window is unbounded (-1).
func (c PaceConfig) Capacity() int { return c.capacity(c.windowSeconds()) }

func (c PaceConfig) capacity(width int64) int {
	if c.MinDelaySeconds <= 0 {
		return -1
	}
	return int(width/int64(c.MinDelaySeconds)) + 1
}

func normalizeBoard(b string) string { return strings.ToLower(strings.TrimSpace(b)) }
