package pacing

import (
	"fmt"
	"strings"
	"time"
)

// Candidate is a scored job posting supplied by a posting source. It is
// immutable once scored.
type Candidate struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	// Source is the job board the posting came from. Empty in preview mode.
	Source     string `json:"source"`
	MatchScore int    `json:"matchScore"`
}

// ScheduledItem is one planned send. Only its lifecycle state changes after
// creation, and that lives in package apply.
type ScheduledItem struct {
	ID                 string    `json:"id"`
	JobID              string    `json:"jobId"`
	Board              string    `json:"board"`
	PlannedTime        time.Time `json:"plannedTime"`
	MinScoreAtPlanTime int       `json:"minScoreAtPlanTime"`
	MatchScore         int       `json:"matchScore"`
	ParaphraseLevel    int       `json:"paraphraseLevel"`
}

// PreviewCandidates returns n sourceless placeholder matches scored at
// minScore, for planning before any real posting source is connected.
// Generate assigns their boards round-robin.
func PreviewCandidates(n, minScore int) []Candidate {
	out := make([]Candidate, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		out = append(out, Candidate{
			ID:         fmt.Sprintf("preview-%d", i),
			Title:      "Preview application",
			MatchScore: minScore,
		})
	}
	return out
}

// ContainsRedFlag returns true if any red flag term appears (case-insensitive)
// in the combined title + company text.
func ContainsRedFlag(title, company string, redFlags []string) bool {
	if len(redFlags) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + company)
	for _, flag := range redFlags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}
