// Package match scores how well a candidate's skills cover the keywords of a
// job description.
package match

import (
	"math"
	"strings"

	"jobmate/autoapply-service/internal/keywords"
)

// maxMissing caps the skills-gap list returned by Align.
const maxMissing = 20

// Alignment is the full result of comparing a skill set with JD keywords.
type Alignment struct {
	Score int `json:"score"`
	// Overlap lists the matching skills in the order the candidate gave them.
	Overlap []string `json:"overlap"`
	// Missing lists JD keywords not covered by any skill, best ranked first.
	Missing []string `json:"missing"`
	// Prioritized is the skill list reordered with matching skills first.
	Prioritized []string `json:"prioritized"`
}

// Score returns round(100 × |overlap| / |skills|), or 0 for an empty skill
// set. Comparison is case-insensitive and ignores surrounding whitespace.
func Score(skills []string, kws []keywords.Keyword) int {
	return Align(skills, kws).Score
}

// Align computes the score together with the overlap and gap lists.
func Align(skills []string, kws []keywords.Keyword) Alignment {
	set := normalizeSkills(skills)
	terms := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		if t := normalize(k.Term); t != "" {
			terms[t] = struct{}{}
		}
	}

	a := Alignment{
		Overlap:     make([]string, 0),
		Missing:     make([]string, 0),
		Prioritized: make([]string, 0, len(set)),
	}
	have := make(map[string]struct{}, len(set))
	var rest []string
	for _, s := range set {
		have[s] = struct{}{}
		if _, ok := terms[s]; ok {
			a.Overlap = append(a.Overlap, s)
		} else {
			rest = append(rest, s)
		}
	}
	a.Prioritized = append(append(a.Prioritized, a.Overlap...), rest...)

	seen := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		t := normalize(k.Term)
		if t == "" || len(a.Missing) == maxMissing {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := have[t]; !ok {
			a.Missing = append(a.Missing, t)
		}
	}

	if len(set) > 0 {
		a.Score = int(math.Round(100 * float64(len(a.Overlap)) / float64(len(set))))
	}
	return a
}

// ParseSkills splits a comma-separated profile skills field.
func ParseSkills(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeSkills lowercases and trims skills, dropping blanks and
// duplicates while keeping first-seen order.
func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = normalize(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
