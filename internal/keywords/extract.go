// Package keywords ranks the terms of a job description by frequency.
//
// Extraction is a pure function of its input: it is safe to call on every
// keystroke and from any number of goroutines.
package keywords

import (
	"slices"
	"strings"
)

// minTermLen is the shortest token kept. Note this also drops "go" and "ai".
const minTermLen = 3

// Keyword is one ranked term of a job description.
type Keyword struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Extract tokenizes text and returns at most topN keywords ordered by count
// descending. Equal counts keep the order in which the terms first appear.
func Extract(text string, topN int) []Keyword {
	out := make([]Keyword, 0)
	if topN <= 0 {
		return out
	}

	index := make(map[string]int)
	for _, tok := range Tokenize(text) {
		if i, ok := index[tok]; ok {
			out[i].Count++
			continue
		}
		index[tok] = len(out)
		out = append(out, Keyword{Term: tok, Count: 1})
	}

	slices.SortStableFunc(out, func(a, b Keyword) int { return b.Count - a.Count })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Tokenize returns the filtered tokens of text in source order, duplicates
// included.
func Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	toks := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimRight(f, ".")
		if len(f) < minTermLen || IsStopword(f) {
			continue
		}
		toks = append(toks, f)
	}
	return toks
}

// Normalize lowercases text and replaces every character outside
// [a-z0-9+#.-] with a space.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if isTermRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isTermRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '+', r == '#', r == '.', r == '-':
		return true
	}
	return false
}
