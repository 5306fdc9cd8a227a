// Package arbiter decides whether a candidate summary is new, an exact copy
// of a stored notebook, or an update to one.
package arbiter

import (
	"context"
	"errors"
	"strings"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/vector"
)

// DefaultThreshold is the cosine similarity at or above which two summaries
// describe the same notebook.
const DefaultThreshold = 0.90

// Kind classifies a verdict.
type Kind string

const (
	NoMatch        Kind = "no_match"
	ExactDuplicate Kind = "exact_duplicate"
	PartialUpdate  Kind = "partial_update"
)

// ErrParse is returned when a judge reply does not match any verdict shape.
var ErrParse = errors.New("arbitration parse error")

// Verdict is the outcome of arbitration. MatchedID and Similarity are empty
// for NoMatch; LinesToAdd is set only for PartialUpdate.
type Verdict struct {
	Kind       Kind     `json:"kind"`
	MatchedID  string   `json:"matched_id,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
	LinesToAdd []string `json:"lines_to_add,omitempty"`
}

// Arbiter decides a verdict for a candidate summary against its nearest
// stored neighbours, ordered as vector.Index.TopN returns them.
type Arbiter interface {
	Decide(ctx context.Context, summary string, matches []vector.Match) (Verdict, error)
}

// Rules is the deterministic arbiter.
type Rules struct {
	Threshold float64
}

// NewRules returns Rules with threshold, or DefaultThreshold when threshold
// is not in (0, 1].
func NewRules(threshold float64) *Rules {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Rules{Threshold: threshold}
}

func (r *Rules) Decide(_ context.Context, summary string, matches []vector.Match) (Verdict, error) {
	best, ok := Best(matches, r.Threshold)
	if !ok {
		return Verdict{Kind: NoMatch}, nil
	}
	return Compare(summary, best), nil
}

// Best returns the highest-similarity match at or above threshold. Among
// equal scores the earliest in matches wins.
func Best(matches []vector.Match, threshold float64) (vector.Match, bool) {
	var best vector.Match
	found := false
	for _, m := range matches {
		if !found || m.Similarity > best.Similarity {
			best, found = m, true
		}
	}
	if !found || best.Similarity < threshold {
		return vector.Match{}, false
	}
	return best, true
}

// Compare builds the verdict for a match that already passed the threshold.
func Compare(summary string, best vector.Match) Verdict {
	if summary == best.Summary {
		return Verdict{Kind: ExactDuplicate, MatchedID: best.ID, Similarity: best.Similarity}
	}
	return Verdict{
		Kind:       PartialUpdate,
		MatchedID:  best.ID,
		Similarity: best.Similarity,
		LinesToAdd: LinesToAdd(summary, best.Summary),
	}
}

// LinesToAdd returns the non-blank lines of candidate that do not occur as a
// whole line in stored, in candidate order. Repeated lines are kept as often
// as they appear. The result is never nil.
func LinesToAdd(candidate, stored string) []string {
	have := make(map[string]struct{})
	for _, line := range notebook.Lines(stored) {
		have[line] = struct{}{}
	}
	out := []string{}
	for _, line := range notebook.Lines(candidate) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, ok := have[line]; !ok {
			out = append(out, line)
		}
	}
	return out
}
