package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/efebarandurmaz/bujo/internal/llm"
	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/vector"
)

// ErrJudgeUnavailable wraps failures calling the judge model.
var ErrJudgeUnavailable = errors.New("judge unavailable")

const judgeSystemPrompt = `You validate Bullet Journal notebooks for duplicates.
Input: "text_summary" (the new notebook text) and "search_results", a list of stored
records with notebook_id, notebook_name, notebook_data and cosine_similarity.
1. Take the record with the highest cosine_similarity. If none is >= %.2f reply
   {"match": false}.
2. Otherwise compare text_summary with that record's notebook_data exactly.
   If identical reply {"match": true, "matched_notebook_id": "<id>", "updates": false}.
   If different reply {"match": true, "matched_notebook_id": "<id>", "updates": true,
   "lines_to_add": [...]} listing the lines of text_summary missing from notebook_data.
Copy lines exactly as written. Reply with the JSON object only.`

// Judge asks an LLM to arbitrate. The threshold gate runs locally before
// any call, so below-threshold candidates never reach the model.
type Judge struct {
	completer Completer
	threshold float64
	logger    *slog.Logger
}

// Completer is the subset of llm.Provider the judge needs.
type Completer = llm.Completer

// NewJudge creates a judge. A nil logger uses slog.Default.
func NewJudge(c Completer, threshold float64, logger *slog.Logger) *Judge {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{completer: c, threshold: threshold, logger: logger}
}

type searchResult struct {
	ID         string  `json:"notebook_id"`
	Name       string  `json:"notebook_name"`
	Data       string  `json:"notebook_data"`
	Similarity float64 `json:"cosine_similarity"`
}

type judgeInput struct {
	Summary string         `json:"text_summary"`
	Results []searchResult `json:"search_results"`
}

type judgeReply struct {
	Match      *bool    `json:"match"`
	MatchedID  string   `json:"matched_notebook_id"`
	Updates    *bool    `json:"updates"`
	LinesToAdd []string `json:"lines_to_add"`
}

func (j *Judge) Decide(ctx context.Context, summary string, matches []vector.Match) (Verdict, error) {
	if _, ok := Best(matches, j.threshold); !ok {
		return Verdict{Kind: NoMatch}, nil
	}

	in := judgeInput{Summary: summary, Results: make([]searchResult, len(matches))}
	for i, m := range matches {
		in.Results[i] = searchResult{ID: m.ID, Name: m.Name, Data: m.Summary, Similarity: m.Similarity}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge input: %w", err)
	}

	zero := 0.0
	resp, err := j.completer.Complete(ctx,
		llm.UserPrompt(fmt.Sprintf(judgeSystemPrompt, j.threshold), string(body)),
		&llm.RequestOptions{Temperature: &zero})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
	}

	v, err := ParseReply(resp.Content, summary, matches, j.threshold)
	if err != nil {
		j.logger.Warn("judge reply rejected", "error", err, "reply", resp.Content)
		return Verdict{}, err
	}
	return v, nil
}

// ParseReply validates a judge reply against the candidate and its matches.
// A match must name the same record Best picks at threshold, and "updates"
// must agree with whether the summaries are identical. Any disagreement is
// ErrParse so the caller falls back to committing the notebook.
func ParseReply(reply, summary string, matches []vector.Match, threshold float64) (Verdict, error) {
	var r judgeReply
	if err := json.Unmarshal([]byte(llm.StripMarkdownFences(reply)), &r); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if r.Match == nil {
		return Verdict{}, fmt.Errorf("%w: missing \"match\"", ErrParse)
	}
	if !*r.Match {
		return Verdict{Kind: NoMatch}, nil
	}

	matched, ok := Best(matches, threshold)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: match reported but no candidate reaches %.2f", ErrParse, threshold)
	}
	if r.MatchedID != matched.ID {
		return Verdict{}, fmt.Errorf("%w: matched id %q is not the best candidate %q", ErrParse, r.MatchedID, matched.ID)
	}
	if r.Updates == nil {
		return Verdict{}, fmt.Errorf("%w: missing \"updates\"", ErrParse)
	}
	identical := summary == matched.Summary
	if !*r.Updates {
		if !identical {
			return Verdict{}, fmt.Errorf("%w: duplicate reported for differing summaries", ErrParse)
		}
		return Verdict{Kind: ExactDuplicate, MatchedID: matched.ID, Similarity: matched.Similarity}, nil
	}
	if identical {
		return Verdict{}, fmt.Errorf("%w: updates reported for identical summaries", ErrParse)
	}

	candidate := notebook.Lines(summary)
	lines := make([]string, 0, len(r.LinesToAdd))
	for _, line := range r.LinesToAdd {
		if !slices.Contains(candidate, line) {
			return Verdict{}, fmt.Errorf("%w: line %q is not in the candidate", ErrParse, line)
		}
		lines = append(lines, line)
	}
	return Verdict{
		Kind:       PartialUpdate,
		MatchedID:  matched.ID,
		Similarity: matched.Similarity,
		LinesToAdd: lines,
	}, nil
}
