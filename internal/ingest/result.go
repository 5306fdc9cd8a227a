package ingest

import (
	"errors"
	"fmt"

	"github.com/efebarandurmaz/bujo/internal/arbiter"
)

// Pipeline stages, as reported in warnings and stage errors.
const (
	StageEmbed     = "embed"
	StageSearch    = "search"
	StageArbitrate = "arbitrate"
	StageCommit    = "commit"
	StageIndex     = "index"
)

// Warning codes.
const (
	CodeEmbeddingUnavailable   = "embedding_unavailable"
	CodeDimensionMismatch      = "dimension_mismatch"
	CodeSearchUnavailable      = "search_unavailable"
	CodeArbitrationParse       = "arbitration_parse_error"
	CodeArbitrationUnavailable = "arbitration_unavailable"
	CodeNotIndexed             = "not_indexed"
	CodeIndexFlagStale         = "index_flag_stale"
)

// ErrEmbeddingUnavailable is attached to warnings when no embedding could be
// produced for the summary.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Warning is a recovered failure. The call still succeeded.
type Warning struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Result is the outcome of one Ingest call. For duplicates and partial
// updates ID is the matched notebook and Committed is false.
type Result struct {
	ID        string          `json:"id"`
	Verdict   arbiter.Verdict `json:"verdict"`
	Committed bool            `json:"committed"`
	Warnings  []Warning       `json:"warnings"`
}

func (r *Result) warn(stage, code, message string, err error) {
	r.Warnings = append(r.Warnings, Warning{Stage: stage, Code: code, Message: message, Err: err})
}

// HasWarning reports whether a warning with code is attached.
func (r Result) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// StageError is returned when Ingest fails as a whole.
type StageError struct {
	Stage     string
	Committed bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest failed at %s (committed=%t): %v", e.Stage, e.Committed, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
