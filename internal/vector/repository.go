package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch means a vector's length differs from the index
	// dimension. It is a configuration error and is never retried.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnavailable wraps transport and backend failures.
	ErrUnavailable = errors.New("similarity index unavailable")
)

// Entry is a stored notebook summary with its embedding.
type Entry struct {
	ID      string
	Name    string
	Summary string
	Vector  []float32
}

// Match is a single result from a similarity search.
type Match struct {
	ID         string
	Name       string
	Summary    string
	Similarity float64
}

// Index provides vector storage and cosine similarity search.
type Index interface {
	// EnsureSchema creates the backing collection or table if it is absent.
	EnsureSchema(ctx context.Context) error
	// Upsert inserts the entry, or replaces the stored one with the same ID.
	Upsert(ctx context.Context, e Entry) error
	// TopN returns at most n matches ordered by descending similarity. Equal
	// scores keep insertion order.
	TopN(ctx context.Context, vec []float32, n int) ([]Match, error)
	// Dimension reports the configured vector length.
	Dimension() int
	// Close releases resources.
	Close() error
}

// Pinger is implemented by indexes backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks idx when it supports it and reports nil otherwise.
func Ping(ctx context.Context, idx Index) error {
	if p, ok := idx.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// CheckDimension validates vec against the index dimension.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector. The slices must have equal length.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
