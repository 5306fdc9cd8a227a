package vector

import (
	"context"
	"slices"
	"sync"
)

// MemoryIndex is an in-process Index for tests and single-node development.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries []Entry
	pos     map[string]int
}

// NewMemory creates an empty in-memory index.
func NewMemory(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, pos: make(map[string]int)}
}

func (m *MemoryIndex) EnsureSchema(context.Context) error { return nil }

func (m *MemoryIndex) Dimension() int { return m.dim }

// Upsert replaces in place, so a replaced entry keeps its insertion slot.
func (m *MemoryIndex) Upsert(ctx context.Context, e Entry) error {
	if err := CheckDimension(e.Vector, m.dim); err != nil {
		return err
	}
	e.Vector = slices.Clone(e.Vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pos[e.ID]; ok {
		m.entries[i] = e
		return nil
	}
	m.pos[e.ID] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryIndex) TopN(ctx context.Context, vec []float32, n int) ([]Match, error) {
	if err := CheckDimension(vec, m.dim); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]Match, len(m.entries))
	for i, e := range m.entries {
		matches[i] = Match{ID: e.ID, Name: e.Name, Summary: e.Summary, Similarity: Cosine(vec, e.Vector)}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

// Len returns the number of stored entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Close() error { return nil }

var _ Index = (*MemoryIndex)(nil)
