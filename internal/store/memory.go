package store

import (
	"context"
	"sync"
	"time"

	"github.com/efebarandurmaz/bujo/internal/notebook"
)

// Memory is an in-process Store for tests and single-node development.
type Memory struct {
	mu      sync.RWMutex
	records map[string]notebook.Record
	order   []string
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]notebook.Record), now: time.Now}
}

func (m *Memory) Put(_ context.Context, rec notebook.Record) (string, error) {
	rec = Prepare(rec.Clone(), m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.records[rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		m.order = append(m.order, rec.ID)
	}
	m.records[rec.ID] = rec
	return rec.ID, nil
}

func (m *Memory) Get(_ context.Context, id string) (notebook.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return notebook.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) List(_ context.Context, limit int) ([]notebook.Record, error) {
	return m.list(Limit(limit), func(notebook.Record) bool { return true }), nil
}

func (m *Memory) ListUnindexed(_ context.Context, limit int) ([]notebook.Record, error) {
	return m.list(Limit(limit), func(r notebook.Record) bool { return !r.Indexed }), nil
}

func (m *Memory) list(limit int, keep func(notebook.Record) bool) []notebook.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]notebook.Record, 0, min(limit, len(m.order)))
	for _, id := range m.order {
		if len(out) == limit {
			break
		}
		if rec := m.records[id]; keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (m *Memory) SetIndexed(_ context.Context, id string, indexed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Indexed = indexed
	m.records[id] = rec
	return nil
}

func (m *Memory) Replace(_ context.Context, rec notebook.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	next := rec.Clone()
	next.CreatedAt = prev.CreatedAt
	if next.Name == "" {
		next.Name = notebook.NameOf(next.Payload)
	}
	m.records[rec.ID] = next
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }

var _ Store = (*Memory)(nil)
