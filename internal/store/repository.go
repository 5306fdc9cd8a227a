// Package store holds the canonical notebook records. The record store is
// authoritative: a notebook is durable once Put returns, whether or not it
// reached the similarity index.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/google/uuid"
)

// DefaultListLimit caps List when the caller passes limit <= 0.
const DefaultListLimit = 100

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps backend connectivity and write failures.
	ErrUnavailable = errors.New("record store unavailable")
)

// Store persists notebook records keyed by id.
type Store interface {
	// Put assigns an id and created_at when absent and persists the record.
	// Putting an existing id replaces its payload but keeps created_at.
	Put(ctx context.Context, rec notebook.Record) (string, error)
	Get(ctx context.Context, id string) (notebook.Record, error)
	// List returns up to limit records in insertion order.
	List(ctx context.Context, limit int) ([]notebook.Record, error)
	// ListUnindexed returns up to limit records with Indexed=false, oldest first.
	ListUnindexed(ctx context.Context, limit int) ([]notebook.Record, error)
	SetIndexed(ctx context.Context, id string, indexed bool) error
	// Replace overwrites an existing record's name, payload and indexed
	// flag. It returns ErrNotFound when id is unknown.
	Replace(ctx context.Context, rec notebook.Record) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Prepare fills the fields a store owns: a UUIDv4 id, created_at in UTC and
// the inferred name.
func Prepare(rec notebook.Record, now time.Time) notebook.Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}
	if rec.Name == "" {
		rec.Name = notebook.NameOf(rec.Payload)
	}
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}
	return rec
}

// Limit normalizes a List limit.
func Limit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}
