// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/store"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS notebooks (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	indexed    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_notebooks_indexed ON notebooks(indexed, seq);
`

// Store keeps one row per notebook with the payload as JSON text.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the database at path and applies the schema.
func New(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite open: %v", store.ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite ping: %v", store.ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Put(ctx context.Context, rec notebook.Record) (string, error) {
	rec = store.Prepare(rec, s.now())
	payload, err := notebook.EncodePayload(rec.Payload)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notebooks (id, name, payload, created_at, indexed) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, payload = excluded.payload, indexed = excluded.indexed`,
		rec.ID, rec.Name, payload, rec.CreatedAt.Format(time.RFC3339Nano), rec.Indexed)
	if err != nil {
		return "", fmt.Errorf("%w: sqlite put %s: %v", store.ErrUnavailable, rec.ID, err)
	}
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (notebook.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, payload, created_at, indexed FROM notebooks WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notebook.Record{}, store.ErrNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, limit int) ([]notebook.Record, error) {
	return s.query(ctx,
		`SELECT id, name, payload, created_at, indexed FROM notebooks ORDER BY seq LIMIT ?`,
		store.Limit(limit))
}

func (s *Store) ListUnindexed(ctx context.Context, limit int) ([]notebook.Record, error) {
	return s.query(ctx,
		`SELECT id, name, payload, created_at, indexed FROM notebooks WHERE indexed = 0 ORDER BY seq LIMIT ?`,
		store.Limit(limit))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]notebook.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite list: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	out := []notebook.Record{}
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetIndexed(ctx context.Context, id string, indexed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notebooks SET indexed = ? WHERE id = ?`, indexed, id)
	return checkAffected(res, err, id)
}

func (s *Store) Replace(ctx context.Context, rec notebook.Record) error {
	if rec.Name == "" {
		rec.Name = notebook.NameOf(rec.Payload)
	}
	payload, err := notebook.EncodePayload(rec.Payload)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notebooks SET name = ?, payload = ?, indexed = ? WHERE id = ?`,
		rec.Name, payload, rec.Indexed, rec.ID)
	return checkAffected(res, err, rec.ID)
}

func checkAffected(res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("%w: sqlite update %s: %v", store.ErrUnavailable, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (notebook.Record, error) {
	var (
		rec              notebook.Record
		payload, created string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &payload, &created, &rec.Indexed); err != nil {
		return notebook.Record{}, err
	}
	p, err := notebook.DecodePayload(payload)
	if err != nil {
		return notebook.Record{}, err
	}
	rec.Payload = p
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return notebook.Record{}, fmt.Errorf("sqlite created_at: %w", err)
	}
	return rec, nil
}

var _ store.Store = (*Store)(nil)
