// Package neo4j implements store.Store with one :Notebook node per record.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/store"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const returnFields = "n.id AS id, n.name AS name, n.payload AS payload, n.created_at AS created_at, n.indexed AS indexed"

// Repository stores notebooks in Neo4j. Payloads are kept as JSON text since
// node properties cannot hold nested maps.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

// New creates a Neo4j-backed store and verifies connectivity.
func New(ctx context.Context, uri, username, password, database string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: neo4j connectivity: %v", store.ErrUnavailable, err)
	}
	r := &Repository{driver: driver, database: database, now: time.Now}
	if err := r.ensureConstraint(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return r, nil
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database, AccessMode: mode})
}

func (r *Repository) ensureConstraint(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"CREATE CONSTRAINT notebook_id IF NOT EXISTS FOR (n:Notebook) REQUIRE n.id IS UNIQUE", nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("%w: neo4j constraint: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Put merges on id. created_at and seq are only set when the node is
// created; seq gives List its insertion order.
func (r *Repository) Put(ctx context.Context, rec notebook.Record) (string, error) {
	rec = store.Prepare(rec, r.now())
	payload, err := notebook.EncodePayload(rec.Payload)
	if err != nil {
		return "", err
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (n:Notebook {id: $id}) "+
				"ON CREATE SET n.created_at = $created_at, n.seq = $seq "+
				"SET n.name = $name, n.payload = $payload, n.indexed = $indexed",
			map[string]any{
				"id":         rec.ID,
				"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
				"seq":        rec.CreatedAt.UnixNano(),
				"name":       rec.Name,
				"payload":    payload,
				"indexed":    rec.Indexed,
			})
		return nil, err
	})
	if err != nil {
		return "", fmt.Errorf("%w: neo4j put %s: %v", store.ErrUnavailable, rec.ID, err)
	}
	return rec.ID, nil
}

func (r *Repository) Get(ctx context.Context, id string) (notebook.Record, error) {
	recs, err := r.read(ctx,
		"MATCH (n:Notebook {id: $id}) RETURN "+returnFields,
		map[string]any{"id": id})
	if err != nil {
		return notebook.Record{}, err
	}
	if len(recs) == 0 {
		return notebook.Record{}, store.ErrNotFound
	}
	return recs[0], nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]notebook.Record, error) {
	return r.read(ctx,
		"MATCH (n:Notebook) RETURN "+returnFields+" ORDER BY n.seq LIMIT $limit",
		map[string]any{"limit": store.Limit(limit)})
}

func (r *Repository) ListUnindexed(ctx context.Context, limit int) ([]notebook.Record, error) {
	return r.read(ctx,
		"MATCH (n:Notebook) WHERE n.indexed = false RETURN "+returnFields+" ORDER BY n.seq LIMIT $limit",
		map[string]any{"limit": store.Limit(limit)})
}

func (r *Repository) read(ctx context.Context, cypher string, params map[string]any) ([]notebook.Record, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		out := []notebook.Record{}
		for rows.Next(ctx) {
			rec, err := fromValues(rows.Record().AsMap())
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: neo4j read: %v", store.ErrUnavailable, err)
	}
	return result.([]notebook.Record), nil
}

func (r *Repository) SetIndexed(ctx context.Context, id string, indexed bool) error {
	return r.update(ctx,
		"MATCH (n:Notebook {id: $id}) SET n.indexed = $indexed RETURN count(n) AS matched",
		map[string]any{"id": id, "indexed": indexed})
}

func (r *Repository) Replace(ctx context.Context, rec notebook.Record) error {
	if rec.Name == "" {
		rec.Name = notebook.NameOf(rec.Payload)
	}
	payload, err := notebook.EncodePayload(rec.Payload)
	if err != nil {
		return err
	}
	return r.update(ctx,
		"MATCH (n:Notebook {id: $id}) SET n.name = $name, n.payload = $payload, n.indexed = $indexed "+
			"RETURN count(n) AS matched",
		map[string]any{"id": rec.ID, "name": rec.Name, "payload": payload, "indexed": rec.Indexed})
}

func (r *Repository) update(ctx context.Context, cypher string, params map[string]any) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	matched, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		row, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := row.Get("matched")
		return n, nil
	})
	if err != nil {
		return fmt.Errorf("%w: neo4j update %v: %v", store.ErrUnavailable, params["id"], err)
	}
	if n, _ := matched.(int64); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: neo4j: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// fromValues maps a result row onto a record.
func fromValues(v map[string]any) (notebook.Record, error) {
	var rec notebook.Record
	rec.ID, _ = v["id"].(string)
	rec.Name, _ = v["name"].(string)
	rec.Indexed, _ = v["indexed"].(bool)

	payload, _ := v["payload"].(string)
	p, err := notebook.DecodePayload(payload)
	if err != nil {
		return notebook.Record{}, err
	}
	rec.Payload = p

	if s, ok := v["created_at"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return notebook.Record{}, fmt.Errorf("neo4j created_at: %w", err)
		}
		rec.CreatedAt = t
	}
	return rec, nil
}

var _ store.Store = (*Repository)(nil)
