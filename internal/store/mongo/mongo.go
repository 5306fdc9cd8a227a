// Package mongo implements store.Store on a MongoDB collection.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// document is the stored shape. _id is a driver-generated ObjectID whose
// ordering gives List its insertion order.
type document struct {
	NotebookID string    `bson:"notebook_id"`
	Name       string    `bson:"name"`
	Payload    bson.Raw  `bson:"payload"`
	CreatedAt  time.Time `bson:"created_at"`
	Indexed    bool      `bson:"indexed"`
}

// Store keeps one document per notebook keyed by notebook_id.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// New connects to uri and ensures the unique notebook_id index.
func New(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %v", store.ErrUnavailable, err)
	}
	s := &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		now:    time.Now,
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "notebook_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: mongo index: %v", store.ErrUnavailable, err)
	}
	return s, nil
}

func (s *Store) Put(ctx context.Context, rec notebook.Record) (string, error) {
	rec = store.Prepare(rec, s.now())
	payload, err := bson.Marshal(rec.Payload)
	if err != nil {
		return "", fmt.Errorf("mongo encode payload: %w", err)
	}
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"notebook_id": rec.ID},
		bson.M{
			"$set":         bson.M{"name": rec.Name, "payload": bson.Raw(payload), "indexed": rec.Indexed},
			"$setOnInsert": bson.M{"created_at": rec.CreatedAt},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("%w: mongo put %s: %v", store.ErrUnavailable, rec.ID, err)
	}
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (notebook.Record, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"notebook_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notebook.Record{}, store.ErrNotFound
	}
	if err != nil {
		return notebook.Record{}, fmt.Errorf("%w: mongo get %s: %v", store.ErrUnavailable, id, err)
	}
	return toRecord(doc)
}

func (s *Store) List(ctx context.Context, limit int) ([]notebook.Record, error) {
	return s.find(ctx, bson.M{}, limit)
}

func (s *Store) ListUnindexed(ctx context.Context, limit int) ([]notebook.Record, error) {
	return s.find(ctx, bson.M{"indexed": false}, limit)
}

func (s *Store) find(ctx context.Context, filter bson.M, limit int) ([]notebook.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(store.Limit(limit)))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo find: %v", store.ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	out := []notebook.Record{}
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		rec, err := toRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: mongo cursor: %v", store.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) SetIndexed(ctx context.Context, id string, indexed bool) error {
	return s.update(ctx, id, bson.M{"indexed": indexed})
}

func (s *Store) Replace(ctx context.Context, rec notebook.Record) error {
	if rec.Name == "" {
		rec.Name = notebook.NameOf(rec.Payload)
	}
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}
	payload, err := bson.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("mongo encode payload: %w", err)
	}
	return s.update(ctx, rec.ID, bson.M{"name": rec.Name, "payload": bson.Raw(payload), "indexed": rec.Indexed})
}

func (s *Store) update(ctx context.Context, id string, set bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"notebook_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("%w: mongo update %s: %v", store.ErrUnavailable, id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: mongo ping: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// toRecord converts through relaxed extended JSON so payloads come back with
// the same plain JSON types they were ingested with.
func toRecord(doc document) (notebook.Record, error) {
	rec := notebook.Record{
		ID:        doc.NotebookID,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt.UTC(),
		Indexed:   doc.Indexed,
		Payload:   map[string]any{},
	}
	if len(doc.Payload) == 0 {
		return rec, nil
	}
	data, err := bson.MarshalExtJSON(doc.Payload, false, false)
	if err != nil {
		return notebook.Record{}, fmt.Errorf("mongo payload to json: %w", err)
	}
	if err := json.Unmarshal(data, &rec.Payload); err != nil {
		return notebook.Record{}, fmt.Errorf("mongo payload decode: %w", err)
	}
	return rec, nil
}

var _ store.Store = (*Store)(nil)
