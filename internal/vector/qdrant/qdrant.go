package qdrant

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/efebarandurmaz/bujo/internal/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload keys stored on every point.
const (
	keyName    = "name"
	keyPayload = "payload"
	keySeq     = "seq"
)

// tieSlack is how many extra hits TopN fetches so a tie at the n-th score
// can still be broken by insertion order before truncating.
const tieSlack = 16

// Repository implements vector.Index using Qdrant over gRPC.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
	collection  string
	dim         int

	mu    sync.Mutex
	ready bool
	now   func() time.Time
}

// New dials Qdrant. The collection is created on first use.
func New(host string, port int, collection string, dim int) (*Repository, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", dim)
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
		collection:  collection,
		dim:         dim,
		now:         time.Now,
	}, nil
}

func (r *Repository) Dimension() int { return r.dim }

// EnsureSchema creates the collection with cosine distance if it does not exist.
// A failed attempt is retried on the next call.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	resp, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("%w: qdrant collection exists: %v", vector.ErrUnavailable, err)
	}
	if !resp.GetResult().GetExists() {
		_, err := r.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: r.collection,
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(r.dim), Distance: pb.Distance_Cosine},
			}},
		})
		if err != nil {
			return fmt.Errorf("%w: qdrant create collection %s: %v", vector.ErrUnavailable, r.collection, err)
		}
	}
	r.ready = true
	return nil
}

// Upsert writes the point, keeping the original seq when the ID already exists.
func (r *Repository) Upsert(ctx context.Context, e vector.Entry) error {
	if err := vector.CheckDimension(e.Vector, r.dim); err != nil {
		return err
	}
	if err := r.EnsureSchema(ctx); err != nil {
		return err
	}

	seq, err := r.existingSeq(ctx, e.ID)
	if err != nil {
		return err
	}
	if seq == 0 {
		seq = r.now().UnixNano()
	}

	wait := true
	_, err = r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{toPoint(e, seq)},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert %s: %v", vector.ErrUnavailable, e.ID, err)
	}
	return nil
}

func (r *Repository) existingSeq(ctx context.Context, id string) (int64, error) {
	resp, err := r.points.Get(ctx, &pb.GetPoints{
		CollectionName: r.collection,
		Ids:            []*pb.PointId{pointID(id)},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant get %s: %v", vector.ErrUnavailable, id, err)
	}
	for _, pt := range resp.GetResult() {
		if v, ok := pt.GetPayload()[keySeq]; ok {
			return v.GetIntegerValue(), nil
		}
	}
	return 0, nil
}

func (r *Repository) TopN(ctx context.Context, vec []float32, n int) ([]vector.Match, error) {
	if err := vector.CheckDimension(vec, r.dim); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(n + tieSlack),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %v", vector.ErrUnavailable, err)
	}
	return fromScored(resp.GetResult(), n), nil
}

// Ping calls the Qdrant health endpoint.
func (r *Repository) Ping(ctx context.Context) error {
	if _, err := r.service.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("%w: qdrant health: %v", vector.ErrUnavailable, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func toPoint(e vector.Entry, seq int64) *pb.PointStruct {
	return &pb.PointStruct{
		Id:      pointID(e.ID),
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}}},
		Payload: map[string]*pb.Value{
			keyName:    {Kind: &pb.Value_StringValue{StringValue: e.Name}},
			keyPayload: {Kind: &pb.Value_StringValue{StringValue: e.Summary}},
			keySeq:     {Kind: &pb.Value_IntegerValue{IntegerValue: seq}},
		},
	}
}

type scored struct {
	match vector.Match
	seq   int64
}

// fromScored converts search hits, re-sorts them so equal scores follow
// insertion order, which Qdrant does not guarantee, and keeps the first n.
func fromScored(points []*pb.ScoredPoint, n int) []vector.Match {
	hits := make([]scored, len(points))
	for i, pt := range points {
		p := pt.GetPayload()
		hits[i] = scored{
			match: vector.Match{
				ID:         pt.GetId().GetUuid(),
				Name:       p[keyName].GetStringValue(),
				Summary:    p[keyPayload].GetStringValue(),
				Similarity: widen(pt.GetScore()),
			},
			seq: p[keySeq].GetIntegerValue(),
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		switch {
		case a.match.Similarity > b.match.Similarity:
			return -1
		case a.match.Similarity < b.match.Similarity:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]vector.Match, len(hits))
	for i, h := range hits {
		out[i] = h.match
	}
	return out
}

// widen converts a float32 score to the float64 with the same shortest decimal
// form, so a reported 0.9 compares equal to a 0.9 threshold.
func widen(f float32) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	return v
}

var _ vector.Index = (*Repository)(nil)
