// Package qdrant implements the benchmark backend contract on top of the
// Qdrant gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"

	qpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/searchbench/SearchBenchmark/backend"
)

// Backend talks to one Qdrant instance over a single gRPC connection.
type Backend struct {
	name       string
	addr       string
	collection string
	dim        int

	conn        *grpc.ClientConn
	points      qpb.PointsClient
	collections qpb.CollectionsClient
}

// New creates a Qdrant backend for the given collection. addr is the
// gRPC endpoint (host:port), dim the vector dimension.
func New(name, addr, collection string, dim int) *Backend {
	return &Backend{name: name, addr: addr, collection: collection, dim: dim}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Capabilities() backend.Capability { return backend.CapAll }

func (b *Backend) Connect(ctx context.Context) error {
	if b.conn == nil {
		conn, err := grpc.Dial(b.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return backend.WrapError(backend.ErrConnection, b.name, "dial", err)
		}
		b.conn = conn
		b.points = qpb.NewPointsClient(conn)
		b.collections = qpb.NewCollectionsClient(conn)
	}
	// health check: listing collections exercises the full round trip
	if _, err := b.collections.List(ctx, &qpb.ListCollectionsRequest{}); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "list collections", err)
	}
	return nil
}

func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *Backend) ResetIndex(ctx context.Context) error {
	// delete is idempotent on the server side, a missing collection is fine
	if _, err := b.collections.Delete(ctx, &qpb.DeleteCollection{CollectionName: b.collection}); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "delete collection", err)
	}
	_, err := b.collections.Create(ctx, &qpb.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: &qpb.VectorsConfig{
			Config: &qpb.VectorsConfig_Params{
				Params: &qpb.VectorParams{Size: uint64(b.dim), Distance: qpb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "create collection", err)
	}
	// lexical queries filter on the text payload, which needs a full-text index
	fieldType := qpb.FieldType_FieldTypeText
	_, err = b.points.CreateFieldIndex(ctx, &qpb.CreateFieldIndexCollection{
		CollectionName: b.collection,
		FieldName:      "text",
		FieldType:      &fieldType,
	})
	if err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "create text index", err)
	}
	return nil
}

func (b *Backend) InsertBatch(ctx context.Context, records []backend.Record) (int, error) {
	points := make([]*qpb.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qpb.PointStruct{
			Id: pointID(rec.ID),
			Vectors: &qpb.Vectors{
				VectorsOptions: &qpb.Vectors_Vector{Vector: &qpb.Vector{Data: rec.Embedding}},
			},
			Payload: payload(rec),
		}
	}
	wait := true
	_, err := b.points.Upsert(ctx, &qpb.UpsertPoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "upsert", err)
	}
	return len(records), nil
}

// pointID maps a corpus id onto a Qdrant point id: numeric ids pass
// through, anything else is FNV-hashed. Collisions across a benchmark
// corpus are acceptable noise.
func pointID(id string) *qpb.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &qpb.PointId{PointIdOptions: &qpb.PointId_Num{Num: n}}
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	return &qpb.PointId{PointIdOptions: &qpb.PointId_Num{Num: h.Sum64()}}
}

func payload(rec backend.Record) map[string]*qpb.Value {
	p := make(map[string]*qpb.Value, len(rec.Fields)+3)
	for k, v := range rec.Fields {
		if qv := value(v); qv != nil {
			p[k] = qv
		}
	}
	p["id"] = value(rec.ID)
	p["title"] = value(rec.Title)
	p["text"] = value(rec.Text)
	return p
}

// value converts JSON-decoded payload values; unsupported shapes are dropped.
func value(v interface{}) *qpb.Value {
	switch x := v.(type) {
	case string:
		return &qpb.Value{Kind: &qpb.Value_StringValue{StringValue: x}}
	case bool:
		return &qpb.Value{Kind: &qpb.Value_BoolValue{BoolValue: x}}
	case int:
		return &qpb.Value{Kind: &qpb.Value_IntegerValue{IntegerValue: int64(x)}}
	case int64:
		return &qpb.Value{Kind: &qpb.Value_IntegerValue{IntegerValue: x}}
	case float64:
		return &qpb.Value{Kind: &qpb.Value_DoubleValue{DoubleValue: x}}
	default:
		return nil
	}
}

func (b *Backend) VectorQuery(ctx context.Context, vector []float32, limit int) ([]string, error) {
	res, err := b.points.Search(ctx, &qpb.SearchPoints{
		CollectionName: b.collection,
		Vector:         vector,
		Limit:          uint64(limit),
	})
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, b.name, "vector search", err)
	}
	ids := make([]string, len(res.GetResult()))
	for i, pt := range res.GetResult() {
		ids[i] = idString(pt.GetId())
	}
	return ids, nil
}

// LexicalQuery scrolls the collection with a full-text payload filter.
// Qdrant has no relevance-ranked text search, so the returned order is
// storage order; the timing still measures a realistic text lookup.
func (b *Backend) LexicalQuery(ctx context.Context, text string, limit int) ([]string, error) {
	lim := uint32(limit)
	res, err := b.points.Scroll(ctx, &qpb.ScrollPoints{
		CollectionName: b.collection,
		Limit:          &lim,
		Filter: &qpb.Filter{
			Must: []*qpb.Condition{{
				ConditionOneOf: &qpb.Condition_Field{
					Field: &qpb.FieldCondition{
						Key:   "text",
						Match: &qpb.Match{MatchValue: &qpb.Match_Text{Text: text}},
					},
				},
			}},
		},
	})
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, b.name, "lexical scroll", err)
	}
	ids := make([]string, len(res.GetResult()))
	for i, pt := range res.GetResult() {
		ids[i] = idString(pt.GetId())
	}
	return ids, nil
}

// HybridQuery merges vector and lexical results, vector hits first,
// deduplicated, capped at limit.
func (b *Backend) HybridQuery(ctx context.Context, text string, vector []float32, limit int) ([]string, error) {
	vecIDs, err := b.VectorQuery(ctx, vector, limit)
	if err != nil {
		return nil, err
	}
	lexIDs, err := b.LexicalQuery(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(vecIDs))
	merged := make([]string, 0, limit)
	for _, id := range vecIDs {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	for _, id := range lexIDs {
		if len(merged) >= limit {
			break
		}
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (b *Backend) DocCount(ctx context.Context) (int64, error) {
	exact := true
	res, err := b.points.Count(ctx, &qpb.CountPoints{
		CollectionName: b.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "count", err)
	}
	return int64(res.GetResult().GetCount()), nil
}

func idString(id *qpb.PointId) string {
	switch opt := id.GetPointIdOptions().(type) {
	case *qpb.PointId_Num:
		return strconv.FormatUint(opt.Num, 10)
	case *qpb.PointId_Uuid:
		return opt.Uuid
	default:
		return fmt.Sprintf("%v", id)
	}
}

var _ backend.Backend = (*Backend)(nil)
