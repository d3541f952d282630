// Package elastic implements the benchmark backend contract on top of
// the official Elasticsearch client.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/searchbench/SearchBenchmark/backend"
)

// Backend talks to one Elasticsearch cluster over its pooled HTTP
// transport. No state is kept across calls.
type Backend struct {
	es    *elasticsearch.Client
	name  string
	index string
	dim   int
}

// New creates an Elasticsearch backend for the given index. dim is the
// dense_vector dimension of the embedding field.
func New(name, addr, apiKey, index string, dim int) (*Backend, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
		APIKey:    apiKey,
	})
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, name, "client setup", err)
	}
	return &Backend{es: es, name: name, index: index, dim: dim}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Capabilities() backend.Capability { return backend.CapAll }

func (b *Backend) Connect(ctx context.Context) error {
	res, err := b.es.Info(b.es.Info.WithContext(ctx))
	if err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "info", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return backend.NewError(backend.ErrConnection, b.name, "info: %s", res.String())
	}
	return nil
}

// Close is a no-op: the HTTP transport needs no explicit shutdown.
func (b *Backend) Close() error { return nil }

func (b *Backend) ResetIndex(ctx context.Context) error {
	res, err := b.es.Indices.Delete([]string{b.index},
		b.es.Indices.Delete.WithContext(ctx),
		b.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "delete index", err)
	}
	res.Body.Close()

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"title": map[string]interface{}{"type": "text"},
				"text":  map[string]interface{}{"type": "text"},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       b.dim,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return backend.WrapError(backend.ErrMalformed, b.name, "mapping", err)
	}
	res, err = b.es.Indices.Create(b.index,
		b.es.Indices.Create.WithContext(ctx),
		b.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "create index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return backend.NewError(backend.ErrMalformed, b.name, "create index: %s", res.String())
	}
	return nil
}

func (b *Backend) InsertBatch(ctx context.Context, records []backend.Record) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		action := map[string]interface{}{"index": map[string]interface{}{"_id": rec.ID}}
		if err := enc.Encode(action); err != nil {
			return 0, backend.WrapError(backend.ErrMalformed, b.name, "bulk encode", err)
		}
		if err := enc.Encode(bulkSource(rec)); err != nil {
			return 0, backend.WrapError(backend.ErrMalformed, b.name, "bulk encode", err)
		}
	}

	res, err := b.es.Bulk(bytes.NewReader(buf.Bytes()),
		b.es.Bulk.WithContext(ctx),
		b.es.Bulk.WithIndex(b.index),
	)
	if err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "bulk", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, backend.NewError(backend.ErrMalformed, b.name, "bulk: %s", res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, backend.WrapError(backend.ErrMalformed, b.name, "bulk response", err)
	}
	if !parsed.Errors {
		return len(records), nil
	}
	success := 0
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Status < 300 {
				success++
			}
		}
	}
	return success, backend.NewError(backend.ErrMalformed, b.name, "bulk: %d of %d items failed", len(records)-success, len(records))
}

// bulkSource flattens a record into its _source document. Arbitrary
// corpus fields are indexed dynamically.
func bulkSource(rec backend.Record) map[string]interface{} {
	doc := make(map[string]interface{}, len(rec.Fields)+3)
	for k, v := range rec.Fields {
		doc[k] = v
	}
	doc["title"] = rec.Title
	doc["text"] = rec.Text
	doc["embedding"] = rec.Embedding
	return doc
}

func (b *Backend) LexicalQuery(ctx context.Context, text string, limit int) ([]string, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"title", "text"},
			},
		},
		"size": limit,
	}
	return b.search(ctx, "lexical search", body)
}

func (b *Backend) VectorQuery(ctx context.Context, vector []float32, limit int) ([]string, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"knn": map[string]interface{}{
				"embedding": map[string]interface{}{
					"vector": vector,
					"k":      limit,
				},
			},
		},
		"size": limit,
	}
	return b.search(ctx, "vector search", body)
}

func (b *Backend) HybridQuery(ctx context.Context, text string, vector []float32, limit int) ([]string, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":  text,
							"fields": []string{"title", "text"},
							"boost":  1.0,
						},
					},
					map[string]interface{}{
						"knn": map[string]interface{}{
							"embedding": map[string]interface{}{
								"vector": vector,
								"k":      limit,
							},
						},
					},
				},
			},
		},
		"size": limit,
	}
	return b.search(ctx, "hybrid search", body)
}

func (b *Backend) search(ctx context.Context, op string, body map[string]interface{}) ([]string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, backend.WrapError(backend.ErrMalformed, b.name, op, err)
	}
	res, err := b.es.Search(
		b.es.Search.WithContext(ctx),
		b.es.Search.WithIndex(b.index),
		b.es.Search.WithBody(strings.NewReader(string(raw))),
	)
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, b.name, op, err)
	}
	defer res.Body.Close()
	return parseHits(b.name, op, res)
}

func parseHits(name, op string, res *esapi.Response) ([]string, error) {
	if res.IsError() {
		return nil, backend.NewError(backend.ErrMalformed, name, "%s: %s", op, res.String())
	}
	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, backend.WrapError(backend.ErrMalformed, name, op, err)
	}
	ids := make([]string, len(parsed.Hits.Hits))
	for i, h := range parsed.Hits.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

func (b *Backend) DocCount(ctx context.Context) (int64, error) {
	// refresh so documents from a just-finished write phase are visible
	if res, err := b.es.Indices.Refresh(
		b.es.Indices.Refresh.WithContext(ctx),
		b.es.Indices.Refresh.WithIndex(b.index),
	); err == nil {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}

	res, err := b.es.Count(
		b.es.Count.WithContext(ctx),
		b.es.Count.WithIndex(b.index),
	)
	if err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "count", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, backend.NewError(backend.ErrMalformed, b.name, "count: %s", res.String())
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, backend.WrapError(backend.ErrMalformed, b.name, "count", err)
	}
	return parsed.Count, nil
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) String() string {
	return fmt.Sprintf("elastic[%s/%s]", b.name, b.index)
}
