package elastic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbench/SearchBenchmark/backend"
)

func TestBulkSource(t *testing.T) {
	rec := backend.Record{
		ID:        "7",
		Title:     "Wireless Mouse",
		Text:      "ergonomic",
		Fields:    map[string]interface{}{"price": 19.9, "brand": "acme"},
		Embedding: []float32{0.1, 0.2},
	}

	doc := bulkSource(rec)
	assert.Equal(t, "Wireless Mouse", doc["title"])
	assert.Equal(t, "ergonomic", doc["text"])
	assert.Equal(t, []float32{0.1, 0.2}, doc["embedding"])
	assert.Equal(t, 19.9, doc["price"])
	assert.Equal(t, "acme", doc["brand"])
	_, hasID := doc["_id"]
	assert.False(t, hasID, "the id rides on the bulk action line, not the source")
}

func TestIntegration(t *testing.T) {
	// todo: run elasticsearch automatically
	t.SkipNow()
	b, err := New("es", "http://localhost:9200", "", "bench_test", 3)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, b.Connect(ctx))
	require.NoError(t, b.ResetIndex(ctx))

	recs := []backend.Record{
		{ID: "1", Title: "hello world", Text: "first", Embedding: []float32{1, 0, 0}},
		{ID: "2", Title: "foo bar hello", Text: "second", Embedding: []float32{0, 1, 0}},
	}
	n, err := b.InsertBatch(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := b.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ids, err := b.LexicalQuery(ctx, "hello", 10)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = b.VectorQuery(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)

	ids, err = b.HybridQuery(ctx, "world", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Contains(t, ids, "1")
}
