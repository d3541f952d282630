package redisearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbench/SearchBenchmark/backend"
)

func TestVectorBlob(t *testing.T) {
	blob := vectorBlob([]float32{1.0, -2.5})
	// little-endian float32: 1.0 = 0x3f800000, -2.5 = 0xc0200000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x20, 0xc0}, blob)
	assert.Len(t, vectorBlob(make([]float32, 384)), 4*384)
	assert.Empty(t, vectorBlob(nil))
}

func TestDoHonorsContext(t *testing.T) {
	b := New("redisearch", "localhost:6379", "", "bench_test", 3, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.do(ctx, "PING")
	assert.Error(t, err)
}

func TestIntegration(t *testing.T) {
	// todo: run redisearch automatically
	t.SkipNow()
	b := New("redisearch", "localhost:6379", "", "bench_test", 3, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, b.Connect(ctx))
	defer b.Close()
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
	assert.Equal(t, []string{"1"}, ids)
}
