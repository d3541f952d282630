package bench

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchbench/SearchBenchmark/backend"
	"github.com/searchbench/SearchBenchmark/dataset"
)

// fakeBackend is an in-memory Backend with scriptable failures.
type fakeBackend struct {
	name string
	caps backend.Capability

	connectErr error
	resetErr   error
	// insertErrAt fails the batch whose first record has this id
	insertErrAt string

	docs     int
	resets   int
	inserts  int
	lexical  int
	vector   int
	hybrid   int
	closed   bool
}

func (f *fakeBackend) Name() string                     { return f.name }
func (f *fakeBackend) Capabilities() backend.Capability { return f.caps }

func (f *fakeBackend) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeBackend) Close() error                      { f.closed = true; return nil }

func (f *fakeBackend) ResetIndex(ctx context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	f.docs = 0
	return nil
}

func (f *fakeBackend) InsertBatch(ctx context.Context, records []backend.Record) (int, error) {
	f.inserts++
	if f.insertErrAt != "" && len(records) > 0 && records[0].ID == f.insertErrAt {
		return 0, backend.NewError(backend.ErrMalformed, f.name, "bulk response truncated")
	}
	f.docs += len(records)
	return len(records), nil
}

func (f *fakeBackend) LexicalQuery(ctx context.Context, text string, limit int) ([]string, error) {
	f.lexical++
	return []string{"1"}, nil
}

func (f *fakeBackend) VectorQuery(ctx context.Context, vector []float32, limit int) ([]string, error) {
	f.vector++
	return []string{"1"}, nil
}

func (f *fakeBackend) HybridQuery(ctx context.Context, text string, vector []float32, limit int) ([]string, error) {
	f.hybrid++
	return []string{"1"}, nil
}

func (f *fakeBackend) DocCount(ctx context.Context) (int64, error) {
	return int64(f.docs), nil
}

func testCorpus(n int) []backend.Record {
	recs := make([]backend.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, backend.Record{
			ID:        fmt.Sprintf("%d", i),
			Title:     fmt.Sprintf("product number %d of the catalog", i),
			Text:      "some description",
			Embedding: []float32{0.1, 0.2, 0.3},
		})
	}
	return recs
}

func testQueries(n int) dataset.QuerySet {
	var qs dataset.QuerySet
	for i := 0; i < n; i++ {
		qs.Texts = append(qs.Texts, fmt.Sprintf("query %d", i))
		qs.Vectors = append(qs.Vectors, []float32{0.1, 0.2, 0.3})
	}
	return qs
}

func testOrchestrator(w Workload) *Orchestrator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	o := NewOrchestrator(w, testCorpus(20), testQueries(4), log)
	o.ConnectWait = 50 * time.Millisecond
	o.SampleInterval = time.Hour
	o.ProgressPeriod = 0
	return o
}

func TestRunFullCycle(t *testing.T) {
	w := Workload{BatchSizes: []int{5, 10}, NumQueries: 10, ResultLimit: 3}
	o := testOrchestrator(w)
	fb := &fakeBackend{name: "fake", caps: backend.CapAll}

	results, statuses := o.Run(context.Background(), []Target{{Backend: fb, Timeout: time.Second}})

	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].OK)
	assert.True(t, fb.closed)
	assert.Equal(t, 2, fb.resets, "one index reset per batch size")

	// two write phases plus three query kinds
	require.Len(t, results, 5)
	assert.Equal(t, OpWriteBatch, results[0].Workload)
	assert.Equal(t, 5, results[0].BatchSize)
	assert.Equal(t, 4, results[0].Operations, "20 records in batches of 5")
	assert.Equal(t, 10, results[1].BatchSize)
	assert.Equal(t, 2, results[1].Operations)

	for i, kind := range []OpKind{OpLexicalQuery, OpVectorQuery, OpHybridQuery} {
		r := results[2+i]
		assert.Equal(t, kind, r.Workload)
		assert.Equal(t, 10, r.Operations)
		assert.Zero(t, r.ErrorCount)
	}
	assert.Equal(t, 10, fb.lexical)
	assert.Equal(t, 10, fb.vector)
	assert.Equal(t, 10, fb.hybrid)
}

func TestRunConnectFailureIsolated(t *testing.T) {
	w := Workload{BatchSizes: []int{10}, NumQueries: 2, ResultLimit: 3}
	o := testOrchestrator(w)

	down := &fakeBackend{name: "down", caps: backend.CapAll,
		connectErr: backend.NewError(backend.ErrConnection, "down", "refused")}
	up := &fakeBackend{name: "up", caps: backend.CapAll}

	results, statuses := o.Run(context.Background(),
		[]Target{{Backend: down, Timeout: time.Second}, {Backend: up, Timeout: time.Second}})

	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].OK)
	assert.Contains(t, statuses[0].Error, "refused")
	assert.True(t, statuses[1].OK)

	for _, r := range results {
		assert.Equal(t, "up", r.Backend, "failed backend must contribute no results")
	}
	assert.NotEmpty(t, results)
	assert.Zero(t, down.inserts)
}

func TestRunInsertErrorCounted(t *testing.T) {
	w := Workload{BatchSizes: []int{5, 10}, NumQueries: 1, ResultLimit: 3}
	o := testOrchestrator(w)
	// record "15" starts a batch only at size 5, so just that phase fails
	fb := &fakeBackend{name: "fake", caps: backend.CapInsert, insertErrAt: "15"}

	results, statuses := o.Run(context.Background(), []Target{{Backend: fb, Timeout: time.Second}})

	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].OK)
	require.Len(t, results, 2)

	assert.Equal(t, 4, results[0].Operations)
	assert.Equal(t, 1, results[0].ErrorCount, "batch starting at record 15 fails at size 5")
	assert.Equal(t, 0, results[1].ErrorCount, "no size-10 batch starts at record 15")
}

func TestRunCapabilitySkip(t *testing.T) {
	w := Workload{BatchSizes: []int{10}, NumQueries: 3, ResultLimit: 3}
	o := testOrchestrator(w)
	fb := &fakeBackend{name: "lexonly", caps: backend.CapInsert | backend.CapLexical}

	results, statuses := o.Run(context.Background(), []Target{{Backend: fb, Timeout: time.Second}})

	assert.True(t, statuses[0].OK)
	require.Len(t, results, 2, "write phase plus lexical only")
	assert.Equal(t, OpWriteBatch, results[0].Workload)
	assert.Equal(t, OpLexicalQuery, results[1].Workload)
	assert.Zero(t, fb.vector)
	assert.Zero(t, fb.hybrid)
}

func TestRunResetFailureSkipsBatchSize(t *testing.T) {
	w := Workload{BatchSizes: []int{5, 10}, NumQueries: 1, ResultLimit: 3}
	o := testOrchestrator(w)
	fb := &fakeBackend{name: "fake", caps: backend.CapInsert,
		resetErr: backend.NewError(backend.ErrConnection, "fake", "reset refused")}

	results, statuses := o.Run(context.Background(), []Target{{Backend: fb, Timeout: time.Second}})

	assert.True(t, statuses[0].OK)
	assert.Empty(t, results, "every write phase was skipped on reset failure")
	assert.Zero(t, fb.inserts)
}
