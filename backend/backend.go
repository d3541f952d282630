package backend

import (
	"context"
)

// Capability is a bitmask of the operations a backend supports. Backends
// that lack an operation simply omit the bit, and the orchestrator skips
// the corresponding workload kind instead of failing.
type Capability uint8

const (
	CapInsert Capability = 1 << iota
	CapLexical
	CapVector
	CapHybrid

	CapAll = CapInsert | CapLexical | CapVector | CapHybrid
)

// Has reports whether all bits of c2 are present in c.
func (c Capability) Has(c2 Capability) bool {
	return c&c2 == c2
}

// Record is a single document to be indexed. Besides the id, title, text
// and embedding used by the workloads, Fields carries arbitrary payload
// attributes from the source corpus.
type Record struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Text      string                 `json:"text"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Embedding []float32              `json:"embedding"`
}

// Backend abstracts one search engine under test. Implementations wrap
// the engine's native client and keep no state across calls except a
// pooled connection. Operations never retry internally - retry policy
// belongs to the caller, so that each timed call is a single real call.
//
// Every operation honors the deadline of the context it is given, where
// the underlying client supports one.
type Backend interface {
	Name() string
	Capabilities() Capability

	// Connect establishes the connection pool and performs a single
	// health check. It does not retry.
	Connect(ctx context.Context) error
	Close() error

	// ResetIndex drops the benchmark index/collection if it exists and
	// re-creates it empty, so every write phase starts from scratch.
	ResetIndex(ctx context.Context) error

	// InsertBatch indexes the records in one bulk call and returns the
	// number of records the engine accepted.
	InsertBatch(ctx context.Context, records []Record) (int, error)

	// LexicalQuery runs a full-text search and returns ranked ids.
	LexicalQuery(ctx context.Context, text string, limit int) ([]string, error)

	// VectorQuery runs an ANN search and returns ranked ids.
	VectorQuery(ctx context.Context, vector []float32, limit int) ([]string, error)

	// HybridQuery combines lexical and vector search and returns ranked ids.
	HybridQuery(ctx context.Context, text string, vector []float32, limit int) ([]string, error)

	// DocCount returns the number of documents currently in the index.
	DocCount(ctx context.Context) (int64, error)
}

// Batches splits records into consecutive batches of at most size records.
func Batches(records []Record, size int) [][]Record {
	if size <= 0 || len(records) == 0 {
		return nil
	}
	out := make([][]Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
