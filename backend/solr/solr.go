// Package solr implements the insert and lexical-query subset of the
// benchmark backend contract on top of go-solr. Solr is wired in as a
// lexical-only engine: it declares no vector or hybrid capability, and
// the orchestrator skips those workload kinds for it.
package solr

import (
	"context"
	"net/url"

	"github.com/vanng822/go-solr/solr"

	"github.com/searchbench/SearchBenchmark/backend"
)

// Backend talks to one Solr core over go-solr's HTTP client. The core
// must already exist; ResetIndex clears its documents.
type Backend struct {
	name string
	core string
	si   *solr.SolrInterface
}

func New(name, addr, core string) (*Backend, error) {
	si, err := solr.NewSolrInterface(addr, core)
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, name, "client setup", err)
	}
	return &Backend{name: name, core: core, si: si}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Capabilities() backend.Capability {
	return backend.CapInsert | backend.CapLexical
}

// go-solr has no context plumbing; ctx is checked up front and the
// HTTP client's own timeouts bound the call.
func (b *Backend) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "connect", err)
	}
	if _, err := b.count(); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "connect", err)
	}
	return nil
}

func (b *Backend) Close() error { return nil }

func (b *Backend) ResetIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "reset", err)
	}
	if _, err := b.si.DeleteAll(); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "delete all", err)
	}
	return nil
}

func (b *Backend) InsertBatch(ctx context.Context, records []backend.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "insert", err)
	}
	docs := make([]solr.Document, 0, len(records))
	for _, rec := range records {
		doc := solr.Document{}
		for k, v := range rec.Fields {
			doc[k] = v
		}
		doc["id"] = rec.ID
		doc["title"] = rec.Title
		doc["text"] = rec.Text
		docs = append(docs, doc)
	}
	params := url.Values{"commit": []string{"true"}}
	if _, err := b.si.Add(docs, len(docs), &params); err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "add", err)
	}
	return len(records), nil
}

func (b *Backend) LexicalQuery(ctx context.Context, text string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.WrapError(backend.ErrConnection, b.name, "search", err)
	}
	q := solr.NewQuery()
	q.Q(text)
	q.Rows(limit)
	q.AddParam("cache", "false")
	r, err := b.si.Search(q).Result(nil)
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, b.name, "search", err)
	}
	ids := make([]string, 0, len(r.Results.Docs))
	for _, d := range r.Results.Docs {
		if id, ok := d.Get("id").(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (b *Backend) VectorQuery(ctx context.Context, vector []float32, limit int) ([]string, error) {
	return nil, backend.NewError(backend.ErrUnsupported, b.name, "vector search is not supported")
}

func (b *Backend) HybridQuery(ctx context.Context, text string, vector []float32, limit int) ([]string, error) {
	return nil, backend.NewError(backend.ErrUnsupported, b.name, "hybrid search is not supported")
}

func (b *Backend) DocCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "count", err)
	}
	n, err := b.count()
	if err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "count", err)
	}
	return n, nil
}

func (b *Backend) count() (int64, error) {
	q := solr.NewQuery()
	q.Q("*:*")
	q.Rows(0)
	r, err := b.si.Search(q).Result(nil)
	if err != nil {
		return 0, err
	}
	return int64(r.Results.NumFound), nil
}

var _ backend.Backend = (*Backend)(nil)
