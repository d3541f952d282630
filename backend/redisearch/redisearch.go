// Package redisearch implements the benchmark backend contract on top of
// RediSearch's FT.* commands over redigo.
package redisearch

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/garyburd/redigo/redis"

	"github.com/searchbench/SearchBenchmark/backend"
)

// Backend talks to one RediSearch instance through a redigo pool.
type Backend struct {
	name   string
	index  string
	prefix string
	dim    int
	pool   *redis.Pool
}

// New creates a RediSearch backend. Documents are stored as hashes under
// "<index>:" keys; dim is the FLOAT32 vector dimension. timeout bounds
// every read and write on the pooled connections: redigo predates
// context support, so the per-call deadline is enforced at dial time.
func New(name, addr, password, index string, dim int, timeout time.Duration) *Backend {
	pool := &redis.Pool{
		MaxIdle: 8,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{
				redis.DialConnectTimeout(timeout),
				redis.DialReadTimeout(timeout),
				redis.DialWriteTimeout(timeout),
			}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.Dial("tcp", addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t).Seconds() > 3 {
				_, err := c.Do("PING")
				return err
			}
			return nil
		},
	}
	return &Backend{name: name, index: index, prefix: index + ":", dim: dim, pool: pool}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Capabilities() backend.Capability { return backend.CapAll }

// do runs one command on a pooled connection. The context deadline is
// covered by the dial-time read/write timeouts; ctx itself is checked so
// an already-expired deadline fails without a round trip.
func (b *Backend) do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := b.pool.Get()
	defer conn.Close()
	return conn.Do(cmd, args...)
}

func (b *Backend) Connect(ctx context.Context) error {
	if _, err := b.do(ctx, "PING"); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "ping", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.pool.Close()
}

func (b *Backend) ResetIndex(ctx context.Context) error {
	// DD also deletes the document hashes of a previous run
	if _, err := b.do(ctx, "FT.DROPINDEX", b.index, "DD"); err != nil {
		if !strings.Contains(err.Error(), "Unknown Index name") &&
			!strings.Contains(err.Error(), "no such index") {
			return backend.WrapError(backend.ErrConnection, b.name, "drop index", err)
		}
	}
	args := redis.Args{b.index, "ON", "HASH", "PREFIX", 1, b.prefix, "SCHEMA",
		"title", "TEXT", "WEIGHT", 5,
		"text", "TEXT",
		"embedding", "VECTOR", "FLAT", 6,
		"TYPE", "FLOAT32", "DIM", b.dim, "DISTANCE_METRIC", "COSINE",
	}
	if _, err := b.do(ctx, "FT.CREATE", args...); err != nil {
		return backend.WrapError(backend.ErrConnection, b.name, "create index", err)
	}
	return nil
}

// vectorBlob encodes an embedding as the little-endian FLOAT32 byte
// string the VECTOR field expects.
func vectorBlob(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// InsertBatch pipelines one HSET per record and counts the replies. A
// failed record does not stop the batch; the first failure is returned
// alongside the number of records that made it.
func (b *Backend) InsertBatch(ctx context.Context, records []backend.Record) (int, error) {
	conn := b.pool.Get()
	defer conn.Close()

	for _, rec := range records {
		args := redis.Args{b.prefix + rec.ID,
			"title", rec.Title,
			"text", rec.Text,
			"embedding", vectorBlob(rec.Embedding),
		}
		for k, v := range rec.Fields {
			args = args.Add(k, v)
		}
		if err := conn.Send("HSET", args...); err != nil {
			return 0, backend.WrapError(backend.ErrConnection, b.name, "hset", err)
		}
	}
	if err := conn.Flush(); err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "flush", err)
	}

	inserted := 0
	var firstErr error
	for range records {
		if _, err := conn.Receive(); err != nil {
			if firstErr == nil {
				firstErr = backend.WrapError(backend.ErrMalformed, b.name, "hset reply", err)
			}
			continue
		}
		inserted++
	}
	return inserted, firstErr
}

func (b *Backend) LexicalQuery(ctx context.Context, text string, limit int) ([]string, error) {
	return b.search(ctx, redis.Args{b.index, text, "NOCONTENT", "LIMIT", 0, limit})
}

func (b *Backend) VectorQuery(ctx context.Context, vector []float32, limit int) ([]string, error) {
	return b.knnSearch(ctx, "*", vector, limit)
}

func (b *Backend) HybridQuery(ctx context.Context, text string, vector []float32, limit int) ([]string, error) {
	return b.knnSearch(ctx, "("+text+")", vector, limit)
}

func (b *Backend) knnSearch(ctx context.Context, filter string, vector []float32, limit int) ([]string, error) {
	q := filter + "=>[KNN $K @embedding $vec AS knn_score]"
	args := redis.Args{b.index, q,
		"PARAMS", 4, "K", limit, "vec", vectorBlob(vector),
		"NOCONTENT", "SORTBY", "knn_score", "LIMIT", 0, limit, "DIALECT", 2,
	}
	return b.search(ctx, args)
}

// search runs FT.SEARCH with NOCONTENT and returns the document ids,
// stripped of the key prefix.
func (b *Backend) search(ctx context.Context, args redis.Args) ([]string, error) {
	reply, err := b.do(ctx, "FT.SEARCH", args...)
	if err != nil {
		return nil, backend.WrapError(backend.ErrConnection, b.name, "ft.search", err)
	}
	values, err := redis.Values(reply, nil)
	if err != nil || len(values) == 0 {
		return nil, backend.NewError(backend.ErrMalformed, b.name, "ft.search: unexpected reply shape")
	}
	ids := make([]string, 0, len(values)-1)
	for _, v := range values[1:] {
		id, err := redis.String(v, nil)
		if err != nil {
			return nil, backend.WrapError(backend.ErrMalformed, b.name, "ft.search reply", err)
		}
		ids = append(ids, strings.TrimPrefix(id, b.prefix))
	}
	return ids, nil
}

func (b *Backend) DocCount(ctx context.Context) (int64, error) {
	reply, err := b.do(ctx, "FT.INFO", b.index)
	if err != nil {
		return 0, backend.WrapError(backend.ErrConnection, b.name, "ft.info", err)
	}
	values, err := redis.Values(reply, nil)
	if err != nil {
		return 0, backend.WrapError(backend.ErrMalformed, b.name, "ft.info reply", err)
	}
	for i := 0; i+1 < len(values); i += 2 {
		key, err := redis.String(values[i], nil)
		if err != nil || key != "num_docs" {
			continue
		}
		n, err := redis.Int64(values[i+1], nil)
		if err != nil {
			return 0, backend.WrapError(backend.ErrMalformed, b.name, "ft.info num_docs", err)
		}
		return n, nil
	}
	return 0, backend.NewError(backend.ErrMalformed, b.name, "ft.info: num_docs missing")
}

var _ backend.Backend = (*Backend)(nil)
