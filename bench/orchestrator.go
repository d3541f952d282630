// Package bench drives timed write and query workloads against search
// backends and aggregates the samples into workload results.
package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/searchbench/SearchBenchmark/backend"
	"github.com/searchbench/SearchBenchmark/dataset"
)

// Workload holds the immutable run parameters, set once at run start and
// shared read-only by all backends so the comparison is fair.
type Workload struct {
	BatchSizes  []int
	NumQueries  int
	ResultLimit int
}

// Target pairs a backend with its per-call timeout.
type Target struct {
	Backend backend.Backend
	Timeout time.Duration
}

// BackendStatus records whether a configured backend completed its run.
// Failed backends stay in the report instead of being omitted silently.
type BackendStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Orchestrator runs the full write+query cycle for each backend strictly
// sequentially: one backend finishes before the next starts, so backends
// never compete for host resources during measurement. The resource
// sampler goroutine is the only concurrent activity inside a phase.
type Orchestrator struct {
	workload Workload
	corpus   []backend.Record
	queries  dataset.QuerySet
	log      *logrus.Logger

	// ConnectWait bounds the untimed exponential-backoff wait for a
	// backend to become reachable before its phases start.
	ConnectWait time.Duration
	// SampleInterval is the resource sampler tick.
	SampleInterval time.Duration
	// ProgressPeriod enables the live per-phase status line when > 0.
	ProgressPeriod time.Duration
	ProgressOut    io.Writer
}

// NewOrchestrator creates a run object over a fixed corpus and query set.
// The query set was drawn once and is replayed verbatim by every backend.
func NewOrchestrator(w Workload, corpus []backend.Record, queries dataset.QuerySet, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		workload:       w,
		corpus:         corpus,
		queries:        queries,
		log:            log,
		ConnectWait:    30 * time.Second,
		SampleInterval: DefaultSampleInterval,
		ProgressOut:    os.Stdout,
	}
}

// Run benchmarks every target in order and returns the finalized results
// plus a status entry per target. A backend that fails to connect is
// skipped and marked failed; it never aborts the remaining backends.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) ([]WorkloadResult, []BackendStatus) {
	sampler, err := NewSampler(o.SampleInterval)
	if err != nil {
		o.log.WithError(err).Warn("resource sampling unavailable for this run")
		sampler = nil
	}

	var results []WorkloadResult
	statuses := make([]BackendStatus, 0, len(targets))
	for _, t := range targets {
		name := t.Backend.Name()
		st := BackendStatus{Name: name}
		if err := o.connect(ctx, t); err != nil {
			st.Error = err.Error()
			o.log.WithField("backend", name).WithError(err).Error("connection failed, skipping backend")
			statuses = append(statuses, st)
			continue
		}
		o.log.WithField("backend", name).Info("connected")

		results = append(results, o.runBackend(ctx, t, sampler)...)
		st.OK = true
		statuses = append(statuses, st)

		if err := t.Backend.Close(); err != nil {
			o.log.WithField("backend", name).WithError(err).Warn("close failed")
		}
	}
	return results, statuses
}

func (o *Orchestrator) connect(ctx context.Context, t Target) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = o.ConnectWait
	return backoff.Retry(func() error {
		cctx, cancel := context.WithTimeout(ctx, t.Timeout)
		defer cancel()
		return t.Backend.Connect(cctx)
	}, backoff.WithContext(bo, ctx))
}

func (o *Orchestrator) runBackend(ctx context.Context, t Target, sampler *Sampler) []WorkloadResult {
	b := t.Backend
	log := o.log.WithField("backend", b.Name())
	var results []WorkloadResult

	if b.Capabilities().Has(backend.CapInsert) {
		for _, size := range o.workload.BatchSizes {
			plog := log.WithFields(logrus.Fields{"phase": OpWriteBatch, "batch_size": size})
			if err := o.resetIndex(ctx, t); err != nil {
				plog.WithError(err).Error("index reset failed, skipping batch size")
				continue
			}
			plog.Info("write phase started")
			results = append(results, o.writePhase(ctx, t, size, sampler, plog))
		}
	}

	qs := o.queries
	limit := o.workload.ResultLimit
	kinds := []struct {
		kind OpKind
		cap  backend.Capability
		run  func(context.Context, int) error
	}{
		{OpLexicalQuery, backend.CapLexical, func(ctx context.Context, i int) error {
			_, err := b.LexicalQuery(ctx, qs.Texts[i%qs.Len()], limit)
			return err
		}},
		{OpVectorQuery, backend.CapVector, func(ctx context.Context, i int) error {
			_, err := b.VectorQuery(ctx, qs.Vectors[i%qs.Len()], limit)
			return err
		}},
		{OpHybridQuery, backend.CapHybrid, func(ctx context.Context, i int) error {
			j := i % qs.Len()
			_, err := b.HybridQuery(ctx, qs.Texts[j], qs.Vectors[j], limit)
			return err
		}},
	}
	for _, k := range kinds {
		plog := log.WithField("phase", k.kind)
		if !b.Capabilities().Has(k.cap) {
			plog.Info("not supported by backend, skipping")
			continue
		}
		plog.Info("query phase started")
		results = append(results, o.queryPhase(ctx, t, k.kind, k.run, sampler, plog))
	}
	return results
}

func (o *Orchestrator) resetIndex(ctx context.Context, t Target) error {
	cctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	return t.Backend.ResetIndex(cctx)
}

// writePhase times each batch insertion individually. The sampler wraps
// the whole batch-size loop, not each insert, so sampling overhead does
// not leak into per-operation latency.
func (o *Orchestrator) writePhase(ctx context.Context, t Target, size int, sampler *Sampler, log *logrus.Entry) WorkloadResult {
	b := t.Backend
	col := &Collector{}
	var prog *progress
	if o.ProgressPeriod > 0 {
		prog = startProgress(fmt.Sprintf("%s write batch=%d", b.Name(), size), o.ProgressPeriod, o.ProgressOut)
	}
	if sampler != nil {
		sampler.Start()
	}

	inserted := 0
	for _, batch := range backend.Batches(o.corpus, size) {
		cctx, cancel := context.WithTimeout(ctx, t.Timeout)
		start := time.Now()
		n, err := b.InsertBatch(cctx, batch)
		elapsed := time.Since(start)
		cancel()

		col.Record(OpWriteBatch, len(batch), start, elapsed, err)
		if err != nil {
			log.WithError(err).Warn("batch insert failed")
		} else {
			inserted += n
		}
		if prog != nil {
			prog.observe(elapsed)
		}
	}

	var snaps []Snapshot
	if sampler != nil {
		snaps = sampler.Stop()
	}
	if prog != nil {
		prog.finish()
	}

	cctx, cancel := context.WithTimeout(ctx, t.Timeout)
	count, err := b.DocCount(cctx)
	cancel()
	if err != nil {
		log.WithError(err).Warn("doc count unavailable")
	} else if count != int64(inserted) {
		log.WithFields(logrus.Fields{"inserted": inserted, "reported": count}).Warn("doc count mismatch")
	}

	return Finalize(b.Name(), OpWriteBatch, size, col.Samples(), snaps)
}

// queryPhase replays the fixed query set, timing each query individually
// with resource sampling scoped to the whole phase.
func (o *Orchestrator) queryPhase(ctx context.Context, t Target, kind OpKind, run func(context.Context, int) error, sampler *Sampler, log *logrus.Entry) WorkloadResult {
	b := t.Backend
	col := &Collector{}
	var prog *progress
	if o.ProgressPeriod > 0 {
		prog = startProgress(fmt.Sprintf("%s %s", b.Name(), kind), o.ProgressPeriod, o.ProgressOut)
	}
	if sampler != nil {
		sampler.Start()
	}

	for i := 0; i < o.workload.NumQueries; i++ {
		cctx, cancel := context.WithTimeout(ctx, t.Timeout)
		start := time.Now()
		err := run(cctx, i)
		elapsed := time.Since(start)
		cancel()

		col.Record(kind, o.workload.ResultLimit, start, elapsed, err)
		if err != nil {
			log.WithError(err).Warn("query failed")
		}
		if prog != nil {
			prog.observe(elapsed)
		}
	}

	var snaps []Snapshot
	if sampler != nil {
		snaps = sampler.Stop()
	}
	if prog != nil {
		prog.finish()
	}

	return Finalize(b.Name(), kind, 0, col.Samples(), snaps)
}
