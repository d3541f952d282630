package bench

import (
	"math"
	"time"

	"golang.org/x/exp/slices"
)

// OpKind is a class of timed operation.
type OpKind string

const (
	OpWriteBatch   OpKind = "write-batch"
	OpLexicalQuery OpKind = "lexical-query"
	OpVectorQuery  OpKind = "vector-query"
	OpHybridQuery  OpKind = "hybrid-query"
)

// Sample is one timed operation. Samples are immutable once recorded.
type Sample struct {
	Start   time.Time
	Elapsed time.Duration
	Kind    OpKind
	Size    int
	OK      bool
	Err     string
}

// Collector accumulates operation samples for one phase. Record never
// fails - it is pure accumulation, so the timed loop stays branch-free.
type Collector struct {
	samples []Sample
}

// Record appends one sample. A non-nil err marks the sample failed and
// stores the error text.
func (c *Collector) Record(kind OpKind, size int, start time.Time, elapsed time.Duration, err error) {
	s := Sample{Start: start, Elapsed: elapsed, Kind: kind, Size: size, OK: err == nil}
	if err != nil {
		s.Err = err.Error()
	}
	c.samples = append(c.samples, s)
}

// Samples returns the recorded samples in recording order.
func (c *Collector) Samples() []Sample {
	return c.samples
}

// LatencyStats are latency aggregates over successful samples, in
// milliseconds. Percentiles use the nearest-rank method.
type LatencyStats struct {
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// ResourceUsage aggregates the resource snapshots spanning one phase.
type ResourceUsage struct {
	MeanCPUPercent float64 `json:"mean_cpu_percent"`
	PeakCPUPercent float64 `json:"peak_cpu_percent"`
	MeanRSSBytes   uint64  `json:"mean_rss_bytes"`
	PeakRSSBytes   uint64  `json:"peak_rss_bytes"`
}

// WorkloadResult is the aggregate over all samples of one
// (backend, workload kind, batch size) phase.
//
// Throughput is nil when the wall-clock span of the phase is zero, and
// Resources is nil when no snapshot was captured: both are reported as
// undefined/unavailable rather than a misleading zero. Latency is nil
// when the phase had no successful sample.
type WorkloadResult struct {
	Backend         string         `json:"backend"`
	Workload        OpKind         `json:"workload"`
	BatchSize       int            `json:"batch_size,omitempty"`
	Operations      int            `json:"operations"`
	ErrorCount      int            `json:"error_count"`
	DurationSeconds float64        `json:"duration_seconds"`
	Throughput      *float64       `json:"throughput_ops_per_sec,omitempty"`
	Latency         *LatencyStats  `json:"latency,omitempty"`
	Resources       *ResourceUsage `json:"resources,omitempty"`
}

// percentile returns the nearest-rank percentile of an ascending-sorted
// sequence: the value at rank ceil(p*n), 1-based.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Finalize computes the aggregate result of one phase. It is a pure
// function of its inputs: the same samples and snapshots always yield
// the same result.
func Finalize(backendName string, kind OpKind, batchSize int, samples []Sample, snapshots []Snapshot) WorkloadResult {
	res := WorkloadResult{
		Backend:    backendName,
		Workload:   kind,
		BatchSize:  batchSize,
		Operations: len(samples),
	}

	var latencies []time.Duration
	var first, last time.Time
	for _, s := range samples {
		if !s.OK {
			res.ErrorCount++
			continue
		}
		latencies = append(latencies, s.Elapsed)
		end := s.Start.Add(s.Elapsed)
		if first.IsZero() || s.Start.Before(first) {
			first = s.Start
		}
		if end.After(last) {
			last = end
		}
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		res.Latency = &LatencyStats{
			MeanMs: ms(sum) / float64(len(latencies)),
			P50Ms:  ms(percentile(latencies, 0.50)),
			P95Ms:  ms(percentile(latencies, 0.95)),
			P99Ms:  ms(percentile(latencies, 0.99)),
			MaxMs:  ms(latencies[len(latencies)-1]),
		}

		span := last.Sub(first)
		res.DurationSeconds = span.Seconds()
		if span > 0 {
			tp := float64(len(latencies)) / span.Seconds()
			res.Throughput = &tp
		}
	}

	if len(snapshots) > 0 {
		var usage ResourceUsage
		var cpuSum float64
		var rssSum uint64
		for _, snap := range snapshots {
			cpuSum += snap.CPUPercent
			rssSum += snap.RSSBytes
			if snap.CPUPercent > usage.PeakCPUPercent {
				usage.PeakCPUPercent = snap.CPUPercent
			}
			if snap.RSSBytes > usage.PeakRSSBytes {
				usage.PeakRSSBytes = snap.RSSBytes
			}
		}
		usage.MeanCPUPercent = cpuSum / float64(len(snapshots))
		usage.MeanRSSBytes = rssSum / uint64(len(snapshots))
		res.Resources = &usage
	}

	return res
}
