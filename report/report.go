// Package report aggregates workload results into a comparative
// benchmark report and renders it as JSON, markdown and a console table.
// All renderings are derived from the same Report value; none of them
// re-runs any workload.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/searchbench/SearchBenchmark/bench"
)

// Comparison holds pairwise speedup ratios for one workload between one
// backend and the reference. All ratios are other/reference: above 1
// means higher than the reference - faster for throughput, slower for
// latency metrics. A nil ratio means one side was undefined.
type Comparison struct {
	Workload        bench.OpKind `json:"workload"`
	BatchSize       int          `json:"batch_size,omitempty"`
	Backend         string       `json:"backend"`
	Reference       string       `json:"reference"`
	ThroughputRatio *float64     `json:"throughput_ratio,omitempty"`
	MeanRatio       *float64     `json:"mean_latency_ratio,omitempty"`
	P50Ratio        *float64     `json:"p50_latency_ratio,omitempty"`
	P95Ratio        *float64     `json:"p95_latency_ratio,omitempty"`
	P99Ratio        *float64     `json:"p99_latency_ratio,omitempty"`
}

// Report is the top-level aggregate of one benchmark run.
type Report struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Reference   string                 `json:"reference"`
	Backends    []bench.BackendStatus  `json:"backends"`
	Results     []bench.WorkloadResult `json:"results"`
	Comparisons []Comparison           `json:"comparisons,omitempty"`
}

type phaseKey struct {
	workload  bench.OpKind
	batchSize int
}

// Build assembles the report from finalized results. For every workload
// present in more than one backend's results it computes speedup ratios
// against the reference backend.
func Build(statuses []bench.BackendStatus, results []bench.WorkloadResult, reference string) Report {
	rep := Report{
		GeneratedAt: time.Now().UTC(),
		Reference:   reference,
		Backends:    statuses,
		Results:     results,
	}

	refByPhase := map[phaseKey]bench.WorkloadResult{}
	for _, r := range results {
		if r.Backend == reference {
			refByPhase[phaseKey{r.Workload, r.BatchSize}] = r
		}
	}
	for _, r := range results {
		if r.Backend == reference {
			continue
		}
		ref, ok := refByPhase[phaseKey{r.Workload, r.BatchSize}]
		if !ok {
			continue
		}
		rep.Comparisons = append(rep.Comparisons, Compare(ref, r))
	}
	return rep
}

// Compare computes the ratios of other against ref for one shared phase.
// Comparing a result against itself yields 1.0 for every defined metric.
func Compare(ref, other bench.WorkloadResult) Comparison {
	c := Comparison{
		Workload:  other.Workload,
		BatchSize: other.BatchSize,
		Backend:   other.Backend,
		Reference: ref.Backend,
	}
	if ref.Throughput != nil && other.Throughput != nil {
		c.ThroughputRatio = ratio(*other.Throughput, *ref.Throughput)
	}
	if ref.Latency != nil && other.Latency != nil {
		c.MeanRatio = ratio(other.Latency.MeanMs, ref.Latency.MeanMs)
		c.P50Ratio = ratio(other.Latency.P50Ms, ref.Latency.P50Ms)
		c.P95Ratio = ratio(other.Latency.P95Ms, ref.Latency.P95Ms)
		c.P99Ratio = ratio(other.Latency.P99Ms, ref.Latency.P99Ms)
	}
	return c
}

func ratio(other, ref float64) *float64 {
	if ref == 0 {
		return nil
	}
	r := other / ref
	return &r
}

// WriteJSON renders the machine-readable form.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func fmtThroughput(tp *float64) string {
	if tp == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.2f", *tp)
}

func fmtCPU(u *bench.ResourceUsage) string {
	if u == nil {
		return "unavailable"
	}
	return fmt.Sprintf("%.1f", u.MeanCPUPercent)
}

func fmtPeakMem(u *bench.ResourceUsage) string {
	if u == nil {
		return "unavailable"
	}
	return bytefmt.ByteSize(u.PeakRSSBytes)
}

func fmtLatency(l *bench.LatencyStats, pick func(*bench.LatencyStats) float64) string {
	if l == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", pick(l))
}

func (r Report) batchSizes() []int {
	set := map[int]struct{}{}
	for _, res := range r.Results {
		if res.Workload == bench.OpWriteBatch {
			set[res.BatchSize] = struct{}{}
		}
	}
	sizes := maps.Keys(set)
	slices.Sort(sizes)
	return sizes
}

func (r Report) resultsFor(kind bench.OpKind, batchSize int) []bench.WorkloadResult {
	var out []bench.WorkloadResult
	for _, res := range r.Results {
		if res.Workload == kind && res.BatchSize == batchSize {
			out = append(out, res)
		}
	}
	return out
}

var queryKinds = []bench.OpKind{bench.OpLexicalQuery, bench.OpVectorQuery, bench.OpHybridQuery}

// WriteMarkdown renders the human-readable report.
func (r Report) WriteMarkdown(w io.Writer) error {
	var err error
	p := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("# Search Backend Benchmark Report\n\n")
	p("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	p("Reference backend: %s\n\n", r.Reference)

	p("## Backends\n\n")
	p("| Backend | Status |\n|---------|--------|\n")
	for _, st := range r.Backends {
		if st.OK {
			p("| %s | ok |\n", st.Name)
		} else {
			p("| %s | FAILED: %s |\n", st.Name, st.Error)
		}
	}

	p("\n## Write Workload\n\n")
	p("| Batch Size | Backend | Throughput (ops/sec) | Duration (s) | Mean Latency (ms) | P99 Latency (ms) | Errors | Avg CPU (%%) | Peak Mem |\n")
	p("|------------|---------|----------------------|--------------|-------------------|------------------|--------|-------------|----------|\n")
	for _, size := range r.batchSizes() {
		for _, res := range r.resultsFor(bench.OpWriteBatch, size) {
			p("| %d | %s | %s | %.2f | %s | %s | %d | %s | %s |\n",
				size, res.Backend, fmtThroughput(res.Throughput), res.DurationSeconds,
				fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.MeanMs }),
				fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P99Ms }),
				res.ErrorCount, fmtCPU(res.Resources), fmtPeakMem(res.Resources))
		}
	}

	p("\n## Query Workload\n\n")
	p("| Query Kind | Backend | Throughput (queries/sec) | Mean Latency (ms) | P50 (ms) | P95 (ms) | P99 (ms) | Errors |\n")
	p("|------------|---------|--------------------------|-------------------|----------|----------|----------|--------|\n")
	for _, kind := range queryKinds {
		for _, res := range r.resultsFor(kind, 0) {
			p("| %s | %s | %s | %s | %s | %s | %s | %d |\n",
				kind, res.Backend, fmtThroughput(res.Throughput),
				fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.MeanMs }),
				fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P50Ms }),
				fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P95Ms }),
				fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P99Ms }),
				res.ErrorCount)
		}
	}

	if len(r.Comparisons) > 0 {
		p("\n## Comparative Analysis\n\n")
		p("Throughput ratio is backend/reference: above 1.00 means faster than %s.\n\n", r.Reference)
		for _, c := range r.Comparisons {
			label := string(c.Workload)
			if c.Workload == bench.OpWriteBatch {
				label = fmt.Sprintf("%s batch=%d", c.Workload, c.BatchSize)
			}
			if c.ThroughputRatio == nil {
				p("- %s: %s vs %s: throughput undefined\n", label, c.Backend, c.Reference)
				continue
			}
			verdict := "faster"
			if *c.ThroughputRatio < 1 {
				verdict = "slower"
			}
			p("- %s: %s is %.2fx (%s) relative to %s\n", label, c.Backend, *c.ThroughputRatio, verdict, c.Reference)
		}
	}
	return err
}

// WriteTable renders a compact console summary.
func (r Report) WriteTable(w io.Writer) error {
	tab := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tab, "BACKEND\tWORKLOAD\tBATCH\tOPS\tERRORS\tTHROUGHPUT\tP50(ms)\tP95(ms)\tP99(ms)\tAVG CPU\tPEAK MEM")
	for _, res := range r.Results {
		batch := "-"
		if res.BatchSize > 0 {
			batch = fmt.Sprintf("%d", res.BatchSize)
		}
		fmt.Fprintf(tab, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			res.Backend, res.Workload, batch, res.Operations, res.ErrorCount,
			fmtThroughput(res.Throughput),
			fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P50Ms }),
			fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P95Ms }),
			fmtLatency(res.Latency, func(l *bench.LatencyStats) float64 { return l.P99Ms }),
			fmtCPU(res.Resources), fmtPeakMem(res.Resources))
	}
	for _, st := range r.Backends {
		if !st.OK {
			fmt.Fprintf(tab, "%s\tFAILED\t-\t-\t-\t%s\t\t\t\t\t\n", st.Name, st.Error)
		}
	}
	return tab.Flush()
}
