package bench

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// progress prints a live per-phase status line: elapsed time, op rate,
// instantaneous p50 and total ops. It keeps its own counters and
// histogram, separate from the Collector, so reporting never contends
// with the timed loop.
type progress struct {
	label string
	start time.Time
	out   io.Writer

	ops uint64 // atomic

	mu   sync.Mutex
	hist *hdrhistogram.Histogram

	stop chan struct{}
	done chan struct{}
}

func startProgress(label string, period time.Duration, out io.Writer) *progress {
	p := &progress{
		label: label,
		start: time.Now(),
		out:   out,
		// 1us..1min at 3 significant digits covers any single call
		hist: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.run(period)
	return p
}

func (p *progress) observe(d time.Duration) {
	atomic.AddUint64(&p.ops, 1)
	p.mu.Lock()
	p.hist.RecordValue(int64(d / time.Microsecond))
	p.mu.Unlock()
}

func (p *progress) run(period time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	prevOps := uint64(0)
	prevTime := p.start
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			current := atomic.LoadUint64(&p.ops)
			rate := float64(current-prevOps) / now.Sub(prevTime).Seconds()
			p.mu.Lock()
			p50 := float64(p.hist.ValueAtQuantile(50.0)) / 1e3
			p.mu.Unlock()
			fmt.Fprintf(p.out, "%-28s %8.0fs %12.2f ops/s %10.3f p50(ms) %12d ops\r",
				p.label, time.Since(p.start).Seconds(), rate, p50, current)
			prevOps = current
			prevTime = now
		}
	}
}

func (p *progress) finish() {
	close(p.stop)
	<-p.done
	fmt.Fprint(p.out, "\n")
}
