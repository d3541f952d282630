package bench

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultSampleInterval is the fixed interval between resource snapshots.
// It does not adapt to phase length: a phase shorter than one interval
// simply yields no snapshots.
const DefaultSampleInterval = 100 * time.Millisecond

// Snapshot is a point-in-time reading of process CPU and memory.
type Snapshot struct {
	At         time.Time `json:"at"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
}

// Sampler captures resource snapshots of the benchmark process itself
// (the driver, not the backend server) on a background goroutine while a
// phase runs. That matches the use of a process-local monitor: when the
// driver and a backend share a host the numbers mean client-side cost.
//
// The sampler never touches the counters the timed loop updates, so its
// only effect on measurements is its own scheduling noise.
type Sampler struct {
	interval time.Duration
	proc     *process.Process

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	snaps   []Snapshot
}

// NewSampler creates a sampler for the current process. A non-positive
// interval selects DefaultSampleInterval.
func NewSampler(interval time.Duration) (*Sampler, error) {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{interval: interval, proc: proc}, nil
}

// Start begins sampling. Calling Start while the sampler is already
// running is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.snaps = nil
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	// prime the CPU counter so the first tick reports usage since Start
	s.proc.Percent(0)
	go s.loop(s.stop, s.done)
}

func (s *Sampler) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			cpu, err := s.proc.Percent(0)
			if err != nil {
				// transient read failure leaves a gap, never fails the phase
				continue
			}
			mem, err := s.proc.MemoryInfo()
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.snaps = append(s.snaps, Snapshot{At: now, CPUPercent: cpu, RSSBytes: mem.RSS})
			s.mu.Unlock()
		}
	}
}

// Stop halts sampling, waits for the background goroutine to exit and
// returns the accumulated snapshots. The sequence is empty when the phase
// ran shorter than one interval - that is a documented edge case, not an
// error. Stop on a stopped sampler returns the last snapshots.
func (s *Sampler) Stop() []Snapshot {
	s.mu.Lock()
	if !s.running {
		snaps := s.snaps
		s.mu.Unlock()
		return snaps
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps
}
