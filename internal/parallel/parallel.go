// Package parallel provides the shared worker pool used by the Ferry exchange layer.
package parallel

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Config controls pool execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
	}
}

// Pool runs queued units of work across a bounded set of workers.
//
// Work is weighted: RunAll starts the heaviest units first so uneven unit
// sizes balance across workers (longest-processing-time order). A Pool is
// reusable after RunAll. It is not safe for concurrent queueing; it
// matches a single-driver pipeline model where one goroutine queues and
// runs each iteration's work.
type Pool struct {
	cfg  Config
	work []workItem
}

type workItem struct {
	fn     func() error
	weight int64
}

// NewPool creates a pool with the given configuration.
func NewPool(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	return &Pool{cfg: cfg}
}

// AddWork queues fn with a scheduling weight, typically the byte count
// the unit will touch. Nothing runs until RunAll.
func (p *Pool) AddWork(fn func() error, weight int64) {
	p.work = append(p.work, workItem{fn: fn, weight: weight})
}

// Len returns the number of queued units.
func (p *Pool) Len() int {
	return len(p.work)
}

// RunAll executes every queued unit and blocks until all have settled
// (barrier semantics): no unit is abandoned mid-flight on error. The
// first error is returned after the barrier. The queue is cleared in
// either case.
func (p *Pool) RunAll() error {
	work := p.work
	p.work = nil
	if len(work) == 0 {
		return nil
	}

	if !p.cfg.Enabled || len(work) == 1 {
		// Sequential fallback, submission order.
		var first error
		for _, w := range work {
			if err := w.fn(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	// Heaviest first; stable so equal weights keep submission order.
	sort.SliceStable(work, func(i, j int) bool {
		return work[i].weight > work[j].weight
	})

	var g errgroup.Group
	g.SetLimit(p.cfg.NumWorkers)
	for _, w := range work {
		g.Go(w.fn)
	}
	return g.Wait()
}
