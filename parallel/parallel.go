// Package parallel provides the public API for Ferry's weighted worker pool.
//
// Host-side batch copies fan out across a pool, with each sample weighted
// by its byte size so large samples start first and the pool drains evenly.
// A pipeline typically creates one pool and reuses it every iteration.
//
// Example:
//
//	pool := parallel.NewPool(parallel.DefaultConfig())
//	err := exchange.CopyToBatch(dst, srcs, exchange.CopyOptions{Pool: pool})
package parallel

import (
	"github.com/ferry-ml/ferry/internal/parallel"
)

// Config controls pool execution behavior.
type Config = parallel.Config

// Pool runs queued units of work across a bounded set of workers,
// heaviest units first.
type Pool = parallel.Pool

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// NewPool creates a pool with the given configuration.
func NewPool(cfg Config) *Pool {
	return parallel.NewPool(cfg)
}
