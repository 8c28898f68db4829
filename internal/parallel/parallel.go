// Package parallel provides chunked parallel iteration for the CPU compute
// kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinItems   int  // Smallest n worth splitting across goroutines.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinItems:   4096,
	}
}

// Ranges splits [0, n) into contiguous chunks and runs body on each chunk,
// one goroutine per chunk. Small inputs run sequentially: for the
// element-wise kernels the goroutine overhead dominates below MinItems.
// body must be safe to run concurrently on disjoint ranges.
func Ranges(n int, cfg Config, body func(start, end int)) {
	if !cfg.Enabled || n < cfg.MinItems || cfg.NumWorkers < 2 {
		body(0, n)
		return
	}

	chunk := (n + cfg.NumWorkers - 1) / cfg.NumWorkers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			body(s, e)
		}(start, end)
	}
	wg.Wait()
}
