// Package parallel splits index ranges (cells, genes, classifier heads)
// across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Workers maps an n_jobs style count to a goroutine count: n <= 0 means
// one per CPU core.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Parallelize runs fn over contiguous chunks of [0, items), one per CPU core.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(items, -1, fn)
}

// ParallelizeN runs fn over at most workers contiguous chunks of [0, items)
// and blocks until every chunk is done. A single chunk runs on the caller's
// goroutine.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	ranges := chunks(items, Workers(workers))
	switch len(ranges) {
	case 0:
		return
	case 1:
		fn(ranges[0][0], ranges[0][1])
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(ranges))
	for _, r := range ranges {
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(r[0], r[1])
	}
	wg.Wait()
}

// ParallelizeWithThreshold stays sequential for items <= threshold, where
// goroutine start-up would dominate (e.g. scaling a handful of genes).
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEach calls fn(i) for every i in [0, items) on at most workers
// goroutines. Every index is visited; the first error seen is returned.
func ForEach(items, workers int, fn func(i int) error) error {
	var (
		once     sync.Once
		firstErr error
	)
	ParallelizeN(items, workers, func(start, end int) {
		for i := start; i < end; i++ {
			if err := fn(i); err != nil {
				once.Do(func() { firstErr = err })
			}
		}
	})
	return firstErr
}

// chunks cuts [0, items) into at most n non-empty ranges of ceil(items/n).
func chunks(items, n int) [][2]int {
	if items <= 0 {
		return nil
	}
	if n > items {
		n = items
	}
	size := (items + n - 1) / n
	out := make([][2]int, 0, n)
	for start := 0; start < items; start += size {
		end := start + size
		if end > items {
			end = items
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
