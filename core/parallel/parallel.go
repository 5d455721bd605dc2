// Package parallel splits index ranges across CPU cores.
package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// DefaultThreshold is the batch size below which work stays on the calling
// goroutine.
const DefaultThreshold = 256

// Parallelize divides [0, items) into one contiguous chunk per worker and
// runs fn on each chunk concurrently. The first error returned by any chunk
// is returned; a panicking chunk is reported as a PanicError.
func Parallelize(items int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			err := runChunk(fn, s, e)
			if err != nil {
				once.Do(func() { firstErr = err })
			}
		}(start, end)
	}
	wg.Wait()

	return firstErr
}

// ParallelizeWithThreshold runs fn sequentially when items does not exceed
// threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int) error) error {
	if items <= threshold {
		if items <= 0 {
			return nil
		}
		return runChunk(fn, 0, items)
	}
	return Parallelize(items, fn)
}

func runChunk(fn func(start, end int) error, start, end int) (err error) {
	defer errors.Recover(&err, "parallel chunk")
	return fn(start, end)
}
