package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

func TestParallelizeCoversEveryIndexOnce(t *testing.T) {
	for _, items := range []int{1, 7, 1000} {
		counts := make([]int32, items)
		err := Parallelize(items, func(start, end int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&counts[i], 1)
			}
			return nil
		})
		require.NoError(t, err)
		for i, c := range counts {
			assert.Equal(t, int32(1), c, "index %d", i)
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	err := Parallelize(0, func(start, end int) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestParallelizeReturnsChunkError(t *testing.T) {
	err := Parallelize(100, func(start, end int) error {
		if start == 0 {
			return errors.NewValueError("chunk", "boom")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestParallelizeRecoversPanics(t *testing.T) {
	err := ParallelizeWithThreshold(10, 0, func(start, end int) error {
		panic("tree walk failed")
	})
	require.Error(t, err)
	var panicErr *errors.PanicError
	assert.True(t, errors.As(err, &panicErr))
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var calls int32
	err := ParallelizeWithThreshold(10, DefaultThreshold, func(start, end int) error {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
}
