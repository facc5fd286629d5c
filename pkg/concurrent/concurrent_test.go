package concurrent

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEach(t *testing.T) {
	var sum atomic.Int64
	err := ForEach([]int{1, 2, 3, 4}, 2, func(v int) error {
		sum.Add(int64(v))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), sum.Load())

	boom := errors.New("boom")
	err = ForEach([]int{1, 2, 3}, 0, func(v int) error {
		if v == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestParallelMap_PreservesOrder(t *testing.T) {
	out := ParallelMap([]int{1, 2, 3, 4, 5}, 3, func(v int) int { return v * v })
	assert.Equal(t, []int{1, 4, 9, 16, 25}, out)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, Flatten([][]int{{1}, nil, {2, 3}}))
	assert.Empty(t, Flatten[int](nil))
}
