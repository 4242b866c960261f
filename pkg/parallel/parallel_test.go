package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForCoversEveryIndexExactlyOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 64, 1000} {
		counts := make([]int32, n)
		For(n, 4, func(begin, end, _ int) {
			for i := begin; i < end; i++ {
				atomic.AddInt32(&counts[i], 1)
			}
		})
		for i, c := range counts {
			require.Equal(t, int32(1), c, "index %d of n=%d", i, n)
		}
	}
}

func TestExclusivePrefixSum(t *testing.T) {
	values := []uint64{3, 0, 2, 5, 1}
	total := ExclusivePrefixSum(values, 2)

	assert.Equal(t, uint64(11), total)
	assert.Equal(t, []uint64{0, 3, 3, 5, 10}, values)
}

func TestExclusivePrefixSumSingleWorkerMatchesParallel(t *testing.T) {
	sequential := make([]uint64, 100)
	concurrent := make([]uint64, 100)
	for i := range sequential {
		sequential[i] = uint64(i % 7)
		concurrent[i] = uint64(i % 7)
	}

	totalSeq := ExclusivePrefixSum(sequential, 1)
	totalPar := ExclusivePrefixSum(concurrent, 8)

	assert.Equal(t, totalSeq, totalPar)
	assert.Equal(t, sequential, concurrent)
}

func TestReduces(t *testing.T) {
	values := []uint32{4, 17, 2, 9}
	max := MaxReduce(len(values), 2, func(i int) uint32 { return values[i] })
	assert.Equal(t, uint32(17), max)

	sum := SumReduce(4, 2, func(i int) int64 { return int64(i) })
	assert.Equal(t, int64(6), sum)
}

func TestBitsetSetAndReset(t *testing.T) {
	b := NewBitset(130)
	b.Set(0)
	b.Set(129)
	assert.True(t, b.Has(0))
	assert.True(t, b.Has(129))
	assert.False(t, b.Has(64))

	b.Clear(0)
	b.Clear(129)
	assert.False(t, b.Has(0))
	assert.False(t, b.Has(129))
}

func TestSpinLockMutualExclusion(t *testing.T) {
	var lock SpinLock
	counter := 0
	For(1000, 8, func(begin, end, _ int) {
		for i := begin; i < end; i++ {
			lock.Lock()
			counter++
			lock.Unlock()
		}
	})
	assert.Equal(t, 1000, counter)
}
