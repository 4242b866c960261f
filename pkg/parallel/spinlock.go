package parallel

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a fine-grained lock for very short critical sections, one per
// hyperedge in the partitioned overlay. Zero value is unlocked.
type SpinLock struct {
	state uint32
}

// Lock spins until the lock is acquired, yielding the processor between
// attempts so waiters do not starve the holder.
func (s *SpinLock) Lock() {
	for !atomic.CompareAndSwapUint32(&s.state, 0, 1) {
		runtime.Gosched()
	}
}

// Unlock releases the lock.
func (s *SpinLock) Unlock() {
	atomic.StoreUint32(&s.state, 0)
}
