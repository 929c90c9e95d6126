// Package sync provides synchronization primitives that can be used before the
// Go scheduler is available.
package sync

import "sync/atomic"

// yieldInterval is the number of failed acquisition attempts between calls to
// yieldFn.
const yieldInterval = 64

// yieldFn lets a spinning task give up the CPU. It stays nil until a scheduler
// exists; tests install runtime.Gosched.
var yieldFn func()

// Spinlock is a busy-waiting mutual exclusion lock. The zero value is
// unlocked. A Spinlock is not reentrant: a task that acquires a lock it
// already holds spins forever.
type Spinlock struct {
	state uint32
}

// Acquire spins until the lock is taken by the caller.
func (l *Spinlock) Acquire() {
	for attempt := uint32(1); !l.tryLock(); attempt++ {
		if attempt%yieldInterval == 0 && yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire takes the lock if it is free and reports whether it did.
func (l *Spinlock) TryToAcquire() bool {
	return l.tryLock()
}

// Release frees the lock. Releasing a free lock is a no-op.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// tryLock makes a single acquisition attempt.
func (l *Spinlock) tryLock() bool {
	return atomic.LoadUint32(&l.state) == 0 && atomic.CompareAndSwapUint32(&l.state, 0, 1)
}
