package shmtable

import (
	"sync/atomic"
)

// RWLock is a spin-based Reader-Writer lock.
//
// It guards one hash table bucket. Critical sections are a short list walk,
// but a writer may be held up by a demo delay, so waiters back off to
// sleeping after a few spins.
//
// Properties:
//   - Writer-Preferred: a waiting writer blocks new readers.
//   - Busy-wait (Spinning) with backoff.
//
// Size: 4 bytes (plus padding).
type RWLock struct {
	_     noCopy
	state atomic.Uint32
}

const (
	rwWriteMask = 1
	rwReadShift = 1
	rwReadUnit  = 1 << rwReadShift
)

// Lock acquires the write lock.
func (rw *RWLock) Lock() {
	var spins int
	for {
		// 1. Acquire the write bit. This blocks NEW readers.
		s := rw.state.Load()
		if s&rwWriteMask == 0 {
			if rw.state.CompareAndSwap(s, s|rwWriteMask) {
				// 2. Wait for existing readers to drain.
				for rw.state.Load()>>rwReadShift != 0 {
					delay(&spins)
				}
				return
			}
		}
		delay(&spins)
	}
}

// Unlock releases the write lock.
func (rw *RWLock) Unlock() {
	// Readers cannot have registered while the write bit was set.
	rw.state.Store(0)
}

// RLock acquires a read lock.
func (rw *RWLock) RLock() {
	var spins int
	for {
		s := rw.state.Load()
		if s&rwWriteMask == 0 {
			if rw.state.CompareAndSwap(s, s+rwReadUnit) {
				return
			}
		}
		delay(&spins)
	}
}

// RUnlock releases a read lock.
func (rw *RWLock) RUnlock() {
	rw.state.Add(^uint32(rwReadUnit - 1))
}

// TryLock acquires the write lock only if it is completely free.
func (rw *RWLock) TryLock() bool {
	return rw.state.CompareAndSwap(0, rwWriteMask)
}

// TryRLock acquires a read lock only if no writer holds or waits for it.
func (rw *RWLock) TryRLock() bool {
	s := rw.state.Load()
	return s&rwWriteMask == 0 && rw.state.CompareAndSwap(s, s+rwReadUnit)
}
