package shmtable

import (
	"sync/atomic"

	"github.com/llxisdsh/shmtable/internal/opt"
)

// Semaphore is a counting semaphore synchronization primitive.
// It allows a fixed number of concurrent accesses to a resource.
//
// The Dispatcher uses one to bound the number of workers in flight.
// It is process-local; the transport's cross-process counter lives in
// internal/shm.
//
// Size: 16 bytes (8 byte permits + 4 byte sema).
type Semaphore struct {
	_ noCopy
	// permits is the number of available permits.
	// Positive: Available permits.
	// Negative: Number of waiters (approximately).
	permits atomic.Int64

	sema opt.Sema
}

// NewSemaphore creates a new Semaphore with a given number of initial permits.
func NewSemaphore(permits int64) *Semaphore {
	s := &Semaphore{}
	s.permits.Store(permits)
	return s
}

// Acquire acquires n permits.
// It blocks until n permits are available.
func (s *Semaphore) Acquire(n int64) {
	if n <= 0 {
		return
	}

	// Strict Dijkstra Semaphore implementation:
	// Decrement the counter.
	// If negative, it means we must wait.
	if s.permits.Add(-n) < 0 {
		s.sema.Acquire()
	}
}

// TryAcquire attempts to acquire n permits without blocking.
// Returns true on success.
func (s *Semaphore) TryAcquire(n int64) bool {
	for {
		p := s.permits.Load()
		if p < n {
			return false
		}
		if s.permits.CompareAndSwap(p, p-n) {
			return true
		}
	}
}

// Release releases n permits.
func (s *Semaphore) Release(n int64) {
	if n <= 0 {
		return
	}

	v := s.permits.Add(n)

	// Waiters exist if the value BEFORE add was negative.
	// Wake min(n, waiters); the rest stay as available permits.
	valBefore := v - n
	if valBefore < 0 {
		toWake := min(-valBefore, n)
		for range toWake {
			s.sema.Release()
		}
	}
}

// Available returns the number of free permits (negative when waiters queue).
func (s *Semaphore) Available() int64 {
	return s.permits.Load()
}
