package shm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

// semaphoreSize is the mapped size of a semaphore file.
// Layout:
//
//	0x00: count   uint32 (pending permits, futex word)
//	0x04: waiters uint32 (processes parked on count)
//	0x08-0x3F: reserved
const semaphoreSize = 64

// SemaphorePrefix is prepended to semaphore names, matching the
// "sem.<name>" files glibc uses for POSIX named semaphores.
const SemaphorePrefix = "sem."

// pollInterval bounds each park of a cancellable wait, so a cancelled
// context is noticed even though nobody wakes the futex.
const pollInterval = 50 * time.Millisecond

// Semaphore is a named counting semaphore shared between processes.
//
// Besides the classic Post/Wait pair it supports WaitZero, which blocks
// until every posted permit has been consumed. The transport uses it to
// let the producer wrap its cursor only after the consumer caught up.
type Semaphore struct {
	region  *Region
	count   *uint32
	waiters *uint32
}

func newSemaphore(r *Region) *Semaphore {
	base := unsafe.Pointer(&r.Bytes()[0])
	return &Semaphore{
		region:  r,
		count:   (*uint32)(base),
		waiters: (*uint32)(unsafe.Add(base, 4)),
	}
}

// CreateSemaphore creates the named semaphore with initial permits.
// The caller owns the name.
func CreateSemaphore(dir, name string, initial uint32) (*Semaphore, error) {
	r, err := CreateRegion(dir, SemaphorePrefix+trimName(name), semaphoreSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create semaphore %q: %w", name, err)
	}
	s := newSemaphore(r)
	atomic.StoreUint32(s.count, initial)
	atomic.StoreUint32(s.waiters, 0)
	return s, nil
}

// OpenSemaphore opens a semaphore created by another process.
func OpenSemaphore(dir, name string) (*Semaphore, error) {
	r, err := OpenRegion(dir, SemaphorePrefix+trimName(name), semaphoreSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open semaphore %q: %w", name, err)
	}
	return newSemaphore(r), nil
}

func trimName(name string) string {
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return name
}

// Value returns the current number of permits.
func (s *Semaphore) Value() int {
	return int(atomic.LoadUint32(s.count))
}

// Post adds one permit and wakes parked waiters.
func (s *Semaphore) Post() error {
	atomic.AddUint32(s.count, 1)
	return s.wake()
}

// Wait blocks until a permit is available and takes it.
// Taking the last permit wakes WaitZero callers.
func (s *Semaphore) Wait() error {
	for {
		v := atomic.LoadUint32(s.count)
		if v > 0 {
			if atomic.CompareAndSwapUint32(s.count, v, v-1) {
				if v == 1 {
					return s.wake()
				}
				return nil
			}
			continue
		}
		if err := s.park(0, 0); err != nil {
			return err
		}
	}
}

// WaitAvailable blocks until at least one permit exists without taking it.
// With a single consumer the following Wait never blocks.
//
// If ctx can be cancelled, WaitAvailable returns ctx.Err() once it is.
func (s *Semaphore) WaitAvailable(ctx context.Context) error {
	var timeout time.Duration
	if ctx.Done() != nil {
		timeout = pollInterval
	}
	for atomic.LoadUint32(s.count) == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.park(0, timeout); err != nil {
			return err
		}
	}
	return nil
}

// WaitZero blocks until the count drops to zero.
func (s *Semaphore) WaitZero() error {
	for {
		v := atomic.LoadUint32(s.count)
		if v == 0 {
			return nil
		}
		if err := s.park(v, 0); err != nil {
			return err
		}
	}
}

// park sleeps while count still equals seen, at most timeout when it is
// positive. The waiter is registered before the kernel re-checks the word,
// so a concurrent change either sees the waiter or is seen by futexWait.
func (s *Semaphore) park(seen uint32, timeout time.Duration) error {
	atomic.AddUint32(s.waiters, 1)
	err := futexWait(s.count, seen, timeout)
	atomic.AddUint32(s.waiters, ^uint32(0))
	return err
}

func (s *Semaphore) wake() error {
	if atomic.LoadUint32(s.waiters) == 0 {
		return nil
	}
	_, err := futexWake(s.count, wakeAll)
	return err
}

// Close releases the mapping and, for the creator, unlinks the name.
func (s *Semaphore) Close() error {
	return s.region.Close()
}
