//go:build !linux

package shm

import (
	"runtime"
	"sync/atomic"
	"time"
)

const wakeAll = 1<<31 - 1

// futexWait polls *addr with a short spin followed by sleeping backoff,
// giving up after timeout when it is positive.
func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for spins := 0; atomic.LoadUint32(addr) == val; spins++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// futexWake is a no-op: pollers observe the word directly.
func futexWake(addr *uint32, n int) (int, error) {
	return 0, nil
}
