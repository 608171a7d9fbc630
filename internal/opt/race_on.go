//go:build race

package opt

import (
	"sync"
)

const Race_ = true

// Sema under the race detector: the runtime semaphore is invisible to it,
// so a Release would not be seen to happen before the matching Acquire
// returns. A mutex-guarded counter gives the detector that edge.
//
// The zero value is ready to use.
type Sema struct {
	mu   sync.Mutex
	cond sync.Cond
	n    uint32
}

func (s *Sema) Acquire() {
	s.mu.Lock()
	s.cond.L = &s.mu
	for s.n == 0 {
		s.cond.Wait()
	}
	s.n--
	s.mu.Unlock()
}

func (s *Sema) Release() {
	s.mu.Lock()
	s.n++
	s.cond.Signal()
	s.mu.Unlock()
}
