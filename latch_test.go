package shmtable

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/llxisdsh/shmtable/internal/opt"
)

func TestLatchSize(t *testing.T) {
	if opt.Race_ {
		t.Skip("race builds use a larger semaphore")
	}
	var e Latch
	if size := unsafe.Sizeof(e); size != 8 {
		t.Errorf("Latch size = %d, want 8", size)
	}
}

func TestLatchBasic(t *testing.T) {
	var e Latch

	start := time.Now()
	time.AfterFunc(100*time.Millisecond, func() {
		e.Open()
	})

	e.Wait()
	dur := time.Since(start)
	if dur < 100*time.Millisecond {
		t.Errorf("Wait returned too early: %v", dur)
	}
}

func TestLatchBroadcast(t *testing.T) {
	var e Latch
	var count int32
	var wg sync.WaitGroup
	n := 10

	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			e.Wait()
			atomic.AddInt32(&count, 1)
		}()
	}

	// Ensure they are waiting
	time.Sleep(50 * time.Millisecond)
	if c := atomic.LoadInt32(&count); c != 0 {
		t.Errorf("Waiters passed early: %d", c)
	}

	e.Open()
	wg.Wait()

	if c := atomic.LoadInt32(&count); c != int32(n) {
		t.Errorf("Not all waiters woke up: %d / %d", c, n)
	}
}

func TestLatchOpenIdempotent(t *testing.T) {
	var e Latch
	e.Open()
	e.Open()
	e.Wait()
}

func TestLatchPublishesWrites(t *testing.T) {
	// Plain writes before Open must be visible after Wait, also to waiters
	// that were already parked. Run with -race to check the edge.
	for range 100 {
		var e Latch
		var data []int
		parked := make(chan struct{})
		go func() {
			<-parked
			time.Sleep(time.Millisecond)
			data = append(data, 1, 2, 3)
			e.Open()
		}()
		close(parked)
		e.Wait()
		if len(data) != 3 {
			t.Fatalf("data = %v after Wait", data)
		}
	}
}
