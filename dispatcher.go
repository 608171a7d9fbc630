package shmtable

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/llxisdsh/pb"

	"github.com/llxisdsh/shmtable/internal/debug"
)

// Source is the consumer half of a transport.
// *Channel implements it.
type Source interface {
	// ReadMessage blocks until a message is available and consumes it.
	ReadMessage(ctx context.Context) (Message, error)
	// Pending returns the number of messages that can be read without
	// blocking.
	Pending() int
}

// DispatcherConfig holds the options of NewDispatcher.
type DispatcherConfig struct {
	maxWorkers int
	printer    Printer
	onFind     func(value int32, found bool)
	hook       func(m Message)
	verbose    bool
}

// WithMaxWorkers bounds the number of workers concurrently in flight.
// A worker holds its slot until its operation finished, so a batch ends
// early when every slot is taken. Values below 1 are ignored.
func WithMaxWorkers(n int) func(*DispatcherConfig) {
	return func(c *DispatcherConfig) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithPrinter sets where Print messages render the table.
// The default is a TextPrinter on stdout.
func WithPrinter(p Printer) func(*DispatcherConfig) {
	return func(c *DispatcherConfig) {
		if p != nil {
			c.printer = p
		}
	}
}

// WithFindReporter receives the result of every Find.
// It is called from worker goroutines after the bucket lock is released.
func WithFindReporter(fn func(value int32, found bool)) func(*DispatcherConfig) {
	return func(c *DispatcherConfig) {
		c.onFind = fn
	}
}

// WithWorkerHook runs fn in each worker while it holds its bucket lock,
// after the Dispatcher was told the lock is held and before the operation
// itself.
func WithWorkerHook(fn func(m Message)) func(*DispatcherConfig) {
	return func(c *DispatcherConfig) {
		c.hook = fn
	}
}

// WithVerbose enables per-worker trace lines.
func WithVerbose(on bool) func(*DispatcherConfig) {
	return func(c *DispatcherConfig) {
		c.verbose = on
	}
}

// Dispatcher drains a Source into a HashTable with concurrent workers while
// keeping the client's submission order per bucket.
//
// Each outer iteration is one batch:
//
//	DRAIN -> (SPAWN)* -> {PRINT | QUIT | limit reached} -> JOIN -> (PRINT)?
//
// Insert, Delete and Find each get a worker. The Dispatcher does not read
// the next message until that worker holds its bucket lock, so two
// operations on the same bucket lock it in the order they were sent.
// Operations on different buckets are not ordered.
//
// Print ends the batch; the table is printed once every worker of the batch
// has finished and before anything after the Print is admitted. Quit ends
// the batch and, after the join, the Dispatcher. Unknown operation codes
// are dropped.
type Dispatcher struct {
	_     noCopy
	src   Source
	table *HashTable
	cfg   DispatcherConfig
	slots *Semaphore
	batch []*worker
	seq   uint64
	stats pb.MapOf[Op, *atomic.Int64]
}

// NewDispatcher creates a Dispatcher reading src and operating on table.
func NewDispatcher(src Source, table *HashTable, options ...func(*DispatcherConfig)) *Dispatcher {
	cfg := DispatcherConfig{
		maxWorkers: runtime.NumCPU(),
		printer:    TextPrinter{W: os.Stdout},
	}
	for _, o := range options {
		o(&cfg)
	}
	return &Dispatcher{
		src:   src,
		table: table,
		cfg:   cfg,
		slots: NewSemaphore(int64(cfg.maxWorkers)),
		batch: make([]*worker, 0, cfg.maxWorkers),
	}
}

// MaxWorkers returns the worker limit.
func (d *Dispatcher) MaxWorkers() int {
	return d.cfg.maxWorkers
}

// InFlight returns how many worker slots are taken: admitted workers that
// have not finished, plus one while a message is being read.
func (d *Dispatcher) InFlight() int {
	return d.cfg.maxWorkers - int(d.slots.Available())
}

// Run dispatches until a Quit message is read, returning nil, or until the
// Source fails or ctx is cancelled, returning the error. Workers already
// admitted are always joined before Run returns; cancellation is only
// observed while waiting for a message.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		quit, doPrint, err := d.drain(ctx)
		d.join()
		if err != nil {
			return err
		}
		if doPrint {
			if err := d.cfg.printer.Print(d.table.Snapshot()); err != nil {
				return fmt.Errorf("print table: %w", err)
			}
		}
		if quit {
			return nil
		}
	}
}

// drain reads one batch. The first read blocks until a message arrives;
// later reads only happen while messages are pending and a worker slot is
// free.
func (d *Dispatcher) drain(ctx context.Context) (quit, doPrint bool, err error) {
	for first := true; first || d.src.Pending() > 0; first = false {
		if first {
			// The previous batch was joined, so this never waits.
			d.slots.Acquire(1)
		} else if !d.slots.TryAcquire(1) {
			return false, false, nil
		}
		m, err := d.src.ReadMessage(ctx)
		if err != nil {
			d.slots.Release(1)
			return false, false, err
		}
		d.count(m.Op)

		switch m.Op {
		case OpInsert, OpDelete, OpFind:
			// The worker gives the slot back when done.
			d.admit(m)
		case OpPrint:
			d.slots.Release(1)
			return false, true, nil
		case OpQuit:
			d.slots.Release(1)
			return true, false, nil
		default:
			d.slots.Release(1)
			if d.cfg.verbose {
				debug.DropMessage("dispatch", "dropping "+m.String())
			}
		}
	}
	return false, false, nil
}

// admit starts a worker for m and waits until it holds its bucket lock.
func (d *Dispatcher) admit(m Message) {
	d.seq++
	w := &worker{id: d.seq, msg: m}
	d.batch = append(d.batch, w)
	go d.work(w)
	w.locked.Wait()
}

// join waits for every worker of the current batch.
func (d *Dispatcher) join() {
	for i, w := range d.batch {
		w.done.Wait()
		d.batch[i] = nil
	}
	d.batch = d.batch[:0]
}

func (d *Dispatcher) count(op Op) {
	c, ok := d.stats.Load(op)
	if !ok {
		c, _ = d.stats.LoadOrStore(op, new(atomic.Int64))
	}
	c.Add(1)
}

// Stats returns how many messages of each operation code were read,
// including dropped unknown codes.
func (d *Dispatcher) Stats() map[Op]int64 {
	out := make(map[Op]int64)
	d.stats.Range(func(op Op, c *atomic.Int64) bool {
		out[op] = c.Load()
		return true
	})
	return out
}
