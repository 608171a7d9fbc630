package shmtable

import (
	"context"
	"errors"
	"fmt"

	"github.com/llxisdsh/shmtable/internal/shm"
)

// Channel is the single-producer, single-consumer message transport.
//
// Messages are written back to back into a named shared region of fixed
// capacity, and a named counting semaphore tracks how many were written but
// not yet read. The region is a single-lap ring: when the next message does
// not fit, the producer waits until the consumer has read everything
// (pending count zero) and restarts at offset 0. The consumer follows the
// same cursor rule, so both sides always agree on where a message lives.
//
// One process creates the channel and reads from it, the other opens it
// and writes. Using several producers or several consumers on one channel
// is not supported.
type Channel struct {
	_      noCopy
	region *shm.Region
	sem    *shm.Semaphore
	mem    []byte
	cursor int
}

// CreateChannel creates the region and semaphore named by cfg and returns
// the consumer side. Close unlinks both names.
func CreateChannel(cfg Config) (*Channel, error) {
	if err := cfg.ValidateTransport(); err != nil {
		return nil, err
	}
	region, err := shm.CreateRegion(cfg.Dir, cfg.ShmName, cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("could not create shared memory: %w", err)
	}
	sem, err := shm.CreateSemaphore(cfg.Dir, cfg.SemName, 0)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("could not create named semaphore: %w", err)
	}
	return newChannel(region, sem), nil
}

// OpenChannel opens the region and semaphore created by the server and
// returns the producer side. cfg.Capacity must equal the server's;
// otherwise both sides would wrap at different offsets, so OpenChannel
// fails with shm.ErrSize before anything is written.
func OpenChannel(cfg Config) (*Channel, error) {
	if err := cfg.ValidateTransport(); err != nil {
		return nil, err
	}
	region, err := shm.OpenRegion(cfg.Dir, cfg.ShmName, cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("could not open shared memory: %w", err)
	}
	sem, err := shm.OpenSemaphore(cfg.Dir, cfg.SemName)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("could not open named semaphore: %w", err)
	}
	return newChannel(region, sem), nil
}

func newChannel(region *shm.Region, sem *shm.Semaphore) *Channel {
	return &Channel{region: region, sem: sem, mem: region.Bytes()}
}

// Capacity returns the region size in bytes.
func (c *Channel) Capacity() int {
	return len(c.mem)
}

// Cursor returns this side's offset of the next message.
func (c *Channel) Cursor() int {
	return c.cursor
}

// Pending returns the number of written but unread messages.
func (c *Channel) Pending() int {
	if c.mem == nil {
		return 0
	}
	return c.sem.Value()
}

// Write appends one message and signals the consumer.
//
// If the message does not fit behind the cursor, Write blocks until the
// consumer has read every message, then wraps to offset 0.
func (c *Channel) Write(op Op, value int32) error {
	if c.mem == nil {
		return ErrClosed
	}
	if c.cursor+MessageSize > len(c.mem) {
		if err := c.sem.WaitZero(); err != nil {
			return fmt.Errorf("wait for drain: %w", err)
		}
		c.cursor = 0
	}
	Message{Op: op, Value: value}.Encode(c.mem[c.cursor:])
	c.cursor += MessageSize
	// The post publishes the bytes above.
	if err := c.sem.Post(); err != nil {
		return fmt.Errorf("signal message: %w", err)
	}
	return nil
}

// Read blocks until a message is pending, decodes it and marks it consumed.
// Unknown operation codes are returned unchanged.
func (c *Channel) Read() (Op, int32, error) {
	m, err := c.ReadMessage(context.Background())
	return m.Op, m.Value, err
}

// ReadMessage is Read returning a Message. It gives up with ctx.Err() if
// ctx is cancelled before a message arrives; a message is never half read.
func (c *Channel) ReadMessage(ctx context.Context) (Message, error) {
	if c.mem == nil {
		return Message{}, ErrClosed
	}
	if err := c.sem.WaitAvailable(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		return Message{}, fmt.Errorf("wait for message: %w", err)
	}
	if c.cursor+MessageSize > len(c.mem) {
		c.cursor = 0
	}
	m := DecodeMessage(c.mem[c.cursor:])
	c.cursor += MessageSize
	// Consume only after decoding: a drained count lets the producer wrap
	// and overwrite this slot.
	if err := c.sem.Wait(); err != nil {
		return Message{}, fmt.Errorf("consume message: %w", err)
	}
	return m, nil
}

// Close releases the mapping and the semaphore. On the creating side it
// also unlinks both names. It is safe to call more than once.
func (c *Channel) Close() error {
	if c.mem == nil {
		return nil
	}
	c.mem = nil
	return errors.Join(c.sem.Close(), c.region.Close())
}
