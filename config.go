package shmtable

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"
)

var (
	// ErrCapacity is returned when the transport cannot hold one message.
	ErrCapacity = errors.New("shmtable: capacity is smaller than message size")
	// ErrBuckets is returned for a non-positive bucket count.
	ErrBuckets = errors.New("shmtable: bucket count must be positive")
	// ErrWorkers is returned for a non-positive worker limit.
	ErrWorkers = errors.New("shmtable: worker limit must be positive")
	// ErrPrintFormat is returned for an unknown print format.
	ErrPrintFormat = errors.New("shmtable: unknown print format")
	// ErrClosed is returned by Channel methods after Close.
	ErrClosed = errors.New("shmtable: channel closed")
)

// Print formats understood by Config.PrintFormat.
const (
	PrintText = "text"
	PrintJSON = "json"
)

// Environment variables consulted by Config.ApplyEnv. They carry the names
// producer and consumer agree on out of band.
const (
	EnvDir     = "SHMTABLE_DIR"
	EnvShmName = "SHMTABLE_SHM"
	EnvSemName = "SHMTABLE_SEM"
)

// Config is the process configuration shared by the server and the client.
type Config struct {
	// Dir holds the region and semaphore files. Empty means /dev/shm when
	// present, the temp directory otherwise.
	Dir string

	// ShmName names the message region.
	ShmName string

	// SemName names the pending-message semaphore.
	SemName string

	// Capacity is the region size in bytes. Must be at least MessageSize;
	// only whole messages are used.
	Capacity int

	// Buckets is the hash table bucket count (server only).
	Buckets int

	// MaxWorkers bounds the workers concurrently in flight (server only).
	MaxWorkers int

	// Verbose enables per-worker trace lines.
	Verbose bool

	// PrintFormat selects the Print output: PrintText or PrintJSON.
	PrintFormat string

	// Delay is the upper bound of a random pause each worker takes between
	// locking its bucket and running the operation. Zero disables it.
	Delay time.Duration
}

// DefaultConfig returns the configuration both sides start from.
func DefaultConfig() Config {
	return Config{
		ShmName:     "shmtable",
		SemName:     "shmtable",
		Capacity:    4096,
		MaxWorkers:  runtime.NumCPU(),
		PrintFormat: PrintText,
	}
}

// ApplyEnv overrides the resource names from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDir); v != "" {
		c.Dir = v
	}
	if v := os.Getenv(EnvShmName); v != "" {
		c.ShmName = v
	}
	if v := os.Getenv(EnvSemName); v != "" {
		c.SemName = v
	}
}

// ValidateTransport checks the settings both sides need.
func (c Config) ValidateTransport() error {
	if c.Capacity < MessageSize {
		return fmt.Errorf("%w: %d < %d", ErrCapacity, c.Capacity, MessageSize)
	}
	if c.ShmName == "" || c.SemName == "" {
		return errors.New("shmtable: shared memory and semaphore names are required")
	}
	return nil
}

// Validate checks the full server configuration.
func (c Config) Validate() error {
	if err := c.ValidateTransport(); err != nil {
		return err
	}
	if c.Buckets <= 0 {
		return fmt.Errorf("%w: %d", ErrBuckets, c.Buckets)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("%w: %d", ErrWorkers, c.MaxWorkers)
	}
	switch c.PrintFormat {
	case PrintText, PrintJSON:
	default:
		return fmt.Errorf("%w: %q", ErrPrintFormat, c.PrintFormat)
	}
	if c.Delay < 0 {
		return fmt.Errorf("shmtable: negative delay %v", c.Delay)
	}
	return nil
}
