package shmtable

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/llxisdsh/shmtable/internal/debug"
)

// Server owns the consumer side of a Channel, the HashTable and the
// Dispatcher between them.
type Server struct {
	cfg   Config
	ch    *Channel
	table *HashTable
	disp  *Dispatcher
}

// NewServer validates cfg, creates the transport and prepares the
// Dispatcher. Print output goes to out. Close must be called to unlink the
// transport names, also when Run fails.
func NewServer(cfg Config, out io.Writer, options ...func(*DispatcherConfig)) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	printer, err := NewPrinter(cfg.PrintFormat, out)
	if err != nil {
		return nil, err
	}
	ch, err := CreateChannel(cfg)
	if err != nil {
		return nil, err
	}

	table := NewHashTable(cfg.Buckets)
	opts := []func(*DispatcherConfig){
		WithMaxWorkers(cfg.MaxWorkers),
		WithPrinter(printer),
		WithVerbose(cfg.Verbose),
	}
	if cfg.Delay > 0 {
		opts = append(opts, WithWorkerHook(randomDelay(cfg.Delay)))
	}
	opts = append(opts, options...)

	return &Server{
		cfg:   cfg,
		ch:    ch,
		table: table,
		disp:  NewDispatcher(ch, table, opts...),
	}, nil
}

// randomDelay pauses a worker for up to limit, making interleavings of
// concurrent workers visible.
func randomDelay(limit time.Duration) func(Message) {
	return func(Message) {
		time.Sleep(rand.N(limit))
	}
}

// Run dispatches until Quit, a transport error or ctx cancellation.
func (s *Server) Run(ctx context.Context) error {
	debug.DropMessage("server", "waiting for client input on "+s.ch.region.Path()+
		" ("+strconv.Itoa(s.table.Len())+" buckets, "+strconv.Itoa(s.disp.MaxWorkers())+" workers)")
	err := s.disp.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		debug.DropError("server", err)
	}
	return err
}

// Table returns the served table.
func (s *Server) Table() *HashTable {
	return s.table
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.disp
}

// Close unmaps and unlinks the transport.
func (s *Server) Close() error {
	return s.ch.Close()
}
