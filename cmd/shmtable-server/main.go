// Command shmtable-server creates the shared memory transport, serves a
// concurrent hash table from it and removes the transport on exit.
//
// Usage:
//
//	shmtable-server [flags] <buckets>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/shmtable"
	"github.com/llxisdsh/shmtable/internal/debug"
)

func main() {
	cfg := shmtable.DefaultConfig()
	cfg.ApplyEnv()

	var statsEvery time.Duration
	flag.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory for the region and semaphore files (default /dev/shm or temp dir)")
	flag.StringVar(&cfg.ShmName, "shm", cfg.ShmName, "shared memory region name (refused while another server holds it; a stale one is replaced)")
	flag.StringVar(&cfg.SemName, "sem", cfg.SemName, "semaphore name")
	flag.IntVar(&cfg.Capacity, "size", cfg.Capacity, "shared memory size in bytes")
	flag.IntVar(&cfg.MaxWorkers, "workers", cfg.MaxWorkers, "maximum workers in flight at once")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "log every worker")
	flag.StringVar(&cfg.PrintFormat, "format", cfg.PrintFormat, "print format: text or json")
	flag.DurationVar(&cfg.Delay, "delay", cfg.Delay, "random pause per worker while holding its bucket lock, up to this value")
	flag.DurationVar(&statsEvery, "stats", 0, "log dispatch counters at this interval (0 disables)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <buckets>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	n, err := strconv.Atoi(flag.Arg(0))
	if err != nil || n <= 0 {
		debug.DropMessage("ERROR", "hashtable size not valid: "+flag.Arg(0))
		os.Exit(2)
	}
	cfg.Buckets = n

	os.Exit(run(cfg, statsEvery))
}

func run(cfg shmtable.Config, statsEvery time.Duration) int {
	srv, err := shmtable.NewServer(cfg, os.Stdout)
	if err != nil {
		debug.DropError("ERROR", err)
		return 1
	}
	defer func() {
		if err := srv.Close(); err != nil {
			debug.DropError("teardown", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.Run(ctx)
	})
	if statsEvery > 0 {
		g.Go(func() error {
			t := time.NewTicker(statsEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					d := srv.Dispatcher()
					debug.DropMessage("stats", formatStats(d.Stats())+" in_flight="+strconv.Itoa(d.InFlight()))
				}
			}
		})
	}

	err = g.Wait()
	debug.DropMessage("stats", formatStats(srv.Dispatcher().Stats()))
	switch {
	case err == nil:
		debug.DropMessage("server", "quit received")
		return 0
	case errors.Is(err, context.Canceled):
		debug.DropMessage("server", "interrupted")
		return 0
	default:
		return 1
	}
}

func formatStats(stats map[shmtable.Op]int64) string {
	if len(stats) == 0 {
		return "no messages"
	}
	ops := make([]shmtable.Op, 0, len(stats))
	for op := range stats {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String() + "=" + strconv.FormatInt(stats[op], 10)
	}
	return strings.Join(parts, " ")
}
