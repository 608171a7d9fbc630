// Command shmtable-client submits operations to a running shmtable-server.
//
// Usage:
//
//	shmtable-client [flags] [op [value]]...
//	shmtable-client -demo
//	shmtable-client -script ops.txt
//
// Operations are insert, delete, find (each followed by an int32), print
// and quit.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/llxisdsh/shmtable"
	"github.com/llxisdsh/shmtable/internal/debug"
)

func main() {
	cfg := shmtable.DefaultConfig()
	cfg.ApplyEnv()

	var (
		demo   bool
		script string
	)
	flag.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory for the region and semaphore files (default /dev/shm or temp dir)")
	flag.StringVar(&cfg.ShmName, "shm", cfg.ShmName, "shared memory region name")
	flag.StringVar(&cfg.SemName, "sem", cfg.SemName, "semaphore name")
	flag.IntVar(&cfg.Capacity, "size", cfg.Capacity, "shared memory size in bytes (must match the server)")
	flag.BoolVar(&demo, "demo", false, "send the built-in demo sequence")
	flag.StringVar(&script, "script", "", "read operations from a file, - for stdin")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [op [value]]...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	msgs, err := messages(demo, script, flag.Args())
	if err != nil {
		debug.DropError("ERROR", err)
		os.Exit(2)
	}
	if len(msgs) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(cfg, msgs))
}

func messages(demo bool, script string, args []string) ([]shmtable.Message, error) {
	var out []shmtable.Message
	if demo {
		out = append(out, shmtable.DemoSequence()...)
	}
	if script != "" {
		var r io.Reader = os.Stdin
		if script != "-" {
			f, err := os.Open(script)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		msgs, err := shmtable.ParseScript(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", script, err)
		}
		out = append(out, msgs...)
	}
	msgs, err := shmtable.ParseMessages(args)
	if err != nil {
		return nil, err
	}
	return append(out, msgs...), nil
}

func run(cfg shmtable.Config, msgs []shmtable.Message) int {
	c, err := shmtable.Dial(cfg)
	if err != nil {
		debug.DropError("ERROR", err)
		return 1
	}
	defer c.Close()

	for _, m := range msgs {
		if err := c.Send(m); err != nil {
			debug.DropError("send "+m.String(), err)
			return 1
		}
	}
	return 0
}
