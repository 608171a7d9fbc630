package shmtable

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/shmtable/internal/shm"
)

const (
	emptyDemoTable = "[0]: \n[1]: \n[2]: \n[3]: \n[4]: \n[5]: \n[6]: \n\n"
	midDemoTable   = "[0]: \n[1]: -1 -> \n[2]: 16 -> \n[3]: 3 -> -3 -> \n[4]: 4 -> \n[5]: \n[6]: \n\n"
	finalDemoTable = "[0]: 7 -> \n[1]: -1 -> \n[2]: 16 -> 9 -> \n[3]: 3 -> \n[4]: 4 -> \n[5]: 411 -> \n[6]: \n\n"
)

func serverConfig(t *testing.T, capacity int) Config {
	cfg := testConfig(t, capacity)
	cfg.Buckets = 7
	cfg.MaxWorkers = 4
	cfg.Delay = time.Millisecond
	return cfg
}

func TestServer_DemoSession(t *testing.T) {
	// Two messages fit, so the demo wraps around many times.
	cfg := serverConfig(t, 2*MessageSize)
	var out bytes.Buffer
	finds := &findRecorder{}
	srv, err := NewServer(cfg, &out, WithFindReporter(finds.report))
	require.NoError(t, err)
	defer srv.Close()

	client, err := Dial(cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		for _, m := range DemoSequence() {
			if err := client.Send(m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, emptyDemoTable+midDemoTable+finalDemoTable, out.String())
	assert.ElementsMatch(t, []findResult{{3, false}, {3, true}, {4, true}}, finds.results)

	stats := srv.Dispatcher().Stats()
	assert.EqualValues(t, 10, stats[OpInsert])
	assert.EqualValues(t, 4, stats[OpDelete])
	assert.EqualValues(t, 3, stats[OpFind])
	assert.EqualValues(t, 3, stats[OpPrint])
	assert.EqualValues(t, 1, stats[OpQuit])
	assert.Equal(t, 7, srv.Table().Len())
}

func TestServer_JSONOutput(t *testing.T) {
	cfg := serverConfig(t, 4096)
	cfg.Buckets = 3
	cfg.PrintFormat = PrintJSON
	var out bytes.Buffer
	srv, err := NewServer(cfg, &out)
	require.NoError(t, err)
	defer srv.Close()

	client, err := Dial(cfg)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Insert(4))
	require.NoError(t, client.Insert(-1))
	require.NoError(t, client.Insert(6))
	require.NoError(t, client.Print())
	require.NoError(t, client.Quit())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Run(ctx))
	assert.JSONEq(t, `{"buckets":[[6],[4,-1],[]]}`, strings.TrimSpace(out.String()))
}

func TestServer_Cancel(t *testing.T) {
	cfg := serverConfig(t, 4096)
	srv, err := NewServer(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Run(ctx), context.DeadlineExceeded)
}

func TestServer_InvalidConfig(t *testing.T) {
	cfg := serverConfig(t, 4096)
	cfg.Buckets = 0
	_, err := NewServer(cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrBuckets)

	cfg = serverConfig(t, MessageSize-1)
	_, err = NewServer(cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrCapacity)

	cfg = serverConfig(t, 4096)
	cfg.PrintFormat = "yaml"
	_, err = NewServer(cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrPrintFormat)
}

func TestServer_SecondServerRefused(t *testing.T) {
	cfg := serverConfig(t, 4096)
	first, err := NewServer(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer first.Close()

	_, err = NewServer(cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, shm.ErrInUse)

	// The first server's transport is untouched.
	client, err := Dial(cfg)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Insert(5))
	require.NoError(t, client.Quit())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, first.Run(ctx))
	assert.True(t, first.Table().Find(5))
}

func TestServer_CloseRemovesNames(t *testing.T) {
	cfg := serverConfig(t, 4096)
	srv, err := NewServer(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	_, err = Dial(cfg)
	assert.Error(t, err)
}
