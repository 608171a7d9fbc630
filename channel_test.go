package shmtable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/llxisdsh/shmtable/internal/shm"
)

func testConfig(t interface{ TempDir() string }, capacity int) Config {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.ShmName = "/shm"
	cfg.SemName = "/sem"
	cfg.Capacity = capacity
	return cfg
}

// channelPair returns the consumer (creating) and producer (opening) sides
// of one transport.
func channelPair(t *testing.T, capacity int) (consumer, producer *Channel) {
	t.Helper()
	cfg := testConfig(t, capacity)
	consumer, err := CreateChannel(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })
	producer, err = OpenChannel(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { producer.Close() })
	return consumer, producer
}

func TestChannel_WriteRead(t *testing.T) {
	consumer, producer := channelPair(t, 4096)

	require.NoError(t, producer.Write(OpInsert, 3))
	require.NoError(t, producer.Write(OpFind, -3))
	assert.Equal(t, 2, consumer.Pending())
	assert.Equal(t, 2*MessageSize, producer.Cursor())

	op, v, err := consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, OpInsert, op)
	assert.Equal(t, int32(3), v)

	op, v, err = consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, OpFind, op)
	assert.Equal(t, int32(-3), v)
	assert.Equal(t, 0, consumer.Pending())
}

func TestChannel_WrapWaitsForDrain(t *testing.T) {
	// Room for exactly two messages.
	consumer, producer := channelPair(t, 2*MessageSize)

	require.NoError(t, producer.Write(OpInsert, 1))
	require.NoError(t, producer.Write(OpInsert, 2))

	written := make(chan error, 1)
	go func() {
		written <- producer.Write(OpInsert, 3)
	}()

	select {
	case <-written:
		t.Fatal("third write did not wait for the consumer")
	case <-time.After(50 * time.Millisecond):
	}

	_, v, err := consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)

	select {
	case <-written:
		t.Fatal("third write wrapped with a message still pending")
	case <-time.After(50 * time.Millisecond):
	}

	_, v, err = consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("third write still blocked after drain")
	}
	// Wrapped to 0, then advanced past the new message.
	assert.Equal(t, MessageSize, producer.Cursor())

	_, v, err = consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)
	assert.Equal(t, MessageSize, consumer.Cursor())
}

func TestChannel_UnalignedCapacityUsesWholeMessages(t *testing.T) {
	consumer, producer := channelPair(t, 2*MessageSize+5)

	for i := range int32(5) {
		require.NoError(t, producer.Write(OpInsert, i))
		_, v, err := consumer.Read()
		require.NoError(t, err)
		assert.Equal(t, i, v)
		assert.LessOrEqual(t, producer.Cursor(), 2*MessageSize)
	}
}

func TestChannel_UnknownOpPassesThrough(t *testing.T) {
	consumer, producer := channelPair(t, 64)

	require.NoError(t, producer.Write(Op(99), 5))
	op, v, err := consumer.Read()
	require.NoError(t, err)
	assert.Equal(t, Op(99), op)
	assert.Equal(t, int32(5), v)
}

func TestChannel_CapacityTooSmall(t *testing.T) {
	cfg := testConfig(t, MessageSize-1)
	_, err := CreateChannel(cfg)
	assert.ErrorIs(t, err, ErrCapacity)
	_, err = OpenChannel(cfg)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestChannel_OpenWithoutServer(t *testing.T) {
	_, err := OpenChannel(testConfig(t, 64))
	assert.ErrorIs(t, err, shm.ErrNotExist)
}

func TestChannel_CapacityMismatch(t *testing.T) {
	cfg := testConfig(t, 4*MessageSize)
	consumer, err := CreateChannel(cfg)
	require.NoError(t, err)
	defer consumer.Close()

	for _, capacity := range []int{2 * MessageSize, 8 * MessageSize} {
		cfg.Capacity = capacity
		_, err := OpenChannel(cfg)
		assert.ErrorIs(t, err, shm.ErrSize, "capacity %d", capacity)
	}
	// Nothing reached the consumer.
	assert.Equal(t, 0, consumer.Pending())
}

func TestChannel_Closed(t *testing.T) {
	consumer, producer := channelPair(t, 64)
	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())
	assert.ErrorIs(t, producer.Write(OpInsert, 1), ErrClosed)

	require.NoError(t, consumer.Close())
	_, _, err := consumer.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, consumer.Pending())
}

func TestChannel_ReadCancel(t *testing.T) {
	consumer, _ := channelPair(t, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := consumer.ReadMessage(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_WraparoundPreservesMessages(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		slots := rapid.IntRange(1, 6).Draw(rt, "slots")
		msgs := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) Message {
			return Message{
				Op:    Op(rapid.Int32Range(0, 6).Draw(rt, "op")),
				Value: rapid.Int32().Draw(rt, "value"),
			}
		}), 0, 40).Draw(rt, "msgs")

		cfg := testConfig(t, slots*MessageSize)
		consumer, err := CreateChannel(cfg)
		if err != nil {
			rt.Fatalf("create: %v", err)
		}
		defer consumer.Close()
		producer, err := OpenChannel(cfg)
		if err != nil {
			rt.Fatalf("open: %v", err)
		}
		defer producer.Close()

		errc := make(chan error, 1)
		go func() {
			for _, m := range msgs {
				if err := producer.Write(m.Op, m.Value); err != nil {
					errc <- err
					return
				}
			}
			errc <- nil
		}()

		for i, want := range msgs {
			got, err := consumer.ReadMessage(context.Background())
			if err != nil {
				rt.Fatalf("read %d: %v", i, err)
			}
			if got != want {
				rt.Fatalf("message %d: got %v, want %v", i, got, want)
			}
		}
		if err := <-errc; err != nil {
			rt.Fatalf("write: %v", err)
		}
	})
}
