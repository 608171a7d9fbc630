package shmtable

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Client is the producer side: it opens the server's Channel and submits
// operations in order.
type Client struct {
	ch *Channel
}

// Dial opens the transport created by a running server.
func Dial(cfg Config) (*Client, error) {
	ch, err := OpenChannel(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{ch: ch}, nil
}

// Send submits m. It blocks only while the channel wraps around.
func (c *Client) Send(m Message) error {
	return c.ch.Write(m.Op, m.Value)
}

// Insert submits an Insert of v.
func (c *Client) Insert(v int32) error { return c.ch.Write(OpInsert, v) }

// Delete submits a Delete of v.
func (c *Client) Delete(v int32) error { return c.ch.Write(OpDelete, v) }

// Find submits a Find of v. The result is reported on the server side.
func (c *Client) Find(v int32) error { return c.ch.Write(OpFind, v) }

// Print asks the server to print the table once everything sent before
// has been applied.
func (c *Client) Print() error { return c.ch.Write(OpPrint, 0) }

// Quit asks the server to finish its current batch and stop.
func (c *Client) Quit() error { return c.ch.Write(OpQuit, 0) }

// Close unmaps the transport. The names stay owned by the server.
func (c *Client) Close() error {
	return c.ch.Close()
}

// DemoSequence is the scripted session the client runs with -demo.
func DemoSequence() []Message {
	return []Message{
		{OpPrint, 0},
		{OpFind, 3},
		{OpInsert, 3},
		{OpFind, 3},

		{OpInsert, -3},
		{OpInsert, -1},
		{OpInsert, 4},
		{OpInsert, 16},
		{OpPrint, 0},

		{OpInsert, 7},
		{OpInsert, 9},
		{OpInsert, -10},
		{OpInsert, 411},
		{OpFind, 4},
		{OpDelete, 4},

		{OpDelete, -3},
		{OpDelete, -3},
		{OpDelete, -10},
		{OpInsert, 4},

		{OpPrint, 0},
		{OpQuit, 0},
	}
}

// ParseMessages parses tokens such as "insert 3 find 3 print quit" into
// messages. Print and quit take no value; the other operations take one
// int32.
func ParseMessages(tokens []string) ([]Message, error) {
	var out []Message
	for i := 0; i < len(tokens); i++ {
		op, err := ParseOp(tokens[i])
		if err != nil {
			return nil, err
		}
		m := Message{Op: op}
		if op != OpPrint && op != OpQuit {
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%s: missing value", op)
			}
			i++
			v, err := strconv.ParseInt(tokens[i], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			m.Value = int32(v)
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseScript reads messages from r, one or more per line. Text after '#'
// is ignored.
func ParseScript(r io.Reader) ([]Message, error) {
	var tokens []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ParseMessages(tokens)
}
