package shmtable

import (
	"fmt"
	"io"

	"github.com/sugawarayuuta/sonnet"
)

// Printer renders the table snapshot taken at a print barrier.
type Printer interface {
	Print(s Snapshot) error
}

// TextPrinter writes "[i]: a -> b -> " lines, one per bucket.
type TextPrinter struct {
	W io.Writer
}

func (p TextPrinter) Print(s Snapshot) error {
	return writeText(p.W, s)
}

// JSONPrinter writes one {"buckets":[[...],...]} object per line.
type JSONPrinter struct {
	W io.Writer
}

func (p JSONPrinter) Print(s Snapshot) error {
	out := Snapshot{Buckets: make([][]int32, len(s.Buckets))}
	for i, b := range s.Buckets {
		if b == nil {
			// Keep empty buckets as [] rather than null.
			b = []int32{}
		}
		out.Buckets[i] = b
	}
	data, err := sonnet.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')
	_, err = p.W.Write(data)
	return err
}

// NewPrinter returns the Printer for a Config.PrintFormat value.
func NewPrinter(format string, w io.Writer) (Printer, error) {
	switch format {
	case PrintText, "":
		return TextPrinter{W: w}, nil
	case PrintJSON:
		return JSONPrinter{W: w}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrPrintFormat, format)
}
