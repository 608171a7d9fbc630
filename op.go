package shmtable

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Op is the operation code carried by a Message.
type Op int32

const (
	OpInsert Op = iota
	OpDelete
	OpFind
	OpPrint
	OpQuit
)

// MessageSize is the encoded width of one Message in bytes.
const MessageSize = 8

var opNames = [...]string{
	OpInsert: "insert",
	OpDelete: "delete",
	OpFind:   "find",
	OpPrint:  "print",
	OpQuit:   "quit",
}

// Valid reports whether op is one of the known operation codes.
func (op Op) Valid() bool {
	return op >= OpInsert && op <= OpQuit
}

// String returns the lower-case operation name, or "op(N)" for unknown codes.
func (op Op) String() string {
	if op.Valid() {
		return opNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// ParseOp parses an operation name as printed by String. Case is ignored
// and "remove" is accepted for OpDelete.
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "remove" {
		return OpDelete, nil
	}
	for i, name := range opNames {
		if name == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Message is one fixed-width transport record.
//
// Wire layout (little-endian):
//
//	0..3: Op    int32
//	4..7: Value int32 (ignored for print and quit)
type Message struct {
	Op    Op
	Value int32
}

// Encode writes m into b, which must hold at least MessageSize bytes.
func (m Message) Encode(b []byte) {
	_ = b[MessageSize-1]
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.Op))
	binary.LittleEndian.PutUint32(b[4:8], uint32(m.Value))
}

// DecodeMessage reads one Message from the first MessageSize bytes of b.
// Unknown operation codes are returned as-is; callers check Op.Valid.
func DecodeMessage(b []byte) Message {
	_ = b[MessageSize-1]
	return Message{
		Op:    Op(int32(binary.LittleEndian.Uint32(b[0:4]))),
		Value: int32(binary.LittleEndian.Uint32(b[4:8])),
	}
}

func (m Message) String() string {
	switch m.Op {
	case OpPrint, OpQuit:
		return m.Op.String()
	}
	return m.Op.String() + "(" + strconv.Itoa(int(m.Value)) + ")"
}
