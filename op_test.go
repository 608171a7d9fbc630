package shmtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_WireLayout(t *testing.T) {
	var b [MessageSize]byte
	Message{Op: OpFind, Value: -2}.Encode(b[:])
	assert.Equal(t, [MessageSize]byte{2, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff}, b)

	m := DecodeMessage(b[:])
	assert.Equal(t, Message{Op: OpFind, Value: -2}, m)
}

func TestMessage_UnknownOpDecodes(t *testing.T) {
	var b [MessageSize]byte
	Message{Op: Op(42), Value: 7}.Encode(b[:])
	m := DecodeMessage(b[:])
	assert.Equal(t, Op(42), m.Op)
	assert.False(t, m.Op.Valid())
	assert.Equal(t, "op(42)", m.Op.String())

	Message{Op: Op(-1)}.Encode(b[:])
	assert.False(t, DecodeMessage(b[:]).Op.Valid())
}

func TestOp_Codes(t *testing.T) {
	// The codes are part of the wire format.
	assert.EqualValues(t, 0, OpInsert)
	assert.EqualValues(t, 1, OpDelete)
	assert.EqualValues(t, 2, OpFind)
	assert.EqualValues(t, 3, OpPrint)
	assert.EqualValues(t, 4, OpQuit)
}

func TestParseOp(t *testing.T) {
	for _, op := range []Op{OpInsert, OpDelete, OpFind, OpPrint, OpQuit} {
		got, err := ParseOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	got, err := ParseOp(" REMOVE ")
	require.NoError(t, err)
	assert.Equal(t, OpDelete, got)

	_, err = ParseOp("upsert")
	assert.Error(t, err)
}

func TestMessage_String(t *testing.T) {
	assert.Equal(t, "insert(-3)", Message{Op: OpInsert, Value: -3}.String())
	assert.Equal(t, "print", Message{Op: OpPrint, Value: 9}.String())
}
