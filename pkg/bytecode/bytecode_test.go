package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
)

func TestDecodeSimpleProgram(t *testing.T) {
	// PUSH 7, PUSH 5, ADD, HALT
	prog := []byte{0x01, 0x01, 0x01, 0x07, 0x01, 0x01, 0x01, 0x05, 0x03, 0xFF}
	index, err := Decode(prog)
	require.NoError(t, err)
	require.Len(t, index, 4)

	assert.Equal(t, PUSH, index[0].Op)
	assert.Equal(t, 0, index[0].Offset)
	assert.Equal(t, PUSH, index[1].Op)
	assert.Equal(t, 4, index[1].Offset)
	assert.Equal(t, ADD, index[2].Op)
	assert.Equal(t, 8, index[2].Offset)
	assert.Equal(t, HALT, index[3].Op)
	assert.Equal(t, 9, index[3].Offset)

	v := index[0].Operands[0].(operand.BigInt)
	got, err := v.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := Decode([]byte{0xEE})
	var ue *UnknownOpcodeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Opcode(0xEE), ue.Code)
	assert.Equal(t, 0, ue.Offset)
}

func TestDecodeTagMismatch(t *testing.T) {
	// JMP expects a BIGINT immediate; feed it an OPCODE literal.
	_, err := Decode([]byte{0x10, 0x0A, 0x00})
	var tm *TagMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, JMP, tm.Op)
	assert.Equal(t, operand.TagBigInt, tm.Want)
	assert.Equal(t, operand.TagOpcode, tm.Got)
}

// TestEncodeRoundTrip: assemble(decode(P)) == P for programs covering
// PUSH with scalar and matrix operands, jump/call immediates and an
// opcode literal.
func TestEncodeRoundTrip(t *testing.T) {
	progs := [][]byte{
		{0x01, 0x01, 0x01, 0x07, 0x01, 0x01, 0x01, 0x05, 0x03, 0xFF},
		{0x00, 0x02, 0xFF},
		// PUSH MATRIX[1x2]{7 5}
		{0x01, 0x04, 0x01, 0x02, 0x01, 0x01, 0x07, 0x01, 0x01, 0x05, 0xFF},
		// JMP 0, CALL 0, RET
		{0x10, 0x01, 0x01, 0x00, 0x13, 0x01, 0x01, 0x00, 0x14},
		// T729_INTENT OP(0x03)
		{0x31, 0x0A, 0x03, 0xFF},
	}
	for _, p := range progs {
		index, err := Decode(p)
		require.NoError(t, err)
		back, err := Encode(index)
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
}

func TestEncodedLen(t *testing.T) {
	ins := Instruction{Op: PUSH, Operands: []operand.Operand{
		operand.BigInt{BigInt: ternary.BigInt{Digits: []uint8{7}}},
	}}
	n, err := EncodedLen(ins)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExtensionTable(t *testing.T) {
	const ext Opcode = 0xE1
	_, ok := Lookup(ext)
	require.False(t, ok)

	require.NoError(t, RegisterExt(ext, Info{Name: "EXT_TEST", Tier: TierT243}))
	info, ok := Lookup(ext)
	require.True(t, ok)
	assert.Equal(t, "EXT_TEST", info.Name)
	assert.Equal(t, "EXT_TEST", ext.Name())

	// Canonical codes cannot be shadowed.
	assert.Error(t, RegisterExt(HALT, Info{Name: "NOT_HALT"}))

	// Extension opcodes decode once registered.
	index, err := Decode([]byte{uint8(ext), 0xFF})
	require.NoError(t, err)
	assert.Len(t, index, 2)
}

func TestHeaderRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0xFF}
	img := WrapHeader(payload, 3)
	assert.Len(t, img, 12+len(payload))

	got, version, headered, err := StripHeader(img)
	require.NoError(t, err)
	assert.True(t, headered)
	assert.Equal(t, uint32(3), version)
	assert.Equal(t, payload, got)

	// Raw streams pass through untouched.
	got, _, headered, err = StripHeader(payload)
	require.NoError(t, err)
	assert.False(t, headered)
	assert.Equal(t, payload, got)

	// Magic with a wrong declared length is an error.
	bad := WrapHeader(payload, 1)[:13]
	_, _, _, err = StripHeader(bad)
	assert.Error(t, err)
}

func TestTierParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Tier
	}{{"t81", TierT81}, {"t243", TierT243}, {"t729", TierT729}} {
		got, err := ParseTier(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.in, map[Tier]string{TierT81: "t81", TierT243: "t243", TierT729: "t729"}[got])
	}
	_, err := ParseTier("t27")
	assert.Error(t, err)
}

func TestOpcodeNames(t *testing.T) {
	assert.Equal(t, "T81_MATMUL", T81MatMul.Name())
	assert.Equal(t, "HALT", HALT.Name())
	assert.Equal(t, "DB(0xEF)", Opcode(0xEF).Name())
}
