package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/t81dev/hanoivm/pkg/operand"
)

// Instruction is one decoded entry of a program's opcode index.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []operand.Operand
}

// UnknownOpcodeError reports a byte with no catalog or extension entry.
type UnknownOpcodeError struct {
	Offset int
	Code   Opcode
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode 0x%02X at offset %d", uint8(e.Code), e.Offset)
}

// TagMismatchError reports an operand whose tag disagrees with the
// opcode's declared operand type.
type TagMismatchError struct {
	Offset int
	Op     Opcode
	Want   operand.Tag
	Got    operand.Tag
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("%s at offset %d: operand tag %s, want %s",
		e.Op.Name(), e.Offset, e.Got, e.Want)
}

// Decode walks a raw instruction stream and produces the opcode index.
// Every opcode is resolved through Lookup and every operand is validated,
// so a nil error means the stream is well-formed end to end.
func Decode(data []byte) ([]Instruction, error) {
	var out []Instruction
	pos := 0
	for pos < len(data) {
		op := Opcode(data[pos])
		info, ok := Lookup(op)
		if !ok {
			return nil, &UnknownOpcodeError{Offset: pos, Code: op}
		}
		ins := Instruction{Offset: pos, Op: op}
		n := 1
		for i := 0; i < info.Operands; i++ {
			o, on, err := operand.Decode(data[pos+n:])
			if err != nil {
				return nil, fmt.Errorf("%s at offset %d: %w", info.Name, pos, err)
			}
			if info.Tag != 0 && o.Tag() != info.Tag {
				return nil, &TagMismatchError{Offset: pos, Op: op, Want: info.Tag, Got: o.Tag()}
			}
			ins.Operands = append(ins.Operands, o)
			n += on
		}
		out = append(out, ins)
		pos += n
	}
	return out, nil
}

// Encode is the assembler half of the round-trip law: re-serializing a
// decoded index reproduces the original bytes exactly.
func Encode(index []Instruction) ([]byte, error) {
	var buf bytes.Buffer
	for _, ins := range index {
		buf.WriteByte(uint8(ins.Op))
		for _, o := range ins.Operands {
			if err := operand.Encode(&buf, o); err != nil {
				return nil, fmt.Errorf("%s: %w", ins.Op.Name(), err)
			}
		}
	}
	return buf.Bytes(), nil
}

// EncodedLen returns the byte length of one instruction as it appears on
// the wire.
func EncodedLen(ins Instruction) (int, error) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(ins.Op))
	for _, o := range ins.Operands {
		if err := operand.Encode(&buf, o); err != nil {
			return 0, err
		}
	}
	return buf.Len(), nil
}

// Container header: "HVM0" magic, u32 payload length, u32 version, both
// little-endian. Unheadered raw streams are equally valid.
const (
	headerMagic = "HVM0"
	headerLen   = 12
)

// WrapHeader prefixes a raw stream with the container header.
func WrapHeader(payload []byte, version uint32) []byte {
	out := make([]byte, headerLen, headerLen+len(payload))
	copy(out, headerMagic)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[8:], version)
	return append(out, payload...)
}

// StripHeader removes a container header when present. Raw streams pass
// through with headered=false. A magic match with a bad length is an
// error rather than a silent fallthrough.
func StripHeader(data []byte) (payload []byte, version uint32, headered bool, err error) {
	if len(data) < headerLen || string(data[:4]) != headerMagic {
		return data, 0, false, nil
	}
	declared := binary.LittleEndian.Uint32(data[4:8])
	version = binary.LittleEndian.Uint32(data[8:12])
	payload = data[headerLen:]
	if int(declared) != len(payload) {
		return nil, 0, true, fmt.Errorf("bytecode: header declares %d payload bytes, have %d", declared, len(payload))
	}
	return payload, version, true, nil
}
