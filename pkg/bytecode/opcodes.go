// Package bytecode defines the HanoiVM opcode set, the static instruction
// catalog, and the instruction stream codec shared by the loader, the
// disassembler and the VM.
package bytecode

import (
	"fmt"
	"sync"

	"github.com/t81dev/hanoivm/pkg/operand"
)

// Opcode is one instruction byte.
type Opcode uint8

// The canonical opcode set. Numeric codes are fixed for compatibility.
const (
	NOP  Opcode = 0x00
	PUSH Opcode = 0x01
	POP  Opcode = 0x02
	ADD  Opcode = 0x03
	SUB  Opcode = 0x04
	MUL  Opcode = 0x05
	DIV  Opcode = 0x06
	MOD  Opcode = 0x07
	NEG  Opcode = 0x08
	ABS  Opcode = 0x09
	CMP3 Opcode = 0x0A

	JMP  Opcode = 0x10
	JZ   Opcode = 0x11
	JNZ  Opcode = 0x12
	CALL Opcode = 0x13
	RET  Opcode = 0x14

	TNNAccum  Opcode = 0x20
	T81MatMul Opcode = 0x21

	T243StateAdv    Opcode = 0x30
	T729Intent      Opcode = 0x31
	T729HoloFFT     Opcode = 0x32
	T729MetaExec    Opcode = 0x33
	T243MarkovStep  Opcode = 0x34
	T243SymbolOut   Opcode = 0x35
	T729EntropySnap Opcode = 0x36
	T243CircuitStep Opcode = 0x37
	T243MorphicTag  Opcode = 0x38
	T729MindmapQry  Opcode = 0x39

	HALT Opcode = 0xFF
)

// Tier names the VM mode an opcode requires. Ordering is significant:
// a higher tier satisfies a lower requirement.
type Tier uint8

// The three execution tiers.
const (
	TierT81 Tier = iota
	TierT243
	TierT729
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierT81:
		return "T81"
	case TierT243:
		return "T243"
	case TierT729:
		return "T729"
	}
	return fmt.Sprintf("TIER(%d)", uint8(t))
}

// ParseTier maps a lowercase tier name to its value.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "t81":
		return TierT81, nil
	case "t243":
		return TierT243, nil
	case "t729":
		return TierT729, nil
	}
	return 0, fmt.Errorf("bytecode: unknown tier %q", s)
}

// Info holds static metadata for an opcode.
type Info struct {
	Name     string      // Mnemonic, e.g. "T81_MATMUL"
	Operands int         // Encoded operand count
	Tag      operand.Tag // Required operand tag; zero accepts any known tag
	Tier     Tier        // Minimum mode
}

// catalogRecord pairs an opcode with its Info for declarative table
// construction.
type catalogRecord struct {
	Op   Opcode
	Info Info
}

var catalogRecords = []catalogRecord{
	{NOP, Info{Name: "NOP"}},
	{PUSH, Info{Name: "PUSH", Operands: 1}},
	{POP, Info{Name: "POP"}},
	{ADD, Info{Name: "ADD"}},
	{SUB, Info{Name: "SUB"}},
	{MUL, Info{Name: "MUL"}},
	{DIV, Info{Name: "DIV"}},
	{MOD, Info{Name: "MOD"}},
	{NEG, Info{Name: "NEG"}},
	{ABS, Info{Name: "ABS"}},
	{CMP3, Info{Name: "CMP3"}},
	{JMP, Info{Name: "JMP", Operands: 1, Tag: operand.TagBigInt}},
	{JZ, Info{Name: "JZ", Operands: 1, Tag: operand.TagBigInt}},
	{JNZ, Info{Name: "JNZ", Operands: 1, Tag: operand.TagBigInt}},
	{CALL, Info{Name: "CALL", Operands: 1, Tag: operand.TagBigInt}},
	{RET, Info{Name: "RET"}},
	{TNNAccum, Info{Name: "TNN_ACCUM", Operands: 2, Tier: TierT243}},
	{T81MatMul, Info{Name: "T81_MATMUL", Operands: 2, Tag: operand.TagMatrix, Tier: TierT243}},
	{T243StateAdv, Info{Name: "T243_STATE_ADV", Operands: 1, Tag: operand.TagBigInt, Tier: TierT243}},
	{T729Intent, Info{Name: "T729_INTENT", Operands: 1, Tag: operand.TagOpcode, Tier: TierT729}},
	{T729HoloFFT, Info{Name: "T729_HOLO_FFT", Tier: TierT729}},
	{T729MetaExec, Info{Name: "T729_META_EXEC", Tier: TierT729}},
	{T243MarkovStep, Info{Name: "T243_MARKOV_STEP", Operands: 1, Tag: operand.TagBigInt, Tier: TierT243}},
	{T243SymbolOut, Info{Name: "T243_SYMBOL_OUT", Operands: 1, Tag: operand.TagBigInt, Tier: TierT243}},
	{T729EntropySnap, Info{Name: "T729_ENTROPY_SNAP", Tier: TierT729}},
	{T243CircuitStep, Info{Name: "T243_CIRCUIT_STEP", Tier: TierT243}},
	{T243MorphicTag, Info{Name: "T243_MORPHIC_TAG", Tier: TierT243}},
	{T729MindmapQry, Info{Name: "T729_MINDMAP_QUERY", Operands: 1, Tag: operand.TagVector, Tier: TierT729}},
	{HALT, Info{Name: "HALT"}},
}

// catalog is the immutable dispatch-side table, built once at init.
var catalog [256]*Info

func init() {
	for i := range catalogRecords {
		rec := &catalogRecords[i]
		catalog[rec.Op] = &rec.Info
	}
}

// extension is the pluggable second-chance table for opcodes outside the
// canonical set.
var extension = struct {
	sync.RWMutex
	m map[Opcode]Info
}{m: make(map[Opcode]Info)}

// RegisterExt adds or replaces an extension opcode. Canonical opcodes
// cannot be shadowed.
func RegisterExt(op Opcode, info Info) error {
	if catalog[op] != nil {
		return fmt.Errorf("bytecode: opcode 0x%02X is canonical", uint8(op))
	}
	extension.Lock()
	defer extension.Unlock()
	extension.m[op] = info
	return nil
}

// Lookup resolves an opcode against the catalog, then the extension table.
func Lookup(op Opcode) (Info, bool) {
	if info := catalog[op]; info != nil {
		return *info, true
	}
	extension.RLock()
	defer extension.RUnlock()
	info, ok := extension.m[op]
	return info, ok
}

// Name returns the mnemonic, or a hex placeholder for unknown codes.
func (op Opcode) Name() string {
	if info, ok := Lookup(op); ok {
		return info.Name
	}
	return fmt.Sprintf("DB(0x%02X)", uint8(op))
}
