package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/loader"
	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
	"github.com/t81dev/hanoivm/pkg/trace"
)

func mustLoad(t *testing.T, prog []byte) *loader.Program {
	t.Helper()
	p, err := loader.Load(prog, loader.Options{})
	require.NoError(t, err)
	return p
}

func assemble(t *testing.T, index []bytecode.Instruction) *loader.Program {
	t.Helper()
	raw, err := bytecode.Encode(index)
	require.NoError(t, err)
	return mustLoad(t, raw)
}

func bigOp(v int64) operand.BigInt {
	return operand.Int(v)
}

func eventNames(evs []trace.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Op
	}
	return out
}

// TestAddSmallBigInts is the canonical smoke program: PUSH 7, PUSH 5,
// ADD, HALT.
func TestAddSmallBigInts(t *testing.T) {
	prog := mustLoad(t, []byte{0x01, 0x01, 0x01, 0x07, 0x01, 0x01, 0x01, 0x05, 0x03, 0xFF})
	ring := trace.NewRing(64)
	ctx := New(prog, Config{Sink: ring})
	out := ctx.Run()

	require.Equal(t, OutcomeOK, out.Kind)
	require.Len(t, out.Stack, 1)
	res := out.Stack[0].(operand.BigInt)
	assert.Equal(t, []uint8{12}, res.Digits)
	assert.Equal(t, bytecode.TierT81, ctx.Mode())

	names := eventNames(ring.Events())
	assert.Equal(t, []string{"PUSH", "PUSH", "ADD", "HALT"}, names)
	for _, n := range names {
		assert.False(t, strings.HasPrefix(n, "MODE_CHANGE"))
	}
}

// TestDivByZero: the operands are popped, the fault fires, and both are
// restored.
func TestDivByZero(t *testing.T) {
	prog := mustLoad(t, []byte{0x01, 0x01, 0x01, 0x09, 0x01, 0x01, 0x01, 0x00, 0x06, 0xFF})
	ring := trace.NewRing(64)
	out := New(prog, Config{Sink: ring}).Run()

	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultDivideByZero, out.Fault.Kind)

	require.Len(t, out.Stack, 2)
	assert.Equal(t, []uint8{9}, out.Stack[0].(operand.BigInt).Digits)
	assert.Equal(t, []uint8{0}, out.Stack[1].(operand.BigInt).Digits)

	names := eventNames(ring.Events())
	assert.Equal(t, []string{"PUSH", "PUSH", "DIV_ZERO"}, names)
}

// TestCallPromotion: six nested CALLs with the default threshold of five
// promote exactly once.
func TestCallPromotion(t *testing.T) {
	var raw []byte
	for i := 0; i < 6; i++ {
		target := uint8(4 * (i + 1))
		raw = append(raw, 0x13, 0x01, 0x01, target)
	}
	raw = append(raw, 0xFF)
	prog := mustLoad(t, raw)

	ring := trace.NewRing(64)
	ctx := New(prog, Config{Sink: ring})
	out := ctx.Run()

	require.Equal(t, OutcomeOK, out.Kind)
	assert.Equal(t, bytecode.TierT243, ctx.Mode())
	assert.Equal(t, 6, ctx.CallDepth())

	var changes []string
	for _, n := range eventNames(ring.Events()) {
		if strings.HasPrefix(n, "MODE_CHANGE") {
			changes = append(changes, n)
		}
	}
	require.Len(t, changes, 1)
	assert.Equal(t, "MODE_CHANGE(T81->T243,depth)", changes[0])
}

// TestMatMulModeViolation: T81_MATMUL straight from T81 faults and leaves
// the stack untouched.
func TestMatMulModeViolation(t *testing.T) {
	mat := operand.Matrix{Rows: 2, Cols: 2, Cells: []operand.Operand{
		bigOp(1), bigOp(2), bigOp(3), bigOp(4),
	}}
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.T81MatMul, Operands: []operand.Operand{mat, mat}},
		{Op: bytecode.HALT},
	})
	ring := trace.NewRing(64)
	out := New(prog, Config{Sink: ring}).Run()

	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultModeViolation, out.Fault.Kind)
	assert.Empty(t, out.Stack)
	assert.Equal(t, []string{"T81_MATMUL_MODE"}, eventNames(ring.Events()))
}

// TestMatrixRoundTrip: disassembling a pushed matrix and re-assembling
// reproduces the program byte-for-byte.
func TestMatrixRoundTrip(t *testing.T) {
	mat := operand.Matrix{Rows: 2, Cols: 3, Cells: []operand.Operand{
		bigOp(1), bigOp(2), bigOp(3), bigOp(4), bigOp(5), bigOp(6),
	}}
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.PUSH, Operands: []operand.Operand{mat}},
		{Op: bytecode.HALT},
	})
	back, err := bytecode.Encode(prog.Index)
	require.NoError(t, err)
	assert.Equal(t, prog.Bytes, back)
}

// TestMatMul computes a 2x2 product in T243 mode.
func TestMatMul(t *testing.T) {
	a := operand.Matrix{Rows: 2, Cols: 2, Cells: []operand.Operand{
		bigOp(1), bigOp(2), bigOp(3), bigOp(4),
	}}
	b := operand.Matrix{Rows: 2, Cols: 2, Cells: []operand.Operand{
		bigOp(5), bigOp(6), bigOp(7), bigOp(8),
	}}
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.T81MatMul, Operands: []operand.Operand{a, b}},
		{Op: bytecode.HALT},
	})
	out := New(prog, Config{InitialMode: bytecode.TierT243}).Run()

	require.Equal(t, OutcomeOK, out.Kind)
	require.Len(t, out.Stack, 1)
	res := out.Stack[0].(operand.Matrix)
	want := []int64{19, 22, 43, 50}
	for i, cell := range res.Cells {
		got, err := cell.(operand.BigInt).Int64()
		require.NoError(t, err)
		assert.Equal(t, want[i], got)
	}
}

// TestMatMulPromotes: accumulators crossing 243 push the machine to
// T729.
func TestMatMulPromotes(t *testing.T) {
	a := operand.Matrix{Rows: 1, Cols: 1, Cells: []operand.Operand{bigOp(80)}}
	b := operand.Matrix{Rows: 1, Cols: 1, Cells: []operand.Operand{bigOp(80)}}
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.T81MatMul, Operands: []operand.Operand{a, b}},
		{Op: bytecode.HALT},
	})
	ring := trace.NewRing(64)
	ctx := New(prog, Config{InitialMode: bytecode.TierT243, Sink: ring})
	out := ctx.Run()

	require.Equal(t, OutcomeOK, out.Kind)
	assert.Contains(t, eventNames(ring.Events()), "MODE_CHANGE(T243->T729,magnitude)")
}

// TestTNNAccumSaturates: element sums clamp at the tier bound and the
// crossing promotes.
func TestTNNAccumSaturates(t *testing.T) {
	va := operand.Vector{Elems: []operand.Operand{bigOp(200), bigOp(50)}}
	vb := operand.Vector{Elems: []operand.Operand{bigOp(100), bigOp(10)}}
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.TNNAccum, Operands: []operand.Operand{va, vb}},
		{Op: bytecode.HALT},
	})
	ring := trace.NewRing(64)
	out := New(prog, Config{InitialMode: bytecode.TierT243, Sink: ring}).Run()

	require.Equal(t, OutcomeOK, out.Kind)
	require.Len(t, out.Stack, 1)
	res := out.Stack[0].(operand.Vector)
	got0, _ := res.Elems[0].(operand.BigInt).Int64()
	got1, _ := res.Elems[1].(operand.BigInt).Int64()
	assert.Equal(t, int64(242), got0)
	assert.Equal(t, int64(60), got1)
	assert.Contains(t, eventNames(ring.Events()), "MODE_CHANGE(T243->T729,magnitude)")
}

// TestUnknownOpcodeNoContext mirrors the loader boundary: 0xEE never
// reaches execution.
func TestUnknownOpcodeNoContext(t *testing.T) {
	_, err := loader.Load([]byte{0xEE}, loader.Options{})
	var ue *bytecode.UnknownOpcodeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, bytecode.Opcode(0xEE), ue.Code)
}

// TestMagnitudePromotion: one-digit arithmetic reaching 81 promotes
// instead of wrapping.
func TestMagnitudePromotion(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(80)}},
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(1)}},
		{Op: bytecode.ADD},
		{Op: bytecode.HALT},
	})
	ring := trace.NewRing(64)
	out := New(prog, Config{Sink: ring}).Run()

	require.Equal(t, OutcomeOK, out.Kind)
	res := out.Stack[0].(operand.BigInt)
	got, err := res.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(81), got)
	assert.Equal(t, []uint8{0, 1}, res.Digits)
	assert.Contains(t, eventNames(ring.Events()), "MODE_CHANGE(T81->T243,magnitude)")
}

func TestJumps(t *testing.T) {
	// PUSH 0; JZ 12; PUSH 7; HALT: the JZ skips the second push.
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(0)}},
		{Op: bytecode.JZ, Operands: []operand.Operand{bigOp(12)}},
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(7)}},
		{Op: bytecode.HALT},
	})
	out := New(prog, Config{}).Run()
	require.Equal(t, OutcomeOK, out.Kind)
	assert.Empty(t, out.Stack)

	// JNZ with a zero condition falls through.
	prog = assemble(t, []bytecode.Instruction{
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(0)}},
		{Op: bytecode.JNZ, Operands: []operand.Operand{bigOp(12)}},
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(7)}},
		{Op: bytecode.HALT},
	})
	out = New(prog, Config{}).Run()
	require.Equal(t, OutcomeOK, out.Kind)
	require.Len(t, out.Stack, 1)
}

func TestCallRet(t *testing.T) {
	// CALL 5; HALT; [5:] PUSH 7; RET
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.CALL, Operands: []operand.Operand{bigOp(5)}},
		{Op: bytecode.HALT},
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(7)}},
		{Op: bytecode.RET},
	})
	ctx := New(prog, Config{})
	out := ctx.Run()
	require.Equal(t, OutcomeOK, out.Kind)
	require.Len(t, out.Stack, 1)
	assert.Equal(t, 0, ctx.CallDepth())
}

func TestJumpOffProgram(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.JMP, Operands: []operand.Operand{bigOp(2)}},
		{Op: bytecode.HALT},
	})
	out := New(prog, Config{}).Run()
	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultOpcodeFailed, out.Fault.Kind)
}

func TestStackUnderflow(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{{Op: bytecode.ADD}, {Op: bytecode.HALT}})
	ring := trace.NewRing(8)
	out := New(prog, Config{Sink: ring}).Run()
	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultStackUnderflow, out.Fault.Kind)
	assert.Empty(t, out.Stack)
	assert.Equal(t, []string{"ADD_UNDER"}, eventNames(ring.Events()))
}

func TestStackOverflow(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(1)}},
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(2)}},
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(3)}},
		{Op: bytecode.HALT},
	})
	out := New(prog, Config{StackCapacity: 2}).Run()
	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultStackOverflow, out.Fault.Kind)
	assert.Len(t, out.Stack, 2)
}

func TestRetUnderflow(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{{Op: bytecode.RET}})
	out := New(prog, Config{}).Run()
	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultCallStackUnderflow, out.Fault.Kind)
}

func TestTypeMismatchRestores(t *testing.T) {
	frac := operand.Fraction{Fraction: ternary.Fraction{
		Num: ternary.BigInt{Digits: []uint8{1}}, Den: ternary.BigInt{Digits: []uint8{2}},
	}}
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.PUSH, Operands: []operand.Operand{bigOp(7)}},
		{Op: bytecode.PUSH, Operands: []operand.Operand{frac}},
		{Op: bytecode.ADD},
		{Op: bytecode.HALT},
	})
	out := New(prog, Config{}).Run()
	require.Equal(t, OutcomeFault, out.Kind)
	assert.Equal(t, FaultTypeMismatch, out.Fault.Kind)
	require.Len(t, out.Stack, 2)
	assert.Equal(t, operand.TagBigInt, out.Stack[0].Tag())
	assert.Equal(t, operand.TagFraction, out.Stack[1].Tag())
}

func TestCancellation(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.NOP}, {Op: bytecode.NOP}, {Op: bytecode.HALT},
	})
	steps := 0
	out := New(prog, Config{Cancelled: func() bool {
		steps++
		return steps > 1
	}}).Run()
	assert.Equal(t, OutcomeCancelled, out.Kind)
	assert.Equal(t, FaultCancelled, out.Fault.Kind)
}

// TestNoGhostEvents: every event corresponds to an executed instruction
// or a mode transition, and all carry the context's session id.
func TestNoGhostEvents(t *testing.T) {
	prog := mustLoad(t, []byte{0x01, 0x01, 0x01, 0x07, 0x01, 0x01, 0x01, 0x05, 0x03, 0xFF})
	ring := trace.NewRing(64)
	ctx := New(prog, Config{Sink: ring})
	ctx.Run()

	evs := ring.Events()
	assert.Len(t, evs, 4) // one per instruction, no transitions
	for _, e := range evs {
		assert.Equal(t, ctx.Session(), e.Session)
	}
	assert.Equal(t, []string{ctx.Session()}, ring.Sessions())
}

func TestYieldCallback(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{
		{Op: bytecode.NOP}, {Op: bytecode.NOP}, {Op: bytecode.HALT},
	})
	yields := 0
	out := New(prog, Config{Yield: func() { yields++ }}).Run()
	require.Equal(t, OutcomeOK, out.Kind)
	assert.Equal(t, 3, yields)
}

func TestSessionOverride(t *testing.T) {
	prog := assemble(t, []bytecode.Instruction{{Op: bytecode.HALT}})
	ctx := New(prog, Config{Session: "session-under-test"})
	assert.Equal(t, "session-under-test", ctx.Session())
}
