// Package vm executes loaded HanoiVM programs: a single-owner execution
// context, the opcode dispatch table, and the tier-mode state machine.
// A Context is not shared across goroutines; hosts wanting parallelism
// run one context per goroutine over the same immutable Program.
package vm

import (
	"github.com/golang/glog"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/loader"
	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
)

// RegisterCount is the number of ternary accumulator registers.
const RegisterCount = 28

// Context is the mutable state of one VM run.
type Context struct {
	cfg      Config
	prog     *loader.Program
	session  string
	offIndex map[int]int // byte offset -> index position

	stack     []operand.Operand
	callStack []int // return byte offsets
	ip        int   // byte offset into the program
	mode      bytecode.Tier
	callDepth int
	registers [RegisterCount]uint8 // T81 digits
	halted    bool
	jumped    bool
	fault     *Fault

	// Per-instruction observables feeding the tier FSM and the entropy
	// event.
	lastSummary   uint8
	lastMagnitude int64

	// T243/T729 symbolic machinery.
	symState     int // current T243 state, 0..242
	circuitTicks int
	symbols      []uint16
	lastIntent   uint8
	holo         *Holotensor
	mindmap      *mindmapArena
}

// New builds a context for one run of prog.
func New(prog *loader.Program, cfg Config) *Context {
	cfg = cfg.withDefaults()
	session := cfg.Session
	if session == "" {
		session = prog.NewSession()
	}
	cfg.Sink.RegisterSession(session)
	offIndex := make(map[int]int, len(prog.Index))
	for i := range prog.Index {
		offIndex[prog.Index[i].Offset] = i
	}
	return &Context{
		cfg:       cfg,
		prog:      prog,
		session:   session,
		offIndex:  offIndex,
		stack:     make([]operand.Operand, 0, cfg.StackCapacity),
		callStack: make([]int, 0, cfg.CallStackCapacity),
		mode:      cfg.InitialMode,
	}
}

// Session returns the trace routing id of this context.
func (ctx *Context) Session() string { return ctx.session }

// Mode returns the current tier.
func (ctx *Context) Mode() bytecode.Tier { return ctx.mode }

// IP returns the current instruction pointer (byte offset).
func (ctx *Context) IP() int { return ctx.ip }

// Halted reports whether the run has terminated.
func (ctx *Context) Halted() bool { return ctx.halted }

// CallDepth returns the nesting level of CALLs minus RETs.
func (ctx *Context) CallDepth() int { return ctx.callDepth }

// Register returns accumulator i.
func (ctx *Context) Register(i int) uint8 { return ctx.registers[i] }

// SymState returns the current T243 symbolic state.
func (ctx *Context) SymState() int { return ctx.symState }

// Holo returns the holotensor register, nil until T729_HOLO_FFT seeds it.
func (ctx *Context) Holo() *Holotensor { return ctx.holo }

// Symbols returns the symbol ids emitted by T243_SYMBOL_OUT so far.
func (ctx *Context) Symbols() []uint16 {
	out := make([]uint16, len(ctx.symbols))
	copy(out, ctx.symbols)
	return out
}

// Stack returns a shallow snapshot of the operand stack, bottom first.
func (ctx *Context) Stack() []operand.Operand {
	out := make([]operand.Operand, len(ctx.stack))
	copy(out, ctx.stack)
	return out
}

// push appends to the operand stack, faulting at capacity.
func (ctx *Context) push(op bytecode.Opcode, v operand.Operand) *Fault {
	if len(ctx.stack) >= ctx.cfg.StackCapacity {
		return newFault(FaultStackOverflow, op, "capacity %d", ctx.cfg.StackCapacity)
	}
	ctx.stack = append(ctx.stack, v)
	return nil
}

// pop removes the top operand.
func (ctx *Context) pop(op bytecode.Opcode) (operand.Operand, *Fault) {
	if len(ctx.stack) == 0 {
		return nil, newFault(FaultStackUnderflow, op, "empty stack")
	}
	v := ctx.stack[len(ctx.stack)-1]
	ctx.stack = ctx.stack[:len(ctx.stack)-1]
	return v, nil
}

// pop2 removes the top two operands; the deeper one comes first.
func (ctx *Context) pop2(op bytecode.Opcode) (a, b operand.Operand, f *Fault) {
	b, f = ctx.pop(op)
	if f != nil {
		return nil, nil, f
	}
	a, f = ctx.pop(op)
	if f != nil {
		// Restore the one we managed to pop.
		ctx.stack = append(ctx.stack, b)
		return nil, nil, f
	}
	return a, b, nil
}

// restore re-pushes operands a handler popped before it failed, in the
// original order. Restoration cannot overflow: the slots were just freed.
func (ctx *Context) restore(vs ...operand.Operand) {
	ctx.stack = append(ctx.stack, vs...)
}

// observe records the magnitude of a produced value for the tier FSM.
func (ctx *Context) observe(mag int64) {
	if mag > ctx.lastMagnitude {
		ctx.lastMagnitude = mag
	}
}

// magOf estimates the absolute magnitude of a numeric value, saturating
// far above every promotion boundary.
func magOf(b ternary.BigInt) int64 {
	v, err := b.Int64()
	if err != nil {
		return 1 << 40
	}
	if v < 0 {
		return -v
	}
	return v
}

// jump transfers control explicitly; Step then skips the fallthrough
// advance.
func (ctx *Context) jump(target int) {
	ctx.ip = target
	ctx.jumped = true
}

// setFault halts the context with a runtime fault.
func (ctx *Context) setFault(f *Fault) {
	ctx.fault = f
	ctx.halted = true
	glog.V(1).Infof("session %s: %v", ctx.session, f)
}
