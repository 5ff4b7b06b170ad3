package vm

import (
	"sync"

	"github.com/t81dev/hanoivm/pkg/bytecode"
)

// handler executes one instruction. On a nil return the instruction
// committed; on a fault the handler has already restored any operands it
// popped, so the stack is exactly as it was before the instruction.
type handler func(ctx *Context, ins *bytecode.Instruction) *Fault

// handlerRecord declares one dispatch entry; the table is assembled from
// these at init.
type handlerRecord struct {
	Op bytecode.Opcode
	Fn handler
}

var dispatch [256]handler

var handlerRecords = []handlerRecord{
	{bytecode.NOP, execNop},
	{bytecode.PUSH, execPush},
	{bytecode.POP, execPop},
	{bytecode.ADD, execArith},
	{bytecode.SUB, execArith},
	{bytecode.MUL, execArith},
	{bytecode.DIV, execArith},
	{bytecode.MOD, execArith},
	{bytecode.NEG, execUnary},
	{bytecode.ABS, execUnary},
	{bytecode.CMP3, execCmp3},
	{bytecode.JMP, execJmp},
	{bytecode.JZ, execJmpCond},
	{bytecode.JNZ, execJmpCond},
	{bytecode.CALL, execCall},
	{bytecode.RET, execRet},
	{bytecode.TNNAccum, execTNNAccum},
	{bytecode.T81MatMul, execMatMul},
	{bytecode.T243StateAdv, execStateAdv},
	{bytecode.T729Intent, execIntent},
	{bytecode.T729HoloFFT, execHoloFFT},
	{bytecode.T729MetaExec, execMetaExec},
	{bytecode.T243MarkovStep, execMarkovStep},
	{bytecode.T243SymbolOut, execSymbolOut},
	{bytecode.T729EntropySnap, execEntropySnap},
	{bytecode.T243CircuitStep, execCircuitStep},
	{bytecode.T243MorphicTag, execMorphicTag},
	{bytecode.T729MindmapQry, execMindmapQuery},
	{bytecode.HALT, execHalt},
}

func init() {
	for _, rec := range handlerRecords {
		dispatch[rec.Op] = rec.Fn
	}
}

// extHandlers backs RegisterExtHandler, mirroring the bytecode extension
// table for execution.
var extHandlers = struct {
	sync.RWMutex
	m map[bytecode.Opcode]handler
}{m: make(map[bytecode.Opcode]handler)}

// RegisterExtHandler installs an execution handler for an extension
// opcode previously declared with bytecode.RegisterExt.
func RegisterExtHandler(op bytecode.Opcode, fn func(ctx *Context, ins *bytecode.Instruction) *Fault) {
	extHandlers.Lock()
	defer extHandlers.Unlock()
	extHandlers.m[op] = fn
}

func lookupHandler(op bytecode.Opcode) handler {
	if h := dispatch[op]; h != nil {
		return h
	}
	extHandlers.RLock()
	defer extHandlers.RUnlock()
	return extHandlers.m[op]
}

// Step executes the instruction at ip. It emits exactly one entropy event
// for the instruction (success or fault), then consults the tier FSM.
// Returns false once the context is halted or the program is exhausted.
func (ctx *Context) Step() bool {
	if ctx.halted {
		return false
	}
	if ctx.cfg.Cancelled != nil && ctx.cfg.Cancelled() {
		ctx.fault = &Fault{Kind: FaultCancelled}
		ctx.halted = true
		ctx.cfg.Sink.Event(ctx.session, "CANCELLED", uint8(FaultCancelled))
		return false
	}
	if ctx.ip >= ctx.prog.Len() {
		ctx.halted = true
		return false
	}
	pos, ok := ctx.offIndex[ctx.ip]
	if !ok {
		ctx.setFault(newFault(FaultOpcodeFailed, 0, "ip %d not on an instruction boundary", ctx.ip))
		ctx.cfg.Sink.Event(ctx.session, "IP_FAULT", uint8(FaultOpcodeFailed))
		return false
	}
	ins := &ctx.prog.Index[pos]
	info, _ := bytecode.Lookup(ins.Op)

	ctx.lastSummary = 0
	ctx.lastMagnitude = 0

	if !ctx.tierPrologue(info.Tier) {
		f := newFault(FaultModeViolation, ins.Op, "mode %s, need %s", ctx.mode, info.Tier)
		ctx.cfg.Sink.Event(ctx.session, info.Name+f.Kind.eventSuffix(), uint8(f.Kind))
		ctx.setFault(f)
		return false
	}

	h := lookupHandler(ins.Op)
	if h == nil {
		f := newFault(FaultOpcodeFailed, ins.Op, "no handler")
		ctx.cfg.Sink.Event(ctx.session, info.Name+f.Kind.eventSuffix(), uint8(f.Kind))
		ctx.setFault(f)
		return false
	}

	next := ctx.nextOffset(pos)
	ctx.jumped = false
	if f := h(ctx, ins); f != nil {
		ctx.cfg.Sink.Event(ctx.session, info.Name+f.Kind.eventSuffix(), uint8(f.Kind))
		ctx.setFault(f)
		return false
	}
	ctx.cfg.Sink.Event(ctx.session, info.Name, ctx.lastSummary)

	// Control-transfer handlers set ip themselves; everything else falls
	// through to the next encoded instruction.
	if !ctx.jumped {
		ctx.ip = next
	}

	ctx.tierEpilogue()

	if ctx.cfg.Yield != nil {
		ctx.cfg.Yield()
	}
	return !ctx.halted
}

// nextOffset returns the byte offset just past index entry pos. Index
// entries are contiguous: the next entry starts where this one ends.
func (ctx *Context) nextOffset(pos int) int {
	if pos+1 < len(ctx.prog.Index) {
		return ctx.prog.Index[pos+1].Offset
	}
	return ctx.prog.Len()
}

// Run drives Step until the program halts, faults or is cancelled, and
// returns the outcome with a final stack snapshot.
func (ctx *Context) Run() Outcome {
	for ctx.Step() {
	}
	out := Outcome{Kind: OutcomeOK, Stack: ctx.Stack()}
	if ctx.fault != nil {
		if ctx.fault.Kind == FaultCancelled {
			out.Kind = OutcomeCancelled
		} else {
			out.Kind = OutcomeFault
		}
		out.Fault = ctx.fault
	}
	return out
}

// Fault returns the recorded fault, if the run ended in one.
func (ctx *Context) Fault() *Fault { return ctx.fault }
