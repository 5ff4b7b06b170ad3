package vm

import (
	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
)

func execNop(*Context, *bytecode.Instruction) *Fault { return nil }

func execHalt(ctx *Context, _ *bytecode.Instruction) *Fault {
	ctx.halted = true
	return nil
}

func execPush(ctx *Context, ins *bytecode.Instruction) *Fault {
	return ctx.push(ins.Op, ins.Operands[0])
}

func execPop(ctx *Context, ins *bytecode.Instruction) *Fault {
	v, f := ctx.pop(ins.Op)
	if f != nil {
		return f
	}
	ctx.lastSummary = summaryOf(v)
	return nil
}

// summaryOf derives the one-byte entropy summary from a produced value.
func summaryOf(v operand.Operand) uint8 {
	switch t := v.(type) {
	case operand.BigInt:
		if len(t.Digits) > 0 {
			return t.Digits[0]
		}
		return 0
	case operand.Fraction:
		if len(t.Num.Digits) > 0 {
			return t.Num.Digits[0]
		}
		return 0
	case operand.Float:
		if len(t.Mant.Digits) > 0 {
			return t.Mant.Digits[0]
		}
		return 0
	case operand.OpcodeLit:
		return t.Code
	default:
		return uint8(v.Tag())
	}
}

// execArith implements the binary numeric opcodes over matching operand
// kinds. A kind mismatch or unsupported pairing restores both operands.
func execArith(ctx *Context, ins *bytecode.Instruction) *Fault {
	a, b, f := ctx.pop2(ins.Op)
	if f != nil {
		return f
	}
	res, f := applyBinary(ins.Op, a, b)
	if f != nil {
		ctx.restore(a, b)
		return f
	}
	ctx.lastSummary = summaryOf(res)
	ctx.observe(resultMagnitude(res))
	return ctx.push(ins.Op, res)
}

func applyBinary(op bytecode.Opcode, a, b operand.Operand) (operand.Operand, *Fault) {
	switch av := a.(type) {
	case operand.BigInt:
		bv, ok := b.(operand.BigInt)
		if !ok {
			return nil, newFault(FaultTypeMismatch, op, "%s vs %s", a.Tag(), b.Tag())
		}
		return applyBigInt(op, av.BigInt, bv.BigInt)
	case operand.Fraction:
		bv, ok := b.(operand.Fraction)
		if !ok {
			return nil, newFault(FaultTypeMismatch, op, "%s vs %s", a.Tag(), b.Tag())
		}
		return applyFraction(op, av.Fraction, bv.Fraction)
	case operand.Float:
		bv, ok := b.(operand.Float)
		if !ok {
			return nil, newFault(FaultTypeMismatch, op, "%s vs %s", a.Tag(), b.Tag())
		}
		return applyFloat(op, av.Float, bv.Float)
	}
	return nil, newFault(FaultTypeMismatch, op, "non-numeric %s", a.Tag())
}

func applyBigInt(op bytecode.Opcode, a, b ternary.BigInt) (operand.Operand, *Fault) {
	switch op {
	case bytecode.ADD:
		return operand.BigInt{BigInt: a.Add(b)}, nil
	case bytecode.SUB:
		return operand.BigInt{BigInt: a.Sub(b)}, nil
	case bytecode.MUL:
		return operand.BigInt{BigInt: a.Mul(b)}, nil
	case bytecode.DIV:
		q, err := a.Div(b)
		if err != nil {
			return nil, newFault(FaultDivideByZero, op, "")
		}
		return operand.BigInt{BigInt: q}, nil
	case bytecode.MOD:
		r, err := a.Mod(b)
		if err != nil {
			return nil, newFault(FaultDivideByZero, op, "")
		}
		return operand.BigInt{BigInt: r}, nil
	}
	return nil, newFault(FaultOpcodeFailed, op, "not a binary arithmetic opcode")
}

func applyFraction(op bytecode.Opcode, a, b ternary.Fraction) (operand.Operand, *Fault) {
	switch op {
	case bytecode.ADD:
		return operand.Fraction{Fraction: a.Add(b)}, nil
	case bytecode.SUB:
		return operand.Fraction{Fraction: a.Sub(b)}, nil
	case bytecode.MUL:
		return operand.Fraction{Fraction: a.Mul(b)}, nil
	case bytecode.DIV:
		q, err := a.Div(b)
		if err != nil {
			return nil, newFault(FaultDivideByZero, op, "")
		}
		return operand.Fraction{Fraction: q}, nil
	case bytecode.MOD:
		return nil, newFault(FaultTypeMismatch, op, "MOD is integral only")
	}
	return nil, newFault(FaultOpcodeFailed, op, "not a binary arithmetic opcode")
}

func applyFloat(op bytecode.Opcode, a, b ternary.Float) (operand.Operand, *Fault) {
	var (
		res ternary.Float
		err error
	)
	switch op {
	case bytecode.ADD:
		res, err = a.Add(b)
	case bytecode.SUB:
		res, err = a.Sub(b)
	case bytecode.MUL:
		res, err = a.Mul(b)
	case bytecode.DIV, bytecode.MOD:
		return nil, newFault(FaultTypeMismatch, op, "no float division")
	default:
		return nil, newFault(FaultOpcodeFailed, op, "not a binary arithmetic opcode")
	}
	if err != nil {
		return nil, newFault(FaultOverflow, op, "exponent range")
	}
	return operand.Float{Float: res}, nil
}

// resultMagnitude feeds the tier FSM's magnitude observable.
func resultMagnitude(v operand.Operand) int64 {
	switch t := v.(type) {
	case operand.BigInt:
		return magOf(t.BigInt)
	case operand.Fraction:
		return magOf(t.Num)
	case operand.Float:
		return magOf(t.Mant)
	}
	return 0
}

func execUnary(ctx *Context, ins *bytecode.Instruction) *Fault {
	v, f := ctx.pop(ins.Op)
	if f != nil {
		return f
	}
	var res operand.Operand
	switch t := v.(type) {
	case operand.BigInt:
		if ins.Op == bytecode.NEG {
			res = operand.BigInt{BigInt: t.BigInt.Neg()}
		} else {
			res = operand.BigInt{BigInt: t.BigInt.Abs()}
		}
	case operand.Fraction:
		if ins.Op == bytecode.NEG {
			res = operand.Fraction{Fraction: t.Fraction.Neg()}
		} else {
			res = operand.Fraction{Fraction: t.Fraction.Abs()}
		}
	case operand.Float:
		if ins.Op == bytecode.NEG {
			res = operand.Float{Float: t.Float.Neg()}
		} else {
			res = operand.Float{Float: t.Float.Abs()}
		}
	default:
		ctx.restore(v)
		return newFault(FaultTypeMismatch, ins.Op, "non-numeric %s", v.Tag())
	}
	ctx.lastSummary = summaryOf(res)
	return ctx.push(ins.Op, res)
}

func execCmp3(ctx *Context, ins *bytecode.Instruction) *Fault {
	a, b, f := ctx.pop2(ins.Op)
	if f != nil {
		return f
	}
	var c int
	switch av := a.(type) {
	case operand.BigInt:
		bv, ok := b.(operand.BigInt)
		if !ok {
			ctx.restore(a, b)
			return newFault(FaultTypeMismatch, ins.Op, "%s vs %s", a.Tag(), b.Tag())
		}
		c = av.Cmp3(bv.BigInt)
	case operand.Fraction:
		bv, ok := b.(operand.Fraction)
		if !ok {
			ctx.restore(a, b)
			return newFault(FaultTypeMismatch, ins.Op, "%s vs %s", a.Tag(), b.Tag())
		}
		c = av.Cmp3(bv.Fraction)
	case operand.Float:
		bv, ok := b.(operand.Float)
		if !ok {
			ctx.restore(a, b)
			return newFault(FaultTypeMismatch, ins.Op, "%s vs %s", a.Tag(), b.Tag())
		}
		c = av.Cmp3(bv.Float)
	default:
		ctx.restore(a, b)
		return newFault(FaultTypeMismatch, ins.Op, "non-numeric %s", a.Tag())
	}
	res := operand.Int(int64(c))
	ctx.lastSummary = uint8(int8(c))
	return ctx.push(ins.Op, res)
}

// jumpTarget resolves a BIGINT immediate to a byte offset.
func jumpTarget(op bytecode.Opcode, ins *bytecode.Instruction, limit int) (int, *Fault) {
	imm := ins.Operands[0].(operand.BigInt)
	v, err := imm.Int64()
	if err != nil {
		return 0, newFault(FaultOverflow, op, "jump offset")
	}
	if v < 0 || v > int64(limit) {
		return 0, newFault(FaultOpcodeFailed, op, "jump target %d outside program", v)
	}
	return int(v), nil
}

func execJmp(ctx *Context, ins *bytecode.Instruction) *Fault {
	target, f := jumpTarget(ins.Op, ins, ctx.prog.Len())
	if f != nil {
		return f
	}
	ctx.jump(target)
	return nil
}

func execJmpCond(ctx *Context, ins *bytecode.Instruction) *Fault {
	cond, f := ctx.pop(ins.Op)
	if f != nil {
		return f
	}
	cv, ok := cond.(operand.BigInt)
	if !ok {
		ctx.restore(cond)
		return newFault(FaultTypeMismatch, ins.Op, "condition is %s", cond.Tag())
	}
	take := cv.IsZero() == (ins.Op == bytecode.JZ)
	if !take {
		return nil
	}
	target, f := jumpTarget(ins.Op, ins, ctx.prog.Len())
	if f != nil {
		ctx.restore(cond)
		return f
	}
	ctx.jump(target)
	return nil
}

func execCall(ctx *Context, ins *bytecode.Instruction) *Fault {
	if len(ctx.callStack) >= ctx.cfg.CallStackCapacity {
		return newFault(FaultCallStackOverflow, ins.Op, "capacity %d", ctx.cfg.CallStackCapacity)
	}
	target, f := jumpTarget(ins.Op, ins, ctx.prog.Len())
	if f != nil {
		return f
	}
	pos := ctx.offIndex[ctx.ip]
	ctx.callStack = append(ctx.callStack, ctx.nextOffset(pos))
	ctx.callDepth++
	ctx.jump(target)
	return nil
}

func execRet(ctx *Context, ins *bytecode.Instruction) *Fault {
	if len(ctx.callStack) == 0 {
		return newFault(FaultCallStackUnderflow, ins.Op, "empty call stack")
	}
	ret := ctx.callStack[len(ctx.callStack)-1]
	ctx.callStack = ctx.callStack[:len(ctx.callStack)-1]
	ctx.callDepth--
	ctx.jump(ret)
	return nil
}
