package vm

import (
	"fmt"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
)

// The tier FSM. Transitions are driven by exactly two observables: the
// call depth and the maximum magnitude any handler wrote this
// instruction. Every transition emits a MODE_CHANGE entropy event.

// transition causes, stable strings pinned by tests.
const (
	causeDepth     = "depth"
	causeMagnitude = "magnitude"
	causeOpcode    = "opcode"
)

// setMode performs one transition and emits its event.
func (ctx *Context) setMode(to bytecode.Tier, cause string) {
	from := ctx.mode
	if from == to {
		return
	}
	ctx.mode = to
	name := fmt.Sprintf("MODE_CHANGE(%s->%s,%s)", from, to, cause)
	ctx.cfg.Sink.Event(ctx.session, name, uint8(to))
}

// tierEpilogue is consulted after every handler: first promotion, then
// demotion, one step per instruction.
func (ctx *Context) tierEpilogue() {
	switch ctx.mode {
	case bytecode.TierT81:
		if ctx.callDepth > ctx.cfg.PromoteThreshold {
			ctx.setMode(bytecode.TierT243, causeDepth)
		} else if ctx.lastMagnitude >= ternary.T81Max {
			ctx.setMode(bytecode.TierT243, causeMagnitude)
		}
	case bytecode.TierT243:
		if ctx.callDepth > 2*ctx.cfg.PromoteThreshold {
			ctx.setMode(bytecode.TierT729, causeDepth)
		} else if ctx.lastMagnitude >= ternary.T243Max {
			ctx.setMode(bytecode.TierT729, causeMagnitude)
		} else if ctx.demotable(bytecode.TierT81) && ctx.maxStackTier() < bytecode.TierT243 {
			ctx.setMode(bytecode.TierT81, causeDepth)
		}
	case bytecode.TierT729:
		if ctx.demotable(bytecode.TierT243) && ctx.maxStackTier() < bytecode.TierT729 {
			ctx.setMode(bytecode.TierT243, causeDepth)
		}
	}
}

// demotable gates demotion to a target tier: the call depth must be below
// the threshold and the context never drops under its configured initial
// mode, which acts as the floor tier of the session.
func (ctx *Context) demotable(to bytecode.Tier) bool {
	return ctx.callDepth < ctx.cfg.DemoteThreshold && to >= ctx.cfg.InitialMode
}

// tierPrologue runs before a handler. A T729-required opcode arriving
// while the machine is already symbolic (T243) promotes instead of
// faulting; from T81 the same arrival is a ModeViolation, which the
// caller reports.
func (ctx *Context) tierPrologue(required bytecode.Tier) bool {
	if ctx.mode >= required {
		return true
	}
	if ctx.mode == bytecode.TierT243 && required == bytecode.TierT729 {
		ctx.setMode(bytecode.TierT729, causeOpcode)
		return true
	}
	return false
}

// operandTier classifies a stack operand by the tier that owns its shape:
// tensors are T729 material, aggregate shapes are T243, scalars are T81.
func operandTier(o operand.Operand) bytecode.Tier {
	switch o.Tag() {
	case operand.TagTensor:
		return bytecode.TierT729
	case operand.TagMatrix, operand.TagVector, operand.TagPolynomial,
		operand.TagGraph, operand.TagQuaternion:
		return bytecode.TierT243
	default:
		return bytecode.TierT81
	}
}

// maxStackTier returns the highest tier of any operand on the stack.
// Demotion is blocked while higher-tier material remains live.
func (ctx *Context) maxStackTier() bytecode.Tier {
	max := bytecode.TierT81
	for _, o := range ctx.stack {
		if t := operandTier(o); t > max {
			max = t
		}
	}
	return max
}
