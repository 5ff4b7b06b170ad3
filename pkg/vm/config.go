package vm

import (
	"github.com/pkg/errors"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
	"github.com/t81dev/hanoivm/pkg/trace"
)

// Default capacities and tier thresholds.
const (
	DefaultStackCapacity = 2187 // 3^7
	DefaultPromote       = 5
	DefaultDemote        = 2
)

// ErrHostUnavailable is what a Host implementation returns (or wraps) when
// the outside service cannot serve a delegated opcode.
var ErrHostUnavailable = errors.New("host unavailable")

// Host is the narrow interface to external collaborators for the T729
// opcodes whose semantics live outside the core. Calls are synchronous;
// a failure propagates as an OpcodeFailed fault without corrupting the
// stack.
type Host interface {
	// Intent receives a T729 intent: base opcode, modifier snapshot and
	// entropy weight.
	Intent(code uint8, modifiers []operand.Operand, weight ternary.BigInt) error
	// MindmapQuery resolves a semantic lookup for the given key vector.
	MindmapQuery(key operand.Vector) (operand.Operand, error)
}

// Config tunes a Context. The zero value is usable: defaults are applied
// at construction.
type Config struct {
	StackCapacity     int
	CallStackCapacity int
	PromoteThreshold  int
	DemoteThreshold   int
	InitialMode       bytecode.Tier

	// Session overrides the program-derived session id when nonempty.
	Session string

	// Sink receives entropy events; nil means discard.
	Sink trace.Sink

	// Cancelled is polled at every step; nil means never cancelled.
	Cancelled func() bool

	// Yield, when set, is invoked between instructions. It is the only
	// preemption point.
	Yield func()

	// Host serves delegated T729 opcodes; nil uses the built-in
	// deterministic fallbacks.
	Host Host

	// MarkovRow supplies row `state` of the 243-state Markov matrix.
	// When MarkovRow is nil the step is the identity transition; a row
	// without exactly 243 entries is an OpcodeFailed fault.
	MarkovRow func(state int) []ternary.Fraction

	// Transition is the T243 state-vector transition map. The default is
	// (state + signal) mod 243.
	Transition func(state, signal int) int
}

func (c Config) withDefaults() Config {
	if c.StackCapacity <= 0 {
		c.StackCapacity = DefaultStackCapacity
	}
	if c.CallStackCapacity <= 0 {
		c.CallStackCapacity = c.StackCapacity
	}
	if c.PromoteThreshold <= 0 {
		c.PromoteThreshold = DefaultPromote
	}
	if c.DemoteThreshold <= 0 {
		c.DemoteThreshold = DefaultDemote
	}
	if c.Sink == nil {
		c.Sink = trace.Nop{}
	}
	if c.Transition == nil {
		c.Transition = func(state, signal int) int {
			s := (state + signal) % ternary.T243Max
			if s < 0 {
				s += ternary.T243Max
			}
			return s
		}
	}
	return c
}
