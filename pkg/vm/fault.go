package vm

import (
	"fmt"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/operand"
)

// FaultKind classifies a runtime failure.
type FaultKind uint8

// Runtime fault kinds. Loader-side failures (UnknownOpcode, TagMismatch,
// MalformedOperand, ProgramTooLarge) never reach the VM; they surface from
// the loader package.
const (
	FaultNone FaultKind = iota
	FaultStackOverflow
	FaultStackUnderflow
	FaultCallStackOverflow
	FaultCallStackUnderflow
	FaultTypeMismatch
	FaultModeViolation
	FaultDivideByZero
	FaultOverflow
	FaultHostUnavailable
	FaultOpcodeFailed
	FaultCancelled
)

var faultNames = map[FaultKind]string{
	FaultStackOverflow:      "StackOverflow",
	FaultStackUnderflow:     "StackUnderflow",
	FaultCallStackOverflow:  "CallStackOverflow",
	FaultCallStackUnderflow: "CallStackUnderflow",
	FaultTypeMismatch:       "TypeMismatch",
	FaultModeViolation:      "ModeViolation",
	FaultDivideByZero:       "DivideByZero",
	FaultOverflow:           "Overflow",
	FaultHostUnavailable:    "HostUnavailable",
	FaultOpcodeFailed:       "OpcodeFailed",
	FaultCancelled:          "Cancelled",
}

// String returns the fault kind name.
func (k FaultKind) String() string {
	if n, ok := faultNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Fault(%d)", uint8(k))
}

// eventSuffix is appended to the opcode mnemonic in the entropy event a
// faulting instruction emits, e.g. DIV + DivideByZero -> "DIV_ZERO".
func (k FaultKind) eventSuffix() string {
	switch k {
	case FaultStackOverflow:
		return "_OVER"
	case FaultStackUnderflow:
		return "_UNDER"
	case FaultCallStackOverflow:
		return "_CALL_OVER"
	case FaultCallStackUnderflow:
		return "_CALL_UNDER"
	case FaultTypeMismatch:
		return "_TYPE"
	case FaultModeViolation:
		return "_MODE"
	case FaultDivideByZero:
		return "_ZERO"
	case FaultOverflow:
		return "_OVF"
	case FaultHostUnavailable:
		return "_HOST"
	case FaultOpcodeFailed:
		return "_FAIL"
	}
	return "_ERR"
}

// Fault is a runtime failure at opcode granularity. It is an outcome
// value, never thrown across opcode boundaries.
type Fault struct {
	Kind   FaultKind
	Op     bytecode.Opcode
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("%s in %s", f.Kind, f.Op.Name())
	}
	return fmt.Sprintf("%s in %s: %s", f.Kind, f.Op.Name(), f.Detail)
}

func newFault(kind FaultKind, op bytecode.Opcode, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// OutcomeKind is the terminal classification of a run.
type OutcomeKind uint8

// Run outcomes. Cancellation is reported distinctly from failure.
const (
	OutcomeOK OutcomeKind = iota
	OutcomeFault
	OutcomeCancelled
)

// String returns the outcome name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeFault:
		return "fault"
	case OutcomeCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", uint8(k))
}

// Outcome is what Run hands back: the classification, the fault if any,
// and a snapshot of the final stack.
type Outcome struct {
	Kind  OutcomeKind
	Fault *Fault
	Stack []operand.Operand
}
