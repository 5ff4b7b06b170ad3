package vm

import (
	"math"

	"github.com/t81dev/hanoivm/pkg/bytecode"
	"github.com/t81dev/hanoivm/pkg/operand"
	"github.com/t81dev/hanoivm/pkg/ternary"
)

// The symbolic tier handlers. T243 opcodes drive the 243-state machinery
// held in the context; T729 opcodes operate on the holotensor register,
// the intent channel and the mindmap arena. Opcodes whose semantics live
// outside the core delegate to cfg.Host when one is installed.

// execTNNAccum pops nothing: both operands are immediates. Element-wise
// saturating add of two equal-length sequences of BIGINTs; the result is
// pushed. Saturation is at the current tier's digit bound, and a sum that
// had to saturate feeds the magnitude observable so the FSM can promote.
func execTNNAccum(ctx *Context, ins *bytecode.Instruction) *Fault {
	ae, f := accumElems(ins.Op, ins.Operands[0])
	if f != nil {
		return f
	}
	be, f := accumElems(ins.Op, ins.Operands[1])
	if f != nil {
		return f
	}
	if len(ae) != len(be) {
		return newFault(FaultTypeMismatch, ins.Op, "lengths %d and %d", len(ae), len(be))
	}
	bound := int64(ternary.T243Max - 1)
	if ctx.mode == bytecode.TierT729 {
		bound = int64(ternary.T729Max - 1)
	}
	out := make([]operand.Operand, len(ae))
	for i := range ae {
		av, err1 := ae[i].Int64()
		bv, err2 := be[i].Int64()
		if err1 != nil || err2 != nil {
			return newFault(FaultOverflow, ins.Op, "element %d", i)
		}
		sum := av + bv
		ctx.observe(sum)
		if sum > bound {
			sum = bound
		}
		out[i] = operand.Int(sum)
	}
	res := operand.Vector{Elems: out}
	ctx.lastSummary = uint8(len(out))
	return ctx.push(ins.Op, res)
}

// accumElems flattens a VECTOR or TENSOR immediate into its BIGINT
// elements.
func accumElems(op bytecode.Opcode, o operand.Operand) ([]ternary.BigInt, *Fault) {
	var elems []operand.Operand
	switch t := o.(type) {
	case operand.Vector:
		elems = t.Elems
	case operand.Tensor:
		elems = t.Data
	default:
		return nil, newFault(FaultTypeMismatch, op, "want VECTOR or TENSOR, got %s", o.Tag())
	}
	out := make([]ternary.BigInt, len(elems))
	for i, e := range elems {
		bi, ok := e.(operand.BigInt)
		if !ok {
			return nil, newFault(FaultTypeMismatch, op, "element %d is %s", i, e.Tag())
		}
		out[i] = bi.BigInt
	}
	return out, nil
}

// execMatMul multiplies two MATRIX immediates of BIGINT cells and pushes
// the product. An accumulator crossing the next tier's bound promotes via
// the magnitude observable.
func execMatMul(ctx *Context, ins *bytecode.Instruction) *Fault {
	a := ins.Operands[0].(operand.Matrix)
	b := ins.Operands[1].(operand.Matrix)
	if a.Cols != b.Rows {
		return newFault(FaultTypeMismatch, ins.Op, "%dx%d by %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	m, k, n := int(a.Rows), int(a.Cols), int(b.Cols)
	cells := make([]operand.Operand, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			acc := ternary.BigInt{}
			for p := 0; p < k; p++ {
				ac, ok := a.At(i, p).(operand.BigInt)
				if !ok {
					return newFault(FaultTypeMismatch, ins.Op, "A[%d][%d] is %s", i, p, a.At(i, p).Tag())
				}
				bc, ok := b.At(p, j).(operand.BigInt)
				if !ok {
					return newFault(FaultTypeMismatch, ins.Op, "B[%d][%d] is %s", p, j, b.At(p, j).Tag())
				}
				acc = acc.Add(ac.BigInt.Mul(bc.BigInt))
			}
			ctx.observe(magOf(acc))
			cells[i*n+j] = operand.BigInt{BigInt: acc}
		}
	}
	res := operand.Matrix{Rows: uint8(m), Cols: uint8(n), Cells: cells}
	ctx.lastSummary = uint8(m*n) & 0x7F
	return ctx.push(ins.Op, res)
}

// execStateAdv advances the T243 state vector by the signal immediate
// through the transition map.
func execStateAdv(ctx *Context, ins *bytecode.Instruction) *Fault {
	sig, err := ins.Operands[0].(operand.BigInt).Int64()
	if err != nil {
		return newFault(FaultOverflow, ins.Op, "signal")
	}
	ctx.symState = ctx.cfg.Transition(ctx.symState, int(sig%ternary.T243Max))
	ctx.lastSummary = uint8(ctx.symState & 0xFF)
	return nil
}

// execMarkovStep seeds the current state from the immediate, then moves to
// argmax_j row[current][j]. Ties break toward the smallest index; there is
// no randomness in the core.
func execMarkovStep(ctx *Context, ins *bytecode.Instruction) *Fault {
	seed, err := ins.Operands[0].(operand.BigInt).Int64()
	if err != nil {
		return newFault(FaultOverflow, ins.Op, "state")
	}
	cur := int(seed % ternary.T243Max)
	if cur < 0 {
		cur += ternary.T243Max
	}
	next := cur
	if ctx.cfg.MarkovRow != nil {
		row := ctx.cfg.MarkovRow(cur)
		if len(row) != ternary.T243Max {
			return newFault(FaultOpcodeFailed, ins.Op, "row %d has %d entries", cur, len(row))
		}
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j].Cmp3(row[best]) > 0 {
				best = j
			}
		}
		next = best
	}
	ctx.symState = next
	ctx.lastSummary = uint8(next & 0xFF)
	return nil
}

// execSymbolOut emits one symbol id to the context's symbol channel and
// the trace.
func execSymbolOut(ctx *Context, ins *bytecode.Instruction) *Fault {
	id, err := ins.Operands[0].(operand.BigInt).Int64()
	if err != nil {
		return newFault(FaultOverflow, ins.Op, "symbol id")
	}
	sym := uint16(id % ternary.T243Max)
	ctx.symbols = append(ctx.symbols, sym)
	ctx.lastSummary = uint8(sym & 0xFF)
	return nil
}

// execCircuitStep advances the symbolic circuit one tick: a unit signal
// through the transition map.
func execCircuitStep(ctx *Context, ins *bytecode.Instruction) *Fault {
	ctx.symState = ctx.cfg.Transition(ctx.symState, 1)
	ctx.circuitTicks++
	ctx.lastSummary = uint8(ctx.circuitTicks & 0xFF)
	return nil
}

// execMorphicTag folds the current symbolic state down to a T81 tag in
// register 0.
func execMorphicTag(ctx *Context, ins *bytecode.Instruction) *Fault {
	tag := uint8(ctx.symState % ternary.T81Max)
	ctx.registers[0] = tag
	ctx.lastSummary = tag
	return nil
}

// execIntent records a T729 intent: the nested opcode, a snapshot of the
// stack top as modifiers, and the call depth as entropy weight. With a
// Host installed the intent is delegated; a host failure surfaces as
// OpcodeFailed and leaves the stack untouched.
func execIntent(ctx *Context, ins *bytecode.Instruction) *Fault {
	code := ins.Operands[0].(operand.OpcodeLit).Code
	var modifiers []operand.Operand
	if n := len(ctx.stack); n > 0 {
		modifiers = append(modifiers, ctx.stack[n-1])
	}
	weight := ternary.NewBigInt(int64(ctx.callDepth))
	if ctx.cfg.Host != nil {
		if err := ctx.cfg.Host.Intent(code, modifiers, weight); err != nil {
			return newFault(FaultOpcodeFailed, ins.Op, "intent 0x%02X: %v", code, err)
		}
	}
	ctx.lastIntent = code
	ctx.lastSummary = code
	return nil
}

// execMetaExec resolves the current meta-opcode: the last dispatched
// intent is the base opcode and register 0 the condition mask. The
// symbolic state enters only through register 0, which T243_MORPHIC_TAG
// sets. The resolution lands in register 1; the base opcode itself is not
// dispatched.
func execMetaExec(ctx *Context, ins *bytecode.Instruction) *Fault {
	mask := ctx.registers[0]
	armed := mask != 0
	if armed {
		ctx.registers[1] = ctx.lastIntent % ternary.T81Max
	} else {
		ctx.registers[1] = 0
	}
	ctx.lastSummary = ctx.registers[1]
	return nil
}

// execEntropySnap records a snapshot of stack disorder: sixteen times the
// count of distinct operand tags currently live, plus the stack depth.
func execEntropySnap(ctx *Context, ins *bytecode.Instruction) *Fault {
	seen := map[operand.Tag]struct{}{}
	for _, o := range ctx.stack {
		seen[o.Tag()] = struct{}{}
	}
	snap := uint8((len(seen)*16 + len(ctx.stack)) & 0xFF)
	ctx.registers[2] = snap % ternary.T81Max
	ctx.lastSummary = snap
	return nil
}

// Holotensor is the T729 register the FFT operates on: paired real and
// imaginary blocks of one shape plus a phase vector over the last axis.
type Holotensor struct {
	Shape []uint8
	Real  []float64
	Imag  []float64
	Phase []int // quantized to multiples of 2π/729
}

// lastAxis returns the length of the last axis.
func (h *Holotensor) lastAxis() int {
	return int(h.Shape[len(h.Shape)-1])
}

// execHoloFFT runs an in-place radix-3 FFT over the last axis of the
// holotensor register. When the register is empty it is seeded from a
// TENSOR of BIGINTs popped off the stack (imaginary part zero). The last
// axis must be a power of three.
func execHoloFFT(ctx *Context, ins *bytecode.Instruction) *Fault {
	if ctx.holo == nil {
		top, f := ctx.pop(ins.Op)
		if f != nil {
			return f
		}
		t, ok := top.(operand.Tensor)
		if !ok {
			ctx.restore(top)
			return newFault(FaultTypeMismatch, ins.Op, "holotensor seed is %s", top.Tag())
		}
		h, f := seedHolotensor(ins.Op, t)
		if f == nil && !powerOfThree(h.lastAxis()) {
			f = newFault(FaultOpcodeFailed, ins.Op, "last axis %d is not a power of three", h.lastAxis())
		}
		if f != nil {
			ctx.restore(top)
			return f
		}
		ctx.holo = h
	}
	n := ctx.holo.lastAxis()
	if !powerOfThree(n) {
		return newFault(FaultOpcodeFailed, ins.Op, "last axis %d is not a power of three", n)
	}
	for base := 0; base < len(ctx.holo.Real); base += n {
		fft3(ctx.holo.Real[base:base+n], ctx.holo.Imag[base:base+n])
	}
	// Phase is recomputed from the leading line, quantized to 2π/729.
	// Bins within float noise of zero carry no phase.
	for i := 0; i < n; i++ {
		if math.Hypot(ctx.holo.Imag[i], ctx.holo.Real[i]) < 1e-9 {
			ctx.holo.Phase[i] = 0
			continue
		}
		theta := math.Atan2(ctx.holo.Imag[i], ctx.holo.Real[i])
		q := int(math.Round(theta / (2 * math.Pi / ternary.T729Max)))
		q %= ternary.T729Max
		if q < 0 {
			q += ternary.T729Max
		}
		ctx.holo.Phase[i] = q
	}
	ctx.lastSummary = uint8(n & 0xFF)
	return nil
}

func seedHolotensor(op bytecode.Opcode, t operand.Tensor) (*Holotensor, *Fault) {
	data := make([]float64, len(t.Data))
	for i, e := range t.Data {
		bi, ok := e.(operand.BigInt)
		if !ok {
			return nil, newFault(FaultTypeMismatch, op, "tensor element %d is %s", i, e.Tag())
		}
		v, err := bi.Int64()
		if err != nil {
			return nil, newFault(FaultOverflow, op, "tensor element %d", i)
		}
		data[i] = float64(v)
	}
	last := int(t.Shape[len(t.Shape)-1])
	return &Holotensor{
		Shape: append([]uint8(nil), t.Shape...),
		Real:  data,
		Imag:  make([]float64, len(data)),
		Phase: make([]int, last),
	}, nil
}

func powerOfThree(n int) bool {
	if n < 1 {
		return false
	}
	for n%3 == 0 {
		n /= 3
	}
	return n == 1
}

// fft3 is a radix-3 Cooley-Tukey transform, in place over one line.
func fft3(re, im []float64) {
	n := len(re)
	if n == 1 {
		return
	}
	third := n / 3
	sr := make([][]float64, 3)
	si := make([][]float64, 3)
	for k := 0; k < 3; k++ {
		sr[k] = make([]float64, third)
		si[k] = make([]float64, third)
		for j := 0; j < third; j++ {
			sr[k][j] = re[3*j+k]
			si[k][j] = im[3*j+k]
		}
		fft3(sr[k], si[k])
	}
	for j := 0; j < third; j++ {
		for k := 0; k < 3; k++ {
			// X[idx] = S0[j] + w^idx S1[j] + w^2idx S2[j], w = e^(-2πi/n).
			idx := j + k*third
			ang := -2 * math.Pi * float64(idx) / float64(n)
			t1r := math.Cos(ang)*sr[1][j] - math.Sin(ang)*si[1][j]
			t1i := math.Cos(ang)*si[1][j] + math.Sin(ang)*sr[1][j]
			ang2 := 2 * ang
			t2r := math.Cos(ang2)*sr[2][j] - math.Sin(ang2)*si[2][j]
			t2i := math.Cos(ang2)*si[2][j] + math.Sin(ang2)*sr[2][j]
			re[idx] = sr[0][j] + t1r + t2r
			im[idx] = si[0][j] + t1i + t2i
		}
	}
}

// mindmapArena is the built-in semantic graph behind T729_MINDMAP_QUERY:
// nodes owned by the arena, edges as index pairs, traversal by index.
type mindmapArena struct {
	labels []int64
	edges  [][2]int
}

// defaultMindmap is a 27-node ring with chord edges every three nodes.
func defaultMindmap() *mindmapArena {
	const n = 27
	a := &mindmapArena{labels: make([]int64, n)}
	for i := 0; i < n; i++ {
		a.labels[i] = int64(i)
		a.edges = append(a.edges, [2]int{i, (i + 1) % n})
		if i%3 == 0 {
			a.edges = append(a.edges, [2]int{i, (i + 3) % n})
		}
	}
	return a
}

// query folds the key vector into a node index and walks one hop toward
// the neighbor with the largest label, returning that label.
func (a *mindmapArena) query(key []int64) int64 {
	var sum int64
	for _, k := range key {
		sum += k
	}
	idx := int(sum % int64(len(a.labels)))
	if idx < 0 {
		idx += len(a.labels)
	}
	best := a.labels[idx]
	for _, e := range a.edges {
		if e[0] == idx && a.labels[e[1]] > best {
			best = a.labels[e[1]]
		}
	}
	return best
}

// execMindmapQuery resolves a semantic lookup for the key vector, through
// the Host when installed, else the built-in arena. The result is pushed.
func execMindmapQuery(ctx *Context, ins *bytecode.Instruction) *Fault {
	key := ins.Operands[0].(operand.Vector)
	if ctx.cfg.Host != nil {
		res, err := ctx.cfg.Host.MindmapQuery(key)
		if err != nil {
			return newFault(FaultOpcodeFailed, ins.Op, "mindmap: %v", err)
		}
		ctx.lastSummary = summaryOf(res)
		return ctx.push(ins.Op, res)
	}
	if ctx.mindmap == nil {
		ctx.mindmap = defaultMindmap()
	}
	ints := make([]int64, 0, len(key.Elems))
	for i, e := range key.Elems {
		bi, ok := e.(operand.BigInt)
		if !ok {
			return newFault(FaultTypeMismatch, ins.Op, "key element %d is %s", i, e.Tag())
		}
		v, err := bi.Int64()
		if err != nil {
			return newFault(FaultOverflow, ins.Op, "key element %d", i)
		}
		ints = append(ints, v)
	}
	res := operand.Int(ctx.mindmap.query(ints))
	ctx.lastSummary = summaryOf(res)
	return ctx.push(ins.Op, res)
}
