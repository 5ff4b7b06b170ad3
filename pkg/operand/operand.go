// Package operand defines the tagged operand variants carried on the VM
// stack and in the bytecode stream, their validation rules, and the wire
// codec. The one-byte tag is the discriminant of the variant and is
// round-trip-preserved by Encode/Decode.
package operand

import (
	"fmt"
	"strings"

	"github.com/t81dev/hanoivm/pkg/ternary"
)

// Tag identifies an operand shape on the wire.
type Tag uint8

// Wire tags. The numeric values are part of the bytecode format.
const (
	TagBigInt     Tag = 0x01
	TagFraction   Tag = 0x02
	TagFloat      Tag = 0x03
	TagMatrix     Tag = 0x04
	TagVector     Tag = 0x05
	TagTensor     Tag = 0x06
	TagPolynomial Tag = 0x07
	TagGraph      Tag = 0x08
	TagQuaternion Tag = 0x09
	TagOpcode     Tag = 0x0A
)

// tagNames indexes printable names by tag.
var tagNames = map[Tag]string{
	TagBigInt:     "BIGINT",
	TagFraction:   "FRACTION",
	TagFloat:      "FLOAT",
	TagMatrix:     "MATRIX",
	TagVector:     "VECTOR",
	TagTensor:     "TENSOR",
	TagPolynomial: "POLYNOMIAL",
	TagGraph:      "GRAPH",
	TagQuaternion: "QUATERNION",
	TagOpcode:     "OPCODE",
}

// String returns the printable tag name.
func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TAG(0x%02X)", uint8(t))
}

// Known reports whether the tag belongs to the recognized set.
func (t Tag) Known() bool {
	_, ok := tagNames[t]
	return ok
}

// MalformedError reports an operand that violates its shape's validation
// rules.
type MalformedError struct {
	Tag    Tag
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s operand: %s", e.Tag, e.Reason)
}

func malformed(tag Tag, format string, args ...interface{}) error {
	return &MalformedError{Tag: tag, Reason: fmt.Sprintf(format, args...)}
}

// Operand is one tagged value. Concrete types carry exported fields only,
// so values compare with reflect.DeepEqual in tests.
type Operand interface {
	Tag() Tag
	Validate() error
	String() string
}

// BigInt is a signed base-81 integer operand.
type BigInt struct {
	ternary.BigInt
}

// Int wraps a host integer as a BigInt operand.
func Int(v int64) BigInt {
	return BigInt{ternary.NewBigInt(v)}
}

// Tag implements Operand.
func (BigInt) Tag() Tag { return TagBigInt }

// Validate enforces the digit-count and digit-range limits.
func (b BigInt) Validate() error {
	if len(b.Digits) > 255 {
		return malformed(TagBigInt, "digit count %d exceeds 255", len(b.Digits))
	}
	for i, d := range b.Digits {
		if d >= ternary.Base {
			return malformed(TagBigInt, "digit %d at index %d out of range", d, i)
		}
	}
	return nil
}

// Fraction is an exact rational operand.
type Fraction struct {
	ternary.Fraction
}

// Tag implements Operand.
func (Fraction) Tag() Tag { return TagFraction }

// Validate rejects a zero denominator and malformed component digits.
func (f Fraction) Validate() error {
	for _, part := range []ternary.BigInt{f.Num, f.Den} {
		if err := (BigInt{part}).Validate(); err != nil {
			return malformed(TagFraction, "component: %v", err)
		}
	}
	if f.Den.IsZero() {
		return malformed(TagFraction, "zero denominator")
	}
	return nil
}

// Float is a base-81 floating operand.
type Float struct {
	ternary.Float
}

// Tag implements Operand.
func (Float) Tag() Tag { return TagFloat }

// Validate checks the mantissa digits.
func (f Float) Validate() error {
	if err := (BigInt{f.Mant}).Validate(); err != nil {
		return malformed(TagFloat, "mantissa: %v", err)
	}
	return nil
}

// Matrix is a row-major rectangular block of nested operands.
type Matrix struct {
	Rows  uint8
	Cols  uint8
	Cells []Operand
}

// Tag implements Operand.
func (Matrix) Tag() Tag { return TagMatrix }

// Validate requires rows·cols cells, each well-formed with a known tag.
func (m Matrix) Validate() error {
	want := int(m.Rows) * int(m.Cols)
	if want != len(m.Cells) {
		return malformed(TagMatrix, "%dx%d needs %d cells, have %d", m.Rows, m.Cols, want, len(m.Cells))
	}
	for i, c := range m.Cells {
		if !c.Tag().Known() {
			return malformed(TagMatrix, "cell %d has unknown tag", i)
		}
		if err := c.Validate(); err != nil {
			return malformed(TagMatrix, "cell %d: %v", i, err)
		}
	}
	return nil
}

// At returns the cell at row r, column c.
func (m Matrix) At(r, c int) Operand {
	return m.Cells[r*int(m.Cols)+c]
}

// Vector is an ordered sequence of nested operands.
type Vector struct {
	Elems []Operand
}

// Tag implements Operand.
func (Vector) Tag() Tag { return TagVector }

// Validate bounds the length and checks every element.
func (v Vector) Validate() error {
	if len(v.Elems) > 255 {
		return malformed(TagVector, "length %d exceeds 255", len(v.Elems))
	}
	for i, e := range v.Elems {
		if err := e.Validate(); err != nil {
			return malformed(TagVector, "element %d: %v", i, err)
		}
	}
	return nil
}

// Tensor is a rank-r block of nested operands in row-major order.
type Tensor struct {
	Shape []uint8
	Data  []Operand
}

// Tag implements Operand.
func (Tensor) Tag() Tag { return TagTensor }

// Validate enforces rank, positive dimensions and the volume law.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 || len(t.Shape) > 8 {
		return malformed(TagTensor, "rank %d out of range [1,8]", len(t.Shape))
	}
	vol := 1
	for i, s := range t.Shape {
		if s == 0 {
			return malformed(TagTensor, "dimension %d is zero", i)
		}
		vol *= int(s)
	}
	if vol != len(t.Data) {
		return malformed(TagTensor, "shape volume %d, data length %d", vol, len(t.Data))
	}
	for i, e := range t.Data {
		if err := e.Validate(); err != nil {
			return malformed(TagTensor, "element %d: %v", i, err)
		}
	}
	return nil
}

// Polynomial is a coefficient sequence indexed by degree.
type Polynomial struct {
	Coeffs []Operand
}

// Tag implements Operand.
func (Polynomial) Tag() Tag { return TagPolynomial }

// Validate bounds the degree and checks coefficients.
func (p Polynomial) Validate() error {
	if len(p.Coeffs) > 255 {
		return malformed(TagPolynomial, "degree %d exceeds 255", len(p.Coeffs))
	}
	for i, c := range p.Coeffs {
		if err := c.Validate(); err != nil {
			return malformed(TagPolynomial, "coefficient %d: %v", i, err)
		}
	}
	return nil
}

// Graph is a node count plus an edge list over node indices.
type Graph struct {
	Nodes uint8
	Edges [][2]uint8
}

// Tag implements Operand.
func (Graph) Tag() Tag { return TagGraph }

// Validate requires every edge endpoint to name an existing node.
func (g Graph) Validate() error {
	if len(g.Edges) > 255 {
		return malformed(TagGraph, "edge count %d exceeds 255", len(g.Edges))
	}
	for i, e := range g.Edges {
		if e[0] >= g.Nodes || e[1] >= g.Nodes {
			return malformed(TagGraph, "edge %d (%d,%d) outside %d nodes", i, e[0], e[1], g.Nodes)
		}
	}
	return nil
}

// Quaternion is four T81 components (x, y, z, w).
type Quaternion struct {
	X, Y, Z, W ternary.BigInt
}

// Tag implements Operand.
func (Quaternion) Tag() Tag { return TagQuaternion }

// Validate checks all four components.
func (q Quaternion) Validate() error {
	for i, c := range []ternary.BigInt{q.X, q.Y, q.Z, q.W} {
		if err := (BigInt{c}).Validate(); err != nil {
			return malformed(TagQuaternion, "component %d: %v", i, err)
		}
	}
	return nil
}

// OpcodeLit is a nested opcode byte.
type OpcodeLit struct {
	Code uint8
}

// Tag implements Operand.
func (OpcodeLit) Tag() Tag { return TagOpcode }

// Validate always succeeds; any byte is a representable literal.
func (OpcodeLit) Validate() error { return nil }

func (b BigInt) String() string    { return b.BigInt.String() }
func (f Fraction) String() string  { return f.Fraction.String() }
func (f Float) String() string     { return f.Float.String() }
func (o OpcodeLit) String() string { return fmt.Sprintf("OP(0x%02X)", o.Code) }

func (m Matrix) String() string {
	return fmt.Sprintf("MATRIX[%dx%d]{%s}", m.Rows, m.Cols, joinOperands(m.Cells))
}

func (v Vector) String() string {
	return fmt.Sprintf("VECTOR[%d]{%s}", len(v.Elems), joinOperands(v.Elems))
}

func (t Tensor) String() string {
	dims := make([]string, len(t.Shape))
	for i, s := range t.Shape {
		dims[i] = fmt.Sprintf("%d", s)
	}
	return fmt.Sprintf("TENSOR[%s]{%s}", strings.Join(dims, "x"), joinOperands(t.Data))
}

func (p Polynomial) String() string {
	return fmt.Sprintf("POLY[%d]{%s}", len(p.Coeffs), joinOperands(p.Coeffs))
}

func (g Graph) String() string {
	parts := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		parts[i] = fmt.Sprintf("(%d,%d)", e[0], e[1])
	}
	return fmt.Sprintf("GRAPH[%d]{%s}", g.Nodes, strings.Join(parts, " "))
}

func (q Quaternion) String() string {
	return fmt.Sprintf("QUAT{%s %s %s %s}", q.X.String(), q.Y.String(), q.Z.String(), q.W.String())
}

func joinOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return strings.Join(parts, " ")
}
