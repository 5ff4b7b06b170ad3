package operand

import (
	"bytes"

	"github.com/t81dev/hanoivm/pkg/ternary"
)

// maxDepth bounds operand nesting so hostile streams cannot recurse the
// decoder without bound.
const maxDepth = 16

// Decode reads one tagged operand from the front of data, returning the
// operand and the number of bytes consumed. The decoded value validates
// clean and re-encodes byte-for-byte.
func Decode(data []byte) (Operand, int, error) {
	return decode(data, 0)
}

func decode(data []byte, depth int) (Operand, int, error) {
	if depth > maxDepth {
		return nil, 0, malformed(0, "nesting deeper than %d", maxDepth)
	}
	if len(data) == 0 {
		return nil, 0, malformed(0, "truncated: missing tag")
	}
	tag := Tag(data[0])
	body := data[1:]
	var (
		op  Operand
		n   int
		err error
	)
	switch tag {
	case TagBigInt:
		var v ternary.BigInt
		v, n, err = decodeRun(tag, body)
		op = BigInt{v}
	case TagFraction:
		var num, den ternary.BigInt
		var n2 int
		num, n, err = decodeRun(tag, body)
		if err == nil {
			den, n2, err = decodeRun(tag, body[n:])
			n += n2
		}
		op = Fraction{ternary.Fraction{Num: num, Den: den}}
	case TagFloat:
		var mant ternary.BigInt
		mant, n, err = decodeRun(tag, body)
		if err == nil {
			if n >= len(body) {
				err = malformed(tag, "truncated: missing exponent")
			} else {
				op = Float{ternary.Float{Mant: mant, Exp: int8(body[n])}}
				n++
			}
		}
	case TagQuaternion:
		var comp [4]ternary.BigInt
		for i := 0; i < 4 && err == nil; i++ {
			var c ternary.BigInt
			var cn int
			c, cn, err = decodeRun(tag, body[n:])
			comp[i] = c
			n += cn
		}
		op = Quaternion{X: comp[0], Y: comp[1], Z: comp[2], W: comp[3]}
	case TagMatrix:
		op, n, err = decodeMatrix(body, depth)
	case TagVector:
		var elems []Operand
		elems, n, err = decodeSeq(tag, body, depth)
		op = Vector{Elems: elems}
	case TagPolynomial:
		var coeffs []Operand
		coeffs, n, err = decodeSeq(tag, body, depth)
		op = Polynomial{Coeffs: coeffs}
	case TagTensor:
		op, n, err = decodeTensor(body, depth)
	case TagGraph:
		op, n, err = decodeGraph(body)
	case TagOpcode:
		if len(body) < 1 {
			err = malformed(tag, "truncated: missing opcode byte")
		} else {
			op = OpcodeLit{Code: body[0]}
			n = 1
		}
	default:
		return nil, 0, malformed(tag, "unknown tag")
	}
	if err != nil {
		return nil, 0, err
	}
	if err := op.Validate(); err != nil {
		return nil, 0, err
	}
	return op, 1 + n, nil
}

// decodeRun reads a length-prefixed digit run.
func decodeRun(tag Tag, body []byte) (ternary.BigInt, int, error) {
	if len(body) < 1 {
		return ternary.BigInt{}, 0, malformed(tag, "truncated: missing run length")
	}
	l := int(body[0])
	if len(body) < 1+l {
		return ternary.BigInt{}, 0, malformed(tag, "truncated: run wants %d digits, %d left", l, len(body)-1)
	}
	ds := make([]uint8, l)
	copy(ds, body[1:1+l])
	for i, d := range ds {
		if d >= ternary.Base {
			return ternary.BigInt{}, 0, malformed(tag, "digit %d at index %d out of range", d, i)
		}
	}
	return ternary.BigInt{Digits: ds}, 1 + l, nil
}

// decodeSeq reads a length-prefixed stream of nested operands.
func decodeSeq(tag Tag, body []byte, depth int) ([]Operand, int, error) {
	if len(body) < 1 {
		return nil, 0, malformed(tag, "truncated: missing length")
	}
	count := int(body[0])
	n := 1
	elems := make([]Operand, 0, count)
	for i := 0; i < count; i++ {
		e, en, err := decode(body[n:], depth+1)
		if err != nil {
			return nil, 0, err
		}
		elems = append(elems, e)
		n += en
	}
	return elems, n, nil
}

func decodeMatrix(body []byte, depth int) (Operand, int, error) {
	if len(body) < 2 {
		return nil, 0, malformed(TagMatrix, "truncated: missing dimensions")
	}
	rows, cols := body[0], body[1]
	n := 2
	count := int(rows) * int(cols)
	cells := make([]Operand, 0, count)
	for i := 0; i < count; i++ {
		c, cn, err := decode(body[n:], depth+1)
		if err != nil {
			return nil, 0, err
		}
		cells = append(cells, c)
		n += cn
	}
	return Matrix{Rows: rows, Cols: cols, Cells: cells}, n, nil
}

func decodeTensor(body []byte, depth int) (Operand, int, error) {
	if len(body) < 1 {
		return nil, 0, malformed(TagTensor, "truncated: missing rank")
	}
	rank := int(body[0])
	if rank == 0 || rank > 8 {
		return nil, 0, malformed(TagTensor, "rank %d out of range [1,8]", rank)
	}
	if len(body) < 1+rank {
		return nil, 0, malformed(TagTensor, "truncated: missing shape")
	}
	shape := make([]uint8, rank)
	copy(shape, body[1:1+rank])
	vol := 1
	for i, s := range shape {
		if s == 0 {
			return nil, 0, malformed(TagTensor, "dimension %d is zero", i)
		}
		vol *= int(s)
	}
	n := 1 + rank
	data := make([]Operand, 0, vol)
	for i := 0; i < vol; i++ {
		e, en, err := decode(body[n:], depth+1)
		if err != nil {
			return nil, 0, err
		}
		data = append(data, e)
		n += en
	}
	return Tensor{Shape: shape, Data: data}, n, nil
}

func decodeGraph(body []byte) (Operand, int, error) {
	if len(body) < 2 {
		return nil, 0, malformed(TagGraph, "truncated: missing counts")
	}
	nodes, edgeCount := body[0], int(body[1])
	if len(body) < 2+2*edgeCount {
		return nil, 0, malformed(TagGraph, "truncated: %d edges declared", edgeCount)
	}
	edges := make([][2]uint8, edgeCount)
	for i := 0; i < edgeCount; i++ {
		edges[i] = [2]uint8{body[2+2*i], body[3+2*i]}
	}
	return Graph{Nodes: nodes, Edges: edges}, 2 + 2*edgeCount, nil
}

// Encode appends the wire form of op to buf. The operand must validate and,
// for numeric shapes, be nonnegative: the wire carries magnitudes only.
func Encode(buf *bytes.Buffer, op Operand) error {
	if err := op.Validate(); err != nil {
		return err
	}
	buf.WriteByte(uint8(op.Tag()))
	return encodeBody(buf, op)
}

func encodeBody(buf *bytes.Buffer, op Operand) error {
	switch v := op.(type) {
	case BigInt:
		return encodeRun(buf, v.BigInt)
	case Fraction:
		if err := encodeRun(buf, v.Num); err != nil {
			return err
		}
		return encodeRun(buf, v.Den)
	case Float:
		if err := encodeRun(buf, v.Mant); err != nil {
			return err
		}
		buf.WriteByte(uint8(v.Exp))
		return nil
	case Quaternion:
		for _, c := range []ternary.BigInt{v.X, v.Y, v.Z, v.W} {
			if err := encodeRun(buf, c); err != nil {
				return err
			}
		}
		return nil
	case Matrix:
		buf.WriteByte(v.Rows)
		buf.WriteByte(v.Cols)
		return encodeAll(buf, v.Cells)
	case Vector:
		buf.WriteByte(uint8(len(v.Elems)))
		return encodeAll(buf, v.Elems)
	case Polynomial:
		buf.WriteByte(uint8(len(v.Coeffs)))
		return encodeAll(buf, v.Coeffs)
	case Tensor:
		buf.WriteByte(uint8(len(v.Shape)))
		buf.Write(v.Shape)
		return encodeAll(buf, v.Data)
	case Graph:
		buf.WriteByte(v.Nodes)
		buf.WriteByte(uint8(len(v.Edges)))
		for _, e := range v.Edges {
			buf.WriteByte(e[0])
			buf.WriteByte(e[1])
		}
		return nil
	case OpcodeLit:
		buf.WriteByte(v.Code)
		return nil
	}
	return malformed(op.Tag(), "unencodable operand type %T", op)
}

func encodeRun(buf *bytes.Buffer, v ternary.BigInt) error {
	if v.Sign && !v.IsZero() {
		return malformed(TagBigInt, "negative value not representable on the wire")
	}
	if len(v.Digits) > 255 {
		return malformed(TagBigInt, "digit count %d exceeds 255", len(v.Digits))
	}
	buf.WriteByte(uint8(len(v.Digits)))
	buf.Write(v.Digits)
	return nil
}

func encodeAll(buf *bytes.Buffer, ops []Operand) error {
	for _, o := range ops {
		if err := Encode(buf, o); err != nil {
			return err
		}
	}
	return nil
}
