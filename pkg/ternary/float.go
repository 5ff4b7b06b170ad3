package ternary

import "fmt"

// Float is a base-81 floating value: Mant · 81^Exp.
type Float struct {
	Mant BigInt
	Exp  int8
}

// String renders as "<mant>e<exp>", e.g. "5e-3".
func (f Float) String() string {
	return fmt.Sprintf("%se%d", f.Mant.String(), f.Exp)
}

// shiftMant multiplies the mantissa by 81^n.
func shiftMant(m BigInt, n int) BigInt {
	if m.IsZero() || n == 0 {
		return m
	}
	ds := make([]uint8, n, n+len(m.Digits))
	ds = append(ds, m.Digits...)
	return BigInt{Sign: m.Sign, Digits: ds}
}

// align rewrites two floats to a shared exponent (the smaller of the two),
// failing with ErrOverflow when the shift cannot be represented.
func align(a, b Float) (BigInt, BigInt, int8, error) {
	if a.Exp == b.Exp {
		return a.Mant, b.Mant, a.Exp, nil
	}
	if a.Exp > b.Exp {
		diff := int(a.Exp) - int(b.Exp)
		if diff > 64 {
			return BigInt{}, BigInt{}, 0, ErrOverflow
		}
		return shiftMant(a.Mant, diff), b.Mant, b.Exp, nil
	}
	diff := int(b.Exp) - int(a.Exp)
	if diff > 64 {
		return BigInt{}, BigInt{}, 0, ErrOverflow
	}
	return a.Mant, shiftMant(b.Mant, diff), a.Exp, nil
}

// Add returns a+b at the shared exponent.
func (f Float) Add(o Float) (Float, error) {
	ma, mb, e, err := align(f, o)
	if err != nil {
		return Float{}, err
	}
	return Float{Mant: ma.Add(mb), Exp: e}, nil
}

// Sub returns a-b at the shared exponent.
func (f Float) Sub(o Float) (Float, error) {
	ma, mb, e, err := align(f, o)
	if err != nil {
		return Float{}, err
	}
	return Float{Mant: ma.Sub(mb), Exp: e}, nil
}

// Mul returns the product, failing when the exponent sum leaves int8.
func (f Float) Mul(o Float) (Float, error) {
	e := int(f.Exp) + int(o.Exp)
	if e < -128 || e > 127 {
		return Float{}, ErrOverflow
	}
	return Float{Mant: f.Mant.Mul(o.Mant), Exp: int8(e)}, nil
}

// Neg returns the negation.
func (f Float) Neg() Float {
	return Float{Mant: f.Mant.Neg(), Exp: f.Exp}
}

// Abs returns the absolute value.
func (f Float) Abs() Float {
	return Float{Mant: f.Mant.Abs(), Exp: f.Exp}
}

// Cmp3 compares two floats exactly after alignment. Exponent gaps too wide
// for align are shifted directly; an int8 gap is at most 255 digits.
func (f Float) Cmp3(o Float) int {
	ma, mb, _, err := align(f, o)
	if err != nil {
		if f.Exp > o.Exp {
			return shiftMant(f.Mant, int(f.Exp)-int(o.Exp)).Cmp3(o.Mant)
		}
		return f.Mant.Cmp3(shiftMant(o.Mant, int(o.Exp)-int(f.Exp)))
	}
	return ma.Cmp3(mb)
}
