package ternary

import "fmt"

// Fraction is an exact rational: Num/Den with Den nonzero. Values are not
// normalized automatically; Reduce produces the canonical form when a
// handler needs one.
type Fraction struct {
	Num BigInt
	Den BigInt
}

// NewFraction builds Num/Den, failing on a zero denominator.
func NewFraction(num, den BigInt) (Fraction, error) {
	if den.IsZero() {
		return Fraction{}, ErrDivideByZero
	}
	return Fraction{Num: num, Den: den}, nil
}

// String renders as "num/den".
func (f Fraction) String() string {
	return fmt.Sprintf("%s/%s", f.Num.String(), f.Den.String())
}

// IsZero reports whether the numerator is zero.
func (f Fraction) IsZero() bool {
	return f.Num.IsZero()
}

// Add returns a+b over the common denominator.
func (f Fraction) Add(o Fraction) Fraction {
	return Fraction{
		Num: f.Num.Mul(o.Den).Add(o.Num.Mul(f.Den)),
		Den: f.Den.Mul(o.Den),
	}
}

// Sub returns a-b over the common denominator.
func (f Fraction) Sub(o Fraction) Fraction {
	return Fraction{
		Num: f.Num.Mul(o.Den).Sub(o.Num.Mul(f.Den)),
		Den: f.Den.Mul(o.Den),
	}
}

// Mul returns the product.
func (f Fraction) Mul(o Fraction) Fraction {
	return Fraction{Num: f.Num.Mul(o.Num), Den: f.Den.Mul(o.Den)}
}

// Div returns the quotient, failing when the divisor is zero.
func (f Fraction) Div(o Fraction) (Fraction, error) {
	if o.Num.IsZero() {
		return Fraction{}, ErrDivideByZero
	}
	return Fraction{Num: f.Num.Mul(o.Den), Den: f.Den.Mul(o.Num)}, nil
}

// Neg returns the negation.
func (f Fraction) Neg() Fraction {
	return Fraction{Num: f.Num.Neg(), Den: f.Den}
}

// Abs returns the absolute value with a positive denominator.
func (f Fraction) Abs() Fraction {
	return Fraction{Num: f.Num.Abs(), Den: f.Den.Abs()}
}

// Cmp3 compares two fractions by cross-multiplication, normalizing for
// denominator signs.
func (f Fraction) Cmp3(o Fraction) int {
	a := f.Num.Mul(o.Den)
	b := o.Num.Mul(f.Den)
	c := a.Cmp3(b)
	if f.Den.Sign != o.Den.Sign {
		return -c
	}
	return c
}

// Reduce divides out the greatest common divisor and moves the sign to the
// numerator.
func (f Fraction) Reduce() Fraction {
	g := gcd(f.Num.Abs(), f.Den.Abs())
	num, _ := f.Num.Div(g)
	den, _ := f.Den.Div(g)
	if den.Sign {
		num = num.Neg()
		den = den.Neg()
	}
	return Fraction{Num: num, Den: den}
}

// gcd computes the greatest common divisor of two nonnegative values.
// gcd(x, 0) = x; gcd(0, 0) = 1 so Reduce never divides by zero.
func gcd(a, b BigInt) BigInt {
	for !b.IsZero() {
		r, _ := a.Mod(b)
		a, b = b, r
	}
	if a.IsZero() {
		return NewBigInt(1)
	}
	return a
}

// One is the unit fraction 1/1.
func One() Fraction {
	return Fraction{Num: NewBigInt(1), Den: NewBigInt(1)}
}
