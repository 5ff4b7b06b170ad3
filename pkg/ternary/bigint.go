package ternary

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Base is the radix of BigInt digits.
const Base = 81

// Arithmetic failure values surfaced by this package.
var (
	ErrDivideByZero = errors.New("divide by zero")
	ErrOverflow     = errors.New("overflow")
)

// BigInt is a signed arbitrary-width base-81 integer. Digits are little
// endian, each in [0,80]. The digit slice is preserved verbatim so decoded
// wire values re-encode byte-for-byte; arithmetic results are produced in
// canonical trimmed form. A value with all-zero digits is zero regardless
// of Sign.
type BigInt struct {
	Sign   bool
	Digits []uint8
}

// NewBigInt builds a BigInt from a host integer.
func NewBigInt(v int64) BigInt {
	if v == 0 {
		return BigInt{}
	}
	neg := v < 0
	// Negate via unsigned to survive MinInt64.
	u := uint64(v)
	if neg {
		u = -u
	}
	var ds []uint8
	for u > 0 {
		ds = append(ds, uint8(u%Base))
		u /= Base
	}
	return BigInt{Sign: neg, Digits: ds}
}

// IsZero reports whether every digit is zero.
func (b BigInt) IsZero() bool {
	for _, d := range b.Digits {
		if d != 0 {
			return false
		}
	}
	return true
}

// Int64 converts to a host integer, failing with ErrOverflow when the
// magnitude does not fit.
func (b BigInt) Int64() (int64, error) {
	var v uint64
	for i := len(b.Digits) - 1; i >= 0; i-- {
		if v > (1<<63)/Base {
			return 0, errors.Wrap(ErrOverflow, "bigint to int64")
		}
		v = v*Base + uint64(b.Digits[i])
	}
	neg := b.Sign && !b.IsZero()
	if v > 1<<63 || (!neg && v == 1<<63) {
		return 0, errors.Wrap(ErrOverflow, "bigint to int64")
	}
	if neg {
		return int64(-v), nil
	}
	return int64(v), nil
}

// String renders the value in decimal.
func (b BigInt) String() string {
	v, err := b.Int64()
	if err == nil {
		return fmt.Sprintf("%d", v)
	}
	// Too wide for int64: fall back to a digit listing.
	var sb strings.Builder
	if b.Sign {
		sb.WriteByte('-')
	}
	sb.WriteString("t81[")
	for i := len(b.Digits) - 1; i >= 0; i-- {
		if i < len(b.Digits)-1 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d", b.Digits[i])
	}
	sb.WriteByte(']')
	return sb.String()
}

// trim drops high-order zero digits and canonicalizes the zero sign.
func trim(neg bool, ds []uint8) BigInt {
	n := len(ds)
	for n > 0 && ds[n-1] == 0 {
		n--
	}
	if n == 0 {
		return BigInt{}
	}
	return BigInt{Sign: neg, Digits: ds[:n]}
}

// magCmp compares two magnitudes ignoring sign.
func magCmp(a, b []uint8) int {
	an, bn := len(a), len(b)
	for an > 0 && a[an-1] == 0 {
		an--
	}
	for bn > 0 && b[bn-1] == 0 {
		bn--
	}
	if an != bn {
		if an > bn {
			return 1
		}
		return -1
	}
	for i := an - 1; i >= 0; i-- {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// magAdd adds two magnitudes with base-81 carry.
func magAdd(a, b []uint8) []uint8 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]uint8, 0, n+1)
	carry := 0
	for i := 0; i < n; i++ {
		s := carry
		if i < len(a) {
			s += int(a[i])
		}
		if i < len(b) {
			s += int(b[i])
		}
		out = append(out, uint8(s%Base))
		carry = s / Base
	}
	if carry > 0 {
		out = append(out, uint8(carry))
	}
	return out
}

// magSub subtracts b from a with base-81 borrow. Requires magCmp(a,b) >= 0.
func magSub(a, b []uint8) []uint8 {
	out := make([]uint8, 0, len(a))
	borrow := 0
	for i := 0; i < len(a); i++ {
		d := int(a[i]) - borrow
		if i < len(b) {
			d -= int(b[i])
		}
		if d < 0 {
			d += Base
			borrow = 1
		} else {
			borrow = 0
		}
		out = append(out, uint8(d))
	}
	return out
}

// magMul multiplies two magnitudes schoolbook-style.
func magMul(a, b []uint8) []uint8 {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]uint8, len(a)+len(b))
	for i, da := range a {
		if da == 0 {
			continue
		}
		carry := 0
		for j, db := range b {
			s := int(out[i+j]) + int(da)*int(db) + carry
			out[i+j] = uint8(s % Base)
			carry = s / Base
		}
		k := i + len(b)
		for carry > 0 {
			s := int(out[k]) + carry
			out[k] = uint8(s % Base)
			carry = s / Base
			k++
		}
	}
	return out
}

// magMulDigit multiplies a magnitude by a single digit.
func magMulDigit(a []uint8, d uint8) []uint8 {
	return magMul(a, []uint8{d})
}

// magDivMod performs schoolbook long division of magnitudes, returning
// quotient and remainder. Requires a nonzero divisor.
func magDivMod(a, b []uint8) (q, r []uint8) {
	if magCmp(a, b) < 0 {
		return nil, append([]uint8(nil), a...)
	}
	q = make([]uint8, len(a))
	r = nil
	for i := len(a) - 1; i >= 0; i-- {
		// r = r*81 + a[i]
		r = append([]uint8{a[i]}, r...)
		// Trim so magCmp stays cheap.
		for len(r) > 0 && r[len(r)-1] == 0 {
			r = r[:len(r)-1]
		}
		if magCmp(r, b) < 0 {
			continue
		}
		// Binary search the quotient digit in [1,80].
		lo, hi := 1, Base-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if magCmp(magMulDigit(b, uint8(mid)), r) <= 0 {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		q[i] = uint8(lo)
		r = magSub(r, magMulDigit(b, uint8(lo)))
		for len(r) > 0 && r[len(r)-1] == 0 {
			r = r[:len(r)-1]
		}
	}
	return q, r
}

// Add returns a+b in canonical form.
func (b BigInt) Add(o BigInt) BigInt {
	an, on := b.Sign && !b.IsZero(), o.Sign && !o.IsZero()
	if an == on {
		return trim(an, magAdd(b.Digits, o.Digits))
	}
	switch magCmp(b.Digits, o.Digits) {
	case 0:
		return BigInt{}
	case 1:
		return trim(an, magSub(b.Digits, o.Digits))
	default:
		return trim(on, magSub(o.Digits, b.Digits))
	}
}

// Sub returns a-b in canonical form.
func (b BigInt) Sub(o BigInt) BigInt {
	return b.Add(o.Neg())
}

// Neg returns the negation; zero stays canonical zero.
func (b BigInt) Neg() BigInt {
	if b.IsZero() {
		return BigInt{Digits: append([]uint8(nil), b.Digits...)}
	}
	return BigInt{Sign: !b.Sign, Digits: append([]uint8(nil), b.Digits...)}
}

// Abs returns the absolute value.
func (b BigInt) Abs() BigInt {
	return BigInt{Digits: append([]uint8(nil), b.Digits...)}
}

// Mul returns a·b in canonical form.
func (b BigInt) Mul(o BigInt) BigInt {
	neg := (b.Sign != o.Sign) && !b.IsZero() && !o.IsZero()
	return trim(neg, magMul(b.Digits, o.Digits))
}

// Div returns the truncated quotient a/b, or ErrDivideByZero.
func (b BigInt) Div(o BigInt) (BigInt, error) {
	if o.IsZero() {
		return BigInt{}, ErrDivideByZero
	}
	q, _ := magDivMod(b.Digits, o.Digits)
	neg := (b.Sign != o.Sign) && !b.IsZero()
	return trim(neg, q), nil
}

// Mod returns the remainder of a/b. The result takes the sign of the
// divisor, matching floored-division semantics.
func (b BigInt) Mod(o BigInt) (BigInt, error) {
	if o.IsZero() {
		return BigInt{}, ErrDivideByZero
	}
	_, r := magDivMod(b.Digits, o.Digits)
	rem := trim(b.Sign, r)
	if rem.IsZero() {
		return BigInt{}, nil
	}
	// Truncated remainder has the dividend's sign; shift by the divisor
	// when the signs disagree so the result follows the divisor.
	if rem.Sign != o.Sign {
		rem = rem.Add(o)
	}
	return rem, nil
}

// Cmp3 returns -1, 0 or +1 for a<b, a==b, a>b.
func (b BigInt) Cmp3(o BigInt) int {
	an, on := b.Sign && !b.IsZero(), o.Sign && !o.IsZero()
	if an != on {
		if an {
			return -1
		}
		return 1
	}
	c := magCmp(b.Digits, o.Digits)
	if an {
		return -c
	}
	return c
}

// Equal reports numeric equality (leading zeros and zero sign ignored).
func (b BigInt) Equal(o BigInt) bool {
	return b.Cmp3(o) == 0
}
