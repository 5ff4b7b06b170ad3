// Package ternary implements balanced-ternary digits and arbitrary-width
// base-81 arithmetic for the three HanoiVM tiers.
//
// A digit is an unsigned value covering a fixed number of trits:
//
//	T81:  [0,80]  = 4 trits
//	T243: [0,242] = 5 trits
//	T729: [0,728] = 6 trits
//
// The wire format carries unsigned digits; the balanced form {-1,0,+1} is
// derived per trit by subtracting one from the unsigned trit {0,1,2}. Both
// directions are total and round-trippable.
package ternary

import "fmt"

// Trit is a single balanced-ternary digit: -1, 0 or +1.
type Trit int8

// Digit width constants: number of trits per tier digit and the exclusive
// upper bound of the digit value.
const (
	T81Width  = 4
	T243Width = 5
	T729Width = 6

	T81Max  = 81
	T243Max = 243
	T729Max = 729
)

// Precomputed trit decompositions for every T729 digit, little-endian
// (least significant trit first). Narrower widths use a prefix.
var tritTable [T729Max][T729Width]Trit

func init() {
	for d := 0; d < T729Max; d++ {
		v := d
		for i := 0; i < T729Width; i++ {
			tritTable[d][i] = Trit(v%3) - 1
			v /= 3
		}
	}
}

// TritFromUnsigned maps a wire trit {0,1,2} to its balanced form.
func TritFromUnsigned(u uint8) (Trit, error) {
	if u > 2 {
		return 0, fmt.Errorf("ternary: unsigned trit %d out of range", u)
	}
	return Trit(u) - 1, nil
}

// Unsigned maps a balanced trit back to its wire form {0,1,2}.
func (t Trit) Unsigned() uint8 {
	return uint8(t + 1)
}

// TritWidth returns the trit count for a digit bound (81, 243 or 729).
func TritWidth(max int) (int, error) {
	switch max {
	case T81Max:
		return T81Width, nil
	case T243Max:
		return T243Width, nil
	case T729Max:
		return T729Width, nil
	}
	return 0, fmt.Errorf("ternary: no digit width with bound %d", max)
}

// TritsOf decomposes digit d (which must be < max) into its balanced trits,
// little-endian. The result length equals the width of the digit bound.
func TritsOf(max int, d int) ([]Trit, error) {
	w, err := TritWidth(max)
	if err != nil {
		return nil, err
	}
	if d < 0 || d >= max {
		return nil, fmt.Errorf("ternary: digit %d out of range [0,%d)", d, max)
	}
	out := make([]Trit, w)
	copy(out, tritTable[d][:w])
	return out, nil
}

// DigitFromTrits recomposes a little-endian balanced trit sequence into its
// unsigned digit value. Inverse of TritsOf for every valid digit.
func DigitFromTrits(ts []Trit) (int, error) {
	if len(ts) == 0 || len(ts) > T729Width {
		return 0, fmt.Errorf("ternary: trit sequence length %d unsupported", len(ts))
	}
	d := 0
	pow := 1
	for i, t := range ts {
		if t < -1 || t > 1 {
			return 0, fmt.Errorf("ternary: trit %d at index %d out of range", t, i)
		}
		d += int(t+1) * pow
		pow *= 3
	}
	return d, nil
}

// T243FromT81 composes a T243 digit from two T81 digits: a + 81·b (mod 243).
func T243FromT81(a, b uint8) uint16 {
	return uint16((int(a) + 81*int(b)) % T243Max)
}

// SplitT243 splits a T243 digit into the T81 pair that recomposes it.
func SplitT243(d uint16) (a, b uint8) {
	return uint8(d % 81), uint8(d / 81)
}

// T729FromT243 composes a T729 digit: a + 243·b + 243²·c (mod 729).
func T729FromT243(a, b, c uint16) uint16 {
	return uint16((int(a) + 243*int(b) + 243*243*int(c)) % T729Max)
}

// SplitT729 splits a T729 digit into T243 components. The third component
// is always zero since 243² ≡ 0 (mod 729).
func SplitT729(d uint16) (a, b, c uint16) {
	return d % 243, d / 243, 0
}
