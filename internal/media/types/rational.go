package types

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	apperrors "github.com/zsiec/avcore/internal/errors"
)

// MaxRationalBound is the default bound for reduced numerators and
// denominators.
const MaxRationalBound = math.MaxInt32

// ErrInvalidRational matches (via errors.Is) every error produced for a
// zero denominator or an unusable timebase.
var ErrInvalidRational = apperrors.New(apperrors.ErrorTypeInvalidArgument, "invalid rational").
	WithCode("INVALID_RATIONAL")

func invalidRational(format string, args ...interface{}) error {
	return apperrors.NewInvalidArgument(format, args...).WithCode("INVALID_RATIONAL")
}

// Rational represents an exact fraction Num/Den.
// Values built by NewRational, Reduce or FromFloat64 are in lowest terms
// with Den > 0; the sign is carried by Num.
type Rational struct {
	Num int32 // Numerator
	Den int32 // Denominator
}

// NewRational creates a reduced rational. A zero denominator is an error.
func NewRational(num, den int32) (Rational, error) {
	r, _, err := Reduce(int64(num), int64(den), MaxRationalBound)
	return r, err
}

// MustRational is NewRational for constants known to be valid.
func MustRational(num, den int32) Rational {
	r, err := NewRational(num, den)
	if err != nil {
		panic(err)
	}
	return r
}

// Reduce finds the best approximation of num/den whose numerator and
// denominator magnitudes do not exceed max, using a continued fraction
// expansion. exact reports whether no precision was lost.
func Reduce(num, den, max int64) (r Rational, exact bool, err error) {
	if den == 0 {
		return Rational{}, false, invalidRational("zero denominator in %d/%d", num, den)
	}
	if max <= 0 || max > MaxRationalBound {
		return Rational{}, false, apperrors.NewInvalidArgument("reduction bound %d out of range", max)
	}

	negative := (num < 0) != (den < 0)
	n, d := absU64(num), absU64(den)
	if g := gcd(n, d); g > 1 {
		n /= g
		d /= g
	}

	umax := uint64(max)
	var a0n, a0d uint64 = 0, 1
	var a1n, a1d uint64 = 1, 0

	if n <= umax && d <= umax {
		a1n, a1d = n, d
		d = 0
	}

	for d != 0 {
		x := n / d
		nextDen := n - d*x
		a2n := x*a1n + a0n
		a2d := x*a1d + a0d

		if overflowsBound(x, a1n, a0n, umax) || overflowsBound(x, a1d, a0d, umax) || a2n > umax || a2d > umax {
			if a1n != 0 {
				x = (umax - a0n) / a1n
			}
			if a1d != 0 {
				x = minU64(x, (umax-a0d)/a1d)
			}
			// Take the semiconvergent only when it is closer than a1.
			if mulGreater(d, 2*x*a1d+a0d, n, a1d) {
				a1n, a1d = x*a1n+a0n, x*a1d+a0d
			}
			break
		}

		a0n, a0d = a1n, a1d
		a1n, a1d = a2n, a2d
		n = d
		d = nextDen
	}

	r = Rational{Num: int32(a1n), Den: int32(a1d)}
	if negative {
		r.Num = -r.Num
	}
	return r, d == 0, nil
}

// FromFloat64 approximates f with a continued fraction expansion bounded by
// max. NaN and values beyond the int32 range are rejected.
func FromFloat64(f float64, max int64) (Rational, error) {
	if math.IsNaN(f) {
		return Rational{}, invalidRational("cannot represent NaN as a rational")
	}
	if math.Abs(f) > float64(math.MaxInt32)+3 {
		return Rational{}, invalidRational("%g is out of rational range", f)
	}
	if f == 0 {
		return Rational{Num: 0, Den: 1}, nil
	}

	_, exponent := math.Frexp(f)
	if exponent-1 > 0 {
		exponent--
	} else {
		exponent = 0
	}
	den := int64(1) << uint(62-exponent)
	num := int64(math.Floor(f*float64(den) + 0.5))

	r, _, err := Reduce(num, den, max)
	if err != nil {
		return Rational{}, err
	}
	if (r.Num == 0 || r.Den == 0) && max < MaxRationalBound {
		r, _, err = Reduce(num, den, MaxRationalBound)
		if err != nil {
			return Rational{}, err
		}
	}
	return r, nil
}

// ParseRational parses "num/den" or a plain integer.
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	numStr, denStr, found := strings.Cut(s, "/")
	if !found {
		denStr = "1"
	}
	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 32)
	if err != nil {
		return Rational{}, invalidRational("invalid rational %q: %v", s, err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(denStr), 10, 32)
	if err != nil {
		return Rational{}, invalidRational("invalid rational %q: %v", s, err)
	}
	return NewRational(int32(num), int32(den))
}

// Valid reports whether the denominator is non-zero.
func (r Rational) Valid() bool {
	return r.Den != 0
}

// IsZero reports whether the value is zero.
func (r Rational) IsZero() bool {
	return r.Num == 0 && r.Den != 0
}

// Float64 returns the floating point representation. A zero denominator
// yields NaN or ±Inf.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		if r.Num == 0 {
			return math.NaN()
		}
		return math.Inf(int(sign64(int64(r.Num))))
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns Den/Num, reduced.
func (r Rational) Invert() (Rational, error) {
	return NewRational(r.Den, r.Num)
}

// Add returns r + o.
func (r Rational) Add(o Rational) (Rational, error) {
	if err := checkOperands(r, o); err != nil {
		return Rational{}, err
	}
	num := int64(r.Num)*int64(o.Den) + int64(o.Num)*int64(r.Den)
	red, _, err := Reduce(num, int64(r.Den)*int64(o.Den), MaxRationalBound)
	return red, err
}

// Sub returns r - o.
func (r Rational) Sub(o Rational) (Rational, error) {
	if err := checkOperands(r, o); err != nil {
		return Rational{}, err
	}
	num := int64(r.Num)*int64(o.Den) - int64(o.Num)*int64(r.Den)
	red, _, err := Reduce(num, int64(r.Den)*int64(o.Den), MaxRationalBound)
	return red, err
}

// Mul returns r * o.
func (r Rational) Mul(o Rational) (Rational, error) {
	if err := checkOperands(r, o); err != nil {
		return Rational{}, err
	}
	red, _, err := Reduce(int64(r.Num)*int64(o.Num), int64(r.Den)*int64(o.Den), MaxRationalBound)
	return red, err
}

// Div returns r / o. Dividing by zero is an error.
func (r Rational) Div(o Rational) (Rational, error) {
	if err := checkOperands(r, o); err != nil {
		return Rational{}, err
	}
	if o.Num == 0 {
		return Rational{}, invalidRational("division by zero rational %s", o)
	}
	red, _, err := Reduce(int64(r.Num)*int64(o.Den), int64(r.Den)*int64(o.Num), MaxRationalBound)
	return red, err
}

// Cmp compares r and o by cross multiplication and returns -1, 0 or +1.
func (r Rational) Cmp(o Rational) (int, error) {
	if err := checkOperands(r, o); err != nil {
		return 0, err
	}
	rn, rd := normalizeSign(r)
	on, od := normalizeSign(o)
	left := rn * od
	right := on * rd
	switch {
	case left < right:
		return -1, nil
	case left > right:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports whether r and o denote the same value.
func (r Rational) Equal(o Rational) bool {
	c, err := r.Cmp(o)
	return err == nil && c == 0
}

// String returns "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rational) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rational) UnmarshalText(text []byte) error {
	parsed, err := ParseRational(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func checkOperands(a, b Rational) error {
	if a.Den == 0 || b.Den == 0 {
		return invalidRational("zero denominator in operands %s, %s", a, b)
	}
	return nil
}

func normalizeSign(r Rational) (int64, int64) {
	if r.Den < 0 {
		return -int64(r.Num), -int64(r.Den)
	}
	return int64(r.Num), int64(r.Den)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func absU64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

func sign64(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// overflowsBound reports whether x*a+b cannot be represented in 64 bits,
// in which case it certainly exceeds the bound.
func overflowsBound(x, a, b, max uint64) bool {
	hi, lo := bits.Mul64(x, a)
	if hi != 0 {
		return true
	}
	_, carry := bits.Add64(lo, b, 0)
	return carry != 0
}

// mulGreater reports a*b > c*d without overflow.
func mulGreater(a, b, c, d uint64) bool {
	h1, l1 := bits.Mul64(a, b)
	h2, l2 := bits.Mul64(c, d)
	if h1 != h2 {
		return h1 > h2
	}
	return l1 > l2
}
