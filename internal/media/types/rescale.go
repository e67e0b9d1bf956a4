package types

import (
	"math"
	"math/bits"

	apperrors "github.com/zsiec/avcore/internal/errors"
)

// NoTimestamp marks an absent timestamp. It is distinct from 0.
const NoTimestamp int64 = math.MinInt64

// Rounding selects how Rescale rounds inexact results.
type Rounding int

const (
	RoundZero    Rounding = 0 // toward zero
	RoundInf     Rounding = 1 // away from zero
	RoundDown    Rounding = 2 // toward -infinity
	RoundUp      Rounding = 3 // toward +infinity
	RoundNearInf Rounding = 5 // nearest, ties away from zero

	// RoundPassMinMax may be OR'ed into any mode; math.MinInt64 and
	// math.MaxInt64 are then returned unchanged so NoTimestamp survives
	// a rescale chain.
	RoundPassMinMax Rounding = 8192
)

// String returns the rounding mode name.
func (r Rounding) String() string {
	prefix := ""
	if r&RoundPassMinMax != 0 {
		prefix = "pass_minmax|"
	}
	switch r &^ RoundPassMinMax {
	case RoundZero:
		return prefix + "zero"
	case RoundInf:
		return prefix + "inf"
	case RoundDown:
		return prefix + "down"
	case RoundUp:
		return prefix + "up"
	case RoundNearInf:
		return prefix + "near_inf"
	default:
		return prefix + "unknown"
	}
}

// ErrRescaleOverflow matches results that do not fit in an int64.
var ErrRescaleOverflow = apperrors.New(apperrors.ErrorTypeInvalidArgument, "rescale overflow").
	WithCode("RESCALE_OVERFLOW")

// Rescale converts value from src units to dst units:
//
//	value * src.Num * dst.Den / (src.Den * dst.Num)
//
// Intermediate products are 128 bits wide so the whole int64 range is
// accepted. Both timebases must be strictly positive.
func Rescale(value int64, src, dst Rational, rnd Rounding) (int64, error) {
	if err := checkTimeBase(src); err != nil {
		return 0, err
	}
	if err := checkTimeBase(dst); err != nil {
		return 0, err
	}
	b := int64(src.Num) * int64(dst.Den)
	c := int64(src.Den) * int64(dst.Num)
	return RescaleRnd(value, b, c, rnd)
}

// RescaleRnd computes a*b/c with the given rounding. b must be
// non-negative and c strictly positive.
func RescaleRnd(a, b, c int64, rnd Rounding) (int64, error) {
	if c <= 0 || b < 0 {
		return 0, invalidRational("rescale factors must have matching positive signs (b=%d, c=%d)", b, c)
	}
	mode := rnd &^ RoundPassMinMax
	switch mode {
	case RoundZero, RoundInf, RoundDown, RoundUp, RoundNearInf:
	default:
		return 0, apperrors.NewInvalidArgument("unknown rounding mode %d", int(rnd))
	}

	if rnd&RoundPassMinMax != 0 && (a == math.MinInt64 || a == math.MaxInt64) {
		return a, nil
	}

	negative := a < 0
	if negative {
		// Rounding direction flips when working on the magnitude.
		switch mode {
		case RoundDown:
			mode = RoundUp
		case RoundUp:
			mode = RoundDown
		}
	}
	magnitude := absU64(a)

	var r uint64
	switch mode {
	case RoundInf, RoundUp:
		r = uint64(c) - 1
	case RoundNearInf:
		r = uint64(c) / 2
	}

	hi, lo := bits.Mul64(magnitude, uint64(b))
	var carry uint64
	lo, carry = bits.Add64(lo, r, 0)
	hi += carry
	if hi >= uint64(c) {
		return 0, apperrors.NewInvalidArgument("rescale of %d by %d/%d overflows int64", a, b, c).
			WithCode("RESCALE_OVERFLOW")
	}
	q, _ := bits.Div64(hi, lo, uint64(c))

	if negative {
		if q > 1<<63 {
			return 0, apperrors.NewInvalidArgument("rescale of %d by %d/%d overflows int64", a, b, c).
				WithCode("RESCALE_OVERFLOW")
		}
		return int64(-q), nil
	}
	if q > math.MaxInt64 {
		return 0, apperrors.NewInvalidArgument("rescale of %d by %d/%d overflows int64", a, b, c).
			WithCode("RESCALE_OVERFLOW")
	}
	return int64(q), nil
}

// RescaleTimestamp rescales ts and passes NoTimestamp through untouched.
func RescaleTimestamp(ts int64, src, dst Rational, rnd Rounding) (int64, error) {
	if ts == NoTimestamp {
		return NoTimestamp, nil
	}
	return Rescale(ts, src, dst, rnd|RoundPassMinMax)
}

func checkTimeBase(tb Rational) error {
	if tb.Den == 0 {
		return invalidRational("timebase %s has a zero denominator", tb)
	}
	if tb.Num <= 0 || tb.Den < 0 {
		return invalidRational("timebase %s must be positive", tb)
	}
	return nil
}
