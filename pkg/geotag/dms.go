package geotag

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// MaxDenominator bounds the denominator of the seconds rational written to EXIF.
const MaxDenominator = 99999

// ErrMalformedDMS is returned when a degrees/minutes/seconds string cannot be decoded.
var ErrMalformedDMS = errors.New("malformed DMS")

// Rational is an EXIF unsigned rational.
type Rational struct {
	Num int64
	Den int64
}

// Float returns the value of r.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// DMS is an angle as degrees, minutes and seconds. The sign lives in a separate reference.
type DMS struct {
	Degrees Rational
	Minutes Rational
	Seconds Rational
}

// String returns the raw EXIF text form, e.g. "45/1 1/1 48/1".
func (d DMS) String() string {
	return fmt.Sprintf("%s %s %s", d.Degrees, d.Minutes, d.Seconds)
}

// Plain returns the form exiftool accepts when writing, e.g. "45 1 48.5".
func (d DMS) Plain() string {
	f := func(r Rational) string { return strconv.FormatFloat(r.Float(), 'f', -1, 64) }
	return fmt.Sprintf("%s %s %s", f(d.Degrees), f(d.Minutes), f(d.Seconds))
}

// Decimal returns the unsigned decimal value of d.
func (d DMS) Decimal() float64 {
	return d.Degrees.Float() + d.Minutes.Float()/60 + d.Seconds.Float()/3600
}

// DecimalToDMS splits the absolute value of a decimal angle into degrees, minutes and seconds.
// Non-finite input yields a zero angle; callers validate coordinates first.
func DecimalToDMS(decimal float64) DMS {
	deg, rem := math.Modf(math.Abs(decimal))
	mins, rem := math.Modf(rem * 60)
	return DMS{
		Degrees: toRational(deg),
		Minutes: toRational(mins),
		Seconds: toRational(rem * 60),
	}
}

func toRational(f float64) Rational {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Rational{Num: 0, Den: 1}
	}
	return limitDenominator(new(big.Rat).SetFloat64(f), MaxDenominator)
}

// limitDenominator finds the closest fraction to a non-negative x with a denominator of at most maxDen.
func limitDenominator(x *big.Rat, maxDen int64) Rational {
	if x.Denom().IsInt64() && x.Denom().Int64() <= maxDen {
		return Rational{Num: x.Num().Int64(), Den: x.Denom().Int64()}
	}

	limit := big.NewInt(maxDen)
	p0, q0, p1, q1 := big.NewInt(0), big.NewInt(1), big.NewInt(1), big.NewInt(0)
	n := new(big.Int).Set(x.Num())
	d := new(big.Int).Set(x.Denom())
	for {
		a := new(big.Int).Quo(n, d)
		q2 := new(big.Int).Add(q0, new(big.Int).Mul(a, q1))
		if q2.Cmp(limit) > 0 {
			break
		}
		p0, q0, p1, q1 = p1, q1, new(big.Int).Add(p0, new(big.Int).Mul(a, p1)), q2
		n, d = d, new(big.Int).Sub(n, new(big.Int).Mul(a, d))
	}

	k := new(big.Int).Quo(new(big.Int).Sub(limit, q0), q1)
	lower := new(big.Rat).SetFrac(
		new(big.Int).Add(p0, new(big.Int).Mul(k, p1)),
		new(big.Int).Add(q0, new(big.Int).Mul(k, q1)),
	)
	upper := new(big.Rat).SetFrac(p1, q1)

	best := lower
	if distance(upper, x).Cmp(distance(lower, x)) <= 0 {
		best = upper
	}
	return Rational{Num: best.Num().Int64(), Den: best.Denom().Int64()}
}

func distance(a, b *big.Rat) *big.Rat {
	return new(big.Rat).Abs(new(big.Rat).Sub(a, b))
}

// DMSToDecimal decodes "degrees minutes seconds" text into a signed decimal angle.
// Each field is a decimal number or an integer fraction such as "4800/100".
// ref 'S' or 'W' negates the result.
func DMSToDecimal(ref byte, text string) (float64, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return 0, fmt.Errorf("%q has %d fields, want 3: %w", text, len(fields), ErrMalformedDMS)
	}

	var parts [3]float64
	for i, f := range fields {
		v, err := parseComponent(f)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", text, err)
		}
		parts[i] = v
	}

	dec := parts[0] + parts[1]/60 + parts[2]/3600
	if ref == 'S' || ref == 'W' {
		dec = -dec
	}
	return dec, nil
}

func parseComponent(s string) (float64, error) {
	var v float64
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("numerator %q: %w", num, ErrMalformedDMS)
		}
		d, err := strconv.ParseInt(den, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("denominator %q: %w", den, ErrMalformedDMS)
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in %q: %w", s, ErrMalformedDMS)
		}
		v = float64(n) / float64(d)
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("component %q: %w", s, ErrMalformedDMS)
		}
		v = f
	}

	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("component %q out of range: %w", s, ErrMalformedDMS)
	}
	return v, nil
}
