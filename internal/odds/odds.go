// Package odds normalizes sportsbook odds quotes into implied probabilities
// and back. All prices and probabilities are decimal.Decimal so repeated
// sums and comparisons against 1.0 stay exact.
package odds

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for malformed odds values, probabilities
// outside (0,1), and invalid book snapshots downstream.
var ErrInvalidInput = errors.New("invalid input")

// Format identifies the quoting convention of an odds value
type Format string

const (
	American   Format = "american"
	Decimal    Format = "decimal"
	Fractional Format = "fractional"
)

// divPrecision is the number of decimal places carried through divisions.
const divPrecision = 16

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// Quote is a single odds quote from one source. It is immutable; it is
// converted, never mutated, into a probability.
type Quote struct {
	Format   Format
	American int64           // set when Format == American
	Decimal  decimal.Decimal // set when Format == Decimal
	Num      int64           // set when Format == Fractional
	Den      int64           // set when Format == Fractional
	Source   string
}

// NewAmerican builds an American-odds quote, e.g. -150 or +130.
func NewAmerican(value int64, source string) Quote {
	return Quote{Format: American, American: value, Source: source}
}

// NewDecimal builds a decimal-odds quote, e.g. 2.0.
func NewDecimal(value decimal.Decimal, source string) Quote {
	return Quote{Format: Decimal, Decimal: value, Source: source}
}

// NewFractional builds a fractional-odds quote, e.g. 9/10.
func NewFractional(num, den int64, source string) Quote {
	return Quote{Format: Fractional, Num: num, Den: den, Source: source}
}

// Probability converts the quote to its implied probability.
//
// American a>0: 100/(a+100); a<0: |a|/(|a|+100). Values strictly between
// -100 and 100 do not exist in the format and are rejected.
// Decimal d: 1/d, d must exceed 1.
// Fractional n/d: d/(n+d), both positive.
func (q Quote) Probability() (decimal.Decimal, error) {
	switch q.Format {
	case American:
		a := q.American
		if a > -100 && a < 100 {
			return decimal.Zero, fmt.Errorf("american odds %d: %w", a, ErrInvalidInput)
		}
		if a > 0 {
			return hundred.DivRound(decimal.NewFromInt(a+100), divPrecision), nil
		}
		abs := decimal.NewFromInt(-a)
		return abs.DivRound(abs.Add(hundred), divPrecision), nil
	case Decimal:
		if q.Decimal.LessThanOrEqual(one) {
			return decimal.Zero, fmt.Errorf("decimal odds %s: %w", q.Decimal, ErrInvalidInput)
		}
		return one.DivRound(q.Decimal, divPrecision), nil
	case Fractional:
		if q.Num <= 0 || q.Den <= 0 {
			return decimal.Zero, fmt.Errorf("fractional odds %d/%d: %w", q.Num, q.Den, ErrInvalidInput)
		}
		den := decimal.NewFromInt(q.Den)
		return den.DivRound(decimal.NewFromInt(q.Num+q.Den), divPrecision), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown odds format %q: %w", q.Format, ErrInvalidInput)
	}
}

// FromProbability converts a probability back to a quote in the given
// format. American output is rounded to the nearest integer (0.5 maps to
// +100); fractional output is the closest fraction with denominator <= 100.
func FromProbability(p decimal.Decimal, format Format) (Quote, error) {
	if err := CheckProbability(p); err != nil {
		return Quote{}, err
	}

	switch format {
	case American:
		if p.GreaterThan(half) {
			// Favorite: -(p/(1-p))*100
			v := p.DivRound(one.Sub(p), divPrecision).Mul(hundred).Round(0)
			return NewAmerican(-v.IntPart(), ""), nil
		}
		v := one.Sub(p).DivRound(p, divPrecision).Mul(hundred).Round(0)
		return NewAmerican(v.IntPart(), ""), nil
	case Decimal:
		return NewDecimal(one.DivRound(p, divPrecision), ""), nil
	case Fractional:
		// n/d = (1-p)/p, reduced via continued fractions so that a
		// probability produced from a quote recovers the quote itself.
		r := one.Sub(p).Rat()
		r.Quo(r, p.Rat())
		r = limitDenominator(r, 100)
		return NewFractional(r.Num().Int64(), r.Denom().Int64(), ""), nil
	default:
		return Quote{}, fmt.Errorf("unknown odds format %q: %w", format, ErrInvalidInput)
	}
}

// CheckProbability reports whether p lies in the open interval (0,1).
func CheckProbability(p decimal.Decimal) error {
	if p.LessThanOrEqual(decimal.Zero) || p.GreaterThanOrEqual(one) {
		return fmt.Errorf("probability %s outside (0,1): %w", p, ErrInvalidInput)
	}
	return nil
}

// ImpliedTotal sums the implied probabilities of all quotes for one market
// from one source. A vigged book totals above 1.
func ImpliedTotal(quotes []Quote) (decimal.Decimal, error) {
	if len(quotes) == 0 {
		return decimal.Zero, fmt.Errorf("no quotes: %w", ErrInvalidInput)
	}
	total := decimal.Zero
	for _, q := range quotes {
		p, err := q.Probability()
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(p)
	}
	return total, nil
}

// Vig returns the bookmaker margin of one source's market as a percentage,
// (implied total - 1) * 100.
func Vig(quotes []Quote) (decimal.Decimal, error) {
	total, err := ImpliedTotal(quotes)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Sub(one).Mul(hundred), nil
}

// limitDenominator returns the closest rational to x with denominator at
// most maxDen, using the continued-fraction bounds.
func limitDenominator(x *big.Rat, maxDen int64) *big.Rat {
	md := big.NewInt(maxDen)
	if x.Denom().Cmp(md) <= 0 {
		return x
	}

	p0, q0 := big.NewInt(0), big.NewInt(1)
	p1, q1 := big.NewInt(1), big.NewInt(0)
	n := new(big.Int).Set(x.Num())
	d := new(big.Int).Set(x.Denom())
	for {
		a := new(big.Int).Div(n, d)
		q2 := new(big.Int).Add(q0, new(big.Int).Mul(a, q1))
		if q2.Cmp(md) > 0 {
			break
		}
		p2 := new(big.Int).Add(p0, new(big.Int).Mul(a, p1))
		p0, q0, p1, q1 = p1, q1, p2, q2
		n, d = d, new(big.Int).Sub(n, new(big.Int).Mul(a, d))
	}

	k := new(big.Int).Div(new(big.Int).Sub(md, q0), q1)
	lower := new(big.Rat).SetFrac(
		new(big.Int).Add(p0, new(big.Int).Mul(k, p1)),
		new(big.Int).Add(q0, new(big.Int).Mul(k, q1)),
	)
	upper := new(big.Rat).SetFrac(p1, q1)

	dLower := new(big.Rat).Abs(new(big.Rat).Sub(lower, x))
	dUpper := new(big.Rat).Abs(new(big.Rat).Sub(upper, x))
	if dUpper.Cmp(dLower) <= 0 {
		return upper
	}
	return lower
}
