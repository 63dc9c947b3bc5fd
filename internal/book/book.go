// Package book holds the order-book value types consumed by the matcher.
//
// A Side is validated at construction so an out-of-order or degenerate book
// cannot exist at all; everything downstream relies on the ascending
// unique-price invariant.
package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/signaldrift/signaldrift/internal/odds"
)

// PriceLevel is one rung of a sell-side order book: a price in (0,1) and a
// positive number of shares offered at it.
type PriceLevel struct {
	Price decimal.Decimal
	Size  int64
}

// Side is the sell side of one market's book, strictly ascending by price,
// cheapest first. Immutable once built.
type Side struct {
	market string
	levels []PriceLevel
}

// NewSide validates and builds a book side. Levels must be strictly
// ascending by price with no duplicates, prices in (0,1), sizes positive.
func NewSide(market string, levels []PriceLevel) (Side, error) {
	for i, lvl := range levels {
		if err := odds.CheckProbability(lvl.Price); err != nil {
			return Side{}, fmt.Errorf("book %s level %d: %w", market, i, err)
		}
		if lvl.Size <= 0 {
			return Side{}, fmt.Errorf("book %s level %d: size %d: %w", market, i, lvl.Size, odds.ErrInvalidInput)
		}
		if i > 0 && !levels[i-1].Price.LessThan(lvl.Price) {
			return Side{}, fmt.Errorf("book %s level %d: price %s not above %s: %w",
				market, i, lvl.Price, levels[i-1].Price, odds.ErrInvalidInput)
		}
	}

	own := make([]PriceLevel, len(levels))
	copy(own, levels)
	return Side{market: market, levels: own}, nil
}

// Market returns the market identifier the side belongs to.
func (s Side) Market() string { return s.market }

// Len returns the number of price levels.
func (s Side) Len() int { return len(s.levels) }

// Best returns the cheapest level, false when the side is empty.
func (s Side) Best() (PriceLevel, bool) {
	if len(s.levels) == 0 {
		return PriceLevel{}, false
	}
	return s.levels[0], true
}

// Levels returns a private copy of the levels, safe to mutate.
func (s Side) Levels() []PriceLevel {
	out := make([]PriceLevel, len(s.levels))
	copy(out, s.levels)
	return out
}

// TotalSize returns the summed size across all levels.
func (s Side) TotalSize() int64 {
	var total int64
	for _, lvl := range s.levels {
		total += lvl.Size
	}
	return total
}

// Pair couples the sell sides of two complementary outcomes of one event.
// Buying one share of each at prices summing below 1 locks in the
// difference as profit.
type Pair struct {
	A Side
	B Side
}

// NewPair builds a complementary market pair from two validated sides.
func NewPair(a, b Side) Pair {
	return Pair{A: a, B: b}
}
