// Package matcher walks two complementary sell-side books and pairs up
// liquidity priced below 1 combined, producing a batch of risk-free buys.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/signaldrift/signaldrift/internal/book"
	"github.com/signaldrift/signaldrift/internal/odds"
)

// OrderSide is the side of an emitted order. The matcher only ever buys.
type OrderSide string

const Buy OrderSide = "BUY"

// MatchedOrder is one leg of a paired arbitrage buy.
type MatchedOrder struct {
	Market string
	Price  decimal.Decimal
	Size   int64
	Side   OrderSide
}

// Fill is one matched pair: equal-size buys on both books whose prices sum
// below the profitability threshold.
type Fill struct {
	A       MatchedOrder
	B       MatchedOrder
	Size    int64
	Capital decimal.Decimal // size * (priceA + priceB)
	Profit  decimal.Decimal // size * (1 - priceA - priceB)
}

// Batch is the result of one matching run. It has no lifecycle beyond the
// run; callers persist or execute it and discard it.
type Batch struct {
	Fills   []Fill
	Capital decimal.Decimal
	Profit  decimal.Decimal
	Return  decimal.Decimal // Profit/Capital, zero for an empty batch
}

var one = decimal.NewFromInt(1)

// Match greedily pairs the cheapest remaining levels of both sides while
// their combined price stays below 1-margin. margin lets the caller demand
// a minimum edge instead of exact break-even; zero means any positive edge.
//
// The walk is monotonic: every iteration either exhausts a level or stops,
// so it terminates within lenA+lenB iterations.
func Match(pair book.Pair, margin decimal.Decimal) (Batch, error) {
	if margin.IsNegative() || margin.GreaterThanOrEqual(one) {
		return Batch{}, fmt.Errorf("margin %s: %w", margin, odds.ErrInvalidInput)
	}

	// Working copies, exclusively owned by this call.
	asks := pair.A.Levels()
	bsks := pair.B.Levels()
	if err := checkAscending(pair.A.Market(), asks); err != nil {
		return Batch{}, err
	}
	if err := checkAscending(pair.B.Market(), bsks); err != nil {
		return Batch{}, err
	}

	threshold := one.Sub(margin)
	batch := Batch{Capital: decimal.Zero, Profit: decimal.Zero, Return: decimal.Zero}

	ai, bi := 0, 0
	for ai < len(asks) && bi < len(bsks) {
		a := &asks[ai]
		b := &bsks[bi]

		combined := a.Price.Add(b.Price)
		if combined.GreaterThanOrEqual(threshold) {
			// All remaining levels cost at least this much.
			break
		}

		size := a.Size
		if b.Size < size {
			size = b.Size
		}
		sz := decimal.NewFromInt(size)

		batch.Fills = append(batch.Fills, Fill{
			A:       MatchedOrder{Market: pair.A.Market(), Price: a.Price, Size: size, Side: Buy},
			B:       MatchedOrder{Market: pair.B.Market(), Price: b.Price, Size: size, Side: Buy},
			Size:    size,
			Capital: sz.Mul(combined),
			Profit:  sz.Mul(one.Sub(combined)),
		})

		a.Size -= size
		b.Size -= size
		if a.Size == 0 {
			ai++
		}
		if b.Size == 0 {
			bi++
		}
	}

	for _, f := range batch.Fills {
		batch.Capital = batch.Capital.Add(f.Capital)
		batch.Profit = batch.Profit.Add(f.Profit)
	}
	if batch.Capital.IsPositive() {
		batch.Return = batch.Profit.DivRound(batch.Capital, 16)
	}

	return batch, nil
}

// checkAscending re-validates the ascending unique-price invariant the
// termination argument depends on. book.NewSide already enforces it, but a
// Pair assembled by hand must not be able to loop forever.
func checkAscending(market string, levels []book.PriceLevel) error {
	for i, lvl := range levels {
		if err := odds.CheckProbability(lvl.Price); err != nil {
			return fmt.Errorf("book %s level %d: %w", market, i, err)
		}
		if lvl.Size <= 0 {
			return fmt.Errorf("book %s level %d: size %d: %w", market, i, lvl.Size, odds.ErrInvalidInput)
		}
		if i > 0 && !levels[i-1].Price.LessThan(lvl.Price) {
			return fmt.Errorf("book %s level %d: prices not strictly ascending: %w", market, i, odds.ErrInvalidInput)
		}
	}
	return nil
}
