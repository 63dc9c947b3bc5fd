package matcher

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldrift/signaldrift/internal/book"
	"github.com/signaldrift/signaldrift/internal/odds"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func side(t *testing.T, market string, levels ...book.PriceLevel) book.Side {
	t.Helper()
	s, err := book.NewSide(market, levels)
	require.NoError(t, err)
	return s
}

func lvl(price string, size int64) book.PriceLevel {
	return book.PriceLevel{Price: dec(price), Size: size}
}

func TestMatchCanonicalTwoLevelWalk(t *testing.T) {
	a := side(t, "yes", lvl("0.47", 25), lvl("0.53", 60), lvl("0.54", 10))
	b := side(t, "no", lvl("0.48", 10), lvl("0.49", 60), lvl("0.54", 10))

	batch, err := Match(book.NewPair(a, b), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, batch.Fills, 2)

	// First fill: 10 shares at 0.47/0.48
	f := batch.Fills[0]
	assert.Equal(t, int64(10), f.Size)
	assert.True(t, f.A.Price.Equal(dec("0.47")))
	assert.True(t, f.B.Price.Equal(dec("0.48")))
	assert.Equal(t, "yes", f.A.Market)
	assert.Equal(t, "no", f.B.Market)
	assert.Equal(t, Buy, f.A.Side)
	assert.Equal(t, Buy, f.B.Side)

	// Second fill: A's 15 remaining at 0.47 against B at 0.49
	f = batch.Fills[1]
	assert.Equal(t, int64(15), f.Size)
	assert.True(t, f.A.Price.Equal(dec("0.47")))
	assert.True(t, f.B.Price.Equal(dec("0.49")))

	assert.True(t, batch.Capital.Equal(dec("23.90")), "capital=%s", batch.Capital)
	assert.True(t, batch.Profit.Equal(dec("1.10")), "profit=%s", batch.Profit)
	assert.True(t, batch.Return.Sub(dec("0.046")).Abs().LessThan(dec("0.001")), "return=%s", batch.Return)
}

func TestMatchEmptySide(t *testing.T) {
	a := side(t, "yes")
	b := side(t, "no", lvl("0.40", 10))

	batch, err := Match(book.NewPair(a, b), decimal.Zero)
	require.NoError(t, err)
	assert.Empty(t, batch.Fills)
	assert.True(t, batch.Return.IsZero())
	assert.True(t, batch.Capital.IsZero())
	assert.True(t, batch.Profit.IsZero())
}

func TestMatchNoEdge(t *testing.T) {
	// Cheapest combination is exactly 1: nothing to do at margin 0.
	a := side(t, "yes", lvl("0.50", 10))
	b := side(t, "no", lvl("0.50", 10))

	batch, err := Match(book.NewPair(a, b), decimal.Zero)
	require.NoError(t, err)
	assert.Empty(t, batch.Fills)
}

func TestMatchMarginRaisesBar(t *testing.T) {
	a := side(t, "yes", lvl("0.47", 25))
	b := side(t, "no", lvl("0.48", 10), lvl("0.51", 60))

	// 0.47+0.48=0.95 clears a 3% margin, 0.47+0.51=0.98 does not.
	batch, err := Match(book.NewPair(a, b), dec("0.03"))
	require.NoError(t, err)
	require.Len(t, batch.Fills, 1)
	assert.Equal(t, int64(10), batch.Fills[0].Size)

	for _, f := range batch.Fills {
		assert.True(t, f.A.Price.Add(f.B.Price).LessThan(dec("0.97")))
	}
}

func TestMatchEqualSizesExhaustBothLevels(t *testing.T) {
	a := side(t, "yes", lvl("0.40", 10), lvl("0.45", 5))
	b := side(t, "no", lvl("0.42", 10), lvl("0.50", 5))

	batch, err := Match(book.NewPair(a, b), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, batch.Fills, 2)
	assert.Equal(t, int64(10), batch.Fills[0].Size)
	assert.Equal(t, int64(5), batch.Fills[1].Size)
	assert.True(t, batch.Fills[1].A.Price.Equal(dec("0.45")))
	assert.True(t, batch.Fills[1].B.Price.Equal(dec("0.50")))
}

func TestMatchConservation(t *testing.T) {
	a := side(t, "yes", lvl("0.30", 7), lvl("0.35", 13), lvl("0.60", 40))
	b := side(t, "no", lvl("0.40", 9), lvl("0.45", 21), lvl("0.70", 5))

	batch, err := Match(book.NewPair(a, b), decimal.Zero)
	require.NoError(t, err)

	var matchedA, matchedB int64
	for _, f := range batch.Fills {
		matchedA += f.A.Size
		matchedB += f.B.Size
		assert.True(t, f.A.Price.Add(f.B.Price).LessThan(dec("1")))
		assert.Equal(t, f.A.Size, f.B.Size)
	}
	assert.LessOrEqual(t, matchedA, a.TotalSize())
	assert.LessOrEqual(t, matchedB, b.TotalSize())
	// Fills never exceed the level count of both sides combined.
	assert.LessOrEqual(t, len(batch.Fills), a.Len()+b.Len())
}

func TestMatchRejectsBadMargin(t *testing.T) {
	a := side(t, "yes", lvl("0.40", 10))
	b := side(t, "no", lvl("0.40", 10))

	_, err := Match(book.NewPair(a, b), dec("-0.1"))
	assert.ErrorIs(t, err, odds.ErrInvalidInput)

	_, err = Match(book.NewPair(a, b), dec("1"))
	assert.ErrorIs(t, err, odds.ErrInvalidInput)
}

func TestMatchProfitArithmetic(t *testing.T) {
	a := side(t, "yes", lvl("0.47", 10))
	b := side(t, "no", lvl("0.48", 10))

	batch, err := Match(book.NewPair(a, b), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, batch.Fills, 1)

	f := batch.Fills[0]
	assert.True(t, f.Capital.Equal(dec("9.5")), "capital=%s", f.Capital)
	assert.True(t, f.Profit.Equal(dec("0.5")), "profit=%s", f.Profit)
}
