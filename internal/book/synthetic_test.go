package book

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldrift/signaldrift/internal/odds"
)

func TestSyntheticBookSnapshotSortsAndMerges(t *testing.T) {
	b := NewSyntheticBook("mlb-tex-bal", "m1", "Yes", "asset-a")
	now := time.Now()

	err := b.Replace([]Entry{
		{Price: "0.54", Size: "10"},
		{Price: "0.47", Size: "25"},
		{Price: "0.53", Size: "60"},
	}, now)
	require.NoError(t, err)

	side, err := b.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 3, side.Len())

	levels := side.Levels()
	assert.True(t, levels[0].Price.Equal(dec("0.47")))
	assert.Equal(t, int64(25), levels[0].Size)
	assert.True(t, levels[2].Price.Equal(dec("0.54")))
}

func TestSyntheticBookDeltas(t *testing.T) {
	b := NewSyntheticBook("mlb-tex-bal", "m1", "Yes", "asset-a")
	now := time.Now()

	require.NoError(t, b.Replace([]Entry{
		{Price: "0.47", Size: "25"},
		{Price: "0.53", Size: "60"},
	}, now))

	// Overwrite one level, remove the other, add a new one.
	require.NoError(t, b.Apply([]Entry{
		{Price: "0.47", Size: "15"},
		{Price: "0.53", Size: "0"},
		{Price: "0.50", Size: "40"},
	}, now))

	side, err := b.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 2, side.Len())

	levels := side.Levels()
	assert.True(t, levels[0].Price.Equal(dec("0.47")))
	assert.Equal(t, int64(15), levels[0].Size)
	assert.True(t, levels[1].Price.Equal(dec("0.50")))
	assert.Equal(t, int64(40), levels[1].Size)
}

func TestSyntheticBookNormalizesPriceKeys(t *testing.T) {
	// ".47" and "0.47" are the same level and must merge, not duplicate.
	b := NewSyntheticBook("m", "m1", "Yes", "a")
	now := time.Now()

	require.NoError(t, b.Replace([]Entry{{Price: ".47", Size: "25"}}, now))
	require.NoError(t, b.Apply([]Entry{{Price: "0.47", Size: "15"}}, now))

	side, err := b.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 1, side.Len())
	assert.Equal(t, int64(15), side.Levels()[0].Size)
}

func TestSyntheticBookRejectsBadEntries(t *testing.T) {
	b := NewSyntheticBook("m", "m1", "Yes", "a")
	now := time.Now()

	assert.ErrorIs(t, b.Apply([]Entry{{Price: "abc", Size: "1"}}, now), odds.ErrInvalidInput)
	assert.ErrorIs(t, b.Apply([]Entry{{Price: "1.20", Size: "1"}}, now), odds.ErrInvalidInput)
	assert.ErrorIs(t, b.Apply([]Entry{{Price: "0.47", Size: "-3"}}, now), odds.ErrInvalidInput)
}

func TestSyntheticBookBadDeltaLeavesBookUntouched(t *testing.T) {
	b := NewSyntheticBook("m", "m1", "Yes", "a")
	now := time.Now()

	require.NoError(t, b.Replace([]Entry{{Price: "0.47", Size: "25"}}, now))

	// The valid entries before the malformed one must not land.
	err := b.Apply([]Entry{
		{Price: "0.47", Size: "0"},
		{Price: "0.50", Size: "40"},
		{Price: "abc", Size: "1"},
	}, now)
	require.ErrorIs(t, err, odds.ErrInvalidInput)

	side, err := b.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 1, side.Len())
	assert.Equal(t, int64(25), side.Levels()[0].Size)
}

func TestSyntheticBookConcurrentApplyAndSnapshot(t *testing.T) {
	// Run with -race: the feed goroutine applies deltas while scheduler
	// tasks snapshot the same book.
	b := NewSyntheticBook("m", "m1", "Yes", "a")
	now := time.Now()
	require.NoError(t, b.Replace([]Entry{{Price: "0.47", Size: "25"}}, now))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			_ = b.Apply([]Entry{
				{Price: "0.50", Size: "40"},
				{Price: "0.50", Size: "0"},
			}, now)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			_ = b.Replace([]Entry{{Price: "0.47", Size: "25"}}, now)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			side, err := b.Snapshot()
			require.NoError(t, err)
			require.GreaterOrEqual(t, side.Len(), 1)
		}
	}()
	wg.Wait()

	side, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(25), side.Levels()[0].Size)
}

func TestStorePair(t *testing.T) {
	a := NewSyntheticBook("m", "m1", "Yes", "asset-a")
	b := NewSyntheticBook("m", "m1", "No", "asset-b")
	now := time.Now()

	require.NoError(t, a.Replace([]Entry{{Price: "0.47", Size: "25"}}, now))
	require.NoError(t, b.Replace([]Entry{{Price: "0.48", Size: "10"}}, now))

	store := NewStore("m", []*SyntheticBook{a, b})
	assert.Equal(t, []string{"asset-a", "asset-b"}, store.AssetIDs())

	got, ok := store.Lookup("asset-b")
	require.True(t, ok)
	assert.Equal(t, "No", got.Outcome())

	pair, err := store.Pair()
	require.NoError(t, err)
	assert.Equal(t, "asset-a", pair.A.Market())
	assert.Equal(t, "asset-b", pair.B.Market())

	single := NewStore("m", []*SyntheticBook{a})
	_, err = single.Pair()
	assert.ErrorIs(t, err, odds.ErrInvalidInput)
}
