package book

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/signaldrift/signaldrift/internal/odds"
)

// Entry is a single price/size update for one book, as delivered by the
// feed. Size zero removes the level.
type Entry struct {
	Price string
	Size  string
}

type syntheticLevel struct {
	price     decimal.Decimal
	size      int64
	updatedAt time.Time
}

// SyntheticBook reconstructs the sell side of one outcome's book from a
// stream of snapshot and delta events. Levels are keyed by normalized
// price so equal prices merge into a single level and Side snapshots never
// carry duplicates. Replace, Apply and Snapshot are safe to call from
// different goroutines; the feed writes while schedulers snapshot.
type SyntheticBook struct {
	mu          sync.RWMutex
	marketSlug  string
	marketID    string
	outcomeName string
	assetID     string
	levels      map[string]syntheticLevel
}

// NewSyntheticBook creates an empty book for one outcome token.
func NewSyntheticBook(marketSlug, marketID, outcomeName, assetID string) *SyntheticBook {
	return &SyntheticBook{
		marketSlug:  marketSlug,
		marketID:    marketID,
		outcomeName: outcomeName,
		assetID:     assetID,
		levels:      make(map[string]syntheticLevel),
	}
}

// AssetID returns the outcome token id the book tracks.
func (b *SyntheticBook) AssetID() string { return b.assetID }

// Outcome returns the outcome name, e.g. "Yes".
func (b *SyntheticBook) Outcome() string { return b.outcomeName }

// MarketSlug returns the market slug the book belongs to.
func (b *SyntheticBook) MarketSlug() string { return b.marketSlug }

// Replace resets the book to a full snapshot (a `book` event).
func (b *SyntheticBook) Replace(entries []Entry, at time.Time) error {
	levels := make(map[string]syntheticLevel, len(entries))
	for _, e := range entries {
		lvl, keep, err := parseEntry(e, at)
		if err != nil {
			return err
		}
		if keep {
			levels[lvl.price.String()] = lvl
		}
	}
	b.mu.Lock()
	b.levels = levels
	b.mu.Unlock()
	return nil
}

// Apply folds incremental `price_change` entries into the book. A zero
// size deletes the level, anything else overwrites it. All entries are
// parsed up front, so a bad entry leaves the book untouched.
func (b *SyntheticBook) Apply(entries []Entry, at time.Time) error {
	parsed := make([]syntheticLevel, 0, len(entries))
	keeps := make([]bool, 0, len(entries))
	for _, e := range entries {
		lvl, keep, err := parseEntry(e, at)
		if err != nil {
			return err
		}
		parsed = append(parsed, lvl)
		keeps = append(keeps, keep)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, lvl := range parsed {
		if keeps[i] {
			b.levels[lvl.price.String()] = lvl
		} else {
			delete(b.levels, lvl.price.String())
		}
	}
	return nil
}

// Snapshot materializes the current state as an immutable, validated Side.
func (b *SyntheticBook) Snapshot() (Side, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := make([]PriceLevel, 0, len(b.levels))
	for _, lvl := range b.levels {
		levels = append(levels, PriceLevel{Price: lvl.price, Size: lvl.size})
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return NewSide(b.assetID, levels)
}

func parseEntry(e Entry, at time.Time) (syntheticLevel, bool, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return syntheticLevel{}, false, fmt.Errorf("price %q: %w", e.Price, odds.ErrInvalidInput)
	}
	size, err := decimal.NewFromString(e.Size)
	if err != nil {
		return syntheticLevel{}, false, fmt.Errorf("size %q: %w", e.Size, odds.ErrInvalidInput)
	}
	if size.IsZero() {
		return syntheticLevel{price: price}, false, nil
	}
	if err := odds.CheckProbability(price); err != nil {
		return syntheticLevel{}, false, err
	}
	if size.IsNegative() {
		return syntheticLevel{}, false, fmt.Errorf("size %q: %w", e.Size, odds.ErrInvalidInput)
	}
	// Whole shares only; a sub-share remainder counts as an empty level.
	if size.IntPart() == 0 {
		return syntheticLevel{price: price}, false, nil
	}
	return syntheticLevel{price: price, size: size.IntPart(), updatedAt: at}, true, nil
}

// Store holds the synthetic books of one market, keyed by asset id.
type Store struct {
	marketSlug string
	order      []string
	books      map[string]*SyntheticBook
}

// NewStore builds a store over the given books, preserving their order.
func NewStore(marketSlug string, books []*SyntheticBook) *Store {
	s := &Store{
		marketSlug: marketSlug,
		books:      make(map[string]*SyntheticBook, len(books)),
	}
	for _, b := range books {
		s.order = append(s.order, b.assetID)
		s.books[b.assetID] = b
	}
	return s
}

// MarketSlug returns the market slug of the store.
func (s *Store) MarketSlug() string { return s.marketSlug }

// AssetIDs returns the tracked asset ids in registration order.
func (s *Store) AssetIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Lookup returns the book for an asset id.
func (s *Store) Lookup(assetID string) (*SyntheticBook, bool) {
	b, ok := s.books[assetID]
	return b, ok
}

// Books returns the books in registration order.
func (s *Store) Books() []*SyntheticBook {
	out := make([]*SyntheticBook, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.books[id])
	}
	return out
}

// Pair snapshots the store's two books as a complementary pair. Stores
// tracking more or fewer than two outcomes cannot form one.
func (s *Store) Pair() (Pair, error) {
	if len(s.order) != 2 {
		return Pair{}, fmt.Errorf("market %s has %d outcomes, need 2: %w",
			s.marketSlug, len(s.order), odds.ErrInvalidInput)
	}
	a, err := s.books[s.order[0]].Snapshot()
	if err != nil {
		return Pair{}, err
	}
	b, err := s.books[s.order[1]].Snapshot()
	if err != nil {
		return Pair{}, err
	}
	return NewPair(a, b), nil
}
