package feeds

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signaldrift/signaldrift/internal/book"
)

// Event types delivered on the market channel.
const (
	EventBook        = "book"
	EventPriceChange = "price_change"
)

// BookEntry is one price/size rung inside a book snapshot.
type BookEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChange is one incremental level update.
type PriceChange struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"` // "BUY" or "SELL"
}

// MarketMessage is a single event on the market channel: either a full
// `book` snapshot or a `price_change` batch of deltas.
type MarketMessage struct {
	EventType string        `json:"event_type"`
	AssetID   string        `json:"asset_id"`
	Market    string        `json:"market"`
	Bids      []BookEntry   `json:"bids"`
	Asks      []BookEntry   `json:"asks"`
	Changes   []PriceChange `json:"changes"`
	Timestamp string        `json:"timestamp"`
}

// DecodeMessages parses a raw frame, which carries either a JSON array of
// events or a single event object.
func DecodeMessages(data []byte) ([]MarketMessage, error) {
	var msgs []MarketMessage
	if err := json.Unmarshal(data, &msgs); err == nil {
		return msgs, nil
	}

	var msg MarketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding market message: %w", err)
	}
	return []MarketMessage{msg}, nil
}

// ApplyMessages folds a batch of events into the store's synthetic books.
// Only sell-side liquidity feeds the matcher: a `book` event replaces the
// tracked asks wholesale, a `price_change` only applies its SELL deltas.
// Events for untracked assets or of unrecognized types are skipped, not
// errors; the channel carries event types this pipeline has no use for.
func ApplyMessages(store *book.Store, msgs []MarketMessage, at time.Time) error {
	for _, msg := range msgs {
		b, ok := store.Lookup(msg.AssetID)
		if !ok {
			continue
		}

		switch msg.EventType {
		case EventBook:
			entries := make([]book.Entry, 0, len(msg.Asks))
			for _, ask := range msg.Asks {
				entries = append(entries, book.Entry{Price: ask.Price, Size: ask.Size})
			}
			if err := b.Replace(entries, at); err != nil {
				return fmt.Errorf("book event for %s: %w", msg.AssetID, err)
			}
		case EventPriceChange:
			entries := make([]book.Entry, 0, len(msg.Changes))
			for _, ch := range msg.Changes {
				if ch.Side != "SELL" {
					continue
				}
				entries = append(entries, book.Entry{Price: ch.Price, Size: ch.Size})
			}
			if err := b.Apply(entries, at); err != nil {
				return fmt.Errorf("price_change event for %s: %w", msg.AssetID, err)
			}
		default:
			log.Debug().Str("event_type", msg.EventType).Msg("Skipping unhandled event")
		}
	}
	return nil
}
