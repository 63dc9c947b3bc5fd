// Package export appends book snapshots and matched orders to per-market
// CSV files, one row per level or order leg.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signaldrift/signaldrift/internal/book"
	"github.com/signaldrift/signaldrift/internal/matcher"
)

// Writer appends rows under a base directory, creating files on first use.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) append(filename string, rows [][]string) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(w.dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// AppendBooks writes the current state of every book in the store:
// asset_id, price, size, side, timestamp.
func (w *Writer) AppendBooks(store *book.Store, at time.Time) error {
	ts := strconv.FormatInt(at.UnixMilli(), 10)

	var rows [][]string
	for _, b := range store.Books() {
		side, err := b.Snapshot()
		if err != nil {
			return err
		}
		for _, lvl := range side.Levels() {
			rows = append(rows, []string{
				b.AssetID(), lvl.Price.String(), strconv.FormatInt(lvl.Size, 10), "ask", ts,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return w.append(fmt.Sprintf("order_book_%s.csv", store.MarketSlug()), rows)
}

// AppendBatch writes both legs of every fill in a batch:
// market, price, size, side, timestamp.
func (w *Writer) AppendBatch(marketSlug string, batch matcher.Batch, at time.Time) error {
	if len(batch.Fills) == 0 {
		return nil
	}
	ts := strconv.FormatInt(at.UnixMilli(), 10)

	rows := make([][]string, 0, 2*len(batch.Fills))
	for _, f := range batch.Fills {
		for _, o := range []matcher.MatchedOrder{f.A, f.B} {
			rows = append(rows, []string{
				o.Market, o.Price.String(), strconv.FormatInt(o.Size, 10), string(o.Side), ts,
			})
		}
	}
	return w.append(fmt.Sprintf("matched_orders_%s.csv", marketSlug), rows)
}
