// Signaldrift watches complementary prediction-market order books, pairs
// up sell-side liquidity priced below 1 combined, and records the
// resulting risk-free batches. Fair-value consensus probabilities are
// recomputed on a cadence from the same book state.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signaldrift/signaldrift/internal/book"
	"github.com/signaldrift/signaldrift/internal/config"
	"github.com/signaldrift/signaldrift/internal/database"
	"github.com/signaldrift/signaldrift/internal/export"
	"github.com/signaldrift/signaldrift/internal/fairvalue"
	"github.com/signaldrift/signaldrift/internal/feeds"
	"github.com/signaldrift/signaldrift/internal/matcher"
	"github.com/signaldrift/signaldrift/internal/notify"
	"github.com/signaldrift/signaldrift/internal/scheduler"
)

const version = "1.0.0"

type app struct {
	cfg      *config.Config
	db       *database.Database
	csv      *export.Writer
	notifier *notify.Notifier
	drift    *notify.DriftTracker
	stores   []*book.Store
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Int("markets", len(cfg.Markets)).Msg("Starting signaldrift")
	if len(cfg.Markets) == 0 {
		log.Fatal().Msg("No markets configured, set MARKETS_FILE")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	notifier, err := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init Telegram")
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		csv:      export.NewWriter(cfg.CSVDir),
		notifier: notifier,
		drift:    notify.NewDriftTracker(cfg.NotifyDrift),
	}

	var marketFeeds []*feeds.MarketFeed
	for _, m := range cfg.Markets {
		store := book.NewStore(m.Slug, []*book.SyntheticBook{
			book.NewSyntheticBook(m.Slug, m.ID, m.Outcomes[0].Name, m.Outcomes[0].AssetID),
			book.NewSyntheticBook(m.Slug, m.ID, m.Outcomes[1].Name, m.Outcomes[1].AssetID),
		})
		a.stores = append(a.stores, store)

		feed := feeds.NewMarketFeed(cfg.FeedURL, store)
		feed.OnUpdate(a.onBookUpdate)
		marketFeeds = append(marketFeeds, feed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, f := range marketFeeds {
		f.Start()
	}

	sched := scheduler.New(cfg.RecomputeInterval)
	sched.Add("fair-value", a.recomputeFairValues)
	sched.Add("book-export", a.exportBooks)
	sched.Add("summary", a.logSummary)
	go sched.Run(ctx)

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	for _, f := range marketFeeds {
		f.Stop()
	}
}

// onBookUpdate runs after every applied event batch: snapshot the pair,
// match it, and record anything profitable.
func (a *app) onBookUpdate(store *book.Store) {
	pair, err := store.Pair()
	if err != nil {
		log.Warn().Err(err).Str("market", store.MarketSlug()).Msg("Skipping inconsistent books")
		return
	}

	batch, err := matcher.Match(pair, a.cfg.Margin)
	if err != nil {
		log.Warn().Err(err).Str("market", store.MarketSlug()).Msg("Matching failed")
		return
	}
	if len(batch.Fills) == 0 {
		return
	}

	log.Info().
		Str("market", store.MarketSlug()).
		Int("fills", len(batch.Fills)).
		Str("capital", batch.Capital.String()).
		Str("profit", batch.Profit.String()).
		Str("return", batch.Return.String()).
		Msg("💰 Arbitrage batch matched")

	now := time.Now().UTC()
	if err := a.csv.AppendBatch(store.MarketSlug(), batch, now); err != nil {
		log.Warn().Err(err).Msg("CSV append failed")
	}

	if a.cfg.DryRun {
		log.Debug().Msg("Dry run, not persisting batch")
	} else {
		record := &database.Batch{
			ID:         uuid.NewString(),
			MarketSlug: store.MarketSlug(),
			Capital:    batch.Capital,
			Profit:     batch.Profit,
			Return:     batch.Return,
			Margin:     a.cfg.Margin,
			Fills:      len(batch.Fills),
			MatchedAt:  now,
		}
		fills := make([]database.Fill, 0, len(batch.Fills))
		for _, f := range batch.Fills {
			fills = append(fills, database.Fill{
				MarketA: f.A.Market,
				MarketB: f.B.Market,
				PriceA:  f.A.Price,
				PriceB:  f.B.Price,
				Size:    f.Size,
				Capital: f.Capital,
				Profit:  f.Profit,
			})
		}
		if err := a.db.SaveBatch(record, fills); err != nil {
			log.Warn().Err(err).Msg("Batch persist failed")
		}
	}

	a.notifier.NotifyBatch(store.MarketSlug(), batch)
}

// recomputeFairValues derives a consensus probability per outcome from the
// books' best asks and persists it.
func (a *app) recomputeFairValues(ctx context.Context) error {
	now := time.Now().UTC()

	for _, store := range a.stores {
		market := make(map[string][]fairvalue.Observation)
		for _, b := range store.Books() {
			side, err := b.Snapshot()
			if err != nil {
				return err
			}
			best, ok := side.Best()
			if !ok {
				continue
			}
			market[b.Outcome()] = append(market[b.Outcome()], fairvalue.Observation{
				Source:      "polymarket",
				Probability: best.Price,
			})
		}
		if len(market) < 2 {
			// Books still warming up
			continue
		}

		values, err := fairvalue.Aggregate(market, a.cfg.SourceWeights)
		if err != nil {
			return err
		}

		records := make([]database.FairValueRecord, 0, len(values))
		for outcome, fv := range values {
			log.Debug().
				Str("market", store.MarketSlug()).
				Str("outcome", outcome).
				Str("consensus", fv.Consensus.String()).
				Msg("Fair value")
			records = append(records, database.FairValueRecord{
				MarketSlug: store.MarketSlug(),
				Outcome:    outcome,
				Consensus:  fv.Consensus,
				Sources:    strings.Join(fv.Sources, ","),
				ComputedAt: now,
			})
		}
		if !a.cfg.DryRun {
			if err := a.db.SaveFairValues(records); err != nil {
				return err
			}
		}

		if a.drift.ShouldNotify(store.MarketSlug(), values) {
			a.notifier.NotifyFairValues(store.MarketSlug(), values)
		}
	}
	return nil
}

// logSummary reports cumulative results from the database. Recent batch
// legs land at debug level.
func (a *app) logSummary(ctx context.Context) error {
	if a.cfg.DryRun {
		return nil
	}

	total, err := a.db.TotalProfit()
	if err != nil {
		return err
	}
	batches, err := a.db.RecentBatches(5)
	if err != nil {
		return err
	}
	log.Info().
		Str("total_profit", total.String()).
		Int("recent_batches", len(batches)).
		Msg("Session summary")

	for _, b := range batches {
		fills, err := a.db.BatchFills(b.ID)
		if err != nil {
			return err
		}
		log.Debug().
			Str("batch", b.ID).
			Str("market", b.MarketSlug).
			Int("fills", len(fills)).
			Str("profit", b.Profit.String()).
			Msg("Recent batch")
	}
	return nil
}

// exportBooks flushes the current book state of every market to CSV.
func (a *app) exportBooks(ctx context.Context) error {
	now := time.Now().UTC()
	for _, store := range a.stores {
		if err := a.csv.AppendBooks(store, now); err != nil {
			return err
		}
	}
	return nil
}
