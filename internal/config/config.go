// Package config loads runtime configuration from environment variables,
// with source weights optionally loaded from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service. The core packages take
// their weights and margin as call arguments; Config is only the wiring
// layer's view of them.
type Config struct {
	// Mode
	Debug  bool
	DryRun bool

	// Market feed
	FeedURL string
	Markets []Market

	// Matching
	Margin        decimal.Decimal // minimum edge per matched pair
	SourceWeights map[string]decimal.Decimal

	// Scheduler
	RecomputeInterval time.Duration

	// Minimum consensus move before a fair-value notification goes out.
	NotifyDrift decimal.Decimal

	// Persistence
	DatabasePath string
	CSVDir       string

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64
}

// Load reads configuration from the environment. SOURCE_WEIGHTS accepts
// an inline "src:weight,src:weight" list; WEIGHTS_FILE points to a YAML
// file with a top-level "weights" mapping.
func Load() (*Config, error) {
	cfg := &Config{
		Debug:  getEnvBool("DEBUG", false),
		DryRun: getEnvBool("DRY_RUN", true),

		FeedURL: getEnv("FEED_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		Margin:            getEnvDecimal("MATCH_MARGIN", decimal.Zero),
		RecomputeInterval: getEnvDuration("RECOMPUTE_INTERVAL", 30*time.Second),
		NotifyDrift:       getEnvDecimal("NOTIFY_DRIFT", decimal.RequireFromString("0.02")),

		DatabasePath: getEnv("DATABASE_PATH", "data/signaldrift.db"),
		CSVDir:       getEnv("CSV_DIR", "data"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	markets, err := loadMarkets()
	if err != nil {
		return nil, err
	}
	cfg.Markets = markets

	weights, err := loadWeights()
	if err != nil {
		return nil, err
	}
	cfg.SourceWeights = weights

	if cfg.Margin.IsNegative() {
		return nil, fmt.Errorf("MATCH_MARGIN must not be negative, got %s", cfg.Margin)
	}
	if cfg.NotifyDrift.IsNegative() {
		return nil, fmt.Errorf("NOTIFY_DRIFT must not be negative, got %s", cfg.NotifyDrift)
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Market describes one tracked market: its slug, id and the two
// complementary outcome tokens. Metadata discovery is the ingestion
// layer's job; here it is plain configuration.
type Market struct {
	Slug     string    `yaml:"slug"`
	ID       string    `yaml:"id"`
	Outcomes []Outcome `yaml:"outcomes"`
}

// Outcome is one outcome token of a market.
type Outcome struct {
	Name    string `yaml:"name"`
	AssetID string `yaml:"asset"`
}

type marketsFile struct {
	Markets []Market `yaml:"markets"`
}

func loadMarkets() ([]Market, error) {
	path := os.Getenv("MARKETS_FILE")
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MARKETS_FILE: %w", err)
	}
	var mf marketsFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("parsing MARKETS_FILE: %w", err)
	}
	for _, m := range mf.Markets {
		if m.Slug == "" {
			return nil, fmt.Errorf("market without slug in %s", path)
		}
		if len(m.Outcomes) != 2 {
			return nil, fmt.Errorf("market %s has %d outcomes, need 2", m.Slug, len(m.Outcomes))
		}
		for _, o := range m.Outcomes {
			if o.AssetID == "" {
				return nil, fmt.Errorf("market %s outcome %q without asset id", m.Slug, o.Name)
			}
		}
	}
	return mf.Markets, nil
}

// weightsFile is the YAML shape of a weights file:
//
//	weights:
//	  pinnacle: "3"
//	  betfair: "2"
type weightsFile struct {
	Weights map[string]string `yaml:"weights"`
}

func loadWeights() (map[string]decimal.Decimal, error) {
	weights := make(map[string]decimal.Decimal)

	if path := os.Getenv("WEIGHTS_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading WEIGHTS_FILE: %w", err)
		}
		var wf weightsFile
		if err := yaml.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("parsing WEIGHTS_FILE: %w", err)
		}
		for source, v := range wf.Weights {
			w, err := decimal.NewFromString(v)
			if err != nil || w.IsNegative() {
				return nil, fmt.Errorf("weight %q for source %s is not a non-negative number", v, source)
			}
			weights[source] = w
		}
	}

	// Inline weights override the file entry by entry.
	if inline := os.Getenv("SOURCE_WEIGHTS"); inline != "" {
		for _, entry := range strings.Split(inline, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("SOURCE_WEIGHTS entry %q, want source:weight", entry)
			}
			w, err := decimal.NewFromString(parts[1])
			if err != nil || w.IsNegative() {
				return nil, fmt.Errorf("weight %q for source %s is not a non-negative number", parts[1], parts[0])
			}
			weights[parts[0]] = w
		}
	}

	return weights, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
