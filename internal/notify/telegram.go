// Package notify pushes arbitrage findings to Telegram. Without a token
// it degrades to a no-op so the pipeline runs headless.
package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/signaldrift/signaldrift/internal/fairvalue"
	"github.com/signaldrift/signaldrift/internal/matcher"
)

// Notifier sends messages to one chat.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New creates a notifier. Empty token returns a disabled notifier.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		log.Info().Msg("Telegram disabled (no token)")
		return &Notifier{}, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("Telegram connected")
	return &Notifier{api: api, chatID: chatID}, nil
}

// Enabled reports whether messages will actually be sent.
func (n *Notifier) Enabled() bool { return n.api != nil }

// NotifyBatch announces a non-empty matched batch.
func (n *Notifier) NotifyBatch(marketSlug string, batch matcher.Batch) {
	if !n.Enabled() || len(batch.Fills) == 0 {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Arbitrage on %s\n", marketSlug)
	for _, f := range batch.Fills {
		fmt.Fprintf(&sb, "  buy %d @ %s + %d @ %s (edge %s)\n",
			f.A.Size, f.A.Price, f.B.Size, f.B.Price,
			decimal.NewFromInt(1).Sub(f.A.Price).Sub(f.B.Price))
	}
	fmt.Fprintf(&sb, "capital %s, profit %s, return %s%%",
		batch.Capital, batch.Profit,
		batch.Return.Mul(decimal.NewFromInt(100)).Round(2))

	n.send(sb.String())
}

// NotifyFairValues reports freshly computed consensus probabilities.
func (n *Notifier) NotifyFairValues(marketSlug string, values map[string]fairvalue.FairValue) {
	if !n.Enabled() || len(values) == 0 {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Fair value for %s\n", marketSlug)
	for outcome, fv := range values {
		fmt.Fprintf(&sb, "  %s: %s (%d sources)\n",
			outcome, fv.Consensus.Round(4), len(fv.Sources))
	}

	n.send(sb.String())
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("Telegram send failed")
	}
}
