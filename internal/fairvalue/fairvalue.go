// Package fairvalue turns per-source implied probabilities into a single
// consensus probability per outcome: vig is stripped per source first, then
// the no-vig numbers are blended with per-source weights.
package fairvalue

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/signaldrift/signaldrift/internal/odds"
)

// ErrInsufficientData is returned when a market has no reporting sources.
var ErrInsufficientData = errors.New("insufficient data")

// divPrecision matches the precision carried by the odds package.
const divPrecision = 16

var one = decimal.NewFromInt(1)

// Observation is one source's raw implied probability for one outcome.
type Observation struct {
	Source      string
	Probability decimal.Decimal
}

// Weights maps source identifier to a non-negative blending weight.
// Weights need not sum to 1; they are normalized over the sources actually
// present for a market. A source missing from the map weighs 1.
type Weights map[string]decimal.Decimal

// Weight returns the configured weight for a source, defaulting to 1.
func (w Weights) Weight(source string) decimal.Decimal {
	if w == nil {
		return one
	}
	v, ok := w[source]
	if !ok {
		return one
	}
	return v
}

// FairValue is the consensus probability for one outcome, with the
// per-source no-vig probabilities that produced it.
type FairValue struct {
	Outcome   string
	Consensus decimal.Decimal
	Sources   []string
	PerSource map[string]decimal.Decimal
}

// Aggregate computes a FairValue per outcome of one market.
//
// Vig removal happens per source, before any cross-source blending: each
// source's raw probabilities are divided by that source's book total so
// they sum to exactly 1. Blending raw probabilities and removing vig
// afterward would mix different books' margins and is deliberately not
// offered.
//
// The consensus probabilities across outcomes need not sum to 1, because
// each outcome can draw on a different set of sources and weights. No
// second normalization pass is applied, since that would discard the
// weighting signal.
func Aggregate(market map[string][]Observation, weights Weights) (map[string]FairValue, error) {
	// Group raw probabilities per source across all outcomes.
	bySource := make(map[string]map[string]decimal.Decimal) // source -> outcome -> raw
	for outcome, obs := range market {
		for _, o := range obs {
			if err := odds.CheckProbability(o.Probability); err != nil {
				return nil, fmt.Errorf("source %s outcome %s: %w", o.Source, outcome, err)
			}
			if _, ok := bySource[o.Source]; !ok {
				bySource[o.Source] = make(map[string]decimal.Decimal)
			}
			if _, dup := bySource[o.Source][outcome]; dup {
				return nil, fmt.Errorf("source %s reports outcome %s twice: %w",
					o.Source, outcome, odds.ErrInvalidInput)
			}
			bySource[o.Source][outcome] = o.Probability
		}
	}
	if len(bySource) == 0 {
		return nil, fmt.Errorf("no sources for market: %w", ErrInsufficientData)
	}

	// Per-source vig removal: divide by the source's book total.
	noVig := make(map[string]map[string]decimal.Decimal, len(bySource))
	for source, outcomes := range bySource {
		total := decimal.Zero
		for _, p := range outcomes {
			total = total.Add(p)
		}
		if !total.IsPositive() {
			return nil, fmt.Errorf("source %s book total %s: %w", source, total, odds.ErrInvalidInput)
		}
		fair := make(map[string]decimal.Decimal, len(outcomes))
		for outcome, p := range outcomes {
			fair[outcome] = p.DivRound(total, divPrecision)
		}
		noVig[source] = fair
	}

	// Weighted consensus per outcome over the sources reporting it.
	result := make(map[string]FairValue, len(market))
	for outcome, obs := range market {
		if len(obs) == 0 {
			return nil, fmt.Errorf("outcome %s has no sources: %w", outcome, ErrInsufficientData)
		}

		weightTotal := decimal.Zero
		for _, o := range obs {
			weightTotal = weightTotal.Add(weights.Weight(o.Source))
		}
		if !weightTotal.IsPositive() {
			return nil, fmt.Errorf("outcome %s: combined source weight is zero: %w",
				outcome, odds.ErrInvalidInput)
		}

		fv := FairValue{
			Outcome:   outcome,
			Consensus: decimal.Zero,
			PerSource: make(map[string]decimal.Decimal, len(obs)),
		}
		for _, o := range obs {
			p := noVig[o.Source][outcome]
			share := weights.Weight(o.Source).DivRound(weightTotal, divPrecision)
			fv.Consensus = fv.Consensus.Add(share.Mul(p))
			fv.PerSource[o.Source] = p
			fv.Sources = append(fv.Sources, o.Source)
		}
		sort.Strings(fv.Sources)
		result[outcome] = fv
	}

	return result, nil
}
