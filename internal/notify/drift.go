package notify

import (
	"github.com/shopspring/decimal"

	"github.com/signaldrift/signaldrift/internal/fairvalue"
)

// DriftTracker remembers the consensus values last announced per market
// and decides when they have moved enough to be worth another message.
// The first computation for a market always qualifies.
type DriftTracker struct {
	threshold decimal.Decimal
	last      map[string]map[string]decimal.Decimal
}

// NewDriftTracker creates a tracker with the given minimum move. A zero
// threshold announces every recomputation.
func NewDriftTracker(threshold decimal.Decimal) *DriftTracker {
	return &DriftTracker{
		threshold: threshold,
		last:      make(map[string]map[string]decimal.Decimal),
	}
}

// ShouldNotify reports whether any outcome's consensus moved at least the
// threshold since the last notification for this market, or whether an
// outcome appeared that was never announced. When it returns true the new
// values are recorded as the baseline for the next call.
func (t *DriftTracker) ShouldNotify(marketSlug string, values map[string]fairvalue.FairValue) bool {
	if len(values) == 0 {
		return false
	}

	last, seen := t.last[marketSlug]
	drifted := !seen
	for outcome, fv := range values {
		prev, ok := last[outcome]
		if !ok || fv.Consensus.Sub(prev).Abs().GreaterThanOrEqual(t.threshold) {
			drifted = true
		}
	}
	if !drifted {
		return false
	}

	baseline := make(map[string]decimal.Decimal, len(values))
	for outcome, fv := range values {
		baseline[outcome] = fv.Consensus
	}
	t.last[marketSlug] = baseline
	return true
}
