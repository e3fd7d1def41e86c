package ladder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlenko/marketsentry/internal/models"
)

func day(offset int) time.Time {
	return time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestEvaluateNoTrigger(t *testing.T) {
	state := models.NewLadderState(2025)
	obs := Observation{Price: 99, PrevClose: 100, Date: day(0)}

	dec, next := Evaluate(state, obs, DefaultConfig())
	assert.False(t, dec.Triggered)
	assert.Equal(t, ReasonNoTrigger, dec.Reason)
	assert.InDelta(t, -0.01, dec.DrawdownPct, 1e-12)
	assert.Equal(t, state, next, "a quiet day leaves the state untouched")
}

func TestEvaluateSingleDayDrop(t *testing.T) {
	state := models.NewLadderState(2025)
	obs := Observation{Price: 94, PrevClose: 100, Date: day(0)}

	dec, next := Evaluate(state, obs, DefaultConfig())
	require.True(t, dec.Triggered)
	assert.Equal(t, 10000.0, dec.Amount)
	assert.InDelta(t, -0.06, dec.DrawdownPct, 1e-12)

	// Evaluate never records the purchase.
	assert.Zero(t, next.CumulativeDeployed)
	assert.Equal(t, 1, next.NextBuyIndex)
}

func TestCommitAdvancesLadder(t *testing.T) {
	state := models.NewLadderState(2025)
	obs := Observation{Price: 94, PrevClose: 100, Date: day(0)}

	dec, next := Evaluate(state, obs, DefaultConfig())
	require.True(t, dec.Triggered)

	committed := Commit(next, dec)
	assert.Equal(t, 10000.0, committed.CumulativeDeployed)
	assert.Equal(t, 2, committed.NextBuyIndex)
	assert.Equal(t, 94.0, committed.LastPurchasePrice)
	assert.Equal(t, 94.0, committed.FirstRungPrice, "first rung anchors the recovery reset")
}

func TestCommitIgnoresUntriggered(t *testing.T) {
	state := models.NewLadderState(2025)
	dec := models.BuyDecision{Triggered: false, Amount: 10000}
	assert.Equal(t, state, Commit(state, dec))
}

func TestAmountsGrowLinearly(t *testing.T) {
	cfg := DefaultConfig()
	state := models.NewLadderState(2025)
	price := 100.0

	for rung := 1; rung <= 5; rung++ {
		prev := price
		price *= 0.94 // each day gaps down 6%
		obs := Observation{Price: price, PrevClose: prev, Date: day(rung)}

		dec, next := Evaluate(state, obs, cfg)
		require.True(t, dec.Triggered, "rung %d", rung)
		assert.Equal(t, float64(rung)*cfg.BaseUnit, dec.Amount)
		state = Commit(next, dec)
	}
	assert.Equal(t, 150000.0, state.CumulativeDeployed)
	assert.Equal(t, 6, state.NextBuyIndex)
}

func TestBelowLastPurchaseTriggers(t *testing.T) {
	cfg := DefaultConfig()
	state := models.NewLadderState(2025)

	dec, next := Evaluate(state, Observation{Price: 94, PrevClose: 100, Date: day(0)}, cfg)
	require.True(t, dec.Triggered)
	state = Commit(next, dec)

	// Grinds down 3% a day: never a 5% daily drop, but eventually 5%
	// under the last purchase.
	price := 94.0
	var fired bool
	for i := 1; i <= 3 && !fired; i++ {
		prev := price
		price *= 0.97
		dec, next = Evaluate(state, Observation{Price: price, PrevClose: prev, Date: day(i)}, cfg)
		if dec.Triggered {
			fired = true
			assert.Contains(t, dec.Reason, "below last purchase")
			assert.Equal(t, 20000.0, dec.Amount)
		}
	}
	assert.True(t, fired, "a slow grind below the last purchase must trigger")
}

func TestAnnualCapBlocksRungEight(t *testing.T) {
	cfg := DefaultConfig()
	state := models.NewLadderState(2025)
	price := 100.0

	// Rungs 1..7 deploy 10k+20k+...+70k = 280k.
	for rung := 1; rung <= 7; rung++ {
		prev := price
		price *= 0.93
		dec, next := Evaluate(state, Observation{Price: price, PrevClose: prev, Date: day(rung)}, cfg)
		require.True(t, dec.Triggered, "rung %d", rung)
		state = Commit(next, dec)
	}
	require.Equal(t, 280000.0, state.CumulativeDeployed)

	// Rung 8 would need 80k and blow through the 300k cap.
	prev := price
	price *= 0.93
	dec, next := Evaluate(state, Observation{Price: price, PrevClose: prev, Date: day(8)}, cfg)
	assert.False(t, dec.Triggered)
	assert.Equal(t, ReasonCapExceeded, dec.Reason)
	assert.Equal(t, 80000.0, dec.Amount, "the blocked amount is still reported")
	assert.Equal(t, 280000.0, next.CumulativeDeployed)
}

func TestCapBlockedLadderResumesNextYear(t *testing.T) {
	cfg := DefaultConfig()
	state := models.LadderState{
		LastPurchasePrice:  60,
		FirstRungPrice:     100,
		CumulativeDeployed: 280000,
		NextBuyIndex:       8,
		Year:               2025,
	}

	// Still inside 2025 the eighth rung stays blocked.
	dec, next := Evaluate(state, Observation{Price: 56, PrevClose: 60, Date: time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC)}, cfg)
	require.False(t, dec.Triggered)
	require.Equal(t, ReasonCapExceeded, dec.Reason)

	// The same dip after the year boundary fits the renewed budget.
	dec, next = Evaluate(state, Observation{Price: 56, PrevClose: 60, Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)}, cfg)
	require.True(t, dec.Triggered)
	assert.Equal(t, 80000.0, dec.Amount)

	state = Commit(next, dec)
	assert.Equal(t, 80000.0, state.CumulativeDeployed)
	assert.Equal(t, 9, state.NextBuyIndex)
	assert.Equal(t, 2026, state.Year)
}

func TestRecoveryResetsLadder(t *testing.T) {
	cfg := DefaultConfig()
	state := models.NewLadderState(2025)

	dec, next := Evaluate(state, Observation{Price: 90, PrevClose: 100, Date: day(0)}, cfg)
	require.True(t, dec.Triggered)
	state = Commit(next, dec)
	dec, next = Evaluate(state, Observation{Price: 84, PrevClose: 90, Date: day(1)}, cfg)
	require.True(t, dec.Triggered)
	state = Commit(next, dec)
	require.Equal(t, 3, state.NextBuyIndex)

	// Recovery to 5% above the first rung price (90 * 1.05 = 94.5).
	_, reset := Evaluate(state, Observation{Price: 95, PrevClose: 94, Date: day(30)}, cfg)
	assert.Equal(t, 1, reset.NextBuyIndex)
	assert.Zero(t, reset.CumulativeDeployed)
	assert.Zero(t, reset.LastPurchasePrice)
	assert.Zero(t, reset.FirstRungPrice)

	// The next qualifying dip starts over at the base unit.
	dec, next = Evaluate(reset, Observation{Price: 89, PrevClose: 95, Date: day(31)}, cfg)
	require.True(t, dec.Triggered)
	assert.Equal(t, cfg.BaseUnit, dec.Amount)
}

func TestRecoveryBelowThresholdDoesNotReset(t *testing.T) {
	cfg := DefaultConfig()
	state := models.NewLadderState(2025)

	dec, next := Evaluate(state, Observation{Price: 90, PrevClose: 100, Date: day(0)}, cfg)
	require.True(t, dec.Triggered)
	state = Commit(next, dec)

	_, after := Evaluate(state, Observation{Price: 94, PrevClose: 93, Date: day(10)}, cfg)
	assert.Equal(t, 2, after.NextBuyIndex, "94 is under the 94.5 reset level")
	assert.Equal(t, 10000.0, after.CumulativeDeployed)
}

func TestYearRolloverResetsOnlyCumulative(t *testing.T) {
	cfg := DefaultConfig()
	state := models.LadderState{
		LastPurchasePrice:  90,
		FirstRungPrice:     95,
		CumulativeDeployed: 120000,
		NextBuyIndex:       4,
		Year:               2025,
	}

	_, next := Evaluate(state, Observation{Price: 91, PrevClose: 92, Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}, cfg)
	assert.Equal(t, 2026, next.Year)
	assert.Zero(t, next.CumulativeDeployed, "the annual budget renews")
	assert.Equal(t, 4, next.NextBuyIndex, "ladder position carries across years")
	assert.Equal(t, 90.0, next.LastPurchasePrice)
}
