// Package ladder tracks the dip-buying capital deployment ladder: buy
// sizing grows linearly with each qualifying dip and resets after a price
// recovery or at the year boundary.
//
// Evaluation and commitment are separate steps. Evaluate is pure: it
// reports whether today qualifies as a buy and returns the normalized state
// (recovery reset and year rollover applied) without recording a purchase.
// The caller commits a triggered decision only after the downstream
// notification succeeded, so a failed send never consumes a ladder rung.
package ladder

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arlenko/marketsentry/internal/models"
)

// Reasons reported on non-actionable decisions.
const (
	ReasonNoTrigger   = "no qualifying drawdown"
	ReasonCapExceeded = "cap exceeded"
)

// Config holds the ladder parameters.
type Config struct {
	BaseUnit    float64 // first-rung buy amount
	AnnualCap   float64 // max deployed per calendar year
	DrawdownPct float64 // drop required to qualify, as a fraction
	ResetPct    float64 // recovery above the first rung that resets the ladder
}

// DefaultConfig returns the ladder defaults: $10k rungs, $300k annual cap,
// 5% trigger and 5% recovery reset.
func DefaultConfig() Config {
	return Config{
		BaseUnit:    10000,
		AnnualCap:   300000,
		DrawdownPct: 0.05,
		ResetPct:    0.05,
	}
}

// Observation is one day's input to the ladder.
type Observation struct {
	Price     float64
	PrevClose float64
	Date      time.Time
}

// Evaluate decides whether the observation qualifies as a buy opportunity.
// The returned state carries any recovery reset and year rollover and must
// be persisted by the caller regardless of the decision; the purchase
// itself is only applied by Commit.
func Evaluate(state models.LadderState, obs Observation, cfg Config) (models.BuyDecision, models.LadderState) {
	st := state

	// Annual cap resets at the year boundary regardless of price behavior.
	if year := obs.Date.Year(); year != st.Year {
		st.CumulativeDeployed = 0
		st.Year = year
	}

	// Recovery reset: the ladder restarts once price has recovered above
	// the most recent first-rung purchase.
	if st.FirstRungPrice > 0 && obs.Price >= st.FirstRungPrice*(1+cfg.ResetPct) {
		st.NextBuyIndex = 1
		st.CumulativeDeployed = 0
		st.LastPurchasePrice = 0
		st.FirstRungPrice = 0
	}

	dec := models.BuyDecision{
		ID:    uuid.New().String(),
		Price: obs.Price,
		AsOf:  obs.Date,
	}

	dailyChange := (obs.Price - obs.PrevClose) / obs.PrevClose
	singleDay := dailyChange <= -cfg.DrawdownPct

	var fromLast float64
	var belowLast bool
	if st.LastPurchasePrice > 0 {
		fromLast = (obs.Price - st.LastPurchasePrice) / st.LastPurchasePrice
		belowLast = fromLast <= -cfg.DrawdownPct
	}

	switch {
	case singleDay:
		dec.DrawdownPct = dailyChange
		dec.Reason = fmt.Sprintf("single-day drop %.1f%%", dailyChange*100)
	case belowLast:
		dec.DrawdownPct = fromLast
		dec.Reason = fmt.Sprintf("%.1f%% below last purchase", -fromLast*100)
	default:
		dec.DrawdownPct = dailyChange
		dec.Reason = ReasonNoTrigger
		return dec, st
	}

	amount := float64(st.NextBuyIndex) * cfg.BaseUnit
	dec.Amount = amount

	// Report but do not act on opportunities the annual cap blocks.
	if st.CumulativeDeployed+amount > cfg.AnnualCap {
		dec.Reason = ReasonCapExceeded
		return dec, st
	}

	dec.Triggered = true
	return dec, st
}

// Commit applies a triggered buy to the state: it records the purchase
// price, advances the rung, and adds to the deployed total. The state
// passed in must be the normalized state returned by Evaluate.
func Commit(state models.LadderState, dec models.BuyDecision) models.LadderState {
	if !dec.Triggered {
		return state
	}
	st := state
	st.CumulativeDeployed += dec.Amount
	st.LastPurchasePrice = dec.Price
	if st.NextBuyIndex == 1 {
		st.FirstRungPrice = dec.Price
	}
	st.NextBuyIndex++
	st.Year = dec.AsOf.Year()
	st.UpdatedAt = time.Now()
	return st
}
