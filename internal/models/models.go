// Package models defines the core domain entities: indicator snapshots,
// trade signals, buy decisions, and the persisted ladder state.
package models

import (
	"errors"
	"fmt"
	"time"
)

// RegimeLabel is the discrete market regime inferred by the hidden Markov
// classifier.
type RegimeLabel int

const (
	RegimeUnknown RegimeLabel = iota
	RegimeNormal
	RegimeVolatile
	RegimeCrisis
	RegimeBull
)

func (r RegimeLabel) String() string {
	switch r {
	case RegimeNormal:
		return "Normal"
	case RegimeVolatile:
		return "Volatile"
	case RegimeCrisis:
		return "Crisis"
	case RegimeBull:
		return "Bull"
	default:
		return "Unknown"
	}
}

// ParseRegimeLabel converts a configuration string into a RegimeLabel.
func ParseRegimeLabel(s string) (RegimeLabel, error) {
	switch s {
	case "Normal":
		return RegimeNormal, nil
	case "Volatile":
		return RegimeVolatile, nil
	case "Crisis":
		return RegimeCrisis, nil
	case "Bull":
		return RegimeBull, nil
	case "", "Unknown":
		return RegimeUnknown, nil
	default:
		return RegimeUnknown, fmt.Errorf("unknown regime label: %q", s)
	}
}

// Direction is the directional outcome of a signal evaluation.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// IndicatorSnapshot holds the indicator values computed for one evaluation
// date. Produced fresh each run and never mutated afterwards. A Regime of
// RegimeUnknown means the classifier was unavailable and regime-dependent
// threshold conditions must be skipped.
type IndicatorSnapshot struct {
	FractalDimension float64     `json:"fractal_dimension"`
	SentimentProxy   float64     `json:"sentiment_proxy"`
	VolatilityIndex  float64     `json:"volatility_index"`
	Regime           RegimeLabel `json:"regime"`
	AsOf             time.Time   `json:"as_of"`
}

// Validate checks snapshot field constraints.
func (s *IndicatorSnapshot) Validate() error {
	if s.FractalDimension <= 0 || s.FractalDimension >= 2 {
		return errors.New("fractal dimension must be in (0, 2)")
	}
	if s.SentimentProxy < 0.3 || s.SentimentProxy > 2.5 {
		return errors.New("sentiment proxy must be in [0.3, 2.5]")
	}
	if s.VolatilityIndex < 0 {
		return errors.New("volatility index must not be negative")
	}
	if s.AsOf.IsZero() {
		return errors.New("as-of date must be set")
	}
	return nil
}

// Signal is the terminal record of one signal evaluation. At most one per
// direction per run; Direction is DirectionNone when no setup fired.
type Signal struct {
	ID              string            `json:"id"`
	Direction       Direction         `json:"direction"`
	Symbol          string            `json:"symbol"`
	Indicators      IndicatorSnapshot `json:"indicators"`
	Entry           float64           `json:"entry"`
	StopLoss        float64           `json:"stop_loss"`
	Target          float64           `json:"target"`
	PositionSizePct float64           `json:"position_size_pct"`
	Rationale       string            `json:"rationale"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Validate checks signal field constraints for fired signals.
func (s *Signal) Validate() error {
	if s.Direction == DirectionNone {
		return nil
	}
	if s.Symbol == "" {
		return errors.New("signal symbol must not be empty")
	}
	if s.Entry <= 0 {
		return errors.New("entry price must be positive")
	}
	if s.StopLoss <= 0 || s.Target <= 0 {
		return errors.New("stop loss and target must be positive")
	}
	switch s.Direction {
	case DirectionLong:
		if s.StopLoss >= s.Entry || s.Target <= s.Entry {
			return errors.New("long signal requires stop below entry and target above")
		}
	case DirectionShort:
		if s.StopLoss <= s.Entry || s.Target >= s.Entry {
			return errors.New("short signal requires stop above entry and target below")
		}
	}
	if s.PositionSizePct <= 0 || s.PositionSizePct > 100 {
		return errors.New("position size must be in (0, 100] percent")
	}
	return nil
}

// LadderState is the cross-run state of the capital deployment ladder.
// Persisted externally; a zero LastPurchasePrice means no purchase has been
// made in the current cycle. FirstRungPrice is the price of the most recent
// base-unit (first rung) purchase and anchors the recovery reset.
type LadderState struct {
	LastPurchasePrice  float64   `json:"last_purchase_price"`
	FirstRungPrice     float64   `json:"first_rung_price"`
	CumulativeDeployed float64   `json:"cumulative_deployed"`
	NextBuyIndex       int       `json:"next_buy_index"`
	Year               int       `json:"year"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewLadderState returns the initial ladder state for the given year.
func NewLadderState(year int) LadderState {
	return LadderState{NextBuyIndex: 1, Year: year}
}

// Validate checks ladder state invariants.
func (l *LadderState) Validate() error {
	if l.NextBuyIndex < 1 {
		return errors.New("next buy index must be at least 1")
	}
	if l.CumulativeDeployed < 0 {
		return errors.New("cumulative deployed must not be negative")
	}
	if l.LastPurchasePrice < 0 || l.FirstRungPrice < 0 {
		return errors.New("purchase prices must not be negative")
	}
	if l.Year < 1970 || l.Year > 9999 {
		return errors.New("year must be a plausible calendar year")
	}
	return nil
}

// BuyDecision is the outcome of one ladder evaluation. It never mutates the
// ladder state itself; committing a triggered decision is a separate step
// performed by the caller after the notification succeeded.
type BuyDecision struct {
	ID          string    `json:"id"`
	Triggered   bool      `json:"triggered"`
	Amount      float64   `json:"amount"`
	DrawdownPct float64   `json:"drawdown_pct"`
	Reason      string    `json:"reason"`
	Price       float64   `json:"price"`
	AsOf        time.Time `json:"as_of"`
}
