// Package backtest replays the signal policy and deployment ladder over
// a historical bar series, day by day, the way the live cycles would
// have seen it.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/arlenko/marketsentry/internal/config"
	"github.com/arlenko/marketsentry/internal/indicator"
	"github.com/arlenko/marketsentry/internal/ladder"
	"github.com/arlenko/marketsentry/internal/models"
	"github.com/arlenko/marketsentry/internal/regime"
	"github.com/arlenko/marketsentry/internal/series"
	"github.com/arlenko/marketsentry/internal/signal"
)

// Result summarizes a replay.
type Result struct {
	DaysEvaluated int
	LongSignals   int
	ShortSignals  int
	Signals       []models.Signal
	Buys          []models.BuyDecision
	TotalDeployed float64
	FinalState    models.LadderState
	MaxDrawdown   float64 // worst peak-to-trough close decline, as a fraction
}

// Run replays both policies over bars. Each day sees only the bars up
// to and including itself, windowed to the configured lookback. Days
// where the window is too short for the indicators are skipped, not
// errors. Buys are committed immediately; the replay assumes every
// alert would have been delivered.
func Run(bars []series.Bar, cfg *config.Config) (*Result, error) {
	if len(bars) < cfg.Market.MinPoints {
		return nil, fmt.Errorf("%w: %d bars, need %d", models.ErrInsufficientData, len(bars), cfg.Market.MinPoints)
	}

	res := &Result{}
	policy := cfg.SignalPolicy()
	ladderCfg := cfg.LadderConfig()
	regimeCfg := cfg.RegimeConfig()
	fractalCfg := cfg.FractalConfig()

	state := models.NewLadderState(bars[cfg.Market.MinPoints-1].Date.Year())

	peak := bars[0].Close
	lo := 0
	for i := cfg.Market.MinPoints - 1; i < len(bars); i++ {
		// The lookback is calendar days, matching what the live fetch
		// would have requested, not a bar count.
		cutoff := bars[i].Date.AddDate(0, 0, -cfg.Market.LookbackDays)
		for bars[lo].Date.Before(cutoff) {
			lo++
		}
		ps, err := series.New(bars[lo : i+1])
		if err != nil {
			return nil, fmt.Errorf("bad window ending %s: %w", bars[i].Date.Format("2006-01-02"), err)
		}

		snap, err := computeIndicators(ps, fractalCfg, regimeCfg)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientData) {
				continue
			}
			return nil, err
		}

		res.DaysEvaluated++

		for _, sig := range signal.Evaluate(snap, ps.LastClose(), policy) {
			res.Signals = append(res.Signals, sig)
			switch sig.Direction {
			case models.DirectionLong:
				res.LongSignals++
			case models.DirectionShort:
				res.ShortSignals++
			}
			log.Debug().
				Str("date", snap.AsOf.Format("2006-01-02")).
				Str("direction", sig.Direction.String()).
				Float64("fractal", snap.FractalDimension).
				Msg("replay signal")
		}

		obs := ladder.Observation{Price: ps.LastClose(), PrevClose: ps.PrevClose(), Date: ps.LastDate()}
		dec, next := ladder.Evaluate(state, obs, ladderCfg)
		if dec.Triggered {
			next = ladder.Commit(next, dec)
			res.Buys = append(res.Buys, dec)
			res.TotalDeployed += dec.Amount
		}
		state = next

		peak = math.Max(peak, bars[i].Close)
		if dd := 1 - bars[i].Close/peak; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
	}

	res.FinalState = state
	return res, nil
}

// computeIndicators mirrors the live cycle: a regime that cannot be
// fitted degrades to Unknown rather than aborting the replay.
func computeIndicators(ps *series.PriceSeries, fractalCfg indicator.FractalConfig, regimeCfg regime.Config) (models.IndicatorSnapshot, error) {
	closes, err := ps.TailCloses(fractalCfg.MinPoints)
	if err != nil {
		return models.IndicatorSnapshot{}, err
	}
	fractal, err := indicator.FractalDimension(closes, fractalCfg)
	if err != nil {
		return models.IndicatorSnapshot{}, err
	}

	avg5, err := ps.AvgReturn(5)
	if err != nil {
		return models.IndicatorSnapshot{}, err
	}

	label, err := regime.Classify(ps.Returns(), regimeCfg)
	if err != nil {
		if !errors.Is(err, models.ErrRegimeUnavailable) {
			return models.IndicatorSnapshot{}, err
		}
		label = models.RegimeUnknown
	}

	return models.IndicatorSnapshot{
		FractalDimension: fractal,
		SentimentProxy:   indicator.SentimentProxy(ps.LastVIX(), avg5),
		VolatilityIndex:  ps.LastVIX(),
		Regime:           label,
		AsOf:             ps.LastDate(),
	}, nil
}
