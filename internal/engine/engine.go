// Package engine orchestrates the signal and dip cycles: fetch market
// data, compute indicators, evaluate policies, persist and notify.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arlenko/marketsentry/internal/config"
	"github.com/arlenko/marketsentry/internal/indicator"
	"github.com/arlenko/marketsentry/internal/ladder"
	"github.com/arlenko/marketsentry/internal/models"
	"github.com/arlenko/marketsentry/internal/notify"
	"github.com/arlenko/marketsentry/internal/regime"
	"github.com/arlenko/marketsentry/internal/series"
	"github.com/arlenko/marketsentry/internal/signal"
)

// Fetcher supplies the aligned price and volatility series.
type Fetcher interface {
	FetchSeries(ctx context.Context, symbol, volSymbol string, lookbackDays, minPoints int) (*series.PriceSeries, error)
}

// Store persists cycle output and ladder state.
type Store interface {
	SaveLadderState(state models.LadderState) error
	LoadLadderState() (models.LadderState, bool, error)
	AddSignal(sig models.Signal) error
	AddBuyDecision(dec models.BuyDecision) error
}

// Engine runs detection cycles against a fetcher, store and notifier.
type Engine struct {
	fetcher  Fetcher
	store    Store
	notifier notify.Notifier
	cfg      *config.Config
}

// New creates an engine. notifier may be nil when no transport is
// configured; decisions are then committed without delivery.
func New(fetcher Fetcher, store Store, notifier notify.Notifier, cfg *config.Config) *Engine {
	return &Engine{
		fetcher:  fetcher,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
	}
}

// RunSignalCycle computes indicators from the latest market window,
// evaluates both signal directions, persists the result and sends
// alerts for fired signals. The returned slice is empty when no
// direction fired; the persisted record is then a NONE signal.
func (e *Engine) RunSignalCycle(ctx context.Context) ([]models.Signal, models.IndicatorSnapshot, error) {
	start := time.Now()
	log.Info().Str("symbol", e.cfg.Market.Symbol).Msg("starting signal cycle")

	ps, err := e.fetchSeries(ctx)
	if err != nil {
		return nil, models.IndicatorSnapshot{}, err
	}

	snap, err := e.computeIndicators(ps)
	if err != nil {
		return nil, models.IndicatorSnapshot{}, err
	}
	log.Info().
		Float64("fractal", snap.FractalDimension).
		Float64("put_call", snap.SentimentProxy).
		Float64("vix", snap.VolatilityIndex).
		Str("regime", snap.Regime.String()).
		Msg("indicators computed")

	signals := signal.Evaluate(snap, ps.LastClose(), e.cfg.SignalPolicy())

	if len(signals) == 0 {
		none := signal.None(snap)
		if err := e.store.AddSignal(none); err != nil {
			log.Warn().Err(err).Msg("failed to persist signal")
		}
		log.Info().Dur("duration", time.Since(start)).Msg("signal cycle complete: no signal")
		return nil, snap, nil
	}

	for _, sig := range signals {
		if err := e.store.AddSignal(sig); err != nil {
			log.Warn().Err(err).Str("signal_id", sig.ID).Msg("failed to persist signal")
		}
		if e.notifier != nil {
			if err := e.notifier.SendSignal(sig); err != nil {
				log.Error().Err(err).Str("signal_id", sig.ID).Msg("failed to send signal alert")
			} else {
				log.Info().Str("signal_id", sig.ID).Str("direction", sig.Direction.String()).Msg("signal alert sent")
			}
		}
	}

	log.Info().
		Int("signals", len(signals)).
		Dur("duration", time.Since(start)).
		Msg("signal cycle complete")
	return signals, snap, nil
}

// RunDipCycle evaluates the deployment ladder against the latest close.
// State is written in two steps: the normalized pre-commit state is
// saved first, then the purchase is committed only after the alert is
// delivered. A crash between the two re-sends the alert on the next
// run rather than silently skipping a rung.
func (e *Engine) RunDipCycle(ctx context.Context) (models.BuyDecision, models.LadderState, error) {
	start := time.Now()
	log.Info().Str("symbol", e.cfg.Market.Symbol).Msg("starting dip cycle")

	ps, err := e.fetchSeries(ctx)
	if err != nil {
		return models.BuyDecision{}, models.LadderState{}, err
	}

	state, found, err := e.store.LoadLadderState()
	if err != nil {
		return models.BuyDecision{}, models.LadderState{}, fmt.Errorf("failed to load ladder state: %w", err)
	}
	if !found {
		state = models.NewLadderState(ps.LastDate().Year())
		log.Info().Int("year", state.Year).Msg("no ladder state found, starting fresh")
	}

	obs := ladder.Observation{
		Price:     ps.LastClose(),
		PrevClose: ps.PrevClose(),
		Date:      ps.LastDate(),
	}
	dec, next := ladder.Evaluate(state, obs, e.cfg.LadderConfig())

	if err := e.store.SaveLadderState(next); err != nil {
		return models.BuyDecision{}, models.LadderState{}, fmt.Errorf("failed to save ladder state: %w", err)
	}
	if err := e.store.AddBuyDecision(dec); err != nil {
		log.Warn().Err(err).Msg("failed to persist buy decision")
	}

	if !dec.Triggered {
		log.Info().
			Str("reason", dec.Reason).
			Float64("drawdown_pct", dec.DrawdownPct*100).
			Dur("duration", time.Since(start)).
			Msg("dip cycle complete: no buy")
		return dec, next, nil
	}

	if e.notifier != nil {
		if err := e.notifier.SendBuyDecision(dec, next); err != nil {
			log.Error().Err(err).Msg("failed to send dip alert, purchase not committed")
			return dec, next, fmt.Errorf("dip alert delivery failed: %w", err)
		}
		log.Info().Float64("amount", dec.Amount).Msg("dip alert sent")
	}

	committed := ladder.Commit(next, dec)
	if err := e.store.SaveLadderState(committed); err != nil {
		return dec, next, fmt.Errorf("failed to commit ladder state: %w", err)
	}

	log.Info().
		Float64("amount", dec.Amount).
		Int("rung", committed.NextBuyIndex).
		Float64("cumulative", committed.CumulativeDeployed).
		Dur("duration", time.Since(start)).
		Msg("dip cycle complete: buy committed")
	return dec, committed, nil
}

func (e *Engine) fetchSeries(ctx context.Context) (*series.PriceSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Market.Timeout)
	defer cancel()

	ps, err := e.fetcher.FetchSeries(ctx,
		e.cfg.Market.Symbol,
		e.cfg.Market.VolSymbol,
		e.cfg.Market.LookbackDays,
		e.cfg.Market.MinPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market data: %w", err)
	}
	return ps, nil
}

// computeIndicators derives the snapshot from the price series. A
// regime classifier that cannot converge degrades to Unknown instead
// of failing the cycle.
func (e *Engine) computeIndicators(ps *series.PriceSeries) (models.IndicatorSnapshot, error) {
	closes, err := ps.TailCloses(e.cfg.Fractal.MinPoints)
	if err != nil {
		return models.IndicatorSnapshot{}, fmt.Errorf("fractal window: %w", err)
	}
	fractal, err := indicator.FractalDimension(closes, e.cfg.FractalConfig())
	if err != nil {
		return models.IndicatorSnapshot{}, fmt.Errorf("fractal dimension: %w", err)
	}

	avg5, err := ps.AvgReturn(5)
	if err != nil {
		return models.IndicatorSnapshot{}, fmt.Errorf("sentiment window: %w", err)
	}
	sentiment := indicator.SentimentProxy(ps.LastVIX(), avg5)

	label, err := regime.Classify(ps.Returns(), e.cfg.RegimeConfig())
	if err != nil {
		if !errors.Is(err, models.ErrRegimeUnavailable) {
			return models.IndicatorSnapshot{}, fmt.Errorf("regime classification: %w", err)
		}
		log.Warn().Err(err).Msg("regime unavailable, continuing without it")
		label = models.RegimeUnknown
	}

	return models.IndicatorSnapshot{
		FractalDimension: fractal,
		SentimentProxy:   sentiment,
		VolatilityIndex:  ps.LastVIX(),
		Regime:           label,
		AsOf:             ps.LastDate(),
	}, nil
}
