package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlenko/marketsentry/internal/config"
	"github.com/arlenko/marketsentry/internal/models"
	"github.com/arlenko/marketsentry/internal/series"
)

// crashBars builds 200 days: a flat stretch, a six-day 6%-per-day crash
// with elevated volatility, then a flat tail at the bottom.
func crashBars() []series.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, 200)
	price := 100.0
	for i := range bars {
		vix := 15.0
		if i >= 100 && i < 106 {
			price *= 0.94
			vix = 40
		}
		bars[i] = series.Bar{Date: start.AddDate(0, 0, i), Close: price, VIX: vix}
	}
	return bars
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Regime.MinObservations = 1 << 20
	cfg.Signal.Short = config.DirectionConfig{VIXMin: 30}
	cfg.Signal.Long = config.DirectionConfig{VIXMax: 1}

	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunInsufficientData(t *testing.T) {
	_, err := Run(crashBars()[:10], testConfig(t))
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestRunReplaysCrash(t *testing.T) {
	cfg := testConfig(t)
	res, err := Run(crashBars(), cfg)
	require.NoError(t, err)

	// Every day from the warmup onward is evaluated.
	assert.Equal(t, 200-cfg.Market.MinPoints+1, res.DaysEvaluated)

	// The six elevated-volatility days each fire the short setup.
	assert.Equal(t, 6, res.ShortSignals)
	assert.Zero(t, res.LongSignals)
	require.Len(t, res.Signals, 6)
	for _, sig := range res.Signals {
		assert.Equal(t, models.DirectionShort, sig.Direction)
	}

	// The six 6% down days climb the ladder rung by rung.
	require.Len(t, res.Buys, 6)
	assert.Equal(t, 210000.0, res.TotalDeployed)
	assert.Equal(t, 7, res.FinalState.NextBuyIndex)

	assert.InDelta(t, 1-math.Pow(0.94, 6), res.MaxDrawdown, 1e-9)
}

func TestRunWindowsByCalendarDays(t *testing.T) {
	// Weekly bars: a 120-day lookback window holds at most 18 of them,
	// far short of the 60 the indicators need. If the lookback were a
	// bar count instead, every day past the warmup would be evaluated.
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, 100)
	for i := range bars {
		bars[i] = series.Bar{
			Date:  start.AddDate(0, 0, 7*i),
			Close: 100 + 0.2*math.Sin(float64(i)),
			VIX:   14,
		}
	}

	res, err := Run(bars, testConfig(t))
	require.NoError(t, err)
	assert.Zero(t, res.DaysEvaluated)
	assert.Empty(t, res.Signals)
}

func TestRunQuietMarket(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, 120)
	for i := range bars {
		bars[i] = series.Bar{
			Date:  start.AddDate(0, 0, i),
			Close: 100 + 0.2*math.Sin(float64(i)),
			VIX:   14,
		}
	}

	res, err := Run(bars, testConfig(t))
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Empty(t, res.Buys)
	assert.Zero(t, res.TotalDeployed)
	assert.Equal(t, 1, res.FinalState.NextBuyIndex)
}
