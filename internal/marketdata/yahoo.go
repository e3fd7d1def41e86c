// Package marketdata fetches daily price history from Yahoo Finance and
// assembles the date-aligned series the engine consumes.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/shopspring/decimal"

	"github.com/arlenko/marketsentry/internal/models"
	"github.com/arlenko/marketsentry/internal/series"
)

// Client fetches daily bars from Yahoo Finance with bounded retry.
type Client struct {
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a market data client.
func NewClient(maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{maxRetries: maxRetries, retryDelayBase: retryDelayBase}
}

type dailyBar struct {
	date                    time.Time
	open, high, low, close_ float64
	volume                  float64
}

// FetchSeries retrieves lookbackDays of daily history for the trade symbol
// and the volatility symbol, intersects the two by calendar date, and
// returns the aligned series. Fails with ErrDataUnavailable when either
// fetch fails, and ErrInsufficientData when fewer than minPoints aligned
// days come back.
func (c *Client) FetchSeries(ctx context.Context, symbol, volSymbol string, lookbackDays, minPoints int) (*series.PriceSeries, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -lookbackDays)

	bars, err := c.FetchBars(ctx, symbol, volSymbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) < minPoints {
		return nil, fmt.Errorf("%w: %d aligned days, need %d",
			models.ErrInsufficientData, len(bars), minPoints)
	}
	return series.New(bars)
}

// FetchBars retrieves daily history for both symbols over [start, end]
// and intersects the two by calendar date. Days where either symbol has
// no bar are dropped.
func (c *Client) FetchBars(ctx context.Context, symbol, volSymbol string, start, end time.Time) ([]series.Bar, error) {
	priceBars, err := c.fetchDaily(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, symbol, err)
	}
	volBars, err := c.fetchDaily(ctx, volSymbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, volSymbol, err)
	}

	volByDate := make(map[string]float64, len(volBars))
	for _, b := range volBars {
		volByDate[b.date.Format("2006-01-02")] = b.close_
	}

	var bars []series.Bar
	for _, b := range priceBars {
		vix, ok := volByDate[b.date.Format("2006-01-02")]
		if !ok {
			continue
		}
		bars = append(bars, series.Bar{
			Date:   b.date,
			Open:   b.open,
			High:   b.high,
			Low:    b.low,
			Close:  b.close_,
			Volume: b.volume,
			VIX:    vix,
		})
	}
	return bars, nil
}

// fetchDaily pulls daily bars for one symbol, retrying transient failures
// with linear backoff.
func (c *Client) fetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]dailyBar, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)
		var bars []dailyBar
		for iter.Next() {
			b := iter.Bar()
			bars = append(bars, dailyBar{
				date:   time.Unix(int64(b.Timestamp), 0).UTC().Truncate(24 * time.Hour),
				open:   toFloat(b.Open),
				high:   toFloat(b.High),
				low:    toFloat(b.Low),
				close_: toFloat(b.Close),
				volume: float64(b.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			lastErr = err
			c.backoff(attempt)
			continue
		}
		if len(bars) == 0 {
			lastErr = fmt.Errorf("no bars returned for %s", symbol)
			c.backoff(attempt)
			continue
		}
		return bars, nil
	}
	return nil, fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// backoff sleeps between attempts; the last attempt returns immediately.
func (c *Client) backoff(attempt int) {
	if attempt >= c.maxRetries-1 {
		return
	}
	time.Sleep(c.retryDelayBase * time.Duration(attempt+1))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
