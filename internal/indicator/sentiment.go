package indicator

// Sentiment proxy bounds; real put/call ratios live in this range.
const (
	SentimentFloor   = 0.3
	SentimentCeiling = 2.5
)

// SentimentProxy derives a put/call-ratio-like scalar from the current
// volatility index level and the trailing 5-day average return. Higher
// volatility and negative momentum both push the proxy up. This stands in
// for real options-market data; a future source can replace it without
// touching the signal combiner.
func SentimentProxy(vix, avgReturn5d float64) float64 {
	proxy := 0.8 + (vix/20-1)*0.3 - avgReturn5d*10
	if proxy < SentimentFloor {
		return SentimentFloor
	}
	if proxy > SentimentCeiling {
		return SentimentCeiling
	}
	return proxy
}
