package core

import "time"

// Candle represents one OHLCV bar of a symbol/timeframe pair
type Candle struct {
	Symbol    string
	Timeframe string
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Complete  bool

	// Indicator values attached by the market pipeline
	Metadata map[string]float64
}

// Bullish reports whether the candle closed above its open
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Meta returns a metadata value, or def when absent or NaN-stripped
func (c Candle) Meta(key string, def float64) float64 {
	if v, ok := c.Metadata[key]; ok {
		return v
	}
	return def
}
