package market

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// windowSizes maps a timeframe to the candle window handed to the
// indicator pipeline. Shorter frames get wider windows.
var windowSizes = map[string]int{
	"1m":  60,
	"5m":  36,
	"15m": 32,
	"1h":  24,
	"4h":  24,
	"1d":  14,
}

const minWindowSize = 10

// ParseTimeframe converts a timeframe label like "15m" or "4h" into
// a duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q: non-positive duration", timeframe)
	}
	return d, nil
}

// WindowSize returns the candle window length for a timeframe
func WindowSize(timeframe string) int {
	if n, ok := windowSizes[timeframe]; ok {
		return n
	}
	return minWindowSize
}

// FloorToGrid aligns a timestamp to the timeframe grid in UTC
func FloorToGrid(t time.Time, timeframe time.Duration) time.Time {
	return t.UTC().Truncate(timeframe)
}
