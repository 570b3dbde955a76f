package market

import (
	"context"
	"testing"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Debug(args ...interface{})                   {}
func (testLogger) Debugf(format string, args ...interface{})   {}
func (testLogger) Info(args ...interface{})                    {}
func (testLogger) Infof(format string, args ...interface{})    {}
func (testLogger) Warn(args ...interface{})                    {}
func (testLogger) Warnf(format string, args ...interface{})    {}
func (testLogger) Error(args ...interface{})                   {}
func (testLogger) Errorf(format string, args ...interface{})   {}
func (l testLogger) WithFields(fields core.Fields) core.Logger { return l }

// trendFeeder serves a steady uptrend from memory
type trendFeeder struct {
	candles []core.Candle
}

func (f *trendFeeder) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	if limit >= len(f.candles) {
		return f.candles, nil
	}
	return f.candles[len(f.candles)-limit:], nil
}

func (f *trendFeeder) Ticker(ctx context.Context, symbol string) (core.Ticker, error) {
	return core.Ticker{}, nil
}

func (f *trendFeeder) AssetInfo(ctx context.Context, symbol string) (core.AssetInfo, error) {
	return core.AssetInfo{}, nil
}

func (f *trendFeeder) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func bar(t time.Time, close, volume float64) core.Candle {
	return core.Candle{
		Symbol:    "BTC/USDT:USDT",
		Timeframe: "15m",
		Time:      t,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    volume,
		Complete:  true,
	}
}

func TestMergeFreshWinsAndSortsAscending(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(15 * time.Minute)

	local := []core.Candle{bar(t1, 90, 1), bar(t0, 100, 1)}
	fresh := []core.Candle{bar(t1, 95, 2)}

	out := Merge(local, fresh)
	require.Len(t, out, 2)
	require.True(t, out[0].Time.Before(out[1].Time))
	require.Equal(t, 100.0, out[0].Close)
	// The venue copy replaces the stored unfinished bar
	require.Equal(t, 95.0, out[1].Close)
	require.Equal(t, 2.0, out[1].Volume)
}

func TestMergeIsIdempotent(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	fresh := []core.Candle{bar(t0, 100, 1), bar(t0.Add(15*time.Minute), 101, 1)}

	once := Merge(nil, fresh)
	twice := Merge(once, fresh)
	require.Equal(t, once, twice)
}

func TestNormalizeFillsGapsWithDoji(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	candles := []core.Candle{
		bar(t0, 100, 5),
		// Two bars missing here
		bar(t0.Add(45*time.Minute), 110, 5),
	}

	out := Normalize(candles, 15*time.Minute)
	require.Len(t, out, 4)

	for _, filler := range out[1:3] {
		require.Equal(t, 100.0, filler.Open)
		require.Equal(t, 100.0, filler.Close)
		require.Zero(t, filler.Volume)
	}
	require.Equal(t, t0.Add(15*time.Minute), out[1].Time)
	require.Equal(t, t0.Add(30*time.Minute), out[2].Time)
}

func TestNormalizeAlignsJitteredTimestamps(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	candles := []core.Candle{bar(t0.Add(3*time.Second), 100, 1)}

	out := Normalize(candles, 15*time.Minute)
	require.Len(t, out, 1)
	require.Equal(t, t0, out[0].Time)
}

func TestCleanOutliersReplacesSpike(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]core.Candle, 0, 25)
	for i := 0; i < 25; i++ {
		close := 100.0 + float64(i%3) // stable tape with tiny wiggle
		if i == 22 {
			close = 500 // flash spike
		}
		candles = append(candles, bar(t0.Add(time.Duration(i)*15*time.Minute), close, 1))
	}

	out := CleanOutliers(candles)
	require.Less(t, out[22].Close, 110.0)
	require.GreaterOrEqual(t, out[22].High, out[22].Close)
	require.LessOrEqual(t, out[22].Low, out[22].Close)
	// Input is not mutated
	require.Equal(t, 500.0, candles[22].Close)
}

func TestCleanOutliersShortWindowUntouched(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candles := []core.Candle{bar(t0, 100, 1), bar(t0.Add(15*time.Minute), 9999, 1)}
	out := CleanOutliers(candles)
	require.Equal(t, candles, out)
}

func TestWindowSize(t *testing.T) {
	require.Equal(t, 60, WindowSize("1m"))
	require.Equal(t, 32, WindowSize("15m"))
	require.Equal(t, 14, WindowSize("1d"))
	require.Equal(t, minWindowSize, WindowSize("3m"))
}

func TestSnapshotWarmsUpIndicators(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	feeder := &trendFeeder{}
	price := 100.0
	for i := 0; i < 120; i++ {
		open := price
		price *= 1.02
		feeder.candles = append(feeder.candles, core.Candle{
			Symbol:    "BTC/USDT:USDT",
			Timeframe: "1h",
			Time:      t0.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      price,
			Low:       open,
			Close:     price,
			Volume:    10,
			Complete:  true,
		})
	}

	p := NewPipeline(feeder, nil, testLogger{})
	frame, err := p.Snapshot(context.Background(), "BTC/USDT:USDT", "1h")
	require.NoError(t, err)

	// The frame is trimmed to the display window but the indicators
	// were computed over the full warmup history
	require.Equal(t, WindowSize("1h"), frame.Len())
	require.Greater(t, frame.ADX.Last(0), 30.0)
	require.NotZero(t, frame.MACD.Last(0))
	require.NotZero(t, frame.MACDSignal.Last(0))
	require.Equal(t, core.RegimeHighTrend, frame.Regime)
}

func TestParseTimeframe(t *testing.T) {
	d, err := ParseTimeframe("15m")
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, d)

	d, err = ParseTimeframe("4h")
	require.NoError(t, err)
	require.Equal(t, 4*time.Hour, d)

	_, err = ParseTimeframe("banana")
	require.Error(t, err)
}
