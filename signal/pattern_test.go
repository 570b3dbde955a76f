package signal

import (
	"testing"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/stretchr/testify/require"
)

// buildFrame assembles an indicator frame from explicit OHLCV rows
func buildFrame(adx float64, rows [][5]float64) *core.IndicatorFrame {
	n := len(rows)
	frame := &core.IndicatorFrame{
		Symbol:    "ETH/USDT:USDT",
		Timeframe: "15m",
		Time:      make([]time.Time, n),
		Open:      make(core.Series[float64], n),
		High:      make(core.Series[float64], n),
		Low:       make(core.Series[float64], n),
		Close:     make(core.Series[float64], n),
		Volume:    make(core.Series[float64], n),
		ADX:       make(core.Series[float64], n),
	}
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range rows {
		frame.Time[i] = t0.Add(time.Duration(i) * 15 * time.Minute)
		frame.Open[i] = r[0]
		frame.High[i] = r[1]
		frame.Low[i] = r[2]
		frame.Close[i] = r[3]
		frame.Volume[i] = r[4]
		frame.ADX[i] = adx
	}
	return frame
}

// Three falling bears engulfed by a heavy-volume bull
var bullishStrikeRows = [][5]float64{
	{105, 106, 103.5, 104, 100}, // o h l c v
	{104, 104.5, 101.5, 102, 120},
	{102, 102.5, 98, 99, 110},
	{99, 106.5, 98.5, 106, 200},
}

func TestDetectThreeLineStrikeBullish(t *testing.T) {
	frame := buildFrame(25, bullishStrikeRows)

	ps := DetectThreeLineStrike(frame)
	require.Equal(t, PatternBullishStrike, ps.Pattern)
	require.True(t, ps.Bullish())

	require.Equal(t, 106.0, ps.Entry)
	// Stop is the lowest low of all four bars
	require.Equal(t, 98.0, ps.StopLoss)
	// Target is entry plus five times the risk
	require.Equal(t, 106.0+5*(106.0-98.0), ps.TakeProfit)
}

func TestDetectThreeLineStrikeBearish(t *testing.T) {
	rows := [][5]float64{
		{100, 102, 99.5, 101.5, 100},
		{101.5, 104, 101, 103.5, 90},
		{103.5, 106, 103, 105.5, 95},
		{105.5, 106.5, 98.5, 99, 300},
	}
	frame := buildFrame(25, rows)

	ps := DetectThreeLineStrike(frame)
	require.Equal(t, PatternBearishStrike, ps.Pattern)
	require.True(t, ps.Bearish())
	require.Equal(t, 99.0, ps.Entry)
	require.Equal(t, 106.5, ps.StopLoss)
	require.Equal(t, 99.0-5*(106.5-99.0), ps.TakeProfit)
}

func TestDetectThreeLineStrikeNeedsVolumeSpike(t *testing.T) {
	rows := make([][5]float64, 4)
	copy(rows, bullishStrikeRows)
	rows[3][4] = 110 // engulfing bar below max prior volume

	ps := DetectThreeLineStrike(buildFrame(25, rows))
	require.Equal(t, PatternNone, ps.Pattern)
}

func TestDetectThreeLineStrikeNeedsTrendEnergy(t *testing.T) {
	ps := DetectThreeLineStrike(buildFrame(15, bullishStrikeRows))
	require.Equal(t, PatternNone, ps.Pattern)
}

func TestDetectThreeLineStrikeShortFrame(t *testing.T) {
	ps := DetectThreeLineStrike(buildFrame(25, bullishStrikeRows[:3]))
	require.Equal(t, PatternNone, ps.Pattern)
	require.Equal(t, PatternNone, DetectThreeLineStrike(nil).Pattern)
}
