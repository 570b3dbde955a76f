package market

import (
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/markcheno/go-talib"
)

const (
	rsiPeriod      = 14
	adxPeriod      = 14
	atrPeriod      = 14
	bbPeriod       = 20
	bbDeviation    = 2.0
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	atrMeanPeriod  = 50
	volMeanPeriod  = 20
	buyPropPeriod  = 5
	neutralRSI     = 50.0
	neutralRatio   = 1.0
	neutralBuyProp = 0.5
)

// ComputeIndicators builds an IndicatorFrame from an ascending candle
// window. RSI, ADX and ATR use Wilder smoothing; Bollinger is
// SMA20 +/- 2 sigma. Warmup rows are filled with domain neutrals.
func ComputeIndicators(symbol, timeframe string, candles []core.Candle) *core.IndicatorFrame {
	n := len(candles)
	frame := &core.IndicatorFrame{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Time:       make([]time.Time, n),
		Open:       make(core.Series[float64], n),
		High:       make(core.Series[float64], n),
		Low:        make(core.Series[float64], n),
		Close:      make(core.Series[float64], n),
		Volume:     make(core.Series[float64], n),
		LastUpdate: time.Now().UTC(),
	}
	for i, c := range candles {
		frame.Time[i] = c.Time
		frame.Open[i] = c.Open
		frame.High[i] = c.High
		frame.Low[i] = c.Low
		frame.Close[i] = c.Close
		frame.Volume[i] = c.Volume
	}

	if n == 0 {
		return frame
	}

	closes := frame.Close.Values()
	highs := frame.High.Values()
	lows := frame.Low.Values()
	volumes := frame.Volume.Values()

	if n > rsiPeriod {
		frame.RSI = fillWarmup(talib.Rsi(closes, rsiPeriod), rsiPeriod, neutralRSI)
	} else {
		frame.RSI = constantSeries(n, neutralRSI)
	}

	if n > macdSlow+macdSignal {
		macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		frame.MACD = macd
		frame.MACDSignal = signal
		frame.MACDHist = hist
	} else {
		frame.MACD = constantSeries(n, 0)
		frame.MACDSignal = constantSeries(n, 0)
		frame.MACDHist = constantSeries(n, 0)
	}

	if n >= bbPeriod {
		upper, middle, lower := talib.BBands(closes, bbPeriod, bbDeviation, bbDeviation, talib.SMA)
		frame.BBUpper = upper
		frame.BBMiddle = middle
		frame.BBLower = lower
	} else {
		frame.BBUpper = append(core.Series[float64]{}, closes...)
		frame.BBMiddle = append(core.Series[float64]{}, closes...)
		frame.BBLower = append(core.Series[float64]{}, closes...)
	}

	if n > adxPeriod*2 {
		frame.ADX = talib.Adx(highs, lows, closes, adxPeriod)
	} else {
		frame.ADX = constantSeries(n, 0)
	}

	if n > atrPeriod {
		frame.ATR = talib.Atr(highs, lows, closes, atrPeriod)
	} else {
		frame.ATR = constantSeries(n, 0)
	}

	frame.ATRRatio = ratioToRollingMean(frame.ATR, atrMeanPeriod)
	frame.VolRatio = ratioToRollingMean(frame.Volume, volMeanPeriod)
	frame.OBV = talib.Obv(closes, volumes)
	frame.BuyVolProp = buyVolumeProportion(frame)

	return frame
}

// fillWarmup replaces the indicator warmup zeros with a neutral value
func fillWarmup(values []float64, period int, neutral float64) core.Series[float64] {
	out := make(core.Series[float64], len(values))
	copy(out, values)
	for i := 0; i < period && i < len(out); i++ {
		out[i] = neutral
	}
	return out
}

func constantSeries(n int, v float64) core.Series[float64] {
	out := make(core.Series[float64], n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ratioToRollingMean divides each value by the mean of the trailing
// window, skipping zero warmup entries. A zero denominator yields the
// neutral ratio 1.0.
func ratioToRollingMean(values core.Series[float64], window int) core.Series[float64] {
	out := make(core.Series[float64], len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		var count int
		for j := start; j <= i; j++ {
			if values[j] > 0 {
				sum += values[j]
				count++
			}
		}
		if count == 0 || sum == 0 {
			out[i] = neutralRatio
			continue
		}
		out[i] = values[i] / (sum / float64(count))
	}
	return out
}

// buyVolumeProportion computes the share of up-bar volume over the
// trailing window, defaulting to 0.5 when no volume traded
func buyVolumeProportion(frame *core.IndicatorFrame) core.Series[float64] {
	n := frame.Len()
	out := make(core.Series[float64], n)
	for i := 0; i < n; i++ {
		start := i - buyPropPeriod + 1
		if start < 0 {
			start = 0
		}
		var up, total float64
		for j := start; j <= i; j++ {
			total += frame.Volume[j]
			if frame.Close[j] >= frame.Open[j] {
				up += frame.Volume[j]
			}
		}
		if total == 0 {
			out[i] = neutralBuyProp
			continue
		}
		out[i] = up / total
	}
	return out
}
