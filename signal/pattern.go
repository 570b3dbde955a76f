package signal

import "github.com/cryptooracle/oraclebot/core"

// Pattern identifies a recognized candlestick pattern
type Pattern string

const (
	PatternNone          Pattern = ""
	PatternBullishStrike Pattern = "BULLISH_STRIKE"
	PatternBearishStrike Pattern = "BEARISH_STRIKE"
)

// Risk/reward multiple for pattern targets. Intentionally generous,
// the trailing stop is expected to realize profit first.
const strikeRewardMultiple = 5.0

// Pattern evaluation requires at least this much directional energy
const patternMinADX = 20.0

// PatternSignal is a recognized pattern with its derived price levels
type PatternSignal struct {
	Pattern    Pattern
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// Bullish reports whether the pattern argues for a long entry
func (p PatternSignal) Bullish() bool { return p.Pattern == PatternBullishStrike }

// Bearish reports whether the pattern argues for a short entry
func (p PatternSignal) Bearish() bool { return p.Pattern == PatternBearishStrike }

// DetectThreeLineStrike scans the last four bars of the frame for a
// three-line strike reversal. Three same-direction bars making
// successive extremes must be engulfed by a fourth bar closing beyond
// the first bar's open on volume exceeding the max of the prior three.
// Only evaluated when ADX >= 20.
func DetectThreeLineStrike(frame *core.IndicatorFrame) PatternSignal {
	none := PatternSignal{Pattern: PatternNone}
	if frame == nil || frame.Len() < 4 {
		return none
	}
	if len(frame.ADX) > 0 && frame.ADX.Last(0) < patternMinADX {
		return none
	}

	c := frame.Candles(4)
	c1, c2, c3, c4 := c[0], c[1], c[2], c[3]

	maxPriorVolume := c1.Volume
	if c2.Volume > maxPriorVolume {
		maxPriorVolume = c2.Volume
	}
	if c3.Volume > maxPriorVolume {
		maxPriorVolume = c3.Volume
	}
	if c4.Volume <= maxPriorVolume {
		return none
	}

	// Bullish strike: three bears stepping down, engulfed by a bull
	if c1.Bearish() && c2.Bearish() && c3.Bearish() &&
		c2.Low < c1.Low && c3.Low < c2.Low &&
		c4.Bullish() && c4.Close > c1.Open {
		sl := minOf(c1.Low, c2.Low, c3.Low, c4.Low)
		entry := c4.Close
		return PatternSignal{
			Pattern:    PatternBullishStrike,
			Entry:      entry,
			StopLoss:   sl,
			TakeProfit: entry + strikeRewardMultiple*(entry-sl),
		}
	}

	// Bearish strike: three bulls stepping up, engulfed by a bear
	if c1.Bullish() && c2.Bullish() && c3.Bullish() &&
		c2.High > c1.High && c3.High > c2.High &&
		c4.Bearish() && c4.Close < c1.Open {
		sl := maxOf(c1.High, c2.High, c3.High, c4.High)
		entry := c4.Close
		return PatternSignal{
			Pattern:    PatternBearishStrike,
			Entry:      entry,
			StopLoss:   sl,
			TakeProfit: entry - strikeRewardMultiple*(sl-entry),
		}
	}

	return none
}

func minOf(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
