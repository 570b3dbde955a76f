package market

import "github.com/cryptooracle/oraclebot/core"

// Regime classification thresholds
const (
	trendADXThreshold  = 30.0
	choppyATRThreshold = 1.5
	lowATRThreshold    = 0.6
)

// Classify maps the latest indicator values to a market regime.
// Trend beats chop: a strongly directional market is HIGH_TREND even
// when the ATR ratio is elevated.
func Classify(frame *core.IndicatorFrame) core.Regime {
	if frame == nil || frame.Len() == 0 {
		return core.RegimeNormal
	}

	adx := 0.0
	if len(frame.ADX) > 0 {
		adx = frame.ADX.Last(0)
	}
	atrRatio := neutralRatio
	if len(frame.ATRRatio) > 0 {
		atrRatio = frame.ATRRatio.Last(0)
	}

	switch {
	case adx > trendADXThreshold:
		return core.RegimeHighTrend
	case atrRatio > choppyATRThreshold:
		return core.RegimeHighChoppy
	case atrRatio < lowATRThreshold:
		return core.RegimeLow
	default:
		return core.RegimeNormal
	}
}
