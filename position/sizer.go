package position

// Observation is the market snapshot fed to the smart sizer
type Observation struct {
	ATRRatio        float64
	ADX             float64
	ConfidenceLevel int
	PnLRatio        float64
	Sentiment       float64
}

// Sizing clamp bounds
const (
	minSizeRatio = 0.1
	maxSizeRatio = 1.0
)

// SmartSize returns the position size ratio in [0.1, 1.0] from a
// rule-based heuristic: volatility and chop reduce size, strong trend
// and conviction increase it, extreme sentiment cuts it back.
// The global risk factor multiplies the result after clamping.
func SmartSize(obs Observation, globalRiskFactor float64) float64 {
	ratio := 1.0

	// Volatility: both panic and dead tape argue for less size
	if obs.ATRRatio > 2.0 {
		ratio *= 0.5
	} else if obs.ATRRatio < 0.8 {
		ratio *= 0.8
	}

	// Trend strength
	if obs.ADX > 50 {
		ratio *= 1.2
	} else if obs.ADX < 20 {
		ratio *= 0.6
	}

	// Sentiment extremes
	limit := maxSizeRatio
	if obs.Sentiment > 80 {
		ratio *= 0.6
	} else if obs.Sentiment < 20 {
		ratio *= 0.3
		limit = 0.5
	}
	if ratio > limit {
		ratio = limit
	}

	// Conviction
	if obs.ConfidenceLevel >= 3 {
		ratio *= 1.2
	} else if obs.ConfidenceLevel <= 1 {
		ratio *= 0.5
	}

	if ratio < minSizeRatio {
		ratio = minSizeRatio
	}
	if ratio > maxSizeRatio {
		ratio = maxSizeRatio
	}

	if globalRiskFactor > 0 && globalRiskFactor < 1 {
		ratio *= globalRiskFactor
	}
	return ratio
}
