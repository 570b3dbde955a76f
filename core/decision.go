package core

import "strings"

// Signal is the advised trade direction
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Confidence grades how strongly the advisor backs a signal
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Level maps confidence to an ordinal 1..3, unknown values rank lowest
func (c Confidence) Level() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 1
}

// NormalizeConfidence coerces free-form advisor output to a known grade
func NormalizeConfidence(s string) Confidence {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "H", "3":
		return ConfidenceHigh
	case "MEDIUM", "MED", "M", "2":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Decision is a normalized advisor verdict for one symbol
type Decision struct {
	Signal     Signal     `json:"signal"`
	Confidence Confidence `json:"confidence"`
	Amount     float64    `json:"amount"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Reason     string     `json:"reason"`
	Summary    string     `json:"summary"`

	// Source marks where the decision came from (advisor, pattern, risk)
	Source string `json:"source,omitempty"`
}

// Actionable reports whether the decision requests a trade
func (d Decision) Actionable() bool {
	return d.Signal == SignalBuy || d.Signal == SignalSell
}
