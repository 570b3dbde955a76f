// Package position resolves open positions and drives the dynamic
// risk engine: trailing stop, partial take-profit staging and the
// smart sizing heuristic.
package position

import "github.com/cryptooracle/oraclebot/core"

// Partial take-profit stages, single-shot per position lifecycle
const (
	partialTP1Trigger = 0.05
	partialTP2Trigger = 0.10
	partialTPFraction = 0.30

	// After a partial close the peak reference is pulled back so the
	// remainder re-tracks from a fresh anchor
	trailingResetFactor = 0.7
)

// ActionKind classifies what the risk engine wants done this tick
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPartialClose
	ActionFullClose
)

// Action is the trailing engine verdict for one monitor tick
type Action struct {
	Kind     ActionKind
	Fraction float64
	Stage    int
	Reason   string
}

// TrailingConfig tunes the trailing stop engine
type TrailingConfig struct {
	Enabled      bool
	Activation   float64
	BaseCallback float64
}

// atrCallback picks the callback rate for the current volatility.
// Wide markets get room to breathe, dead markets get a hair trigger.
func atrCallback(base, atrRatio float64) float64 {
	switch {
	case atrRatio > 2.0:
		return 0.025
	case atrRatio > 1.5:
		return 0.015
	case atrRatio < 0.8:
		return 0.003
	default:
		return base
	}
}

// profitCompression tightens the callback as unrealized profit grows
func profitCompression(pnlRatio float64) float64 {
	switch {
	case pnlRatio >= 1.0:
		return 0.05
	case pnlRatio >= 0.5:
		return 0.1
	case pnlRatio >= 0.2:
		return 0.2
	case pnlRatio >= 0.1:
		return 0.4
	case pnlRatio >= 0.05:
		return 0.6
	case pnlRatio >= 0.02:
		return 0.8
	default:
		return 1.0
	}
}

// DynamicCallback returns the allowed drawdown from the profit peak
func DynamicCallback(base, atrRatio, pnlRatio float64) float64 {
	return atrCallback(base, atrRatio) * profitCompression(pnlRatio)
}

// CheckTrailing advances the dynamic risk state for one monitor tick
// and returns the action to take. Partial take-profit is evaluated
// before the trailing exit. The peak never decreases except through
// the explicit post-partial reset.
func CheckTrailing(state *core.DynamicRisk, pnlRatio, atrRatio float64, cfg TrailingConfig) Action {
	if !cfg.Enabled {
		return Action{Kind: ActionNone}
	}

	if pnlRatio > state.TrailingMaxPnL {
		state.TrailingMaxPnL = pnlRatio
	}

	if pnlRatio >= partialTP1Trigger && !state.PartialTP1Done {
		state.PartialTP1Done = true
		state.TrailingMaxPnL = pnlRatio * trailingResetFactor
		return Action{
			Kind:     ActionPartialClose,
			Fraction: partialTPFraction,
			Stage:    1,
			Reason:   "partial take-profit +5%",
		}
	}

	if pnlRatio >= partialTP2Trigger && state.PartialTP1Done && !state.PartialTP2Done {
		state.PartialTP2Done = true
		state.TrailingMaxPnL = pnlRatio * trailingResetFactor
		return Action{
			Kind:     ActionPartialClose,
			Fraction: partialTPFraction,
			Stage:    2,
			Reason:   "partial take-profit +10%",
		}
	}

	if state.TrailingMaxPnL >= cfg.Activation {
		callback := DynamicCallback(cfg.BaseCallback, atrRatio, pnlRatio)
		if state.TrailingMaxPnL-pnlRatio >= callback {
			return Action{
				Kind:   ActionFullClose,
				Reason: "trailing stop: drawdown from peak exceeded callback",
			}
		}
	}

	return Action{Kind: ActionNone}
}
