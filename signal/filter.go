// Package signal applies technical filters and candlestick pattern
// recognition on top of the indicator pipeline.
package signal

import (
	"fmt"
	"strings"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
)

// Soft-filter thresholds for confidence downgrades
const (
	lowVolatilityRatio = 1.0
	lowVolumeRatio     = 0.8
)

// FilterResult is the outcome of the technical soft filter
type FilterResult struct {
	Allow bool
	Notes []string
}

// Downgraded reports whether enough soft conditions fired to cap the
// decision confidence at LOW
func (r FilterResult) Downgraded() bool {
	return len(r.Notes) >= 2
}

// CheckFilter evaluates a proposed trade direction against the
// indicator frame. Extreme RSI denies the trade outright; weak
// volatility, volume or trend only append downgrade notes.
func CheckFilter(direction core.Signal, frame *core.IndicatorFrame, gate config.SignalGateConfig) FilterResult {
	result := FilterResult{Allow: true}
	if frame == nil || frame.Len() == 0 {
		return result
	}

	rsi := frame.RSI.Last(0)
	if direction == core.SignalBuy && rsi > gate.RSIMax {
		result.Allow = false
		result.Notes = append(result.Notes, fmt.Sprintf("RSI %.1f overbought, refusing to chase", rsi))
		return result
	}
	if direction == core.SignalSell && rsi < gate.RSIMin {
		result.Allow = false
		result.Notes = append(result.Notes, fmt.Sprintf("RSI %.1f oversold, refusing to chase", rsi))
		return result
	}

	if frame.ATRRatio.Last(0) < lowVolatilityRatio {
		result.Notes = append(result.Notes, "low volatility")
	}
	if frame.VolRatio.Last(0) < lowVolumeRatio {
		result.Notes = append(result.Notes, "thin volume")
	}
	if frame.ADX.Last(0) < gate.ADXMin {
		result.Notes = append(result.Notes, "weak trend")
	}
	return result
}

// ApplyFilter runs the soft filter over an advisor decision in place.
// A denied direction becomes HOLD; accumulated downgrade notes cap the
// confidence at LOW and are appended to the reason.
func ApplyFilter(d *core.Decision, frame *core.IndicatorFrame, gate config.SignalGateConfig) {
	if d == nil || !d.Actionable() {
		return
	}

	result := CheckFilter(d.Signal, frame, gate)
	if !result.Allow {
		d.Signal = core.SignalHold
		d.Reason = joinReason(d.Reason, result.Notes)
		return
	}
	if len(result.Notes) > 0 {
		d.Reason = joinReason(d.Reason, result.Notes)
		if result.Downgraded() {
			d.Confidence = core.ConfidenceLow
		}
	}
}

func joinReason(reason string, notes []string) string {
	note := strings.Join(notes, "; ")
	if reason == "" {
		return note
	}
	return reason + " [" + note + "]"
}

// Surge detection thresholds for the soft-gate override
const (
	surgeVolumeRatio = 3.0
	surgeMovePct     = 0.005
)

// IsSurge reports whether the latest bar shows a volume spike or an
// outsized intra-bar move that should bypass the soft gate
func IsSurge(frame *core.IndicatorFrame) bool {
	if frame == nil || frame.Len() == 0 {
		return false
	}
	if frame.VolRatio.Last(0) > surgeVolumeRatio {
		return true
	}
	open := frame.Open.Last(0)
	if open == 0 {
		return false
	}
	move := (frame.Close.Last(0) - open) / open
	if move < 0 {
		move = -move
	}
	return move > surgeMovePct
}
