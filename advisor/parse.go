package advisor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cryptooracle/oraclebot/core"
)

// rawDecision tolerates the field sloppiness LLMs produce: numerics
// may arrive as strings, confidence in any casing.
type rawDecision struct {
	Signal     string          `json:"signal"`
	Confidence string          `json:"confidence"`
	Amount     json.RawMessage `json:"amount"`
	StopLoss   json.RawMessage `json:"stop_loss"`
	TakeProfit json.RawMessage `json:"take_profit"`
	Reason     string          `json:"reason"`
	Summary    string          `json:"summary"`
}

// ParseDecision extracts and normalizes the JSON decision from a raw
// model response. Markdown fences and surrounding prose are stripped
// by locating the first '{' and the last '}'. A missing amount falls
// back to defaultAmount; an explicit 0 is preserved (close-only).
func ParseDecision(content string, defaultAmount float64) (core.Decision, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return core.Decision{}, &core.ParseError{Raw: content, Err: fmt.Errorf("no JSON object found")}
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return core.Decision{}, &core.ParseError{Raw: content, Err: err}
	}

	decision := core.Decision{
		Confidence: core.NormalizeConfidence(raw.Confidence),
		Reason:     strings.TrimSpace(raw.Reason),
		Summary:    strings.TrimSpace(raw.Summary),
		StopLoss:   coerceFloat(raw.StopLoss, 0),
		TakeProfit: coerceFloat(raw.TakeProfit, 0),
		Source:     "advisor",
	}

	switch strings.ToUpper(strings.TrimSpace(raw.Signal)) {
	case "BUY", "LONG":
		decision.Signal = core.SignalBuy
	case "SELL", "SHORT":
		decision.Signal = core.SignalSell
	case "HOLD", "WAIT", "":
		decision.Signal = core.SignalHold
	default:
		return core.Decision{}, &core.ParseError{Raw: content, Err: fmt.Errorf("unknown signal %q", raw.Signal)}
	}

	if raw.Amount == nil {
		decision.Amount = defaultAmount
	} else {
		decision.Amount = coerceFloat(raw.Amount, defaultAmount)
	}
	if decision.Amount < 0 {
		decision.Amount = defaultAmount
	}

	return decision, nil
}

// extractJSON cuts the first top-level JSON object out of free text
func extractJSON(content string) string {
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// coerceFloat accepts a JSON number, a numeric string, or null
func coerceFloat(raw json.RawMessage, def float64) float64 {
	if raw == nil {
		return def
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return def
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
