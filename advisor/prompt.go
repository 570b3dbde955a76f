package advisor

import (
	"fmt"
	"strings"

	"github.com/cryptooracle/oraclebot/core"
)

// Number of recent bars included in the prompt context
const promptCandleCount = 10

// personas are the system prompts keyed by market regime. Each shapes
// risk appetite and filter strictness for the decision.
var personas = map[core.Regime]string{
	core.RegimeHighTrend: `You are a disciplined trend-following futures trader.
The market is in a strong directional move (high ADX). Ride the trend, never fade it.
Prefer entries on pullbacks in the trend direction. Cut losers fast, let winners run.
Avoid counter-trend trades entirely unless a clear reversal structure has printed.`,

	core.RegimeHighChoppy: `You are a defensive trader in a violent, directionless market.
Volatility is elevated but there is no trend. Whipsaws are likely. Favor HOLD.
Only trade clear exhaustion extremes with tight stops and reduced size.
Capital preservation outranks opportunity here.`,

	core.RegimeLow: `You are a patient grid-style accumulator in a quiet market.
Volatility is compressed. Small oscillations around value are tradeable; breakouts are rare.
Buying weakness near the lower band is acceptable with small size. Take profits early.
Never use wide stops in this regime.`,

	core.RegimeNormal: `You are a balanced intraday crypto trader.
The market shows ordinary volatility and no dominant trend. Trade only clean setups
where indicators and price action agree. When in doubt, HOLD.`,
}

// decisionSchema is the strict output contract appended to every prompt
const decisionSchema = `Respond with ONLY a JSON object, no other text:
{
  "signal": "BUY" | "SELL" | "HOLD",
  "confidence": "LOW" | "MEDIUM" | "HIGH",
  "amount": <base currency amount, 0 means close-only do not reverse>,
  "stop_loss": <price or 0>,
  "take_profit": <price or 0>,
  "reason": "<detailed reasoning>",
  "summary": "<one line summary>"
}`

// BuildPrompt assembles the system persona and the market context
// message for an advisor request
func BuildPrompt(req core.AdvisorRequest) (system, user string) {
	system, ok := personas[req.Regime]
	if !ok {
		system = personas[core.RegimeNormal]
	}

	var sb strings.Builder
	frame := req.Frame

	fmt.Fprintf(&sb, "Symbol: %s (%s candles)\n", req.Symbol, frame.Timeframe)
	fmt.Fprintf(&sb, "Market regime: %s\n", req.Regime)
	fmt.Fprintf(&sb, "Current price: %.6f\n", frame.LastPrice())

	if req.Position != nil {
		fmt.Fprintf(&sb, "Open position: %s %.6f @ %.6f, unrealized pnl %.2f (%.2f%%)\n",
			req.Position.Side, req.Position.CoinSize, req.Position.EntryPrice,
			req.Position.UnrealizedPnL, req.PnLRatio*100)
	} else {
		sb.WriteString("Open position: none\n")
	}
	if req.Equity > 0 {
		fmt.Fprintf(&sb, "Account equity: %.2f USDT\n", req.Equity)
	}
	fmt.Fprintf(&sb, "Funding rate: %.4f%%\n", req.FundingRate*100)
	fmt.Fprintf(&sb, "BTC 24h change: %+.2f%%\n", req.BTCChange24h*100)
	if req.MinLot > 0 {
		fmt.Fprintf(&sb, "Minimum order: %.8f base (%.2f USDT notional)\n", req.MinLot, req.MinNotional)
	}
	fmt.Fprintf(&sb, "Market sentiment score: %.0f/100\n", req.Sentiment)
	if req.PatternHint != "" {
		fmt.Fprintf(&sb, "Candlestick pattern: %s\n", req.PatternHint)
	}
	if req.Surge {
		sb.WriteString("ALERT: abnormal volume/price surge on the latest bar\n")
	}

	sb.WriteString("\nIndicators:\n")
	fmt.Fprintf(&sb, "  RSI(14): %.2f\n", lastOf(frame.RSI))
	fmt.Fprintf(&sb, "  MACD: %.6f signal %.6f hist %.6f%s\n",
		lastOf(frame.MACD), lastOf(frame.MACDSignal), lastOf(frame.MACDHist), macdCrossTag(frame))
	fmt.Fprintf(&sb, "  Bollinger: upper %.6f middle %.6f lower %.6f\n",
		lastOf(frame.BBUpper), lastOf(frame.BBMiddle), lastOf(frame.BBLower))
	fmt.Fprintf(&sb, "  ADX(14): %.2f\n", lastOf(frame.ADX))
	fmt.Fprintf(&sb, "  ATR ratio: %.2f, volume ratio: %.2f, buy-volume share: %.2f\n",
		lastOf(frame.ATRRatio), lastOf(frame.VolRatio), lastOf(frame.BuyVolProp))

	sb.WriteString("\nRecent candles (oldest first):\n")
	for _, c := range frame.Candles(promptCandleCount) {
		tag := ""
		if c.Volume > 0 && lastOf(frame.VolRatio) > 0 {
			tag = volumeTag(c.Volume, frame)
		}
		fmt.Fprintf(&sb, "  %s O:%.6f H:%.6f L:%.6f C:%.6f V:%.2f%s\n",
			c.Time.Format("01-02 15:04"), c.Open, c.High, c.Low, c.Close, c.Volume, tag)
	}

	sb.WriteString("\n")
	sb.WriteString(decisionSchema)
	return system, sb.String()
}

// macdCrossTag flags a MACD/signal cross completing on the latest bar
func macdCrossTag(frame *core.IndicatorFrame) string {
	if len(frame.MACD) < 2 || len(frame.MACDSignal) < 2 {
		return ""
	}
	if frame.MACD.Crossover(frame.MACDSignal) {
		return " [bullish cross]"
	}
	if frame.MACD.Crossunder(frame.MACDSignal) {
		return " [bearish cross]"
	}
	return ""
}

func lastOf(s core.Series[float64]) float64 {
	if len(s) == 0 {
		return 0
	}
	return s.Last(0)
}

// volumeTag marks bars trading well above the window average
func volumeTag(volume float64, frame *core.IndicatorFrame) string {
	var sum float64
	for _, v := range frame.Volume {
		sum += v
	}
	if len(frame.Volume) == 0 || sum == 0 {
		return ""
	}
	avg := sum / float64(len(frame.Volume))
	if volume > 2*avg {
		return " [volume spike]"
	}
	return ""
}
