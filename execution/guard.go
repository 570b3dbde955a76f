package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/position"
	"github.com/jpillora/backoff"
)

const (
	// Allocation quota never drops below this quote amount when the
	// base capital allows it
	quotaFloorUSDT = 11.0

	// Sizing never commits more than this share of margin headroom
	marginSafety = 0.98

	// HIGH confidence quota override cap, share of equity
	highOverrideShare = 0.90

	// Fixed spread added on top of round-trip taker fees for the
	// micro-profit guard
	microProfitSpread = 0.0005

	// Epsilon added before flooring token-to-contract conversion
	contractEpsilon = 1e-9

	// Accounts below this base capital bypass the confidence size
	// multiplier (micro-sniper profile)
	microSniperBase = 100.0

	orderAttempts = 3
)

// Narrative markers that exempt a SELL from the confidence gate in a
// falling market
var bearishNarrative = []string{"downtrend", "bearish", "breakdown", "下跌", "空头", "趋势向下"}

// Config tunes one symbol's guard pipeline
type Config struct {
	Symbol         config.SymbolConfig
	TestMode       bool
	MaxSlippagePct float64
	MinConfidence  int
	InitialBalance float64
	Cooldown       time.Duration
	MinInterval    time.Duration
}

// Request carries one decision through the guard together with the
// state snapshot it was made against
type Request struct {
	Decision         core.Decision
	Frame            *core.IndicatorFrame
	AnalysisPrice    float64
	Position         *core.Position
	State            *core.SymbolState
	Equity           float64
	Sentiment        float64
	ActiveSymbols    int
	GlobalRiskFactor float64
	OpeningBlocked   bool
}

// Guard validates, sizes and places orders for one symbol. All trade
// intents, advisor and pattern alike, pass through here.
type Guard struct {
	exchange core.Exchange
	breaker  *Breaker
	sim      *Simulator
	log      core.Logger
	cfg      Config

	takerFee float64
}

// NewGuard builds the guard pipeline for one symbol
func NewGuard(exchange core.Exchange, breaker *Breaker, sim *Simulator, cfg Config, log core.Logger) *Guard {
	return &Guard{
		exchange: exchange,
		breaker:  breaker,
		sim:      sim,
		cfg:      cfg,
		log:      log,
	}
}

// Execute runs the decision through the ordered gate sequence and, if
// every gate passes, places the order. Each gate short-circuits with
// a tagged result.
func (g *Guard) Execute(ctx context.Context, req Request) Result {
	d := req.Decision
	if !d.Actionable() {
		return hold("no actionable signal")
	}

	st := req.State
	pos := req.Position
	now := time.Now()

	isClose := pos != nil && ((pos.Side == core.PositionLong && d.Signal == core.SignalSell) ||
		(pos.Side == core.PositionShort && d.Signal == core.SignalBuy))
	isPyramid := pos != nil && !isClose
	isOpening := pos == nil || isPyramid
	wantsFlip := isClose && d.Amount > 0

	// Gate: circuit breaker. The halt covers closes as well, the
	// caller sees FAILED-equivalent skips until the cooldown expires.
	if g.breaker.Open() {
		return skipped(fmt.Sprintf("circuit breaker active (%.0fs left)", g.breaker.Remaining().Seconds()))
	}

	// Gate: global risk veto blocks openings, close-only flows on
	if req.OpeningBlocked && (isOpening || wantsFlip) {
		if !isClose {
			return Result{StatusStopped, "global risk stop: openings blocked"}
		}
		wantsFlip = false
	}

	// Gate: pyramid protection. Same-direction adds need conviction.
	origLevel := d.Confidence.Level()
	if isPyramid && origLevel < core.ConfidenceHigh.Level() {
		return Result{StatusHoldDup, "same-direction signal without HIGH confidence"}
	}

	// Gate: cooldowns apply to openings only
	if isOpening {
		if cooldownLeft := st.LastCloseTime.Add(g.cfg.Cooldown).Sub(now); cooldownLeft > 0 && origLevel < core.ConfidenceHigh.Level() {
			return skipped(fmt.Sprintf("post-close cooldown %.0fs left", cooldownLeft.Seconds()))
		}
		if intervalLeft := st.LastSignalTime.Add(g.cfg.MinInterval).Sub(now); intervalLeft > 0 {
			return skipped(fmt.Sprintf("trade frequency limit %.0fs left", intervalLeft.Seconds()))
		}
	}

	// Gate: confidence with exemptions. Exemptions promote the
	// effective level to MEDIUM; the original level still rules the
	// flip leg below.
	effLevel := origLevel
	if effLevel < core.ConfidenceMedium.Level() && g.confidenceExempt(d, req, isClose) {
		effLevel = core.ConfidenceMedium.Level()
	}
	if effLevel < g.cfg.MinConfidence {
		return hold(fmt.Sprintf("confidence %s below minimum", d.Confidence))
	}

	// Gate: test mode routes to the simulator
	if g.cfg.TestMode {
		amount := d.Amount
		if amount <= 0 && pos != nil {
			amount = pos.CoinSize
		}
		res := g.sim.Execute(&st.Sim, d, req.AnalysisPrice, amount)
		if isClose && st.Sim.Position == nil && pos.UnrealizedPnL < 0 {
			st.LastCloseTime = now
		}
		g.touchState(st, d, now)
		return res
	}

	// Gate: slippage between analysis price and live ticker
	ticker, err := g.exchange.Ticker(ctx, g.cfg.Symbol.Symbol)
	if err != nil {
		return g.orderFailed(st, fmt.Errorf("ticker: %w", err))
	}
	price := ticker.Last
	if req.AnalysisPrice > 0 {
		slip := math.Abs(price-req.AnalysisPrice) / req.AnalysisPrice * 100
		if slip > g.cfg.MaxSlippagePct {
			return skipped(fmt.Sprintf("slippage %.2f%% exceeds %.2f%%", slip, g.cfg.MaxSlippagePct))
		}
	}

	// Gate: micro-profit guard, refuses to scalp wins into fees
	if isClose && origLevel < core.ConfidenceHigh.Level() {
		pnlRatio := pos.PnLRatio()
		if fee := g.takerFeeRate(ctx); pnlRatio > 0 && pnlRatio < 2*fee+microProfitSpread {
			return hold(fmt.Sprintf("profit %.3f%% below fee threshold", pnlRatio*100))
		}
	}

	// Close leg. A flip flattens the full position before the reverse
	// side may open; a partial reduce is only reachable when the
	// opening leg is vetoed.
	if isClose {
		closeFull := wantsFlip || d.Amount <= 0 || d.Amount >= pos.CoinSize*simFullCloseShare
		closed, res := g.placeClose(ctx, st, pos, d, now, closeFull)
		if !closed {
			return res
		}
		if wantsFlip && origLevel >= g.cfg.MinConfidence {
			openRes := g.placeOpen(ctx, st, d, req, price, now, true)
			if openRes.Ok() {
				return Result{StatusExecuted, res.Summary + "; reversed " + openRes.Summary}
			}
			return Result{StatusExecuted, res.Summary + "; reversal skipped: " + openRes.Summary}
		}
		if wantsFlip {
			st.FlipVetoUntil = now.Add(g.cfg.MinInterval)
			if pos.Side == core.PositionLong {
				return Result{StatusExecuted, "仅平多(信心不足)"}
			}
			return Result{StatusExecuted, "仅平空(信心不足)"}
		}
		return res
	}

	return g.placeOpen(ctx, st, d, req, price, now, false)
}

// confidenceExempt applies the LOW-to-MEDIUM promotions: closing legs,
// SELL in a bearish narrative, BUY absorption in a quiet regime
func (g *Guard) confidenceExempt(d core.Decision, req Request, isClose bool) bool {
	if isClose {
		return true
	}
	if d.Signal == core.SignalSell {
		reason := strings.ToLower(d.Reason)
		for _, kw := range bearishNarrative {
			if strings.Contains(reason, kw) {
				return true
			}
		}
	}
	if d.Signal == core.SignalBuy && req.Frame != nil && req.Frame.Regime == core.RegimeLow {
		return true
	}
	return false
}

// placeClose flattens or reduces the current position. Partial amounts
// arrive in base currency and are converted to contract units before
// they reach the venue.
func (g *Guard) placeClose(ctx context.Context, st *core.SymbolState, pos *core.Position, d core.Decision, now time.Time, full bool) (bool, Result) {
	amount := pos.Contracts
	if !full {
		amount = d.Amount
		if info, err := g.exchange.AssetInfo(ctx, g.cfg.Symbol.Symbol); err == nil && info.IsContract && info.ContractSize > 0 {
			contracts := math.Floor(d.Amount/info.ContractSize + contractEpsilon)
			if contracts < 1 {
				contracts = 1
			}
			amount = contracts
		}
		if amount >= pos.Contracts*simFullCloseShare {
			amount = pos.Contracts
			full = true
		}
	}

	side := core.SideSell
	if pos.Side == core.PositionShort {
		side = core.SideBuy
	}

	order, err := g.placeWithRetry(ctx, core.OrderRequest{
		Symbol:     g.cfg.Symbol.Symbol,
		Side:       side,
		Type:       core.OrderTypeMarket,
		Amount:     amount,
		TradeMode:  g.cfg.Symbol.TradeMode,
		ReduceOnly: g.cfg.Symbol.TradeMode != "cash",
	})
	if err != nil {
		return false, g.orderFailed(st, err)
	}
	g.breaker.RecordSuccess()

	if full {
		st.DynamicRisk.Reset()
		// The re-entry cooldown arms on loss-classified closes only
		if pos.UnrealizedPnL < 0 {
			st.LastCloseTime = now
		}
	}
	g.touchState(st, d, now)

	g.log.WithFields(core.Fields{
		"symbol": g.cfg.Symbol.Symbol,
		"order":  order.ID,
		"amount": amount,
		"full":   full,
	}).Info("position closed")
	return true, Result{StatusExecuted, fmt.Sprintf("closed %.6f %s", amount, g.cfg.Symbol.Symbol)}
}

// placeOpen sizes and places an opening (or flip) order
func (g *Guard) placeOpen(ctx context.Context, st *core.SymbolState, d core.Decision, req Request, price float64, now time.Time, isFlip bool) Result {
	tokens, sizeRes, ok := g.sizeOrder(ctx, d, req, price, isFlip)
	if !ok {
		return sizeRes
	}

	info, err := g.exchange.AssetInfo(ctx, g.cfg.Symbol.Symbol)
	if err != nil {
		return g.orderFailed(st, fmt.Errorf("asset info: %w", err))
	}

	amount := tokens
	if info.IsContract && info.ContractSize > 0 {
		contracts := math.Floor(tokens/info.ContractSize + contractEpsilon)
		if contracts < 1 && tokens > 0 {
			contracts = 1
		}
		amount = contracts
	}

	if g.cfg.Symbol.TradeMode != "cash" {
		if err := g.exchange.SetLeverage(ctx, g.cfg.Symbol.Symbol, g.cfg.Symbol.Leverage, g.cfg.Symbol.TradeMode); err != nil {
			g.log.Warnf("set leverage failed for %s: %v", g.cfg.Symbol.Symbol, err)
		}
	}

	side := core.SideBuy
	if d.Signal == core.SignalSell {
		side = core.SideSell
	}

	order, err := g.placeWithRetry(ctx, core.OrderRequest{
		Symbol:    g.cfg.Symbol.Symbol,
		Side:      side,
		Type:      core.OrderTypeMarket,
		Amount:    amount,
		TradeMode: g.cfg.Symbol.TradeMode,
		StopLoss:  d.StopLoss,
	})
	if err != nil {
		return g.orderFailed(st, err)
	}
	g.breaker.RecordSuccess()

	// Advisor stops are carried; fixed take-profits are only kept for
	// pattern entries, otherwise the trailing engine owns the exit
	st.DynamicRisk.StopLoss = d.StopLoss
	if d.Source == "pattern" {
		st.DynamicRisk.TakeProfit = d.TakeProfit
	} else {
		st.DynamicRisk.TakeProfit = 0
	}
	g.touchState(st, d, now)

	g.log.WithFields(core.Fields{
		"symbol": g.cfg.Symbol.Symbol,
		"order":  order.ID,
		"side":   side,
		"amount": amount,
		"sl":     d.StopLoss,
	}).Info("position opened")
	return Result{StatusExecuted, fmt.Sprintf("opened %s %.6f @ %.6f", side, amount, price)}
}

// sizeOrder computes the token amount for an opening order, applying
// quota, heuristic sizing, confidence factor and the HIGH override
func (g *Guard) sizeOrder(ctx context.Context, d core.Decision, req Request, price float64, isFlip bool) (float64, Result, bool) {
	if price <= 0 {
		return 0, failed("no price"), false
	}

	base := g.cfg.InitialBalance
	if base <= 0 {
		base = req.Equity
	}

	quota := g.cfg.Symbol.Allocation.Quota(base, req.ActiveSymbols)
	if quota < quotaFloorUSDT && base >= quotaFloorUSDT {
		quota = quotaFloorUSDT
	}

	// Margin already committed to this symbol reduces the quota; a
	// flip returns it
	if req.Position != nil && !isFlip {
		quota -= req.Position.Margin
	}
	if quota <= 0 {
		return 0, Result{StatusSkippedFull, "allocation quota exhausted"}, false
	}

	obs := position.Observation{
		ConfidenceLevel: d.Confidence.Level(),
		Sentiment:       req.Sentiment,
	}
	if req.Frame != nil && req.Frame.Len() > 0 {
		obs.ATRRatio = req.Frame.ATRRatio.Last(0)
		obs.ADX = req.Frame.ADX.Last(0)
	}
	if req.Position != nil {
		obs.PnLRatio = req.Position.PnLRatio()
	}
	ratio := position.SmartSize(obs, req.GlobalRiskFactor)

	// Confidence multiplier, bypassed for micro accounts
	if base >= microSniperBase {
		switch d.Confidence.Level() {
		case 1:
			ratio *= 0.5
		case 2:
			ratio *= 0.8
		}
	}

	capital := quota * ratio
	leverage := float64(g.cfg.Symbol.Leverage)
	maxTokens := capital * leverage * marginSafety / price

	tokens := maxTokens
	if d.Amount > 0 && d.Amount < tokens {
		tokens = d.Amount
	}
	if g.cfg.Symbol.Amount > 0 && g.cfg.Symbol.Amount < tokens {
		tokens = g.cfg.Symbol.Amount
	}

	// HIGH confidence may override the quota, but never averages into
	// a losing position
	if d.Confidence.Level() >= core.ConfidenceHigh.Level() &&
		(req.Position == nil || req.Position.UnrealizedPnL >= 0) {
		highCap := req.Equity * highOverrideShare * leverage / price
		if d.Amount > tokens && d.Amount <= highCap {
			tokens = d.Amount
		}
	}

	// Lot / notional adaptation
	info, err := g.exchange.AssetInfo(ctx, g.cfg.Symbol.Symbol)
	if err == nil {
		minTokens := info.MinSize
		if info.IsContract && info.ContractSize > 0 {
			minTokens = info.MinSize * info.ContractSize
		}
		if minTokens > 0 && tokens < minTokens {
			minMargin := minTokens * price / leverage
			switch {
			case minMargin <= quota:
				tokens = minTokens
			case isFlip:
				// Let the venue arbitrate a flip at min size
				tokens = minTokens
			case req.Position != nil:
				return 0, Result{StatusSkippedFull, "pyramid below minimum lot"}, false
			default:
				return 0, Result{StatusSkippedMin, fmt.Sprintf("amount %.8f below minimum lot %.8f", tokens, minTokens)}, false
			}
		}
	}

	if tokens <= 0 {
		return 0, Result{StatusSkippedMin, "sized to zero"}, false
	}
	return tokens, Result{}, true
}

// placeWithRetry places an order with bounded retries. Insufficient
// balance is retried exactly once at 95% of the amount; transient
// failures back off exponentially.
func (g *Guard) placeWithRetry(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	b := &backoff.Backoff{Min: time.Second, Max: 8 * time.Second, Factor: 2}

	var lastErr error
	for attempt := 0; attempt < orderAttempts; attempt++ {
		order, err := g.exchange.CreateOrder(ctx, req)
		if err == nil {
			return order, nil
		}
		lastErr = err

		if core.IsInsufficientBalance(err) {
			reduced := req
			reduced.Amount = req.Amount * 0.95
			g.log.Warnf("insufficient balance, retrying once at 95%%: %.8f -> %.8f", req.Amount, reduced.Amount)
			return g.exchange.CreateOrder(ctx, reduced)
		}
		if !core.IsRetryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return core.Order{}, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return core.Order{}, lastErr
}

// orderFailed records the failure against the breaker and wraps it
func (g *Guard) orderFailed(st *core.SymbolState, err error) Result {
	if tripped := g.breaker.RecordFailure(g.cfg.Symbol.Symbol); tripped {
		return failed(fmt.Sprintf("order failed, circuit breaker armed: %v", err))
	}
	return failed(fmt.Sprintf("order failed: %v", err))
}

// touchState stamps the signal bookkeeping after any executed order
func (g *Guard) touchState(st *core.SymbolState, d core.Decision, now time.Time) {
	st.LastSignal = d.Signal
	st.LastSignalTime = now
}

// takerFeeRate lazily resolves and caches the venue taker fee
func (g *Guard) takerFeeRate(ctx context.Context) float64 {
	if g.takerFee > 0 {
		return g.takerFee
	}
	fee, err := g.exchange.TakerFeeRate(ctx, g.cfg.Symbol.Symbol)
	if err != nil || fee <= 0 {
		return 0.001
	}
	g.takerFee = fee
	return fee
}
