// Package trader runs the per-symbol trading loop: position
// monitoring with dynamic stops on every round, throttled AI analysis
// on its own cadence, and order placement through the guard pipeline.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/execution"
	"github.com/cryptooracle/oraclebot/market"
	"github.com/cryptooracle/oraclebot/position"
	"github.com/cryptooracle/oraclebot/signal"
	"github.com/cryptooracle/oraclebot/storage"
)

// Analysis fires this much before the nominal interval so a round
// landing just short of the boundary is not pushed a full round out
const analysisSlack = 2 * time.Second

// Timeframe used for the reversal fast-exit scan
const fastExitTimeframe = "1m"

// Reference symbol for the broad-market context in advisor prompts
const btcContextSymbol = "BTC/USDT"

// Consecutive tick-failure escalation thresholds
const (
	errWarnStreak   = 3
	errAlertStreak  = 5
	errHaltStreak   = 10
	errHaltDuration = 1800 * time.Second
)

// Status is the dashboard state of one symbol trader
type Status string

const (
	StatusScanning Status = "SCAN"
	StatusWaiting  Status = "WAIT"
	StatusDone     Status = "DONE"
	StatusHolding  Status = "HOLD"
	StatusCooldown Status = "COOLDOWN"
	StatusSkipped  Status = "SKIPPED"
	StatusBlocked  Status = "FULL"
	StatusStopped  Status = "STOP"
	StatusFailed   Status = "FAILED"
)

// Snapshot is the dashboard row for one symbol
type Snapshot struct {
	Symbol     string
	Regime     core.Regime
	Price      float64
	PnLRatio   float64
	Signal     core.Signal
	Confidence core.Confidence
	Status     Status
	Summary    string
	UpdatedAt  time.Time
}

// Config tunes one symbol trader
type Config struct {
	Symbol         config.SymbolConfig
	Timeframe      string
	BarClose       bool
	TestMode       bool
	AIInterval     time.Duration
	Trailing       position.TrailingConfig
	Gate           config.SignalGateConfig
	Sentiment      float64
	InitialBalance float64
	MaxSlippagePct float64
	MinConfidence  int
	Cooldown       time.Duration
	MinInterval    time.Duration
	TakerFeeRate   float64
}

// Env is the global risk context the scheduler hands every trader each
// round
type Env struct {
	Equity           float64
	GlobalRiskFactor float64
	OpeningBlocked   bool
	ActiveSymbols    int
}

// Deps are the collaborators a trader is wired with
type Deps struct {
	Exchange  core.Exchange
	Pipeline  *market.Pipeline
	Advisor   core.Advisor
	Positions *position.Manager
	States    *storage.StateStore
	Klines    *storage.KlineStore
	Notifier  core.Notifier
	Log       core.Logger
}

// Trader drives one symbol. Ticks are serialized by the scheduler;
// only the snapshot is read concurrently.
type Trader struct {
	cfg  Config
	deps Deps
	log  core.Logger

	guard *execution.Guard
	sim   *execution.Simulator

	st *core.SymbolState

	mu   sync.Mutex
	snap Snapshot
}

// New restores or initializes a symbol trader. The circuit breaker
// wraps the persisted state so trips survive a restart.
func New(cfg Config, deps Deps) *Trader {
	st, err := deps.States.LoadSymbolState(cfg.Symbol.Symbol)
	if err != nil {
		st = &core.SymbolState{Symbol: cfg.Symbol.Symbol}
	}
	if cfg.TestMode && st.Sim.Balance <= 0 {
		st.Sim.Balance = cfg.InitialBalance
	}

	log := deps.Log.WithFields(core.Fields{"symbol": cfg.Symbol.Symbol})
	breaker := execution.NewBreaker(&st.Breaker, log)
	sim := execution.NewSimulator(cfg.Symbol.Symbol, cfg.Symbol.TradeMode, cfg.TakerFeeRate, log)
	guard := execution.NewGuard(deps.Exchange, breaker, sim, execution.Config{
		Symbol:         cfg.Symbol,
		TestMode:       cfg.TestMode,
		MaxSlippagePct: cfg.MaxSlippagePct,
		MinConfidence:  cfg.MinConfidence,
		InitialBalance: cfg.InitialBalance,
		Cooldown:       cfg.Cooldown,
		MinInterval:    cfg.MinInterval,
	}, log)

	return &Trader{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		guard: guard,
		sim:   sim,
		st:    st,
		snap:  Snapshot{Symbol: cfg.Symbol.Symbol, Status: StatusWaiting},
	}
}

// Symbol returns the traded symbol identifier
func (t *Trader) Symbol() string {
	return t.cfg.Symbol.Symbol
}

// Tick runs one round: fetch the indicator frame, run the position
// monitor, then the throttled analysis leg
func (t *Trader) Tick(ctx context.Context, env Env) {
	if left := time.Until(t.st.HaltUntil); left > 0 {
		t.setStatus(StatusStopped, fmt.Sprintf("error halt %.0fs left", left.Seconds()))
		return
	}
	t.setStatus(StatusScanning, "")

	frame, err := t.deps.Pipeline.Snapshot(ctx, t.cfg.Symbol.Symbol, t.cfg.Timeframe)
	if err != nil {
		t.log.Warnf("frame snapshot failed: %v", err)
		t.setStatus(StatusFailed, err.Error())
		t.tickFailed(err)
		t.persist()
		return
	}

	pos, err := t.OpenPosition(ctx)
	if err != nil {
		t.log.Warnf("position lookup failed: %v", err)
		t.setStatus(StatusFailed, err.Error())
		t.tickFailed(err)
		t.persist()
		return
	}
	t.st.ErrorStreak = 0

	pos = t.monitor(ctx, frame, pos)
	t.analyze(ctx, frame, pos, env)
	t.updateSnapshot(frame, pos)
	t.persist()
}

// OpenPosition resolves the current position, from the paper ledger in
// test mode and from the venue otherwise
func (t *Trader) OpenPosition(ctx context.Context) (*core.Position, error) {
	if t.cfg.TestMode {
		return t.st.Sim.Position, nil
	}
	return t.deps.Positions.Get(ctx, t.cfg.Symbol.Symbol, t.cfg.Symbol.TradeMode)
}

// CloseAll flattens the symbol, used by the global risk stop
func (t *Trader) CloseAll(ctx context.Context) error {
	pos, err := t.OpenPosition(ctx)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	price := pos.MarkPrice
	if price == 0 {
		ticker, err := t.deps.Exchange.Ticker(ctx, t.cfg.Symbol.Symbol)
		if err != nil {
			return fmt.Errorf("close-all ticker: %w", err)
		}
		price = ticker.Last
	}

	if err := t.closePosition(ctx, pos, 1.0, price, "global risk stop"); err != nil {
		return err
	}
	t.persist()
	return nil
}

// analyze runs the throttled decision leg: pattern entry first, then
// the AI advisor, both through the guard pipeline
func (t *Trader) analyze(ctx context.Context, frame *core.IndicatorFrame, pos *core.Position, env Env) {
	now := time.Now()
	surge := signal.IsSurge(frame)

	if !t.analysisDue(now, frame, surge) {
		t.setStatus(StatusWaiting, "next analysis pending")
		return
	}
	if surge && now.Sub(t.st.LastAnalysis) < t.cfg.AIInterval-analysisSlack {
		t.log.Info("surge detected, analysis throttle bypassed")
	}

	t.st.LastAnalysis = now
	t.st.LastBarTime = frame.LastTime()

	d, ok := t.decide(ctx, frame, pos, env, surge)
	if !ok {
		return
	}

	if !d.Actionable() {
		t.setStatus(StatusHolding, d.Reason)
		t.saveSignal(ctx, d, frame.LastPrice(), string(execution.StatusHold))
		return
	}

	// A suppressed flip vetoes new entries in the reverse direction
	// until the window expires
	if pos == nil && now.Before(t.st.FlipVetoUntil) {
		t.setStatus(StatusCooldown, "flip veto active")
		return
	}

	res := t.guard.Execute(ctx, execution.Request{
		Decision:         d,
		Frame:            frame,
		AnalysisPrice:    frame.LastPrice(),
		Position:         pos,
		State:            t.st,
		Equity:           env.Equity,
		Sentiment:        t.cfg.Sentiment,
		ActiveSymbols:    env.ActiveSymbols,
		GlobalRiskFactor: env.GlobalRiskFactor,
		OpeningBlocked:   env.OpeningBlocked,
	})
	t.recordOutcome(ctx, d, frame.LastPrice(), res)
}

// decide produces the round's decision. A recognized reversal pattern
// on a flat book takes priority over the advisor; otherwise the
// pattern rides along as a prompt hint.
func (t *Trader) decide(ctx context.Context, frame *core.IndicatorFrame, pos *core.Position, env Env, surge bool) (core.Decision, bool) {
	ps := signal.DetectThreeLineStrike(frame)
	if pos == nil && ps.Pattern != signal.PatternNone {
		t.log.WithFields(core.Fields{"pattern": ps.Pattern, "entry": ps.Entry}).Info("pattern entry")
		return decisionFromPattern(ps, t.cfg.Symbol.Amount), true
	}

	pnlRatio := 0.0
	if pos != nil {
		pnlRatio = pos.PnLRatio()
	}

	req := core.AdvisorRequest{
		Symbol:        t.cfg.Symbol.Symbol,
		Regime:        frame.Regime,
		Frame:         frame,
		Position:      pos,
		PnLRatio:      pnlRatio,
		Sentiment:     t.cfg.Sentiment,
		DefaultAmount: t.cfg.Symbol.Amount,
		Equity:        env.Equity,
		PatternHint:   string(ps.Pattern),
		Surge:         surge,
	}

	// Context lookups are best effort; the prompt degrades gracefully
	if rate, err := t.deps.Exchange.FundingRate(ctx, t.cfg.Symbol.Symbol); err == nil {
		req.FundingRate = rate
	}
	if btc, err := t.deps.Exchange.Ticker(ctx, btcContextSymbol); err == nil {
		req.BTCChange24h = btc.Change24h
	}
	if info, err := t.deps.Exchange.AssetInfo(ctx, t.cfg.Symbol.Symbol); err == nil {
		minLot := info.MinSize
		if info.IsContract && info.ContractSize > 0 {
			minLot = info.MinSize * info.ContractSize
		}
		req.MinLot = minLot
		req.MinNotional = minLot * frame.LastPrice()
	}

	d, err := t.deps.Advisor.Decide(ctx, req)
	if err != nil {
		t.log.Warnf("advisor failed: %v", err)
		t.setStatus(StatusFailed, err.Error())
		return core.Decision{}, false
	}
	d.Source = "advisor"

	signal.ApplyFilter(&d, frame, t.cfg.Gate)
	return d, true
}

// analysisDue applies the interval throttle and bar-close gating. A
// surge bypasses both.
func (t *Trader) analysisDue(now time.Time, frame *core.IndicatorFrame, surge bool) bool {
	if surge {
		return true
	}
	if now.Sub(t.st.LastAnalysis) < t.cfg.AIInterval-analysisSlack {
		return false
	}
	if t.cfg.BarClose && !frame.LastTime().After(t.st.LastBarTime) {
		return false
	}
	return true
}

// recordOutcome persists the signal, maps the guard result to the
// dashboard and alerts on anything that moved money or blew up
func (t *Trader) recordOutcome(ctx context.Context, d core.Decision, price float64, res execution.Result) {
	t.saveSignal(ctx, d, price, string(res.Status))

	switch res.Status {
	case execution.StatusExecuted, execution.StatusExecutedSim:
		t.setStatus(StatusDone, res.Summary)
		t.notify(fmt.Sprintf("%s %s", t.cfg.Symbol.Symbol, d.Signal), res.Summary)
	case execution.StatusHold, execution.StatusHoldDup:
		t.setStatus(StatusHolding, res.Summary)
	case execution.StatusSkippedFull:
		t.setStatus(StatusBlocked, res.Summary)
	case execution.StatusSkipped, execution.StatusSkippedMin:
		t.setStatus(StatusSkipped, res.Summary)
	case execution.StatusStopped:
		t.setStatus(StatusStopped, res.Summary)
	case execution.StatusFailed:
		t.setStatus(StatusFailed, res.Summary)
		t.notify(fmt.Sprintf("%s order failed", t.cfg.Symbol.Symbol), res.Summary)
	}
}

func (t *Trader) saveSignal(ctx context.Context, d core.Decision, price float64, status string) {
	if t.deps.Klines == nil {
		return
	}
	if err := t.deps.Klines.SaveSignal(ctx, t.cfg.Symbol.Symbol, d, price, status); err != nil {
		t.log.Warnf("signal persist failed: %v", err)
	}
}

// tickFailed counts consecutive round failures and escalates: repeated
// warnings first, an operator alert, then a temporary symbol halt
func (t *Trader) tickFailed(err error) {
	t.st.ErrorStreak++
	switch {
	case t.st.ErrorStreak >= errHaltStreak:
		t.st.HaltUntil = time.Now().Add(errHaltDuration)
		t.st.ErrorStreak = 0
		t.log.Errorf("too many consecutive failures, halting symbol: %v", err)
		t.notify(fmt.Sprintf("%s halted", t.cfg.Symbol.Symbol),
			fmt.Sprintf("%d consecutive failures, paused for %.0f minutes", errHaltStreak, errHaltDuration.Minutes()))
	case t.st.ErrorStreak == errAlertStreak:
		t.notify(fmt.Sprintf("%s repeated failures", t.cfg.Symbol.Symbol),
			fmt.Sprintf("%d consecutive failures, last: %v", t.st.ErrorStreak, err))
	case t.st.ErrorStreak >= errWarnStreak:
		t.log.Warnf("%d consecutive tick failures: %v", t.st.ErrorStreak, err)
	}
}

func (t *Trader) persist() {
	if err := t.deps.States.SaveSymbolState(t.st); err != nil {
		t.log.Warnf("state persist failed: %v", err)
	}
}

func (t *Trader) notify(title, message string) {
	if t.deps.Notifier != nil {
		t.deps.Notifier.Notify(title, message)
	}
}

// Snapshot returns the dashboard row, safe for concurrent reads
func (t *Trader) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func (t *Trader) setStatus(status Status, summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = status
	t.snap.Summary = summary
	t.snap.UpdatedAt = time.Now()
	t.st.Status = string(status)
}

func (t *Trader) updateSnapshot(frame *core.IndicatorFrame, pos *core.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Regime = frame.Regime
	t.snap.Price = frame.LastPrice()
	t.snap.Signal = t.st.LastSignal
	t.snap.PnLRatio = 0
	if pos != nil {
		t.snap.PnLRatio = pos.PnLRatio()
	}
}

// decisionFromPattern converts a recognized pattern into a trade
// decision carrying its derived stop and target
func decisionFromPattern(ps signal.PatternSignal, amount float64) core.Decision {
	sig := core.SignalBuy
	if ps.Bearish() {
		sig = core.SignalSell
	}
	return core.Decision{
		Signal:     sig,
		Confidence: core.ConfidenceHigh,
		Amount:     amount,
		StopLoss:   ps.StopLoss,
		TakeProfit: ps.TakeProfit,
		Reason:     fmt.Sprintf("three-line strike %s", ps.Pattern),
		Source:     "pattern",
	}
}
