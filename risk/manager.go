// Package risk implements the global risk manager: equity baseline
// reconciliation, deposit/withdrawal detection against the funding
// ledger, daily profit lock and drawdown circuit, and the hard global
// stop with full liquidation.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/storage"
)

const (
	// Baseline write-down boundary: equity below 95% of the
	// configured principal is accepted as the new reference
	writeDownShare = 0.95

	// First-sample anomaly absorption floor
	firstSampleFloorUSDT = 50.0

	// Deposit detection trigger: pnl jump beyond max of these
	depositJumpFloorUSDT = 10.0
	depositJumpShare     = 0.05

	// One-shot calibration trigger
	calibrationGapUSDT = 2.0

	// Bounded concurrency for the close-all fanout
	closeAllWorkers = 5
)

// TraderView is the read-only window the risk manager has into a
// symbol trader. Traders never call back into risk.
type TraderView interface {
	Symbol() string
	OpenPosition(ctx context.Context) (*core.Position, error)
	CloseAll(ctx context.Context) error
}

// Verdict is the per-tick output of the global risk check
type Verdict struct {
	Equity         float64
	PnL            float64
	PnLRatio       float64
	RiskFactor     float64
	OpeningBlocked bool
	HardStop       bool
	Reason         string
}

// Manager owns the global risk accounting. It is invoked serially
// once per scheduler round.
type Manager struct {
	mu sync.Mutex

	broker   core.Broker
	store    *storage.StateStore
	notifier core.Notifier
	log      core.Logger
	cfg      config.RiskControlConfig
	recorder *Recorder

	state       *core.BotState
	ledger      *ledgerTracker
	symbols     []string
	lastPnL     float64
	firstSample bool
}

// NewManager builds the global risk manager, restoring persisted
// state when present
func NewManager(broker core.Broker, store *storage.StateStore, notifier core.Notifier, recorder *Recorder, cfg config.RiskControlConfig, log core.Logger) *Manager {
	state, err := store.LoadBotState()
	if err != nil {
		state = &core.BotState{GlobalRiskFactor: 1.0}
	}
	if state.GlobalRiskFactor <= 0 {
		state.GlobalRiskFactor = 1.0
	}

	return &Manager{
		broker:      broker,
		store:       store,
		notifier:    notifier,
		recorder:    recorder,
		cfg:         cfg,
		log:         log,
		state:       state,
		ledger:      newLedgerTracker(state.ProcessedLedgerIDs),
		firstSample: true,
	}
}

// SetSymbols updates the symbol set used for realized pnl aggregation
func (m *Manager) SetSymbols(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = append([]string(nil), symbols...)
}

// InitBaseline reconciles the equity baseline on boot. A persisted
// baseline survives restarts untouched; otherwise the configured
// principal is reconciled against live equity.
func (m *Manager) InitBaseline(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity, err := m.broker.Equity(ctx, "USDT")
	if err != nil {
		return fmt.Errorf("init baseline: %w", err)
	}

	if m.state.Baseline > 0 {
		m.log.Infof("baseline restored: %.2f USDT (offset %.2f)", m.state.Baseline, m.state.DepositOffset)
		return nil
	}

	principal := m.cfg.InitialBalanceUSDT
	switch {
	case principal <= 0:
		m.state.Baseline = equity
		m.state.DepositOffset = 0
	case equity < principal && equity > principal*writeDownShare:
		// Micro shortfall, absorb it instead of reporting a phantom loss
		m.state.Baseline = equity
		m.state.DepositOffset = 0
		m.log.Infof("baseline absorbed micro shortfall: %.2f -> %.2f", principal, equity)
	case equity <= principal*writeDownShare:
		m.state.Baseline = equity
		m.state.DepositOffset = 0
		m.log.Warnf("baseline written down from %.2f to live equity %.2f", principal, equity)
	default:
		// Lock the principal, carve out the surplus as non-managed
		m.state.Baseline = principal
		m.state.DepositOffset = equity - principal
	}

	m.resetDaily(equity)
	m.persistLocked()
	m.log.Infof("baseline initialized: %.2f USDT, deposit offset %.2f", m.state.Baseline, m.state.DepositOffset)
	return nil
}

// Check runs the per-tick global risk evaluation
func (m *Manager) Check(ctx context.Context) (Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity, err := m.broker.Equity(ctx, "USDT")
	if err != nil {
		return Verdict{RiskFactor: m.state.GlobalRiskFactor}, fmt.Errorf("equity: %w", err)
	}

	pnl := equity - m.state.DepositOffset - m.state.Baseline

	// First-sample anomaly: a huge pnl on the very first reading is
	// idle balance the baseline never saw, not trading result
	if m.firstSample {
		m.firstSample = false
		if math.Abs(pnl) > math.Max(firstSampleFloorUSDT, 2*m.state.Baseline) {
			m.state.DepositOffset += pnl
			m.log.Warnf("first-sample anomaly %.2f USDT absorbed into deposit offset", pnl)
			pnl = 0
		}
	}

	// A sudden pnl jump smells like a deposit or withdrawal
	if jump := math.Abs(pnl - m.lastPnL); jump > math.Max(depositJumpFloorUSDT, depositJumpShare*m.state.Baseline) {
		if applied := m.verifyLedger(ctx); applied != 0 {
			pnl = equity - m.state.DepositOffset - m.state.Baseline
		}
	}

	// One-shot self calibration against venue-reported realized pnl
	if !m.state.PnLCalibrated {
		if realized, ok := m.realizedPnL(ctx); ok && math.Abs(pnl-realized) > calibrationGapUSDT {
			if newOffset := equity - m.state.Baseline - realized; newOffset > 0 {
				m.log.Warnf("pnl calibration: offset %.2f -> %.2f (realized %.2f)", m.state.DepositOffset, newOffset, realized)
				m.state.DepositOffset = newOffset
				m.state.RealizedPnL = realized
				pnl = equity - m.state.DepositOffset - m.state.Baseline
			}
			m.state.PnLCalibrated = true
		}
	}

	m.checkDaily(equity)
	m.lastPnL = pnl
	m.persistLocked()

	ratio := 0.0
	if m.state.Baseline > 0 {
		ratio = pnl / m.state.Baseline
	}

	verdict := Verdict{
		Equity:     equity,
		PnL:        pnl,
		PnLRatio:   ratio,
		RiskFactor: m.state.GlobalRiskFactor,
	}

	if m.drawdownTripped(equity) {
		verdict.OpeningBlocked = true
		verdict.Reason = "daily drawdown circuit"
	}

	if reason, stop := m.hardStop(pnl, ratio); stop {
		verdict.HardStop = true
		verdict.Reason = reason
	}

	if m.recorder != nil {
		m.recorder.Record(time.Now(), equity, pnl, ratio*100)
	}
	return verdict, nil
}

// checkDaily rolls the daily anchors on date change and applies the
// intraday profit lock
func (m *Manager) checkDaily(equity float64) {
	today := time.Now().UTC().Format("2006-01-02")
	if m.state.DailyDate != today {
		m.resetDaily(equity)
	}
	if equity > m.state.DailyHigh {
		m.state.DailyHigh = equity
	}

	if !m.state.DailyLocked && m.state.DailyAnchor > 0 && m.cfg.DailyProfitLock > 0 {
		gain := (equity - m.state.DailyAnchor) / m.state.DailyAnchor
		if gain >= m.cfg.DailyProfitLock {
			m.state.DailyLocked = true
			m.state.GlobalRiskFactor = 0.5
			m.log.Warnf("daily profit lock: intraday gain %.1f%%, sizing halved", gain*100)
			m.notify("Daily Profit Lock", fmt.Sprintf("Intraday gain %.1f%%, global sizing reduced to 50%%", gain*100))
		}
	}
}

func (m *Manager) resetDaily(equity float64) {
	m.state.DailyDate = time.Now().UTC().Format("2006-01-02")
	m.state.DailyAnchor = equity
	m.state.DailyHigh = equity
	m.state.DailyLocked = false
	m.state.GlobalRiskFactor = 1.0
}

// drawdownTripped checks the intraday drawdown from the daily high
func (m *Manager) drawdownTripped(equity float64) bool {
	if m.state.DailyHigh <= 0 || m.cfg.DailyDrawdownLimit <= 0 {
		return false
	}
	drawdown := (equity - m.state.DailyHigh) / m.state.DailyHigh
	if drawdown <= -m.cfg.DailyDrawdownLimit {
		m.notify("CRITICAL: Daily Drawdown", fmt.Sprintf("Intraday drawdown %.2f%% exceeded limit %.2f%%, openings blocked",
			drawdown*100, m.cfg.DailyDrawdownLimit*100))
		return true
	}
	return false
}

// hardStop compares pnl against the configured global limits
func (m *Manager) hardStop(pnl, ratio float64) (string, bool) {
	switch {
	case m.cfg.MaxProfitUSDT > 0 && pnl >= m.cfg.MaxProfitUSDT:
		return fmt.Sprintf("global take-profit reached: +%.2f USDT", pnl), true
	case m.cfg.MaxProfitRate > 0 && ratio >= m.cfg.MaxProfitRate:
		return fmt.Sprintf("global take-profit reached: +%.2f%%", ratio*100), true
	case m.cfg.MaxLossUSDT > 0 && pnl <= -m.cfg.MaxLossUSDT:
		return fmt.Sprintf("global stop-loss reached: %.2f USDT", pnl), true
	case m.cfg.MaxLossRate > 0 && ratio <= -m.cfg.MaxLossRate:
		return fmt.Sprintf("global stop-loss reached: %.2f%%", ratio*100), true
	}
	return "", false
}

// realizedPnL aggregates venue-reported realized pnl across symbols
func (m *Manager) realizedPnL(ctx context.Context) (float64, bool) {
	if len(m.symbols) == 0 {
		return 0, false
	}
	var total float64
	for _, symbol := range m.symbols {
		fills, err := m.broker.RecentFills(ctx, symbol, 100)
		if err != nil {
			m.log.Warnf("realized pnl aggregation failed for %s: %v", symbol, err)
			return 0, false
		}
		for _, f := range fills {
			total += f.PnL
		}
	}
	return total, true
}

// CloseAll flattens every trader's position with bounded concurrency.
// Failures are gathered and reported, not propagated mid-fanout.
func (m *Manager) CloseAll(ctx context.Context, traders []TraderView) error {
	sem := make(chan struct{}, closeAllWorkers)
	errs := make(chan error, len(traders))
	var wg sync.WaitGroup

	for _, t := range traders {
		wg.Add(1)
		go func(t TraderView) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := t.CloseAll(ctx); err != nil {
				errs <- fmt.Errorf("%s: %w", t.Symbol(), err)
			}
		}(t)
	}
	wg.Wait()
	close(errs)

	var failed []error
	for err := range errs {
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		for _, err := range failed {
			m.log.Errorf("close-all partial failure: %v", err)
		}
		return fmt.Errorf("close-all: %d of %d symbols failed", len(failed), len(traders))
	}
	m.log.Info("all positions closed")
	return nil
}

// State returns a copy of the persisted accounting, used by tests and
// the dashboard
func (m *Manager) State() core.BotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := *m.state
	return st
}

func (m *Manager) persistLocked() {
	m.state.ProcessedLedgerIDs = m.ledger.ids()
	if err := m.store.SaveBotState(m.state); err != nil {
		m.log.Warnf("bot state persist failed: %v", err)
	}
}

func (m *Manager) notify(title, message string) {
	if m.notifier != nil {
		m.notifier.Notify(title, message)
	}
}
