package core

import "time"

// DynamicRisk tracks the adaptive stop state of one open position.
// It is reset when the position is fully closed.
type DynamicRisk struct {
	TrailingMaxPnL float64 `json:"trailing_max_pnl"`
	PartialTP1Done bool    `json:"partial_tp1_done"`
	PartialTP2Done bool    `json:"partial_tp2_done"`
	BreakevenSet   bool    `json:"breakeven_set"`
	StopLoss       float64 `json:"stop_loss"`
	TakeProfit     float64 `json:"take_profit"`
}

// Reset clears the per-position trailing state
func (d *DynamicRisk) Reset() {
	*d = DynamicRisk{}
}

// BreakerState is the persisted circuit breaker state of one symbol
type BreakerState struct {
	Failures  int       `json:"failures"`
	OpenUntil time.Time `json:"open_until"`
}

// SimState is the paper trading ledger used in test mode
type SimState struct {
	Balance     float64   `json:"balance"`
	RealizedPnL float64   `json:"realized_pnl"`
	Position    *Position `json:"position,omitempty"`
	TradeCount  int       `json:"trade_count"`
}

// SymbolState is everything a symbol trader persists between rounds
// and across restarts
type SymbolState struct {
	Symbol         string       `json:"symbol"`
	DynamicRisk    DynamicRisk  `json:"dynamic_risk"`
	Breaker        BreakerState `json:"breaker"`
	Sim            SimState     `json:"sim"`
	LastSignal     Signal       `json:"last_signal"`
	LastSignalTime time.Time    `json:"last_signal_time"`
	LastCloseTime  time.Time    `json:"last_close_time"`
	FlipVetoUntil  time.Time    `json:"flip_veto_until"`
	LastBarTime    time.Time    `json:"last_bar_time"`
	LastAnalysis   time.Time    `json:"last_analysis"`
	LastPnLRatio   float64      `json:"last_pnl_ratio"`
	ErrorStreak    int          `json:"error_streak"`
	HaltUntil      time.Time    `json:"halt_until"`
	Status         string       `json:"status"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// BotState is the global risk accounting persisted across restarts.
// The invariant equity = Baseline + DepositOffset + pnl holds at all
// times once the baseline is initialized.
type BotState struct {
	Baseline           float64   `json:"baseline"`
	DepositOffset      float64   `json:"deposit_offset"`
	GlobalRiskFactor   float64   `json:"global_risk_factor"`
	DailyAnchor        float64   `json:"daily_anchor"`
	DailyHigh          float64   `json:"daily_high"`
	DailyDate          string    `json:"daily_date"`
	DailyLocked        bool      `json:"daily_locked"`
	PnLCalibrated      bool      `json:"pnl_calibrated"`
	RealizedPnL        float64   `json:"realized_pnl"`
	ProcessedLedgerIDs []string  `json:"processed_ledger_ids"`
	UpdatedAt          time.Time `json:"updated_at"`
}
