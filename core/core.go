package core

import (
	"context"
	"time"
)

// Exchange is the typed client boundary to the trading venue.
// Implementations wrap the venue REST API; everything above this
// interface is venue-agnostic.
type Exchange interface {
	Feeder
	Broker
}

// Feeder provides market data access
type Feeder interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	Ticker(ctx context.Context, symbol string) (Ticker, error)
	AssetInfo(ctx context.Context, symbol string) (AssetInfo, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

// Broker provides account and order access
type Broker interface {
	Equity(ctx context.Context, currency string) (float64, error)
	Balance(ctx context.Context, asset string) (Balance, error)
	Positions(ctx context.Context, symbol string) ([]Position, error)
	RecentFills(ctx context.Context, symbol string, limit int) ([]Fill, error)
	Ledger(ctx context.Context, currency string, limit int) ([]LedgerEntry, error)
	TakerFeeRate(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, tradeMode string) error
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// Advisor produces a trading decision from a prepared market context
type Advisor interface {
	Decide(ctx context.Context, req AdvisorRequest) (Decision, error)
}

// AdvisorRequest carries everything the advisor needs to reason about a symbol
type AdvisorRequest struct {
	Symbol        string
	Regime        Regime
	Frame         *IndicatorFrame
	Position      *Position
	PnLRatio      float64
	Sentiment     float64
	DefaultAmount float64

	// Account and market context rendered into the prompt
	Equity       float64
	FundingRate  float64
	BTCChange24h float64
	MinLot       float64
	MinNotional  float64
	PatternHint  string
	Surge        bool
}

// Notifier delivers out-of-band messages to the operator
type Notifier interface {
	Notify(title, message string)
}

// NotifierWithStart is a notifier requiring a background listener
type NotifierWithStart interface {
	Notifier
	Start()
}

// Ticker is a point-in-time price snapshot
type Ticker struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Change24h float64
	Time      time.Time
}

// Balance holds free and locked amounts of a single asset
type Balance struct {
	Asset string
	Free  float64
	Lock  float64
}

// LedgerEntry is a single account funding record
type LedgerEntry struct {
	ID       string
	Type     LedgerType
	Currency string
	Amount   float64
	Time     time.Time
}

// LedgerType classifies account ledger records
type LedgerType string

const (
	LedgerDeposit    LedgerType = "deposit"
	LedgerWithdrawal LedgerType = "withdrawal"
	LedgerTrade      LedgerType = "trade"
	LedgerFee        LedgerType = "fee"
	LedgerOther      LedgerType = "other"
)
