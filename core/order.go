package core

import "time"

// Side is the order direction on the venue
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionSide is the direction of an open position
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// OrderType is the venue order type
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest describes a single order to be placed on the venue.
// StopLoss/TakeProfit, when non-zero, are attached as trigger orders
// in the same request.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Amount     float64
	Price      float64
	TradeMode  string
	ReduceOnly bool
	StopLoss   float64
	TakeProfit float64
	ClientID   string
}

// Order is the venue acknowledgment of a placed order
type Order struct {
	ID       string
	Symbol   string
	Side     Side
	Type     OrderType
	Amount   float64
	AvgPrice float64
	Status   string
	Time     time.Time
}

// Fill is a single executed trade record
type Fill struct {
	ID     string
	Symbol string
	Side   Side
	Price  float64
	Amount float64
	Cost   float64
	Fee    float64
	PnL    float64
	Time   time.Time
}

// Position is an open contract or spot position
type Position struct {
	Symbol        string
	Side          PositionSide
	Contracts     float64
	CoinSize      float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      float64
	Margin        float64
	TradeMode     string
}

// Notional returns the position value in quote currency at mark price
func (p Position) Notional() float64 {
	price := p.MarkPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return p.CoinSize * price
}

// PnLRatio returns unrealized pnl relative to margin, or to notional
// when the venue reports no margin (spot)
func (p Position) PnLRatio() float64 {
	if p.Margin > 0 {
		return p.UnrealizedPnL / p.Margin
	}
	if n := p.Notional(); n > 0 {
		return p.UnrealizedPnL / n
	}
	return 0
}

// AssetInfo holds per-symbol trading constraints from the venue
type AssetInfo struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	ContractSize float64
	MinSize      float64
	LotStep      float64
	TickSize     float64
	MaxLeverage  int
	IsContract   bool
}
