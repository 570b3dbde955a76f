package position

import (
	"context"
	"fmt"
	"strings"

	"github.com/cryptooracle/oraclebot/core"
)

// Spot dust below this quote value is treated as no position
const spotDustNotional = 1.0

// Manager resolves open positions and executes reduce-only closes
type Manager struct {
	broker core.Broker
	feeder core.Feeder
	log    core.Logger
}

// NewManager wires a position manager
func NewManager(broker core.Broker, feeder core.Feeder, log core.Logger) *Manager {
	return &Manager{broker: broker, feeder: feeder, log: log}
}

// Get returns the open position for a symbol, or nil when flat.
// Contract symbols use the venue positions endpoint; spot holdings
// are synthesized from the base balance with the average entry taken
// from recent fills.
func (m *Manager) Get(ctx context.Context, symbol, tradeMode string) (*core.Position, error) {
	if tradeMode != "cash" {
		positions, err := m.broker.Positions(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("fetch positions %s: %w", symbol, err)
		}
		for i := range positions {
			if positions[i].CoinSize != 0 {
				return &positions[i], nil
			}
		}
		return nil, nil
	}
	return m.spotPosition(ctx, symbol)
}

// spotPosition builds a synthetic long position from the spot balance
func (m *Manager) spotPosition(ctx context.Context, symbol string) (*core.Position, error) {
	base := baseAsset(symbol)
	balance, err := m.broker.Balance(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("fetch balance %s: %w", base, err)
	}
	size := balance.Free + balance.Lock
	if size <= 0 {
		return nil, nil
	}

	ticker, err := m.feeder.Ticker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	if size*ticker.Last < spotDustNotional {
		return nil, nil
	}

	entry := m.averageEntry(ctx, symbol, size)
	if entry == 0 {
		entry = ticker.Last
	}

	return &core.Position{
		Symbol:        symbol,
		Side:          core.PositionLong,
		Contracts:     size,
		CoinSize:      size,
		EntryPrice:    entry,
		MarkPrice:     ticker.Last,
		UnrealizedPnL: (ticker.Last - entry) * size,
		Leverage:      1,
		TradeMode:     "cash",
	}, nil
}

// averageEntry reconstructs the average buy price of the held size
// from the most recent fills, newest first
func (m *Manager) averageEntry(ctx context.Context, symbol string, size float64) float64 {
	fills, err := m.broker.RecentFills(ctx, symbol, 50)
	if err != nil {
		m.log.Warnf("fills lookup failed for %s: %v", symbol, err)
		return 0
	}

	var cost, amount float64
	for i := len(fills) - 1; i >= 0 && amount < size; i-- {
		f := fills[i]
		if f.Side != core.SideBuy {
			continue
		}
		take := f.Amount
		if amount+take > size {
			take = size - amount
		}
		cost += take * f.Price
		amount += take
	}
	if amount == 0 {
		return 0
	}
	return cost / amount
}

// Close reduces a position by the given fraction (1.0 closes fully)
// with a reduce-only market order
func (m *Manager) Close(ctx context.Context, pos *core.Position, fraction float64, reason string) (core.Order, error) {
	if pos == nil {
		return core.Order{}, core.ErrNoPosition
	}
	if fraction <= 0 || fraction > 1 {
		return core.Order{}, core.ErrInvalidQuantity
	}

	side := core.SideSell
	if pos.Side == core.PositionShort {
		side = core.SideBuy
	}

	amount := pos.Contracts * fraction
	order, err := m.broker.CreateOrder(ctx, core.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       side,
		Type:       core.OrderTypeMarket,
		Amount:     amount,
		TradeMode:  pos.TradeMode,
		ReduceOnly: pos.TradeMode != "cash",
	})
	if err != nil {
		return core.Order{}, fmt.Errorf("close %s: %w", pos.Symbol, err)
	}

	m.log.WithFields(core.Fields{
		"symbol":   pos.Symbol,
		"side":     side,
		"amount":   amount,
		"fraction": fraction,
		"reason":   reason,
	}).Info("position reduced")
	return order, nil
}

// baseAsset extracts the base currency from symbols like
// "BTC/USDT:USDT" or "BTC/USDT"
func baseAsset(symbol string) string {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i]
	}
	return symbol
}
