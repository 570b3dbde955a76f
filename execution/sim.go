package execution

import (
	"fmt"

	"github.com/cryptooracle/oraclebot/core"
)

// Treat a close covering at least this share of the position as full
const simFullCloseShare = 0.99

// Simulator executes decisions against a paper ledger. It mirrors the
// live executor's return protocol so test mode is a drop-in swap.
type Simulator struct {
	symbol    string
	tradeMode string
	feeRate   float64
	log       core.Logger
}

// NewSimulator builds a paper executor for one symbol
func NewSimulator(symbol, tradeMode string, feeRate float64, log core.Logger) *Simulator {
	if feeRate <= 0 {
		feeRate = 0.001
	}
	return &Simulator{symbol: symbol, tradeMode: tradeMode, feeRate: feeRate, log: log}
}

// Execute applies the decision to the sim state at the given price
func (s *Simulator) Execute(st *core.SimState, d core.Decision, price, amount float64) Result {
	if amount <= 0 || price <= 0 {
		return hold("sim: nothing to trade")
	}

	fee := amount * price * s.feeRate

	switch d.Signal {
	case core.SignalBuy:
		return s.buy(st, amount, price, fee)
	case core.SignalSell:
		return s.sell(st, amount, price, fee)
	}
	return hold("sim: hold")
}

func (s *Simulator) buy(st *core.SimState, amount, price, fee float64) Result {
	pos := st.Position

	// Buy covers a short before it opens a long
	if pos != nil && pos.Side == core.PositionShort {
		closeAmount, full := closeSize(amount, pos.CoinSize)
		pnl := (pos.EntryPrice-price)*closeAmount - fee
		s.settle(st, pnl)
		if full {
			st.Position = nil
		} else {
			pos.Contracts -= closeAmount
			pos.CoinSize -= closeAmount
		}
		s.record(st)
		return Result{StatusExecutedSim, fmt.Sprintf("sim cover short %.6f @ %.6f pnl %.2f", closeAmount, price, pnl)}
	}

	if pos != nil && pos.Side == core.PositionLong {
		avg := averageIn(pos, amount, price)
		s.settle(st, -fee)
		s.record(st)
		return Result{StatusExecutedSim, fmt.Sprintf("sim add long %.6f @ %.6f avg %.6f", amount, price, avg)}
	}

	st.Position = &core.Position{
		Symbol:     s.symbol,
		Side:       core.PositionLong,
		Contracts:  amount,
		CoinSize:   amount,
		EntryPrice: price,
		Leverage:   1,
		TradeMode:  s.tradeMode,
	}
	s.settle(st, -fee)
	if s.tradeMode == "cash" {
		st.Balance -= amount * price
	}
	s.record(st)
	return Result{StatusExecutedSim, fmt.Sprintf("sim open long %.6f @ %.6f fee %.2f", amount, price, fee)}
}

func (s *Simulator) sell(st *core.SimState, amount, price, fee float64) Result {
	pos := st.Position

	if pos != nil && pos.Side == core.PositionLong {
		closeAmount, full := closeSize(amount, pos.CoinSize)
		pnl := (price-pos.EntryPrice)*closeAmount - fee
		s.settle(st, pnl)
		if s.tradeMode == "cash" {
			st.Balance += closeAmount * pos.EntryPrice
		}
		if full {
			st.Position = nil
		} else {
			pos.Contracts -= closeAmount
			pos.CoinSize -= closeAmount
		}
		s.record(st)
		return Result{StatusExecutedSim, fmt.Sprintf("sim close long %.6f @ %.6f pnl %.2f", closeAmount, price, pnl)}
	}

	if pos != nil && pos.Side == core.PositionShort {
		avg := averageIn(pos, amount, price)
		s.settle(st, -fee)
		s.record(st)
		return Result{StatusExecutedSim, fmt.Sprintf("sim add short %.6f @ %.6f avg %.6f", amount, price, avg)}
	}

	if s.tradeMode == "cash" {
		return failed("sim: cannot short in cash mode")
	}
	st.Position = &core.Position{
		Symbol:     s.symbol,
		Side:       core.PositionShort,
		Contracts:  amount,
		CoinSize:   amount,
		EntryPrice: price,
		Leverage:   1,
		TradeMode:  s.tradeMode,
	}
	s.settle(st, -fee)
	s.record(st)
	return Result{StatusExecutedSim, fmt.Sprintf("sim open short %.6f @ %.6f fee %.2f", amount, price, fee)}
}

func (s *Simulator) settle(st *core.SimState, pnl float64) {
	st.RealizedPnL += pnl
	st.Balance += pnl
}

func (s *Simulator) record(st *core.SimState) {
	st.TradeCount++
}

// closeSize caps a close at the held size and detects full closes
func closeSize(requested, held float64) (amount float64, full bool) {
	if requested >= held*simFullCloseShare {
		return held, true
	}
	return requested, false
}

// averageIn recalculates the entry after adding size at a new price
func averageIn(pos *core.Position, amount, price float64) float64 {
	newSize := pos.CoinSize + amount
	avg := (pos.CoinSize*pos.EntryPrice + amount*price) / newSize
	pos.Contracts = newSize
	pos.CoinSize = newSize
	pos.EntryPrice = avg
	return avg
}
