package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/position"
	"github.com/cryptooracle/oraclebot/signal"
)

const (
	// Breakeven arming threshold and stop offset from entry
	breakevenTrigger = 0.02
	breakevenOffset  = 0.001

	// Bars consulted for the monotonic hard-stop trail
	hardTrailBars = 3
)

// monitor runs the per-round position upkeep: hard stop and target,
// breakeven raise, structural trail, the trailing profit engine and
// the reversal fast exit. Returns the position, nil once closed.
func (t *Trader) monitor(ctx context.Context, frame *core.IndicatorFrame, pos *core.Position) *core.Position {
	dr := &t.st.DynamicRisk

	if pos == nil {
		// Position vanished outside our control, drop the stale stops
		if *dr != (core.DynamicRisk{}) {
			t.log.Info("position gone, clearing dynamic risk state")
			dr.Reset()
		}
		t.st.LastPnLRatio = 0
		return nil
	}

	price := pos.MarkPrice
	if price == 0 {
		price = frame.LastPrice()
	}
	if t.cfg.TestMode {
		t.markSimPosition(pos, price)
	}

	pnlRatio := pos.PnLRatio()
	t.st.LastPnLRatio = pnlRatio

	if reason, hit := hardStopHit(pos, dr, price); hit {
		if err := t.closePosition(ctx, pos, 1.0, price, reason); err != nil {
			t.log.Errorf("hard stop close failed: %v", err)
			return pos
		}
		return nil
	}

	t.adjustHardStop(frame, pos, dr, pnlRatio)

	atrRatio := 1.0
	if frame.Len() > 0 {
		atrRatio = frame.ATRRatio.Last(0)
	}
	switch act := position.CheckTrailing(dr, pnlRatio, atrRatio, t.cfg.Trailing); act.Kind {
	case position.ActionPartialClose:
		if err := t.closePosition(ctx, pos, act.Fraction, price, act.Reason); err != nil {
			t.log.Errorf("partial close failed: %v", err)
			return pos
		}
		t.notify(fmt.Sprintf("%s partial take-profit", t.cfg.Symbol.Symbol),
			fmt.Sprintf("Stage %d: closed %.0f%% at %.2f%% profit", act.Stage, act.Fraction*100, pnlRatio*100))
		return t.refreshPosition(ctx, pos)
	case position.ActionFullClose:
		if err := t.closePosition(ctx, pos, 1.0, price, act.Reason); err != nil {
			t.log.Errorf("trailing close failed: %v", err)
			return pos
		}
		t.notify(fmt.Sprintf("%s trailing stop", t.cfg.Symbol.Symbol),
			fmt.Sprintf("Closed at %.2f%% profit, peak was %.2f%%", pnlRatio*100, dr.TrailingMaxPnL*100))
		return nil
	}

	if t.reversalAgainst(ctx, pos) {
		if err := t.closePosition(ctx, pos, 1.0, price, "reversal pattern on fast timeframe"); err != nil {
			t.log.Errorf("fast exit failed: %v", err)
			return pos
		}
		return nil
	}

	return pos
}

// hardStopHit checks the position against its hard stop and target
func hardStopHit(pos *core.Position, dr *core.DynamicRisk, price float64) (string, bool) {
	long := pos.Side == core.PositionLong
	if dr.StopLoss > 0 {
		if (long && price <= dr.StopLoss) || (!long && price >= dr.StopLoss) {
			return fmt.Sprintf("stop-loss hit at %.6f", price), true
		}
	}
	if dr.TakeProfit > 0 {
		if (long && price >= dr.TakeProfit) || (!long && price <= dr.TakeProfit) {
			return fmt.Sprintf("take-profit hit at %.6f", price), true
		}
	}
	return "", false
}

// adjustHardStop arms the breakeven stop once profit clears the
// trigger, then trails it along recent bar extremes. The stop only
// ever tightens.
func (t *Trader) adjustHardStop(frame *core.IndicatorFrame, pos *core.Position, dr *core.DynamicRisk, pnlRatio float64) {
	long := pos.Side == core.PositionLong

	if pnlRatio >= breakevenTrigger && !dr.BreakevenSet {
		dr.BreakevenSet = true
		if long {
			be := pos.EntryPrice * (1 + breakevenOffset)
			if be > dr.StopLoss {
				dr.StopLoss = be
			}
		} else {
			be := pos.EntryPrice * (1 - breakevenOffset)
			if dr.StopLoss == 0 || be < dr.StopLoss {
				dr.StopLoss = be
			}
		}
		t.log.WithFields(core.Fields{"stop": dr.StopLoss}).Info("breakeven stop armed")
	}

	if !dr.BreakevenSet || frame.Len() < hardTrailBars {
		return
	}

	if long {
		candidate := frame.Low.LastValues(hardTrailBars).Min()
		if candidate > dr.StopLoss {
			dr.StopLoss = candidate
		}
	} else {
		candidate := frame.High.LastValues(hardTrailBars).Max()
		if candidate < dr.StopLoss {
			dr.StopLoss = candidate
		}
	}
}

// reversalAgainst scans the fast timeframe for a strike pattern
// opposing the open position
func (t *Trader) reversalAgainst(ctx context.Context, pos *core.Position) bool {
	fast, err := t.deps.Pipeline.Snapshot(ctx, t.cfg.Symbol.Symbol, fastExitTimeframe)
	if err != nil {
		t.log.Warnf("fast frame snapshot failed: %v", err)
		return false
	}
	ps := signal.DetectThreeLineStrike(fast)
	if pos.Side == core.PositionLong && ps.Bearish() {
		return true
	}
	if pos.Side == core.PositionShort && ps.Bullish() {
		return true
	}
	return false
}

// closePosition reduces the position by fraction, through the paper
// ledger in test mode and reduce-only on the venue otherwise. Risk
// exits never consult the breaker; a stuck position must still close.
func (t *Trader) closePosition(ctx context.Context, pos *core.Position, fraction, price float64, reason string) error {
	amount := pos.CoinSize * fraction

	if t.cfg.TestMode {
		side := core.SignalSell
		if pos.Side == core.PositionShort {
			side = core.SignalBuy
		}
		res := t.sim.Execute(&t.st.Sim, core.Decision{
			Signal:     side,
			Confidence: core.ConfidenceHigh,
			Reason:     reason,
			Source:     "risk",
		}, price, amount)
		if !res.Ok() {
			return fmt.Errorf("sim close: %s", res.Summary)
		}
	} else {
		order, err := t.deps.Positions.Close(ctx, pos, fraction, reason)
		if err != nil {
			return err
		}
		t.saveTrade(ctx, order, price, amount)
	}

	if fraction >= 1.0 {
		t.st.DynamicRisk.Reset()
		// Only losing exits arm the re-entry cooldown
		if pos.UnrealizedPnL < 0 {
			t.st.LastCloseTime = time.Now()
		}
	}
	t.log.WithFields(core.Fields{
		"fraction": fraction,
		"price":    price,
		"reason":   reason,
	}).Info("risk exit executed")
	return nil
}

// refreshPosition re-reads the position after a partial close
func (t *Trader) refreshPosition(ctx context.Context, prev *core.Position) *core.Position {
	pos, err := t.OpenPosition(ctx)
	if err != nil {
		t.log.Warnf("position refresh failed: %v", err)
		return prev
	}
	return pos
}

// markSimPosition refreshes mark price and unrealized pnl of the paper
// position, which the simulator does not track between fills
func (t *Trader) markSimPosition(pos *core.Position, price float64) {
	pos.MarkPrice = price
	if pos.Side == core.PositionLong {
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.CoinSize
	} else {
		pos.UnrealizedPnL = (pos.EntryPrice - price) * pos.CoinSize
	}
}

func (t *Trader) saveTrade(ctx context.Context, order core.Order, price, amount float64) {
	if t.deps.Klines == nil {
		return
	}
	fillPrice := order.AvgPrice
	if fillPrice == 0 {
		fillPrice = price
	}
	fill := core.Fill{
		ID:     order.ID,
		Symbol: t.cfg.Symbol.Symbol,
		Side:   order.Side,
		Price:  fillPrice,
		Amount: amount,
		Cost:   fillPrice * amount,
		Time:   time.Now(),
	}
	if err := t.deps.Klines.SaveTrade(ctx, fill); err != nil {
		t.log.Warnf("trade persist failed: %v", err)
	}
}
