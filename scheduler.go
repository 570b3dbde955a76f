package oraclebot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/trader"
)

// A round never spins faster than this, whatever the config says
const minRoundGap = time.Second

// Run drives the scheduler until the context is canceled or the
// global hard stop fires. Returns nil on a clean stop.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.risk.InitBaseline(ctx); err != nil {
		return fmt.Errorf("risk baseline: %w", err)
	}
	if b.telegram != nil {
		b.telegram.Start()
	}
	b.log.Infof("trading loop started: %d symbols, %ds rounds", len(b.traders), b.cfg.Trading.LoopInterval)

	interval := time.Duration(b.cfg.Trading.LoopInterval) * time.Second
	for {
		started := time.Now()

		if b.watcher != nil && b.watcher.Changed() {
			b.reloadConfig()
		}

		stop, err := b.round(ctx)
		if err != nil {
			b.log.Errorf("round failed: %v", err)
		}
		if stop {
			return nil
		}

		sleep := interval - time.Since(started)
		if sleep < minRoundGap {
			sleep = minRoundGap
		}
		select {
		case <-ctx.Done():
			b.log.Info("context canceled, stopping")
			return nil
		case <-time.After(sleep):
		}
	}
}

// round executes one scheduler round: global risk check, trader
// fan-out, dashboard. Returns stop=true when the hard stop fired.
func (b *Bot) round(ctx context.Context) (bool, error) {
	verdict, err := b.risk.Check(ctx)
	if err != nil {
		// Without a trusted equity reading no trader runs this round
		return false, err
	}

	if verdict.HardStop {
		b.log.Warnf("global hard stop: %s", verdict.Reason)
		if b.notifier != nil {
			b.notifier.Notify("GLOBAL STOP", verdict.Reason)
		}
		if err := b.risk.CloseAll(ctx, b.traderViews()); err != nil {
			b.log.Errorf("liquidation incomplete: %v", err)
		}
		return true, nil
	}
	if verdict.OpeningBlocked {
		b.log.Warnf("openings blocked: %s", verdict.Reason)
	}

	env := trader.Env{
		Equity:           verdict.Equity,
		GlobalRiskFactor: verdict.RiskFactor,
		OpeningBlocked:   verdict.OpeningBlocked,
		ActiveSymbols:    len(b.traders),
	}
	b.fanOut(ctx, env)

	b.printDashboard(verdict)
	return false, nil
}

// fanOut ticks every trader with bounded concurrency. A panicking
// trader is contained to its own symbol.
func (b *Bot) fanOut(ctx context.Context, env trader.Env) {
	sem := make(chan struct{}, b.cfg.Trading.MaxConcurrentTraders)
	var wg sync.WaitGroup

	for _, symbol := range b.order {
		tr := b.traders[symbol]
		wg.Add(1)
		go func(tr *trader.Trader) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					b.log.Errorf("trader %s panicked: %v", tr.Symbol(), r)
				}
			}()
			tr.Tick(ctx, env)
		}(tr)
	}
	wg.Wait()
}

// reloadConfig re-reads the config file and applies symbol additions
// and removals without restarting. Trading parameter changes apply to
// new traders only; existing traders keep their wiring.
func (b *Bot) reloadConfig() {
	fresh, err := config.Load(b.cfgPath)
	if err != nil {
		b.log.Errorf("config reload failed, keeping current config: %v", err)
		return
	}

	added, removed := config.DiffSymbols(b.cfg.SymbolNames(), fresh.SymbolNames())
	b.cfg = fresh

	for _, symbol := range removed {
		b.log.Infof("symbol removed: %s", symbol)
		b.removeTrader(symbol)
	}
	for _, symbol := range added {
		if sc, ok := fresh.Symbol(symbol); ok {
			b.log.Infof("symbol added: %s", symbol)
			b.addTrader(sc)
		}
	}
	b.risk.SetSymbols(fresh.SymbolNames())

	if len(added)+len(removed) > 0 && b.notifier != nil {
		b.notifier.Notify("Config Reloaded",
			fmt.Sprintf("added %d, removed %d symbols", len(added), len(removed)))
	}
}
