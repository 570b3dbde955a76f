// Package oraclebot wires the trading control plane: per-symbol
// traders driven by a round scheduler, a global risk manager, market
// data and state stores, the AI advisor and operator notifications.
package oraclebot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cryptooracle/oraclebot/advisor"
	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/exchange"
	zl "github.com/cryptooracle/oraclebot/logger/zerolog"
	"github.com/cryptooracle/oraclebot/market"
	"github.com/cryptooracle/oraclebot/notification"
	"github.com/cryptooracle/oraclebot/position"
	"github.com/cryptooracle/oraclebot/risk"
	"github.com/cryptooracle/oraclebot/storage"
	"github.com/cryptooracle/oraclebot/trader"
)

// Bot is the assembled trading control plane
type Bot struct {
	cfg     *config.Config
	cfgPath string
	watcher *config.Watcher

	log       core.Logger
	exchange  core.Exchange
	advisor   core.Advisor
	notifier  core.Notifier
	telegram  core.NotifierWithStart
	states    *storage.StateStore
	klines    *storage.KlineStore
	recorder  *risk.Recorder
	risk      *risk.Manager
	pipeline  *market.Pipeline
	positions *position.Manager

	traders map[string]*trader.Trader
	order   []string
}

// NewBot assembles the bot from configuration. Options override the
// default wiring, everything not overridden is built from cfg.
func NewBot(cfg *config.Config, options ...Option) (*Bot, error) {
	bot := &Bot{
		cfg:     cfg,
		traders: make(map[string]*trader.Trader),
	}

	for _, option := range options {
		option(bot)
	}

	if bot.log == nil {
		bot.log = zl.New(cfg.LogLevel, os.Stderr)
	}
	if bot.exchange == nil {
		bot.exchange = exchange.NewThrottled(exchange.NewOKX(cfg.Exchanges.OKX, bot.log), 0, 0)
	}
	if bot.advisor == nil {
		bot.advisor = advisor.NewClient(cfg.Models.DeepSeek, bot.log)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	var err error
	if bot.states == nil {
		bot.states, err = storage.NewStateStoreFromFile(filepath.Join(cfg.DataDir, "state.db"))
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
	}
	if bot.klines == nil {
		bot.klines, err = storage.NewFromSQLite(filepath.Join(cfg.DataDir, "oraclebot.db"), storage.DefaultSQLConfig())
		if err != nil {
			return nil, fmt.Errorf("kline store: %w", err)
		}
	}

	if err := bot.initNotifications(); err != nil {
		return nil, err
	}

	bot.recorder, err = risk.NewRecorder(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("pnl recorder: %w", err)
	}

	bot.risk = risk.NewManager(bot.exchange, bot.states, bot.notifier, bot.recorder, cfg.Trading.RiskControl, bot.log)
	bot.pipeline = market.NewPipeline(bot.exchange, bot.klines, bot.log)
	bot.positions = position.NewManager(bot.exchange, bot.exchange, bot.log)

	if bot.cfgPath != "" {
		if bot.watcher, err = config.NewWatcher(bot.cfgPath); err != nil {
			bot.log.Warnf("config watcher disabled: %v", err)
		}
	}

	for _, sc := range cfg.Symbols {
		bot.addTrader(sc)
	}
	bot.risk.SetSymbols(cfg.SymbolNames())

	return bot, nil
}

// initNotifications wires the webhook and telegram channels per config
func (b *Bot) initNotifications() error {
	if !b.cfg.Notification.Enabled {
		return nil
	}

	if b.notifier == nil {
		b.notifier = notification.NewWebhook(b.cfg.Notification.WebhookURL, b.log)
	}

	if b.cfg.Notification.TelegramToken != "" && b.telegram == nil {
		tg, err := notification.NewTelegram(
			b.cfg.Notification.TelegramToken,
			b.cfg.Notification.TelegramChatID,
			b.renderDashboard,
			b.log,
		)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		b.telegram = tg
		// Telegram becomes the primary channel when both are configured
		b.notifier = fanout{b.notifier, tg}
	}
	return nil
}

// addTrader builds and registers the trader for one symbol
func (b *Bot) addTrader(sc config.SymbolConfig) {
	t := b.cfg.Trading
	tr := trader.New(trader.Config{
		Symbol:     sc,
		Timeframe:  t.Timeframe,
		BarClose:   t.BarClose,
		TestMode:   t.TestMode,
		AIInterval: time.Duration(t.Strategy.AIInterval) * time.Second,
		Trailing: position.TrailingConfig{
			Enabled:      t.Strategy.TrailingStop.Enabled,
			Activation:   t.Strategy.TrailingStop.ActivationPnL,
			BaseCallback: t.Strategy.TrailingStop.CallbackRate,
		},
		Gate:           t.Strategy.SignalGate,
		Sentiment:      t.Strategy.SentimentFilter.Score,
		InitialBalance: t.RiskControl.InitialBalanceUSDT,
		MaxSlippagePct: t.MaxSlippagePercent,
		MinConfidence:  b.cfg.MinConfidenceLevel(),
		Cooldown:       time.Duration(t.RiskControl.CooldownSeconds) * time.Second,
		MinInterval:    time.Duration(t.RiskControl.MinIntervalSeconds) * time.Second,
	}, trader.Deps{
		Exchange:  b.exchange,
		Pipeline:  b.pipeline,
		Advisor:   b.advisor,
		Positions: b.positions,
		States:    b.states,
		Klines:    b.klines,
		Notifier:  b.notifier,
		Log:       b.log,
	})

	b.traders[sc.Symbol] = tr
	b.order = append(b.order, sc.Symbol)
}

// removeTrader drops a symbol and its persisted trader state
func (b *Bot) removeTrader(symbol string) {
	delete(b.traders, symbol)
	for i, s := range b.order {
		if s == symbol {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if err := b.states.DeleteSymbolState(symbol); err != nil {
		b.log.Warnf("state delete failed for %s: %v", symbol, err)
	}
}

// traderViews exposes the traders to the risk manager
func (b *Bot) traderViews() []risk.TraderView {
	views := make([]risk.TraderView, 0, len(b.order))
	for _, symbol := range b.order {
		views = append(views, b.traders[symbol])
	}
	return views
}

// Shutdown flushes state, prints the pnl summary and closes the stores
func (b *Bot) Shutdown() {
	b.recorder.Summary(os.Stdout)
	if err := b.states.Close(); err != nil {
		b.log.Warnf("state store close failed: %v", err)
	}
	if err := b.klines.Close(); err != nil {
		b.log.Warnf("kline store close failed: %v", err)
	}
	b.log.Info("shutdown complete")
}

// fanout delivers every alert to all wrapped notifiers
type fanout []core.Notifier

func (f fanout) Notify(title, message string) {
	for _, n := range f {
		if n != nil {
			n.Notify(title, message)
		}
	}
}
