package oraclebot

import (
	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/storage"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithLogger replaces the default console logger
func WithLogger(log core.Logger) Option {
	return func(bot *Bot) {
		bot.log = log
	}
}

// WithExchange injects a venue client, used by tests and paper setups
func WithExchange(ex core.Exchange) Option {
	return func(bot *Bot) {
		bot.exchange = ex
	}
}

// WithAdvisor injects a decision advisor, replacing the LLM client
func WithAdvisor(a core.Advisor) Option {
	return func(bot *Bot) {
		bot.advisor = a
	}
}

// WithNotifier injects an alert channel, replacing the webhook
func WithNotifier(n core.Notifier) Option {
	return func(bot *Bot) {
		bot.notifier = n
	}
}

// WithStateStore injects a prebuilt state store
func WithStateStore(s *storage.StateStore) Option {
	return func(bot *Bot) {
		bot.states = s
	}
}

// WithKlineStore injects a prebuilt kline store
func WithKlineStore(s *storage.KlineStore) Option {
	return func(bot *Bot) {
		bot.klines = s
	}
}

// WithConfigPath enables hot reload: the file is watched for
// modifications and symbol changes are applied between rounds
func WithConfigPath(path string) Option {
	return func(bot *Bot) {
		bot.cfgPath = path
	}
}
