// Package config loads the bot configuration from a JSON file with
// environment variable overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cryptooracle/oraclebot/core"
)

// Allocation is a per-symbol capital allocation. It decodes from a
// JSON number (fraction of base capital when <=1, fixed quote amount
// when >1) or the string "auto" (even split across active symbols).
type Allocation struct {
	Auto  bool
	Value float64
}

// UnmarshalJSON accepts "auto" or a number
func (a *Allocation) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if strings.EqualFold(s, "auto") || s == "" || s == "null" {
		a.Auto = true
		a.Value = 0
		return nil
	}
	var v float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return fmt.Errorf("invalid allocation %q: %w", s, err)
	}
	a.Auto = false
	a.Value = v
	return nil
}

// MarshalJSON renders "auto" or the numeric value
func (a Allocation) MarshalJSON() ([]byte, error) {
	if a.Auto {
		return []byte(`"auto"`), nil
	}
	return json.Marshal(a.Value)
}

// Quota resolves the allocation to a quote-currency amount given the
// base capital and the number of active symbols
func (a Allocation) Quota(base float64, activeSymbols int) float64 {
	if a.Auto {
		if activeSymbols <= 0 {
			activeSymbols = 1
		}
		return base / float64(activeSymbols)
	}
	if a.Value <= 1 {
		return base * a.Value
	}
	return a.Value
}

// SymbolConfig is the per-symbol trading configuration
type SymbolConfig struct {
	Symbol     string     `json:"symbol"`
	Leverage   int        `json:"leverage"`
	TradeMode  string     `json:"trade_mode"`
	MarginMode string     `json:"margin_mode"`
	Allocation Allocation `json:"allocation"`
	Amount     float64    `json:"amount"`
}

// OKXConfig holds venue credentials
type OKXConfig struct {
	APIKey   string            `json:"api_key"`
	Secret   string            `json:"secret"`
	Password string            `json:"password"`
	Options  map[string]string `json:"options"`
}

// ModelConfig holds LLM advisor connection settings
type ModelConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// NotificationConfig controls the outbound alert channels
type NotificationConfig struct {
	Enabled        bool   `json:"enabled"`
	WebhookURL     string `json:"webhook_url"`
	TelegramToken  string `json:"telegram_token"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// TrailingStopConfig tunes the dynamic trailing stop
type TrailingStopConfig struct {
	Enabled       bool    `json:"enabled"`
	ActivationPnL float64 `json:"activation_pnl"`
	CallbackRate  float64 `json:"callback_rate"`
}

// SignalGateConfig tunes the technical soft filter
type SignalGateConfig struct {
	RSIMin float64 `json:"rsi_min"`
	RSIMax float64 `json:"rsi_max"`
	ADXMin float64 `json:"adx_min"`
}

// SentimentFilterConfig tunes the sentiment-based sizing inputs
type SentimentFilterConfig struct {
	Enabled bool    `json:"enabled"`
	Score   float64 `json:"score"`
}

// StrategyConfig groups the per-strategy knobs
type StrategyConfig struct {
	AIInterval      int                   `json:"ai_interval"`
	TrailingStop    TrailingStopConfig    `json:"trailing_stop"`
	SignalGate      SignalGateConfig      `json:"signal_gate"`
	SentimentFilter SentimentFilterConfig `json:"sentiment_filter"`
}

// RiskControlConfig holds the global risk limits
type RiskControlConfig struct {
	InitialBalanceUSDT float64 `json:"initial_balance_usdt"`
	MaxProfitUSDT      float64 `json:"max_profit_usdt"`
	MaxLossUSDT        float64 `json:"max_loss_usdt"`
	MaxProfitRate      float64 `json:"max_profit_rate"`
	MaxLossRate        float64 `json:"max_loss_rate"`
	DailyDrawdownLimit float64 `json:"daily_drawdown_limit"`
	DailyProfitLock    float64 `json:"daily_profit_lock"`
	CooldownSeconds    int     `json:"cooldown_seconds"`
	MinIntervalSeconds int     `json:"min_interval_seconds"`
}

// TradingConfig groups the trading loop settings
type TradingConfig struct {
	Timeframe            string            `json:"timeframe"`
	LoopInterval         int               `json:"loop_interval"`
	TestMode             bool              `json:"test_mode"`
	BarClose             bool              `json:"bar_close"`
	MaxSlippagePercent   float64           `json:"max_slippage_percent"`
	MinConfidence        string            `json:"min_confidence"`
	MaxConcurrentTraders int               `json:"max_concurrent_traders"`
	Strategy             StrategyConfig    `json:"strategy"`
	RiskControl          RiskControlConfig `json:"risk_control"`
}

// Config is the full bot configuration
type Config struct {
	Exchanges struct {
		OKX OKXConfig `json:"okx"`
	} `json:"exchanges"`
	Models struct {
		DeepSeek ModelConfig `json:"deepseek"`
	} `json:"models"`
	Notification NotificationConfig `json:"notification"`
	Trading      TradingConfig      `json:"trading"`
	Symbols      []SymbolConfig     `json:"symbols"`
	LogLevel     string             `json:"log_level"`
	DataDir      string             `json:"data_dir"`
}

// Load reads, decodes and normalizes the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets environment variables override file secrets
func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Exchanges.OKX.APIKey, "OKX_API_KEY")
	override(&c.Exchanges.OKX.Secret, "OKX_SECRET")
	override(&c.Exchanges.OKX.Password, "OKX_PASSWORD")
	override(&c.Models.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	override(&c.Notification.WebhookURL, "NOTIFICATION_WEBHOOK")
	override(&c.Notification.TelegramToken, "TELEGRAM_TOKEN")
	override(&c.LogLevel, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.Trading.Timeframe == "" {
		c.Trading.Timeframe = "15m"
	}
	if c.Trading.LoopInterval <= 0 {
		c.Trading.LoopInterval = 60
	}
	if c.Trading.MaxConcurrentTraders <= 0 {
		c.Trading.MaxConcurrentTraders = 5
	}
	if c.Trading.MaxSlippagePercent <= 0 {
		c.Trading.MaxSlippagePercent = 0.5
	}
	if c.Trading.MinConfidence == "" {
		c.Trading.MinConfidence = string(core.ConfidenceMedium)
	}
	if c.Trading.Strategy.AIInterval <= 0 {
		c.Trading.Strategy.AIInterval = 300
	}
	if c.Trading.Strategy.TrailingStop.ActivationPnL <= 0 {
		c.Trading.Strategy.TrailingStop.ActivationPnL = 0.02
	}
	if c.Trading.Strategy.TrailingStop.CallbackRate <= 0 {
		c.Trading.Strategy.TrailingStop.CallbackRate = 0.005
	}
	if c.Trading.Strategy.SignalGate.RSIMax <= 0 {
		c.Trading.Strategy.SignalGate.RSIMax = 75
	}
	if c.Trading.Strategy.SignalGate.RSIMin <= 0 {
		c.Trading.Strategy.SignalGate.RSIMin = 25
	}
	if c.Trading.Strategy.SignalGate.ADXMin <= 0 {
		c.Trading.Strategy.SignalGate.ADXMin = 20
	}
	if c.Trading.Strategy.SentimentFilter.Score <= 0 {
		c.Trading.Strategy.SentimentFilter.Score = 50
	}
	if c.Trading.RiskControl.DailyDrawdownLimit <= 0 {
		c.Trading.RiskControl.DailyDrawdownLimit = 0.15
	}
	if c.Trading.RiskControl.DailyProfitLock <= 0 {
		c.Trading.RiskControl.DailyProfitLock = 0.15
	}
	if c.Trading.RiskControl.CooldownSeconds <= 0 {
		c.Trading.RiskControl.CooldownSeconds = 180
	}
	if c.Trading.RiskControl.MinIntervalSeconds <= 0 {
		c.Trading.RiskControl.MinIntervalSeconds = 300
	}
	if c.Models.DeepSeek.BaseURL == "" {
		c.Models.DeepSeek.BaseURL = "https://api.deepseek.com/v1"
	}
	if c.Models.DeepSeek.Model == "" {
		c.Models.DeepSeek.Model = "deepseek-chat"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	for i := range c.Symbols {
		if c.Symbols[i].Leverage <= 0 {
			c.Symbols[i].Leverage = 1
		}
		if c.Symbols[i].TradeMode == "" {
			c.Symbols[i].TradeMode = "cross"
		}
	}
}

// Validate rejects configurations the bot cannot run with
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: no symbols configured")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("config: symbol entry with empty symbol")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("config: duplicate symbol %s", s.Symbol)
		}
		seen[s.Symbol] = true
		switch s.TradeMode {
		case "cash", "cross", "isolated":
		default:
			return fmt.Errorf("config: symbol %s has invalid trade_mode %q", s.Symbol, s.TradeMode)
		}
	}
	return nil
}

// SymbolNames returns the configured symbol identifiers in order
func (c *Config) SymbolNames() []string {
	names := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		names = append(names, s.Symbol)
	}
	return names
}

// Symbol returns the configuration for one symbol, if present
func (c *Config) Symbol(name string) (SymbolConfig, bool) {
	for _, s := range c.Symbols {
		if s.Symbol == name {
			return s, true
		}
	}
	return SymbolConfig{}, false
}

// MinConfidenceLevel returns the configured minimum as an ordinal
func (c *Config) MinConfidenceLevel() int {
	return core.NormalizeConfidence(c.Trading.MinConfidence).Level()
}
