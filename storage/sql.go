// Package storage persists candles, signals, trades and bot state.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Kline is one persisted candle row with its indicator snapshot
type Kline struct {
	Symbol           string    `gorm:"primaryKey" json:"symbol"`
	Timeframe        string    `gorm:"primaryKey" json:"timeframe"`
	Timestamp        time.Time `gorm:"primaryKey" json:"timestamp"`
	Open             float64   `json:"open"`
	High             float64   `json:"high"`
	Low              float64   `json:"low"`
	Close            float64   `json:"close"`
	Volume           float64   `json:"volume"`
	RSI              float64   `json:"rsi"`
	ADX              float64   `json:"adx"`
	ATR              float64   `json:"atr"`
	MACD             float64   `json:"macd"`
	VolatilityStatus string    `json:"volatility_status"`
}

// SignalRecord is one advisor decision as persisted
type SignalRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `gorm:"autoCreateTime" json:"timestamp"`
	Signal     string    `json:"signal"`
	Confidence string    `json:"confidence"`
	Reason     string    `json:"reason"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	PnL        float64   `json:"pnl"`
}

// TradeRecord is one executed fill as persisted
type TradeRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Cost      float64   `json:"cost"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// SQLConfig holds connection pool settings for the SQLite store
type SQLConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLConfig returns sane pool settings for a local SQLite file
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	}
}

// KlineStore persists candles, signals and trades in SQLite via GORM
type KlineStore struct {
	db *gorm.DB
}

// NewFromSQLite opens (or creates) the SQLite database and migrates
// the schema
func NewFromSQLite(dbPath string, config SQLConfig) (*KlineStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err = db.AutoMigrate(&Kline{}, &SignalRecord{}, &TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &KlineStore{db: db}, nil
}

// SaveKlines upserts candle rows keyed by (symbol, timeframe, timestamp).
// Replaying identical rows is a no-op, which keeps the merge idempotent.
func (s *KlineStore) SaveKlines(ctx context.Context, candles []core.Candle, regime core.Regime) error {
	if len(candles) == 0 {
		return nil
	}
	rows := lo.Map(candles, func(c core.Candle, _ int) Kline {
		return Kline{
			Symbol:           c.Symbol,
			Timeframe:        c.Timeframe,
			Timestamp:        c.Time.UTC(),
			Open:             c.Open,
			High:             c.High,
			Low:              c.Low,
			Close:            c.Close,
			Volume:           c.Volume,
			RSI:              c.Meta("rsi", 0),
			ADX:              c.Meta("adx", 0),
			ATR:              c.Meta("atr", 0),
			MACD:             c.Meta("macd", 0),
			VolatilityStatus: string(regime),
		}
	})

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true})
	if result := tx.Create(&rows); result.Error != nil {
		return fmt.Errorf("failed to save klines: %w", result.Error)
	}
	return nil
}

// RecentKlines returns up to limit candles in ascending time order.
// Used on boot to resume with fewer venue requests.
func (s *KlineStore) RecentKlines(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	var rows []Kline
	result := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", result.Error)
	}

	candles := lo.Map(rows, func(k Kline, _ int) core.Candle {
		return core.Candle{
			Symbol:    k.Symbol,
			Timeframe: k.Timeframe,
			Time:      k.Timestamp.UTC(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
			Complete:  true,
			Metadata: map[string]float64{
				"rsi":  k.RSI,
				"adx":  k.ADX,
				"atr":  k.ATR,
				"macd": k.MACD,
			},
		}
	})
	return lo.Reverse(candles), nil
}

// SaveSignal records one advisor decision
func (s *KlineStore) SaveSignal(ctx context.Context, symbol string, d core.Decision, price float64, status string) error {
	record := SignalRecord{
		Symbol:     symbol,
		Signal:     string(d.Signal),
		Confidence: string(d.Confidence),
		Reason:     d.Reason,
		Price:      price,
		Amount:     d.Amount,
		Status:     status,
	}
	if result := s.db.WithContext(ctx).Create(&record); result.Error != nil {
		return fmt.Errorf("failed to save signal: %w", result.Error)
	}
	return nil
}

// SaveTrade records one executed fill
func (s *KlineStore) SaveTrade(ctx context.Context, fill core.Fill) error {
	record := TradeRecord{
		Symbol: fill.Symbol,
		Side:   string(fill.Side),
		Price:  fill.Price,
		Amount: fill.Amount,
		Cost:   fill.Cost,
		Fee:    fill.Fee,
	}
	if result := s.db.WithContext(ctx).Create(&record); result.Error != nil {
		return fmt.Errorf("failed to save trade: %w", result.Error)
	}
	return nil
}

// Close closes the underlying database connection
func (s *KlineStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
