package exchange

import (
	"context"

	"github.com/cryptooracle/oraclebot/core"
	"golang.org/x/time/rate"
)

// Default shared budget across all symbol traders, comfortably under
// the venue's per-endpoint limits
const (
	defaultRequestsPerSecond = 20
	defaultBurst             = 40
)

// Throttled wraps an exchange with a shared token bucket so concurrent
// symbol traders cannot stampede the venue
type Throttled struct {
	inner   core.Exchange
	limiter *rate.Limiter
}

// NewThrottled wraps an exchange with the given request budget.
// Non-positive values fall back to the defaults.
func NewThrottled(inner core.Exchange, rps float64, burst int) *Throttled {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Throttled{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *Throttled) wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

func (t *Throttled) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Candles(ctx, symbol, timeframe, limit)
}

func (t *Throttled) Ticker(ctx context.Context, symbol string) (core.Ticker, error) {
	if err := t.wait(ctx); err != nil {
		return core.Ticker{}, err
	}
	return t.inner.Ticker(ctx, symbol)
}

func (t *Throttled) AssetInfo(ctx context.Context, symbol string) (core.AssetInfo, error) {
	if err := t.wait(ctx); err != nil {
		return core.AssetInfo{}, err
	}
	return t.inner.AssetInfo(ctx, symbol)
}

func (t *Throttled) FundingRate(ctx context.Context, symbol string) (float64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.FundingRate(ctx, symbol)
}

func (t *Throttled) Equity(ctx context.Context, currency string) (float64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.Equity(ctx, currency)
}

func (t *Throttled) Balance(ctx context.Context, asset string) (core.Balance, error) {
	if err := t.wait(ctx); err != nil {
		return core.Balance{}, err
	}
	return t.inner.Balance(ctx, asset)
}

func (t *Throttled) Positions(ctx context.Context, symbol string) ([]core.Position, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Positions(ctx, symbol)
}

func (t *Throttled) RecentFills(ctx context.Context, symbol string, limit int) ([]core.Fill, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.RecentFills(ctx, symbol, limit)
}

func (t *Throttled) Ledger(ctx context.Context, currency string, limit int) ([]core.LedgerEntry, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Ledger(ctx, currency, limit)
}

func (t *Throttled) TakerFeeRate(ctx context.Context, symbol string) (float64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.inner.TakerFeeRate(ctx, symbol)
}

func (t *Throttled) SetLeverage(ctx context.Context, symbol string, leverage int, tradeMode string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.inner.SetLeverage(ctx, symbol, leverage, tradeMode)
}

func (t *Throttled) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	if err := t.wait(ctx); err != nil {
		return core.Order{}, err
	}
	return t.inner.CreateOrder(ctx, req)
}
