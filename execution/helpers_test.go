package execution

import (
	"context"

	"github.com/cryptooracle/oraclebot/core"
)

// nopLogger discards everything
type nopLogger struct{}

func (nopLogger) Debug(args ...interface{})                   {}
func (nopLogger) Debugf(format string, args ...interface{})   {}
func (nopLogger) Info(args ...interface{})                    {}
func (nopLogger) Infof(format string, args ...interface{})    {}
func (nopLogger) Warn(args ...interface{})                    {}
func (nopLogger) Warnf(format string, args ...interface{})    {}
func (nopLogger) Error(args ...interface{})                   {}
func (nopLogger) Errorf(format string, args ...interface{})   {}
func (l nopLogger) WithFields(fields core.Fields) core.Logger { return l }

// fakeExchange is a scriptable venue stub. CreateOrder pops one error
// per call from orderErrs before succeeding.
type fakeExchange struct {
	tickerPrice float64
	assetInfo   core.AssetInfo
	takerFee    float64

	orderErrs []error
	orders    []core.OrderRequest
}

func (f *fakeExchange) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) Ticker(ctx context.Context, symbol string) (core.Ticker, error) {
	return core.Ticker{Symbol: symbol, Last: f.tickerPrice}, nil
}

func (f *fakeExchange) AssetInfo(ctx context.Context, symbol string) (core.AssetInfo, error) {
	return f.assetInfo, nil
}

func (f *fakeExchange) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (f *fakeExchange) Equity(ctx context.Context, currency string) (float64, error) {
	return 0, nil
}

func (f *fakeExchange) Balance(ctx context.Context, asset string) (core.Balance, error) {
	return core.Balance{}, nil
}

func (f *fakeExchange) Positions(ctx context.Context, symbol string) ([]core.Position, error) {
	return nil, nil
}

func (f *fakeExchange) RecentFills(ctx context.Context, symbol string, limit int) ([]core.Fill, error) {
	return nil, nil
}

func (f *fakeExchange) Ledger(ctx context.Context, currency string, limit int) ([]core.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeExchange) TakerFeeRate(ctx context.Context, symbol string) (float64, error) {
	return f.takerFee, nil
}

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int, tradeMode string) error {
	return nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	f.orders = append(f.orders, req)
	if len(f.orderErrs) > 0 {
		err := f.orderErrs[0]
		f.orderErrs = f.orderErrs[1:]
		if err != nil {
			return core.Order{}, err
		}
	}
	return core.Order{ID: "test-order", Symbol: req.Symbol, Amount: req.Amount}, nil
}
