package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/stretchr/testify/require"
)

func newTestOKX(t *testing.T, handler http.HandlerFunc) *OKX {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &OKX{
		baseURL:    srv.URL,
		httpClient: srv.Client(),
		instCache:  make(map[string]core.AssetInfo),
	}
}

func orderHandler(bodies *[]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			*bodies = append(*bodies, body)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"1001"}]}`))
	}
}

func TestCreateOrderSpotMarketBuyTargetsBaseCcy(t *testing.T) {
	var bodies []map[string]any
	o := newTestOKX(t, orderHandler(&bodies))

	_, err := o.CreateOrder(context.Background(), core.OrderRequest{
		Symbol:    "ETH/USDT",
		Side:      core.SideBuy,
		Type:      core.OrderTypeMarket,
		Amount:    0.5,
		TradeMode: "cash",
	})
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	// Without tgtCcy OKX reads sz as the quote amount to spend
	require.Equal(t, "base_ccy", bodies[0]["tgtCcy"])
	require.Equal(t, "0.5", bodies[0]["sz"])
}

func TestCreateOrderTgtCcyOnlyOnSpotBuys(t *testing.T) {
	var bodies []map[string]any
	o := newTestOKX(t, orderHandler(&bodies))

	// Swap buy: sz is already in contracts
	_, err := o.CreateOrder(context.Background(), core.OrderRequest{
		Symbol:    "ETH/USDT:USDT",
		Side:      core.SideBuy,
		Type:      core.OrderTypeMarket,
		Amount:    10,
		TradeMode: "isolated",
	})
	require.NoError(t, err)

	// Spot sell: sz is the base amount by default
	_, err = o.CreateOrder(context.Background(), core.OrderRequest{
		Symbol:    "ETH/USDT",
		Side:      core.SideSell,
		Type:      core.OrderTypeMarket,
		Amount:    0.5,
		TradeMode: "cash",
	})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	require.NotContains(t, bodies[0], "tgtCcy")
	require.NotContains(t, bodies[1], "tgtCcy")
}

func TestEquityPrefersUnifiedTotal(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"totalEq":"1234.5","details":[{"ccy":"USDT","eq":"100"}]}]}`))
	})

	eq, err := o.Equity(context.Background(), "USDT")
	require.NoError(t, err)
	require.Equal(t, 1234.5, eq)
}

func TestEquityFallsBackToCurrencyDetail(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"totalEq":"","details":[{"ccy":"USDT","eq":"100"}]}]}`))
	})

	eq, err := o.Equity(context.Background(), "USDT")
	require.NoError(t, err)
	require.Equal(t, 100.0, eq)
}

func TestFundingRateSpotIsZero(t *testing.T) {
	called := false
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rate, err := o.FundingRate(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	require.Zero(t, rate)
	// Spot has no funding endpoint to consult
	require.False(t, called)
}

func TestFundingRateSwap(t *testing.T) {
	var gotPath, gotInst string
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInst = r.URL.Query().Get("instId")
		w.Write([]byte(`{"code":"0","msg":"","data":[{"fundingRate":"0.0001"}]}`))
	})

	rate, err := o.FundingRate(context.Background(), "ETH/USDT:USDT")
	require.NoError(t, err)
	require.Equal(t, 0.0001, rate)
	require.Equal(t, "/api/v5/public/funding-rate", gotPath)
	require.Equal(t, "ETH-USDT-SWAP", gotInst)
}
