// Package exchange implements the OKX venue client behind the
// core.Exchange boundary, plus a shared rate-limited wrapper.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
)

const (
	okxBaseURL = "https://www.okx.com"

	httpTimeout = 15 * time.Second
)

// Venue error codes treated as transient
var temporaryCodes = map[string]bool{
	"50011": true, // rate limit
	"50013": true, // system busy
	"50026": true, // system error
	"51054": true, // matching engine busy
}

// OKX is a thin REST client for the OKX v5 API implementing
// core.Exchange
type OKX struct {
	apiKey     string
	secret     string
	passphrase string
	baseURL    string
	httpClient *http.Client
	log        core.Logger

	mu        sync.Mutex
	instCache map[string]core.AssetInfo
}

// NewOKX builds the venue client from credentials
func NewOKX(cfg config.OKXConfig, log core.Logger) *OKX {
	return &OKX{
		apiKey:     cfg.APIKey,
		secret:     cfg.Secret,
		passphrase: cfg.Password,
		baseURL:    okxBaseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		log:        log,
		instCache:  make(map[string]core.AssetInfo),
	}
}

// envelope is the OKX v5 response wrapper
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (o *OKX) request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("okx request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("okx request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	o.sign(req, method, requestPath, payload)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("okx %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("okx %s %s: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("okx %s %s: decode: %w", method, path, err)
	}
	if env.Code != "0" {
		// Order endpoints report the real code per-item in sCode
		if code, msg, ok := itemError(env.Data); ok {
			return &core.APIError{Code: code, Message: msg, Temporary: temporaryCodes[code]}
		}
		return &core.APIError{Code: env.Code, Message: env.Msg, Temporary: temporaryCodes[env.Code]}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("okx %s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

// sign attaches the OKX v5 authentication headers
func (o *OKX) sign(req *http.Request, method, requestPath string, body []byte) {
	if o.apiKey == "" {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(o.secret))
	mac.Write([]byte(ts + method + requestPath))
	mac.Write(body)

	req.Header.Set("OK-ACCESS-KEY", o.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", o.passphrase)
}

// itemError extracts the per-item error of order endpoints
func itemError(data json.RawMessage) (code, msg string, ok bool) {
	var items []struct {
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return "", "", false
	}
	if items[0].SCode == "" || items[0].SCode == "0" {
		return "", "", false
	}
	return items[0].SCode, items[0].SMsg, true
}

// Candles returns up to limit bars, oldest first. The newest bar may
// be unfinished, which the Complete flag reflects.
func (o *OKX) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	q := url.Values{}
	q.Set("instId", instID(symbol))
	q.Set("bar", okxBar(timeframe))
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]string
	if err := o.request(ctx, http.MethodGet, "/api/v5/market/candles", q, nil, &rows); err != nil {
		return nil, err
	}

	// OKX returns newest first
	candles := make([]core.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if len(r) < 9 {
			continue
		}
		ms, _ := strconv.ParseInt(r[0], 10, 64)
		candles = append(candles, core.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Time:      time.UnixMilli(ms).UTC(),
			Open:      parseF(r[1]),
			High:      parseF(r[2]),
			Low:       parseF(r[3]),
			Close:     parseF(r[4]),
			Volume:    parseF(r[5]),
			Complete:  r[8] == "1",
		})
	}
	return candles, nil
}

// Ticker returns the live price snapshot for a symbol
func (o *OKX) Ticker(ctx context.Context, symbol string) (core.Ticker, error) {
	q := url.Values{}
	q.Set("instId", instID(symbol))

	var rows []struct {
		Last   string `json:"last"`
		Bid    string `json:"bidPx"`
		Ask    string `json:"askPx"`
		Open24 string `json:"open24h"`
		TS     string `json:"ts"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/market/ticker", q, nil, &rows); err != nil {
		return core.Ticker{}, err
	}
	if len(rows) == 0 {
		return core.Ticker{}, core.ErrInvalidSymbol
	}
	ms, _ := strconv.ParseInt(rows[0].TS, 10, 64)
	last := parseF(rows[0].Last)
	change := 0.0
	if open := parseF(rows[0].Open24); open > 0 {
		change = (last - open) / open
	}
	return core.Ticker{
		Symbol:    symbol,
		Last:      last,
		Bid:       parseF(rows[0].Bid),
		Ask:       parseF(rows[0].Ask),
		Change24h: change,
		Time:      time.UnixMilli(ms).UTC(),
	}, nil
}

// AssetInfo returns the trading constraints for a symbol, cached for
// the process lifetime
func (o *OKX) AssetInfo(ctx context.Context, symbol string) (core.AssetInfo, error) {
	o.mu.Lock()
	if info, ok := o.instCache[symbol]; ok {
		o.mu.Unlock()
		return info, nil
	}
	o.mu.Unlock()

	instType := "SPOT"
	if isContract(symbol) {
		instType = "SWAP"
	}
	q := url.Values{}
	q.Set("instType", instType)
	q.Set("instId", instID(symbol))

	var rows []struct {
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		CtValCcy string `json:"ctValCcy"`
		SettleCc string `json:"settleCcy"`
		CtVal    string `json:"ctVal"`
		MinSz    string `json:"minSz"`
		LotSz    string `json:"lotSz"`
		TickSz   string `json:"tickSz"`
		Lever    string `json:"lever"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/public/instruments", q, nil, &rows); err != nil {
		return core.AssetInfo{}, err
	}
	if len(rows) == 0 {
		return core.AssetInfo{}, core.ErrInvalidSymbol
	}

	r := rows[0]
	base := r.BaseCcy
	if base == "" {
		base = r.CtValCcy
	}
	quote := r.QuoteCcy
	if quote == "" {
		quote = r.SettleCc
	}
	maxLev, _ := strconv.Atoi(r.Lever)
	info := core.AssetInfo{
		Symbol:       symbol,
		BaseAsset:    base,
		QuoteAsset:   quote,
		ContractSize: parseF(r.CtVal),
		MinSize:      parseF(r.MinSz),
		LotStep:      parseF(r.LotSz),
		TickSize:     parseF(r.TickSz),
		MaxLeverage:  maxLev,
		IsContract:   instType == "SWAP",
	}

	o.mu.Lock()
	o.instCache[symbol] = info
	o.mu.Unlock()
	return info, nil
}

// Equity returns the total account equity in the given currency. The
// unified-account totalEq covers cross-margin and non-USDT holdings;
// the per-currency detail is the fallback for older account modes.
func (o *OKX) Equity(ctx context.Context, currency string) (float64, error) {
	q := url.Values{}
	q.Set("ccy", currency)

	var rows []struct {
		TotalEq string `json:"totalEq"`
		Details []struct {
			Ccy string `json:"ccy"`
			Eq  string `json:"eq"`
		} `json:"details"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/account/balance", q, nil, &rows); err != nil {
		return 0, err
	}
	for _, row := range rows {
		if total := parseF(row.TotalEq); total > 0 {
			return total, nil
		}
		for _, d := range row.Details {
			if d.Ccy == currency {
				return parseF(d.Eq), nil
			}
		}
	}
	return 0, nil
}

// Balance returns the free and locked amounts of one asset
func (o *OKX) Balance(ctx context.Context, asset string) (core.Balance, error) {
	q := url.Values{}
	q.Set("ccy", asset)

	var rows []struct {
		Details []struct {
			Ccy    string `json:"ccy"`
			Avail  string `json:"availBal"`
			Frozen string `json:"frozenBal"`
		} `json:"details"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/account/balance", q, nil, &rows); err != nil {
		return core.Balance{}, err
	}
	for _, row := range rows {
		for _, d := range row.Details {
			if d.Ccy == asset {
				return core.Balance{Asset: asset, Free: parseF(d.Avail), Lock: parseF(d.Frozen)}, nil
			}
		}
	}
	return core.Balance{Asset: asset}, nil
}

// Positions returns the open positions for a symbol
func (o *OKX) Positions(ctx context.Context, symbol string) ([]core.Position, error) {
	q := url.Values{}
	q.Set("instId", instID(symbol))

	var rows []struct {
		Pos     string `json:"pos"`
		PosSide string `json:"posSide"`
		AvgPx   string `json:"avgPx"`
		MarkPx  string `json:"markPx"`
		Upl     string `json:"upl"`
		Lever   string `json:"lever"`
		Margin  string `json:"margin"`
		IMR     string `json:"imr"`
		MgnMode string `json:"mgnMode"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/account/positions", q, nil, &rows); err != nil {
		return nil, err
	}

	info, err := o.AssetInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ctVal := info.ContractSize
	if ctVal <= 0 {
		ctVal = 1
	}

	positions := make([]core.Position, 0, len(rows))
	for _, r := range rows {
		contracts := parseF(r.Pos)
		if contracts == 0 {
			continue
		}
		side := core.PositionLong
		switch {
		case r.PosSide == "short", r.PosSide == "net" && contracts < 0:
			side = core.PositionShort
		}
		if contracts < 0 {
			contracts = -contracts
		}
		margin := parseF(r.Margin)
		if margin == 0 {
			margin = parseF(r.IMR)
		}
		positions = append(positions, core.Position{
			Symbol:        symbol,
			Side:          side,
			Contracts:     contracts,
			CoinSize:      contracts * ctVal,
			EntryPrice:    parseF(r.AvgPx),
			MarkPrice:     parseF(r.MarkPx),
			UnrealizedPnL: parseF(r.Upl),
			Leverage:      parseF(r.Lever),
			Margin:        margin,
			TradeMode:     r.MgnMode,
		})
	}
	return positions, nil
}

// RecentFills returns the latest executed trades, newest first
func (o *OKX) RecentFills(ctx context.Context, symbol string, limit int) ([]core.Fill, error) {
	q := url.Values{}
	q.Set("instId", instID(symbol))
	q.Set("limit", strconv.Itoa(limit))

	var rows []struct {
		TradeID string `json:"tradeId"`
		Side    string `json:"side"`
		FillPx  string `json:"fillPx"`
		FillSz  string `json:"fillSz"`
		Fee     string `json:"fee"`
		FillPnl string `json:"fillPnl"`
		TS      string `json:"ts"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/trade/fills", q, nil, &rows); err != nil {
		return nil, err
	}

	fills := make([]core.Fill, 0, len(rows))
	for _, r := range rows {
		ms, _ := strconv.ParseInt(r.TS, 10, 64)
		price := parseF(r.FillPx)
		amount := parseF(r.FillSz)
		fills = append(fills, core.Fill{
			ID:     r.TradeID,
			Symbol: symbol,
			Side:   core.Side(r.Side),
			Price:  price,
			Amount: amount,
			Cost:   price * amount,
			Fee:    -parseF(r.Fee), // OKX reports fees as negative
			PnL:    parseF(r.FillPnl),
			Time:   time.UnixMilli(ms).UTC(),
		})
	}
	return fills, nil
}

// Ledger returns the latest funding account records, newest first
func (o *OKX) Ledger(ctx context.Context, currency string, limit int) ([]core.LedgerEntry, error) {
	q := url.Values{}
	q.Set("ccy", currency)
	q.Set("limit", strconv.Itoa(limit))

	var rows []struct {
		BillID string `json:"billId"`
		Type   string `json:"type"`
		Ccy    string `json:"ccy"`
		BalChg string `json:"balChg"`
		TS     string `json:"ts"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/asset/bills", q, nil, &rows); err != nil {
		return nil, err
	}

	entries := make([]core.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		ms, _ := strconv.ParseInt(r.TS, 10, 64)
		entries = append(entries, core.LedgerEntry{
			ID:       r.BillID,
			Type:     ledgerType(r.Type),
			Currency: r.Ccy,
			Amount:   parseF(r.BalChg),
			Time:     time.UnixMilli(ms).UTC(),
		})
	}
	return entries, nil
}

// FundingRate returns the current funding rate of a perpetual swap.
// Spot symbols have no funding and report zero.
func (o *OKX) FundingRate(ctx context.Context, symbol string) (float64, error) {
	if !isContract(symbol) {
		return 0, nil
	}
	q := url.Values{}
	q.Set("instId", instID(symbol))

	var rows []struct {
		FundingRate string `json:"fundingRate"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/public/funding-rate", q, nil, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, core.ErrInvalidSymbol
	}
	return parseF(rows[0].FundingRate), nil
}

// TakerFeeRate returns the account taker fee for a symbol as a
// positive fraction
func (o *OKX) TakerFeeRate(ctx context.Context, symbol string) (float64, error) {
	instType := "SPOT"
	if isContract(symbol) {
		instType = "SWAP"
	}
	q := url.Values{}
	q.Set("instType", instType)
	q.Set("instId", instID(symbol))

	var rows []struct {
		Taker string `json:"taker"`
	}
	if err := o.request(ctx, http.MethodGet, "/api/v5/account/trade-fee", q, nil, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, core.ErrInvalidSymbol
	}
	fee := parseF(rows[0].Taker)
	if fee < 0 {
		fee = -fee
	}
	return fee, nil
}

// SetLeverage configures the position leverage for a symbol
func (o *OKX) SetLeverage(ctx context.Context, symbol string, leverage int, tradeMode string) error {
	body := map[string]string{
		"instId":  instID(symbol),
		"lever":   strconv.Itoa(leverage),
		"mgnMode": tradeMode,
	}
	return o.request(ctx, http.MethodPost, "/api/v5/account/set-leverage", nil, body, nil)
}

// CreateOrder places a market or limit order, optionally with an
// attached stop-loss trigger
func (o *OKX) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	body := map[string]any{
		"instId":  instID(req.Symbol),
		"tdMode":  req.TradeMode,
		"side":    string(req.Side),
		"ordType": string(req.Type),
		"sz":      strconv.FormatFloat(req.Amount, 'f', -1, 64),
	}
	if req.Type == core.OrderTypeLimit {
		body["px"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	// Spot market buys default to quote-currency sizing on OKX; force
	// sz to mean base-currency units
	if !isContract(req.Symbol) && req.Type == core.OrderTypeMarket && req.Side == core.SideBuy {
		body["tgtCcy"] = "base_ccy"
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}
	if req.ClientID != "" {
		body["clOrdId"] = req.ClientID
	}

	var attached []map[string]string
	if req.StopLoss > 0 {
		attached = append(attached, map[string]string{
			"slTriggerPx": strconv.FormatFloat(req.StopLoss, 'f', -1, 64),
			"slOrdPx":     "-1", // market execution on trigger
		})
	}
	if req.TakeProfit > 0 {
		attached = append(attached, map[string]string{
			"tpTriggerPx": strconv.FormatFloat(req.TakeProfit, 'f', -1, 64),
			"tpOrdPx":     "-1",
		})
	}
	if len(attached) > 0 {
		body["attachAlgoOrds"] = attached
	}

	var rows []struct {
		OrdID string `json:"ordId"`
	}
	if err := o.request(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, &rows); err != nil {
		return core.Order{}, err
	}
	if len(rows) == 0 {
		return core.Order{}, fmt.Errorf("okx order: empty response")
	}

	return core.Order{
		ID:     rows[0].OrdID,
		Symbol: req.Symbol,
		Side:   req.Side,
		Type:   req.Type,
		Amount: req.Amount,
		Status: "live",
		Time:   time.Now().UTC(),
	}, nil
}

// instID converts "BTC/USDT:USDT" style symbols to OKX instrument ids
func instID(symbol string) string {
	if isContract(symbol) {
		pair := symbol[:strings.Index(symbol, ":")]
		return strings.ReplaceAll(pair, "/", "-") + "-SWAP"
	}
	return strings.ReplaceAll(symbol, "/", "-")
}

func isContract(symbol string) bool {
	return strings.Contains(symbol, ":")
}

// okxBar converts timeframe notation: hours and days are uppercase on
// OKX, minutes stay lowercase
func okxBar(timeframe string) string {
	if strings.HasSuffix(timeframe, "h") || strings.HasSuffix(timeframe, "d") || strings.HasSuffix(timeframe, "w") {
		return strings.ToUpper(timeframe)
	}
	return timeframe
}

// Funding bill types relevant to deposit detection
func ledgerType(code string) core.LedgerType {
	switch code {
	case "1":
		return core.LedgerDeposit
	case "2":
		return core.LedgerWithdrawal
	default:
		return core.LedgerOther
	}
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
