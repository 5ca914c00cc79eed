// REST API CLIENT FOR BYBIT V5 (linear perpetuals)
// RESTY + SHARED RATE LIMITER + SERVER TIME SYNC
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalengine/src/model"
)

type bybitResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type BybitClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	http       *resty.Client
	timeSync   *TimeSync
	limiter    *LimiterRegistry
}

func NewBybitClient(apiKey, apiSecret, environment string, limiter *LimiterRegistry) *BybitClient {
	config := GetConfig()

	baseURL := config.BybitTestnetURL
	if environment == model.EnvironmentMainnet {
		baseURL = config.BybitMainnetURL
	}

	// No resty-level retries: signed requests carry a timestamp that would
	// expire during transport replays, and Retry already re-signs and
	// re-sends transient failures under one attempt cap.
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.RequestTimeout)

	c := &BybitClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		recvWindow: config.RecvWindow,
		http:       httpClient,
		limiter:    limiter,
	}
	c.timeSync = NewTimeSync(c.GetServerTime)
	return c
}

func (c *BybitClient) Name() string { return model.ExchangeBybit }

// WithBaseURL points the client at a different host. Used by tests.
func (c *BybitClient) WithBaseURL(baseURL string) *BybitClient {
	c.baseURL = baseURL
	c.http.SetBaseURL(baseURL)
	return c
}

// -----------------------------
// AUTH
// -----------------------------
//
// Bybit v5 signs timestamp + apiKey + recvWindow + payload, where payload is
// the query string for GET and the raw JSON body for POST. The signature and
// key travel in X-BAPI-* headers. Timestamps come from the synced server
// clock so skewed hosts stay inside the recvWindow.

func signBybit(timestamp int64, apiKey string, recvWindow int64, payload, secret string) string {
	base := strconv.FormatInt(timestamp, 10) + apiKey + strconv.FormatInt(recvWindow, 10) + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BybitClient) doRequest(ctx context.Context, method, path string, params url.Values, body []byte) (*bybitResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, model.ExchangeBybit); err != nil {
			return nil, err
		}
	}

	query := ""
	if params != nil {
		query = params.Encode()
	}

	payload := query
	if body != nil {
		payload = string(body)
	}

	timestamp := c.timeSync.Now()
	sig := signBybit(timestamp, c.apiKey, c.recvWindow, payload, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-BAPI-API-KEY", c.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10)).
		SetHeader("X-BAPI-RECV-WINDOW", strconv.FormatInt(c.recvWindow, 10)).
		SetHeader("X-BAPI-SIGN", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &TransientError{Exchange: model.ExchangeBybit, Detail: "request failed", Err: err}
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		return nil, &TransientError{
			Exchange: model.ExchangeBybit,
			Detail:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), string(raw)),
		}
	}

	var parsed bybitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w. raw=%s", err, string(raw))
	}

	if parsed.RetCode != 0 {
		return nil, errorFromRetCode(model.ExchangeBybit, bybitRetCodes, parsed.RetCode, parsed.RetMsg)
	}

	return &parsed, nil
}

// -----------------------------
// PUBLIC MARKET DATA
// -----------------------------

// GetServerTime returns the exchange clock in milliseconds.
func (c *BybitClient) GetServerTime() (int64, error) {
	resp, err := c.http.R().Get("/v5/market/time")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var parsed struct {
		RetCode int `json:"retCode"`
		Result  struct {
			TimeSecond string `json:"timeSecond"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return 0, err
	}

	seconds, err := strconv.ParseInt(parsed.Result.TimeSecond, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeSecond in server time response: %w", err)
	}
	return seconds * 1000, nil
}

// -----------------------------
// ACCOUNT
// -----------------------------

// AvailableBalance returns the free balance for the coin on the unified
// trading account.
func (c *BybitClient) AvailableBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	if coin != "" {
		params.Set("coin", coin)
	}

	resp, err := c.doRequest(ctx, "GET", "/v5/account/wallet-balance", params, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		List []struct {
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return decimal.Zero, fmt.Errorf("no wallet balance returned for account")
	}

	available, err := decimal.NewFromString(result.List[0].TotalAvailableBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid totalAvailableBalance: %w", err)
	}
	return available, nil
}

// ValidateCredentials runs the cheapest authenticated call so the keys CLI
// can distinguish a bad key from an IP-whitelist rejection.
func (c *BybitClient) ValidateCredentials(ctx context.Context) error {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	_, err := c.doRequest(ctx, "GET", "/v5/account/wallet-balance", params, nil)
	return err
}

// -----------------------------
// TRADING
// -----------------------------

// PlaceOrder submits a linear market order with TP/SL attached in the same
// request so the exchange manages the exits.
func (c *BybitClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	side := "Buy"
	if req.Direction == model.DirectionShort {
		side = "Sell"
	}
	if req.ReduceOnly {
		// closing an existing position means trading against its direction
		if req.Direction == model.DirectionLong {
			side = "Sell"
		} else {
			side = "Buy"
		}
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	payload := map[string]interface{}{
		"category":    "linear",
		"symbol":      req.Symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         req.Size.String(),
		"orderLinkId": clientID,
	}
	if req.ReduceOnly {
		payload["reduceOnly"] = true
	}
	if req.TakeProfit.IsPositive() {
		payload["takeProfit"] = req.TakeProfit.String()
	}
	if req.StopLoss.IsPositive() {
		payload["stopLoss"] = req.StopLoss.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/v5/order/create", nil, body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	return &OrderResult{ExchangeOrderID: result.OrderID}, nil
}

// OpenPositions lists live linear positions, optionally filtered by symbol.
func (c *BybitClient) OpenPositions(ctx context.Context, symbol string) ([]ExchangePosition, error) {
	params := url.Values{}
	params.Set("category", "linear")
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", "USDT")
	}

	resp, err := c.doRequest(ctx, "GET", "/v5/position/list", params, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol string `json:"symbol"`
			Side   string `json:"side"`
			Size   string `json:"size"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode position list: %w", err)
	}

	var positions []ExchangePosition
	for _, p := range result.List {
		size, err := decimal.NewFromString(p.Size)
		if err != nil || size.IsZero() {
			continue
		}

		direction := model.DirectionLong
		if strings.EqualFold(p.Side, "Sell") {
			direction = model.DirectionShort
		}

		positions = append(positions, ExchangePosition{
			Symbol:    p.Symbol,
			Direction: direction,
			Size:      size,
		})
	}

	return positions, nil
}

// ClosePositions flattens every open position on the symbol by sending
// reduce-only market orders on the opposite side.
func (c *BybitClient) ClosePositions(ctx context.Context, symbol string) error {
	logger.WithField("symbol", symbol).Info("closing all positions for symbol")

	positions, err := c.OpenPositions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("OpenPositions failed: %w", err)
	}

	for _, p := range positions {
		logger.WithFields(map[string]interface{}{
			"symbol":    p.Symbol,
			"direction": p.Direction,
			"size":      p.Size,
		}).Info("closing position")

		_, err := c.PlaceOrder(ctx, OrderRequest{
			Symbol:     p.Symbol,
			Direction:  p.Direction,
			Size:       p.Size,
			ReduceOnly: true,
			ClientID:   fmt.Sprintf("close-%d", time.Now().UnixNano()),
		})
		if err != nil {
			return fmt.Errorf("failed to close position %s (%s) size=%s: %w",
				p.Symbol, p.Direction, p.Size, err)
		}
	}

	return nil
}
