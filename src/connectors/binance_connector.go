// REST API CLIENT FOR BINANCE USDT-M FUTURES
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

type BinanceClient struct {
	apiKey     string
	apiSecret  string
	recvWindow int64
	http       *resty.Client
	timeSync   *TimeSync
	limiter    *LimiterRegistry
}

func NewBinanceClient(apiKey, apiSecret, environment string, limiter *LimiterRegistry) *BinanceClient {
	config := GetConfig()

	baseURL := config.BinanceTestnetURL
	if environment == model.EnvironmentMainnet {
		baseURL = config.BinanceMainnetURL
	}

	// No resty-level retries: the signed timestamp would expire during
	// transport replays, and Retry re-signs and re-sends transient
	// failures under one attempt cap.
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.RequestTimeout)

	c := &BinanceClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: config.RecvWindow,
		http:       httpClient,
		limiter:    limiter,
	}
	c.timeSync = NewTimeSync(c.GetServerTime)
	return c
}

func (c *BinanceClient) Name() string { return model.ExchangeBinance }

// WithBaseURL points the client at a different host. Used by tests.
func (c *BinanceClient) WithBaseURL(baseURL string) *BinanceClient {
	c.http.SetBaseURL(baseURL)
	return c
}

// Binance signs the full query string with HMAC-SHA256 and appends the hex
// digest as the signature parameter; the key rides in X-MBX-APIKEY.
func (c *BinanceClient) doSigned(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, model.ExchangeBinance); err != nil {
			return nil, err
		}
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.timeSync.Now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	// The query string must reach the wire exactly as signed, signature
	// last, so it is appended to the path instead of going through the
	// query-param builder.
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		Execute(method, path+"?"+query)
	if err != nil {
		return nil, &TransientError{Exchange: model.ExchangeBinance, Detail: "request failed", Err: err}
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != 0 {
			return nil, errorFromRetCode(model.ExchangeBinance, binanceRetCodes, apiErr.Code, apiErr.Msg)
		}
		return nil, &TransientError{
			Exchange: model.ExchangeBinance,
			Detail:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), string(raw)),
		}
	}

	return raw, nil
}

// GetServerTime returns the exchange clock in milliseconds.
func (c *BinanceClient) GetServerTime() (int64, error) {
	resp, err := c.http.R().Get("/fapi/v1/time")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var parsed struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return 0, err
	}
	return parsed.ServerTime, nil
}

// AvailableBalance returns the free futures balance for the asset.
func (c *BinanceClient) AvailableBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	raw, err := c.doSigned(ctx, "GET", "/fapi/v2/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var balances []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(raw, &balances); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance response: %w", err)
	}

	for _, b := range balances {
		if b.Asset == coin {
			available, err := decimal.NewFromString(b.AvailableBalance)
			if err != nil {
				return decimal.Zero, fmt.Errorf("invalid availableBalance: %w", err)
			}
			return available, nil
		}
	}

	return decimal.Zero, fmt.Errorf("no balance entry for asset %s", coin)
}

func (c *BinanceClient) ValidateCredentials(ctx context.Context) error {
	_, err := c.doSigned(ctx, "GET", "/fapi/v2/balance", nil)
	return err
}

// PlaceOrder submits a market order. Binance attaches TP/SL as separate
// closing orders, so acceptance of the entry triggers two follow-ups.
func (c *BinanceClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	side := "BUY"
	closeSide := "SELL"
	if req.Direction == model.DirectionShort {
		side, closeSide = "SELL", "BUY"
	}
	if req.ReduceOnly {
		side = closeSide
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", req.Size.String())
	params.Set("newClientOrderId", clientID)
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	raw, err := c.doSigned(ctx, "POST", "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	if !req.ReduceOnly {
		if err := c.placeExitOrders(ctx, req, closeSide); err != nil {
			// entry stands; exits failed. Report, do not abort.
			logger.WithError(err).WithField("symbol", req.Symbol).
				Error("entry accepted but TP/SL placement failed")
		}
	}

	return &OrderResult{ExchangeOrderID: strconv.FormatInt(result.OrderID, 10)}, nil
}

func (c *BinanceClient) placeExitOrders(ctx context.Context, req OrderRequest, closeSide string) error {
	exits := []struct {
		orderType string
		stopPrice decimal.Decimal
	}{
		{"TAKE_PROFIT_MARKET", req.TakeProfit},
		{"STOP_MARKET", req.StopLoss},
	}

	for _, exit := range exits {
		if !exit.stopPrice.IsPositive() {
			continue
		}

		params := url.Values{}
		params.Set("symbol", req.Symbol)
		params.Set("side", closeSide)
		params.Set("type", exit.orderType)
		params.Set("stopPrice", exit.stopPrice.String())
		params.Set("closePosition", "true")

		if _, err := c.doSigned(ctx, "POST", "/fapi/v1/order", params); err != nil {
			return fmt.Errorf("%s placement failed: %w", exit.orderType, err)
		}
	}

	return nil
}

// OpenPositions lists non-zero positions, optionally filtered by symbol.
func (c *BinanceClient) OpenPositions(ctx context.Context, symbol string) ([]ExchangePosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	raw, err := c.doSigned(ctx, "GET", "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}

	var list []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode position risk response: %w", err)
	}

	var positions []ExchangePosition
	for _, p := range list {
		amt, err := decimal.NewFromString(p.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}

		direction := model.DirectionLong
		if amt.IsNegative() {
			direction = model.DirectionShort
		}

		positions = append(positions, ExchangePosition{
			Symbol:    p.Symbol,
			Direction: direction,
			Size:      amt.Abs(),
		})
	}

	return positions, nil
}

// ClosePositions flattens every open position on the symbol with reduce-only
// market orders on the opposite side.
func (c *BinanceClient) ClosePositions(ctx context.Context, symbol string) error {
	positions, err := c.OpenPositions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("OpenPositions failed: %w", err)
	}

	for _, p := range positions {
		if symbol != "" && !strings.EqualFold(p.Symbol, symbol) {
			continue
		}

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
