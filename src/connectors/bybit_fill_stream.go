package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"signalengine/src/model"
)

const (
	bybitPrivateStreamMainnet = "wss://stream.bybit.com/v5/private"
	bybitPrivateStreamTestnet = "wss://stream-testnet.bybit.com/v5/private"

	wsPingInterval  = 20 * time.Second
	wsReconnectWait = 5 * time.Second
)

// Fill is one confirmed execution from the private stream.
type Fill struct {
	ExchangeOrderID string
	Symbol          string
	ExecutedAt      time.Time
}

// FillHandler receives confirmed fills. Errors are logged, not propagated:
// a bad handler must not take down the stream.
type FillHandler func(ctx context.Context, fill Fill) error

// BybitFillStream subscribes to the private execution topic so pending
// positions flip to open on fill without waiting for reconciliation.
type BybitFillStream struct {
	apiKey    string
	apiSecret string
	wsURL     string
	handler   FillHandler
}

func NewBybitFillStream(apiKey, apiSecret, environment string, handler FillHandler) *BybitFillStream {
	wsURL := bybitPrivateStreamTestnet
	if environment == model.EnvironmentMainnet {
		wsURL = bybitPrivateStreamMainnet
	}
	return &BybitFillStream{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		handler:   handler,
	}
}

// Run keeps the stream connected until ctx is cancelled, reconnecting with a
// flat wait after any failure.
func (s *BybitFillStream) Run(ctx context.Context) {
	for {
		if err := s.connectAndListen(ctx); err != nil {
			logger.WithError(err).Warn("fill stream disconnected, will reconnect")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectWait):
		}
	}
}

func (s *BybitFillStream) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	if err := s.authenticate(conn); err != nil {
		return err
	}

	sub := map[string]interface{}{"op": "subscribe", "args": []string{"execution"}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	logger.Info("fill stream connected and subscribed")

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		s.handleMessage(ctx, raw)
	}
}

// Bybit private streams authenticate with expires = now+epsilon and
// signature = hmac_sha256(secret, "GET/realtime" + expires).
func (s *BybitFillStream) authenticate(conn *websocket.Conn) error {
	expires := time.Now().Add(10 * time.Second).UnixMilli()

	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	signature := hex.EncodeToString(mac.Sum(nil))

	auth := map[string]interface{}{
		"op":   "auth",
		"args": []interface{}{s.apiKey, expires, signature},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("auth write failed: %w", err)
	}
	return nil
}

func (s *BybitFillStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				logger.WithError(err).Debug("fill stream ping failed")
				return
			}
		}
	}
}

func (s *BybitFillStream) handleMessage(ctx context.Context, raw []byte) {
	var msg struct {
		Topic string `json:"topic"`
		Data  []struct {
			OrderID  string `json:"orderId"`
			Symbol   string `json:"symbol"`
			ExecType string `json:"execType"`
			ExecTime string `json:"execTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic != "execution" {
		return
	}

	for _, d := range msg.Data {
		if d.ExecType != "Trade" {
			continue
		}

		executedAt := time.Now()
		if ms, err := strconv.ParseInt(d.ExecTime, 10, 64); err == nil {
			executedAt = time.UnixMilli(ms)
		}

		fill := Fill{
			ExchangeOrderID: d.OrderID,
			Symbol:          d.Symbol,
			ExecutedAt:      executedAt,
		}

		if err := s.handler(ctx, fill); err != nil {
			logger.WithError(err).WithField("order_id", d.OrderID).
				Error("fill handler failed")
		}
	}
}
