package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"signalengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignBybitKnownVector(t *testing.T) {
	sig := signBybit(1700000000000, "test-api-key", 5000, "accountType=UNIFIED&coin=USDT", "test-api-secret")
	assert.Equal(t, "7ae48ae4a246aa3e14d137b8211aed379f512e7b101334db31c19cccc8b76d7f", sig)
}

func TestSignBybitChangesWithSecret(t *testing.T) {
	a := signBybit(1700000000000, "key", 5000, "payload", "secret-a")
	b := signBybit(1700000000000, "key", 5000, "payload", "secret-b")
	assert.NotEqual(t, a, b)
}

func newBybitTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *BybitClient) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/market/time" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"retCode":0,"result":{"timeSecond":"` +
				strconv.FormatInt(time.Now().Unix(), 10) + `"}}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewBybitClient("test-api-key", "test-api-secret", model.EnvironmentTestnet, nil).
		WithBaseURL(srv.URL)
	return srv, client
}

func TestBybitAvailableBalance(t *testing.T) {
	_, client := newBybitTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/account/wallet-balance", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-BAPI-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"retCode":0,"result":{"list":[{"totalAvailableBalance":"1234.56"}]}}`))
	})

	balance, err := client.AvailableBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(1234.56)), "balance = %s", balance)
}

func TestBybitRetCodeClassification(t *testing.T) {
	cases := []struct {
		retCode int
		kind    string
	}{
		{10003, ErrKindCredential},
		{10010, ErrKindCredential},
		{110052, ErrKindInsufficientBalance},
		{10016, ErrKindTransient},
		{170001, ErrKindExchange},
	}

	for _, tc := range cases {
		retCode := tc.retCode
		_, client := newBybitTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"retCode": retCode,
				"retMsg":  "rejected",
			})
		})

		_, err := client.AvailableBalance(context.Background(), "USDT")
		require.Error(t, err)
		assert.Equal(t, tc.kind, Classify(err), "retCode %d", tc.retCode)
	}
}

func TestBybitPlaceOrderBuildsLinearMarketOrder(t *testing.T) {
	var captured map[string]interface{}

	_, client := newBybitTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/order/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"retCode":0,"result":{"orderId":"abc-123"}}`))
	})

	result, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol:     "BTCUSDT",
		Direction:  model.DirectionShort,
		Size:       decimal.NewFromFloat(0.006),
		TakeProfit: decimal.NewFromInt(45000),
		StopLoss:   decimal.NewFromInt(57500),
		ClientID:   "client-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", result.ExchangeOrderID)

	assert.Equal(t, "linear", captured["category"])
	assert.Equal(t, "Sell", captured["side"])
	assert.Equal(t, "Market", captured["orderType"])
	assert.Equal(t, "0.006", captured["qty"])
	assert.Equal(t, "45000", captured["takeProfit"])
	assert.Equal(t, "57500", captured["stopLoss"])
	assert.Equal(t, "client-1", captured["orderLinkId"])
}

func TestBybitIPBlockError(t *testing.T) {
	_, client := newBybitTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"retCode":10010,"retMsg":"unmatched IP"}`))
	})

	err := client.ValidateCredentials(context.Background())
	require.Error(t, err)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.True(t, credErr.IPBlocked)
}

// One logical call against a dead endpoint must cost exactly the backoff
// policy's attempt cap in HTTP requests; the transport layer adds none of
// its own.
func TestRetryAttemptCapBoundsRequests(t *testing.T) {
	requests := 0
	_, client := newBybitTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := Retry(context.Background(), "available_balance", func() error {
		_, err := client.AvailableBalance(context.Background(), "USDT")
		return err
	})

	require.Error(t, err)
	var transErr *TransientError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, defaultRetryAttempts, requests)
}
