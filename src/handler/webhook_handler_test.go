package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signalengine/src/auth"
	"signalengine/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSignalCreator struct {
	created    bool
	existingID uint
	err        error
	received   *model.TradingSignal
}

func (m *mockSignalCreator) CreateIdempotent(ctx context.Context, signal *model.TradingSignal) (bool, error) {
	m.received = signal
	if m.err != nil {
		return false, m.err
	}
	if !m.created {
		signal.ID = m.existingID
		return false, nil
	}
	signal.ID = 42
	return true, nil
}

type mockSubmitter struct {
	submitted []*model.TradingSignal
	err       error
}

func (m *mockSubmitter) Submit(signal *model.TradingSignal) error {
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, signal)
	return nil
}

func postWebhook(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestWebhookAcceptsValidSignal(t *testing.T) {
	creator := &mockSignalCreator{created: true}
	engine := &mockSubmitter{}
	handler := WebhookHandler(creator, engine)

	rr := postWebhook(t, handler, `{
		"symbol": "btcusdt",
		"action": "buy",
		"price": 50000,
		"leverage": 5,
		"source": "tradingview"
	}`)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["signal_id"])
	assert.Equal(t, "accepted", resp["status"])

	require.NotNil(t, creator.received)
	assert.Equal(t, "BTCUSDT", creator.received.Symbol)
	assert.Equal(t, model.SignalActionOpenLong, creator.received.Action)
	assert.NotEmpty(t, creator.received.IdempotencyKey)
	require.Len(t, engine.submitted, 1)
}

func TestWebhookMapsActionAliases(t *testing.T) {
	cases := map[string]string{
		"buy":       model.SignalActionOpenLong,
		"long":      model.SignalActionOpenLong,
		"sell":      model.SignalActionOpenShort,
		"short":     model.SignalActionOpenShort,
		"close":     model.SignalActionClose,
		"close_all": model.SignalActionClose,
		"exit":      model.SignalActionClose,
	}

	for alias, want := range cases {
		creator := &mockSignalCreator{created: true}
		handler := WebhookHandler(creator, &mockSubmitter{})

		rr := postWebhook(t, handler,
			`{"symbol":"BTCUSDT","action":"`+alias+`","price":100}`)

		require.Equal(t, http.StatusAccepted, rr.Code, "alias %q", alias)
		assert.Equal(t, want, creator.received.Action, "alias %q", alias)
	}
}

func TestWebhookCollectsAllValidationErrors(t *testing.T) {
	handler := WebhookHandler(&mockSignalCreator{}, &mockSubmitter{})

	rr := postWebhook(t, handler, `{
		"symbol": "",
		"action": "hold",
		"price": -1,
		"leverage": -2,
		"timestamp": "not-a-time"
	}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Errors, 5)
}

func TestWebhookCloseNeedsNoPrice(t *testing.T) {
	creator := &mockSignalCreator{created: true}
	handler := WebhookHandler(creator, &mockSubmitter{})

	rr := postWebhook(t, handler, `{"symbol":"BTCUSDT","action":"close"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestWebhookDuplicateReplaysOriginalID(t *testing.T) {
	creator := &mockSignalCreator{created: false, existingID: 17}
	engine := &mockSubmitter{}
	handler := WebhookHandler(creator, engine)

	rr := postWebhook(t, handler,
		`{"symbol":"BTCUSDT","action":"buy","price":100,"idempotency_key":"abc"}`)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, float64(17), resp["signal_id"])
	assert.Equal(t, "duplicate", resp["status"])
	assert.Empty(t, engine.submitted, "a replayed signal must not be enqueued again")
}

func TestWebhookDerivesIdempotencyKeyFromContent(t *testing.T) {
	body := `{"symbol":"BTCUSDT","action":"buy","price":100,"timestamp":"2025-06-01T12:00:00Z","source":"tv"}`

	first := &mockSignalCreator{created: true}
	postWebhook(t, WebhookHandler(first, &mockSubmitter{}), body)

	second := &mockSignalCreator{created: true}
	postWebhook(t, WebhookHandler(second, &mockSubmitter{}), body)

	require.NotNil(t, first.received)
	require.NotNil(t, second.received)
	assert.Equal(t, first.received.IdempotencyKey, second.received.IdempotencyKey)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	handler := WebhookHandler(&mockSignalCreator{}, &mockSubmitter{})
	rr := postWebhook(t, handler, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequireTokenMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	protected := auth.RequireToken("shhh")(next)

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/signal", nil)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/signal", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/signal", nil)
		req.Header.Set("Authorization", "Bearer shhh")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/signal", nil)
		req.Header.Set("X-Webhook-Token", "shhh")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}
