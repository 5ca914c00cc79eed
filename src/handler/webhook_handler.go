package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"signalengine/src/dispatch"
	"signalengine/src/model"
	"signalengine/src/repository"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type signalCreator interface {
	CreateIdempotent(ctx context.Context, signal *model.TradingSignal) (bool, error)
}

type signalSubmitter interface {
	Submit(signal *model.TradingSignal) error
}

// WebhookPayload is the raw alert body posted by signal producers.
type WebhookPayload struct {
	Symbol         string          `json:"symbol"`
	Action         string          `json:"action"`
	Price          decimal.Decimal `json:"price"`
	Leverage       int             `json:"leverage"`
	Timestamp      string          `json:"timestamp,omitempty"`
	Source         string          `json:"source,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Producers use a handful of spellings for the same intent; everything is
// folded onto the closed action set here, at the boundary.
var actionAliases = map[string]string{
	"open_long":  model.SignalActionOpenLong,
	"buy":        model.SignalActionOpenLong,
	"long":       model.SignalActionOpenLong,
	"open_short": model.SignalActionOpenShort,
	"sell":       model.SignalActionOpenShort,
	"short":      model.SignalActionOpenShort,
	"close":      model.SignalActionClose,
	"close_all":  model.SignalActionClose,
	"exit":       model.SignalActionClose,
}

// WebhookHandler ingests one signal: validate, persist idempotently, enqueue.
// A replayed idempotency key answers with the original signal id and is not
// enqueued again.
func WebhookHandler(signals signalCreator, engine signalSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload WebhookPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("[webhook] malformed payload")
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"errors": []string{"malformed JSON payload"},
			})
			return
		}

		signal, errs := payloadToSignal(&payload)
		if len(errs) > 0 {
			logger.WithField("errors", errs).Warn("[webhook] payload rejected")
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
			return
		}

		created, err := signals.CreateIdempotent(r.Context(), signal)
		if err != nil {
			logger.WithError(err).Error("[webhook] failed to persist signal")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if !created {
			logger.WithFields(logger.Fields{
				"signal_id":       signal.ID,
				"idempotency_key": signal.IdempotencyKey,
			}).Info("[webhook] duplicate delivery, replaying original signal id")
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"signal_id": signal.ID,
				"status":    "duplicate",
			})
			return
		}

		if err := engine.Submit(signal); err != nil {
			logger.WithError(err).WithField("signal_id", signal.ID).
				Error("[webhook] signal persisted but not enqueued")
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"signal_id": signal.ID,
				"status":    "persisted_not_enqueued",
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"signal_id": signal.ID,
			"status":    "accepted",
		})
	}
}

// DefaultWebhookHandler wires the handler to the production repository.
func DefaultWebhookHandler(engine *dispatch.Engine) http.HandlerFunc {
	return WebhookHandler(repository.NewSignalRepository(), engine)
}

// payloadToSignal validates the payload and builds the signal row. All
// problems are collected so the producer sees every mistake in one response.
func payloadToSignal(payload *WebhookPayload) (*model.TradingSignal, []string) {
	var errs []string

	symbol := strings.ToUpper(strings.TrimSpace(payload.Symbol))
	if symbol == "" {
		errs = append(errs, "symbol is required")
	}

	action, ok := actionAliases[strings.ToLower(strings.TrimSpace(payload.Action))]
	if !ok {
		errs = append(errs, fmt.Sprintf("unknown action %q", payload.Action))
	}

	if action != model.SignalActionClose && payload.Price.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, "price must be positive for open signals")
	}
	if payload.Leverage < 0 {
		errs = append(errs, "leverage cannot be negative")
	}

	var signalTime *time.Time
	if payload.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			errs = append(errs, fmt.Sprintf("timestamp %q is not RFC3339", payload.Timestamp))
		} else {
			signalTime = &parsed
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	key := strings.TrimSpace(payload.IdempotencyKey)
	if key == "" {
		key = deriveIdempotencyKey(symbol, action, payload.Timestamp, payload.Source)
	}

	return &model.TradingSignal{
		IdempotencyKey: key,
		Symbol:         symbol,
		Action:         action,
		Price:          payload.Price,
		Leverage:       payload.Leverage,
		Source:         payload.Source,
		SignalTime:     signalTime,
		ReceivedAt:     time.Now().UTC(),
	}, nil
}

// deriveIdempotencyKey makes duplicate detection work even for producers
// that cannot send an explicit key: the same alert content hashes to the
// same key.
func deriveIdempotencyKey(symbol, action, timestamp, source string) string {
	sum := sha256.Sum256([]byte(symbol + "|" + action + "|" + timestamp + "|" + source))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
