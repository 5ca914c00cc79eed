package handler

import (
	"context"
	"net/http"
	"time"

	"signalengine/src/gate"
	"signalengine/src/model"
	"signalengine/src/repository"

	logger "github.com/sirupsen/logrus"
)

type sentimentReader interface {
	Latest(ctx context.Context) (*model.MarketSentiment, error)
}

// CurrentSentimentHandler exposes the latest stored sentiment snapshot with
// the policy and staleness the gate would apply right now.
func CurrentSentimentHandler(snapshots sentimentReader, maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := snapshots.Latest(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to load sentiment snapshot")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if snapshot == nil {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error": "no sentiment data collected yet",
			})
			return
		}

		stale := time.Since(snapshot.CollectedAt) > maxAge

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"value":           snapshot.Value,
			"classification":  snapshot.Classification,
			"policy":          snapshot.Policy(),
			"reference_price": snapshot.ReferencePrice,
			"collected_at":    snapshot.CollectedAt,
			"stale":           stale,
		})
	}
}

// DefaultCurrentSentimentHandler wires the handler to the production repository.
func DefaultCurrentSentimentHandler() http.HandlerFunc {
	return CurrentSentimentHandler(repository.NewSentimentRepository(), gate.DefaultMaxAge)
}
