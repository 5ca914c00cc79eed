package handler

import (
	"context"
	"net/http"
	"strconv"

	"signalengine/src/model"
	"signalengine/src/repository"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

type dispatchReader interface {
	FindBySignalID(ctx context.Context, signalID uint) ([]model.DispatchResult, error)
}

// DispatchStatusHandler lists the persisted per-user outcomes of one signal
// for operator dashboards.
func DispatchStatusHandler(results dispatchReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "signalID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid signal id", http.StatusBadRequest)
			return
		}

		rows, err := results.FindBySignalID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).WithField("signal_id", id).
				Error("failed to load dispatch results")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		succeeded, skipped, failed := 0, 0, 0
		for _, row := range rows {
			switch row.Outcome {
			case model.DispatchOutcomeSuccess:
				succeeded++
			case model.DispatchOutcomeSkipped:
				skipped++
			case model.DispatchOutcomeFailed:
				failed++
			}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"signal_id": id,
			"succeeded": succeeded,
			"skipped":   skipped,
			"failed":    failed,
			"outcomes":  rows,
		})
	}
}

// DefaultDispatchStatusHandler wires the handler to the production repository.
func DefaultDispatchStatusHandler() http.HandlerFunc {
	return DispatchStatusHandler(repository.NewDispatchRepository())
}
