package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"signalengine/src/dispatch"
	"signalengine/src/repository"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EngageStopHandler halts all new dispatches process-wide.
func EngageStopHandler(stop *dispatch.EmergencyStop) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop.Engage()
		writeJSON(w, http.StatusOK, map[string]interface{}{"engaged": true})
	}
}

// ReleaseStopHandler resumes dispatching.
func ReleaseStopHandler(stop *dispatch.EmergencyStop) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop.Release()
		writeJSON(w, http.StatusOK, map[string]interface{}{"engaged": false})
	}
}

// StopStatusHandler reports whether the kill switch is engaged.
func StopStatusHandler(stop *dispatch.EmergencyStop) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"engaged": stop.Engaged()})
	}
}

type positionResolver interface {
	Resolve(ctx context.Context, positionID uint, note string) error
}

type resolvePositionPayload struct {
	Note string `json:"note"`
}

// ResolvePositionHandler closes out an error position after an operator has
// reconciled it against the exchange by hand.
func ResolvePositionHandler(positions positionResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}

		var payload resolvePositionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		if payload.Note == "" {
			http.Error(w, "note is required", http.StatusBadRequest)
			return
		}

		err = positions.Resolve(r.Context(), uint(id), payload.Note)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				http.Error(w, "position not found or not in error status", http.StatusConflict)
				return
			}
			logger.WithError(err).WithField("position_id", id).
				Error("failed to resolve position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.WithFields(logger.Fields{
			"position_id": id,
			"note":        payload.Note,
		}).Info("[admin] error position resolved")

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"position_id": id,
			"status":      "closed",
		})
	}
}

// DefaultResolvePositionHandler wires the handler to the production repository.
func DefaultResolvePositionHandler() http.HandlerFunc {
	return ResolvePositionHandler(repository.NewPositionRepository())
}
