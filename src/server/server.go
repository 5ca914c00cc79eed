package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalengine/src/auth"
	"signalengine/src/dispatch"
	"signalengine/src/handler"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// NewRouter wires every route. Signal producers and operators authenticate
// with different shared secrets.
func NewRouter(authConfig *auth.Config, engine *dispatch.Engine, stop *dispatch.EmergencyStop) *chi.Mux {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/healthcheck error")
		}
	})

	// Signal ingestion
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(authConfig.WebhookToken))
		r.Post("/webhook/signal", handler.DefaultWebhookHandler(engine))
	})

	// Operator surface
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(authConfig.AdminToken))

		r.Get("/internal/sentiment/current", handler.DefaultCurrentSentimentHandler())
		r.Get("/internal/dispatch/{signalID}", handler.DefaultDispatchStatusHandler())

		r.Post("/admin/stop/engage", handler.EngageStopHandler(stop))
		r.Post("/admin/stop/release", handler.ReleaseStopHandler(stop))
		r.Get("/admin/stop", handler.StopStatusHandler(stop))
		r.Post("/admin/positions/{positionID}/resolve", handler.DefaultResolvePositionHandler())

		r.Post("/admin/users", handler.DefaultCreateUserHandler())
		r.Put("/admin/users/{userID}/risk-profile", handler.DefaultUpdateRiskProfileHandler())
	})

	return r
}

// StartServer blocks until SIGINT or SIGTERM, then drains the signal engine
// before shutting the listener down.
func StartServer(port string, engine *dispatch.Engine, stop *dispatch.EmergencyStop) {
	r := NewRouter(auth.GetConfig(), engine, stop)

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	engine.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
