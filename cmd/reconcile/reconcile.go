package reconcile

import (
	"context"
	"fmt"
	"time"

	"signalengine/src/connectors"
	"signalengine/src/model"
	"signalengine/src/repository"
	"signalengine/src/security"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	// PendingCutoff is how long a position may stay pending before the job
	// decides its fate against the exchange.
	PendingCutoff time.Duration `envconfig:"RECONCILE_PENDING_CUTOFF" default:"5m"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		panic(err.Error())
	}

	return config
}

// Reconciler settles stale pending positions: if the exchange shows a live
// position on the symbol the row becomes open, otherwise it becomes an error
// row for the operator to resolve.
type Reconciler struct {
	config *Config

	positions  *repository.PositionRepository
	creds      *repository.UserExchangeRepository
	exchanges  *repository.ExchangeRepository
	exceptions *repository.ExceptionRepository

	factory connectors.ConnectorFactory
	decrypt func(string) (string, error)
}

func NewReconciler(factory connectors.ConnectorFactory) *Reconciler {
	return &Reconciler{
		config:     GetConfig(),
		positions:  repository.NewPositionRepository(),
		creds:      repository.NewUserExchangeRepository(),
		exchanges:  repository.NewExchangeRepository(),
		exceptions: repository.NewExceptionRepository(),
		factory:    factory,
		decrypt:    security.DecryptString,
	}
}

// Run processes one reconciliation pass and returns how many rows changed
// state. Per-position failures are logged and captured, never fatal to the
// pass.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.config.PendingCutoff)

	stale, err := r.positions.FindPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load pending positions: %w", err)
	}

	logger.WithFields(logger.Fields{
		"pending": len(stale),
		"cutoff":  cutoff,
	}).Info("[reconcile] pass started")

	settled := 0
	for i := range stale {
		position := stale[i]

		if err := r.settle(ctx, &position); err != nil {
			logger.WithError(err).WithField("position_id", position.ID).
				Error("[reconcile] position left pending")
			r.capture(ctx, fmt.Sprintf("settle position %d: %v", position.ID, err))
			continue
		}
		settled++
	}

	logger.WithFields(logger.Fields{
		"pending": len(stale),
		"settled": settled,
	}).Info("[reconcile] pass finished")

	return settled, nil
}

func (r *Reconciler) settle(ctx context.Context, position *model.Position) error {
	exchange, err := r.exchangeByID(ctx, position.ExchangeID)
	if err != nil {
		return err
	}

	cred, err := r.creds.GetActiveByUserAndExchange(ctx, position.UserID, position.ExchangeID)
	if err != nil {
		return err
	}
	if cred == nil {
		// Without a credential there is no way to ask the exchange; the
		// operator has to decide.
		return r.positions.MarkError(ctx, position.ID, "no active credential to reconcile against")
	}

	apiKey, err := r.decrypt(cred.APIKeyEnc)
	if err != nil {
		return fmt.Errorf("decrypt api key: %w", err)
	}
	apiSecret, err := r.decrypt(cred.APISecretEnc)
	if err != nil {
		return fmt.Errorf("decrypt api secret: %w", err)
	}

	conn, err := r.factory(exchange.Name, apiKey, apiSecret, cred.Environment)
	if err != nil {
		return err
	}

	var live []connectors.ExchangePosition
	err = connectors.Retry(ctx, "open_positions", func() error {
		positions, err := conn.OpenPositions(ctx, position.Symbol)
		if err != nil {
			return err
		}
		live = positions
		return nil
	})
	if err != nil {
		return fmt.Errorf("query exchange positions: %w", err)
	}

	for _, lp := range live {
		if lp.Symbol == position.Symbol && lp.Direction == position.Direction {
			logger.WithFields(logger.Fields{
				"position_id": position.ID,
				"symbol":      position.Symbol,
			}).Info("[reconcile] exchange shows fill, marking open")
			return r.positions.MarkOpen(ctx, position.ID, time.Now())
		}
	}

	logger.WithFields(logger.Fields{
		"position_id": position.ID,
		"symbol":      position.Symbol,
	}).Warn("[reconcile] nothing on exchange, marking error")
	return r.positions.MarkError(ctx, position.ID, "order submitted but no position found on exchange")
}

func (r *Reconciler) exchangeByID(ctx context.Context, exchangeID uint) (*model.Exchange, error) {
	exchanges, err := r.exchanges.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range exchanges {
		if exchanges[i].ID == exchangeID {
			return &exchanges[i], nil
		}
	}
	return nil, fmt.Errorf("exchange %d not found or inactive", exchangeID)
}

func (r *Reconciler) capture(ctx context.Context, message string) {
	err := r.exceptions.Create(ctx, &model.Exception{
		Service: "signalengine",
		Module:  "reconcile",
		Method:  "Run",
		Message: message,
		Level:   "error",
	})
	if err != nil {
		logger.WithError(err).Error("[reconcile] failed to persist exception")
	}
}
