package dispatch

import (
	"context"
	"time"

	"signalengine/src/connectors"
	"signalengine/src/model"
	"signalengine/src/repository"
	"signalengine/src/security"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FillListener subscribes to Bybit's private execution stream for every
// active credential and transitions pending positions to open as fills
// arrive, ahead of the periodic reconcile job. The credential set is
// re-scanned on an interval so keys activated after boot get a stream
// without a restart.
type FillListener struct {
	positions *repository.PositionRepository
	creds     *repository.UserExchangeRepository
	exchanges *repository.ExchangeRepository
	decrypt   func(string) (string, error)

	rescanEvery time.Duration

	// startStream is swapped out in tests; streamed tracks which credential
	// ids already have a live stream. Both are only touched from the scan
	// goroutine after Start returns.
	startStream func(ctx context.Context, apiKey, apiSecret, environment string)
	streamed    map[uint]bool
}

func NewFillListener() *FillListener {
	return &FillListener{
		positions:   repository.NewPositionRepository(),
		creds:       repository.NewUserExchangeRepository(),
		exchanges:   repository.NewExchangeRepository(),
		decrypt:     security.DecryptString,
		rescanEvery: GetConfig().FillRescanInterval,
		streamed:    make(map[uint]bool),
	}
}

func (l *FillListener) WithDB(db *gorm.DB) *FillListener {
	clone := *l
	clone.positions = l.positions.WithDB(db)
	clone.creds = l.creds.WithDB(db)
	clone.exchanges = l.exchanges.WithDB(db)
	return &clone
}

// Start scans once, then keeps re-scanning in the background until the
// context is cancelled. Streams reconnect on their own; Start only fails
// when the initial credential set cannot be loaded.
func (l *FillListener) Start(ctx context.Context) error {
	if err := l.scan(ctx); err != nil {
		return err
	}

	go l.rescanLoop(ctx)
	return nil
}

func (l *FillListener) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(l.rescanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.scan(ctx); err != nil {
				logger.WithError(err).Error("[fills] credential rescan failed")
			}
		}
	}
}

// scan launches a stream for every active Bybit credential that does not
// have one yet.
func (l *FillListener) scan(ctx context.Context) error {
	bybit, err := l.exchanges.GetByName(ctx, model.ExchangeBybit)
	if err != nil {
		return err
	}
	if bybit == nil {
		logger.Warn("[fills] bybit exchange not configured, fill stream disabled")
		return nil
	}

	creds, err := l.creds.FindActiveByExchange(ctx, bybit.ID)
	if err != nil {
		return err
	}

	for i := range creds {
		cred := creds[i]
		if l.streamed[cred.ID] {
			continue
		}

		apiKey, err := l.decrypt(cred.APIKeyEnc)
		if err != nil {
			logger.WithError(err).WithField("user_id", cred.UserID).
				Error("[fills] cannot decrypt api key, skipping stream")
			continue
		}
		apiSecret, err := l.decrypt(cred.APISecretEnc)
		if err != nil {
			logger.WithError(err).WithField("user_id", cred.UserID).
				Error("[fills] cannot decrypt api secret, skipping stream")
			continue
		}

		start := l.startStream
		if start == nil {
			start = func(ctx context.Context, apiKey, apiSecret, environment string) {
				stream := connectors.NewBybitFillStream(apiKey, apiSecret, environment, l.handleFill)
				go stream.Run(ctx)
			}
		}
		start(ctx, apiKey, apiSecret, cred.Environment)
		l.streamed[cred.ID] = true

		logger.WithFields(logger.Fields{
			"user_id":     cred.UserID,
			"environment": cred.Environment,
		}).Info("[fills] execution stream started")
	}

	return nil
}

func (l *FillListener) handleFill(ctx context.Context, fill connectors.Fill) error {
	position, err := l.positions.FindByExchangeOrderID(ctx, fill.ExchangeOrderID)
	if err != nil {
		return err
	}
	if position == nil || position.Status != model.PositionStatusPending {
		return nil
	}

	if err := l.positions.MarkOpen(ctx, position.ID, fill.ExecutedAt); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"position_id":       position.ID,
		"exchange_order_id": fill.ExchangeOrderID,
		"symbol":            fill.Symbol,
	}).Info("[fills] position opened")

	return nil
}
