package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"signalengine/src/connectors"
	"signalengine/src/model"
	"signalengine/src/repository"
	"signalengine/src/risk"
	"signalengine/src/security"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dispatcher fans one validated signal out to every eligible user. Users are
// processed by a bounded worker pool and fully isolated from each other: a
// failure for one user is recorded and never aborts the rest of the batch.
type Dispatcher struct {
	config *Config

	users      *repository.UserRepository
	positions  *repository.PositionRepository
	creds      *repository.UserExchangeRepository
	profiles   *repository.RiskProfileRepository
	results    *repository.DispatchRepository
	exceptions *repository.ExceptionRepository

	factory connectors.ConnectorFactory
	stop    *EmergencyStop

	// decrypt turns stored key material back into plaintext; swapped out in
	// tests so fixtures don't need the real key.
	decrypt func(string) (string, error)
}

func NewDispatcher(factory connectors.ConnectorFactory, stop *EmergencyStop) *Dispatcher {
	return &Dispatcher{
		config:     GetConfig(),
		users:      repository.NewUserRepository(),
		positions:  repository.NewPositionRepository(),
		creds:      repository.NewUserExchangeRepository(),
		profiles:   repository.NewRiskProfileRepository(),
		results:    repository.NewDispatchRepository(),
		exceptions: repository.NewExceptionRepository(),
		factory:    factory,
		stop:       stop,
		decrypt:    security.DecryptString,
	}
}

// WithDB rebinds every repository onto the given connection.
func (d *Dispatcher) WithDB(db *gorm.DB) *Dispatcher {
	clone := *d
	clone.users = d.users.WithDB(db)
	clone.positions = d.positions.WithDB(db)
	clone.creds = d.creds.WithDB(db)
	clone.profiles = d.profiles.WithDB(db)
	clone.results = d.results.WithDB(db)
	clone.exceptions = d.exceptions.WithDB(db)
	return &clone
}

// WithDecrypt overrides credential decryption, for tests.
func (d *Dispatcher) WithDecrypt(decrypt func(string) (string, error)) *Dispatcher {
	clone := *d
	clone.decrypt = decrypt
	return &clone
}

// target is one (user, exchange) pair a signal fans out to.
type target struct {
	user     model.User
	exchange model.Exchange
}

// Dispatch executes one signal against every eligible user of every given
// exchange. Replaying a signal that already has persisted outcomes returns
// the original report without touching any exchange again.
func (d *Dispatcher) Dispatch(ctx context.Context, signal *model.TradingSignal, exchanges []model.Exchange) (*Report, error) {
	existing, err := d.results.FindBySignalID(ctx, signal.ID)
	if err != nil {
		return nil, fmt.Errorf("load dispatch results: %w", err)
	}
	if len(existing) > 0 {
		logger.WithFields(logger.Fields{
			"signal_id": signal.ID,
			"outcomes":  len(existing),
		}).Info("[dispatcher] signal already dispatched, returning stored report")
		return replayReport(signal.ID, existing), nil
	}

	var targets []target
	for _, exchange := range exchanges {
		users, err := d.users.FindEligibleForDispatch(ctx, exchange.ID)
		if err != nil {
			return nil, fmt.Errorf("load eligible users for %s: %w", exchange.Name, err)
		}
		for _, user := range users {
			targets = append(targets, target{user: user, exchange: exchange})
		}
	}

	report := &Report{
		SignalID: signal.ID,
		Outcomes: make([]UserOutcome, len(targets)),
	}

	sem := make(chan struct{}, d.config.Workers)
	var wg sync.WaitGroup

	for i := range targets {
		if d.stop.Engaged() {
			for j := i; j < len(targets); j++ {
				out := UserOutcome{
					UserID:     targets[j].user.ID,
					ExchangeID: targets[j].exchange.ID,
					Outcome:    model.DispatchOutcomeSkipped,
					Reason:     "emergency stop engaged",
				}
				report.Outcomes[j] = out
				d.record(ctx, signal.ID, out)
			}
			break
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(i int, t target) {
			defer wg.Done()
			defer func() { <-sem }()

			out := d.dispatchUser(ctx, signal, &t.user, &t.exchange)
			report.Outcomes[i] = out
			d.record(ctx, signal.ID, out)
		}(i, targets[i])
	}

	wg.Wait()

	logger.WithFields(logger.Fields{
		"signal_id": signal.ID,
		"symbol":    signal.Symbol,
		"action":    signal.Action,
		"targets":   len(targets),
		"succeeded": report.Succeeded(),
		"skipped":   report.Skipped(),
		"failed":    report.Failed(),
	}).Info("[dispatcher] signal dispatched")

	return report, nil
}

func (d *Dispatcher) dispatchUser(ctx context.Context, signal *model.TradingSignal, user *model.User, exchange *model.Exchange) (out UserOutcome) {
	out = UserOutcome{UserID: user.ID, ExchangeID: exchange.ID}

	log := logger.WithFields(logger.Fields{
		"user_id":   user.ID,
		"signal_id": signal.ID,
		"symbol":    signal.Symbol,
		"exchange":  exchange.Name,
	})

	defer func() {
		if r := recover(); r != nil {
			out.Outcome = model.DispatchOutcomeFailed
			out.Reason = fmt.Sprintf("panic: %v", r)
			out.ErrorKind = connectors.ErrKindExchange
			d.capture(ctx, "dispatchUser", fmt.Sprintf("panic dispatching user %d: %v", user.ID, r), string(debug.Stack()))
			log.Errorf("[dispatcher] recovered from panic: %v", r)
		}
	}()

	profile, err := d.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		return d.failed(out, log, err, "load risk profile")
	}
	if profile == nil {
		profile = model.DefaultRiskProfile(user.ID)
	}
	if profile.Disabled {
		return d.skipped(out, log, "risk profile disabled")
	}

	cred, err := d.creds.GetActiveByUserAndExchange(ctx, user.ID, exchange.ID)
	if err != nil {
		return d.failed(out, log, err, "load credential")
	}
	if cred == nil {
		return d.skipped(out, log, "no active credential")
	}

	apiKey, err := d.decrypt(cred.APIKeyEnc)
	if err != nil {
		return d.failedKind(out, log, err, connectors.ErrKindCredential, "decrypt api key")
	}
	apiSecret, err := d.decrypt(cred.APISecretEnc)
	if err != nil {
		return d.failedKind(out, log, err, connectors.ErrKindCredential, "decrypt api secret")
	}

	conn, err := d.factory(exchange.Name, apiKey, apiSecret, cred.Environment)
	if err != nil {
		return d.failed(out, log, err, "build connector")
	}

	if signal.IsClose() {
		return d.closeForUser(ctx, signal, user, conn, out, log)
	}

	return d.openForUser(ctx, signal, user, exchange, profile, conn, out, log)
}

func (d *Dispatcher) openForUser(
	ctx context.Context,
	signal *model.TradingSignal,
	user *model.User,
	exchange *model.Exchange,
	profile *model.RiskProfile,
	conn connectors.ExchangeConnector,
	out UserOutcome,
	log *logger.Entry,
) UserOutcome {

	open, err := d.positions.CountOpen(ctx, user.ID)
	if err != nil {
		return d.failed(out, log, err, "count open positions")
	}
	if open >= int64(profile.MaxOpenPositions) {
		return d.skipped(out, log, "position limit reached")
	}

	var balance decimal.Decimal
	err = connectors.Retry(ctx, "available_balance", func() error {
		b, err := conn.AvailableBalance(ctx, d.config.QuoteCoin)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return d.failed(out, log, err, "query balance")
	}

	size, err := risk.OrderSize(balance, signal.Price, profile.BalancePercent)
	if err != nil {
		return d.failedKind(out, log, err, connectors.ErrKindValidation, "size order")
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return d.skipped(out, log, "insufficient balance")
	}

	leverage := signal.Leverage
	if leverage <= 0 {
		leverage = profile.Leverage
	}

	levels, err := risk.ComputePrices(signal.Price, signal.Direction(), leverage, profile)
	if err != nil {
		return d.failedKind(out, log, err, connectors.ErrKindValidation, "compute price levels")
	}

	position := &model.Position{
		UserID:          user.ID,
		ExchangeID:      exchange.ID,
		SignalID:        signal.ID,
		Symbol:          signal.Symbol,
		Direction:       signal.Direction(),
		EntryPrice:      signal.Price,
		TakeProfitPrice: levels.TakeProfitPrice,
		StopLossPrice:   levels.StopLossPrice,
		Size:            size,
		Status:          model.PositionStatusPending,
	}
	if err := d.positions.Create(ctx, position); err != nil {
		d.capture(ctx, "openForUser", fmt.Sprintf("persist position for user %d: %v", user.ID, err), "")
		return d.failed(out, log, err, "persist position")
	}

	req := connectors.OrderRequest{
		Symbol:     signal.Symbol,
		Direction:  signal.Direction(),
		Size:       size,
		TakeProfit: levels.TakeProfitPrice,
		StopLoss:   levels.StopLossPrice,
		ClientID:   uuid.NewString(),
	}

	var result *connectors.OrderResult
	err = connectors.Retry(ctx, "place_order", func() error {
		r, err := conn.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if markErr := d.positions.MarkError(ctx, position.ID, err.Error()); markErr != nil {
			d.capture(ctx, "openForUser", fmt.Sprintf("mark position %d error: %v", position.ID, markErr), "")
		}
		return d.failed(out, log, err, "place order")
	}

	if err := d.positions.SetExchangeOrderID(ctx, position.ID, result.ExchangeOrderID); err != nil {
		// The order is live on the exchange but the row no longer reflects
		// it. Loud capture so an operator reconciles by client order id.
		d.capture(ctx, "openForUser",
			fmt.Sprintf("order %s accepted but position %d not updated: %v", result.ExchangeOrderID, position.ID, err), "")
		log.WithError(err).Error("[dispatcher] accepted order could not be recorded")
	}

	out.Outcome = model.DispatchOutcomeSuccess
	out.Reason = "order accepted"
	out.PositionID = &position.ID

	log.WithFields(logger.Fields{
		"position_id":       position.ID,
		"exchange_order_id": result.ExchangeOrderID,
		"size":              size.String(),
		"take_profit":       levels.TakeProfitPrice.String(),
		"stop_loss":         levels.StopLossPrice.String(),
	}).Info("[dispatcher] order placed")

	return out
}

func (d *Dispatcher) closeForUser(
	ctx context.Context,
	signal *model.TradingSignal,
	user *model.User,
	conn connectors.ExchangeConnector,
	out UserOutcome,
	log *logger.Entry,
) UserOutcome {

	rows, err := d.positions.FindOpenByUserAndSymbol(ctx, user.ID, signal.Symbol)
	if err != nil {
		return d.failed(out, log, err, "load open positions")
	}
	if len(rows) == 0 {
		return d.skipped(out, log, "no open position to close")
	}

	err = connectors.Retry(ctx, "close_positions", func() error {
		return conn.ClosePositions(ctx, signal.Symbol)
	})
	if err != nil {
		return d.failed(out, log, err, "close positions")
	}

	now := time.Now()
	for _, row := range rows {
		if err := d.positions.MarkClosed(ctx, row.ID, now, "closed by signal"); err != nil {
			d.capture(ctx, "closeForUser", fmt.Sprintf("mark position %d closed: %v", row.ID, err), "")
		}
	}

	out.Outcome = model.DispatchOutcomeSuccess
	out.Reason = fmt.Sprintf("closed %d position(s)", len(rows))
	out.PositionID = &rows[0].ID

	log.WithField("closed", len(rows)).Info("[dispatcher] positions closed")
	return out
}

func (d *Dispatcher) skipped(out UserOutcome, log *logger.Entry, reason string) UserOutcome {
	out.Outcome = model.DispatchOutcomeSkipped
	out.Reason = reason
	log.WithField("reason", reason).Info("[dispatcher] user skipped")
	return out
}

func (d *Dispatcher) failed(out UserOutcome, log *logger.Entry, err error, step string) UserOutcome {
	return d.failedKind(out, log, err, connectors.Classify(err), step)
}

func (d *Dispatcher) failedKind(out UserOutcome, log *logger.Entry, err error, kind, step string) UserOutcome {
	out.Outcome = model.DispatchOutcomeFailed
	out.Reason = fmt.Sprintf("%s: %v", step, err)
	out.ErrorKind = kind
	log.WithError(err).WithField("error_kind", kind).Errorf("[dispatcher] %s failed", step)
	return out
}

func (d *Dispatcher) record(ctx context.Context, signalID uint, out UserOutcome) {
	row := &model.DispatchResult{
		SignalID:   signalID,
		UserID:     out.UserID,
		ExchangeID: out.ExchangeID,
		Outcome:    out.Outcome,
		Reason:     out.Reason,
		ErrorKind:  out.ErrorKind,
		PositionID: out.PositionID,
	}
	if err := d.results.Create(ctx, row); err != nil {
		logger.WithError(err).WithFields(logger.Fields{
			"signal_id": signalID,
			"user_id":   out.UserID,
		}).Error("[dispatcher] failed to persist dispatch result")
	}
}

func (d *Dispatcher) capture(ctx context.Context, method, message, stack string) {
	err := d.exceptions.Create(ctx, &model.Exception{
		Service: "signalengine",
		Module:  "dispatcher",
		Method:  method,
		Message: message,
		Stack:   stack,
		Level:   "error",
	})
	if err != nil {
		logger.WithError(err).Error("[dispatcher] failed to persist exception")
	}
}

func replayReport(signalID uint, rows []model.DispatchResult) *Report {
	report := &Report{
		SignalID: signalID,
		Replayed: true,
		Outcomes: make([]UserOutcome, 0, len(rows)),
	}
	for _, row := range rows {
		report.Outcomes = append(report.Outcomes, UserOutcome{
			UserID:     row.UserID,
			ExchangeID: row.ExchangeID,
			Outcome:    row.Outcome,
			Reason:     row.Reason,
			ErrorKind:  row.ErrorKind,
			PositionID: row.PositionID,
		})
	}
	return report
}
