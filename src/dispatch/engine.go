package dispatch

import (
	"context"
	"errors"
	"sync"

	"signalengine/src/gate"
	"signalengine/src/model"
	"signalengine/src/repository"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrQueueFull is returned by Submit when a symbol's queue is at capacity.
// The signal is already persisted at that point, so a later replay of the
// same idempotency key will pick it up again.
var ErrQueueFull = errors.New("signal queue full")

// Engine serializes signals per symbol: each symbol gets its own FIFO queue
// drained by a single goroutine, so two signals for BTCUSDT can never be
// dispatched out of arrival order, while different symbols proceed in
// parallel.
type Engine struct {
	config     *Config
	dispatcher *Dispatcher
	gate       *gate.Gate

	sentiments *repository.SentimentRepository
	exchanges  *repository.ExchangeRepository

	mu     sync.Mutex
	queues map[string]chan *model.TradingSignal
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(dispatcher *Dispatcher, g *gate.Gate) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:     GetConfig(),
		dispatcher: dispatcher,
		gate:       g,
		sentiments: repository.NewSentimentRepository(),
		exchanges:  repository.NewExchangeRepository(),
		queues:     make(map[string]chan *model.TradingSignal),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithDB rebinds the engine's repositories and its dispatcher onto the given
// connection.
func (e *Engine) WithDB(db *gorm.DB) *Engine {
	e.dispatcher = e.dispatcher.WithDB(db)
	e.sentiments = e.sentiments.WithDB(db)
	e.exchanges = e.exchanges.WithDB(db)
	return e
}

// Submit enqueues a persisted signal for dispatch and returns immediately.
func (e *Engine) Submit(signal *model.TradingSignal) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("engine is shut down")
	}

	queue, ok := e.queues[signal.Symbol]
	if !ok {
		queue = make(chan *model.TradingSignal, e.config.QueueSize)
		e.queues[signal.Symbol] = queue

		e.wg.Add(1)
		go e.drain(signal.Symbol, queue)
	}
	e.mu.Unlock()

	select {
	case queue <- signal:
		return nil
	default:
		logger.WithFields(logger.Fields{
			"signal_id": signal.ID,
			"symbol":    signal.Symbol,
		}).Warn("[engine] symbol queue full, signal not enqueued")
		return ErrQueueFull
	}
}

// Shutdown stops accepting signals and waits for queued ones to finish.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, queue := range e.queues {
		close(queue)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.cancel()
}

func (e *Engine) drain(symbol string, queue chan *model.TradingSignal) {
	defer e.wg.Done()

	logger.WithField("symbol", symbol).Debug("[engine] symbol worker started")

	for signal := range queue {
		e.process(signal)
	}
}

func (e *Engine) process(signal *model.TradingSignal) {
	log := logger.WithFields(logger.Fields{
		"signal_id": signal.ID,
		"symbol":    signal.Symbol,
		"action":    signal.Action,
	})

	sentiment, err := e.sentiments.Latest(e.ctx)
	if err != nil {
		log.WithError(err).Error("[engine] failed to load sentiment, proceeding without it")
		sentiment = nil
	}

	decision := e.gate.Validate(signal, sentiment)
	if !decision.Allowed {
		log.WithField("reason", decision.Reason).Info("[engine] signal rejected by gate")
		return
	}
	log.WithField("reason", decision.Reason).Debug("[engine] signal passed gate")

	exchanges, err := e.exchanges.FindActive(e.ctx)
	if err != nil {
		log.WithError(err).Error("[engine] failed to load active exchanges")
		return
	}
	if len(exchanges) == 0 {
		log.Warn("[engine] no active exchange configured")
		return
	}

	if _, err := e.dispatcher.Dispatch(e.ctx, signal, exchanges); err != nil {
		log.WithError(err).Error("[engine] dispatch failed")
	}
}
