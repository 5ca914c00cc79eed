package dispatch

import (
	"testing"
	"time"

	"signalengine/src/gate"
	"signalengine/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) newEngine() *Engine {
	return NewEngine(f.dispatcher, gate.New(gate.DefaultMaxAge)).WithDB(f.db)
}

func (f *fixture) resultsFor(t *testing.T, signalID uint) []model.DispatchResult {
	t.Helper()
	var rows []model.DispatchResult
	require.NoError(t, f.db.Where("signal_id = ?", signalID).Find(&rows).Error)
	return rows
}

// A short arriving while the gauge reads extreme fear must be rejected
// before fan-out: no connector call, no position, no dispatch rows. A long
// under the same gauge goes through.
func TestEngineGateRejectionCreatesNoPositions(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice")

	require.NoError(t, f.db.Create(&model.MarketSentiment{
		Value:          22,
		Classification: "Extreme Fear",
		Source:         "fear_greed_index",
		CollectedAt:    time.Now(),
	}).Error)

	engine := f.newEngine()

	short := f.signal(t, model.SignalActionOpenShort)
	long := f.signal(t, model.SignalActionOpenLong)

	require.NoError(t, engine.Submit(short))
	require.NoError(t, engine.Submit(long))
	engine.Shutdown()

	assert.Empty(t, f.resultsFor(t, short.ID), "rejected signal must not fan out")
	require.Len(t, f.resultsFor(t, long.ID), 1)
	assert.Equal(t, model.DispatchOutcomeSuccess, f.resultsFor(t, long.ID)[0].Outcome)

	var positions []model.Position
	require.NoError(t, f.db.Where("user_id = ?", alice.ID).Find(&positions).Error)
	require.Len(t, positions, 1, "only the long may open a position")
	assert.Equal(t, model.DirectionLong, positions[0].Direction)
}

// Same-symbol signals drain through one queue in arrival order: the close
// submitted after the open must find the open's position and flatten it. A
// reordering would leave the close skipped and the position live.
func TestEngineSameSymbolArrivalOrder(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice")

	engine := f.newEngine()

	open := f.signal(t, model.SignalActionOpenLong)
	closeSig := f.signal(t, model.SignalActionClose)

	require.NoError(t, engine.Submit(open))
	require.NoError(t, engine.Submit(closeSig))
	engine.Shutdown()

	closeRows := f.resultsFor(t, closeSig.ID)
	require.Len(t, closeRows, 1)
	assert.Equal(t, model.DispatchOutcomeSuccess, closeRows[0].Outcome)
	assert.Equal(t, "closed 1 position(s)", closeRows[0].Reason)

	assert.Equal(t, []string{"BTCUSDT"}, f.connector("alice").closedSyms)

	var position model.Position
	require.NoError(t, f.db.First(&position, "user_id = ?", alice.ID).Error)
	assert.Equal(t, model.PositionStatusClosed, position.Status)
}

func TestEngineQueueFullAndShutdown(t *testing.T) {
	t.Setenv("DISPATCH_QUEUE_SIZE", "1")

	f := newFixture(t)
	f.addUser(t, "alice")

	conn := f.connector("alice")
	conn.enteredBalance = make(chan struct{}, 1)
	conn.holdBalance = make(chan struct{})

	engine := f.newEngine()

	first := f.signal(t, model.SignalActionOpenLong)
	second := f.signal(t, model.SignalActionOpenLong)
	third := f.signal(t, model.SignalActionOpenLong)

	require.NoError(t, engine.Submit(first))
	<-conn.enteredBalance // worker is stalled inside the first dispatch

	require.NoError(t, engine.Submit(second))
	assert.ErrorIs(t, engine.Submit(third), ErrQueueFull)

	close(conn.holdBalance)
	engine.Shutdown()

	assert.Error(t, engine.Submit(first), "a drained engine accepts nothing")

	assert.Len(t, f.resultsFor(t, first.ID), 1)
	assert.Len(t, f.resultsFor(t, second.ID), 1, "queued signals survive shutdown")
	assert.Empty(t, f.resultsFor(t, third.ID))
}
