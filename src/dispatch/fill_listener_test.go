package dispatch

import (
	"context"
	"testing"
	"time"

	"signalengine/src/connectors"
	"signalengine/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFillListener(f *fixture) (*FillListener, *[]string) {
	var startedKeys []string

	listener := NewFillListener().WithDB(f.db)
	listener.decrypt = func(enc string) (string, error) { return enc, nil }
	listener.rescanEvery = time.Hour
	listener.startStream = func(ctx context.Context, apiKey, apiSecret, environment string) {
		startedKeys = append(startedKeys, apiKey)
	}

	return listener, &startedKeys
}

// Credentials activated after boot must get a stream on the next scan, and
// credentials that already have one must not get a second.
func TestFillListenerPicksUpNewCredentials(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice")

	listener, startedKeys := newTestFillListener(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, listener.Start(ctx))
	assert.Equal(t, []string{"key-alice"}, *startedKeys)

	f.addUser(t, "bob")

	require.NoError(t, listener.scan(ctx))
	assert.Equal(t, []string{"key-alice", "key-bob"}, *startedKeys)

	require.NoError(t, listener.scan(ctx))
	assert.Equal(t, []string{"key-alice", "key-bob"}, *startedKeys, "existing streams are not duplicated")
}

func TestFillListenerDisabledWithoutBybit(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice")

	require.NoError(t, f.db.Model(&model.Exchange{}).
		Where("id = ?", f.exchange.ID).
		Update("name", model.ExchangeBinance).Error)

	listener, startedKeys := newTestFillListener(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, listener.Start(ctx))
	assert.Empty(t, *startedKeys)
}

func TestHandleFillOpensPendingPosition(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice")

	listener, _ := newTestFillListener(f)
	ctx := context.Background()

	pending := model.Position{
		UserID:          alice.ID,
		ExchangeID:      f.exchange.ID,
		Symbol:          "BTCUSDT",
		Direction:       model.DirectionLong,
		Status:          model.PositionStatusPending,
		ExchangeOrderID: "ord-1",
	}
	require.NoError(t, f.db.Create(&pending).Error)

	filledAt := time.Now().Add(-time.Minute)
	require.NoError(t, listener.handleFill(ctx, connectors.Fill{
		ExchangeOrderID: "ord-1",
		Symbol:          "BTCUSDT",
		ExecutedAt:      filledAt,
	}))

	var reloaded model.Position
	require.NoError(t, f.db.First(&reloaded, pending.ID).Error)
	assert.Equal(t, model.PositionStatusOpen, reloaded.Status)

	// Unknown orders and non-pending rows are ignored without error.
	require.NoError(t, listener.handleFill(ctx, connectors.Fill{ExchangeOrderID: "unknown"}))
	require.NoError(t, listener.handleFill(ctx, connectors.Fill{ExchangeOrderID: "ord-1"}))

	require.NoError(t, f.db.First(&reloaded, pending.ID).Error)
	assert.Equal(t, model.PositionStatusOpen, reloaded.Status)
}
