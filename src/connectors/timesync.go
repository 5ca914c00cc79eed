package connectors

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// TimeSync tracks the offset between local and exchange server clocks so
// signed request timestamps land inside the recvWindow even on skewed hosts.
type TimeSync struct {
	getServerTime func() (int64, error)
	resyncEvery   time.Duration

	mu       sync.RWMutex
	offset   int64 // milliseconds, server - local
	lastSync time.Time
}

func NewTimeSync(getServerTime func() (int64, error)) *TimeSync {
	return &TimeSync{
		getServerTime: getServerTime,
		resyncEvery:   30 * time.Minute,
	}
}

// Now returns the current time in exchange milliseconds, resyncing lazily
// when the last sync is too old. A failed sync falls back to the local clock
// plus whatever offset we had.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	stale := time.Since(ts.lastSync) > ts.resyncEvery
	offset := ts.offset
	ts.mu.RUnlock()

	if stale {
		if err := ts.Sync(); err != nil {
			logger.WithError(err).Warn("server time sync failed, using last known offset")
		} else {
			ts.mu.RLock()
			offset = ts.offset
			ts.mu.RUnlock()
		}
	}

	return time.Now().UnixMilli() + offset
}

// Sync queries the server clock and recomputes the offset, assuming network
// latency is symmetric.
func (ts *TimeSync) Sync() error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime()
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	localMid := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localMid
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	logger.WithField("offset_ms", serverTime-localMid).Debug("server time synced")
	return nil
}

// Offset returns the current offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
