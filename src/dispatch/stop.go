package dispatch

import (
	"sync/atomic"

	logger "github.com/sirupsen/logrus"
)

// EmergencyStop is a process-wide kill switch. While engaged the
// dispatcher refuses to start new user dispatches; in-flight exchange
// calls are left to finish so no order is abandoned half-placed.
type EmergencyStop struct {
	engaged atomic.Bool
}

func NewEmergencyStop() *EmergencyStop {
	return &EmergencyStop{}
}

func (s *EmergencyStop) Engage() {
	if s.engaged.CompareAndSwap(false, true) {
		logger.Warn("[dispatch] emergency stop engaged")
	}
}

func (s *EmergencyStop) Release() {
	if s.engaged.CompareAndSwap(true, false) {
		logger.Info("[dispatch] emergency stop released")
	}
}

func (s *EmergencyStop) Engaged() bool {
	return s.engaged.Load()
}
