package dispatch

import "signalengine/src/model"

// UserOutcome is one user's slice of a dispatch report.
type UserOutcome struct {
	UserID     uint
	ExchangeID uint
	Outcome    string // model.DispatchOutcome*
	Reason     string
	ErrorKind  string
	PositionID *uint
}

// Report aggregates the per-user outcomes of dispatching one signal.
// A replayed signal gets the original report back, rebuilt from the
// persisted rows.
type Report struct {
	SignalID uint
	Replayed bool
	Outcomes []UserOutcome
}

func (r *Report) Count(outcome string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *Report) Succeeded() int { return r.Count(model.DispatchOutcomeSuccess) }
func (r *Report) Skipped() int   { return r.Count(model.DispatchOutcomeSkipped) }
func (r *Report) Failed() int    { return r.Count(model.DispatchOutcomeFailed) }
