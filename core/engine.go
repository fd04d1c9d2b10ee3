package core

import (
	"sort"

	"github.com/signalsfoundry/railguard-simulator/model"
)

// SafetyViolation reports a follower inside its leader's safety bubble.
type SafetyViolation struct {
	FollowerID string  `json:"follower_id"`
	LeaderID   string  `json:"leader_id"`
	RequiredM  float64 `json:"required_m"`
	ActualM    float64 `json:"actual_m"`
}

// StepReport summarises one tick.
type StepReport struct {
	Moved      int               `json:"moved"`
	Violations []SafetyViolation `json:"violations,omitempty"`
}

// Engine advances trains on a single line under the car-following rule.
// The zero value is not usable; construct with NewEngine.
type Engine struct {
	SafetyMarginM   float64
	AccelPerTickKmh float64
	TickSeconds     float64
}

// NewEngine returns an engine with the standard constants.
func NewEngine() *Engine {
	return &Engine{
		SafetyMarginM:   SafetyMarginM,
		AccelPerTickKmh: AccelPerTickKmh,
		TickSeconds:     TickSeconds,
	}
}

// Step advances trains by one tick in place. The caller must hold exclusive
// access to every train for the duration of the call.
func (e *Engine) Step(trains []*model.Train) StepReport {
	ordered := orderByPosition(trains)

	// Ascending order means the leader at i+1 still carries its pre-tick
	// speed when i is evaluated.
	for i, tr := range ordered {
		if !tr.Dispatched {
			tr.SpeedKmh = 0
			continue
		}
		limit := tr.DesiredLimitKmh()
		if i+1 < len(ordered) {
			if dyn := DynamicSpeedLimitKmh(*tr, *ordered[i+1], e.SafetyMarginM); dyn < limit {
				limit = dyn
			}
		}
		tr.SpeedKmh = nextSpeedKmh(tr.SpeedKmh, limit, e.AccelPerTickKmh)
	}

	var report StepReport
	for _, tr := range trains {
		if !tr.Dispatched {
			continue
		}
		tr.PositionKm += tr.SpeedKmh * (e.TickSeconds / 3600)
		if tr.SpeedKmh > 0 {
			report.Moved++
		}
	}

	report.Violations = e.Audit(trains)
	return report
}

// Audit checks every adjacent pair against the leader's current safety
// bubble. It never modifies trains.
func (e *Engine) Audit(trains []*model.Train) []SafetyViolation {
	ordered := orderByPosition(trains)
	var out []SafetyViolation
	for i := 0; i+1 < len(ordered); i++ {
		follower, leader := ordered[i], ordered[i+1]
		required := RequiredGapM(*leader, e.SafetyMarginM)
		actual := (leader.PositionKm - follower.PositionKm) * 1000
		if actual < required {
			out = append(out, SafetyViolation{
				FollowerID: follower.ID,
				LeaderID:   leader.ID,
				RequiredM:  required,
				ActualM:    actual,
			})
		}
	}
	return out
}

// orderByPosition sorts a copy of trains by position. Held trains sit behind
// dispatched ones at the same point, then ids break the tie.
func orderByPosition(trains []*model.Train) []*model.Train {
	ordered := make([]*model.Train, len(trains))
	copy(ordered, trains)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.PositionKm != b.PositionKm {
			return a.PositionKm < b.PositionKm
		}
		if a.Dispatched != b.Dispatched {
			return !a.Dispatched
		}
		return a.ID < b.ID
	})
	return ordered
}
