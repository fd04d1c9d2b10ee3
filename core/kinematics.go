package core

import (
	"math"

	"github.com/signalsfoundry/railguard-simulator/model"
)

const (
	// SafetyMarginM is the fixed buffer kept behind a leader's braking point.
	SafetyMarginM = 200.0
	// AccelPerTickKmh is the speed gained per tick when the line is clear.
	AccelPerTickKmh = 10.0
	// TickSeconds is the simulated duration of one tick.
	TickSeconds = 1.0

	kmhPerMps = 3.6
)

// BrakingDistanceM returns the stopping distance in metres from speedKmh
// at a constant deceleration of brakingRate m/s².
func BrakingDistanceM(speedKmh, brakingRate float64) float64 {
	if brakingRate <= 0 {
		return math.Inf(1)
	}
	v := speedKmh / kmhPerMps
	return v * v / (2 * brakingRate)
}

// DynamicSpeedLimitKmh is the highest speed at which follower could still
// stop short of leader's braking point minus marginM, were the leader to
// start braking now. The result is capped at the follower's maximum speed.
func DynamicSpeedLimitKmh(follower, leader model.Train, marginM float64) float64 {
	safePointM := leader.PositionKm*1000 - BrakingDistanceM(leader.SpeedKmh, leader.BrakingRate) - marginM
	gapM := safePointM - follower.PositionKm*1000
	if gapM <= 0 {
		return 0
	}
	safe := math.Sqrt(2*gapM*follower.BrakingRate) * kmhPerMps
	return math.Min(safe, follower.MaxSpeedKmh)
}

// RequiredGapM is the safety bubble a follower must keep behind leader.
func RequiredGapM(leader model.Train, marginM float64) float64 {
	return BrakingDistanceM(leader.SpeedKmh, leader.BrakingRate) + marginM
}

// nextSpeedKmh applies the limit to the current speed. Braking is an
// instantaneous snap down to the limit; acceleration is bounded per tick.
func nextSpeedKmh(current, limit, accel float64) float64 {
	if limit < current {
		return limit
	}
	return math.Min(limit, current+accel)
}
