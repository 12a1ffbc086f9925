// Package safety is the only path by which a motion intent becomes an
// actuation decision. Decide is pure and deterministic over its three inputs
// so the zone policy can be tested exhaustively with fabricated sensor states.
package safety

import (
	"fmt"
	"time"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/rangefinder"
)

// Reason explains why a decision differs (or not) from the requested intent.
type Reason string

const (
	// ReasonFull passes the intent through unchanged.
	ReasonFull Reason = "full"
	// ReasonScaled applies a uniform slowdown inside the slow zone.
	ReasonScaled Reason = "scaled"
	// ReasonBlockedNear stops the robot inside the stop zone.
	ReasonBlockedNear Reason = "blocked_near"
	// ReasonBlockedStale stops the robot when sensing is absent or stale.
	ReasonBlockedStale Reason = "blocked_stale"
	// ReasonEmergency stops the robot because the override latch is set.
	ReasonEmergency Reason = "emergency"
)

// Intent is a requested pair of track speeds. Positive values drive the
// sensor-facing direction. Superseded by every newer intent, never queued.
type Intent struct {
	Left     int       `json:"left"`
	Right    int       `json:"right"`
	IssuedAt time.Time `json:"issued_at"`
}

// Forward reports whether the intent drives the robot toward the sensor's
// field of view. Both tracks must be positive: reverse and pure-rotation
// intents are not forward, since the sensor knows nothing about rear or side
// clearance.
func (i Intent) Forward() bool {
	return i.Left > 0 && i.Right > 0
}

// Decision is the arbitrated actuation output. Immutable once computed,
// consumed once by the actuation sink.
type Decision struct {
	Left   int    `json:"left"`
	Right  int    `json:"right"`
	Reason Reason `json:"reason"`
}

// Stopped reports whether the decision commands zero motion.
func (d Decision) Stopped() bool {
	return d.Left == 0 && d.Right == 0
}

// Thresholds holds the distance-zone boundaries. Stop must stay below Slow or
// the slow zone silently vanishes, which is why Validate treats the inversion
// as fatal.
type Thresholds struct {
	StopCm float64
	SlowCm float64
}

// DefaultThresholds stops well inside the robot's physical stopping distance
// at full commanded speed.
func DefaultThresholds() Thresholds {
	return Thresholds{StopCm: 10, SlowCm: 40}
}

// Validate rejects threshold configurations that would disable a zone.
func (t Thresholds) Validate() error {
	if t.StopCm <= 0 {
		return fmt.Errorf("stop threshold must be positive, got %.1f cm", t.StopCm)
	}
	if t.StopCm >= t.SlowCm {
		return fmt.Errorf("stop threshold %.1f cm must be below slow threshold %.1f cm", t.StopCm, t.SlowCm)
	}
	return nil
}

// ScaleFactor returns the uniform speed multiplier for a forward intent at
// the given distance: distance/slow, clamped to [0, 1]. Applying it to both
// tracks preserves steering intent during the slowdown.
func (t Thresholds) ScaleFactor(distanceCm float64) float64 {
	factor := distanceCm / t.SlowCm
	if factor < 0 {
		return 0
	}
	if factor > 1 {
		return 1
	}
	return factor
}

// Decide computes the actuation allowed for the given intent under the given
// sensor state and emergency latch. It has no hidden state and performs no
// I/O.
//
// The emergency check runs first and depends on nothing else. The distance
// gate applies only to forward intents; distances exactly at the stop
// threshold fall in the slow regime, and exactly at the slow threshold pass
// at full speed (boundaries are inclusive toward the less restrictive zone).
func Decide(intent Intent, state rangefinder.SensorState, emergency bool, t Thresholds) Decision {
	if emergency {
		return Decision{Reason: ReasonEmergency}
	}

	if !intent.Forward() {
		return Decision{Left: intent.Left, Right: intent.Right, Reason: ReasonFull}
	}

	if !state.Trustworthy() {
		// Untrustworthy sensing is treated identically to a detected obstacle.
		return Decision{Reason: ReasonBlockedStale}
	}

	switch {
	case state.DistanceCm < t.StopCm:
		return Decision{Reason: ReasonBlockedNear}
	case state.DistanceCm < t.SlowCm:
		factor := t.ScaleFactor(state.DistanceCm)
		return Decision{
			Left:   int(float64(intent.Left) * factor),
			Right:  int(float64(intent.Right) * factor),
			Reason: ReasonScaled,
		}
	default:
		return Decision{Left: intent.Left, Right: intent.Right, Reason: ReasonFull}
	}
}
