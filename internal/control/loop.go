// Package control runs the fixed-rate actuation loop. Each tick it samples
// the freshest sensor state, the latest requested intent, and the emergency
// override, arbitrates them into a single decision, and pushes the result to
// the drive sink. The loop never blocks on slow consumers: actuation errors
// are logged and the next tick proceeds.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/drive"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/rangefinder"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/timeutil"
)

// DefaultInterval is the actuation tick period (50 Hz).
const DefaultInterval = 20 * time.Millisecond

// StateSource yields the current trustworthiness-annotated sensor state.
type StateSource interface {
	CurrentState() rangefinder.SensorState
}

// IntentSource yields the most recently requested motion intent.
type IntentSource interface {
	Latest() safety.Intent
}

// OverrideSource reports whether the emergency override is engaged.
type OverrideSource interface {
	Engaged() bool
}

// Snapshot is one completed loop iteration: what was requested, what the
// sensor said, and what was actually applied.
type Snapshot struct {
	Intent   safety.Intent           `json:"intent"`
	State    rangefinder.SensorState `json:"state"`
	Decision safety.Decision         `json:"decision"`
	At       time.Time               `json:"at"`
}

// LoopConfig wires a Loop. Sink, States, Intents and Override are required;
// everything else has a usable default.
type LoopConfig struct {
	States   StateSource
	Intents  IntentSource
	Override OverrideSource
	Sink     drive.Sink

	Thresholds safety.Thresholds
	Interval   time.Duration
	Clock      timeutil.Clock

	// MaxSpeed caps every applied track speed. Defaults to the hardware
	// limit; configured ceilings above it are reduced to it.
	MaxSpeed int

	// OnDecision, if set, observes every completed tick. It runs on the
	// loop goroutine and must return quickly.
	OnDecision func(Snapshot)

	Logf func(format string, v ...interface{})
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.Thresholds == (safety.Thresholds{}) {
		c.Thresholds = safety.DefaultThresholds()
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxSpeed <= 0 || c.MaxSpeed > drive.MaxSpeed {
		c.MaxSpeed = drive.MaxSpeed
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Logf == nil {
		c.Logf = monitoring.Prefixed("control")
	}
	return c
}

// Loop is the actuation loop. Create with NewLoop and drive with Run.
type Loop struct {
	cfg LoopConfig

	mu   sync.RWMutex
	last Snapshot
	seen bool
}

// NewLoop validates cfg and builds a Loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Loop{cfg: cfg}, nil
}

// Run ticks the loop until ctx is cancelled. On exit it issues a final
// stop to the sink so the tracks are never left powered.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.cfg.Logf("loop started interval=%s stop=%.0fcm slow=%.0fcm",
		l.cfg.Interval, l.cfg.Thresholds.StopCm, l.cfg.Thresholds.SlowCm)

	for {
		select {
		case <-ctx.Done():
			if err := l.cfg.Sink.Apply(0, 0); err != nil {
				l.cfg.Logf("final stop failed: %v", err)
			}
			l.cfg.Logf("loop stopped")
			return
		case <-ticker.C():
			l.Step()
		}
	}
}

// Step executes one arbitration tick. Exported so tests and one-shot tools
// can drive the loop without a ticker.
func (l *Loop) Step() Snapshot {
	state := l.cfg.States.CurrentState()
	intent := l.cfg.Intents.Latest()
	decision := safety.Decide(intent, state, l.cfg.Override.Engaged(), l.cfg.Thresholds)
	decision.Left = drive.ClampTo(decision.Left, l.cfg.MaxSpeed)
	decision.Right = drive.ClampTo(decision.Right, l.cfg.MaxSpeed)

	snap := Snapshot{
		Intent:   intent,
		State:    state,
		Decision: decision,
		At:       l.cfg.Clock.Now(),
	}

	l.mu.Lock()
	prev, seen := l.last, l.seen
	l.last, l.seen = snap, true
	l.mu.Unlock()

	if !seen || prev.Decision.Reason != decision.Reason {
		l.cfg.Logf("decision %s left=%d right=%d (requested %d/%d, distance=%.0fcm absent=%t stale=%t)",
			decision.Reason, decision.Left, decision.Right,
			intent.Left, intent.Right, state.DistanceCm, state.Absent, state.Stale)
	}

	if err := l.cfg.Sink.Apply(decision.Left, decision.Right); err != nil {
		l.cfg.Logf("apply failed: %v", err)
	}

	if l.cfg.OnDecision != nil {
		l.cfg.OnDecision(snap)
	}
	return snap
}

// Last returns the most recent completed tick, or false before the first.
func (l *Loop) Last() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last, l.seen
}
