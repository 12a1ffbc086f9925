package rangefinder

import (
	"time"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/timeutil"
)

// DefaultStaleThreshold is how old a sample may be before it is distrusted.
const DefaultStaleThreshold = 500 * time.Millisecond

// LatestSource yields the most recently published sample. Satisfied by
// *Reader; tests substitute fabricated sources.
type LatestSource interface {
	Latest() (Sample, bool)
}

// StaleMonitor derives a SensorState from the reader's latest sample. It is
// a pure function of shared state with no side effects, safe to call from
// any goroutine at any rate.
type StaleMonitor struct {
	source    LatestSource
	clock     timeutil.Clock
	threshold time.Duration
}

// NewStaleMonitor creates a StaleMonitor over the given source. A zero or
// negative threshold takes DefaultStaleThreshold; a nil clock takes the real
// clock.
func NewStaleMonitor(source LatestSource, clock timeutil.Clock, threshold time.Duration) *StaleMonitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return &StaleMonitor{source: source, clock: clock, threshold: threshold}
}

// CurrentState computes the sensor state at the moment of the call. A sample
// strictly older than the threshold is stale; no sample at all is absent.
func (m *StaleMonitor) CurrentState() SensorState {
	sample, ok := m.source.Latest()
	if !ok {
		return SensorState{Absent: true}
	}
	return SensorState{
		DistanceCm: sample.DistanceCm,
		Stale:      m.clock.Since(sample.CapturedAt) > m.threshold,
	}
}
