// Package drive defines the actuation boundary of the safety core. The
// control loop emits arbitrated (left, right) track-speed pairs into a Sink;
// everything behind the Sink — motor driver, mock bench rig, simulator — is
// outside the core's responsibility. The core's only guarantee is that every
// Apply call has already passed through the safety arbiter or the emergency
// override.
package drive

import (
	"sync"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
)

// MaxSpeed is the drive hardware's documented speed magnitude limit.
const MaxSpeed = 4095

// Sink consumes arbitrated track speeds. Implementations should be cheap:
// the control loop calls Apply on every tick.
type Sink interface {
	Apply(left, right int) error
}

// Clamp bounds a speed to the drive hardware range [-MaxSpeed, MaxSpeed].
func Clamp(speed int) int {
	return ClampTo(speed, MaxSpeed)
}

// ClampTo bounds a speed to [-max, max]. Deployments configure ceilings
// below the hardware limit for indoor or demo operation.
func ClampTo(speed, max int) int {
	if speed > max {
		return max
	}
	if speed < -max {
		return -max
	}
	return speed
}

// Mix converts stick-style forward/turn components in [-1, 1] into a
// differential track-speed pair scaled by max, clamped to hardware range.
// Equal magnitudes of left and right turn preserve the turn direction at any
// forward speed.
func Mix(forward, turn float64, max int) (left, right int) {
	left = Clamp(int((forward + turn) * float64(max)))
	right = Clamp(int((forward - turn) * float64(max)))
	return left, right
}

// NullSink discards every speed pair. Used when running headless without a
// motor board attached.
type NullSink struct{}

// Apply implements Sink.
func (NullSink) Apply(left, right int) error { return nil }

// LogSink logs every change in applied speeds. It suppresses repeats so a
// 50 Hz control loop holding a steady decision does not flood the log.
type LogSink struct {
	mu        sync.Mutex
	lastLeft  int
	lastRight int
	applied   bool
	logf      func(format string, v ...interface{})
}

// NewLogSink creates a LogSink writing to the monitoring logger.
func NewLogSink() *LogSink {
	return &LogSink{logf: monitoring.Prefixed("drive")}
}

// Apply implements Sink.
func (s *LogSink) Apply(left, right int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied && left == s.lastLeft && right == s.lastRight {
		return nil
	}
	s.lastLeft, s.lastRight = left, right
	s.applied = true
	s.logf("apply left=%d right=%d", left, right)
	return nil
}

// Recorder is a Sink test double that captures every applied pair.
type Recorder struct {
	mu      sync.Mutex
	applied [][2]int
	err     error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Apply implements Sink, recording the pair and returning the scripted
// error, if any.
func (r *Recorder) Apply(left, right int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, [2]int{left, right})
	return r.err
}

// FailWith makes every subsequent Apply return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Applied returns a copy of all recorded pairs.
func (r *Recorder) Applied() [][2]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]int(nil), r.applied...)
}

// Last returns the most recently applied pair, or false if none.
func (r *Recorder) Last() ([2]int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.applied) == 0 {
		return [2]int{}, false
	}
	return r.applied[len(r.applied)-1], true
}
