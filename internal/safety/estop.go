package safety

import (
	"sync/atomic"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
)

// Override is the emergency-stop latch. Any producer may set it; once set it
// holds until explicitly cleared, so a pending intent can never slip through
// the instant after an emergency. It is a single atomic boolean checked ahead
// of the normal intent/sensor path, independent of the arbiter's distance
// logic.
type Override struct {
	engaged atomic.Bool
	logf    func(format string, v ...interface{})
}

// NewOverride creates a cleared latch.
func NewOverride() *Override {
	return &Override{logf: monitoring.Prefixed("estop")}
}

// Trigger sets the latch. Idempotent; the transition is logged once.
func (o *Override) Trigger() {
	if !o.engaged.Swap(true) {
		o.logf("engaged")
	}
}

// Clear resets the latch so normal motion intents are honored again.
func (o *Override) Clear() {
	if o.engaged.Swap(false) {
		o.logf("cleared")
	}
}

// Engaged reports whether the latch is set.
func (o *Override) Engaged() bool {
	return o.engaged.Load()
}
