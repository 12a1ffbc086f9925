package safety

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/rangefinder"
)

func fresh(distanceCm float64) rangefinder.SensorState {
	return rangefinder.SensorState{DistanceCm: distanceCm}
}

var absent = rangefinder.SensorState{Absent: true}

func TestDecide_Scenarios(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	tests := []struct {
		name      string
		intent    Intent
		state     rangefinder.SensorState
		emergency bool
		want      Decision
	}{
		{
			name:   "forward with clearance passes unchanged",
			intent: Intent{Left: 2000, Right: 2000},
			state:  fresh(50),
			want:   Decision{Left: 2000, Right: 2000, Reason: ReasonFull},
		},
		{
			name:   "forward in slow zone scales by distance over slow",
			intent: Intent{Left: 2000, Right: 2000},
			state:  fresh(20),
			want:   Decision{Left: 1000, Right: 1000, Reason: ReasonScaled},
		},
		{
			name:   "forward in stop zone blocks",
			intent: Intent{Left: 2000, Right: 2000},
			state:  fresh(8),
			want:   Decision{Reason: ReasonBlockedNear},
		},
		{
			name:   "forward with no sample ever published blocks",
			intent: Intent{Left: 2000, Right: 2000},
			state:  absent,
			want:   Decision{Reason: ReasonBlockedStale},
		},
		{
			name:   "forward with stale sample blocks",
			intent: Intent{Left: 2000, Right: 2000},
			state:  rangefinder.SensorState{DistanceCm: 100, Stale: true},
			want:   Decision{Reason: ReasonBlockedStale},
		},
		{
			name:   "reverse bypasses the distance gate",
			intent: Intent{Left: -2000, Right: -2000},
			state:  fresh(5),
			want:   Decision{Left: -2000, Right: -2000, Reason: ReasonFull},
		},
		{
			name:   "rotation in place bypasses the distance gate",
			intent: Intent{Left: 1500, Right: -1500},
			state:  absent,
			want:   Decision{Left: 1500, Right: -1500, Reason: ReasonFull},
		},
		{
			name:      "emergency wins over everything",
			intent:    Intent{Left: 2000, Right: 2000},
			state:     fresh(500),
			emergency: true,
			want:      Decision{Reason: ReasonEmergency},
		},
		{
			name:      "emergency wins even for reverse intents",
			intent:    Intent{Left: -2000, Right: -2000},
			state:     absent,
			emergency: true,
			want:      Decision{Reason: ReasonEmergency},
		},
		{
			name:   "scaling preserves steering ratio",
			intent: Intent{Left: 2000, Right: 1000},
			state:  fresh(20),
			want:   Decision{Left: 1000, Right: 500, Reason: ReasonScaled},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tc.intent, tc.state, tc.emergency, thresholds)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Decide mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// P1: identical inputs yield identical outputs.
func TestDecide_Deterministic(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	intents := []Intent{
		{Left: 2000, Right: 2000},
		{Left: -500, Right: 1200},
		{Left: 0, Right: 0},
	}
	states := []rangefinder.SensorState{absent, fresh(5), fresh(25), fresh(120), {DistanceCm: 30, Stale: true}}

	for _, intent := range intents {
		for _, state := range states {
			for _, emergency := range []bool{false, true} {
				first := Decide(intent, state, emergency, thresholds)
				second := Decide(intent, state, emergency, thresholds)
				assert.Equal(t, first, second)
			}
		}
	}
}

// P2: emergency precedence for every combination of intent and state.
func TestDecide_EmergencyPrecedence(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	for _, intent := range []Intent{{Left: 2000, Right: 2000}, {Left: -100, Right: 300}, {}} {
		for _, state := range []rangefinder.SensorState{absent, fresh(5), fresh(1000)} {
			got := Decide(intent, state, true, thresholds)
			assert.Equal(t, Decision{Reason: ReasonEmergency}, got)
		}
	}
}

// P4: scaled speed grows monotonically with distance and never exceeds the
// unscaled intent.
func TestDecide_MonotonicScaling(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	intent := Intent{Left: 4000, Right: 4000}

	prev := -1
	for d := thresholds.StopCm; d < thresholds.SlowCm; d++ {
		got := Decide(intent, fresh(d), false, thresholds)
		require.Equal(t, ReasonScaled, got.Reason, "distance %.0f", d)
		assert.GreaterOrEqual(t, got.Left, prev, "distance %.0f", d)
		assert.LessOrEqual(t, got.Left, intent.Left, "distance %.0f", d)
		assert.Equal(t, got.Left, got.Right)
		prev = got.Left
	}

	full := Decide(intent, fresh(thresholds.SlowCm), false, thresholds)
	assert.Equal(t, ReasonFull, full.Reason)
	assert.GreaterOrEqual(t, full.Left, prev)
}

// P6: the boundary convention is inclusive toward the less restrictive zone.
func TestDecide_BoundaryExactness(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	intent := Intent{Left: 2000, Right: 2000}

	atStop := Decide(intent, fresh(thresholds.StopCm), false, thresholds)
	assert.Equal(t, ReasonScaled, atStop.Reason, "distance == stop threshold is in the slow regime")

	atSlow := Decide(intent, fresh(thresholds.SlowCm), false, thresholds)
	assert.Equal(t, ReasonFull, atSlow.Reason, "distance == slow threshold is full speed")

	justUnderStop := Decide(intent, fresh(thresholds.StopCm-0.5), false, thresholds)
	assert.Equal(t, ReasonBlockedNear, justUnderStop.Reason)
}

func TestIntent_Forward(t *testing.T) {
	t.Parallel()

	assert.True(t, Intent{Left: 1, Right: 1}.Forward())
	assert.False(t, Intent{Left: -1, Right: -1}.Forward())
	assert.False(t, Intent{Left: 1, Right: -1}.Forward())
	assert.False(t, Intent{Left: 0, Right: 1}.Forward())
	assert.False(t, Intent{}.Forward())
}

func TestDecision_Stopped(t *testing.T) {
	t.Parallel()

	assert.True(t, Decision{Reason: ReasonEmergency}.Stopped())
	assert.False(t, Decision{Left: 1, Reason: ReasonFull}.Stopped())
}

func TestThresholds_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{StopCm: 0, SlowCm: 40}.Validate())
	assert.Error(t, Thresholds{StopCm: 40, SlowCm: 40}.Validate(), "stop == slow disables the slow zone")
	assert.Error(t, Thresholds{StopCm: 50, SlowCm: 40}.Validate(), "inverted thresholds are a logic error")
}

func TestThresholds_ScaleFactorClamping(t *testing.T) {
	t.Parallel()

	thresholds := DefaultThresholds()
	assert.Equal(t, 0.0, thresholds.ScaleFactor(-10))
	assert.Equal(t, 0.5, thresholds.ScaleFactor(20))
	assert.Equal(t, 1.0, thresholds.ScaleFactor(40))
	assert.Equal(t, 1.0, thresholds.ScaleFactor(4000))
}
