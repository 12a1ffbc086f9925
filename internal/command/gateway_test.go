package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/timeutil"
)

func newTestGateway(t *testing.T) (*Gateway, *Mailbox, *safety.Override) {
	t.Helper()
	mailbox := NewMailbox()
	override := safety.NewOverride()
	gateway := NewGateway(mailbox, override, timeutil.NewMockClock(time.Unix(777, 0)))
	gateway.logf = func(string, ...interface{}) {}
	return gateway, mailbox, override
}

func TestIsEmergency(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"stop",
		"HALT",
		"please Freeze now",
		"EMERGENCY!",
		"robot, stop moving",
	} {
		assert.True(t, IsEmergency(text), "%q should classify as emergency", text)
	}

	for _, text := range []string{
		"go forward",
		"CMD_MOTOR#100#100",
		"turn left slowly",
		"",
	} {
		assert.False(t, IsEmergency(text), "%q should not classify as emergency", text)
	}
}

func TestGateway_HandleMotion(t *testing.T) {
	t.Parallel()

	gateway, mailbox, _ := newTestGateway(t)
	gateway.HandleMotion(1200, -800)

	got := mailbox.Latest()
	assert.Equal(t, 1200, got.Left)
	assert.Equal(t, -800, got.Right)
	assert.Equal(t, time.Unix(777, 0), got.IssuedAt)
}

func TestGateway_MotorDirective(t *testing.T) {
	t.Parallel()

	gateway, mailbox, override := newTestGateway(t)
	require.NoError(t, gateway.HandleText("CMD_MOTOR#2000#-1500"))

	got := mailbox.Latest()
	assert.Equal(t, 2000, got.Left)
	assert.Equal(t, -1500, got.Right)
	assert.False(t, override.Engaged())
}

// The keyword fast path triggers the override and leaves the mailbox
// untouched, preserving the independence of the two safety mechanisms.
func TestGateway_EmergencyKeywordBypassesParsing(t *testing.T) {
	t.Parallel()

	gateway, mailbox, override := newTestGateway(t)
	gateway.HandleMotion(900, 900)

	require.NoError(t, gateway.HandleText("emergency stop right now"))
	assert.True(t, override.Engaged())

	got := mailbox.Latest()
	assert.Equal(t, 900, got.Left, "emergency must not touch the mailbox")
	assert.Equal(t, 900, got.Right)
}

func TestGateway_MalformedDirectives(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"   ",
		"CMD_MOTOR",
		"CMD_MOTOR#100",
		"CMD_MOTOR#100#200#300",
		"CMD_MOTOR#fast#slow",
	}
	for _, text := range tests {
		gateway, mailbox, override := newTestGateway(t)
		err := gateway.HandleText(text)
		assert.ErrorIs(t, err, ErrMalformedDirective, "input %q", text)
		assert.Equal(t, safety.Intent{}, mailbox.Latest(), "input %q", text)
		assert.False(t, override.Engaged(), "input %q", text)
	}
}

func TestGateway_UnknownDirective(t *testing.T) {
	t.Parallel()

	gateway, mailbox, _ := newTestGateway(t)
	err := gateway.HandleText("CMD_LED#1#255#0#0")
	assert.ErrorIs(t, err, ErrUnknownDirective)
	assert.Equal(t, safety.Intent{}, mailbox.Latest())
}
