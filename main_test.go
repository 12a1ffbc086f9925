package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/rangefinder"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/serialport"
)

func TestSimPortProducesValidFrames(t *testing.T) {
	t.Parallel()

	port, err := openSimPort("/dev/null", serialport.Options{})
	require.NoError(t, err)
	defer port.Close()

	buf := make([]byte, rangefinder.FrameSize)
	for i := 0; i < 5; i++ {
		n, err := port.Read(buf)
		require.NoError(t, err)
		require.Equal(t, rangefinder.FrameSize, n)

		frame, err := rangefinder.ParseFrame(buf[:n], simMinDistanceCm, 1200)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, frame.DistanceCm, 5.0)
		assert.LessOrEqual(t, frame.DistanceCm, 200.0)
	}
}

func TestSimPortSweepsIntoStopZone(t *testing.T) {
	t.Parallel()

	// Backdate the start so the drifting obstacle sits at its closest
	// approach, which must land inside the default 10 cm stop zone and
	// still pass the dev-mode validity floor.
	troughSeconds := 7.5 * math.Pi
	trough := time.Duration(troughSeconds * float64(time.Second))
	port := &simPort{start: time.Now().Add(-trough)}
	defer port.Close()

	buf := make([]byte, rangefinder.FrameSize)
	n, err := port.Read(buf)
	require.NoError(t, err)

	frame, err := rangefinder.ParseFrame(buf[:n], simMinDistanceCm, 1200)
	require.NoError(t, err)
	assert.Less(t, frame.DistanceCm, 10.0)
}

func TestSimPortReadAfterClose(t *testing.T) {
	t.Parallel()

	port := &simPort{start: time.Now()}
	require.NoError(t, port.Close())

	_, err := port.Read(make([]byte, rangefinder.FrameSize))
	require.ErrorIs(t, err, serialport.ErrPortClosed)
}
