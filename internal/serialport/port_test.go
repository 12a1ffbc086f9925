package serialport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestOptionsNormalize_Defaults(t *testing.T) {
	t.Parallel()

	opts, err := Options{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 115200, opts.BaudRate)
	assert.Equal(t, 8, opts.DataBits)
	assert.Equal(t, 1, opts.StopBits)
	assert.Equal(t, "N", opts.Parity)
	assert.Equal(t, 40*time.Millisecond, opts.ReadTimeout)
}

func TestOptionsNormalize_ParityAliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "N"},
		{"none", "N"},
		{"EVEN", "E"},
		{"odd", "O"},
		{" n ", "N"},
	}
	for _, tc := range tests {
		opts, err := Options{Parity: tc.in}.Normalize()
		require.NoError(t, err, "parity %q", tc.in)
		assert.Equal(t, tc.want, opts.Parity, "parity %q", tc.in)
	}
}

func TestOptionsNormalize_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Options{DataBits: 4}.Normalize()
	assert.Error(t, err)

	_, err = Options{StopBits: 3}.Normalize()
	assert.Error(t, err)

	_, err = Options{Parity: "M"}.Normalize()
	assert.Error(t, err)
}

func TestOptionsMode(t *testing.T) {
	t.Parallel()

	mode, err := Options{BaudRate: 9600, Parity: "even", StopBits: 2}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.StopBits(2), mode.StopBits)
}

func TestScriptedPort_ReadWrite(t *testing.T) {
	t.Parallel()

	port := NewScriptedPort()
	port.QueueRead([]byte{0x59, 0x59, 0x64})

	buf := make([]byte, 8)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x59, 0x59, 0x64}, buf[:n])

	_, err = port.Write([]byte("cfg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("cfg"), port.Written())
}

func TestScriptedPort_Errors(t *testing.T) {
	t.Parallel()

	port := NewScriptedPort()
	boom := errors.New("device unplugged")
	port.FailNextRead(boom)

	_, err := port.Read(make([]byte, 1))
	assert.ErrorIs(t, err, boom)

	// Error is one-shot; the next read behaves like a timed-out empty read.
	port.QueueRead([]byte{0x01})
	n, err := port.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScriptedPort_CloseUnblocksReaders(t *testing.T) {
	t.Parallel()

	port := NewScriptedPort()
	port.BlockReads(true)

	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 1))
		done <- err
	}()

	// Give the reader time to block, then close.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock reader")
	}
	assert.True(t, port.Closed())
}

func TestScriptedPort_SetReadTimeout(t *testing.T) {
	t.Parallel()

	port := NewScriptedPort()
	require.NoError(t, port.SetReadTimeout(40*time.Millisecond))
	assert.Equal(t, 40*time.Millisecond, port.ReadTimeout())
}
