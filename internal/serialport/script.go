package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by ScriptedPort operations after Close.
var ErrPortClosed = errors.New("serial port closed")

// ScriptedPort implements Porter with configurable behaviour for testing. It
// provides fine-grained control over reads, writes, errors, and latency so
// sensor-loop tests can exercise malformed frames, timeouts, and device
// disappearance without hardware.
type ScriptedPort struct {
	mu sync.Mutex

	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer

	// readErr is returned by the next Read call if set, then cleared.
	readErr error

	// writeErr is returned by the next Write call if set, then cleared.
	writeErr error

	closed     bool
	readCalls  int
	writeCalls int

	// blockReads makes Read wait until data is added or the port is closed,
	// mimicking a quiet device.
	blockReads bool
	readCond   *sync.Cond

	readTimeout time.Duration
}

// NewScriptedPort creates a ScriptedPort with empty buffers.
func NewScriptedPort() *ScriptedPort {
	p := &ScriptedPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns queued data, the scripted error, or EOF-like behaviour when
// the buffer is drained.
func (p *ScriptedPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readCalls++

	if p.closed {
		return 0, ErrPortClosed
	}

	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}

	if p.blockReads && p.readBuffer.Len() == 0 {
		for !p.closed && p.readBuffer.Len() == 0 {
			p.readCond.Wait()
		}
		if p.closed {
			return 0, ErrPortClosed
		}
	}

	// A real port with a read timeout returns 0 bytes, nil error when no
	// data arrives in time; mirror that when drained (bytes.Buffer.Read
	// would return io.EOF instead).
	if p.readBuffer.Len() == 0 {
		return 0, nil
	}
	return p.readBuffer.Read(buf)
}

// Write captures data written to the port.
func (p *ScriptedPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeCalls++

	if p.closed {
		return 0, ErrPortClosed
	}

	if p.writeErr != nil {
		err := p.writeErr
		p.writeErr = nil
		return 0, err
	}

	return p.writeBuffer.Write(data)
}

// Close marks the port closed and wakes any blocked readers.
func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutPorter.
func (p *ScriptedPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readTimeout = timeout
	return nil
}

// QueueRead adds data to be returned by subsequent Read calls.
func (p *ScriptedPort) QueueRead(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readBuffer.Write(data)
	p.readCond.Signal()
}

// FailNextRead makes the next Read call return err.
func (p *ScriptedPort) FailNextRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// FailNextWrite makes the next Write call return err.
func (p *ScriptedPort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// BlockReads toggles blocking-read behaviour.
func (p *ScriptedPort) BlockReads(block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockReads = block
}

// Written returns all data written to the port.
func (p *ScriptedPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuffer.Bytes()...)
}

// ReadCalls reports the number of Read calls so far.
func (p *ScriptedPort) ReadCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readCalls
}

// Closed reports whether Close was called.
func (p *ScriptedPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ReadTimeout reports the currently configured read timeout.
func (p *ScriptedPort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeout
}
