package rangefinder

import (
	"context"
	"sync"
	"time"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/serialport"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/timeutil"
)

const (
	// DefaultPollInterval is the sensor polling cadence (20 Hz).
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultMaxConsecutiveFailures is the number of polls without a valid
	// frame before the published sample is invalidated. 10 polls at 20 Hz is
	// 500 ms of silence.
	DefaultMaxConsecutiveFailures = 10

	// readChunkSize is how many bytes one poll pulls off the port. Several
	// frames may have accumulated between polls.
	readChunkSize = 64
)

// ReaderConfig configures a sensor Reader. Zero values take conservative
// defaults.
type ReaderConfig struct {
	// PortPath is the serial device path, e.g. /dev/ttyUSB0.
	PortPath string

	// PortOptions is the serial configuration; the zero value normalizes to
	// the sensor's factory settings.
	PortOptions serialport.Options

	// Open opens the serial port. Defaults to serialport.Open; tests inject
	// scripted ports here.
	Open serialport.Opener

	// Clock supplies timestamps and the polling ticker.
	Clock timeutil.Clock

	// PollInterval is the polling cadence.
	PollInterval time.Duration

	// MaxConsecutiveFailures is the invalidation threshold described above.
	MaxConsecutiveFailures int

	// MinDistanceCm / MaxDistanceCm bound acceptable readings.
	MinDistanceCm float64
	MaxDistanceCm float64

	// Logf receives diagnostic output. Defaults to the monitoring logger.
	Logf func(format string, v ...interface{})
}

func (c ReaderConfig) withDefaults() ReaderConfig {
	if c.Open == nil {
		c.Open = serialport.Open
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.MinDistanceCm <= 0 {
		c.MinDistanceCm = DefaultMinDistanceCm
	}
	if c.MaxDistanceCm <= 0 {
		c.MaxDistanceCm = DefaultMaxDistanceCm
	}
	if c.Logf == nil {
		c.Logf = monitoring.Prefixed("rangefinder")
	}
	return c
}

// Reader polls the ranging sensor and publishes the most recent valid
// distance sample. It is the sole owner of the serial connection; consumers
// only ever call Latest.
type Reader struct {
	cfg ReaderConfig

	mu        sync.Mutex
	sample    Sample
	hasSample bool

	failCount int
	buf       []byte
}

// NewReader creates a Reader. Run must be called for samples to appear.
func NewReader(cfg ReaderConfig) *Reader {
	return &Reader{cfg: cfg.withDefaults()}
}

// Latest returns the most recently published sample. The second return is
// false if no valid sample is currently published.
func (r *Reader) Latest() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sample, r.hasSample
}

// Run polls the sensor until ctx is cancelled. The serial connection is
// opened on entry and released on every exit path; open and read failures
// degrade to "no sample" and are retried indefinitely rather than surfaced.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		port, err := r.cfg.Open(r.cfg.PortPath, r.cfg.PortOptions)
		if err != nil {
			r.cfg.Logf("open %s: %v (retrying)", r.cfg.PortPath, err)
			r.markFailure()
			if !r.sleepInterval(ctx) {
				return ctx.Err()
			}
			continue
		}

		r.applyReadTimeout(port)
		r.cfg.Logf("connected on %s", r.cfg.PortPath)
		err = r.monitorPort(ctx, port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.cfg.Logf("connection lost: %v (reopening)", err)
	}
}

// applyReadTimeout bounds blocking reads so a quiet device cannot stall the
// poll loop past its cancellation window. Ports without timeout support are
// left as-is.
func (r *Reader) applyReadTimeout(port serialport.Porter) {
	tp, ok := port.(serialport.TimeoutPorter)
	if !ok {
		return
	}
	opts, err := r.cfg.PortOptions.Normalize()
	if err != nil {
		return
	}
	if err := tp.SetReadTimeout(opts.ReadTimeout); err != nil {
		r.cfg.Logf("set read timeout: %v", err)
	}
}

// monitorPort polls one open connection until cancellation or a read error.
// The port is closed on every exit path.
func (r *Reader) monitorPort(ctx context.Context, port serialport.Porter) error {
	defer port.Close()

	ticker := r.cfg.Clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := r.poll(port); err != nil {
				r.markFailure()
				return err
			}
		}
	}
}

// poll performs one bounded read and extracts any complete frames. A poll
// with no valid frame counts toward the fail-safe invalidation threshold.
func (r *Reader) poll(port serialport.Porter) error {
	chunk := make([]byte, readChunkSize)
	n, err := port.Read(chunk)
	if err != nil {
		return err
	}

	r.buf = append(r.buf, chunk[:n]...)
	if r.extractFrames() {
		r.failCount = 0
		return nil
	}

	r.markFailure()
	return nil
}

// extractFrames scans the buffer for validly framed samples, publishing each
// and discarding noise bytes one at a time. The scan always consumes down to
// a sub-frame remainder, so the resync buffer never outgrows FrameSize-1
// bytes between polls. Returns true if at least one frame was accepted.
func (r *Reader) extractFrames() bool {
	accepted := false
	for len(r.buf) >= FrameSize {
		frame, err := ParseFrame(r.buf[:FrameSize], r.cfg.MinDistanceCm, r.cfg.MaxDistanceCm)
		if err != nil {
			// Silent discard: slide one byte and re-sync on the header.
			r.buf = r.buf[1:]
			continue
		}
		r.publish(frame)
		accepted = true
		r.buf = r.buf[FrameSize:]
	}
	return accepted
}

func (r *Reader) publish(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sample = Sample{DistanceCm: frame.DistanceCm, CapturedAt: r.cfg.Clock.Now()}
	r.hasSample = true
}

// markFailure counts a poll cycle without a valid frame. Once the threshold
// is reached the published sample is withdrawn so the staleness monitor
// reports absence immediately instead of waiting out the age window.
func (r *Reader) markFailure() {
	r.failCount++
	if r.failCount < r.cfg.MaxConsecutiveFailures {
		return
	}
	r.failCount = 0

	r.mu.Lock()
	had := r.hasSample
	r.hasSample = false
	r.mu.Unlock()

	if had {
		r.cfg.Logf("fail-safe: %d consecutive polls without a valid frame, sample withdrawn", r.cfg.MaxConsecutiveFailures)
	}
}

// sleepInterval waits one poll interval or until cancellation. Returns false
// if ctx was cancelled.
func (r *Reader) sleepInterval(ctx context.Context) bool {
	ticker := r.cfg.Clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C():
		return true
	}
}
