// Package rangefinder reads the forward-facing TF-Mini-S LiDAR and publishes
// validated distance samples for the safety layer.
//
// The sensor streams fixed 9-byte binary frames continuously at its own
// cadence. The Reader owns the serial connection, re-synchronizes on the
// frame header after line noise, and keeps only the newest valid sample; the
// StaleMonitor turns the age of that sample into a binary safety fact.
package rangefinder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// TF-Mini-S frame format constants.
//
// Frame layout: [0x59 0x59][dist lo][dist hi][strength lo][strength hi]
// [temp lo][temp hi][checksum], checksum = sum of the first 8 bytes mod 256.
const (
	FrameSize   = 9
	frameHeader = 0x59

	// DefaultMinDistanceCm and DefaultMaxDistanceCm bound the sensor's
	// documented measuring range. Readings outside are reflections or noise.
	DefaultMinDistanceCm = 10
	DefaultMaxDistanceCm = 1200
)

var (
	ErrShortFrame  = errors.New("frame shorter than 9 bytes")
	ErrBadHeader   = errors.New("frame header mismatch")
	ErrBadChecksum = errors.New("frame checksum mismatch")
	ErrOutOfRange  = errors.New("distance outside sensor range")
)

// Frame is one decoded sensor measurement.
type Frame struct {
	DistanceCm float64
	Strength   int
}

// Sample is the published output of the Reader: the most recent valid
// distance and when it was captured. Immutable once published.
type Sample struct {
	DistanceCm float64
	CapturedAt time.Time
}

// SensorState is the externally visible reduction of the latest Sample plus a
// staleness verdict, derived on read by the StaleMonitor.
type SensorState struct {
	DistanceCm float64
	Absent     bool
	Stale      bool
}

// Trustworthy reports whether the distance may be used for gating decisions.
func (s SensorState) Trustworthy() bool {
	return !s.Absent && !s.Stale
}

// ParseFrame validates and decodes a single 9-byte sensor frame. The distance
// bounds are inclusive; frames outside [minCm, maxCm] fail with ErrOutOfRange.
func ParseFrame(data []byte, minCm, maxCm float64) (Frame, error) {
	if len(data) < FrameSize {
		return Frame{}, fmt.Errorf("%w: got %d", ErrShortFrame, len(data))
	}
	if data[0] != frameHeader || data[1] != frameHeader {
		return Frame{}, fmt.Errorf("%w: got 0x%02X 0x%02X", ErrBadHeader, data[0], data[1])
	}

	var sum byte
	for _, b := range data[:FrameSize-1] {
		sum += b
	}
	if sum != data[FrameSize-1] {
		return Frame{}, fmt.Errorf("%w: computed 0x%02X, frame carries 0x%02X", ErrBadChecksum, sum, data[FrameSize-1])
	}

	dist := float64(binary.LittleEndian.Uint16(data[2:4]))
	if dist < minCm || dist > maxCm {
		return Frame{}, fmt.Errorf("%w: %.0f cm", ErrOutOfRange, dist)
	}

	return Frame{
		DistanceCm: dist,
		Strength:   int(binary.LittleEndian.Uint16(data[4:6])),
	}, nil
}

// EncodeFrame builds a wire frame for the given distance and strength. Used
// by tests and the scripted sensor in dev mode.
func EncodeFrame(distanceCm uint16, strength uint16) []byte {
	frame := make([]byte, FrameSize)
	frame[0] = frameHeader
	frame[1] = frameHeader
	binary.LittleEndian.PutUint16(frame[2:4], distanceCm)
	binary.LittleEndian.PutUint16(frame[4:6], strength)

	var sum byte
	for _, b := range frame[:FrameSize-1] {
		sum += b
	}
	frame[FrameSize-1] = sum
	return frame
}
