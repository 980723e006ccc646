// Package motion provides accelerometer input with hardware abstraction.
// Real sources read a serial port or a recorded stream; the fake source
// allows testing without hardware.
package motion

import (
	"errors"
	"math"

	"github.com/sweeney/stride-sync/internal/cadence"
)

// ErrMalformed is returned for readings that lack one of the three axes.
var ErrMalformed = errors.New("malformed motion reading")

// Reading is one raw accelerometer event.
type Reading struct {
	X, Y, Z float64 // m/s²
	// IntervalMs is the time since the previous reading; 0 when not reported.
	IntervalMs float64
}

// Sample converts a reading into the magnitude sample consumed by the cadence engine.
// A missing interval falls back to cadence.DefaultIntervalMs.
func (r Reading) Sample() cadence.MotionSample {
	interval := r.IntervalMs
	if interval <= 0 {
		interval = cadence.DefaultIntervalMs
	}
	return cadence.MotionSample{
		Magnitude:  math.Sqrt(r.X*r.X + r.Y*r.Y + r.Z*r.Z),
		IntervalMs: interval,
	}
}

// Reader reads accelerometer events.
type Reader interface {
	// Read blocks until the next reading is available.
	// Returns ErrMalformed (wrapped) for unparseable input and io.EOF when the
	// source is exhausted or closed.
	Read() (Reading, error)

	// Close releases the underlying device.
	Close() error
}
