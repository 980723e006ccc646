// Package gpio drives the high-sync indicator LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Indicator is a single on/off output line.
type Indicator interface {
	// Set drives the line high (on) or low.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultPinLED is the BCM pin of the high-sync LED.
const DefaultPinLED = 17

// Latch writes to an Indicator only when the requested state changes, so the
// loop can call Apply on every tick without hammering the line.
type Latch struct {
	ind   Indicator
	on    bool
	known bool
}

// NewLatch wraps ind. The first Apply always writes.
func NewLatch(ind Indicator) *Latch {
	return &Latch{ind: ind}
}

// Apply sets the indicator to on if it differs from the last written state.
// A failed write is retried on the next call.
func (l *Latch) Apply(on bool) error {
	if l.known && l.on == on {
		return nil
	}
	if err := l.ind.Set(on); err != nil {
		l.known = false
		return fmt.Errorf("set indicator: %w", err)
	}
	l.on = on
	l.known = true
	return nil
}

// On reports the last successfully written state.
func (l *Latch) On() bool {
	return l.known && l.on
}
