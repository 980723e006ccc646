package store

import (
	"time"

	"github.com/sweeney/stride-sync/internal/cadence"
)

// FakeRecorder records calls for test assertions.
type FakeRecorder struct {
	// Updates contains every recorded tick.
	Updates []cadence.Update

	// Tempos contains every recorded tempo.
	Tempos []float64

	// Ended is set by EndSession.
	Ended       bool
	EndedAt     time.Time
	FinalCounts cadence.Counts

	// RecordError, if set, will be returned by RecordUpdate and RecordTempo.
	RecordError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRecorder creates a FakeRecorder.
func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{}
}

// RecordUpdate records the tick.
func (f *FakeRecorder) RecordUpdate(u cadence.Update) error {
	if f.RecordError != nil {
		return f.RecordError
	}
	f.Updates = append(f.Updates, u)
	return nil
}

// RecordTempo records the tempo.
func (f *FakeRecorder) RecordTempo(bpm float64, at time.Time) error {
	if f.RecordError != nil {
		return f.RecordError
	}
	f.Tempos = append(f.Tempos, bpm)
	return nil
}

// EndSession records the final counts.
func (f *FakeRecorder) EndSession(at time.Time, counts cadence.Counts) error {
	f.Ended = true
	f.EndedAt = at
	f.FinalCounts = counts
	return nil
}

// Close marks the recorder as closed.
func (f *FakeRecorder) Close() error {
	f.Closed = true
	return nil
}
