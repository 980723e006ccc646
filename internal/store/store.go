// Package store records cadence sessions to SQLite.
// A session is one daemon run, keyed by a random UUID.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/stride-sync/internal/cadence"
)

// Recorder persists session data. Implementations are called from runLoop only.
type Recorder interface {
	// RecordUpdate stores one cadence tick.
	RecordUpdate(u cadence.Update) error

	// RecordTempo stores a successfully fetched tempo.
	RecordTempo(bpm float64, at time.Time) error

	// EndSession stamps the session end time and final frame counts.
	EndSession(at time.Time, counts cadence.Counts) error

	// Close releases the database.
	Close() error
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Session is a stored session summary.
type Session struct {
	ID              string
	StartedAt       time.Time
	EndedAt         *time.Time
	Source          string
	FrameSize       int
	SmoothingWindow int
	Counts          cadence.Counts
	Ticks           int
}

// Tick is a stored cadence tick.
type Tick struct {
	Timestamp  time.Time
	FrameClass cadence.FrameClass
	Steps      int
	RawCadence float64
	Cadence    float64
	Tempo      *float64
	Score      *float64
	HighSync   bool
}
