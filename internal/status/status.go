// Package status provides a thread-safe status tracker for the stride-sync daemon.
// runLoop is the only writer; the HTTP server and terminal dashboard read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/stride-sync/internal/cadence"
)

// Config contains daemon configuration for display.
type Config struct {
	FrameSize       int
	SmoothingWindow int
	PollMs          int64
	HeartbeatMs     int64
	Source          string
	TempoURL        string
	Broker          string
	HTTPAddr        string
	WSBroker        string // websocket broker URL for the live page (empty = disabled)
	DB              string
}

// TempoPoll reports tempo fetch health.
type TempoPoll struct {
	// LastBPM is the most recently fetched tempo. It reaches Snapshot.Tempo
	// only with the next tick, so Tempo and Score always belong together.
	LastBPM     *float64
	OK          uint64
	Failed      uint64
	LastFetched time.Time
}

// SourceStats reports motion input health.
type SourceStats struct {
	Produced  uint64
	Malformed uint64
	Exhausted bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	SessionID string

	Cadence    float64
	Tempo      *float64
	Score      *float64
	Visual     cadence.VisualState
	LastFrame  cadence.FrameClass
	LastUpdate time.Time
	History    []float64
	Counts     cadence.Counts

	TempoPoll     TempoPoll
	Source        SourceStats
	MQTTConnected bool

	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// HighSync reports whether the last tick was in the high-sync state.
func (s Snapshot) HighSync() bool {
	return s.Visual == cadence.VisualHighSync
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Visual:    cadence.VisualNormal,
		},
	}
}

// SetSession records the recorder session ID.
func (t *Tracker) SetSession(id string) {
	t.mu.Lock()
	t.snap.SessionID = id
	t.mu.Unlock()
}

// Update records a cadence tick along with the smoother history and counts.
func (t *Tracker) Update(u cadence.Update, history []float64, counts cadence.Counts) {
	t.mu.Lock()
	t.snap.Cadence = u.Cadence
	t.snap.Tempo = copyFloat(u.Sync.Tempo)
	t.snap.Score = copyFloat(u.Sync.Score)
	t.snap.Visual = u.Visual
	t.snap.LastFrame = u.Frame.Class
	t.snap.LastUpdate = u.Timestamp
	t.snap.History = append([]float64(nil), history...)
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetCounts updates frame counts without a tick (e.g. undefined frames).
func (t *Tracker) SetCounts(counts cadence.Counts) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetTempo records a newly fetched tempo under TempoPoll. The tick fields are
// left alone until the next tick scores against it.
func (t *Tracker) SetTempo(bpm float64, fetchedAt time.Time) {
	t.mu.Lock()
	t.snap.TempoPoll.LastBPM = &bpm
	t.snap.TempoPoll.LastFetched = fetchedAt
	t.mu.Unlock()
}

// SetTempoStats records fetch success and failure counts.
func (t *Tracker) SetTempoStats(ok, failed uint64) {
	t.mu.Lock()
	t.snap.TempoPoll.OK = ok
	t.snap.TempoPoll.Failed = failed
	t.mu.Unlock()
}

// SetSourceStats records motion input counters.
func (t *Tracker) SetSourceStats(s SourceStats) {
	t.mu.Lock()
	t.snap.Source = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Tempo = copyFloat(t.snap.Tempo)
	s.Score = copyFloat(t.snap.Score)
	s.TempoPoll.LastBPM = copyFloat(t.snap.TempoPoll.LastBPM)
	s.History = append([]float64(nil), t.snap.History...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
