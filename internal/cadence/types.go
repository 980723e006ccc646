// Package cadence contains the pure signal-processing core: it turns a stream of
// accelerometer magnitudes into a smoothed steps-per-minute estimate and scores it
// against a track tempo.
// This package has NO I/O (no sensors, network, MQTT or storage).
// Time is always injectable via time.Time parameters.
package cadence

import "time"

// DefaultIntervalMs is used when the platform does not report a sample interval.
const DefaultIntervalMs = 20.0

// Config holds the detector calibration. The defaults were chosen empirically and
// should not be "corrected" without field data.
type Config struct {
	// FrameSize is the number of samples per non-overlapping frame.
	FrameSize int `yaml:"frame_size"`
	// SmoothingWindow is the number of raw cadences averaged by the smoother.
	SmoothingWindow int `yaml:"smoothing_window"`
	// StationaryVariance is the variance below which a frame is considered still.
	StationaryVariance float64 `yaml:"stationary_variance"`
	// ThresholdK is the number of standard deviations above the mean a sample
	// must exceed to count as a step.
	ThresholdK float64 `yaml:"threshold_k"`
	// HighSyncScore is the score a tick must exceed to enter the high-sync state.
	HighSyncScore float64 `yaml:"high_sync_score"`
}

// DefaultConfig returns the stock calibration.
func DefaultConfig() Config {
	return Config{
		FrameSize:          200,
		SmoothingWindow:    3,
		StationaryVariance: 0.1,
		ThresholdK:         0.7,
		HighSyncScore:      90,
	}
}

// MotionSample is one magnitude reading and the time elapsed since the previous one.
type MotionSample struct {
	Magnitude  float64
	IntervalMs float64
}

// Frame is a full window of samples, consumed as one unit.
type Frame []MotionSample

// FrameClass is the estimator's verdict on a frame.
type FrameClass string

const (
	// FrameStationary means the variance rule classified the subject as not moving.
	FrameStationary FrameClass = "STATIONARY"
	// FrameActive means steps were counted over a positive duration.
	FrameActive FrameClass = "ACTIVE"
	// FrameUndefined means the frame reported no elapsed time; no estimate is made.
	FrameUndefined FrameClass = "UNDEFINED"
)

// FrameStats carries the intermediate values of one estimate.
type FrameStats struct {
	Class     FrameClass
	Mean      float64
	Variance  float64
	Threshold float64
	Steps     int
	DurationS float64
	// Cadence is the raw steps-per-minute estimate; 0 signals no motion.
	Cadence float64
}

// VisualState is the discrete display state derived from a sync score.
type VisualState string

const (
	VisualNormal   VisualState = "NORMAL"
	VisualHighSync VisualState = "HIGH_SYNC"
)

// SyncState is the cadence/tempo comparison for one tick.
// Tempo and Score are nil when unknown.
type SyncState struct {
	Cadence float64
	Tempo   *float64
	Score   *float64
}

// Update is emitted by the Engine each time a frame produces a cadence tick.
type Update struct {
	Timestamp time.Time
	Frame     FrameStats
	// Cadence is the smoothed value shown to the user (0 for stationary frames).
	Cadence float64
	Sync    SyncState
	Visual  VisualState
}

// Counts tracks frame outcomes since startup.
type Counts struct {
	Samples    int
	Frames     int
	Active     int
	Stationary int
	Undefined  int
	HighSync   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
