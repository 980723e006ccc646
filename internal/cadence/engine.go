package cadence

import "time"

// Engine owns all per-session cadence state: the pending frame, the smoothing
// history and the latest tempo. One Engine is created per session and driven from
// a single goroutine.
type Engine struct {
	cfg       Config
	buffer    *SampleBuffer
	estimator *Estimator
	smoother  *Smoother

	tempo   *float64
	cadence float64
	last    *Update

	startTime     time.Time
	lastHeartbeat time.Time
	counts        Counts
}

// NewEngine creates an engine with the given calibration.
// The startTime is used for calculating uptime in heartbeat events.
func NewEngine(cfg Config, startTime time.Time) *Engine {
	return &Engine{
		cfg:           cfg,
		buffer:        NewSampleBuffer(cfg.FrameSize),
		estimator:     NewEstimator(cfg),
		smoother:      NewSmoother(cfg.SmoothingWindow),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Ingest absorbs one sample. When it completes a frame, the frame is estimated and
// an Update is returned. Frames with no usable duration produce no update.
func (e *Engine) Ingest(s MotionSample, now time.Time) (Update, bool) {
	e.counts.Samples++

	frame, ok := e.buffer.Ingest(s)
	if !ok {
		return Update{}, false
	}
	e.counts.Frames++

	stats := e.estimator.Analyze(frame)
	switch stats.Class {
	case FrameUndefined:
		e.counts.Undefined++
		return Update{}, false
	case FrameStationary:
		e.counts.Stationary++
		e.cadence = 0
	case FrameActive:
		e.counts.Active++
		if stats.Cadence > 0 {
			e.cadence = e.smoother.Push(stats.Cadence)
		} else {
			e.cadence = 0
		}
	}

	sync := Compute(e.cadence, e.tempo)
	visual := VisualFor(sync.Score, e.cfg.HighSyncScore)
	if visual == VisualHighSync {
		e.counts.HighSync++
	}

	u := Update{
		Timestamp: now,
		Frame:     stats,
		Cadence:   e.cadence,
		Sync:      sync,
		Visual:    visual,
	}
	e.last = &u
	return u, true
}

// SetTempo replaces the current tempo. It does not recompute the sync state; the
// next frame picks it up.
func (e *Engine) SetTempo(bpm float64) {
	e.tempo = &bpm
}

// Tempo returns the current tempo, or nil if none has been received.
func (e *Engine) Tempo() *float64 {
	if e.tempo == nil {
		return nil
	}
	t := *e.tempo
	return &t
}

// History returns the smoothing history, oldest first.
func (e *Engine) History() []float64 {
	return e.smoother.History()
}

// LastUpdate returns the most recent update, if any frame has been processed.
func (e *Engine) LastUpdate() (Update, bool) {
	if e.last == nil {
		return Update{}, false
	}
	return *e.last, true
}

// Pending returns the number of samples waiting for the next frame.
func (e *Engine) Pending() int {
	return e.buffer.Len()
}

// CountsSnapshot returns a copy of the frame counters.
func (e *Engine) CountsSnapshot() Counts {
	return e.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if interval is <= 0 (disabled) or the
// interval has not elapsed.
func (e *Engine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(e.lastHeartbeat) < interval {
		return nil
	}

	e.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(e.startTime),
		Counts:    e.counts,
	}
}
