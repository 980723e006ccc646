package cadence

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Estimator converts a frame of magnitudes into a raw cadence.
// It holds only calibration; all per-frame state is local to Analyze.
type Estimator struct {
	stationaryVariance float64
	thresholdK         float64
}

// NewEstimator creates an estimator using the variance and threshold settings from cfg.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{
		stationaryVariance: cfg.StationaryVariance,
		thresholdK:         cfg.ThresholdK,
	}
}

// Estimate returns the raw cadence in steps per minute; 0 means no motion
// (or no usable duration).
func (e *Estimator) Estimate(frame Frame) float64 {
	return e.Analyze(frame).Cadence
}

// Analyze classifies the frame and, for active frames, counts rising-edge
// threshold crossings.
func (e *Estimator) Analyze(frame Frame) FrameStats {
	mags := make([]float64, len(frame))
	intervals := make([]float64, len(frame))
	for i, s := range frame {
		mags[i] = s.Magnitude
		intervals[i] = s.IntervalMs
	}

	var st FrameStats
	if len(frame) == 0 {
		st.Class = FrameUndefined
		return st
	}

	st.Mean, st.Variance = stat.PopMeanVariance(mags, nil)
	if st.Variance < e.stationaryVariance {
		st.Class = FrameStationary
		return st
	}

	st.Threshold = st.Mean + e.thresholdK*math.Sqrt(st.Variance)
	st.Steps = countRisingEdges(mags, st.Threshold)
	st.DurationS = floats.Sum(intervals) / 1000

	if st.DurationS <= 0 {
		st.Class = FrameUndefined
		return st
	}

	st.Class = FrameActive
	st.Cadence = math.Round(float64(st.Steps) / st.DurationS * 60)
	return st
}

// countRisingEdges counts transitions from at-or-below threshold to above it.
// A sustained excursion above threshold counts once.
func countRisingEdges(values []float64, threshold float64) int {
	steps := 0
	crossed := false
	for _, v := range values {
		if v > threshold {
			if !crossed {
				steps++
				crossed = true
			}
		} else {
			crossed = false
		}
	}
	return steps
}
