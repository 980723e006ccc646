package cadence

import "math"

// Compute compares a smoothed cadence with the current tempo.
// The score is undefined (nil) when the tempo is unknown or the cadence is 0.
// Otherwise it decays linearly by one point per BPM of mismatch, floored at 0.
func Compute(cadence float64, tempo *float64) SyncState {
	st := SyncState{Cadence: cadence}
	if tempo != nil {
		t := *tempo
		st.Tempo = &t
	}
	if tempo == nil || cadence == 0 {
		return st
	}

	score := math.Max(0, 100-math.Abs(cadence-*tempo))
	st.Score = &score
	return st
}

// VisualFor derives the display state from a score. There is no hysteresis, so the
// state may flicker when the score sits on the threshold.
func VisualFor(score *float64, highSync float64) VisualState {
	if score != nil && *score > highSync {
		return VisualHighSync
	}
	return VisualNormal
}
