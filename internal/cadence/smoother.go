package cadence

import "math"

// Smoother keeps the most recent raw cadences and reports their rounded mean.
// Not safe for concurrent use.
type Smoother struct {
	window  int
	history []float64
}

// NewSmoother creates a smoother averaging the last window values.
func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{
		window:  window,
		history: make([]float64, 0, window),
	}
}

// Push appends raw, evicting the oldest value once the window is full, and
// returns the rounded mean of the history.
func (s *Smoother) Push(raw float64) float64 {
	if len(s.history) == s.window {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.window-1]
	}
	s.history = append(s.history, raw)
	return s.Value()
}

// Value returns the rounded mean of the history, or 0 when empty.
func (s *Smoother) Value() float64 {
	if len(s.history) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.history {
		sum += v
	}
	return math.Round(sum / float64(len(s.history)))
}

// History returns a copy of the current history, oldest first.
func (s *Smoother) History() []float64 {
	out := make([]float64, len(s.history))
	copy(out, s.history)
	return out
}
