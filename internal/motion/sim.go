package motion

import (
	"io"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimReader synthesizes a walking signal: gravity on Z plus a vertical bounce
// at the configured step rate and a little sensor noise.
type SimReader struct {
	stepsPerMin float64
	interval    time.Duration
	amplitude   float64

	rng    *rand.Rand
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
	t      float64 // seconds since start
}

// NewSimReader creates a simulated accelerometer producing one reading per interval.
func NewSimReader(stepsPerMin float64, interval time.Duration, seed int64) *SimReader {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &SimReader{
		stepsPerMin: stepsPerMin,
		interval:    interval,
		amplitude:   2.5,
		rng:         rand.New(rand.NewSource(seed)),
		ticker:      time.NewTicker(interval),
		done:        make(chan struct{}),
	}
}

// Read waits for the next tick and returns a synthetic reading.
func (s *SimReader) Read() (Reading, error) {
	select {
	case <-s.done:
		return Reading{}, io.EOF
	case <-s.ticker.C:
	}
	return s.next(), nil
}

func (s *SimReader) next() Reading {
	s.t += s.interval.Seconds()
	phase := 2 * math.Pi * (s.stepsPerMin / 60) * s.t
	return Reading{
		X:          0.3*math.Sin(phase/2) + s.rng.Float64()*0.05,
		Y:          0.2*math.Cos(phase/2) + s.rng.Float64()*0.05,
		Z:          9.81 + s.amplitude*math.Sin(phase) + s.rng.Float64()*0.1,
		IntervalMs: float64(s.interval) / float64(time.Millisecond),
	}
}

// Close stops the simulation; pending and future reads return io.EOF.
func (s *SimReader) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
