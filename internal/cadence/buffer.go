package cadence

// SampleBuffer accumulates samples until a full frame is ready.
// Not safe for concurrent use.
type SampleBuffer struct {
	size    int
	samples []MotionSample
}

// NewSampleBuffer creates a buffer that flushes every size samples.
func NewSampleBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	return &SampleBuffer{
		size:    size,
		samples: make([]MotionSample, 0, size),
	}
}

// Ingest appends a sample. When the buffer reaches its frame size, the completed
// frame is returned and the buffer starts empty again.
func (b *SampleBuffer) Ingest(s MotionSample) (Frame, bool) {
	b.samples = append(b.samples, s)
	if len(b.samples) < b.size {
		return nil, false
	}

	frame := Frame(b.samples)
	b.samples = make([]MotionSample, 0, b.size)
	return frame, true
}

// Len returns the number of samples waiting for the next frame.
func (b *SampleBuffer) Len() int {
	return len(b.samples)
}
