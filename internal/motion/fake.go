package motion

import "io"

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	// Readings contains the scripted readings. Each call to Read consumes the next.
	Readings []Reading

	// Errors, if non-nil at the current index, is returned instead of the reading.
	Errors map[int]error

	index int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeReader creates a FakeReader with the given readings.
func NewFakeReader(readings []Reading) *FakeReader {
	return &FakeReader{Readings: readings}
}

// Read returns the next scripted reading, or io.EOF once exhausted or closed.
func (f *FakeReader) Read() (Reading, error) {
	if f.Closed || f.index >= len(f.Readings) {
		return Reading{}, io.EOF
	}

	i := f.index
	f.index++
	if err := f.Errors[i]; err != nil {
		return Reading{}, err
	}
	return f.Readings[i], nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the reader to the first reading.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
