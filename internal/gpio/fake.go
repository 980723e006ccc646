package gpio

// FakeIndicator is a test double that records writes.
type FakeIndicator struct {
	// Writes contains every value passed to Set, in order.
	Writes []bool

	// On is the current line state.
	On bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeIndicator creates a FakeIndicator with the line low.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records the write.
func (f *FakeIndicator) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Writes = append(f.Writes, on)
	f.On = on
	return nil
}

// Close marks the indicator as closed and the line low.
func (f *FakeIndicator) Close() error {
	f.Closed = true
	f.On = false
	return nil
}
