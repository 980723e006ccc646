package motion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/stride-sync/internal/cadence"
)

func TestReadingSample(t *testing.T) {
	s := Reading{X: 3, Y: 4, Z: 12, IntervalMs: 25}.Sample()
	if s.Magnitude != 13 {
		t.Errorf("Magnitude: got %v, want 13", s.Magnitude)
	}
	if s.IntervalMs != 25 {
		t.Errorf("IntervalMs: got %v, want 25", s.IntervalMs)
	}
}

func TestReadingSampleDefaultInterval(t *testing.T) {
	for _, interval := range []float64{0, -5} {
		s := Reading{Z: 9.81, IntervalMs: interval}.Sample()
		if s.IntervalMs != cadence.DefaultIntervalMs {
			t.Errorf("interval %v: got %v, want %v", interval, s.IntervalMs, cadence.DefaultIntervalMs)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Reading
	}{
		{"0.1,0.2,9.8", Reading{X: 0.1, Y: 0.2, Z: 9.8}},
		{"0.1, 0.2, 9.8, 16", Reading{X: 0.1, Y: 0.2, Z: 9.8, IntervalMs: 16}},
		{"1,2,3,", Reading{X: 1, Y: 2, Z: 3}},
		{"-1,-2,-3,20,extra", Reading{X: -1, Y: -2, Z: -3, IntervalMs: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseLineMalformed(t *testing.T) {
	for _, line := range []string{"1,2", "1", "a,b,c", "1,,3", "1,2,3,x"} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseLine(line)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestLineReader(t *testing.T) {
	input := "# recorded session\n0,0,9.8,20\n\n1,2\n0,0,10,20\n"
	r := NewLineReader(strings.NewReader(input))

	got, err := r.Read()
	if err != nil {
		t.Fatalf("read 0: %v", err)
	}
	if got.Z != 9.8 {
		t.Errorf("read 0: Z got %v, want 9.8", got.Z)
	}

	_, err = r.Read()
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("read 1: expected ErrMalformed, got %v", err)
	}

	got, err = r.Read()
	if err != nil {
		t.Fatalf("read 2: %v", err)
	}
	if got.Z != 10 {
		t.Errorf("read 2: Z got %v, want 10", got.Z)
	}

	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on non-closer: %v", err)
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestLineReaderClosesUnderlying(t *testing.T) {
	c := &closeRecorder{Reader: strings.NewReader("")}
	r := NewLineReader(c)
	r.Close()
	if !c.closed {
		t.Error("expected underlying reader to be closed")
	}
}

// flakyReader fails its first Read, then serves data.
type flakyReader struct {
	data   io.Reader
	failed bool
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, errors.New("usb reset")
	}
	return f.data.Read(p)
}

func TestLineReaderRecoversAfterReadError(t *testing.T) {
	r := NewLineReader(&flakyReader{data: strings.NewReader("0,0,9.8,20\n")})

	_, err := r.Read()
	if err == nil || errors.Is(err, ErrMalformed) || err == io.EOF {
		t.Fatalf("read 0: expected stream error, got %v", err)
	}

	got, err := r.Read()
	if err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if got.Z != 9.8 {
		t.Errorf("read 1: Z got %v, want 9.8", got.Z)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestLineReaderSkipsOverlongLine(t *testing.T) {
	long := strings.Repeat("1", bufio.MaxScanTokenSize+10)
	r := NewLineReader(strings.NewReader(long + "\n0,0,10,20\n"))

	if _, err := r.Read(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("read 0: expected ErrMalformed, got %v", err)
	}
	got, err := r.Read()
	if err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if got.Z != 10 {
		t.Errorf("read 1: Z got %v, want 10", got.Z)
	}
}

func TestPumpRecoversAfterStreamError(t *testing.T) {
	p := NewPump(NewLineReader(&flakyReader{data: strings.NewReader("0,0,9.8,20\n0,0,10,20\n")}), 8)
	p.RetryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go p.Run(ctx)

	var got []float64
	for r := range p.Out {
		got = append(got, r.Z)
	}
	if ctx.Err() != nil {
		t.Fatal("pump did not reach end of stream")
	}
	if len(got) != 2 || got[0] != 9.8 || got[1] != 10 {
		t.Errorf("forwarded: got %v, want [9.8 10]", got)
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("defaults: got %+v, want %+v", got, want)
	}

	got, err = PortOptions{BaudRate: 9600, Parity: "even", StopBits: 2}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Parity != "E" || got.StopBits != 2 || got.BaudRate != 9600 {
		t.Errorf("explicit: got %+v", got)
	}
}

func TestPortOptionsNormalizeInvalid(t *testing.T) {
	tests := []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	}
	for _, o := range tests {
		if _, err := o.Normalize(); err == nil {
			t.Errorf("expected error for %+v", o)
		}
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, Parity: "O", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode.BaudRate != 57600 {
		t.Errorf("BaudRate: got %d, want 57600", mode.BaudRate)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity: got %v, want OddParity", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits: got %v, want TwoStopBits", mode.StopBits)
	}
}

func TestFakeReader(t *testing.T) {
	f := NewFakeReader([]Reading{{Z: 1}, {Z: 2}})
	f.Errors = map[int]error{1: ErrMalformed}

	r, err := f.Read()
	if err != nil || r.Z != 1 {
		t.Errorf("read 0: got (%+v, %v)", r, err)
	}
	if _, err := f.Read(); !errors.Is(err, ErrMalformed) {
		t.Errorf("read 1: expected ErrMalformed, got %v", err)
	}
	if _, err := f.Read(); err != io.EOF {
		t.Errorf("read 2: expected io.EOF, got %v", err)
	}

	f.Reset()
	if r, _ := f.Read(); r.Z != 1 {
		t.Errorf("after reset: Z got %v, want 1", r.Z)
	}

	f.Close()
	if _, err := f.Read(); err != io.EOF {
		t.Errorf("after close: expected io.EOF, got %v", err)
	}
}

func TestPumpForwardsAndSkips(t *testing.T) {
	f := NewFakeReader([]Reading{{Z: 1}, {Z: 2}, {Z: 3}, {Z: 4}})
	f.Errors = map[int]error{
		1: fmt.Errorf("%w: bad line", ErrMalformed),
		2: errors.New("device hiccup"),
	}

	p := NewPump(f, 10)
	p.RetryDelay = 0
	p.Run(context.Background())

	var got []float64
	for r := range p.Out {
		got = append(got, r.Z)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("forwarded: got %v, want [1 4]", got)
	}

	produced, malformed := p.Stats()
	if produced != 2 {
		t.Errorf("produced: got %d, want 2", produced)
	}
	if malformed != 1 {
		t.Errorf("malformed: got %d, want 1", malformed)
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	readings := make([]Reading, 100)
	p := NewPump(NewFakeReader(readings), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	<-p.Out
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestSimReaderSignal(t *testing.T) {
	s := NewSimReader(120, 20*time.Millisecond, 1)
	defer s.Close()

	var minMag, maxMag = math.Inf(1), math.Inf(-1)
	for i := 0; i < 200; i++ {
		r := s.next()
		if r.IntervalMs != 20 {
			t.Fatalf("reading %d: IntervalMs got %v, want 20", i, r.IntervalMs)
		}
		m := r.Sample().Magnitude
		minMag = math.Min(minMag, m)
		maxMag = math.Max(maxMag, m)
	}

	if maxMag-minMag < 3 {
		t.Errorf("expected a visible bounce, got range %.2f", maxMag-minMag)
	}
}

func TestSimReaderCadence(t *testing.T) {
	// 200 synthetic samples at 120 spm over 4s should estimate close to 120.
	s := NewSimReader(120, 20*time.Millisecond, 7)
	defer s.Close()

	frame := make(cadence.Frame, 200)
	for i := range frame {
		frame[i] = s.next().Sample()
	}

	got := cadence.NewEstimator(cadence.DefaultConfig()).Estimate(frame)
	if got < 105 || got > 135 {
		t.Errorf("estimated cadence %v, want about 120", got)
	}
}

func TestSimReaderCloseUnblocksRead(t *testing.T) {
	s := NewSimReader(120, time.Hour, 1)
	s.Close()
	if _, err := s.Read(); err != io.EOF {
		t.Errorf("expected io.EOF after Close, got %v", err)
	}
	// Close is idempotent.
	s.Close()
}
