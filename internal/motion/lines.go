package motion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LineReader parses "x,y,z[,interval_ms]" lines from a stream. Blank lines and
// lines starting with '#' are skipped.
type LineReader struct {
	src     io.Reader
	scanner *bufio.Scanner
	closer  io.Closer
	// skipTail drops the rest of a line whose start overflowed the buffer.
	skipTail bool
}

// NewLineReader wraps r. If r is also an io.Closer it is closed by Close.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{src: r, scanner: bufio.NewScanner(r)}
	if c, ok := r.(io.Closer); ok {
		lr.closer = c
	}
	return lr
}

// Read returns the next parsed reading. A read error from the stream is
// returned once; the following Read resumes from the same stream. An
// over-long line is reported as ErrMalformed and skipped.
func (l *LineReader) Read() (Reading, error) {
	for l.scanner.Scan() {
		line := strings.TrimSpace(l.scanner.Text())
		if l.skipTail {
			l.skipTail = false
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return ParseLine(line)
	}
	err := l.scanner.Err()
	if err == nil {
		return Reading{}, io.EOF
	}
	// Scanner errors are sticky, so start a fresh one over the same stream.
	l.scanner = bufio.NewScanner(l.src)
	if errors.Is(err, bufio.ErrTooLong) {
		l.skipTail = true
		return Reading{}, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, bufio.MaxScanTokenSize)
	}
	return Reading{}, fmt.Errorf("read motion stream: %w", err)
}

// Close closes the underlying stream, if it is closable.
func (l *LineReader) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLine parses a single "x,y,z[,interval_ms]" record.
func ParseLine(line string) (Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return Reading{}, fmt.Errorf("%w: want x,y,z[,interval_ms], got %q", ErrMalformed, line)
	}

	var vals [4]float64
	for i := 0; i < len(fields) && i < 4; i++ {
		f := strings.TrimSpace(fields[i])
		if f == "" {
			if i < 3 {
				return Reading{}, fmt.Errorf("%w: empty axis %d in %q", ErrMalformed, i, line)
			}
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
		}
		vals[i] = v
	}

	return Reading{X: vals[0], Y: vals[1], Z: vals[2], IntervalMs: vals[3]}, nil
}
