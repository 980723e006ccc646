package motion

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"
)

// Pump moves readings from a blocking Reader onto a buffered channel so the
// consumer loop never waits on the device. Readings are never dropped: when the
// buffer is full the pump stops reading until the consumer catches up.
type Pump struct {
	reader Reader
	Out    chan Reading

	// RetryDelay is how long to wait after a device error before reading again.
	RetryDelay time.Duration

	produced  atomic.Uint64
	malformed atomic.Uint64
}

// NewPump creates a pump with an output buffer of size buf.
func NewPump(r Reader, buf int) *Pump {
	if buf <= 0 {
		buf = 512
	}
	return &Pump{
		reader:     r,
		Out:        make(chan Reading, buf),
		RetryDelay: time.Second,
	}
}

// Run reads until the context is cancelled or the reader reports io.EOF.
// Out is closed on return.
func (p *Pump) Run(ctx context.Context) {
	defer close(p.Out)

	for ctx.Err() == nil {
		r, err := p.reader.Read()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Printf("motion: source exhausted (produced=%d malformed=%d)",
				p.produced.Load(), p.malformed.Load())
			return
		case errors.Is(err, ErrMalformed):
			p.malformed.Add(1)
			log.Printf("motion: skipping reading: %v", err)
			continue
		default:
			log.Printf("motion: read error: %v", err)
			if !sleepCtx(ctx, p.RetryDelay) {
				return
			}
			continue
		}

		select {
		case p.Out <- r:
			p.produced.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns the produced and malformed counts.
func (p *Pump) Stats() (produced, malformed uint64) {
	return p.produced.Load(), p.malformed.Load()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
