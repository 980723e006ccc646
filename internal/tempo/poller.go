package tempo

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often the current track tempo is refreshed.
const DefaultPollInterval = 5 * time.Second

// Fetcher returns the current track tempo.
type Fetcher interface {
	FetchBPM(ctx context.Context) (float64, error)
}

// Result is a successfully fetched tempo.
type Result struct {
	BPM       float64
	FetchedAt time.Time
}

// Poller fetches the tempo on a fixed interval and sends successful results
// on Out. Failures are logged and counted; the consumer keeps its previous tempo.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	now      func() time.Time

	Out chan Result

	ok     atomic.Uint64
	failed atomic.Uint64
}

// NewPoller creates a poller. interval <= 0 uses DefaultPollInterval.
func NewPoller(f Fetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		fetcher:  f,
		interval: interval,
		now:      time.Now,
		Out:      make(chan Result, 1),
	}
}

// Run fetches once immediately and then every interval until ctx is cancelled.
// Out is closed on return.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.Out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if !p.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one fetch. It returns false once ctx is done.
func (p *Poller) poll(ctx context.Context) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
	bpm, err := p.fetcher.FetchBPM(fetchCtx)
	cancel()

	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		p.failed.Add(1)
		log.Printf("tempo: fetch failed, keeping previous tempo: %v", err)
		return true
	}

	p.ok.Add(1)
	select {
	case p.Out <- Result{BPM: bpm, FetchedAt: p.now()}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stats returns the number of successful and failed fetches.
func (p *Poller) Stats() (ok, failed uint64) {
	return p.ok.Load(), p.failed.Load()
}
