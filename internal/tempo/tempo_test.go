package tempo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bpmServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != BPMPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBPM(t *testing.T) {
	srv := bpmServer(t, http.StatusOK, `{"bpm": 128.5}`)

	bpm, err := NewClient(srv.Client(), srv.URL+"/").FetchBPM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128.5, bpm)
}

func TestFetchBPMMissingOrInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing", `{}`},
		{"null", `{"bpm": null}`},
		{"zero", `{"bpm": 0}`},
		{"negative", `{"bpm": -120}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := bpmServer(t, http.StatusOK, tt.body)
			_, err := NewClient(srv.Client(), srv.URL).FetchBPM(context.Background())
			assert.ErrorIs(t, err, ErrMissingBPM)
		})
	}
}

func TestFetchBPMBadJSON(t *testing.T) {
	srv := bpmServer(t, http.StatusOK, `{"bpm": "fast"}`)
	_, err := NewClient(srv.Client(), srv.URL).FetchBPM(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingBPM)
}

func TestFetchBPMClientError(t *testing.T) {
	srv := bpmServer(t, http.StatusUnauthorized, `{"error":"not_authenticated"}`)
	_, err := NewClient(srv.Client(), srv.URL).FetchBPM(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestFetchBPMRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"bpm": 100}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL).WithRetry(3, time.Millisecond)
	bpm, err := c.FetchBPM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, bpm)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchBPMGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL).WithRetry(2, time.Millisecond)
	_, err := c.FetchBPM(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), calls.Load())
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, parseRetryAfter(resp))

	resp.Header.Set("Retry-After", "soon")
	assert.Zero(t, parseRetryAfter(resp))
}

func TestSleepWithContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepWithContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenSourceAttachesBearer(t *testing.T) {
	var tokenCalls atomic.Int32
	var gotAuth string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TokenPath:
			tokenCalls.Add(1)
			exp := time.Now().Add(time.Hour).UnixMilli()
			w.Write([]byte(`{"access_token":"abc123","expires_at":` + strconv.FormatInt(exp, 10) + `}`))
		case BPMPath:
			mu.Lock()
			gotAuth = r.Header.Get("Authorization")
			mu.Unlock()
			w.Write([]byte(`{"bpm": 90}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	hc := AuthenticatedHTTPClient(context.Background(), srv.URL, 5*time.Second)
	c := NewClient(hc, srv.URL)

	for i := 0; i < 3; i++ {
		bpm, err := c.FetchBPM(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 90.0, bpm)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer abc123", gotAuth)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token should be reused until expiry")
}

func TestTokenSourceNotAuthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"not_authenticated"}`))
	}))
	defer srv.Close()

	_, err := TokenSource(context.Background(), srv.Client(), srv.URL).Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

// fakeFetcher returns scripted results, one per call; the last one repeats.
type fakeFetcher struct {
	mu      sync.Mutex
	bpms    []float64
	errs    []error
	calls   int
	fetched chan struct{}
}

func (f *fakeFetcher) FetchBPM(ctx context.Context) (float64, error) {
	f.mu.Lock()
	i := f.calls
	if i >= len(f.bpms) {
		i = len(f.bpms) - 1
	}
	f.calls++
	bpm, err := f.bpms[i], f.errs[i]
	f.mu.Unlock()

	if f.fetched != nil {
		select {
		case f.fetched <- struct{}{}:
		default:
		}
	}
	return bpm, err
}

func TestPollerSkipsFailures(t *testing.T) {
	f := &fakeFetcher{
		bpms: []float64{120, 0, 130},
		errs: []error{nil, errors.New("connection refused"), nil},
	}
	p := NewPoller(f, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	first := <-p.Out
	assert.Equal(t, 120.0, first.BPM)
	second := <-p.Out
	assert.Equal(t, 130.0, second.BPM, "failed fetch must not produce a result")

	cancel()
	for range p.Out {
	}

	ok, failed := p.Stats()
	assert.GreaterOrEqual(t, ok, uint64(2))
	assert.Equal(t, uint64(1), failed)
}

func TestPollerFetchesImmediately(t *testing.T) {
	f := &fakeFetcher{bpms: []float64{100}, errs: []error{nil}}
	p := NewPoller(f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case r := <-p.Out:
		assert.Equal(t, 100.0, r.BPM)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate fetch")
	}
}

func TestPollerClosesOutOnCancel(t *testing.T) {
	f := &fakeFetcher{bpms: []float64{0}, errs: []error{errors.New("down")}, fetched: make(chan struct{}, 1)}
	p := NewPoller(f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	<-f.fetched
	cancel()

	select {
	case _, ok := <-p.Out:
		assert.False(t, ok, "Out should be closed without results")
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
