// Package tempo fetches the tempo (beats per minute) of the currently playing
// track from the player backend.
package tempo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// BPMPath is the backend endpoint reporting the current track tempo.
const BPMPath = "/api/current-track-bpm"

// ErrMissingBPM is returned when the backend response has no usable bpm.
var ErrMissingBPM = errors.New("tempo: missing or invalid bpm")

// Client is an HTTP client for the player backend.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	maxRetries  int
	baseBackoff time.Duration
}

// NewClient constructs a tempo client. A nil httpClient uses http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBackoff,
	}
}

// WithRetry overrides the retry policy for a single fetch. maxRetries counts
// attempts, so 1 disables retrying.
func (c *Client) WithRetry(maxRetries int, baseBackoff time.Duration) *Client {
	c.maxRetries = maxRetries
	c.baseBackoff = baseBackoff
	return c
}

type bpmResponse struct {
	BPM *float64 `json:"bpm"`
}

// FetchBPM returns the tempo of the current track.
func (c *Client) FetchBPM(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+BPMPath, nil)
	if err != nil {
		return 0, fmt.Errorf("tempo: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tempo: status %d", resp.StatusCode)
	}

	var br bpmResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return 0, fmt.Errorf("tempo: decode response: %w", err)
	}

	if br.BPM == nil {
		return 0, ErrMissingBPM
	}
	bpm := *br.BPM
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrMissingBPM, bpm)
	}
	return bpm, nil
}
