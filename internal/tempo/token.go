package tempo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenPath is the backend endpoint handing out the player's access token.
const TokenPath = "/token"

// tokenResponse mirrors the backend payload. ExpiresAt is epoch milliseconds.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// backendTokenSource fetches a bearer token from the backend's /token endpoint.
type backendTokenSource struct {
	ctx        context.Context
	httpClient *http.Client
	url        string
}

// Token implements oauth2.TokenSource.
func (s *backendTokenSource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("tempo token: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tempo token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tempo token: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("tempo token: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("tempo token: empty access_token")
	}

	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: "Bearer"}
	if tr.ExpiresAt > 0 {
		tok.Expiry = time.UnixMilli(tr.ExpiresAt)
	}
	return tok, nil
}

// TokenSource returns a caching token source backed by {baseURL}/token.
// A token is refetched shortly before its expiry.
func TokenSource(ctx context.Context, httpClient *http.Client, baseURL string) oauth2.TokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	src := &backendTokenSource{
		ctx:        ctx,
		httpClient: httpClient,
		url:        strings.TrimRight(baseURL, "/") + TokenPath,
	}
	return oauth2.ReuseTokenSource(nil, src)
}

// AuthenticatedHTTPClient returns an http.Client that attaches the backend
// bearer token to every request.
func AuthenticatedHTTPClient(ctx context.Context, baseURL string, timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	c := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), TokenSource(ctx, base, baseURL))
	c.Timeout = timeout
	return c
}
