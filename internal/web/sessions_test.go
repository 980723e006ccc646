package web

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sweeney/stride-sync/internal/cadence"
	"github.com/sweeney/stride-sync/internal/status"
	"github.com/sweeney/stride-sync/internal/store"
)

type fakeLister struct {
	Sessions []store.Session
	Err      error
	Limits   []int
}

func (f *fakeLister) ListSessions(limit int) ([]store.Session, error) {
	f.Limits = append(f.Limits, limit)
	if f.Err != nil {
		return nil, f.Err
	}
	if limit < len(f.Sessions) {
		return f.Sessions[:limit], nil
	}
	return f.Sessions, nil
}

func newSessionServer(t *testing.T, l SessionLister) *httptest.Server {
	t.Helper()
	tr := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), defaultConfig())
	srv := New(":0", tr)
	if l != nil {
		srv.WithSessions(l)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestSessionsJSON(t *testing.T) {
	ended := time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC)
	l := &fakeLister{Sessions: []store.Session{
		{
			ID:              "b",
			StartedAt:       time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
			Source:          "sim",
			FrameSize:       200,
			SmoothingWindow: 3,
			Ticks:           4,
		},
		{
			ID:              "a",
			StartedAt:       time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC),
			EndedAt:         &ended,
			Source:          "serial",
			FrameSize:       200,
			SmoothingWindow: 3,
			Ticks:           450,
			Counts:          cadence.Counts{Frames: 450, Active: 400, Stationary: 40, Undefined: 10, HighSync: 300},
		},
	}}
	ts := newSessionServer(t, l)

	resp, body := getBody(t, ts.URL+"/sessions.json")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}

	var got struct {
		Sessions []SessionJSON `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got.Sessions))
	}
	open, done := got.Sessions[0], got.Sessions[1]
	if open.ID != "b" || open.EndedAt != nil {
		t.Errorf("open session: id=%q ended_at=%v", open.ID, open.EndedAt)
	}
	if done.EndedAt == nil || *done.EndedAt != "2026-05-04T07:30:00Z" {
		t.Errorf("ended_at: got %v", done.EndedAt)
	}
	if done.StartedAt != "2026-05-04T07:00:00Z" || done.Source != "serial" {
		t.Errorf("finished session: %+v", done)
	}
	if done.Frames != 450 || done.HighSync != 300 || done.Ticks != 450 {
		t.Errorf("counts: %+v", done)
	}
	if len(l.Limits) != 1 || l.Limits[0] != defaultSessionLimit {
		t.Errorf("limits: got %v, want [%d]", l.Limits, defaultSessionLimit)
	}
}

func TestSessionsJSONLimit(t *testing.T) {
	l := &fakeLister{}
	ts := newSessionServer(t, l)

	getBody(t, ts.URL+"/sessions.json?limit=5")
	getBody(t, ts.URL+"/sessions.json?limit=100000")
	if len(l.Limits) != 2 || l.Limits[0] != 5 || l.Limits[1] != maxSessionLimit {
		t.Errorf("limits: got %v, want [5 %d]", l.Limits, maxSessionLimit)
	}

	for _, q := range []string{"0", "-1", "x"} {
		resp, _ := getBody(t, ts.URL+"/sessions.json?limit="+q)
		if resp.StatusCode != 400 {
			t.Errorf("limit=%s: status got %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestSessionsJSONEmpty(t *testing.T) {
	ts := newSessionServer(t, &fakeLister{})

	_, body := getBody(t, ts.URL+"/sessions.json")
	if body != "{\"sessions\":[]}\n" {
		t.Errorf("body: got %q", body)
	}
}

func TestSessionsJSONWithoutDatabase(t *testing.T) {
	ts := newSessionServer(t, nil)

	resp, _ := getBody(t, ts.URL+"/sessions.json")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestSessionsJSONListError(t *testing.T) {
	ts := newSessionServer(t, &fakeLister{Err: errors.New("database is locked")})

	resp, _ := getBody(t, ts.URL+"/sessions.json")
	if resp.StatusCode != 500 {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}
