package web

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/stride-sync/internal/store"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 200
)

// SessionLister reads recorded sessions, newest first.
type SessionLister interface {
	ListSessions(limit int) ([]store.Session, error)
}

// SessionJSON is one entry of /sessions.json.
type SessionJSON struct {
	ID              string  `json:"id"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at"`
	Source          string  `json:"source"`
	FrameSize       int     `json:"frame_size"`
	SmoothingWindow int     `json:"smoothing_window"`
	Ticks           int     `json:"ticks"`
	Frames          int     `json:"frames"`
	Active          int     `json:"active"`
	Stationary      int     `json:"stationary"`
	Undefined       int     `json:"undefined"`
	HighSync        int     `json:"high_sync"`
}

// WithSessions enables /sessions.json backed by l.
func (s *Server) WithSessions(l SessionLister) *Server {
	s.sessions = l
	return s
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.NotFound(w, r)
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := s.sessions.ListSessions(limit)
	if err != nil {
		log.Printf("http: list sessions: %v", err)
		http.Error(w, "list sessions failed", http.StatusInternalServerError)
		return
	}

	out := make([]SessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionJSON(sess))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]SessionJSON{"sessions": out})
}

func sessionJSON(s store.Session) SessionJSON {
	j := SessionJSON{
		ID:              s.ID,
		StartedAt:       s.StartedAt.UTC().Format(time.RFC3339),
		Source:          s.Source,
		FrameSize:       s.FrameSize,
		SmoothingWindow: s.SmoothingWindow,
		Ticks:           s.Ticks,
		Frames:          s.Counts.Frames,
		Active:          s.Counts.Active,
		Stationary:      s.Counts.Stationary,
		Undefined:       s.Counts.Undefined,
		HighSync:        s.Counts.HighSync,
	}
	if s.EndedAt != nil {
		ended := s.EndedAt.UTC().Format(time.RFC3339)
		j.EndedAt = &ended
	}
	return j
}
