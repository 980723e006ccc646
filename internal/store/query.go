package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sweeney/stride-sync/internal/cadence"
)

// ListSessions returns stored sessions, newest first.
func ListSessions(db *sql.DB, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT s.id, s.started_at_ms, s.ended_at_ms, s.source, s.frame_size, s.smoothing_window,
		       s.frames, s.active, s.stationary, s.undefined, s.high_sync,
		       (SELECT COUNT(*) FROM ticks t WHERE t.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.ID, &started, &ended, &s.Source, &s.FrameSize, &s.SmoothingWindow,
			&s.Counts.Frames, &s.Counts.Active, &s.Counts.Stationary, &s.Counts.Undefined, &s.Counts.HighSync,
			&s.Ticks); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListTicks returns the ticks of one session in time order.
func ListTicks(db *sql.DB, sessionID string) ([]Tick, error) {
	rows, err := db.Query(`
		SELECT ts_ms, frame_class, steps, raw_cadence, cadence, tempo, score, high_sync
		FROM ticks WHERE session_id = ? ORDER BY ts_ms, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []Tick
	for rows.Next() {
		var t Tick
		var ts int64
		var class string
		var tempo, score sql.NullFloat64
		if err := rows.Scan(&ts, &class, &t.Steps, &t.RawCadence, &t.Cadence, &tempo, &score, &t.HighSync); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Timestamp = time.UnixMilli(ts)
		t.FrameClass = cadence.FrameClass(class)
		if tempo.Valid {
			t.Tempo = &tempo.Float64
		}
		if score.Valid {
			t.Score = &score.Float64
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
