package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/sweeney/stride-sync/internal/cadence"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRecorder writes sessions to a SQLite database.
type SQLiteRecorder struct {
	db        *sql.DB
	sessionID string
}

// SessionInfo describes the session being opened.
type SessionInfo struct {
	ID        string
	StartedAt time.Time
	Source    string
	Cadence   cadence.Config
}

// OpenDB opens (creating if needed) the database at path and migrates it to
// the latest schema.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewSQLiteRecorder opens the database and starts a new session.
func NewSQLiteRecorder(path string, info SessionInfo) (*SQLiteRecorder, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		`INSERT INTO sessions (id, started_at_ms, source, frame_size, smoothing_window) VALUES (?, ?, ?, ?, ?)`,
		info.ID, info.StartedAt.UnixMilli(), info.Source, info.Cadence.FrameSize, info.Cadence.SmoothingWindow,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &SQLiteRecorder{db: db, sessionID: info.ID}, nil
}

// SessionID returns the ID of the session being recorded.
func (r *SQLiteRecorder) SessionID() string {
	return r.sessionID
}

// RecordUpdate stores one cadence tick.
func (r *SQLiteRecorder) RecordUpdate(u cadence.Update) error {
	_, err := r.db.Exec(
		`INSERT INTO ticks (session_id, ts_ms, frame_class, steps, raw_cadence, cadence, tempo, score, high_sync)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.sessionID, u.Timestamp.UnixMilli(), string(u.Frame.Class), u.Frame.Steps, u.Frame.Cadence,
		u.Cadence, nullFloat(u.Sync.Tempo), nullFloat(u.Sync.Score), u.Visual == cadence.VisualHighSync,
	)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// RecordTempo stores a fetched tempo.
func (r *SQLiteRecorder) RecordTempo(bpm float64, at time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO tempo_fetches (session_id, ts_ms, bpm) VALUES (?, ?, ?)`,
		r.sessionID, at.UnixMilli(), bpm,
	)
	if err != nil {
		return fmt.Errorf("insert tempo fetch: %w", err)
	}
	return nil
}

// EndSession stamps the end time and final counts.
func (r *SQLiteRecorder) EndSession(at time.Time, counts cadence.Counts) error {
	_, err := r.db.Exec(
		`UPDATE sessions SET ended_at_ms = ?, frames = ?, active = ?, stationary = ?, undefined = ?, high_sync = ?
		 WHERE id = ?`,
		at.UnixMilli(), counts.Frames, counts.Active, counts.Stationary, counts.Undefined, counts.HighSync,
		r.sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// ListSessions returns up to limit stored sessions, newest first, including
// the one being recorded.
func (r *SQLiteRecorder) ListSessions(limit int) ([]Session, error) {
	return ListSessions(r.db, limit)
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: closing it would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("store: migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }
