// Package store keeps a SQLite log of tracking sessions: track lifecycle
// events and the positions of shown tracks per frame.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSession is returned when a session id is unknown.
var ErrNoSession = errors.New("store: session not found")

// Event kinds
const (
	KindCreated = "created"
	KindEvicted = "evicted"
)

// Session is one tracker run.
type Session struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Frames    uint64          `json:"frames"`
	Config    json.RawMessage `json:"config"`
}

// Event is a track lifecycle event.
type Event struct {
	TrackID  int64
	Kind     string
	Reason   tracking.EvictReason // evictions only
	Frame    uint64
	Rect     geom.Rect // last stored position
	Detected int       // NumDetectedFrames at the event
	Time     time.Time
}

// Position is the shown rectangle of a track in one frame.
type Position struct {
	TrackID int64
	Frame   uint64
	Rect    geom.Rect
	Time    time.Time
}

// Store wraps the track log database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies
// pending migrations. Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open track log: %w", err)
	}
	// One connection: SQLite serializes writers and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: log.Component("store")}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	// m is not closed: that would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, err := m.Version()
	if err == nil {
		s.logger.Debug("track log schema", "version", version)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession records a new session and returns it.
func (s *Store) StartSession(ctx context.Context, source string, cfg tracking.Config) (Session, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return Session{}, fmt.Errorf("encode config: %w", err)
	}
	sess := Session{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Config:    data,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, source, started_at, config_json) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.StartedAt, string(data))
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// EndSession stamps the end time and frame count of a session.
func (s *Store) EndSession(ctx context.Context, id string, frames uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE session_id = ?`,
		time.Now().UTC(), frames, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return nil
}

// Write inserts events and positions of a session in one transaction.
func (s *Store) Write(ctx context.Context, session string, events []Event, positions []Position) error {
	if len(events) == 0 && len(positions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if len(events) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO track_events
			(session_id, track_id, kind, reason, frame, x, y, w, h, detected, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare events: %w", err)
		}
		defer stmt.Close()
		for _, e := range events {
			var reason sql.NullString
			if e.Reason != "" {
				reason = sql.NullString{String: string(e.Reason), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, session, e.TrackID, e.Kind, reason, e.Frame,
				e.Rect.X, e.Rect.Y, e.Rect.W, e.Rect.H, e.Detected, e.Time.UTC()); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
	}

	if len(positions) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO track_positions
			(session_id, track_id, frame, x, y, w, h, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare positions: %w", err)
		}
		defer stmt.Close()
		for _, p := range positions {
			if _, err := stmt.ExecContext(ctx, session, p.TrackID, p.Frame,
				p.Rect.X, p.Rect.Y, p.Rect.W, p.Rect.H, p.Time.UTC()); err != nil {
				return fmt.Errorf("insert position: %w", err)
			}
		}
	}

	return tx.Commit()
}
