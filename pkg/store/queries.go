package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

// TrackSummary aggregates one track of a session.
type TrackSummary struct {
	TrackID     int64                `json:"track_id"`
	CreatedAt   uint64               `json:"created_frame"`
	EvictedAt   uint64               `json:"evicted_frame,omitempty"`
	EvictReason tracking.EvictReason `json:"evict_reason,omitempty"`
	Shown       int                  `json:"shown_frames"`
	FirstShown  uint64               `json:"first_shown_frame,omitempty"`
	LastShown   uint64               `json:"last_shown_frame,omitempty"`
	MeanWidth   float64              `json:"mean_width"`
	MeanHeight  float64              `json:"mean_height"`
}

const sessionColumns = `session_id, source, started_at, ended_at, frames, config_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess  Session
		ended sql.NullTime
		cfg   string
	)
	if err := row.Scan(&sess.ID, &sess.Source, &sess.StartedAt, &ended, &sess.Frames, &cfg); err != nil {
		return Session{}, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	sess.Config = []byte(cfg)
	return sess, nil
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one session.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// TrackSummaries aggregates every track of a session, ordered by id.
func (s *Store) TrackSummaries(ctx context.Context, session string) ([]TrackSummary, error) {
	if _, err := s.Session(ctx, session); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.track_id,
		       c.frame,
		       COALESCE(e.frame, 0),
		       COALESCE(e.reason, ''),
		       COUNT(p.frame),
		       COALESCE(MIN(p.frame), 0),
		       COALESCE(MAX(p.frame), 0),
		       COALESCE(AVG(p.w), 0),
		       COALESCE(AVG(p.h), 0)
		FROM track_events c
		LEFT JOIN track_events e
		       ON e.session_id = c.session_id AND e.track_id = c.track_id AND e.kind = 'evicted'
		LEFT JOIN track_positions p
		       ON p.session_id = c.session_id AND p.track_id = c.track_id
		WHERE c.session_id = ? AND c.kind = 'created'
		GROUP BY c.track_id, c.frame, e.frame, e.reason
		ORDER BY c.track_id`, session)
	if err != nil {
		return nil, fmt.Errorf("query track summaries: %w", err)
	}
	defer rows.Close()

	var out []TrackSummary
	for rows.Next() {
		var (
			ts     TrackSummary
			reason string
		)
		if err := rows.Scan(&ts.TrackID, &ts.CreatedAt, &ts.EvictedAt, &reason, &ts.Shown,
			&ts.FirstShown, &ts.LastShown, &ts.MeanWidth, &ts.MeanHeight); err != nil {
			return nil, fmt.Errorf("scan track summary: %w", err)
		}
		ts.EvictReason = tracking.EvictReason(reason)
		out = append(out, ts)
	}
	return out, rows.Err()
}
