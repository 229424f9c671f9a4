// Package eventlog keeps an audit trail of tracking session lifecycle
// events in SQLite for post-flight review. The engine never reads it back.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/skyfollow/internal/timeutil"
	"github.com/banshee-data/skyfollow/internal/tracking"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed event log.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
}

// Open opens (creating if needed) the event log at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	s := &Store{db: db, path: path, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the clock used for recorded_at stamps.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SessionSummary is one row of the sessions table.
type SessionSummary struct {
	ID                string     `json:"id"`
	StableTrackID     int64      `json:"stable_track_id"`
	StartedAt         time.Time  `json:"started_at"`
	StartFrame        int64      `json:"start_frame"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	EndReason         string     `json:"end_reason,omitempty"`
	IDSwitches        int        `json:"id_switches"`
	Reidentifications int        `json:"reidentifications"`
	Events            int        `json:"events"`
}

// EventRecord is one row of the events table.
type EventRecord struct {
	ID          int64              `json:"id"`
	SessionID   string             `json:"session_id"`
	Kind        tracking.EventKind `json:"kind"`
	Frame       int64              `json:"frame"`
	At          time.Time          `json:"at"`
	EphemeralID *int64             `json:"ephemeral_id,omitempty"`
	PrevID      *int64             `json:"prev_id,omitempty"`
	Similarity  float64            `json:"similarity,omitempty"`
	Detail      string             `json:"detail,omitempty"`
	RecordedAt  time.Time          `json:"recorded_at"`
}

// RecordEvent stores ev and updates its session row in one transaction.
// Events for a session not yet seen create the session row.
func (s *Store) RecordEvent(ctx context.Context, ev tracking.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sid := ev.SessionID.String()
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (session_id, stable_track_id, started_at_ns, start_frame)
		VALUES (?, ?, ?, ?)`,
		sid, ev.StableTrackID, ev.At.UnixNano(), ev.FrameIndex); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (session_id, kind, frame, at_ns, ephemeral_id, prev_id, similarity, detail, recorded_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sid, string(ev.Kind), ev.FrameIndex, ev.At.UnixNano(),
		nullID(ev.EphemeralID), nullID(ev.PrevID), ev.Similarity, ev.Detail,
		s.clock.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	var update string
	switch ev.Kind {
	case tracking.EventIDSwitch:
		update = `UPDATE sessions SET id_switches = id_switches + 1 WHERE session_id = ?`
	case tracking.EventReidentified:
		update = `UPDATE sessions SET reidentifications = reidentifications + 1 WHERE session_id = ?`
	}
	if update != "" {
		if _, err := tx.ExecContext(ctx, update, sid); err != nil {
			return fmt.Errorf("failed to update session counters: %w", err)
		}
	}
	if ev.Ended {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET ended_at_ns = ?, end_reason = ? WHERE session_id = ?`,
			ev.At.UnixNano(), string(ev.Kind), sid); err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
	}

	return tx.Commit()
}

// ListSessions returns the most recent sessions first. limit <= 0 means
// no limit.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.stable_track_id, s.started_at_ns, s.start_frame,
		       s.ended_at_ns, COALESCE(s.end_reason, ''), s.id_switches, s.reidentifications,
		       (SELECT COUNT(*) FROM events e WHERE e.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_at_ns DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			ss      SessionSummary
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&ss.ID, &ss.StableTrackID, &started, &ss.StartFrame,
			&ended, &ss.EndReason, &ss.IDSwitches, &ss.Reidentifications, &ss.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		ss.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			ss.EndedAt = &t
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// ListEvents returns a session's events in frame order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, session_id, kind, frame, at_ns, ephemeral_id, prev_id,
		       similarity, detail, recorded_at_ns
		FROM events
		WHERE session_id = ?
		ORDER BY frame, event_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			r              EventRecord
			kind           string
			at, recorded   int64
			ephemeral, prv sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &kind, &r.Frame, &at, &ephemeral, &prv,
			&r.Similarity, &r.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.Kind = tracking.EventKind(kind)
		r.At = time.Unix(0, at).UTC()
		r.RecordedAt = time.Unix(0, recorded).UTC()
		r.EphemeralID = idFromNull(ephemeral)
		r.PrevID = idFromNull(prv)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idFromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
