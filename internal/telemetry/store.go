// Package telemetry persists arbitration decisions and sensor samples to a
// local sqlite database so field incidents can be reconstructed after the
// fact. Every process start opens a new session keyed by a random UUID;
// all rows hang off that session.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps the telemetry database.
type Store struct {
	*sql.DB
	sessionID string
}

// DecisionRecord is one persisted arbitration outcome.
type DecisionRecord struct {
	SessionID      string    `json:"session_id"`
	RequestedLeft  int       `json:"requested_left"`
	RequestedRight int       `json:"requested_right"`
	AppliedLeft    int       `json:"applied_left"`
	AppliedRight   int       `json:"applied_right"`
	Reason         string    `json:"reason"`
	DistanceCm     float64   `json:"distance_cm"`
	Absent         bool      `json:"absent"`
	Stale          bool      `json:"stale"`
	At             time.Time `json:"at"`
}

// NewStore opens (creating if necessary) the telemetry database at path and
// registers a fresh session. Use ":memory:" for tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS decisions (
			session_id TEXT,
			requested_left INTEGER,
			requested_right INTEGER,
			applied_left INTEGER,
			applied_right INTEGER,
			reason TEXT,
			distance_cm DOUBLE,
			absent BOOLEAN,
			stale BOOLEAN,
			at TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS samples (
			session_id TEXT,
			distance_cm DOUBLE,
			captured_at TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize telemetry schema: %w", err)
	}

	s := &Store{DB: db, sessionID: uuid.NewString()}
	if _, err := db.Exec("INSERT INTO sessions (session_id) VALUES (?)", s.sessionID); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	return s, nil
}

// SessionID returns the identifier of the session this store writes under.
func (s *Store) SessionID() string {
	return s.sessionID
}

// RecordDecision persists one arbitration outcome.
func (s *Store) RecordDecision(rec DecisionRecord) error {
	_, err := s.Exec(`INSERT INTO decisions
		(session_id, requested_left, requested_right, applied_left, applied_right,
		 reason, distance_cm, absent, stale, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, rec.RequestedLeft, rec.RequestedRight,
		rec.AppliedLeft, rec.AppliedRight, rec.Reason,
		rec.DistanceCm, rec.Absent, rec.Stale, rec.At)
	return err
}

// RecordSample persists one validated range reading.
func (s *Store) RecordSample(distanceCm float64, capturedAt time.Time) error {
	_, err := s.Exec("INSERT INTO samples (session_id, distance_cm, captured_at) VALUES (?, ?, ?)",
		s.sessionID, distanceCm, capturedAt)
	return err
}

// RecentDecisions returns the newest limit decisions for the current
// session, most recent first.
func (s *Store) RecentDecisions(limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(`SELECT session_id, requested_left, requested_right,
		applied_left, applied_right, reason, distance_cm, absent, stale, at
		FROM decisions WHERE session_id = ? ORDER BY at DESC LIMIT ?`,
		s.sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		if err := rows.Scan(&rec.SessionID, &rec.RequestedLeft, &rec.RequestedRight,
			&rec.AppliedLeft, &rec.AppliedRight, &rec.Reason,
			&rec.DistanceCm, &rec.Absent, &rec.Stale, &rec.At); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}
