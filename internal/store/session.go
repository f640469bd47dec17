package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// Session describes one recording.
type Session struct {
	ID               string
	Name             string
	Seq              int64
	MaxDecimalPlaces int
	FormatVersion    string
	Keyframes        int64 // number of stored keyframes
}

// Encoder returns the encoder used for this session's keyframe bodies.
func (s Session) Encoder() keyframe.Encoder {
	return keyframe.Encoder{MaxDecimalPlaces: s.MaxDecimalPlaces}
}

// CreateSession starts a new, empty session. maxDecimalPlaces follows
// keyframe.Encoder: 0 means the default precision, negative means no
// rounding.
func (s *Store) CreateSession(ctx context.Context, name string, maxDecimalPlaces int) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("create session: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions`).Scan(&seq); err != nil {
		return Session{}, fmt.Errorf("create session: next seq: %w", err)
	}

	sess := Session{
		ID:               s.ids.Generate(),
		Name:             name,
		Seq:              seq,
		MaxDecimalPlaces: maxDecimalPlaces,
		FormatVersion:    keyframe.FormatVersion,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, name, seq, max_decimal_places, format_version)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.Name, sess.Seq, sess.MaxDecimalPlaces, sess.FormatVersion)
	if err != nil {
		return Session{}, fmt.Errorf("create session: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("create session: commit: %w", err)
	}
	return sess, nil
}

// ReadSession returns a session by id. Returns an error wrapping
// ErrNotFound if it does not exist.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, s.seq, s.max_decimal_places, s.format_version,
		       (SELECT COUNT(*) FROM keyframes k WHERE k.session_id = s.id)
		FROM sessions s
		WHERE s.id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session ordered by creation seq.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.seq, s.max_decimal_places, s.format_version,
		       (SELECT COUNT(*) FROM keyframes k WHERE k.session_id = s.id)
		FROM sessions s
		ORDER BY s.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.Name, &sess.Seq, &sess.MaxDecimalPlaces, &sess.FormatVersion, &sess.Keyframes)
	return sess, err
}
