package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// ConflictError reports an append at an occupied seq with a different body.
type ConflictError struct {
	SessionID    string
	Seq          int64
	ExistingHash string
	NewHash      string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("keyframe %s/%d already stored with hash %s, refusing %s",
		e.SessionID, e.Seq, e.ExistingHash, e.NewHash)
}

// AppendKeyframe stores kf at seq in the session.
//
// seq must be at most LastSeq+1. Re-appending an identical keyframe at an
// occupied seq is a no-op and returns inserted=false; a different keyframe
// returns a *ConflictError.
func (s *Store) AppendKeyframe(ctx context.Context, sessionID string, seq int64, kf keyframe.Keyframe) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("append keyframe: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	sess, err := sessionInTx(ctx, tx, sessionID)
	if err != nil {
		return false, fmt.Errorf("append keyframe: %w", err)
	}
	inserted, err = appendInTx(ctx, tx, sess, seq, kf)
	if err != nil {
		return false, fmt.Errorf("append keyframe: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("append keyframe: commit: %w", err)
	}
	return inserted, nil
}

// AppendKeyframes stores kfs after the session's last keyframe in one
// transaction and returns the seq of the first one. Either all keyframes
// are stored or none are.
func (s *Store) AppendKeyframes(ctx context.Context, sessionID string, kfs []keyframe.Keyframe) (firstSeq int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append keyframes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	sess, err := sessionInTx(ctx, tx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("append keyframes: %w", err)
	}
	last, err := lastSeqInTx(ctx, tx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("append keyframes: %w", err)
	}

	for i, kf := range kfs {
		if _, err := appendInTx(ctx, tx, sess, last+1+int64(i), kf); err != nil {
			return 0, fmt.Errorf("append keyframes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append keyframes: commit: %w", err)
	}
	return last + 1, nil
}

func sessionInTx(ctx context.Context, tx *sql.Tx, id string) (Session, error) {
	var sess Session
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, seq, max_decimal_places, format_version
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Name, &sess.Seq, &sess.MaxDecimalPlaces, &sess.FormatVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

func lastSeqInTx(ctx context.Context, tx *sql.Tx, sessionID string) (int64, error) {
	var last int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM keyframes WHERE session_id = ?
	`, sessionID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return last, nil
}

func appendInTx(ctx context.Context, tx *sql.Tx, sess Session, seq int64, kf keyframe.Keyframe) (bool, error) {
	if seq < 1 {
		return false, fmt.Errorf("seq %d: must be >= 1", seq)
	}
	last, err := lastSeqInTx(ctx, tx, sess.ID)
	if err != nil {
		return false, err
	}
	if seq > last+1 {
		return false, fmt.Errorf("seq %d: gap after %d", seq, last)
	}

	if err := kf.CheckStructure(); err != nil {
		return false, fmt.Errorf("seq %d: %w", seq, err)
	}
	body, err := sess.Encoder().Marshal(kf)
	if err != nil {
		return false, fmt.Errorf("seq %d: %w", seq, err)
	}
	hash := keyframe.HashBody(body)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO keyframes (session_id, seq, hash, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, sess.ID, seq, hash, string(body))
	if err != nil {
		return false, fmt.Errorf("seq %d: insert: %w", seq, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seq %d: rows affected: %w", seq, err)
	}
	if n > 0 {
		return true, nil
	}

	var existing string
	if err := tx.QueryRowContext(ctx, `
		SELECT hash FROM keyframes WHERE session_id = ? AND seq = ?
	`, sess.ID, seq).Scan(&existing); err != nil {
		return false, fmt.Errorf("seq %d: read existing: %w", seq, err)
	}
	if existing != hash {
		return false, &ConflictError{SessionID: sess.ID, Seq: seq, ExistingHash: existing, NewHash: hash}
	}
	return false, nil
}
