package store

import (
	"context"
	"fmt"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// CorruptionError reports a stored body whose hash no longer matches.
type CorruptionError struct {
	SessionID string
	Seq       int64
	Stored    string
	Computed  string
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("keyframe %s/%d is corrupt: stored hash %s, computed %s",
		e.SessionID, e.Seq, e.Stored, e.Computed)
}

// KeyframeRef locates a stored keyframe.
type KeyframeRef struct {
	SessionID string
	Seq       int64
}

// Replay streams a session's keyframes to fn in seq order. Each body is
// verified against its hash before decoding. Iteration stops at the first
// error from fn, which is returned as is.
func (s *Store) Replay(ctx context.Context, sessionID string, fn func(seq int64, kf keyframe.Keyframe) error) error {
	return s.replayRange(ctx, sessionID, 1, -1, fn)
}

// replayRange replays seq in [from, to]; to < 0 means through the end.
func (s *Store) replayRange(ctx context.Context, sessionID string, from, to int64, fn func(int64, keyframe.Keyframe) error) error {
	if _, err := s.ReadSession(ctx, sessionID); err != nil {
		return err
	}

	// Ordering is by logical seq only.
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, hash, body
		FROM keyframes
		WHERE session_id = ? AND seq >= ? AND (? < 0 OR seq <= ?)
		ORDER BY seq ASC
	`, sessionID, from, to, to)
	if err != nil {
		return fmt.Errorf("query keyframes: %w", err)
	}
	defer rows.Close()

	type row struct {
		seq  int64
		hash string
		body string
	}
	// Drain before calling fn: the store holds a single connection and fn
	// may want to use it.
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.seq, &r.hash, &r.body); err != nil {
			return fmt.Errorf("scan keyframe: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate keyframes: %w", err)
	}
	rows.Close()

	for _, r := range pending {
		if computed := keyframe.HashBody([]byte(r.body)); computed != r.hash {
			return &CorruptionError{SessionID: sessionID, Seq: r.seq, Stored: r.hash, Computed: computed}
		}
		kf, err := keyframe.Unmarshal([]byte(r.body))
		if err != nil {
			return fmt.Errorf("decode keyframe %s/%d: %w", sessionID, r.seq, err)
		}
		if err := fn(r.seq, kf); err != nil {
			return err
		}
	}
	return nil
}

// ReadKeyframes returns every keyframe of a session in seq order.
//
// Returns an empty slice (not nil) for an empty session.
func (s *Store) ReadKeyframes(ctx context.Context, sessionID string) ([]keyframe.Keyframe, error) {
	return s.ReadKeyframeRange(ctx, sessionID, 1, -1)
}

// ReadKeyframeRange returns keyframes with seq in [from, to], in seq order.
// A negative to reads through the last keyframe.
func (s *Store) ReadKeyframeRange(ctx context.Context, sessionID string, from, to int64) ([]keyframe.Keyframe, error) {
	kfs := []keyframe.Keyframe{}
	err := s.replayRange(ctx, sessionID, from, to, func(_ int64, kf keyframe.Keyframe) error {
		kfs = append(kfs, kf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return kfs, nil
}

// ReadKeyframeBody returns the stored encoding of one keyframe and its hash.
func (s *Store) ReadKeyframeBody(ctx context.Context, sessionID string, seq int64) (body []byte, hash string, err error) {
	var b string
	err = s.db.QueryRowContext(ctx, `
		SELECT body, hash FROM keyframes WHERE session_id = ? AND seq = ?
	`, sessionID, seq).Scan(&b, &hash)
	if err != nil {
		return nil, "", fmt.Errorf("read keyframe %s/%d: %w", sessionID, seq, err)
	}
	return []byte(b), hash, nil
}

// LastSeq returns the seq of the session's last keyframe, or 0 if it has
// none.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM keyframes WHERE session_id = ?
	`, sessionID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last seq %s: %w", sessionID, err)
	}
	return last, nil
}

// FindKeyframe returns every stored keyframe whose body hash is hash,
// ordered by session creation and then seq.
func (s *Store) FindKeyframe(ctx context.Context, hash string) ([]KeyframeRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.session_id, k.seq
		FROM keyframes k
		JOIN sessions s ON s.id = k.session_id
		WHERE k.hash = ?
		ORDER BY s.seq ASC, k.seq ASC
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("find keyframe: %w", err)
	}
	defer rows.Close()

	refs := []KeyframeRef{}
	for rows.Next() {
		var ref KeyframeRef
		if err := rows.Scan(&ref.SessionID, &ref.Seq); err != nil {
			return nil, fmt.Errorf("scan keyframe ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyframe refs: %w", err)
	}
	return refs, nil
}
