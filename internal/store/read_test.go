package store

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/kfreplay/internal/keyframe"
)

func seedSession(t *testing.T, s *Store, places int, n int) Session {
	t.Helper()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "seed", places)
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	kfs := make([]keyframe.Keyframe, n)
	for i := range kfs {
		kfs[i] = createTestKeyframe(0, float32(i+1))
	}
	if _, err := s.AppendKeyframes(ctx, sess.ID, kfs); err != nil {
		t.Fatalf("AppendKeyframes() failed: %v", err)
	}
	return sess
}

func TestReadKeyframes_SeqOrder(t *testing.T) {
	s := createTestStore(t)
	sess := seedSession(t, s, 0, 5)

	kfs, err := s.ReadKeyframes(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ReadKeyframes() failed: %v", err)
	}
	if len(kfs) != 5 {
		t.Fatalf("len = %d, want 5", len(kfs))
	}
	for i, kf := range kfs {
		if got := kf.StateUpdates[0].State.AbsTransform.Translation.X(); got != float32(i+1) {
			t.Errorf("keyframe %d x = %v, want %v", i, got, i+1)
		}
	}
}

func TestReadKeyframeRange(t *testing.T) {
	s := createTestStore(t)
	sess := seedSession(t, s, 0, 5)

	kfs, err := s.ReadKeyframeRange(context.Background(), sess.ID, 2, 4)
	if err != nil {
		t.Fatalf("ReadKeyframeRange() failed: %v", err)
	}
	if len(kfs) != 3 {
		t.Fatalf("len = %d, want 3", len(kfs))
	}
	if x := kfs[0].StateUpdates[0].State.AbsTransform.Translation.X(); x != 2 {
		t.Errorf("first x = %v, want 2", x)
	}
}

func TestReadKeyframes_EmptySession(t *testing.T) {
	s := createTestStore(t)
	sess := seedSession(t, s, 0, 0)

	kfs, err := s.ReadKeyframes(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ReadKeyframes() failed: %v", err)
	}
	if kfs == nil || len(kfs) != 0 {
		t.Errorf("ReadKeyframes() = %v, want empty slice", kfs)
	}

	_, err = s.ReadKeyframes(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadKeyframes(missing) error = %v, want ErrNotFound", err)
	}
}

func TestReadKeyframes_RoundsToSessionPrecision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess, _ := s.CreateSession(ctx, "", 2)

	kf := createTestKeyframe(0, 0)
	kf.StateUpdates[0].State.AbsTransform.Translation = mgl32.Vec3{1.23456, 0, 0}
	if _, err := s.AppendKeyframe(ctx, sess.ID, 1, kf); err != nil {
		t.Fatalf("AppendKeyframe() failed: %v", err)
	}

	kfs, err := s.ReadKeyframes(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ReadKeyframes() failed: %v", err)
	}
	if x := kfs[0].StateUpdates[0].State.AbsTransform.Translation.X(); x != float32(1.23) {
		t.Errorf("x = %v, want 1.23", x)
	}
}

func TestReadKeyframes_DetectsCorruption(t *testing.T) {
	s := createTestStore(t)
	sess := seedSession(t, s, 0, 2)

	_, err := s.db.Exec(`UPDATE keyframes SET body = '{}' WHERE session_id = ? AND seq = 2`, sess.ID)
	if err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	_, err = s.ReadKeyframes(context.Background(), sess.ID)
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Fatalf("ReadKeyframes() error = %v, want *CorruptionError", err)
	}
	if ce.Seq != 2 {
		t.Errorf("corrupt seq = %d, want 2", ce.Seq)
	}
}

func TestReplay_StopsOnCallbackError(t *testing.T) {
	s := createTestStore(t)
	sess := seedSession(t, s, 0, 4)
	stop := errors.New("stop")

	var seen []int64
	err := s.Replay(context.Background(), sess.ID, func(seq int64, _ keyframe.Keyframe) error {
		seen = append(seen, seq)
		if seq == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Replay() error = %v, want stop", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("seen = %v, want [1 2]", seen)
	}
}

func TestFindKeyframe(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := seedSession(t, s, 0, 2)
	b := seedSession(t, s, 0, 1)

	_, hash, err := s.ReadKeyframeBody(ctx, a.ID, 1)
	if err != nil {
		t.Fatalf("ReadKeyframeBody() failed: %v", err)
	}
	refs, err := s.FindKeyframe(ctx, hash)
	if err != nil {
		t.Fatalf("FindKeyframe() failed: %v", err)
	}
	want := []KeyframeRef{{SessionID: a.ID, Seq: 1}, {SessionID: b.ID, Seq: 1}}
	if len(refs) != len(want) || refs[0] != want[0] || refs[1] != want[1] {
		t.Errorf("FindKeyframe() = %v, want %v", refs, want)
	}
}
