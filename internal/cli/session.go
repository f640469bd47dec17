package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/store"
)

// dbPath returns the --db flag value, falling back to the configured path.
func (o *RootOptions) dbPath(flag string) string {
	if flag != "" {
		return flag
	}
	return o.config().Store.Path
}

// openStore opens the database at path. Unless create is set the file must
// already exist.
func openStore(path string, create bool) (*store.Store, error) {
	if !create && path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadSession reads a session and all of its keyframes.
func loadSession(ctx context.Context, st *store.Store, id string) (store.Session, []keyframe.Keyframe, error) {
	if id == "" {
		return store.Session{}, nil, NewExitError(ExitCommandError, "--session is required")
	}
	sess, err := st.ReadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, nil, NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", id))
	}
	if err != nil {
		return store.Session{}, nil, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	kfs, err := st.ReadKeyframes(ctx, id)
	if err != nil {
		var corrupt *store.CorruptionError
		if errors.As(err, &corrupt) {
			return store.Session{}, nil, WrapExitError(ExitFailure, "stored keyframe is corrupt", err)
		}
		return store.Session{}, nil, WrapExitError(ExitCommandError, "failed to read keyframes", err)
	}
	return sess, kfs, nil
}
