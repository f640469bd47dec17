package recorder

import (
	"errors"
	"fmt"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// ErrUnknownAsset is returned when an instance references an asset that was
// never announced and cannot be looked up. Nothing is recorded; the session
// stays usable.
var ErrUnknownAsset = errors.New("asset not announced")

// ErrNonFinite is returned for a transform with a NaN or infinite
// component. Such a value never compares equal to itself and cannot be
// encoded.
var ErrNonFinite = errors.New("non-finite transform")

// InvariantError reports a desynchronized shadow table.
//
// Invariant errors are fatal to the recording session. Once one is raised
// the Recorder returns it from every mutating call and frame boundary.
type InvariantError struct {
	// Op names the operation that detected the problem.
	Op string

	// Key identifies the instance involved, if any.
	Key keyframe.Key

	// RigID identifies the rig involved, or keyframe.IDUndefined.
	RigID int

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.RigID != keyframe.IDUndefined {
		return fmt.Sprintf("recorder invariant violated: %s: %s (rig=%d)", e.Op, e.Message, e.RigID)
	}
	return fmt.Sprintf("recorder invariant violated: %s: %s (key=%d)", e.Op, e.Message, e.Key)
}

// IsInvariantError reports whether err is, or wraps, an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

func newInstanceError(op string, key keyframe.Key, msg string) *InvariantError {
	return &InvariantError{Op: op, Key: key, RigID: keyframe.IDUndefined, Message: msg}
}

func newRigError(op string, rigID int, msg string) *InvariantError {
	return &InvariantError{Op: op, Key: -1, RigID: rigID, Message: msg}
}

func checkTransform(t keyframe.Transform) error {
	if !t.IsFinite() {
		return ErrNonFinite
	}
	return nil
}

func checkNames(names []string) error {
	for _, name := range names {
		if err := keyframe.CheckName(name); err != nil {
			return err
		}
	}
	return nil
}
