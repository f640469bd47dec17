package player

import (
	"errors"
	"fmt"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// ViolationCode categorizes protocol violations.
type ViolationCode string

const (
	// CodeUnknownKey indicates a reference to a key that is not present.
	CodeUnknownKey ViolationCode = "UNKNOWN_KEY"

	// CodeDuplicateKey indicates a creation for a key already present.
	CodeDuplicateKey ViolationCode = "DUPLICATE_KEY"

	// CodeRetiredKey indicates a creation for a key that was deleted earlier
	// in the session. Keys are never reused.
	CodeRetiredKey ViolationCode = "RETIRED_KEY"

	// CodeUnknownAsset indicates a creation whose asset was never loaded.
	CodeUnknownAsset ViolationCode = "UNKNOWN_ASSET"

	// CodeDuplicateRig indicates a rig creation for an id already registered.
	CodeDuplicateRig ViolationCode = "DUPLICATE_RIG"

	// CodeUnknownRig indicates a pose for a rig that was never created.
	CodeUnknownRig ViolationCode = "UNKNOWN_RIG"

	// CodePoseLengthMismatch indicates a pose that does not match the rig's
	// bone count.
	CodePoseLengthMismatch ViolationCode = "POSE_LENGTH_MISMATCH"
)

// ProtocolViolation reports a keyframe entry that is inconsistent with the
// reconstructed state. Recoverable at the keyframe boundary: later
// keyframes may still be applied.
type ProtocolViolation struct {
	// Code identifies the violation category.
	Code ViolationCode

	// Message is a human-readable description.
	Message string

	// Section is the keyframe section of the offending entry.
	Section string

	// Index is the entry's position within Section.
	Index int

	// Key identifies the instance involved, if any.
	Key keyframe.Key

	// RigID identifies the rig involved, or keyframe.IDUndefined.
	RigID int
}

// Error implements the error interface.
func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("%s: %s (section=%s, index=%d)", e.Code, e.Message, e.Section, e.Index)
}

// IsProtocolViolation reports whether err is, or wraps, a ProtocolViolation.
func IsProtocolViolation(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}

// Code returns the violation code of err, or "" if err is not a
// ProtocolViolation.
func Code(err error) ViolationCode {
	var pv *ProtocolViolation
	if errors.As(err, &pv) {
		return pv.Code
	}
	return ""
}

func keyViolation(code ViolationCode, section string, index int, key keyframe.Key, msg string) *ProtocolViolation {
	return &ProtocolViolation{
		Code:    code,
		Message: msg,
		Section: section,
		Index:   index,
		Key:     key,
		RigID:   keyframe.IDUndefined,
	}
}

func rigViolation(code ViolationCode, section string, index int, rigID int, msg string) *ProtocolViolation {
	return &ProtocolViolation{
		Code:    code,
		Message: msg,
		Section: section,
		Index:   index,
		Key:     -1,
		RigID:   rigID,
	}
}

// BackendError wraps a failure of the resolver or backend. It aborts the
// keyframe like a violation but says nothing about the stream itself.
type BackendError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}
