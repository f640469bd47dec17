package keyframe

import (
	"fmt"
	"os"
)

// WriteFile writes keyframes to path as a {"keyframes": [...]} document.
func (e Encoder) WriteFile(path string, kfs []Keyframe) error {
	data, err := e.MarshalFile(kfs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write keyframe file: %w", err)
	}
	return nil
}

// ReadFile reads a {"keyframes": [...]} document from path.
func ReadFile(path string) ([]Keyframe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyframe file: %w", err)
	}
	return UnmarshalFile(data)
}
