package recorder

import (
	"log/slog"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAssetLookup lets OnCreateInstance announce assets on demand.
func WithAssetLookup(lookup AssetLookup) Option {
	return func(r *Recorder) {
		r.lookup = lookup
	}
}

// WithLightSource makes the recorder poll the light set at every frame
// boundary. A configured source is authoritative over SetLights.
func WithLightSource(src LightSource) Option {
	return func(r *Recorder) {
		r.lightSource = src
	}
}

// WithFirstKey starts key allocation at first instead of 0.
// Used when a recording continues an existing session.
func WithFirstKey(first keyframe.Key) Option {
	return func(r *Recorder) {
		r.keys = newKeyAllocatorAt(first)
	}
}
