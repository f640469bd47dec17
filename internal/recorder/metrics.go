package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/kfreplay/internal/keyframe"
)

var (
	keyframesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kfreplay_recorder_keyframes_total",
		Help: "Total number of keyframes emitted by recorders",
	})

	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kfreplay_recorder_entries_total",
		Help: "Total number of keyframe entries emitted, by section",
	}, []string{"section"})

	invariantErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kfreplay_recorder_invariant_errors_total",
		Help: "Number of recording sessions aborted by an invariant error",
	})
)

func observeKeyframe(kf keyframe.Keyframe) {
	keyframesTotal.Inc()
	add := func(section string, n int) {
		if n > 0 {
			entriesTotal.WithLabelValues(section).Add(float64(n))
		}
	}
	add("loads", len(kf.Loads))
	add("rig_creations", len(kf.RigCreations))
	add("creations", len(kf.Creations))
	add("deletions", len(kf.Deletions))
	add("metadata", len(kf.Metadata))
	add("state_updates", len(kf.StateUpdates))
	add("rig_updates", len(kf.RigUpdates))
	add("user_transforms", len(kf.UserTransforms))
	if kf.LightsChanged {
		add("lights", 1)
	}
}
