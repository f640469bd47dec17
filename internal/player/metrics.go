package player

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	keyframesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kfreplay_player_keyframes_applied_total",
		Help: "Total number of keyframes applied without error",
	})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kfreplay_player_violations_total",
		Help: "Total number of keyframes aborted, by violation code",
	}, []string{"code"})

	instancesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kfreplay_player_instances",
		Help: "Live instances held by the most recently updated player",
	})
)
