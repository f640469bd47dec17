package harness

import (
	"github.com/roach88/kfreplay/internal/keyframe"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step int    `json:"step"`
	Op   string `json:"op"`
	// Keyframe is the index of the keyframe a save produced, or -1.
	Keyframe int `json:"keyframe"`
	// Error is set when the step failed as expected.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every fidelity check and expectation held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Keyframes holds every saved keyframe, oldest first.
	Keyframes []keyframe.Keyframe `json:"-"`

	// Violations holds the code of every protocol violation the player
	// reported, in order.
	Violations []string `json:"violations,omitempty"`

	// StateHash is the hash of the player's final reconstructed state.
	StateHash string `json:"state_hash"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(step int, op string, kf int, errMsg string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Op: op, Keyframe: kf, Error: errMsg})
}
