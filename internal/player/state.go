package player

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/kfreplay/internal/keyframe"
)

// State is a deep copy of the reconstructed state, free of renderer
// handles. Two players that applied the same stream have equal States.
type State struct {
	Instances      map[keyframe.Key]InstanceSnapshot `json:"instances"`
	Rigs           map[int]RigState                  `json:"rigs"`
	UserTransforms map[string]keyframe.Transform     `json:"user_transforms"`
	Lights         []keyframe.LightInfo              `json:"lights"`
	LightsSet      bool                              `json:"lights_set"`
}

// InstanceSnapshot is the handle-free part of an InstanceRecord.
type InstanceSnapshot struct {
	Creation    keyframe.CreationInfo     `json:"creation"`
	State       keyframe.InstanceState    `json:"state"`
	HasState    bool                      `json:"has_state"`
	Metadata    keyframe.InstanceMetadata `json:"metadata"`
	HasMetadata bool                      `json:"has_metadata"`
}

// RigState is a rig's topology and latest pose.
type RigState struct {
	BoneNames []string             `json:"bone_names"`
	Pose      []keyframe.Transform `json:"pose"`
}

// Snapshot returns the current reconstructed state.
func (p *Player) Snapshot() State {
	s := State{
		Instances:      make(map[keyframe.Key]InstanceSnapshot, len(p.instances)),
		Rigs:           make(map[int]RigState, len(p.rigs)),
		UserTransforms: maps.Clone(p.userTransforms),
		Lights:         slices.Clone(p.lights),
		LightsSet:      p.lightsSet,
	}
	if s.UserTransforms == nil {
		s.UserTransforms = map[string]keyframe.Transform{}
	}
	for key, rec := range p.instances {
		s.Instances[key] = InstanceSnapshot{
			Creation:    rec.Creation.Clone(),
			State:       rec.State,
			HasState:    rec.HasState,
			Metadata:    rec.Metadata,
			HasMetadata: rec.HasMetadata,
		}
	}
	for id, rig := range p.rigs {
		s.Rigs[id] = RigState{
			BoneNames: slices.Clone(rig.boneNames),
			Pose:      slices.Clone(rig.pose),
		}
	}
	return s
}

// Hash returns a content hash of the state. encoding/json sorts map keys,
// which makes the encoding deterministic.
func (s State) Hash() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return keyframe.HashWithDomain(keyframe.DomainState, data), nil
}
