package reconstruct

import (
	"sort"

	"github.com/tanksight/refract3d/internal/camera"
)

// Observation is one 2D detection of a target by one camera in one frame.
// Observations are produced by the external detection/linking subsystem
// and consumed one per camera per target per frame.
type Observation struct {
	CameraID string       `json:"camera_id"`
	Pixel    camera.Pixel `json:"pixel"`
	Frame    int          `json:"frame"`
	Target   int          `json:"target"`
}

// UnitKey identifies one independent reconstruction unit: all observations
// of one target in one frame.
type UnitKey struct {
	Frame  int
	Target int
}

// GroupObservations buckets observations by (frame, target) and returns
// the keys in (frame, target) order so batch output is deterministic.
func GroupObservations(obs []Observation) (map[UnitKey][]Observation, []UnitKey) {
	groups := make(map[UnitKey][]Observation)
	for _, o := range obs {
		k := UnitKey{Frame: o.Frame, Target: o.Target}
		groups[k] = append(groups[k], o)
	}
	keys := make([]UnitKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Frame != keys[j].Frame {
			return keys[i].Frame < keys[j].Frame
		}
		return keys[i].Target < keys[j].Target
	})
	return groups, keys
}
