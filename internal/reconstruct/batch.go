package reconstruct

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tanksight/refract3d/internal/monitoring"
)

// UnitFailure records one (frame, target) unit that could not be
// reconstructed. Failures never abort sibling units.
type UnitFailure struct {
	Frame  int
	Target int
	Err    error
}

// BatchResult is the output of one batch run. Results and Failures are
// ordered by (frame, target).
type BatchResult struct {
	RunID    string
	Results  []Result
	Failures []UnitFailure
}

// RunBatch reconstructs every (frame, target) unit in obs using a
// fixed-size worker pool. Units are fully independent: calibration state
// is read-only and all per-unit data is call-local, so workers need no
// locking. Output ordering is deterministic regardless of worker count.
func (r *Reconstructor) RunBatch(obs []Observation) BatchResult {
	groups, keys := GroupObservations(obs)

	type unitOutcome struct {
		key UnitKey
		res Result
		err error
	}

	jobs := make(chan UnitKey)
	outcomes := make(chan unitOutcome, len(keys))

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				res, err := r.ReconstructUnit(groups[key])
				outcomes <- unitOutcome{key: key, res: res, err: err}
			}
		}()
	}
	for _, key := range keys {
		jobs <- key
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	batch := BatchResult{RunID: uuid.NewString()}
	for out := range outcomes {
		if out.err != nil {
			monitoring.Logf("reconstruct: skipping frame=%d target=%d: %v", out.key.Frame, out.key.Target, out.err)
			batch.Failures = append(batch.Failures, UnitFailure{Frame: out.key.Frame, Target: out.key.Target, Err: out.err})
			continue
		}
		batch.Results = append(batch.Results, out.res)
	}

	sort.Slice(batch.Results, func(i, j int) bool {
		if batch.Results[i].Frame != batch.Results[j].Frame {
			return batch.Results[i].Frame < batch.Results[j].Frame
		}
		return batch.Results[i].Target < batch.Results[j].Target
	})
	sort.Slice(batch.Failures, func(i, j int) bool {
		if batch.Failures[i].Frame != batch.Failures[j].Frame {
			return batch.Failures[i].Frame < batch.Failures[j].Frame
		}
		return batch.Failures[i].Target < batch.Failures[j].Target
	})
	return batch
}
