package reconstruct

import (
	"fmt"
	"math"
	"runtime"

	"github.com/tanksight/refract3d/internal/camera"
	"github.com/tanksight/refract3d/internal/geom"
	"github.com/tanksight/refract3d/internal/monitoring"
	"github.com/tanksight/refract3d/internal/refraction"
	"github.com/tanksight/refract3d/internal/triangulate"
)

// Config tunes per-unit reconstruction and the batch runner.
type Config struct {
	// MinCameras is the number of usable rays required per unit.
	// Below 2 triangulation is impossible; larger values demand more
	// agreement before a point is produced.
	MinCameras int `json:"min_cameras"`

	// Workers is the batch worker-pool size. Zero means runtime.NumCPU.
	Workers int `json:"workers"`

	// Robust enables outlier rejection in the triangulator.
	Robust bool `json:"robust"`

	// Triangulation holds the triangulator thresholds.
	Triangulation triangulate.Config `json:"triangulation"`

	// CameraWeights gives per-camera ray weights; cameras not listed
	// weigh 1.
	CameraWeights map[string]float64 `json:"camera_weights,omitempty"`

	// ResidualSanity flags (never drops) results whose residual exceeds
	// this value, so downstream filtering can apply domain cutoffs.
	// Zero disables the flag.
	ResidualSanity float64 `json:"residual_sanity,omitempty"`

	// ZMin and ZMax bound the plausible target depth range (the tank).
	// Results outside are flagged OutOfBounds, not errored.
	ZMin float64 `json:"z_min"`
	ZMax float64 `json:"z_max"`
}

// DefaultConfig returns the standard reconstruction settings with depth
// bounds disabled.
func DefaultConfig() Config {
	return Config{
		MinCameras:    2,
		Robust:        true,
		Triangulation: triangulate.DefaultConfig(),
		ZMin:          math.Inf(-1),
		ZMax:          math.Inf(1),
	}
}

// Result is one reconstructed target position. Immutable once produced.
type Result struct {
	Frame  int       `json:"frame"`
	Target int       `json:"target"`
	Point  geom.Vec3 `json:"point"`

	// Residual is the sum of squared perpendicular distances from Point
	// to the rays that produced it.
	Residual     float64 `json:"residual"`
	UsedRayCount int     `json:"used_ray_count"`

	// RejectedRays indexes into the unit's ray list, built in observation
	// order after refraction drops, for rays removed by robust
	// triangulation.
	RejectedRays []int `json:"rejected_rays"`

	// ReprojectionError is the mean pixel distance between each used
	// camera's observed pixel and the reprojection of Point through the
	// interface. Zero when reprojection was not possible.
	ReprojectionError float64 `json:"reprojection_error"`

	// HighResidual marks results exceeding the configured sanity
	// threshold; OutOfBounds marks points outside the depth bounds.
	// Both are flags for downstream filtering, never errors.
	HighResidual bool `json:"high_residual,omitempty"`
	OutOfBounds  bool `json:"out_of_bounds,omitempty"`
}

// Reconstructor composes camera backprojection, refraction correction and
// triangulation for one calibrated multi-camera rig. All state is
// read-only after construction, so one Reconstructor serves any number of
// concurrent units.
type Reconstructor struct {
	cams   map[string]*camera.Model
	solver *refraction.Solver
	cfg    Config
}

// New builds a Reconstructor. Cameras and solver must already be
// validated (NewModel / NewSolver do this); cfg zero values fall back to
// defaults.
func New(cams map[string]*camera.Model, solver *refraction.Solver, cfg Config) (*Reconstructor, error) {
	if len(cams) < 2 {
		return nil, fmt.Errorf("need at least 2 cameras, got %d", len(cams))
	}
	if solver == nil {
		return nil, fmt.Errorf("refraction solver is required")
	}
	if cfg.MinCameras < 2 {
		cfg.MinCameras = 2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ZMin == 0 && cfg.ZMax == 0 {
		cfg.ZMin, cfg.ZMax = math.Inf(-1), math.Inf(1)
	}
	return &Reconstructor{cams: cams, solver: solver, cfg: cfg}, nil
}

// Cameras returns the camera models keyed by ID.
func (r *Reconstructor) Cameras() map[string]*camera.Model { return r.cams }

// ReconstructUnit recovers the 3D position for one (frame, target) group.
// Per-ray refraction failures drop that camera's contribution; the unit
// fails only when fewer than MinCameras usable rays remain or the
// geometry is degenerate.
func (r *Reconstructor) ReconstructUnit(obs []Observation) (Result, error) {
	if len(obs) == 0 {
		return Result{}, fmt.Errorf("no observations in unit")
	}
	key := UnitKey{Frame: obs[0].Frame, Target: obs[0].Target}
	for _, o := range obs[1:] {
		if o.Frame != key.Frame || o.Target != key.Target {
			return Result{}, fmt.Errorf("mixed units: observation for frame=%d target=%d in unit frame=%d target=%d",
				o.Frame, o.Target, key.Frame, key.Target)
		}
	}

	rays := make([]geom.Ray, 0, len(obs))
	weights := make([]float64, 0, len(obs))
	rayCams := make([]string, 0, len(obs))
	seen := make(map[string]bool, len(obs))
	for _, o := range obs {
		cam, ok := r.cams[o.CameraID]
		if !ok {
			return Result{}, fmt.Errorf("unknown camera %q in frame=%d target=%d", o.CameraID, key.Frame, key.Target)
		}
		if seen[o.CameraID] {
			return Result{}, fmt.Errorf("duplicate observation from camera %q in frame=%d target=%d", o.CameraID, key.Frame, key.Target)
		}
		seen[o.CameraID] = true

		airRay, err := cam.Backproject(o.Pixel)
		if err != nil {
			return Result{}, err
		}
		waterRay, err := r.solver.RefractRay(airRay)
		if err != nil {
			monitoring.Logf("reconstruct: dropping camera %s for frame=%d target=%d: %v", o.CameraID, key.Frame, key.Target, err)
			continue
		}
		rays = append(rays, waterRay)
		weights = append(weights, r.weightFor(o.CameraID))
		rayCams = append(rayCams, o.CameraID)
	}
	if len(rays) < r.cfg.MinCameras {
		return Result{}, &triangulate.GeometryError{
			Reason: fmt.Sprintf("frame=%d target=%d: %d usable rays, need %d", key.Frame, key.Target, len(rays), r.cfg.MinCameras),
		}
	}

	var tri triangulate.Result
	var err error
	if r.cfg.Robust {
		tri, err = triangulate.SolveRobust(rays, weights, r.cfg.Triangulation)
	} else {
		tri, err = triangulate.Solve(rays, weights, r.cfg.Triangulation)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Frame:        key.Frame,
		Target:       key.Target,
		Point:        tri.Point,
		Residual:     tri.Residual,
		UsedRayCount: tri.UsedRayCount,
		RejectedRays: tri.RejectedRays,
	}
	res.ReprojectionError = r.reprojectionError(obs, rayCams, tri, res.Point)
	if r.cfg.ResidualSanity > 0 && res.Residual > r.cfg.ResidualSanity {
		res.HighResidual = true
	}
	if res.Point.Z < r.cfg.ZMin || res.Point.Z > r.cfg.ZMax {
		res.OutOfBounds = true
	}
	return res, nil
}

func (r *Reconstructor) weightFor(cameraID string) float64 {
	if w, ok := r.cfg.CameraWeights[cameraID]; ok && w > 0 {
		return w
	}
	return 1
}

// reprojectionError projects the solved point back through the interface
// into each used camera and averages the pixel distance to the observed
// detection. Cameras whose reprojection fails are skipped.
func (r *Reconstructor) reprojectionError(obs []Observation, rayCams []string, tri triangulate.Result, p geom.Vec3) float64 {
	rejected := make(map[int]bool, len(tri.RejectedRays))
	for _, idx := range tri.RejectedRays {
		rejected[idx] = true
	}
	byCam := make(map[string]camera.Pixel, len(obs))
	for _, o := range obs {
		byCam[o.CameraID] = o.Pixel
	}

	var total float64
	var n int
	for i, camID := range rayCams {
		if rejected[i] {
			continue
		}
		cam := r.cams[camID]
		crossing, err := r.solver.CrossingPoint(cam.Centre(), p)
		if err != nil {
			continue
		}
		px, err := cam.Project(crossing)
		if err != nil {
			continue
		}
		total += px.Dist(byCam[camID])
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
