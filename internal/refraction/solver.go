package refraction

import (
	"fmt"
	"math"

	"github.com/tanksight/refract3d/internal/geom"
)

// Solver bends rays across a planar interface according to Snell's law:
// n_i·sin(θ_i) = n_t·sin(θ_t), angles measured from the interface normal.
//
// Two entry points cover the two directions the engine works in:
//
//   - RefractRay takes a ray in the incident medium (a backprojected
//     camera ray) and returns the transmitted ray. The crossing point is
//     the analytic ray/plane intersection; the bent direction comes from
//     the closed-form vector Snell formula.
//
//   - CrossingPoint takes a known point on each side of the interface and
//     finds where the light path between them crosses the plane. There is
//     no closed form when the two points and the normal are not coplanar
//     in a convenient way, so the crossing is found by bisecting
//     f(s) = n_i·sinθ_i(s) − n_t·sinθ_t(s) along the chord between the
//     two points' feet on the plane (Fermat's principle: the true path
//     zeroes f). This is the path reprojection uses.
type Solver struct {
	plane  Plane
	normal geom.Vec3 // unit normal, incident side positive
	cfg    Config
}

// Config bounds the iterative crossing-point search.
type Config struct {
	// DistanceTolerance is the world-unit accuracy required of the
	// crossing point.
	DistanceTolerance float64 `json:"distance_tolerance"`
	// MaxIterations caps the bisection steps before giving up.
	MaxIterations int `json:"max_iterations"`
}

// DefaultConfig returns the solver defaults: 1e-6 world units, 50 steps.
func DefaultConfig() Config {
	return Config{DistanceTolerance: 1e-6, MaxIterations: 50}
}

// SolveError reports a refraction failure: a ray that cannot cross the
// interface, total internal reflection, or a crossing-point search that
// did not converge within the iteration cap. It is surfaced per ray; the
// caller decides whether to drop the affected camera's contribution.
type SolveError struct {
	Reason     string
	Iterations int
}

func (e *SolveError) Error() string {
	if e.Iterations > 0 {
		return fmt.Sprintf("refraction solve failed after %d iterations: %s", e.Iterations, e.Reason)
	}
	return fmt.Sprintf("refraction solve failed: %s", e.Reason)
}

// NewSolver validates the plane and returns a solver. cfg fields that are
// zero fall back to DefaultConfig values.
func NewSolver(plane Plane, cfg Config) (*Solver, error) {
	if err := plane.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.DistanceTolerance <= 0 {
		cfg.DistanceTolerance = def.DistanceTolerance
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	unit, _ := plane.Normal.Unit()
	return &Solver{plane: plane, normal: unit, cfg: cfg}, nil
}

// Plane returns the interface the solver was built with.
func (s *Solver) Plane() Plane { return s.plane }

// RefractRay bends an incident-medium ray across the interface. The
// returned ray starts at the crossing point with the transmitted unit
// direction. Fails if the ray does not head into the interface or if the
// transmitted angle would be physically impossible.
func (s *Solver) RefractRay(ray geom.Ray) (geom.Ray, error) {
	descent := ray.Dir.Dot(s.normal)
	if descent >= -geom.MinDirectionNorm {
		return geom.Ray{}, &SolveError{Reason: "ray does not travel toward the interface"}
	}
	t := -heightAbove(ray.Origin, s.normal, s.plane.Height) / descent
	if t <= 0 {
		return geom.Ray{}, &SolveError{Reason: "interface crossing lies behind the ray origin"}
	}
	hit := ray.At(t)
	bent, err := s.bend(ray.Dir)
	if err != nil {
		return geom.Ray{}, err
	}
	return geom.NewRay(hit, bent)
}

// bend applies the vector form of Snell's law to a unit direction heading
// into the interface (dir·normal < 0).
func (s *Solver) bend(dir geom.Vec3) (geom.Vec3, error) {
	eta := s.plane.IndexIncident / s.plane.IndexTransmitted
	cosI := -dir.Dot(s.normal)
	sin2T := eta * eta * (1 - cosI*cosI)
	if sin2T > 1 {
		return geom.Vec3{}, &SolveError{
			Reason: fmt.Sprintf("total internal reflection: sin(theta_t)=%g exceeds 1", math.Sqrt(sin2T)),
		}
	}
	cosT := math.Sqrt(1 - sin2T)
	return dir.Scale(eta).Add(s.normal.Scale(eta*cosI - cosT)), nil
}

// CrossingPoint finds where the light path from `above` (incident medium)
// to `below` (transmitted medium) crosses the interface. Both points must
// lie strictly on their respective sides of the plane.
func (s *Solver) CrossingPoint(above, below geom.Vec3) (geom.Vec3, error) {
	hA := heightAbove(above, s.normal, s.plane.Height)
	hB := heightAbove(below, s.normal, s.plane.Height)
	if hA <= 0 || hB >= 0 {
		return geom.Vec3{}, &SolveError{
			Reason: fmt.Sprintf("points do not straddle the interface (heights %g, %g)", hA, hB),
		}
	}

	footA := above.Sub(s.normal.Scale(hA))
	footB := below.Sub(s.normal.Scale(hB))
	chord := footB.Sub(footA)
	span := chord.Norm()
	if span < s.cfg.DistanceTolerance {
		// Camera sits directly over the target; the path is vertical.
		return footA, nil
	}

	nI, nT := s.plane.IndexIncident, s.plane.IndexTransmitted

	// f(s) = n_i·sinθ_i − n_t·sinθ_t at the candidate point footA + s·chord.
	// f(0) < 0, f(1) > 0 and f is monotone, so bisection converges.
	f := func(sv float64) float64 {
		dI := sv * span
		dT := (1 - sv) * span
		sinI := dI / math.Sqrt(hA*hA+dI*dI)
		sinT := dT / math.Sqrt(hB*hB+dT*dT)
		return nI*sinI - nT*sinT
	}

	lo, hi := 0.0, 1.0
	for i := 0; i < s.cfg.MaxIterations; i++ {
		mid := 0.5 * (lo + hi)
		if f(mid) > 0 {
			hi = mid
		} else {
			lo = mid
		}
		if (hi-lo)*span < s.cfg.DistanceTolerance {
			return footA.Add(chord.Scale(0.5 * (lo + hi))), nil
		}
	}
	return geom.Vec3{}, &SolveError{
		Reason:     fmt.Sprintf("crossing point not within %g world units", s.cfg.DistanceTolerance),
		Iterations: s.cfg.MaxIterations,
	}
}

// Refract returns the transmitted ray of the light path from `above` to
// `below`: origin at the solved crossing point, direction from Snell's law
// applied to the incident leg.
func (s *Solver) Refract(above, below geom.Vec3) (geom.Ray, error) {
	q, err := s.CrossingPoint(above, below)
	if err != nil {
		return geom.Ray{}, err
	}
	incident, n := q.Sub(above).Unit()
	if n < geom.MinDirectionNorm {
		return geom.Ray{}, &SolveError{Reason: "camera position coincides with the crossing point"}
	}
	bent, err := s.bend(incident)
	if err != nil {
		return geom.Ray{}, err
	}
	return geom.NewRay(q, bent)
}
