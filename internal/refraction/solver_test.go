package refraction_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanksight/refract3d/internal/geom"
	"github.com/tanksight/refract3d/internal/refraction"
)

func waterPlane(height float64) refraction.Plane {
	return refraction.Plane{
		Height:           height,
		Normal:           geom.Vec3{Z: 1},
		IndexIncident:    1.0,
		IndexTransmitted: 1.33,
	}
}

func TestPlaneValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, waterPlane(0).Validate())

	cases := []struct {
		name   string
		mutate func(*refraction.Plane)
	}{
		{"zero incident index", func(p *refraction.Plane) { p.IndexIncident = 0 }},
		{"negative transmitted index", func(p *refraction.Plane) { p.IndexTransmitted = -1.33 }},
		{"nan index", func(p *refraction.Plane) { p.IndexIncident = math.NaN() }},
		{"zero normal", func(p *refraction.Plane) { p.Normal = geom.Vec3{} }},
		{"nan normal", func(p *refraction.Plane) { p.Normal = geom.Vec3{X: math.NaN()} }},
		{"scaled normal", func(p *refraction.Plane) { p.Normal = geom.Vec3{Z: 2}; p.Height = 1 }},
		{"short normal", func(p *refraction.Plane) { p.Normal = geom.Vec3{Z: 0.5} }},
		{"inf height", func(p *refraction.Plane) { p.Height = math.Inf(1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := waterPlane(0)
			tc.mutate(&p)
			var planeErr *refraction.PlaneError
			require.ErrorAs(t, p.Validate(), &planeErr)
		})
	}
}

// sinFromNormal returns the sine of the angle between dir and the plane
// normal's axis.
func sinFromNormal(dir geom.Vec3, normal geom.Vec3) float64 {
	cos := math.Abs(dir.Dot(normal))
	return math.Sqrt(1 - cos*cos)
}

func TestRefractRay_SnellSatisfied(t *testing.T) {
	t.Parallel()
	plane := waterPlane(0)
	s, err := refraction.NewSolver(plane, refraction.DefaultConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		// Incidence angle up to ~85°, any azimuth, origin above water.
		theta := rng.Float64() * 85 * math.Pi / 180
		phi := rng.Float64() * 2 * math.Pi
		dir := geom.Vec3{
			X: math.Sin(theta) * math.Cos(phi),
			Y: math.Sin(theta) * math.Sin(phi),
			Z: -math.Cos(theta),
		}
		origin := geom.Vec3{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*4 - 2,
			Z: 0.5 + rng.Float64()*3,
		}
		ray, err := geom.NewRay(origin, dir)
		require.NoError(t, err)

		bent, err := s.RefractRay(ray)
		require.NoError(t, err, "incidence %g deg", theta*180/math.Pi)

		sinI := sinFromNormal(ray.Dir, plane.Normal)
		sinT := sinFromNormal(bent.Dir, plane.Normal)
		assert.InDelta(t, plane.IndexIncident*sinI, plane.IndexTransmitted*sinT, 1e-6)

		// The crossing point lies on the surface and the bent ray heads down.
		assert.InDelta(t, 0, bent.Origin.Z, 1e-9)
		assert.Less(t, bent.Dir.Z, 0.0)
		assert.InDelta(t, 1, bent.Dir.Norm(), 1e-12)
	}
}

func TestRefractRay_BendsTowardNormal(t *testing.T) {
	t.Parallel()
	s, err := refraction.NewSolver(waterPlane(0), refraction.DefaultConfig())
	require.NoError(t, err)

	ray, err := geom.NewRay(geom.Vec3{Z: 1}, geom.Vec3{X: 1, Z: -1})
	require.NoError(t, err)
	bent, err := s.RefractRay(ray)
	require.NoError(t, err)

	// Entering the denser medium the transmitted angle must be smaller.
	sinI := sinFromNormal(ray.Dir, geom.Vec3{Z: 1})
	sinT := sinFromNormal(bent.Dir, geom.Vec3{Z: 1})
	assert.Less(t, sinT, sinI)
}

func TestRefractRay_VerticalPassesStraight(t *testing.T) {
	t.Parallel()
	s, err := refraction.NewSolver(waterPlane(-0.5), refraction.DefaultConfig())
	require.NoError(t, err)

	ray, err := geom.NewRay(geom.Vec3{X: 1, Y: 2, Z: 3}, geom.Vec3{Z: -1})
	require.NoError(t, err)
	bent, err := s.RefractRay(ray)
	require.NoError(t, err)

	assert.InDelta(t, 1, bent.Origin.X, 1e-12)
	assert.InDelta(t, 2, bent.Origin.Y, 1e-12)
	assert.InDelta(t, -0.5, bent.Origin.Z, 1e-12)
	assert.InDelta(t, -1, bent.Dir.Z, 1e-12)
}

func TestRefractRay_Failures(t *testing.T) {
	t.Parallel()
	s, err := refraction.NewSolver(waterPlane(0), refraction.DefaultConfig())
	require.NoError(t, err)

	t.Run("ray away from interface", func(t *testing.T) {
		ray, err := geom.NewRay(geom.Vec3{Z: 1}, geom.Vec3{Z: 1})
		require.NoError(t, err)
		_, err = s.RefractRay(ray)
		var solveErr *refraction.SolveError
		assert.ErrorAs(t, err, &solveErr)
	})

	t.Run("origin below interface", func(t *testing.T) {
		ray, err := geom.NewRay(geom.Vec3{Z: -1}, geom.Vec3{Z: -1})
		require.NoError(t, err)
		_, err = s.RefractRay(ray)
		assert.Error(t, err)
	})

	t.Run("total internal reflection", func(t *testing.T) {
		// Water to air beyond the critical angle (~48.6°).
		inverted := refraction.Plane{
			Height:           0,
			Normal:           geom.Vec3{Z: 1},
			IndexIncident:    1.33,
			IndexTransmitted: 1.0,
		}
		si, err := refraction.NewSolver(inverted, refraction.DefaultConfig())
		require.NoError(t, err)

		theta := 60 * math.Pi / 180
		ray, err := geom.NewRay(geom.Vec3{Z: 1}, geom.Vec3{X: math.Sin(theta), Z: -math.Cos(theta)})
		require.NoError(t, err)
		_, err = si.RefractRay(ray)
		var solveErr *refraction.SolveError
		require.ErrorAs(t, err, &solveErr)
		assert.Contains(t, solveErr.Error(), "total internal reflection")
	})
}

func TestCrossingPoint_VerticalAndStraddle(t *testing.T) {
	t.Parallel()
	s, err := refraction.NewSolver(waterPlane(0), refraction.DefaultConfig())
	require.NoError(t, err)

	t.Run("camera directly above target", func(t *testing.T) {
		q, err := s.CrossingPoint(geom.Vec3{X: 1, Y: 1, Z: 2}, geom.Vec3{X: 1, Y: 1, Z: -3})
		require.NoError(t, err)
		assert.InDelta(t, 1, q.X, 1e-9)
		assert.InDelta(t, 1, q.Y, 1e-9)
		assert.InDelta(t, 0, q.Z, 1e-9)
	})

	t.Run("both above", func(t *testing.T) {
		_, err := s.CrossingPoint(geom.Vec3{Z: 2}, geom.Vec3{X: 1, Z: 1})
		var solveErr *refraction.SolveError
		assert.ErrorAs(t, err, &solveErr)
	})

	t.Run("both below", func(t *testing.T) {
		_, err := s.CrossingPoint(geom.Vec3{Z: -2}, geom.Vec3{X: 1, Z: -1})
		assert.Error(t, err)
	})
}

func TestRefract_PathReachesTarget(t *testing.T) {
	t.Parallel()
	plane := waterPlane(0)
	s, err := refraction.NewSolver(plane, refraction.Config{DistanceTolerance: 1e-9, MaxIterations: 50})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		above := geom.Vec3{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*4 - 2,
			Z: 0.5 + rng.Float64()*2,
		}
		below := geom.Vec3{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*4 - 2,
			Z: -0.2 - rng.Float64()*2,
		}

		bent, err := s.Refract(above, below)
		require.NoError(t, err)

		// Fermat's crossing point makes the Snell-bent incident ray pass
		// through the target.
		assert.Less(t, bent.PerpDistance(below), 1e-5,
			"above=%v below=%v", above, below)

		// And Snell's law holds at the crossing.
		incident, _ := bent.Origin.Sub(above).Unit()
		sinI := sinFromNormal(incident, plane.Normal)
		sinT := sinFromNormal(bent.Dir, plane.Normal)
		assert.InDelta(t, plane.IndexIncident*sinI, plane.IndexTransmitted*sinT, 1e-6)
	}
}

func TestCrossingPoint_AgreesWithRefractRay(t *testing.T) {
	t.Parallel()
	s, err := refraction.NewSolver(waterPlane(0), refraction.Config{DistanceTolerance: 1e-9, MaxIterations: 50})
	require.NoError(t, err)

	// Build a ray, bend it, pick a point on the bent leg, and check the
	// crossing solver recovers the same interface point.
	above := geom.Vec3{X: -1, Y: 0.5, Z: 1.5}
	ray, err := geom.NewRay(above, geom.Vec3{X: 0.4, Y: -0.2, Z: -1})
	require.NoError(t, err)
	bent, err := s.RefractRay(ray)
	require.NoError(t, err)

	below := bent.At(1.2)
	q, err := s.CrossingPoint(above, below)
	require.NoError(t, err)

	assert.Less(t, q.Sub(bent.Origin).Norm(), 1e-6)
}

func TestCrossingPoint_IterationCapExceeded(t *testing.T) {
	t.Parallel()
	// A tolerance no bisection step can reach within two halvings.
	s, err := refraction.NewSolver(waterPlane(0), refraction.Config{DistanceTolerance: 1e-15, MaxIterations: 2})
	require.NoError(t, err)

	_, err = s.CrossingPoint(geom.Vec3{X: -2, Z: 1.5}, geom.Vec3{X: 2, Z: -1.5})
	var solveErr *refraction.SolveError
	require.ErrorAs(t, err, &solveErr)
	assert.Equal(t, 2, solveErr.Iterations)
}

func TestNewSolver_RejectsNonUnitNormal(t *testing.T) {
	t.Parallel()
	p := waterPlane(1)
	p.Normal = geom.Vec3{Z: 2}
	_, err := refraction.NewSolver(p, refraction.DefaultConfig())
	var planeErr *refraction.PlaneError
	require.ErrorAs(t, err, &planeErr)
}

func TestNewSolver_InvalidPlane(t *testing.T) {
	t.Parallel()
	p := waterPlane(0)
	p.IndexTransmitted = 0
	_, err := refraction.NewSolver(p, refraction.DefaultConfig())
	assert.Error(t, err)
}
