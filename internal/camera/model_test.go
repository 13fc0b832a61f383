package camera_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanksight/refract3d/internal/camera"
	"github.com/tanksight/refract3d/internal/geom"
	"github.com/tanksight/refract3d/internal/testutil"
)

func testModel(t *testing.T, distortion [5]float64) *camera.Model {
	t.Helper()
	cal := testutil.LookAtCalibration(
		geom.Vec3{X: 0.5, Y: -0.3, Z: 2}, geom.Vec3{Z: -1},
		1200, 1200, 960, 540,
	)
	cal.Distortion = distortion
	m, err := camera.NewModel("cam0", cal)
	require.NoError(t, err)
	return m
}

func TestBackprojectProjectRoundTrip(t *testing.T) {
	t.Parallel()
	m := testModel(t, [5]float64{})

	points := []geom.Vec3{
		{Z: -1},
		{X: 0.2, Y: -0.1, Z: -0.5},
		{X: -0.4, Y: 0.3, Z: -1.5},
	}
	for _, p := range points {
		px, err := m.Project(p)
		require.NoError(t, err)
		ray, err := m.Backproject(px)
		require.NoError(t, err)

		assert.Less(t, ray.PerpDistance(p), 1e-6,
			"backprojected ray should pass through %v", p)
		assert.InDelta(t, 1, ray.Dir.Norm(), 1e-12, "ray direction must be unit")
	}
}

func TestBackprojectProjectRoundTrip_WithDistortion(t *testing.T) {
	t.Parallel()
	m := testModel(t, [5]float64{0.02, 0.001, 1e-4, 1e-4, 1e-5})

	p := geom.Vec3{X: 0.3, Y: 0.2, Z: -1}
	px, err := m.Project(p)
	require.NoError(t, err)
	ray, err := m.Backproject(px)
	require.NoError(t, err)
	assert.Less(t, ray.PerpDistance(p), 1e-6)
}

func TestBackproject_RayOriginIsCameraCentre(t *testing.T) {
	t.Parallel()
	m := testModel(t, [5]float64{})
	ray, err := m.Backproject(camera.Pixel{U: 960, V: 540})
	require.NoError(t, err)
	assert.Equal(t, m.Centre(), ray.Origin)
	assert.InDelta(t, 0.5, m.Centre().X, 1e-12)
	assert.InDelta(t, -0.3, m.Centre().Y, 1e-12)
	assert.InDelta(t, 2, m.Centre().Z, 1e-12)

	// The principal-point ray is the optical axis, which was aimed at
	// (0,0,-1) from (0.5,-0.3,2).
	assert.Less(t, ray.PerpDistance(geom.Vec3{Z: -1}), 1e-9)
}

func TestProject_BehindCamera(t *testing.T) {
	t.Parallel()
	m := testModel(t, [5]float64{})
	// The camera looks down from z=2; a point far above it is behind.
	_, err := m.Project(geom.Vec3{Z: 100})
	assert.Error(t, err)
}

func TestBackproject_NonFinitePixel(t *testing.T) {
	t.Parallel()
	m := testModel(t, [5]float64{})
	_, err := m.Backproject(camera.Pixel{U: math.NaN(), V: 0})
	var calErr *camera.CalibrationError
	assert.ErrorAs(t, err, &calErr)
}

func TestNewModel_DegenerateCalibrations(t *testing.T) {
	t.Parallel()
	base := testutil.LookAtCalibration(geom.Vec3{Z: 2}, geom.Vec3{Z: -1}, 1200, 1200, 960, 540)

	cases := []struct {
		name   string
		mutate func(*camera.Calibration)
	}{
		{"zero focal x", func(c *camera.Calibration) { c.FocalX = 0 }},
		{"nan focal y", func(c *camera.Calibration) { c.FocalY = math.NaN() }},
		{"inf focal x", func(c *camera.Calibration) { c.FocalX = math.Inf(1) }},
		{"nan principal point", func(c *camera.Calibration) { c.CentreX = math.NaN() }},
		{"nan distortion", func(c *camera.Calibration) { c.Distortion[0] = math.NaN() }},
		{"scaled rotation", func(c *camera.Calibration) {
			for i := range c.Rotation {
				c.Rotation[i] *= 2
			}
		}},
		{"reflection", func(c *camera.Calibration) {
			// Negating one row flips the determinant to -1.
			c.Rotation[0], c.Rotation[1], c.Rotation[2] = -c.Rotation[0], -c.Rotation[1], -c.Rotation[2]
		}},
		{"nan translation", func(c *camera.Calibration) { c.Translation[2] = math.NaN() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cal := base
			tc.mutate(&cal)
			_, err := camera.NewModel("bad", cal)
			var calErr *camera.CalibrationError
			require.ErrorAs(t, err, &calErr)
			assert.Equal(t, "bad", calErr.CameraID)
		})
	}
}

func TestUndistortIsInverseOfDistort(t *testing.T) {
	t.Parallel()
	m := testModel(t, [5]float64{-0.05, 0.002, 2e-4, -1e-4, 0})

	// Project then backproject a grid of points; each ray must pass
	// through its source point, which exercises the distortion inverse
	// across the field of view.
	for _, x := range []float64{-0.5, -0.1, 0, 0.2, 0.6} {
		for _, y := range []float64{-0.4, 0, 0.3} {
			p := geom.Vec3{X: x, Y: y, Z: -1}
			px, err := m.Project(p)
			require.NoError(t, err)
			ray, err := m.Backproject(px)
			require.NoError(t, err)
			assert.Less(t, ray.PerpDistance(p), 1e-6, "point (%g,%g)", x, y)
		}
	}
}
