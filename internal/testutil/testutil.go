// Package testutil provides shared geometry fixtures for tests: synthetic
// camera rigs looking down into a tank through a refractive surface, and
// observation generation from known 3D positions.
package testutil

import (
	"fmt"
	"math"

	"github.com/tanksight/refract3d/internal/camera"
	"github.com/tanksight/refract3d/internal/geom"
	"github.com/tanksight/refract3d/internal/reconstruct"
	"github.com/tanksight/refract3d/internal/refraction"
)

// LookAtCalibration builds a distortion-free calibration for a camera at
// position c whose optical axis points at target.
func LookAtCalibration(c, target geom.Vec3, fx, fy, cx, cy float64) camera.Calibration {
	forward, _ := target.Sub(c).Unit()
	up := geom.Vec3{Z: 1}
	if math.Abs(forward.Dot(up)) > 0.999 {
		up = geom.Vec3{Y: 1}
	}
	right, _ := up.Cross(forward).Unit()
	down := forward.Cross(right)

	// Rows of the world→camera rotation are the camera axes expressed in
	// world coordinates; det = +1 by construction.
	r := [9]float64{
		right.X, right.Y, right.Z,
		down.X, down.Y, down.Z,
		forward.X, forward.Y, forward.Z,
	}
	// Camera centre must map to the camera-frame origin: t = -R·c.
	t := [3]float64{
		-(r[0]*c.X + r[1]*c.Y + r[2]*c.Z),
		-(r[3]*c.X + r[4]*c.Y + r[5]*c.Z),
		-(r[6]*c.X + r[7]*c.Y + r[8]*c.Z),
	}
	return camera.Calibration{
		FocalX: fx, FocalY: fy, CentreX: cx, CentreY: cy,
		Rotation: r, Translation: t,
	}
}

// TankRig builds n cameras on a circle of the given radius at the given
// height, all aimed at a point below the water surface, plus an air→water
// interface plane at waterLevel.
func TankRig(n int, height, radius, waterLevel float64) (map[string]camera.Calibration, refraction.Plane) {
	aim := geom.Vec3{Z: waterLevel - 1}
	cals := make(map[string]camera.Calibration, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pos := geom.Vec3{
			X: radius * math.Cos(angle),
			Y: radius * math.Sin(angle),
			Z: height,
		}
		cals[fmt.Sprintf("cam%d", i)] = LookAtCalibration(pos, aim, 1200, 1200, 960, 540)
	}
	plane := refraction.Plane{
		Height:           waterLevel,
		Normal:           geom.Vec3{Z: 1},
		IndexIncident:    1.0,
		IndexTransmitted: 1.33,
	}
	return cals, plane
}

// Observe produces the pixel each camera would record for an underwater
// point: the light path is solved with the Fermat crossing and the
// crossing point is projected through the camera. Cameras that cannot see
// the point are skipped.
func Observe(cams map[string]*camera.Model, solver *refraction.Solver, p geom.Vec3, frame, target int) []reconstruct.Observation {
	var obs []reconstruct.Observation
	for id, cam := range cams {
		crossing, err := solver.CrossingPoint(cam.Centre(), p)
		if err != nil {
			continue
		}
		px, err := cam.Project(crossing)
		if err != nil {
			continue
		}
		obs = append(obs, reconstruct.Observation{
			CameraID: id,
			Pixel:    px,
			Frame:    frame,
			Target:   target,
		})
	}
	return obs
}
