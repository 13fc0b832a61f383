package camera

import (
	"fmt"
	"math"

	"github.com/tanksight/refract3d/internal/geom"
)

// undistortIterations is the number of fixed-point steps used to invert the
// Brown–Conrady distortion. Five steps reduce the residual below pixel
// noise for the lens strengths seen in practice.
const undistortIterations = 5

// minProjectDepth is the smallest camera-frame depth accepted by Project.
// Points at or behind the image plane have no projection.
const minProjectDepth = 1e-9

// Pixel is a 2D image coordinate: U along columns, V along rows.
type Pixel struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Dist returns the Euclidean distance to another pixel.
func (p Pixel) Dist(q Pixel) float64 {
	du, dv := p.U-q.U, p.V-q.V
	return math.Sqrt(du*du + dv*dv)
}

// Model converts between pixel coordinates and world-space rays for one
// calibrated camera. It is read-only after construction and safe to share
// across goroutines.
type Model struct {
	id  string
	cal Calibration

	// Precomputed camera→world rotation (transpose of cal.Rotation) and
	// the camera centre in world coordinates (-Rᵀ·t).
	rotT   [9]float64
	centre geom.Vec3
}

// NewModel validates the calibration and precomputes the inverse pose.
func NewModel(id string, cal Calibration) (*Model, error) {
	if err := cal.Validate(id); err != nil {
		return nil, err
	}
	m := &Model{id: id, cal: cal}
	r := cal.Rotation
	m.rotT = [9]float64{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
	t := cal.Translation
	m.centre = geom.Vec3{
		X: -(m.rotT[0]*t[0] + m.rotT[1]*t[1] + m.rotT[2]*t[2]),
		Y: -(m.rotT[3]*t[0] + m.rotT[4]*t[1] + m.rotT[5]*t[2]),
		Z: -(m.rotT[6]*t[0] + m.rotT[7]*t[1] + m.rotT[8]*t[2]),
	}
	return m, nil
}

// ID returns the camera identifier the model was built with.
func (m *Model) ID() string { return m.id }

// Centre returns the camera centre in world coordinates.
func (m *Model) Centre() geom.Vec3 { return m.centre }

// Backproject maps a pixel to the world-space ray of scene points that
// image there: undistort, invert the intrinsics, rotate into the world
// frame, anchored at the camera centre.
func (m *Model) Backproject(px Pixel) (geom.Ray, error) {
	if math.IsNaN(px.U) || math.IsInf(px.U, 0) || math.IsNaN(px.V) || math.IsInf(px.V, 0) {
		return geom.Ray{}, &CalibrationError{CameraID: m.id, Reason: fmt.Sprintf("non-finite pixel (%g, %g)", px.U, px.V)}
	}
	xd := (px.U - m.cal.CentreX) / m.cal.FocalX
	yd := (px.V - m.cal.CentreY) / m.cal.FocalY
	xn, yn := m.undistort(xd, yd)

	dirCam := geom.Vec3{X: xn, Y: yn, Z: 1}
	dirWorld := geom.Vec3{
		X: m.rotT[0]*dirCam.X + m.rotT[1]*dirCam.Y + m.rotT[2]*dirCam.Z,
		Y: m.rotT[3]*dirCam.X + m.rotT[4]*dirCam.Y + m.rotT[5]*dirCam.Z,
		Z: m.rotT[6]*dirCam.X + m.rotT[7]*dirCam.Y + m.rotT[8]*dirCam.Z,
	}
	return geom.NewRay(m.centre, dirWorld)
}

// Project maps a world point to its pixel coordinate: world→camera pose,
// perspective divide, distortion, intrinsics. Points at or behind the
// camera plane cannot be projected.
func (m *Model) Project(p geom.Vec3) (Pixel, error) {
	r, t := m.cal.Rotation, m.cal.Translation
	xc := r[0]*p.X + r[1]*p.Y + r[2]*p.Z + t[0]
	yc := r[3]*p.X + r[4]*p.Y + r[5]*p.Z + t[1]
	zc := r[6]*p.X + r[7]*p.Y + r[8]*p.Z + t[2]
	if zc < minProjectDepth {
		return Pixel{}, fmt.Errorf("camera %q: point %v is behind the image plane (depth %g)", m.id, p, zc)
	}
	xn, yn := xc/zc, yc/zc
	xd, yd := m.distort(xn, yn)
	return Pixel{
		U: m.cal.FocalX*xd + m.cal.CentreX,
		V: m.cal.FocalY*yd + m.cal.CentreY,
	}, nil
}

// distort applies the forward Brown–Conrady model to normalised
// coordinates.
func (m *Model) distort(x, y float64) (xd, yd float64) {
	k1, k2, p1, p2, k3 := m.cal.Distortion[0], m.cal.Distortion[1], m.cal.Distortion[2], m.cal.Distortion[3], m.cal.Distortion[4]
	r2 := x*x + y*y
	radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
	xd = x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd = y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return
}

// undistort inverts distort by fixed-point iteration.
func (m *Model) undistort(xd, yd float64) (x, y float64) {
	k1, k2, p1, p2, k3 := m.cal.Distortion[0], m.cal.Distortion[1], m.cal.Distortion[2], m.cal.Distortion[3], m.cal.Distortion[4]
	x, y = xd, yd
	for i := 0; i < undistortIterations; i++ {
		r2 := x*x + y*y
		radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		x = (xd - dx) / radial
		y = (yd - dy) / radial
	}
	return
}
