package camera

import (
	"fmt"
	"math"
)

// RotationTolerance is the allowed deviation of the rotation matrix
// determinant from 1 when validating a calibration.
const RotationTolerance = 0.01

// Calibration holds one camera's intrinsic and extrinsic parameters.
// It is immutable once loaded: a Model copies what it needs at
// construction and never writes back.
//
// Conventions:
//   - Distortion is Brown–Conrady in OpenCV order: k1, k2, p1, p2, k3.
//   - Rotation is row-major and maps world coordinates into the camera
//     frame: x_cam = R·x_world + t.
type Calibration struct {
	FocalX  float64 `json:"fx" yaml:"fx"`
	FocalY  float64 `json:"fy" yaml:"fy"`
	CentreX float64 `json:"cx" yaml:"cx"`
	CentreY float64 `json:"cy" yaml:"cy"`

	Distortion  [5]float64 `json:"distortion" yaml:"distortion"`
	Rotation    [9]float64 `json:"rotation" yaml:"rotation"`
	Translation [3]float64 `json:"translation" yaml:"translation"`
}

// CalibrationError reports invalid or degenerate calibration parameters.
// It indicates a setup defect upstream of this engine and is never retried.
type CalibrationError struct {
	CameraID string
	Reason   string
}

func (e *CalibrationError) Error() string {
	if e.CameraID == "" {
		return fmt.Sprintf("invalid calibration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid calibration for camera %q: %s", e.CameraID, e.Reason)
}

// Validate checks the calibration for degenerate parameters: zero or
// non-finite focal lengths, non-finite principal point or distortion, and a
// rotation that is not a proper rotation (determinant ≈ 1, orthonormal rows).
func (c *Calibration) Validate(cameraID string) error {
	for _, f := range []float64{c.FocalX, c.FocalY} {
		if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return &CalibrationError{CameraID: cameraID, Reason: fmt.Sprintf("focal length %g is zero or non-finite", f)}
		}
	}
	for _, v := range []float64{c.CentreX, c.CentreY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &CalibrationError{CameraID: cameraID, Reason: "principal point is non-finite"}
		}
	}
	for _, k := range c.Distortion {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return &CalibrationError{CameraID: cameraID, Reason: "distortion coefficient is non-finite"}
		}
	}
	for _, v := range c.Translation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &CalibrationError{CameraID: cameraID, Reason: "translation is non-finite"}
		}
	}
	if err := validateRotation(c.Rotation); err != nil {
		return &CalibrationError{CameraID: cameraID, Reason: err.Error()}
	}
	return nil
}

// validateRotation checks that a row-major 3x3 matrix is a proper rotation:
// determinant ≈ 1 and unit-length, mutually orthogonal rows.
func validateRotation(r [9]float64) error {
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("rotation matrix has non-finite entries")
		}
	}
	det := r[0]*(r[4]*r[8]-r[5]*r[7]) -
		r[1]*(r[3]*r[8]-r[5]*r[6]) +
		r[2]*(r[3]*r[7]-r[4]*r[6])
	if math.Abs(det-1) > RotationTolerance {
		return fmt.Errorf("rotation determinant %g is not 1 (reflection or scaling)", det)
	}
	for i := 0; i < 3; i++ {
		row := [3]float64{r[3*i], r[3*i+1], r[3*i+2]}
		n := math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
		if math.Abs(n-1) > RotationTolerance {
			return fmt.Errorf("rotation row %d has length %g, expected 1", i, n)
		}
	}
	dot01 := r[0]*r[3] + r[1]*r[4] + r[2]*r[5]
	dot02 := r[0]*r[6] + r[1]*r[7] + r[2]*r[8]
	dot12 := r[3]*r[6] + r[4]*r[7] + r[5]*r[8]
	if math.Abs(dot01) > RotationTolerance || math.Abs(dot02) > RotationTolerance || math.Abs(dot12) > RotationTolerance {
		return fmt.Errorf("rotation rows are not orthogonal")
	}
	return nil
}
