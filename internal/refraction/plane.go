package refraction

import (
	"fmt"
	"math"

	"github.com/tanksight/refract3d/internal/geom"
)

// NormalTolerance is the allowed deviation of the interface normal's
// length from 1. Height is a distance along the normal, so a non-unit
// normal would place the surface somewhere other than where the
// calibration says it is.
const NormalTolerance = 0.01

// Plane is the flat boundary between two refractive media, typically the
// water surface of a tank. The plane is the set of points x with
// x·Normal = Height; Normal must be unit length and points up into the
// incident medium (air), so for the usual z-up world with Normal=(0,0,1)
// the surface is z = Height.
type Plane struct {
	Height float64   `json:"height" yaml:"height"`
	Normal geom.Vec3 `json:"normal" yaml:"normal"`

	// Refractive indices of the incident (camera-side) and transmitted
	// (target-side) media, e.g. 1.0 for air and 1.33 for water.
	IndexIncident    float64 `json:"n_incident" yaml:"n_incident"`
	IndexTransmitted float64 `json:"n_transmitted" yaml:"n_transmitted"`
}

// PlaneError reports invalid interface parameters. Like a camera
// calibration defect it is a setup problem and is never retried.
type PlaneError struct {
	Reason string
}

func (e *PlaneError) Error() string {
	return fmt.Sprintf("invalid interface plane: %s", e.Reason)
}

// Validate checks the plane invariants: positive finite refractive indices
// and a finite unit normal.
func (p Plane) Validate() error {
	for _, n := range []float64{p.IndexIncident, p.IndexTransmitted} {
		if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return &PlaneError{Reason: fmt.Sprintf("refractive index %g is not positive and finite", n)}
		}
	}
	if math.IsNaN(p.Height) || math.IsInf(p.Height, 0) {
		return &PlaneError{Reason: "height is non-finite"}
	}
	if !p.Normal.IsFinite() {
		return &PlaneError{Reason: "normal has non-finite components"}
	}
	_, n := p.Normal.Unit()
	if n < geom.MinDirectionNorm {
		return &PlaneError{Reason: "normal is zero"}
	}
	if math.Abs(n-1) > NormalTolerance {
		return &PlaneError{Reason: fmt.Sprintf("normal has length %g, expected 1", n)}
	}
	return nil
}

// heightAbove returns the signed distance of p from the plane along the
// unit normal: positive on the incident side.
func heightAbove(p geom.Vec3, normal geom.Vec3, height float64) float64 {
	return p.Dot(normal) - height
}
