package geom

import (
	"fmt"
	"math"
)

// MinDirectionNorm is the smallest direction vector length accepted when
// constructing a ray. Anything shorter cannot be normalised reliably.
const MinDirectionNorm = 1e-12

// Ray is a half-line in world space: Origin plus non-negative multiples of
// Dir. Dir is always unit length; construct rays through NewRay so the
// invariant holds.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// NewRay builds a ray from an origin and a (not necessarily unit) direction.
// The direction is normalised; a zero, near-zero or non-finite direction is
// rejected.
func NewRay(origin, dir Vec3) (Ray, error) {
	if !origin.IsFinite() || !dir.IsFinite() {
		return Ray{}, fmt.Errorf("ray has non-finite components: origin=%v dir=%v", origin, dir)
	}
	unit, n := dir.Unit()
	if n < MinDirectionNorm {
		return Ray{}, fmt.Errorf("ray direction too short to normalise: |dir|=%g", n)
	}
	return Ray{Origin: origin, Dir: unit}, nil
}

// At returns the point Origin + t*Dir.
func (r Ray) At(t float64) Vec3 { return r.Origin.Add(r.Dir.Scale(t)) }

// PerpDistanceSq returns the squared perpendicular distance from p to the
// infinite line carrying r.
func (r Ray) PerpDistanceSq(p Vec3) float64 {
	d := p.Sub(r.Origin)
	along := d.Dot(r.Dir)
	dsq := d.NormSq() - along*along
	if dsq < 0 {
		// Cancellation can push an exact-intersection result just below zero.
		return 0
	}
	return dsq
}

// PerpDistance returns the perpendicular distance from p to the infinite
// line carrying r.
func (r Ray) PerpDistance(p Vec3) float64 {
	return math.Sqrt(r.PerpDistanceSq(p))
}
