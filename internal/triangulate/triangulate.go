// Package triangulate finds the 3D point closest to a bundle of skew
// rays: the P minimising Σ wᵢ·‖(I − dᵢdᵢᵀ)(P − oᵢ)‖², where oᵢ and dᵢ are
// each ray's origin and unit direction. The normal equations A·P = b with
// A = Σ wᵢ(I − dᵢdᵢᵀ) and b = Σ wᵢ(I − dᵢdᵢᵀ)oᵢ are solved through an SVD
// so that near-singular geometry (parallel or degenerate ray bundles) is
// detected instead of producing a meaningless point.
package triangulate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tanksight/refract3d/internal/geom"
)

// Config tunes the solve.
type Config struct {
	// OutlierK: in robust mode a ray is rejected while its residual
	// contribution exceeds OutlierK times the median contribution.
	OutlierK float64 `json:"outlier_k"`

	// ResidualFloor is the smallest contribution ever treated as an
	// outlier; it keeps the robust loop from discarding rays whose
	// residuals are pure floating-point noise.
	ResidualFloor float64 `json:"residual_floor"`

	// RankTolerance is the smallest acceptable ratio between the
	// smallest and largest singular values of A before the bundle is
	// declared degenerate.
	RankTolerance float64 `json:"rank_tolerance"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		OutlierK:      3,
		ResidualFloor: 1e-12,
		RankTolerance: 1e-10,
	}
}

// Result is the outcome of one triangulation. Immutable once produced.
type Result struct {
	// Point is the least-squares closest point to the accepted rays.
	Point geom.Vec3
	// Residual is the weighted sum of squared perpendicular distances
	// from Point to each accepted ray.
	Residual float64
	// UsedRayCount is the number of rays contributing to Point.
	UsedRayCount int
	// RejectedRays holds the input indices removed by robust mode,
	// sorted ascending. Empty for the plain solve.
	RejectedRays []int
}

// GeometryError reports a ray bundle that cannot be triangulated: fewer
// than two rays, or directions so close to parallel or degenerate that
// the normal-equations matrix is numerically singular.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("triangulation geometry error: %s", e.Reason)
}

// Solve computes the least-squares closest point for all rays. weights may
// be nil (all rays weigh 1); otherwise it must match rays in length with
// positive finite entries.
func Solve(rays []geom.Ray, weights []float64, cfg Config) (Result, error) {
	w, err := checkInputs(rays, weights)
	if err != nil {
		return Result{}, err
	}
	active := make([]int, len(rays))
	for i := range active {
		active[i] = i
	}
	point, err := solveActive(rays, w, active, cfg)
	if err != nil {
		return Result{}, err
	}
	contrib := contributions(rays, w, active, point)
	return Result{
		Point:        point,
		Residual:     sum(contrib),
		UsedRayCount: len(active),
		RejectedRays: []int{},
	}, nil
}

// SolveRobust behaves like Solve but iteratively rejects the ray with the
// largest residual contribution while that contribution exceeds
// cfg.OutlierK times the median and at least two rays would remain.
func SolveRobust(rays []geom.Ray, weights []float64, cfg Config) (Result, error) {
	w, err := checkInputs(rays, weights)
	if err != nil {
		return Result{}, err
	}
	if cfg.OutlierK <= 0 {
		cfg.OutlierK = DefaultConfig().OutlierK
	}
	if cfg.ResidualFloor <= 0 {
		cfg.ResidualFloor = DefaultConfig().ResidualFloor
	}

	active := make([]int, len(rays))
	for i := range active {
		active[i] = i
	}
	var rejected []int

	for {
		point, err := solveActive(rays, w, active, cfg)
		if err != nil {
			return Result{}, err
		}
		contrib := contributions(rays, w, active, point)

		if len(active) <= 2 {
			return finish(point, contrib, active, rejected), nil
		}
		worst, worstVal := argmax(contrib)
		threshold := cfg.OutlierK * median(contrib)
		if threshold < cfg.ResidualFloor {
			threshold = cfg.ResidualFloor
		}
		if worstVal <= threshold {
			return finish(point, contrib, active, rejected), nil
		}
		rejected = append(rejected, active[worst])
		active = append(active[:worst], active[worst+1:]...)
	}
}

func finish(point geom.Vec3, contrib []float64, active, rejected []int) Result {
	sort.Ints(rejected)
	if rejected == nil {
		rejected = []int{}
	}
	return Result{
		Point:        point,
		Residual:     sum(contrib),
		UsedRayCount: len(active),
		RejectedRays: rejected,
	}
}

func checkInputs(rays []geom.Ray, weights []float64) ([]float64, error) {
	if len(rays) < 2 {
		return nil, &GeometryError{Reason: fmt.Sprintf("insufficient rays: got %d, need at least 2", len(rays))}
	}
	if weights == nil {
		weights = make([]float64, len(rays))
		for i := range weights {
			weights[i] = 1
		}
		return weights, nil
	}
	if len(weights) != len(rays) {
		return nil, fmt.Errorf("weights length %d does not match ray count %d", len(weights), len(rays))
	}
	for i, w := range weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight %d is %g, must be positive and finite", i, w)
		}
	}
	return weights, nil
}

// solveActive assembles and solves the normal equations over the active
// ray subset.
func solveActive(rays []geom.Ray, weights []float64, active []int, cfg Config) (geom.Vec3, error) {
	if len(active) < 2 {
		return geom.Vec3{}, &GeometryError{Reason: "fewer than 2 rays remain"}
	}
	if cfg.RankTolerance <= 0 {
		cfg.RankTolerance = DefaultConfig().RankTolerance
	}

	var a [9]float64
	var b [3]float64
	for _, idx := range active {
		d := rays[idx].Dir
		o := rays[idx].Origin
		w := weights[idx]

		// w·(I − ddᵀ)
		pxx := w * (1 - d.X*d.X)
		pyy := w * (1 - d.Y*d.Y)
		pzz := w * (1 - d.Z*d.Z)
		pxy := w * (-d.X * d.Y)
		pxz := w * (-d.X * d.Z)
		pyz := w * (-d.Y * d.Z)

		a[0] += pxx
		a[1] += pxy
		a[2] += pxz
		a[3] += pxy
		a[4] += pyy
		a[5] += pyz
		a[6] += pxz
		a[7] += pyz
		a[8] += pzz

		b[0] += pxx*o.X + pxy*o.Y + pxz*o.Z
		b[1] += pxy*o.X + pyy*o.Y + pyz*o.Z
		b[2] += pxz*o.X + pyz*o.Y + pzz*o.Z
	}

	A := mat.NewDense(3, 3, a[:])
	rhs := mat.NewVecDense(3, b[:])

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return geom.Vec3{}, &GeometryError{Reason: "SVD factorisation failed"}
	}
	vals := svd.Values(nil)
	if vals[0] <= 0 || vals[2]/vals[0] < cfg.RankTolerance {
		return geom.Vec3{}, &GeometryError{
			Reason: fmt.Sprintf("ray directions are parallel or degenerate (singular values %v)", vals),
		}
	}

	var x mat.VecDense
	svd.SolveVecTo(&x, rhs, 3)
	p := geom.Vec3{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	if !p.IsFinite() {
		return geom.Vec3{}, &GeometryError{Reason: "solve produced non-finite point"}
	}
	return p, nil
}

// contributions returns each active ray's weighted squared perpendicular
// distance to p, in active order.
func contributions(rays []geom.Ray, weights []float64, active []int, p geom.Vec3) []float64 {
	out := make([]float64, len(active))
	for i, idx := range active {
		out[i] = weights[idx] * rays[idx].PerpDistanceSq(p)
	}
	return out
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func argmax(xs []float64) (int, float64) {
	best, bestVal := 0, xs[0]
	for i, x := range xs {
		if x > bestVal {
			best, bestVal = i, x
		}
	}
	return best, bestVal
}

func median(xs []float64) float64 {
	tmp := make([]float64, len(xs))
	copy(tmp, xs)
	sort.Float64s(tmp)
	n := len(tmp)
	if n%2 == 1 {
		return tmp[n/2]
	}
	return 0.5 * (tmp[n/2-1] + tmp[n/2])
}
