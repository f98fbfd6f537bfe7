package pose

import (
	"math"
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const sampleSize = 4

// Result is the outcome of one robust estimation.
type Result struct {
	OK          bool
	Method      EstimationMethod
	Homography  Homography
	Rotation    [9]float64
	Translation r3.Vector
	Inliers     int
	InlierMask  []bool
	Iterations  int
	MeanError   float64
}

// Extrinsic returns result pose as row-major 4x4 matrix
func (result Result) Extrinsic() [16]float64 {
	return composeExtrinsic(result.Rotation, result.Translation)
}

// consensus is the best model found by a sampling strategy
type consensus struct {
	homography Homography
	inliers    []bool
	count      int
	score      float64
	iterations int
}

// Estimator fits plane pose to reference/scene correspondences with one of
// the robust methods. Estimator is not safe for concurrent use.
type Estimator struct {
	method        EstimationMethod
	threshold     float64
	confidence    float64
	maxIterations int
	timeout       time.Duration
	minInliers    int
	refine        bool
	rng           *rand.Rand
}

// NewEstimatorDefault creates RANSAC estimator with default settings
func NewEstimatorDefault() *Estimator {
	return NewEstimator(NewDefaultConfig())
}

// NewEstimator creates estimator from validated configuration
func NewEstimator(cfg Config) *Estimator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Estimator{
		method:        cfg.Method,
		threshold:     cfg.ReprojectionError,
		confidence:    cfg.Confidence,
		maxIterations: cfg.MaxIterations,
		timeout:       cfg.Timeout,
		minInliers:    maxInt(sampleSize, cfg.MinCorrespondences/2),
		refine:        cfg.RefinePose,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// GetMethod returns estimation method
func (est *Estimator) GetMethod() EstimationMethod {
	return est.method
}

// Estimate fits pose to correspondences. reference holds plane coordinates,
// scene holds undistorted pixels, distances holds matcher distances (used by
// PROSAC ordering, may be nil). All slices are index-aligned.
func (est *Estimator) Estimate(reference, scene []r2.Point, distances []int, intr Intrinsics) (Result, error) {
	result := Result{Method: est.method}
	n := len(scene)
	if n < sampleSize || len(reference) != n {
		return result, errors.Wrapf(ErrInsufficientCorrespondences, "got %d correspondences", n)
	}

	var best consensus
	var err error
	switch est.method {
	case MethodPROSAC:
		best, err = est.prosac(reference, scene, distances)
	case MethodLMEDS:
		best, err = est.lmeds(reference, scene)
	default:
		// MethodRANSAC and MethodEPnP share RANSAC consensus
		best, err = est.ransac(reference, scene)
	}
	result.Iterations = best.iterations
	if err != nil && best.count == 0 {
		return result, err
	}
	if best.count < est.minInliers {
		return result, errors.Wrapf(ErrDegenerateEstimate, "best consensus has %d inliers, need %d", best.count, est.minInliers)
	}

	// Least squares refit on the consensus set
	homography := best.homography
	inliers := best.inliers
	if refit, refitErr := fitOnMask(reference, scene, inliers); refitErr == nil {
		mask, count := est.inlierMask(refit, reference, scene, est.threshold)
		if count >= best.count {
			homography, inliers = refit, mask
		}
	}

	var rotation [9]float64
	var translation r3.Vector
	if est.method == MethodEPnP {
		ref, img := maskedPoints(reference, scene, inliers)
		rotation, translation, err = SolvePlanarEPnP(ref, img, intr)
	} else {
		rotation, translation, err = DecomposeHomography(homography, intr)
	}
	if err != nil {
		return result, errors.Wrap(err, "Can't recover pose")
	}
	if est.refine {
		ref, img := maskedPoints(reference, scene, inliers)
		rotation, translation = refinePose(intr, rotation, translation, ref, img)
	}

	count := 0
	sum := 0.0
	for i := range inliers {
		if !inliers[i] {
			continue
		}
		count++
		projected, ok := projectPoint(intr, rotation, translation, r3.Vector{X: reference[i].X, Y: reference[i].Y})
		if !ok {
			return result, errors.Wrap(ErrDegenerateEstimate, "inlier projects behind camera")
		}
		sum += euclideanDistance(projected, scene[i])
	}
	result.OK = true
	result.Homography = homography
	result.Rotation = rotation
	result.Translation = translation
	result.Inliers = count
	result.InlierMask = inliers
	result.MeanError = sum / float64(maxInt(count, 1))
	return result, nil
}

// sampleIndices draws k distinct indices from [0, n)
func (est *Estimator) sampleIndices(n, k int, out []int) {
	for i := 0; i < k; i++ {
	draw:
		for {
			candidate := est.rng.Intn(n)
			for j := 0; j < i; j++ {
				if out[j] == candidate {
					continue draw
				}
			}
			out[i] = candidate
			break
		}
	}
}

// fitSample fits homography to the four sampled pairs, rejecting samples
// with three collinear points in either plane.
func fitSample(reference, scene []r2.Point, idx []int) (Homography, error) {
	var src, dst [sampleSize]r2.Point
	for i := 0; i < sampleSize; i++ {
		src[i] = reference[idx[i]]
		dst[i] = scene[idx[i]]
	}
	if anyThreeCollinear(src) || anyThreeCollinear(dst) {
		return Homography{}, errors.Wrap(ErrDegenerateEstimate, "collinear sample")
	}
	return FitHomography(src[:], dst[:])
}

// inlierMask marks correspondences with transfer error below threshold.
func (est *Estimator) inlierMask(h Homography, reference, scene []r2.Point, threshold float64) ([]bool, int) {
	mask := make([]bool, len(scene))
	count := 0
	for i := range scene {
		if h.transferError(reference[i], scene[i]) < threshold {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

// score returns inlier count and truncated squared error sum of a model
func (est *Estimator) score(h Homography, reference, scene []r2.Point) (int, float64) {
	count := 0
	cost := 0.0
	thr2 := est.threshold * est.threshold
	for i := range scene {
		e := h.transferError(reference[i], scene[i])
		e2 := e * e
		if e2 < thr2 {
			count++
			cost += e2
		} else {
			cost += thr2
		}
	}
	return count, cost
}

func fitOnMask(reference, scene []r2.Point, mask []bool) (Homography, error) {
	ref, img := maskedPoints(reference, scene, mask)
	return FitHomography(ref, img)
}

func maskedPoints(reference, scene []r2.Point, mask []bool) ([]r2.Point, []r2.Point) {
	ref := make([]r2.Point, 0, len(mask))
	img := make([]r2.Point, 0, len(mask))
	for i := range mask {
		if mask[i] {
			ref = append(ref, reference[i])
			img = append(img, scene[i])
		}
	}
	return ref, img
}

// requiredIterations returns log(1-p)/log(1-w^s) for inlier ratio w
func requiredIterations(confidence, inlierRatio float64, limit int) int {
	if inlierRatio >= 1 {
		return 1
	}
	denom := math.Log(1 - math.Pow(inlierRatio, sampleSize))
	if denom >= 0 || math.IsNaN(denom) {
		return limit
	}
	n := math.Ceil(math.Log(1-confidence) / denom)
	if n > float64(limit) {
		return limit
	}
	return maxInt(1, int(n))
}
