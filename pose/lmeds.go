package pose

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// lmedsOutlierRatio is the assumed worst case outlier share used to size the sample count
const lmedsOutlierRatio = 0.5

// lmeds keeps the model with the least median of squared transfer errors.
// The inlier bound is derived from the robust standard deviation of the best model.
func (est *Estimator) lmeds(reference, scene []r2.Point) (consensus, error) {
	n := len(scene)
	iterations := requiredIterations(est.confidence, 1-lmedsOutlierRatio, est.maxIterations)
	best := consensus{score: math.Inf(1)}
	found := false
	idx := make([]int, sampleSize)
	errs := make([]float64, n)
	for iter := 0; iter < iterations; iter++ {
		best.iterations = iter + 1
		est.sampleIndices(n, sampleSize, idx)
		h, err := fitSample(reference, scene, idx)
		if err != nil {
			continue
		}
		for i := range scene {
			e := h.transferError(reference[i], scene[i])
			errs[i] = e * e
		}
		sort.Float64s(errs)
		median := stat.Quantile(0.5, stat.Empirical, errs, nil)
		if median < best.score {
			best.score = median
			best.homography = h
			found = true
		}
	}
	if !found {
		return consensus{iterations: best.iterations}, errors.Wrap(ErrDegenerateEstimate, "no sample produced a model")
	}
	sigma := 2.5 * 1.4826 * (1 + 5/float64(maxInt(n-sampleSize, 1))) * math.Sqrt(best.score)
	// Exact fits leave zero spread; keep a small floor so the fitted points count as inliers
	sigma = maxFloat64(sigma, 1e-6)
	best.inliers, best.count = est.inlierMask(best.homography, reference, scene, sigma)
	return best, nil
}
