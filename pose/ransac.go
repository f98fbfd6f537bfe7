package pose

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ransac samples uniformly for the fixed iteration budget and keeps the
// model with most inliers, ties broken by lower truncated error.
func (est *Estimator) ransac(reference, scene []r2.Point) (consensus, error) {
	n := len(scene)
	best := consensus{}
	idx := make([]int, sampleSize)
	for iter := 0; iter < est.maxIterations; iter++ {
		best.iterations = iter + 1
		est.sampleIndices(n, sampleSize, idx)
		h, err := fitSample(reference, scene, idx)
		if err != nil {
			continue
		}
		count, cost := est.score(h, reference, scene)
		if count > best.count || (count == best.count && count > 0 && cost < best.score) {
			best.homography = h
			best.count = count
			best.score = cost
			if count == n {
				break
			}
		}
	}
	if best.count == 0 {
		return best, errors.Wrap(ErrDegenerateEstimate, "no sample produced a model")
	}
	best.inliers, best.count = est.inlierMask(best.homography, reference, scene, est.threshold)
	return best, nil
}
