package pose

import (
	"math"
	"sort"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// prosac draws samples from a progressively growing prefix of the
// correspondences ordered by ascending matcher distance. The iteration
// budget shrinks as the inlier ratio of the best model grows and the whole
// search is bounded by the estimator timeout.
func (est *Estimator) prosac(reference, scene []r2.Point, distances []int) (consensus, error) {
	n := len(scene)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if len(distances) == n {
		sort.SliceStable(order, func(i, j int) bool {
			return distances[order[i]] < distances[order[j]]
		})
	}
	sortedRef := make([]r2.Point, n)
	sortedScene := make([]r2.Point, n)
	for i, k := range order {
		sortedRef[i] = reference[k]
		sortedScene[i] = scene[k]
	}

	start := time.Now()
	best := consensus{}
	budget := est.maxIterations

	// Growth function bookkeeping
	tn := float64(est.maxIterations)
	for i := 0; i < sampleSize; i++ {
		tn *= float64(sampleSize-i) / float64(n-i)
	}
	subset := sampleSize
	tnPrime := 1.0
	idx := make([]int, sampleSize)
	timedOut := false

	for iter := 1; iter <= budget; iter++ {
		if time.Since(start) > est.timeout {
			timedOut = true
			break
		}
		best.iterations = iter
		if float64(iter) > tnPrime && subset < n {
			tnNext := tn * float64(subset+1) / float64(subset+1-sampleSize)
			subset++
			tnPrime += math.Ceil(tnNext - tn)
			tn = tnNext
		}
		if tnPrime < float64(iter) || subset == sampleSize {
			est.sampleIndices(subset, sampleSize, idx)
		} else {
			// The newest point of the prefix is always part of the sample
			est.sampleIndices(subset-1, sampleSize-1, idx)
			idx[sampleSize-1] = subset - 1
		}
		h, err := fitSample(sortedRef, sortedScene, idx)
		if err != nil {
			continue
		}
		count, cost := est.score(h, sortedRef, sortedScene)
		if count > best.count || (count == best.count && count > 0 && cost < best.score) {
			best.homography = h
			best.count = count
			best.score = cost
			budget = minInt(budget, requiredIterations(est.confidence, float64(count)/float64(n), est.maxIterations))
		}
	}

	if best.count == 0 {
		if timedOut {
			return best, errors.Wrapf(ErrTimeoutExceeded, "no model within %v", est.timeout)
		}
		return best, errors.Wrap(ErrDegenerateEstimate, "no sample produced a model")
	}
	best.inliers, best.count = est.inlierMask(best.homography, reference, scene, est.threshold)
	if timedOut {
		return best, errors.Wrapf(ErrTimeoutExceeded, "returning best of %d iterations", best.iterations)
	}
	return best, nil
}
