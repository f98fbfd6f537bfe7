package pose

import (
	"math"

	"github.com/golang/geo/r2"
)

// FlowTracker advances points from the previous frame into the next one.
// Output slices are index-aligned with pts; status[i] is false when the
// i-th point could not be tracked.
type FlowTracker interface {
	Track(prev, next *Pyramid, pts []r2.Point) ([]r2.Point, []bool)
}

const (
	flowEpsilon     = 0.01
	flowMaxResidual = 40.0
)

// LKTracker is a pyramidal iterative Lucas-Kanade point tracker.
type LKTracker struct {
	window     int
	levels     int
	iterations int
	minEigen   float64
}

// NewLKTrackerDefault creates tracker with default window and pyramid depth
func NewLKTrackerDefault() *LKTracker {
	return NewLKTracker(NewDefaultConfig())
}

// NewLKTracker creates tracker from validated configuration
func NewLKTracker(cfg Config) *LKTracker {
	return &LKTracker{
		window:     cfg.FlowWindow,
		levels:     cfg.FlowLevels,
		iterations: cfg.FlowIterations,
		minEigen:   cfg.FlowMinEigen,
	}
}

// Track implements FlowTracker
func (tracker *LKTracker) Track(prev, next *Pyramid, pts []r2.Point) ([]r2.Point, []bool) {
	out := make([]r2.Point, len(pts))
	status := make([]bool, len(pts))
	if len(pts) == 0 {
		return out, status
	}
	levels := minInt(minInt(prev.Levels(), next.Levels())-1, tracker.levels)
	bounds := NewRectFrom(next.Bounds())
	for i, pt := range pts {
		tracked, ok := tracker.trackPoint(prev, next, pt, levels)
		if ok && !bounds.Contains(tracked) {
			ok = false
		}
		if !ok {
			tracked = pt
		}
		out[i] = tracked
		status[i] = ok
	}
	return out, status
}

// toLevel maps base image coordinate onto pyramid level coordinate
func toLevel(v float64, level int) float64 {
	return (v+0.5)/float64(int(1)<<uint(level)) - 0.5
}

func (tracker *LKTracker) trackPoint(prev, next *Pyramid, pt r2.Point, levels int) (r2.Point, bool) {
	half := tracker.window / 2
	area := float64(tracker.window * tracker.window)
	n := tracker.window * tracker.window
	patch := make([]float64, n)
	gx := make([]float64, n)
	gy := make([]float64, n)

	var guess r2.Point
	var residual float64
	for level := levels; level >= 0; level-- {
		prevLevel := &prev.levels[level]
		nextImg := next.levels[level].img
		px := toLevel(pt.X, level)
		py := toLevel(pt.Y, level)

		// Spatial gradient matrix of the template window
		var gxx, gxy, gyy float64
		k := 0
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				x := px + float64(dx)
				y := py + float64(dy)
				patch[k] = bilinearAt(prevLevel.img, x, y)
				gx[k], gy[k] = prevLevel.gradientAt(x, y)
				gxx += gx[k] * gx[k]
				gxy += gx[k] * gy[k]
				gyy += gy[k] * gy[k]
				k++
			}
		}
		det := gxx*gyy - gxy*gxy
		minEig := (gxx + gyy - math.Sqrt((gxx-gyy)*(gxx-gyy)+4*gxy*gxy)) / 2
		if det < 1e-9 || minEig/(area*255*255) < tracker.minEigen {
			return pt, false
		}

		var v r2.Point
		for iter := 0; iter < tracker.iterations; iter++ {
			var bx, by float64
			k = 0
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					x := px + guess.X + v.X + float64(dx)
					y := py + guess.Y + v.Y + float64(dy)
					diff := patch[k] - bilinearAt(nextImg, x, y)
					bx += diff * gx[k]
					by += diff * gy[k]
					k++
				}
			}
			eta := r2.Point{
				X: (gyy*bx - gxy*by) / det,
				Y: (gxx*by - gxy*bx) / det,
			}
			if math.IsNaN(eta.X) || math.IsNaN(eta.Y) {
				return pt, false
			}
			v = v.Add(eta)
			if eta.Norm() < flowEpsilon {
				break
			}
		}
		if v.Norm() > float64(tracker.window) {
			return pt, false
		}
		if level > 0 {
			guess = guess.Add(v).Mul(2)
			continue
		}
		guess = guess.Add(v)

		// Mean absolute residual on the base level
		residual = 0
		k = 0
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				x := px + guess.X + float64(dx)
				y := py + guess.Y + float64(dy)
				residual += math.Abs(patch[k] - bilinearAt(nextImg, x, y))
				k++
			}
		}
		residual /= area
	}
	if residual > flowMaxResidual {
		return pt, false
	}
	return pt.Add(guess), true
}

// forwardBackwardError tracks points forward then back and returns the
// distance to the origin per point. Lost points get +Inf.
func forwardBackwardError(tracker FlowTracker, prev, next *Pyramid, pts []r2.Point) ([]r2.Point, []float64) {
	forward, okForward := tracker.Track(prev, next, pts)
	backward, okBackward := tracker.Track(next, prev, forward)
	errs := make([]float64, len(pts))
	for i := range pts {
		if !okForward[i] || !okBackward[i] {
			errs[i] = math.Inf(1)
			continue
		}
		errs[i] = euclideanDistance(pts[i], backward[i])
	}
	return forward, errs
}
