//go:build withcv
// +build withcv

package pose

import (
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

// CVFlowTracker tracks points with OpenCV's pyramidal Lucas-Kanade.
type CVFlowTracker struct {
	fallback *LKTracker
}

// NewCVFlowTracker returns a FlowTracker backed by OpenCV
func NewCVFlowTracker(cfg Config) FlowTracker {
	return &CVFlowTracker{
		fallback: NewLKTracker(cfg),
	}
}

// Track implements FlowTracker. When frames can't be converted to OpenCV
// matrices the pure Go tracker is used.
func (tracker *CVFlowTracker) Track(prev, next *Pyramid, pts []r2.Point) ([]r2.Point, []bool) {
	out := make([]r2.Point, len(pts))
	status := make([]bool, len(pts))
	if len(pts) == 0 {
		return out, status
	}
	prevMat, err := gocv.ImageGrayToMatGray(prev.Base())
	if err != nil {
		return tracker.fallback.Track(prev, next, pts)
	}
	defer prevMat.Close()
	nextMat, err := gocv.ImageGrayToMatGray(next.Base())
	if err != nil {
		return tracker.fallback.Track(prev, next, pts)
	}
	defer nextMat.Close()

	prevPts := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV32F)
	defer prevPts.Close()
	for i, pt := range pts {
		prevPts.SetFloatAt(i, 0, float32(pt.X))
		prevPts.SetFloatAt(i, 1, float32(pt.Y))
	}
	nextPts := gocv.NewMat()
	defer nextPts.Close()
	statusMat := gocv.NewMat()
	defer statusMat.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	gocv.CalcOpticalFlowPyrLK(prevMat, nextMat, prevPts, nextPts, &statusMat, &errMat)

	bounds := NewRectFrom(image.Rect(0, 0, next.Bounds().Dx(), next.Bounds().Dy()))
	for i, pt := range pts {
		out[i] = pt
		if i >= statusMat.Rows() || statusMat.GetUCharAt(i, 0) != 1 {
			continue
		}
		var tracked r2.Point
		if nextPts.Channels() == 2 {
			vec := nextPts.GetVecfAt(i, 0)
			tracked = r2.Point{X: float64(vec[0]), Y: float64(vec[1])}
		} else {
			tracked = r2.Point{X: float64(nextPts.GetFloatAt(i, 0)), Y: float64(nextPts.GetFloatAt(i, 1))}
		}
		if !bounds.Contains(tracked) {
			continue
		}
		out[i] = tracked
		status[i] = true
	}
	return out, status
}
