package pose

import (
	"image"
	"math"
	"sort"
	"testing"

	"github.com/golang/geo/r2"
)

func cornerPoints(img *image.Gray, limit int) []r2.Point {
	cfg := NewDefaultConfig()
	cfg.MaxKeypoints = limit
	features := NewExtractor(cfg).Extract(img)
	pts := make([]r2.Point, len(features))
	for i := range features {
		pts[i] = features[i].Pt
	}
	return pts
}

func TestLKTrackerShift(t *testing.T) {
	img := texturedPlane(320, 240, 6)
	shift := r2.Point{X: 1.5, Y: -2.0}
	moved := shiftedImage(img, shift.X, shift.Y)
	prev := NewPyramid(img, 3)
	next := NewPyramid(moved, 3)

	pts := cornerPoints(img, 100)
	if len(pts) < 30 {
		t.Fatalf("Expected at least 30 corners, got %d", len(pts))
	}
	tracked, status := NewLKTrackerDefault().Track(prev, next, pts)
	if len(tracked) != len(pts) || len(status) != len(pts) {
		t.Fatalf("Expected aligned output, got %d and %d for %d points", len(tracked), len(status), len(pts))
	}
	errs := make([]float64, 0, len(pts))
	for i := range pts {
		if !status[i] {
			continue
		}
		errs = append(errs, euclideanDistance(tracked[i], pts[i].Add(shift)))
	}
	if float64(len(errs)) < 0.9*float64(len(pts)) {
		t.Errorf("Expected at least 90%% of points tracked, got %d of %d", len(errs), len(pts))
	}
	sort.Float64s(errs)
	if median := errs[len(errs)/2]; median > 0.15 {
		t.Errorf("Expected median error under 0.15 px, got %v", median)
	}
}

func TestLKTrackerFlatImage(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range flat.Pix {
		flat.Pix[i] = 77
	}
	pyr := NewPyramid(flat, 2)
	pts := []r2.Point{{X: 80, Y: 60}, {X: 30, Y: 30}}
	tracked, status := NewLKTrackerDefault().Track(pyr, pyr, pts)
	for i := range pts {
		if status[i] {
			t.Errorf("Expected point %d on flat image to be lost", i)
		}
		if tracked[i] != pts[i] {
			t.Errorf("Expected lost point to keep its position, got %v", tracked[i])
		}
	}
}

func TestForwardBackwardError(t *testing.T) {
	img := texturedPlane(320, 240, 7)
	prev := NewPyramid(img, 3)
	next := NewPyramid(shiftedImage(img, -1.0, 0.5), 3)
	pts := cornerPoints(img, 60)
	pts = append(pts, r2.Point{X: -50, Y: -50})
	_, errs := forwardBackwardError(NewLKTrackerDefault(), prev, next, pts)
	if !math.IsInf(errs[len(errs)-1], 1) {
		t.Errorf("Expected point outside the image to be lost, got %v", errs[len(errs)-1])
	}
	small := 0
	for _, e := range errs[:len(errs)-1] {
		if e < 0.5 {
			small++
		}
	}
	if float64(small) < 0.8*float64(len(pts)-1) {
		t.Errorf("Expected consistent forward-backward tracks, got %d of %d", small, len(pts)-1)
	}
}

func TestPyramidLevels(t *testing.T) {
	pyr := NewPyramid(texturedPlane(64, 48, 1), 5)
	// 64x48 -> 32x24 -> 16x12; the next halving would start from a side under 16
	if pyr.Levels() != 3 {
		t.Errorf("Expected 3 levels, got %d", pyr.Levels())
	}
	if b := pyr.Level(2).Rect; b.Dx() != 16 || b.Dy() != 12 {
		t.Errorf("Expected 16x12 top level, got %v", b)
	}
	if pyr.Bounds() != image.Rect(0, 0, 64, 48) {
		t.Errorf("Unexpected bounds %v", pyr.Bounds())
	}
}
