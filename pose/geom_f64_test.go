package pose

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	p1 := NewPoint(341, 264)
	p2 := NewPoint(421, 427)
	correnctAnswer := 181.57367
	answer := euclideanDistance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestRectangleContains(t *testing.T) {
	rect := NewRectFrom(image.Rect(0, 0, 640, 480))
	if !rect.Contains(NewPoint(0, 0)) {
		t.Errorf("Expected %v to contain origin", rect)
	}
	if rect.Contains(NewPoint(640, 10)) {
		t.Errorf("Expected %v not to contain right edge", rect)
	}
	if !rect.Contains(NewPoint(639.5, 479.5)) {
		t.Errorf("Expected %v to contain (639.5, 479.5)", rect)
	}
}

func TestCollinear(t *testing.T) {
	if !collinear(NewPoint(0, 0), NewPoint(1, 1), NewPoint(5, 5.000001)) {
		t.Error("Expected points on diagonal to be collinear")
	}
	if collinear(NewPoint(0, 0), NewPoint(10, 0), NewPoint(0, 10)) {
		t.Error("Expected right triangle not to be collinear")
	}
	sample := [4]r2.Point{NewPoint(0, 0), NewPoint(10, 0), NewPoint(20, 0), NewPoint(0, 10)}
	if !anyThreeCollinear(sample) {
		t.Error("Expected sample with three points on x axis to be degenerate")
	}
	square := [4]r2.Point{NewPoint(0, 0), NewPoint(10, 0), NewPoint(10, 10), NewPoint(0, 10)}
	if anyThreeCollinear(square) {
		t.Error("Expected square not to be degenerate")
	}
}

func TestRodriguesRoundTrip(t *testing.T) {
	vectors := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 0.1, Y: -0.2, Z: 0.3},
		{X: 1.2, Y: 0.4, Z: -0.7},
		{X: 0, Y: math.Pi - 1e-3, Z: 0},
	}
	for _, w := range vectors {
		rotation := rotationFromRodrigues(w)
		back := rodriguesFromRotation(rotation)
		again := rotationFromRodrigues(back)
		if angle := rotationAngle(rotation, again); angle > 1e-6 {
			t.Errorf("Expected round trip of %v, got %v (angle %v)", w, back, angle)
		}
		if w.Norm() > 0 {
			if angle := rotationAngle(rotation, [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}); math.Abs(angle-w.Norm()) > 1e-9 {
				t.Errorf("Expected rotation angle %v, got %v", w.Norm(), angle)
			}
		}
	}
}
