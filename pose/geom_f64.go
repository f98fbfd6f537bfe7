package pose

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Rectangle is an axis-aligned box in floating point pixel coordinates.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NewRectFrom converts an integer image rectangle
func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Contains reports whether point lies inside the rectangle (right and bottom edges excluded)
func (rect Rectangle) Contains(pt r2.Point) bool {
	return pt.X >= rect.X && pt.Y >= rect.Y && pt.X < rect.X+rect.Width && pt.Y < rect.Y+rect.Height
}

// NewPoint creates 2D point
func NewPoint(x, y float64) r2.Point {
	return r2.Point{X: x, Y: y}
}

// NewPointFrom converts an integer image point
func NewPointFrom(point image.Point) r2.Point {
	return r2.Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

func euclideanDistance(p1, p2 r2.Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

// collinear reports whether three points are (nearly) on one line.
// The tolerance is relative to the squared extent of the triangle.
func collinear(a, b, c r2.Point) bool {
	ab := b.Sub(a)
	ac := c.Sub(a)
	cross := math.Abs(ab.Cross(ac))
	scale := maxFloat64(ab.Norm()*ac.Norm(), 1e-12)
	return cross/scale < 1e-3
}

// anyThreeCollinear checks all triples of a 4-point sample
func anyThreeCollinear(pts [4]r2.Point) bool {
	return collinear(pts[0], pts[1], pts[2]) ||
		collinear(pts[0], pts[1], pts[3]) ||
		collinear(pts[0], pts[2], pts[3]) ||
		collinear(pts[1], pts[2], pts[3])
}

// rotationFromRodrigues converts an axis-angle vector into a row-major 3x3 rotation
func rotationFromRodrigues(w r3.Vector) [9]float64 {
	theta := w.Norm()
	if theta < 1e-12 {
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	k := w.Mul(1 / theta)
	c := math.Cos(theta)
	s := math.Sin(theta)
	v := 1 - c
	return [9]float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}
}

// rodriguesFromRotation is the inverse of rotationFromRodrigues
func rodriguesFromRotation(r [9]float64) r3.Vector {
	cosTheta := clampFloat64((r[0]+r[4]+r[8]-1)/2, -1, 1)
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// Near pi the antisymmetric part vanishes; recover the axis from the diagonal
		x := math.Sqrt(maxFloat64(0, (r[0]+1)/2))
		y := math.Sqrt(maxFloat64(0, (r[4]+1)/2))
		z := math.Sqrt(maxFloat64(0, (r[8]+1)/2))
		if r[1] < 0 {
			y = -y
		}
		if r[2] < 0 {
			z = -z
		}
		return r3.Vector{X: x, Y: y, Z: z}.Normalize().Mul(theta)
	}
	axis := r3.Vector{X: r[7] - r[5], Y: r[2] - r[6], Z: r[3] - r[1]}
	return axis.Mul(theta / (2 * math.Sin(theta)))
}

// rotationAngle returns the angle of the relative rotation between two rotations in radians
func rotationAngle(a, b [9]float64) float64 {
	// trace(A^T B)
	tr := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tr += a[j*3+i] * b[j*3+i]
		}
	}
	return math.Acos(clampFloat64((tr-1)/2, -1, 1))
}
