package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a row-major 3x3 plane-to-image projective transform
type Homography [9]float64

// Apply maps point through homography. Second value is false when the point
// maps to infinity.
func (h Homography) Apply(pt r2.Point) (r2.Point, bool) {
	x := h[0]*pt.X + h[1]*pt.Y + h[2]
	y := h[3]*pt.X + h[4]*pt.Y + h[5]
	z := h[6]*pt.X + h[7]*pt.Y + h[8]
	if math.Abs(z) < 1e-12 {
		return r2.Point{}, false
	}
	return r2.Point{X: x / z, Y: y / z}, true
}

// Dense returns homography as gonum matrix
func (h Homography) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, h[:])
	return mat.NewDense(3, 3, data)
}

// Normalized returns homography scaled so that h[8] = 1 when possible
func (h Homography) Normalized() Homography {
	if math.Abs(h[8]) < 1e-12 {
		return h
	}
	var out Homography
	for i := range h {
		out[i] = h[i] / h[8]
	}
	return out
}

// transferError returns reprojection distance of src mapped by h to dst
func (h Homography) transferError(src, dst r2.Point) float64 {
	projected, ok := h.Apply(src)
	if !ok {
		return math.Inf(1)
	}
	return euclideanDistance(projected, dst)
}

// normalizationTransform returns similarity moving centroid of pts to origin
// with mean distance sqrt(2), as scale and offsets.
func normalizationTransform(pts []r2.Point) (float64, r2.Point) {
	var centroid r2.Point
	for _, pt := range pts {
		centroid = centroid.Add(pt)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))
	meanDist := 0.0
	for _, pt := range pts {
		meanDist += pt.Sub(centroid).Norm()
	}
	meanDist /= float64(len(pts))
	if meanDist < 1e-12 {
		return 1, centroid
	}
	return math.Sqrt2 / meanDist, centroid
}

// FitHomography estimates homography mapping src onto dst with the
// normalized direct linear transform. At least 4 correspondences are needed.
func FitHomography(src, dst []r2.Point) (Homography, error) {
	n := len(src)
	if n < 4 || len(dst) != n {
		return Homography{}, errors.Wrapf(ErrInsufficientCorrespondences, "homography needs at least 4 pairs, got %d", n)
	}
	s1, c1 := normalizationTransform(src)
	s2, c2 := normalizationTransform(dst)

	rows := 2 * n
	if rows < 9 {
		// Pad with a zero row so SVD yields a full 9x9 V
		rows = 9
	}
	a := mat.NewDense(rows, 9, nil)
	for i := 0; i < n; i++ {
		x := (src[i].X - c1.X) * s1
		y := (src[i].Y - c1.Y) * s1
		u := (dst[i].X - c2.X) * s2
		v := (dst[i].Y - c2.Y) * s2
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Homography{}, errors.Wrap(ErrDegenerateEstimate, "can't factorize DLT system")
	}
	values := svd.Values(nil)
	if values[0] < 1e-12 || values[7]/values[0] < 1e-10 {
		return Homography{}, errors.Wrap(ErrDegenerateEstimate, "DLT system is rank deficient")
	}
	var v mat.Dense
	svd.VTo(&v)
	var hn Homography
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	// H = T2^-1 * Hn * T1
	t1 := mat.NewDense(3, 3, []float64{
		s1, 0, -s1 * c1.X,
		0, s1, -s1 * c1.Y,
		0, 0, 1,
	})
	t2Inv := mat.NewDense(3, 3, []float64{
		1 / s2, 0, c2.X,
		0, 1 / s2, c2.Y,
		0, 0, 1,
	})
	var tmp, full mat.Dense
	tmp.Mul(hn.Dense(), t1)
	full.Mul(t2Inv, &tmp)
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = full.At(r, c)
		}
	}
	det := mat.Det(&full)
	if math.Abs(det) < 1e-15 || math.IsNaN(det) {
		return Homography{}, errors.Wrap(ErrDegenerateEstimate, "homography is singular")
	}
	return h.Normalized(), nil
}

// HomographyFromPose builds K [r1 r2 t] for plane points with z = 0
func HomographyFromPose(intr Intrinsics, rotation [9]float64, translation r3.Vector) Homography {
	cols := [3][3]float64{
		{rotation[0], rotation[3], rotation[6]},
		{rotation[1], rotation[4], rotation[7]},
		{translation.X, translation.Y, translation.Z},
	}
	var h Homography
	for c := 0; c < 3; c++ {
		x, y, z := cols[c][0], cols[c][1], cols[c][2]
		h[0*3+c] = intr.Fx*x + intr.Cx*z
		h[1*3+c] = intr.Fy*y + intr.Cy*z
		h[2*3+c] = z
	}
	return h.Normalized()
}
