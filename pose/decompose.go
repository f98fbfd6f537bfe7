package pose

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DecomposeHomography recovers plane-to-camera rotation (row-major) and
// translation from a plane-to-image homography. The plane is z = 0 of the
// reference coordinates and is kept in front of the camera (t.Z > 0).
func DecomposeHomography(h Homography, intr Intrinsics) ([9]float64, r3.Vector, error) {
	// M = K^-1 H
	var cols [3]r3.Vector
	for c := 0; c < 3; c++ {
		hx, hy, hz := h[c], h[3+c], h[6+c]
		cols[c] = r3.Vector{
			X: (hx - intr.Cx*hz) / intr.Fx,
			Y: (hy - intr.Cy*hz) / intr.Fy,
			Z: hz,
		}
	}
	n1, n2 := cols[0].Norm(), cols[1].Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "homography columns vanish")
	}
	scale := 2 / (n1 + n2)
	r1 := cols[0].Mul(scale)
	r2 := cols[1].Mul(scale)
	t := cols[2].Mul(scale)
	if t.Z < 0 {
		r1 = r1.Mul(-1)
		r2 = r2.Mul(-1)
		t = t.Mul(-1)
	}
	r3v := r1.Cross(r2)
	rotation := [9]float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	}
	rotation, err := orthonormalize(rotation)
	if err != nil {
		return [9]float64{}, r3.Vector{}, err
	}
	if math.IsNaN(t.X) || math.IsNaN(t.Y) || math.IsNaN(t.Z) {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "translation is not finite")
	}
	return rotation, t, nil
}

// orthonormalize returns the rotation nearest to r in Frobenius norm: U V^T
// with the sign of the last singular direction chosen so that det = +1.
func orthonormalize(r [9]float64) ([9]float64, error) {
	m := mat.NewDense(3, 3, r[:])
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return [9]float64{}, errors.Wrap(ErrDegenerateEstimate, "can't factorize rotation")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = rot.At(i, j)
		}
	}
	return out, nil
}
