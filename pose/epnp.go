package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SolvePlanarEPnP recovers pose of a plane (world z = 0) from at least 4
// correspondences with undistorted pixels. Points are expressed through
// three control points, the camera-frame control points are taken from the
// null space of the projection system and the final pose is a Procrustes
// alignment of world and reconstructed camera-frame points.
func SolvePlanarEPnP(world []r2.Point, image []r2.Point, intr Intrinsics) ([9]float64, r3.Vector, error) {
	n := len(world)
	if n < 4 || len(image) != n {
		return [9]float64{}, r3.Vector{}, errors.Wrapf(ErrInsufficientCorrespondences, "EPnP needs at least 4 pairs, got %d", n)
	}

	// Control points: centroid plus principal directions scaled by spread
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, pt := range world {
		xs[i] = pt.X
		ys[i] = pt.Y
	}
	c0 := r2.Point{X: floats.Sum(xs) / float64(n), Y: floats.Sum(ys) / float64(n)}
	floats.AddConst(-c0.X, xs)
	floats.AddConst(-c0.Y, ys)
	sxx := floats.Dot(xs, xs) / float64(n)
	syy := floats.Dot(ys, ys) / float64(n)
	sxy := floats.Dot(xs, ys) / float64(n)
	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy}), true); !ok {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "can't factorize world covariance")
	}
	values := eig.Values(nil)
	if values[0] < 1e-9*maxFloat64(values[1], 1e-12) {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "world points are collinear")
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	controls := [3]r2.Point{c0}
	for k := 0; k < 2; k++ {
		// EigenSym returns ascending eigenvalues
		idx := 1 - k
		s := math.Sqrt(values[idx])
		controls[k+1] = c0.Add(r2.Point{X: vectors.At(0, idx), Y: vectors.At(1, idx)}.Mul(s))
	}

	// Barycentric coordinates
	d1 := controls[1].Sub(c0)
	d2 := controls[2].Sub(c0)
	det := d1.Cross(d2)
	alphas := make([][3]float64, n)
	for i, pt := range world {
		p := pt.Sub(c0)
		a1 := p.Cross(d2) / det
		a2 := d1.Cross(p) / det
		alphas[i] = [3]float64{1 - a1 - a2, a1, a2}
	}

	rows := maxInt(2*n, 9)
	m := mat.NewDense(rows, 9, nil)
	for i := 0; i < n; i++ {
		u, v := image[i].X, image[i].Y
		for j := 0; j < 3; j++ {
			a := alphas[i][j]
			m.Set(2*i, 3*j, a*intr.Fx)
			m.Set(2*i, 3*j+2, a*(intr.Cx-u))
			m.Set(2*i+1, 3*j+1, a*intr.Fy)
			m.Set(2*i+1, 3*j+2, a*(intr.Cy-v))
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "can't factorize EPnP system")
	}
	var nullSpace mat.Dense
	svd.VTo(&nullSpace)
	var camControls [3]r3.Vector
	for j := 0; j < 3; j++ {
		camControls[j] = r3.Vector{X: nullSpace.At(3*j, 8), Y: nullSpace.At(3*j+1, 8), Z: nullSpace.At(3*j+2, 8)}
	}

	// Scale from control point distances
	num, den := 0.0, 0.0
	for j := 0; j < 3; j++ {
		for k := j + 1; k < 3; k++ {
			dc := camControls[j].Sub(camControls[k]).Norm()
			dw := controls[j].Sub(controls[k]).Norm()
			num += dc * dw
			den += dc * dc
		}
	}
	if den < 1e-18 {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "EPnP null space is degenerate")
	}
	beta := num / den

	camPts := make([]r3.Vector, n)
	meanZ := 0.0
	for i := range world {
		var pc r3.Vector
		for j := 0; j < 3; j++ {
			pc = pc.Add(camControls[j].Mul(alphas[i][j] * beta))
		}
		camPts[i] = pc
		meanZ += pc.Z
	}
	if meanZ < 0 {
		for i := range camPts {
			camPts[i] = camPts[i].Mul(-1)
		}
	}
	worldPts := make([]r3.Vector, n)
	for i, pt := range world {
		worldPts[i] = r3.Vector{X: pt.X, Y: pt.Y}
	}
	return procrustes(worldPts, camPts)
}

// procrustes finds R, t minimizing sum |R*src + t - dst|^2
func procrustes(src, dst []r3.Vector) ([9]float64, r3.Vector, error) {
	n := float64(len(src))
	var cs, cd r3.Vector
	for i := range src {
		cs = cs.Add(src[i])
		cd = cd.Add(dst[i])
	}
	cs = cs.Mul(1 / n)
	cd = cd.Mul(1 / n)
	cov := mat.NewDense(3, 3, nil)
	for i := range src {
		s := src[i].Sub(cs)
		d := dst[i].Sub(cd)
		sv := [3]float64{s.X, s.Y, s.Z}
		dv := [3]float64{d.X, d.Y, d.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov.Set(r, c, cov.At(r, c)+sv[r]*dv[c])
			}
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return [9]float64{}, r3.Vector{}, errors.Wrap(ErrDegenerateEstimate, "can't factorize cross covariance")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var rot mat.Dense
	rot.Mul(&v, u.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		rot.Mul(&v, u.T())
	}
	var rotation [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rotation[r*3+c] = rot.At(r, c)
		}
	}
	rc := r3.Vector{
		X: rotation[0]*cs.X + rotation[1]*cs.Y + rotation[2]*cs.Z,
		Y: rotation[3]*cs.X + rotation[4]*cs.Y + rotation[5]*cs.Z,
		Z: rotation[6]*cs.X + rotation[7]*cs.Y + rotation[8]*cs.Z,
	}
	return rotation, cd.Sub(rc), nil
}
