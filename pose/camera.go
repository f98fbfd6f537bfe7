package pose

import (
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Intrinsics are pinhole camera parameters in pixels
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

// Distortion holds Brown-Conrady radial (K1, K2) and tangential (P1, P2) coefficients
type Distortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	P1 float64 `json:"p1"`
	P2 float64 `json:"p2"`
}

// IsZero reports whether there is no distortion
func (dist Distortion) IsZero() bool {
	return dist == Distortion{}
}

// Apply maps undistorted normalized coordinates onto distorted ones
func (dist Distortion) Apply(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	radial := 1 + dist.K1*r2 + dist.K2*r2*r2
	xd := x*radial + 2*dist.P1*x*y + dist.P2*(r2+2*x*x)
	yd := y*radial + 2*dist.P2*x*y + dist.P1*(r2+2*y*y)
	return xd, yd
}

// Invert maps distorted normalized coordinates onto undistorted ones with Newton iterations
func (dist Distortion) Invert(xd, yd float64) (float64, float64) {
	const maxIterations = 20
	const tolerance = 1e-10
	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		radial := 1 + dist.K1*r2 + dist.K2*r2*r2
		errX := xu*radial + 2*dist.P1*xu*yu + dist.P2*(r2+2*xu*xu) - xd
		errY := yu*radial + 2*dist.P2*xu*yu + dist.P1*(r2+2*yu*yu) - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}
		dRadial := dist.K1 + 2*dist.K2*r2
		dxdx := radial + 2*xu*xu*dRadial + 2*dist.P1*yu + 6*dist.P2*xu
		dxdy := 2*xu*yu*dRadial + 2*dist.P1*xu + 2*dist.P2*yu
		dydx := 2*xu*yu*dRadial + 2*dist.P2*yu + 2*dist.P1*xu
		dydy := radial + 2*yu*yu*dRadial + 2*dist.P2*xu + 6*dist.P1*yu
		det := dxdx*dydy - dxdy*dydx
		if det == 0 {
			break
		}
		xu -= (dydy*errX - dxdy*errY) / det
		yu -= (-dydx*errX + dxdx*errY) / det
	}
	return xu, yu
}

// CameraParameter holds intrinsics, distortion and the latest extrinsic of a
// target. The estimator is the single writer of the extrinsic; readers use
// GetExtrinsic.
type CameraParameter struct {
	mu          sync.RWMutex
	intrinsics  Intrinsics
	distortion  Distortion
	extrinsic   [16]float64
	initialized bool
}

// NewCameraParameter validates intrinsics and creates parameter with identity extrinsic
func NewCameraParameter(intrinsics Intrinsics, distortion Distortion) (*CameraParameter, error) {
	if intrinsics.Fx <= 0 || intrinsics.Fy <= 0 {
		return nil, errors.Wrapf(ErrCameraNotInitialized, "focal lengths must be positive, got fx=%v fy=%v", intrinsics.Fx, intrinsics.Fy)
	}
	return &CameraParameter{
		intrinsics:  intrinsics,
		distortion:  distortion,
		extrinsic:   identityExtrinsic(),
		initialized: true,
	}, nil
}

func identityExtrinsic() [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Initialized reports whether intrinsics were provided
func (cam *CameraParameter) Initialized() bool {
	if cam == nil {
		return false
	}
	cam.mu.RLock()
	defer cam.mu.RUnlock()
	return cam.initialized
}

// GetIntrinsics returns intrinsics
func (cam *CameraParameter) GetIntrinsics() Intrinsics {
	cam.mu.RLock()
	defer cam.mu.RUnlock()
	return cam.intrinsics
}

// GetDistortion returns distortion coefficients
func (cam *CameraParameter) GetDistortion() Distortion {
	cam.mu.RLock()
	defer cam.mu.RUnlock()
	return cam.distortion
}

// GetExtrinsic returns row-major 4x4 transform from plane to camera coordinates
func (cam *CameraParameter) GetExtrinsic() [16]float64 {
	cam.mu.RLock()
	defer cam.mu.RUnlock()
	return cam.extrinsic
}

// SetExtrinsic stores row-major 4x4 transform from plane to camera coordinates
func (cam *CameraParameter) SetExtrinsic(extrinsic [16]float64) {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	cam.extrinsic = extrinsic
}

// SetPose stores rotation (row-major 3x3) and translation as the extrinsic
func (cam *CameraParameter) SetPose(rotation [9]float64, translation r3.Vector) {
	cam.SetExtrinsic(composeExtrinsic(rotation, translation))
}

// K returns the 3x3 calibration matrix
func (cam *CameraParameter) K() *mat.Dense {
	intr := cam.GetIntrinsics()
	return mat.NewDense(3, 3, []float64{
		intr.Fx, 0, intr.Cx,
		0, intr.Fy, intr.Cy,
		0, 0, 1,
	})
}

// Undistort removes lens distortion from a pixel position
func (cam *CameraParameter) Undistort(pt r2.Point) r2.Point {
	cam.mu.RLock()
	intr, dist := cam.intrinsics, cam.distortion
	cam.mu.RUnlock()
	if dist.IsZero() {
		return pt
	}
	xd := (pt.X - intr.Cx) / intr.Fx
	yd := (pt.Y - intr.Cy) / intr.Fy
	xu, yu := dist.Invert(xd, yd)
	return r2.Point{X: xu*intr.Fx + intr.Cx, Y: yu*intr.Fy + intr.Cy}
}

// Distort applies lens distortion to an ideal pixel position
func (cam *CameraParameter) Distort(pt r2.Point) r2.Point {
	cam.mu.RLock()
	intr, dist := cam.intrinsics, cam.distortion
	cam.mu.RUnlock()
	if dist.IsZero() {
		return pt
	}
	x := (pt.X - intr.Cx) / intr.Fx
	y := (pt.Y - intr.Cy) / intr.Fy
	xd, yd := dist.Apply(x, y)
	return r2.Point{X: xd*intr.Fx + intr.Cx, Y: yd*intr.Fy + intr.Cy}
}

// Project maps a plane point through the current extrinsic onto distorted pixels.
// Second value is false when the point is behind the camera.
func (cam *CameraParameter) Project(pt r3.Vector) (r2.Point, bool) {
	ext := cam.GetExtrinsic()
	rotation, translation := decomposeExtrinsic(ext)
	ideal, ok := projectPoint(cam.GetIntrinsics(), rotation, translation, pt)
	if !ok {
		return ideal, false
	}
	return cam.Distort(ideal), true
}

// Position returns camera centre in plane coordinates
func (cam *CameraParameter) Position() r3.Vector {
	rotation, translation := decomposeExtrinsic(cam.GetExtrinsic())
	return cameraCentre(rotation, translation)
}

func composeExtrinsic(rotation [9]float64, translation r3.Vector) [16]float64 {
	return [16]float64{
		rotation[0], rotation[1], rotation[2], translation.X,
		rotation[3], rotation[4], rotation[5], translation.Y,
		rotation[6], rotation[7], rotation[8], translation.Z,
		0, 0, 0, 1,
	}
}

func decomposeExtrinsic(ext [16]float64) ([9]float64, r3.Vector) {
	rotation := [9]float64{
		ext[0], ext[1], ext[2],
		ext[4], ext[5], ext[6],
		ext[8], ext[9], ext[10],
	}
	translation := r3.Vector{X: ext[3], Y: ext[7], Z: ext[11]}
	return rotation, translation
}

// projectPoint applies [R|t] and the pinhole model without distortion
func projectPoint(intr Intrinsics, rotation [9]float64, translation r3.Vector, pt r3.Vector) (r2.Point, bool) {
	x := rotation[0]*pt.X + rotation[1]*pt.Y + rotation[2]*pt.Z + translation.X
	y := rotation[3]*pt.X + rotation[4]*pt.Y + rotation[5]*pt.Z + translation.Y
	z := rotation[6]*pt.X + rotation[7]*pt.Y + rotation[8]*pt.Z + translation.Z
	if z <= 1e-12 {
		return r2.Point{}, false
	}
	return r2.Point{X: intr.Fx*x/z + intr.Cx, Y: intr.Fy*y/z + intr.Cy}, true
}

// cameraCentre returns -R^T t
func cameraCentre(rotation [9]float64, translation r3.Vector) r3.Vector {
	return r3.Vector{
		X: -(rotation[0]*translation.X + rotation[3]*translation.Y + rotation[6]*translation.Z),
		Y: -(rotation[1]*translation.X + rotation[4]*translation.Y + rotation[7]*translation.Z),
		Z: -(rotation[2]*translation.X + rotation[5]*translation.Y + rotation[8]*translation.Z),
	}
}
