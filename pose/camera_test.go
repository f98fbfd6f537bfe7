package pose

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

func TestNewCameraParameter(t *testing.T) {
	if _, err := NewCameraParameter(Intrinsics{Fx: 0, Fy: 500}, Distortion{}); errors.Cause(err) != ErrCameraNotInitialized {
		t.Errorf("Expected %v, got %v", ErrCameraNotInitialized, err)
	}
	cam, err := NewCameraParameter(testIntrinsics, Distortion{})
	if err != nil {
		t.Fatal(err)
	}
	if !cam.Initialized() {
		t.Error("Expected initialized camera")
	}
	if cam.GetExtrinsic() != identityExtrinsic() {
		t.Errorf("Expected identity extrinsic, got %v", cam.GetExtrinsic())
	}
	k := cam.K()
	if k.At(0, 0) != 500 || k.At(0, 2) != 320 || k.At(1, 2) != 240 || k.At(2, 2) != 1 {
		t.Errorf("Unexpected K %v", k)
	}
}

func TestUndistortRoundTrip(t *testing.T) {
	dist := Distortion{K1: -0.28, K2: 0.07, P1: 0.001, P2: -0.0015}
	cam, err := NewCameraParameter(testIntrinsics, dist)
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range []r2.Point{{X: 320, Y: 240}, {X: 10, Y: 12}, {X: 600, Y: 400}, {X: 100, Y: 450}} {
		distorted := cam.Distort(pt)
		back := cam.Undistort(distorted)
		if d := euclideanDistance(back, pt); d > 1e-4 {
			t.Errorf("Round trip of %v gave %v (distance %v)", pt, back, d)
		}
	}
	plain, _ := NewCameraParameter(testIntrinsics, Distortion{})
	pt := r2.Point{X: 17.5, Y: 300.25}
	if got := plain.Undistort(pt); got != pt {
		t.Errorf("Expected %v unchanged, got %v", pt, got)
	}
}

func TestCameraPose(t *testing.T) {
	cam, _ := NewCameraParameter(testIntrinsics, Distortion{})
	rotation := rotationXY(0.1, -0.2, 0.3)
	translation := r3.Vector{X: 20, Y: -10, Z: 600}
	cam.SetPose(rotation, translation)

	projected, ok := cam.Project(r3.Vector{X: 15, Y: -25})
	expected, _ := projectPoint(testIntrinsics, rotation, translation, r3.Vector{X: 15, Y: -25})
	if !ok || euclideanDistance(projected, expected) > eps {
		t.Errorf("Expected %v, got %v", expected, projected)
	}

	// Camera centre maps back to the origin of the camera frame
	centre := cam.Position()
	rc := r3.Vector{
		X: rotation[0]*centre.X + rotation[1]*centre.Y + rotation[2]*centre.Z,
		Y: rotation[3]*centre.X + rotation[4]*centre.Y + rotation[5]*centre.Z,
		Z: rotation[6]*centre.X + rotation[7]*centre.Y + rotation[8]*centre.Z,
	}
	if d := rc.Add(translation).Norm(); d > 1e-9 {
		t.Errorf("Expected R*C + t = 0, got %v", d)
	}
	if math.Abs(centre.Norm()-translation.Norm()) > 1e-9 {
		t.Errorf("Expected |C| = |t|, got %v and %v", centre.Norm(), translation.Norm())
	}

	gotRotation, gotTranslation := decomposeExtrinsic(cam.GetExtrinsic())
	if gotRotation != rotation || gotTranslation != translation {
		t.Error("Expected extrinsic to round trip")
	}
	if _, ok := cam.Project(r3.Vector{X: 0, Y: 0, Z: -1e4}); ok {
		t.Error("Expected point behind camera to be rejected")
	}
}
