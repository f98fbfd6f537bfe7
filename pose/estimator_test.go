package pose

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type correspondenceCase struct {
	reference []r2.Point
	scene     []r2.Point
	distances []int
	outlier   []bool
}

// noisyCorrespondences projects n plane points with pose, adds gaussian noise
// and replaces a share of scene points with random pixels.
func noisyCorrespondences(seed int64, pc poseCase, n int, outlierShare, noise float64) correspondenceCase {
	rng := rand.New(rand.NewSource(seed))
	reference := randomPlanePoints(rng, n, 300, 200)
	scene := projectPlane(testIntrinsics, pc.rotation, pc.translation, reference)
	distances := make([]int, n)
	outlier := make([]bool, n)
	for i := range scene {
		if rng.Float64() < outlierShare {
			scene[i] = r2.Point{X: rng.Float64() * 640, Y: rng.Float64() * 480}
			distances[i] = 40 + rng.Intn(40)
			outlier[i] = true
			continue
		}
		scene[i] = scene[i].Add(r2.Point{X: rng.NormFloat64() * noise, Y: rng.NormFloat64() * noise})
		distances[i] = rng.Intn(40)
	}
	return correspondenceCase{reference, scene, distances, outlier}
}

func TestEstimateMethods(t *testing.T) {
	pc := poseCases[1]
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		data := noisyCorrespondences(seed, pc, 100, 0.3, 0.3)
		trueInliers := 0
		for _, o := range data.outlier {
			if !o {
				trueInliers++
			}
		}
		for _, method := range []EstimationMethod{MethodRANSAC, MethodPROSAC, MethodLMEDS, MethodEPnP} {
			cfg := NewDefaultConfig()
			cfg.Method = method
			cfg.Seed = seed
			cfg.Timeout = time.Second
			est := NewEstimator(cfg)
			result, err := est.Estimate(data.reference, data.scene, data.distances, testIntrinsics)
			if err != nil {
				t.Errorf("%v seed %d: %v", method, seed, err)
				continue
			}
			if !result.OK || result.Method != method {
				t.Errorf("%v seed %d: unexpected result %+v", method, seed, result)
			}
			if result.Inliers < trueInliers-3 {
				t.Errorf("%v seed %d: expected about %d inliers, got %d", method, seed, trueInliers, result.Inliers)
			}
			wrong := 0
			for i, inlier := range result.InlierMask {
				if inlier && data.outlier[i] {
					wrong++
				}
			}
			if wrong > 2 {
				t.Errorf("%v seed %d: %d outliers accepted", method, seed, wrong)
			}
			if angle := rotationAngle(result.Rotation, pc.rotation) * 180 / math.Pi; angle > 1 {
				t.Errorf("%v seed %d: rotation off by %v degrees", method, seed, angle)
			}
			if d := result.Translation.Sub(pc.translation).Norm(); d > 0.02*pc.translation.Norm() {
				t.Errorf("%v seed %d: expected translation %v, got %v", method, seed, pc.translation, result.Translation)
			}
			if result.MeanError > 1.5 {
				t.Errorf("%v seed %d: expected sub-pixel mean error, got %v", method, seed, result.MeanError)
			}
		}
	}
}

func TestEstimateRefine(t *testing.T) {
	pc := poseCases[2]
	data := noisyCorrespondences(2, pc, 80, 0.2, 0.5)
	cfg := NewDefaultConfig()
	cfg.Seed = 3
	plain, err := NewEstimator(cfg).Estimate(data.reference, data.scene, nil, testIntrinsics)
	if err != nil {
		t.Fatal(err)
	}
	cfg.RefinePose = true
	refined, err := NewEstimator(cfg).Estimate(data.reference, data.scene, nil, testIntrinsics)
	if err != nil {
		t.Fatal(err)
	}
	ref, img := maskedPoints(data.reference, data.scene, plain.InlierMask)
	before := sumSquaredReprojection(testIntrinsics, plain.Rotation, plain.Translation, ref, img)
	after := sumSquaredReprojection(testIntrinsics, refined.Rotation, refined.Translation, ref, img)
	if after > before+1e-9 {
		t.Errorf("Expected refinement not to increase error: %v > %v", after, before)
	}
	if angle := rotationAngle(refined.Rotation, pc.rotation) * 180 / math.Pi; angle > 1 {
		t.Errorf("Rotation off by %v degrees after refinement", angle)
	}
}

func sumSquaredReprojection(intr Intrinsics, rotation [9]float64, translation r3.Vector, world, pixels []r2.Point) float64 {
	projected := projectPlane(intr, rotation, translation, world)
	sum := 0.0
	for i := range projected {
		d := projected[i].Sub(pixels[i])
		sum += d.Dot(d)
	}
	return sum
}

func TestEstimateDeterministic(t *testing.T) {
	data := noisyCorrespondences(4, poseCases[3], 60, 0.4, 0.5)
	cfg := NewDefaultConfig()
	cfg.Seed = 11
	first, err1 := NewEstimator(cfg).Estimate(data.reference, data.scene, nil, testIntrinsics)
	second, err2 := NewEstimator(cfg).Estimate(data.reference, data.scene, nil, testIntrinsics)
	if err1 != nil || err2 != nil {
		t.Fatalf("Unexpected errors %v %v", err1, err2)
	}
	if first.Inliers != second.Inliers || first.Homography != second.Homography {
		t.Errorf("Expected identical results with the same seed")
	}
}

func TestEstimateErrors(t *testing.T) {
	est := NewEstimatorDefault()
	three := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	if _, err := est.Estimate(three, three, nil, testIntrinsics); errors.Cause(err) != ErrInsufficientCorrespondences {
		t.Errorf("Expected %v, got %v", ErrInsufficientCorrespondences, err)
	}

	line := make([]r2.Point, 20)
	image := make([]r2.Point, 20)
	for i := range line {
		line[i] = r2.Point{X: float64(i) * 10, Y: float64(i) * 5}
		image[i] = r2.Point{X: 100 + float64(i)*7, Y: 50 + float64(i)*3}
	}
	for _, method := range []EstimationMethod{MethodRANSAC, MethodPROSAC, MethodLMEDS, MethodEPnP} {
		cfg := NewDefaultConfig()
		cfg.Method = method
		cfg.Seed = 1
		cfg.MaxIterations = 50
		cfg.Timeout = time.Second
		if _, err := NewEstimator(cfg).Estimate(line, image, nil, testIntrinsics); errors.Cause(err) != ErrDegenerateEstimate {
			t.Errorf("%v: expected %v, got %v", method, ErrDegenerateEstimate, err)
		}
	}
}

func TestProsacTimeout(t *testing.T) {
	data := noisyCorrespondences(5, poseCases[1], 50, 0.2, 0.3)
	cfg := NewDefaultConfig()
	cfg.Method = MethodPROSAC
	cfg.Timeout = time.Nanosecond
	_, err := NewEstimator(cfg).Estimate(data.reference, data.scene, data.distances, testIntrinsics)
	if errors.Cause(err) != ErrTimeoutExceeded {
		t.Errorf("Expected %v, got %v", ErrTimeoutExceeded, err)
	}
}

func TestRequiredIterations(t *testing.T) {
	cases := []struct {
		confidence float64
		ratio      float64
		limit      int
		expected   int
	}{
		{0.99, 0.5, 1000, 72},
		{0.99, 0.5, 50, 50},
		{0.99, 1, 1000, 1},
		{0.99, 0, 500, 500},
	}
	for _, c := range cases {
		if got := requiredIterations(c.confidence, c.ratio, c.limit); got != c.expected {
			t.Errorf("requiredIterations(%v, %v, %d): expected %d, got %d", c.confidence, c.ratio, c.limit, c.expected, got)
		}
	}
}
