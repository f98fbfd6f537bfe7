package pose

import (
	"image"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const backgroundLevel = 128

// texturedPlane draws random overlapping rectangles, which gives plenty of
// distinctive corners.
func texturedPlane(width, height int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	img = boxSmooth(img, 6)
	rects := width * height / 200
	for k := 0; k < rects; k++ {
		w := 6 + rng.Intn(30)
		h := 6 + rng.Intn(30)
		x0 := rng.Intn(width)
		y0 := rng.Intn(height)
		level := uint8(rng.Intn(256))
		for y := y0; y < minInt(y0+h, height); y++ {
			for x := x0; x < minInt(x0+w, width); x++ {
				img.Pix[y*img.Stride+x] = level
			}
		}
	}
	return img
}

// shiftedImage samples img at (x - dx, y - dy), so content moves by (dx, dy)
func shiftedImage(img *image.Gray, dx, dy float64) *image.Gray {
	out := image.NewGray(img.Rect)
	for y := 0; y < img.Rect.Dy(); y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			out.Pix[y*out.Stride+x] = uint8(math.Round(bilinearAt(img, float64(x)-dx, float64(y)-dy)))
		}
	}
	return out
}

// rotationXY returns row-major Ry(yaw) * Rx(pitch) * Rz(roll)
func rotationXY(pitch, yaw, roll float64) [9]float64 {
	cx, sx := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	cz, sz := math.Cos(roll), math.Sin(roll)
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})
	ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})
	var tmp, out mat.Dense
	tmp.Mul(rx, rz)
	out.Mul(ry, &tmp)
	var r [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = out.At(i, j)
		}
	}
	return r
}

// planeRenderer renders perspective views of a textured plane. Plane
// coordinates are reference pixels centred on the reference image.
type planeRenderer struct {
	texture    *image.Gray
	intrinsics Intrinsics
	width      int
	height     int
}

// render returns the frame seen by a camera with pose (rotation, translation)
// relative to the plane. Pixels not covered by the plane get backgroundLevel.
func (renderer *planeRenderer) render(rotation [9]float64, translation r3.Vector) *image.Gray {
	h := HomographyFromPose(renderer.intrinsics, rotation, translation)
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		panic(err)
	}
	var hinv Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			hinv[r*3+c] = inv.At(r, c)
		}
	}
	tw := float64(renderer.texture.Rect.Dx())
	th := float64(renderer.texture.Rect.Dy())
	frame := image.NewGray(image.Rect(0, 0, renderer.width, renderer.height))
	for y := 0; y < renderer.height; y++ {
		for x := 0; x < renderer.width; x++ {
			level := uint8(backgroundLevel)
			if pt, ok := hinv.Apply(r2.Point{X: float64(x), Y: float64(y)}); ok {
				px := pt.X + tw/2
				py := pt.Y + th/2
				if px >= 0 && py >= 0 && px <= tw-1 && py <= th-1 {
					level = uint8(math.Round(bilinearAt(renderer.texture, px, py)))
				}
			}
			frame.Pix[y*frame.Stride+x] = level
		}
	}
	return frame
}

// projectPlane projects plane points with the pinhole model
func projectPlane(intr Intrinsics, rotation [9]float64, translation r3.Vector, pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		projected, _ := projectPoint(intr, rotation, translation, r3.Vector{X: pt.X, Y: pt.Y})
		out[i] = projected
	}
	return out
}

// randomPlanePoints draws n points uniformly within a plane of size w x h centred at origin
func randomPlanePoints(rng *rand.Rand, n int, w, h float64) []r2.Point {
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{X: (rng.Float64() - 0.5) * w, Y: (rng.Float64() - 0.5) * h}
	}
	return pts
}

var testIntrinsics = Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}

// dumbLogger discards everything
type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}
