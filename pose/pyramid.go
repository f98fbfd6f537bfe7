package pose

import (
	"image"
	"math"
)

// pyramidLevel is one octave of a Pyramid with its precomputed gradients.
type pyramidLevel struct {
	img    *image.Gray
	gradX  []float32
	gradY  []float32
	width  int
	height int
}

// Pyramid is a gaussian-like image pyramid. Level 0 is the full resolution image,
// every next level halves both dimensions.
type Pyramid struct {
	levels []pyramidLevel
}

// NewPyramid builds a pyramid with levels octaves above the base image.
// Levels smaller than 8 pixels on a side are not produced.
func NewPyramid(img image.Image, levels int) *Pyramid {
	base := toGray(img)
	pyr := &Pyramid{
		levels: make([]pyramidLevel, 0, levels+1),
	}
	pyr.levels = append(pyr.levels, newPyramidLevel(base))
	current := base
	for i := 0; i < levels; i++ {
		if current.Rect.Dx() < 16 || current.Rect.Dy() < 16 {
			break
		}
		current = resizeGray(current, 0.5)
		pyr.levels = append(pyr.levels, newPyramidLevel(current))
	}
	return pyr
}

func newPyramidLevel(img *image.Gray) pyramidLevel {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	level := pyramidLevel{
		img:    img,
		gradX:  make([]float32, w*h),
		gradY:  make([]float32, w*h),
		width:  w,
		height: h,
	}
	// Scharr operator, normalized
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := 3*(pixelAt(img, x+1, y-1)-pixelAt(img, x-1, y-1)) +
				10*(pixelAt(img, x+1, y)-pixelAt(img, x-1, y)) +
				3*(pixelAt(img, x+1, y+1)-pixelAt(img, x-1, y+1))
			gy := 3*(pixelAt(img, x-1, y+1)-pixelAt(img, x-1, y-1)) +
				10*(pixelAt(img, x, y+1)-pixelAt(img, x, y-1)) +
				3*(pixelAt(img, x+1, y+1)-pixelAt(img, x+1, y-1))
			level.gradX[y*w+x] = float32(gx / 32)
			level.gradY[y*w+x] = float32(gy / 32)
		}
	}
	return level
}

// Levels returns number of levels including the base image
func (pyr *Pyramid) Levels() int {
	return len(pyr.levels)
}

// Level returns image of the i-th level
func (pyr *Pyramid) Level(i int) *image.Gray {
	return pyr.levels[i].img
}

// Base returns the full resolution image
func (pyr *Pyramid) Base() *image.Gray {
	return pyr.levels[0].img
}

// Bounds returns bounds of the base image
func (pyr *Pyramid) Bounds() image.Rectangle {
	return pyr.levels[0].img.Rect
}

// gradientAt samples both gradients bilinearly at a subpixel position of level
func (level *pyramidLevel) gradientAt(x, y float64) (float64, float64) {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	ax := x - float64(x0)
	ay := y - float64(y0)
	idx := func(xx, yy int) int {
		return clampInt(yy, 0, level.height-1)*level.width + clampInt(xx, 0, level.width-1)
	}
	i00, i10, i01, i11 := idx(x0, y0), idx(x0+1, y0), idx(x0, y0+1), idx(x0+1, y0+1)
	w00 := (1 - ax) * (1 - ay)
	w10 := ax * (1 - ay)
	w01 := (1 - ax) * ay
	w11 := ax * ay
	gx := w00*float64(level.gradX[i00]) + w10*float64(level.gradX[i10]) + w01*float64(level.gradX[i01]) + w11*float64(level.gradX[i11])
	gy := w00*float64(level.gradY[i00]) + w10*float64(level.gradY[i10]) + w01*float64(level.gradY[i01]) + w11*float64(level.gradY[i11])
	return gx, gy
}
