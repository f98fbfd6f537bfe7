package pose

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// toGray converts any image into a zero-origin gray image. A *image.Gray that
// already starts at the origin is returned as is.
func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok && gray.Rect.Min == (image.Point{}) {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Rect, img, bounds.Min, draw.Src)
	return gray
}

// resizeGray resamples img by scale with an anti-aliasing bilinear kernel
func resizeGray(img *image.Gray, scale float64) *image.Gray {
	if scale == 1 {
		return img
	}
	w := maxInt(1, int(math.Round(float64(img.Rect.Dx())*scale)))
	h := maxInt(1, int(math.Round(float64(img.Rect.Dy())*scale)))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Rect, img, img.Rect, draw.Src, nil)
	return dst
}

// pixelAt returns intensity with border replication
func pixelAt(img *image.Gray, x, y int) float64 {
	x = clampInt(x, 0, img.Rect.Dx()-1)
	y = clampInt(y, 0, img.Rect.Dy()-1)
	return float64(img.Pix[y*img.Stride+x])
}

// bilinearAt samples intensity at a subpixel position with border replication
func bilinearAt(img *image.Gray, x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	ax := x - float64(x0)
	ay := y - float64(y0)
	p00 := pixelAt(img, x0, y0)
	p10 := pixelAt(img, x0+1, y0)
	p01 := pixelAt(img, x0, y0+1)
	p11 := pixelAt(img, x0+1, y0+1)
	return (1-ay)*((1-ax)*p00+ax*p10) + ay*((1-ax)*p01+ax*p11)
}

// boxSmooth applies a (2*radius+1)^2 box filter using an integral image
func boxSmooth(img *image.Gray, radius int) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	integral := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(img.Pix[y*img.Stride+x])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0 := maxInt(0, y-radius)
		y1 := minInt(h, y+radius+1)
		for x := 0; x < w; x++ {
			x0 := maxInt(0, x-radius)
			x1 := minInt(w, x+radius+1)
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			area := (x1 - x0) * (y1 - y0)
			out.Pix[y*out.Stride+x] = uint8((sum + area/2) / area)
		}
	}
	return out
}
