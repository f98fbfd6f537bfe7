package pose

import (
	"image"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/golang/geo/r2"
)

const (
	// PatchSize is the side of the square patch described by BRIEF
	PatchSize = 31
	// PatchRadius is the radius of the disc used for orientation and sampling
	PatchRadius = PatchSize / 2

	fastArc        = 9
	orientationBin = 12 // degrees
	briefSeed      = 0x5eed
	smoothRadius   = 2
)

var fastCircle = [16]image.Point{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

type briefTest struct {
	x1, y1, x2, y2 int
}

// briefPattern holds the sampling pattern rotated for every orientation bin.
type briefPattern [360 / orientationBin][DescriptorBits]briefTest

var (
	patternOnce   sync.Once
	sharedPattern *briefPattern
)

func steeredPattern() *briefPattern {
	patternOnce.Do(func() {
		rng := rand.New(rand.NewSource(briefSeed))
		sigma := float64(PatchSize) / 5
		limit := float64(PatchRadius - 1)
		sample := func() (float64, float64) {
			for {
				x := rng.NormFloat64() * sigma
				y := rng.NormFloat64() * sigma
				if x*x+y*y <= limit*limit {
					return x, y
				}
			}
		}
		var base [DescriptorBits][4]float64
		for i := range base {
			x1, y1 := sample()
			x2, y2 := sample()
			base[i] = [4]float64{x1, y1, x2, y2}
		}
		pattern := &briefPattern{}
		for bin := range pattern {
			angle := float64(bin*orientationBin) * math.Pi / 180
			c, s := math.Cos(angle), math.Sin(angle)
			for i, t := range base {
				pattern[bin][i] = briefTest{
					x1: int(math.Round(c*t[0] - s*t[1])),
					y1: int(math.Round(s*t[0] + c*t[1])),
					x2: int(math.Round(c*t[2] - s*t[3])),
					y2: int(math.Round(s*t[2] + c*t[3])),
				}
			}
		}
		sharedPattern = pattern
	})
	return sharedPattern
}

// Extractor detects FAST-9 corners and describes them with steered BRIEF.
// It is safe for concurrent use; the adaptive threshold is shared.
type Extractor struct {
	mu             sync.Mutex
	threshold      int
	minThreshold   int
	maxThreshold   int
	thresholdStep  int
	adapt          bool
	keypointBudget int
	maxKeypoints   int
	pattern        *briefPattern
}

// NewExtractor creates extractor tuned by cfg. Call cfg.Validate beforehand.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{
		threshold:      cfg.FASTThreshold,
		minThreshold:   cfg.MinFASTThreshold,
		maxThreshold:   cfg.MaxFASTThreshold,
		thresholdStep:  cfg.ThresholdStep,
		adapt:          cfg.AdaptThreshold,
		keypointBudget: cfg.KeypointBudget,
		maxKeypoints:   cfg.MaxKeypoints,
		pattern:        steeredPattern(),
	}
}

// GetThreshold returns current FAST threshold
func (extractor *Extractor) GetThreshold() int {
	extractor.mu.Lock()
	defer extractor.mu.Unlock()
	return extractor.threshold
}

// SetThreshold sets FAST threshold clamped to the configured bounds
func (extractor *Extractor) SetThreshold(threshold int) {
	extractor.mu.Lock()
	defer extractor.mu.Unlock()
	extractor.threshold = clampInt(threshold, extractor.minThreshold, extractor.maxThreshold)
}

// Extract detects and describes features with the current threshold.
// When adaptation is enabled the threshold moves one step towards the
// keypoint budget afterwards.
func (extractor *Extractor) Extract(img image.Image) []FeaturePoint {
	threshold := extractor.GetThreshold()
	features, found := extractor.extract(toGray(img), threshold)
	if extractor.adapt {
		extractor.adaptThreshold(found)
	}
	return features
}

// ExtractWithThreshold detects and describes features with a fixed threshold
// and leaves the adaptive state untouched.
func (extractor *Extractor) ExtractWithThreshold(img image.Image, threshold int) []FeaturePoint {
	features, _ := extractor.extract(toGray(img), threshold)
	return features
}

func (extractor *Extractor) adaptThreshold(found int) {
	extractor.mu.Lock()
	defer extractor.mu.Unlock()
	lower := int(0.8 * float64(extractor.keypointBudget))
	upper := int(1.2 * float64(extractor.keypointBudget))
	switch {
	case found > upper:
		extractor.threshold += extractor.thresholdStep
	case found < lower:
		extractor.threshold -= extractor.thresholdStep
	}
	extractor.threshold = clampInt(extractor.threshold, extractor.minThreshold, extractor.maxThreshold)
}

// extract returns described features and number of corners that survived non-maximum suppression
func (extractor *Extractor) extract(img *image.Gray, threshold int) ([]FeaturePoint, int) {
	corners, found := detectFAST(img, threshold, extractor.maxKeypoints)
	if len(corners) == 0 {
		return nil, found
	}
	smoothed := boxSmooth(img, smoothRadius)
	features := make([]FeaturePoint, 0, len(corners))
	for _, c := range corners {
		angle := intensityCentroidAngle(img, c.x, c.y)
		fp := NewFeaturePoint(r2.Point{X: float64(c.x), Y: float64(c.y)}, extractor.describe(smoothed, c.x, c.y, angle))
		fp.Orientation = angle
		fp.Response = c.response
		features = append(features, fp)
	}
	return features, found
}

// detectFAST runs the segment test with 3x3 non-maximum suppression and keeps
// at most limit strongest corners, strongest first.
func detectFAST(img *image.Gray, threshold, limit int) ([]corner, int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	border := PatchRadius + 1
	if w <= 2*border || h <= 2*border {
		return nil, 0
	}
	scores := make([]float32, w*h)
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			scores[y*w+x] = float32(fastScore(img, x, y, threshold))
		}
	}
	heap := make(cornerHeap, 0, limit)
	found := 0
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			s := scores[y*w+x]
			if s <= 0 || !isLocalMaximum(scores, w, x, y) {
				continue
			}
			found++
			heap.PushBounded(corner{x: x, y: y, response: float64(s)}, limit)
		}
	}
	corners := []corner(heap)
	sort.Slice(corners, func(i, j int) bool {
		return cornerHeap(corners).Less(j, i)
	})
	return corners, found
}

func isLocalMaximum(scores []float32, w, x, y int) bool {
	s := scores[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			if n > s {
				return false
			}
			// Equal scores: the earliest in raster order wins
			if n == s && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// fastScore returns zero for non-corners, otherwise the sum of absolute
// differences beyond threshold over the contiguous side.
func fastScore(img *image.Gray, x, y, threshold int) float64 {
	stride := img.Stride
	center := int(img.Pix[y*stride+x])
	hi := center + threshold
	lo := center - threshold

	// Any arc of 9 covers at least two of the four compass pixels
	compassBright, compassDark := 0, 0
	for i := 0; i < 16; i += 4 {
		v := int(img.Pix[(y+fastCircle[i].Y)*stride+x+fastCircle[i].X])
		if v > hi {
			compassBright++
		} else if v < lo {
			compassDark++
		}
	}
	if compassBright < 2 && compassDark < 2 {
		return 0
	}

	var bright, dark uint32
	sumBright, sumDark := 0, 0
	for i, off := range fastCircle {
		v := int(img.Pix[(y+off.Y)*stride+x+off.X])
		if v > hi {
			bright |= 1 << uint(i)
			sumBright += v - hi
		} else if v < lo {
			dark |= 1 << uint(i)
			sumDark += lo - v
		}
	}
	score := 0
	if hasArc(bright) {
		score = sumBright
	}
	if hasArc(dark) && sumDark > score {
		score = sumDark
	}
	return float64(score)
}

// hasArc reports whether the 16-bit circular mask has fastArc contiguous ones
func hasArc(mask uint32) bool {
	m := mask | mask<<16
	run := m
	for i := 1; i < fastArc; i++ {
		run &= m >> uint(i)
	}
	return run != 0
}

// intensityCentroidAngle returns patch orientation in radians within [0, 2*pi)
func intensityCentroidAngle(img *image.Gray, cx, cy int) float64 {
	m10, m01 := 0, 0
	radiusSq := PatchRadius * PatchRadius
	for dy := -PatchRadius; dy <= PatchRadius; dy++ {
		for dx := -PatchRadius; dx <= PatchRadius; dx++ {
			if dx*dx+dy*dy > radiusSq {
				continue
			}
			v := int(img.Pix[(cy+dy)*img.Stride+cx+dx])
			m10 += dx * v
			m01 += dy * v
		}
	}
	angle := math.Atan2(float64(m01), float64(m10))
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return angle
}

func (extractor *Extractor) describe(smoothed *image.Gray, x, y int, angle float64) Descriptor {
	bins := len(extractor.pattern)
	bin := int(math.Round(angle*180/math.Pi/orientationBin)) % bins
	tests := &extractor.pattern[bin]
	var desc Descriptor
	base := y*smoothed.Stride + x
	for i, t := range tests {
		a := smoothed.Pix[base+t.y1*smoothed.Stride+t.x1]
		b := smoothed.Pix[base+t.y2*smoothed.Stride+t.x2]
		if a < b {
			desc[i/64] |= 1 << uint(i%64)
		}
	}
	return desc
}
