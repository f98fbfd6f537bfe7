package pose

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// descriptorIndex is an immutable nearest neighbour index over repository
// descriptors. The same physical corner appears once per repository scale,
// so the second neighbour is searched among points lying farther than
// minSeparation from the best one on the plane.
type descriptorIndex struct {
	descs         []Descriptor
	positions     []r2.Point
	minSeparation float64
}

func newDescriptorIndex(points []FeaturePoint, minSeparation float64) *descriptorIndex {
	index := &descriptorIndex{
		descs:         make([]Descriptor, len(points)),
		positions:     make([]r2.Point, len(points)),
		minSeparation: minSeparation,
	}
	for i := range points {
		index.descs[i] = points[i].Desc
		index.positions[i] = points[i].Pt
	}
	return index
}

// nearestTwo returns indices and distances of the nearest neighbour and of
// the nearest neighbour at a different plane location. Missing neighbours
// have index -1.
func (index *descriptorIndex) nearestTwo(desc Descriptor) (int, int, int, int) {
	dists := make([]int, len(index.descs))
	best, bestDist := -1, math.MaxInt32
	for i := range index.descs {
		d := desc.Distance(index.descs[i])
		dists[i] = d
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return -1, 0, -1, 0
	}
	second, secondDist := -1, math.MaxInt32
	origin := index.positions[best]
	for i, d := range dists {
		if i == best || d >= secondDist {
			continue
		}
		if euclideanDistance(index.positions[i], origin) <= index.minSeparation {
			continue
		}
		second, secondDist = i, d
	}
	return best, bestDist, second, secondDist
}

// sameSpotPixels is the distance in reference pixels under which two
// repository points are considered the same corner seen at different scales
const sameSpotPixels = 4.0

// Repository holds features of one planar reference in plane coordinates.
// Plane coordinates are in the physical units of the reference size with
// origin at the image centre, X to the right, Y down and Z = 0.
type Repository struct {
	objectID uuid.UUID
	points   []FeaturePoint
	index    *descriptorIndex
	ratio    float64
	width    float64
	height   float64
}

// NewRepository extracts features of ref at every configured scale and maps
// them onto a plane of widthMM x heightMM.
func NewRepository(objectID uuid.UUID, ref image.Image, widthMM, heightMM float64, extractor *Extractor, cfg Config) (*Repository, error) {
	if ref == nil || ref.Bounds().Empty() {
		return nil, ErrEmptyReference
	}
	if widthMM <= 0 || heightMM <= 0 {
		return nil, errors.Errorf("reference size must be positive, got %vx%v", widthMM, heightMM)
	}
	gray := toGray(ref)
	w := float64(gray.Rect.Dx())
	h := float64(gray.Rect.Dy())
	repo := &Repository{
		objectID: objectID,
		points:   make([]FeaturePoint, 0, cfg.MaxKeypoints*len(cfg.RepositoryScales)),
		ratio:    cfg.MatchRatio,
		width:    widthMM,
		height:   heightMM,
	}
	for _, scale := range cfg.RepositoryScales {
		scaled := resizeGray(gray, scale)
		features := extractor.ExtractWithThreshold(scaled, cfg.FASTThreshold)
		for _, fp := range features {
			// Pixel centres of the resampled image
			px := (fp.Pt.X+0.5)/scale - 0.5
			py := (fp.Pt.Y+0.5)/scale - 0.5
			fp.Pt = r2.Point{
				X: (px - w/2) * widthMM / w,
				Y: (py - h/2) * heightMM / h,
			}
			fp.Scale = scale
			fp.ObjectID = objectID
			fp.RepositoryID = len(repo.points)
			repo.points = append(repo.points, fp)
		}
	}
	if len(repo.points) == 0 {
		return nil, ErrEmptyReference
	}
	repo.index = newDescriptorIndex(repo.points, sameSpotPixels*widthMM/w)
	return repo, nil
}

// Match returns the repository index of the nearest descriptor when it passes
// the distinctiveness ratio test. A repository with a single entry accepts its
// only neighbour.
func (repo *Repository) Match(desc Descriptor) (int, int, bool) {
	best, bestDist, second, secondDist := repo.index.nearestTwo(desc)
	if best < 0 {
		return -1, 0, false
	}
	if second < 0 {
		return best, bestDist, true
	}
	if float64(bestDist) < repo.ratio*float64(secondDist) {
		return best, bestDist, true
	}
	return -1, bestDist, false
}

// Size returns number of reference features
func (repo *Repository) Size() int {
	return len(repo.points)
}

// Point returns pointer to i-th reference feature
func (repo *Repository) Point(i int) *FeaturePoint {
	return &repo.points[i]
}

// GetObjectID returns identifier of the target owning the repository
func (repo *Repository) GetObjectID() uuid.UUID {
	return repo.objectID
}

// PhysicalSize returns width and height of the reference plane
func (repo *Repository) PhysicalSize() (float64, float64) {
	return repo.width, repo.height
}

// Corners returns plane corners in clockwise order starting from the top-left one
func (repo *Repository) Corners() [4]r3.Vector {
	hw, hh := repo.width/2, repo.height/2
	return [4]r3.Vector{
		{X: -hw, Y: -hh},
		{X: hw, Y: -hh},
		{X: hw, Y: hh},
		{X: -hw, Y: hh},
	}
}

// trackedCount returns number of reference points with a live correspondence
func (repo *Repository) trackedCount() int {
	n := 0
	for i := range repo.points {
		if repo.points[i].Tracked {
			n++
		}
	}
	return n
}
