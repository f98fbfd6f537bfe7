package pose

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/steakknife/hamming"
)

// DescriptorBits is the length of a binary descriptor in bits
const DescriptorBits = 256

// Descriptor is a 256-bit binary feature descriptor
type Descriptor [DescriptorBits / 64]uint64

// Distance returns the Hamming distance between two descriptors
func (desc Descriptor) Distance(other Descriptor) int {
	return hamming.Uint64s(desc[:], other[:])
}

// NoRepositoryID marks a feature point without a reference counterpart
const NoRepositoryID = -1

// FeaturePoint is a keypoint with its descriptor and tracking attributes.
//
// For scene features Pt is in image pixels and RepositoryID links to the
// reference point it was matched with. For reference features Pt is in plane
// coordinates (physical units, origin at the reference centre) and Tracked
// tells whether the point already has a live scene correspondence.
type FeaturePoint struct {
	Pt           r2.Point
	Desc         Descriptor
	Scale        float64
	Orientation  float64
	Response     float64
	RepositoryID int
	ObjectID     uuid.UUID
	Tracked      bool
	Outlier      bool
	Distance     int
}

// NewFeaturePoint creates a feature point with no repository link
func NewFeaturePoint(pt r2.Point, desc Descriptor) FeaturePoint {
	return FeaturePoint{
		Pt:           pt,
		Desc:         desc,
		Scale:        1,
		RepositoryID: NoRepositoryID,
	}
}

// String returns a short human readable representation
func (fp FeaturePoint) String() string {
	return fmt.Sprintf("(%.2f, %.2f) repo=%d tracked=%t", fp.Pt.X, fp.Pt.Y, fp.RepositoryID, fp.Tracked)
}
