package pose

import (
	"github.com/golang/geo/r2"
)

// MatchedSet holds index-aligned reference/scene correspondences of one target.
// referenceMatched[i] and sceneMatched[i] always describe the same correspondence.
// MatchedSet is not safe for concurrent use; the owning TrackingContext guards it.
type MatchedSet struct {
	referenceMatched []*FeaturePoint
	sceneMatched     []FeaturePoint
}

// NewMatchedSet creates empty set
func NewMatchedSet() *MatchedSet {
	return &MatchedSet{
		referenceMatched: make([]*FeaturePoint, 0),
		sceneMatched:     make([]FeaturePoint, 0),
	}
}

// Len returns number of correspondences
func (set *MatchedSet) Len() int {
	return len(set.sceneMatched)
}

// Append adds correspondence and marks the reference point as tracked
func (set *MatchedSet) Append(ref *FeaturePoint, scene FeaturePoint) {
	ref.Tracked = true
	scene.RepositoryID = ref.RepositoryID
	scene.ObjectID = ref.ObjectID
	scene.Tracked = true
	scene.Outlier = false
	set.referenceMatched = append(set.referenceMatched, ref)
	set.sceneMatched = append(set.sceneMatched, scene)
}

// Reference returns i-th reference point
func (set *MatchedSet) Reference(i int) *FeaturePoint {
	return set.referenceMatched[i]
}

// Scene returns i-th scene point
func (set *MatchedSet) Scene(i int) FeaturePoint {
	return set.sceneMatched[i]
}

// ScenePoints returns copy of scene pixel positions
func (set *MatchedSet) ScenePoints() []r2.Point {
	pts := make([]r2.Point, len(set.sceneMatched))
	for i := range set.sceneMatched {
		pts[i] = set.sceneMatched[i].Pt
	}
	return pts
}

// ReferencePoints returns copy of reference plane positions
func (set *MatchedSet) ReferencePoints() []r2.Point {
	pts := make([]r2.Point, len(set.referenceMatched))
	for i := range set.referenceMatched {
		pts[i] = set.referenceMatched[i].Pt
	}
	return pts
}

// Distances returns matcher distances of correspondences
func (set *MatchedSet) Distances() []int {
	dists := make([]int, len(set.sceneMatched))
	for i := range set.sceneMatched {
		dists[i] = set.sceneMatched[i].Distance
	}
	return dists
}

// Retain keeps correspondences whose keep flag is true and updates positions
// of kept scene points from pts (index-aligned with the set before removal,
// nil keeps positions). Dropped reference points are released.
// Returns number of removed correspondences.
func (set *MatchedSet) Retain(keep []bool, pts []r2.Point) int {
	n := 0
	for i := range set.sceneMatched {
		if !keep[i] {
			set.referenceMatched[i].Tracked = false
			continue
		}
		scene := set.sceneMatched[i]
		if pts != nil {
			scene.Pt = pts[i]
		}
		set.referenceMatched[n] = set.referenceMatched[i]
		set.sceneMatched[n] = scene
		n++
	}
	removed := len(set.sceneMatched) - n
	for i := n; i < len(set.referenceMatched); i++ {
		set.referenceMatched[i] = nil
	}
	set.referenceMatched = set.referenceMatched[:n]
	set.sceneMatched = set.sceneMatched[:n]
	return removed
}

// MarkOutliers sets Outlier flag of scene points from mask (true means inlier)
func (set *MatchedSet) MarkOutliers(inliers []bool) {
	for i := range set.sceneMatched {
		set.sceneMatched[i].Outlier = !inliers[i]
	}
}

// PruneOutliers removes correspondences flagged as outliers
func (set *MatchedSet) PruneOutliers() int {
	keep := make([]bool, len(set.sceneMatched))
	for i := range set.sceneMatched {
		keep[i] = !set.sceneMatched[i].Outlier
	}
	return set.Retain(keep, nil)
}

// Clear removes every correspondence and releases reference points
func (set *MatchedSet) Clear() {
	for i := range set.referenceMatched {
		set.referenceMatched[i].Tracked = false
		set.referenceMatched[i] = nil
	}
	set.referenceMatched = set.referenceMatched[:0]
	set.sceneMatched = set.sceneMatched[:0]
}
