package pose

import (
	"testing"

	"github.com/golang/geo/r2"
)

func filledSet(n int) (*MatchedSet, []FeaturePoint) {
	refs := make([]FeaturePoint, n)
	set := NewMatchedSet()
	for i := range refs {
		refs[i] = NewFeaturePoint(r2.Point{X: float64(i), Y: 0}, Descriptor{})
		refs[i].RepositoryID = i
		scene := NewFeaturePoint(r2.Point{X: float64(i), Y: 100}, Descriptor{})
		scene.Distance = i
		set.Append(&refs[i], scene)
	}
	return set, refs
}

func TestMatchedSetAppend(t *testing.T) {
	set, refs := filledSet(5)
	if set.Len() != 5 {
		t.Fatalf("Expected 5, got %d", set.Len())
	}
	for i := 0; i < set.Len(); i++ {
		if !refs[i].Tracked {
			t.Errorf("Expected reference %d to be tracked", i)
		}
		if set.Scene(i).RepositoryID != i {
			t.Errorf("Expected scene %d linked to %d, got %d", i, i, set.Scene(i).RepositoryID)
		}
		if set.Reference(i) != &refs[i] {
			t.Errorf("Expected reference %d to point at repository entry", i)
		}
	}
	dists := set.Distances()
	if dists[3] != 3 {
		t.Errorf("Expected distance 3, got %d", dists[3])
	}
}

func TestMatchedSetRetain(t *testing.T) {
	set, refs := filledSet(5)
	keep := []bool{true, false, true, false, true}
	moved := make([]r2.Point, 5)
	for i := range moved {
		moved[i] = r2.Point{X: float64(i), Y: 200}
	}
	if removed := set.Retain(keep, moved); removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if set.Len() != 3 || len(set.ReferencePoints()) != 3 || len(set.ScenePoints()) != 3 {
		t.Fatalf("Expected aligned length 3, got %d", set.Len())
	}
	for i, expected := range []int{0, 2, 4} {
		if set.Reference(i).RepositoryID != expected || set.Scene(i).RepositoryID != expected {
			t.Errorf("Expected pair %d to keep correspondence %d", i, expected)
		}
		if set.Scene(i).Pt.Y != 200 {
			t.Errorf("Expected updated position, got %v", set.Scene(i).Pt)
		}
	}
	if refs[1].Tracked || refs[3].Tracked {
		t.Error("Expected dropped references to be released")
	}
	if !refs[0].Tracked || !refs[2].Tracked || !refs[4].Tracked {
		t.Error("Expected kept references to stay tracked")
	}
}

func TestMatchedSetPruneOutliers(t *testing.T) {
	set, refs := filledSet(4)
	set.MarkOutliers([]bool{false, true, true, false})
	if removed := set.PruneOutliers(); removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if set.Len() != 2 || set.Reference(0).RepositoryID != 1 {
		t.Errorf("Expected inliers 1 and 2 to remain, got %d entries", set.Len())
	}
	if refs[0].Tracked || refs[3].Tracked {
		t.Error("Expected outlier references to be released")
	}
}

func TestMatchedSetClear(t *testing.T) {
	set, refs := filledSet(3)
	set.Clear()
	if set.Len() != 0 {
		t.Errorf("Expected empty set, got %d", set.Len())
	}
	for i := range refs {
		if refs[i].Tracked {
			t.Errorf("Expected reference %d to be released", i)
		}
	}
}
