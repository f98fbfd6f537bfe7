package pose

import (
	"image"
	"sort"
	"testing"
)

func TestHasArc(t *testing.T) {
	// bits 12..15 and 0..4 form a wrapped arc of 9
	if !hasArc(0xF01F) {
		t.Error("Expected wrapped arc of 9 to be found")
	}
	if hasArc(0x00FF) {
		t.Error("Expected arc of 8 to be rejected")
	}
	if !hasArc(0x01FF) {
		t.Error("Expected arc of 9 to be found")
	}
}

func TestDescriptorDistance(t *testing.T) {
	a := Descriptor{}
	b := Descriptor{^uint64(0), 0, 0, 1}
	if d := a.Distance(b); d != 65 {
		t.Errorf("Expected 65, got %d", d)
	}
	if d := b.Distance(b); d != 0 {
		t.Errorf("Expected 0, got %d", d)
	}
}

func TestExtractSquareCorners(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 30; y < 70; y++ {
		for x := 30; x < 70; x++ {
			img.Pix[y*img.Stride+x] = 255
		}
	}
	extractor := NewExtractor(NewDefaultConfig())
	features := extractor.Extract(img)
	if len(features) < 4 {
		t.Fatalf("Expected at least 4 corners, got %d", len(features))
	}
	expected := []image.Point{{30, 30}, {69, 30}, {69, 69}, {30, 69}}
	for _, corner := range expected {
		found := false
		for _, fp := range features {
			if euclideanDistance(fp.Pt, NewPointFrom(corner)) <= 3 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected a feature near %v", corner)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	img := texturedPlane(320, 240, 1)
	extractor := NewExtractor(NewDefaultConfig())
	first := extractor.Extract(img)
	second := NewExtractor(NewDefaultConfig()).Extract(img)
	if len(first) < 50 {
		t.Fatalf("Expected textured plane to produce many features, got %d", len(first))
	}
	if len(first) != len(second) {
		t.Fatalf("Expected %d features, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Pt != second[i].Pt || first[i].Desc != second[i].Desc || first[i].Response != second[i].Response {
			t.Errorf("Feature %d differs: %v vs %v", i, first[i], second[i])
		}
		if first[i].RepositoryID != NoRepositoryID {
			t.Errorf("Expected scene feature without repository link, got %d", first[i].RepositoryID)
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i].Response > first[i-1].Response {
			t.Errorf("Expected features ordered by response, %v after %v", first[i].Response, first[i-1].Response)
			break
		}
	}
}

func TestExtractRotationInvariance(t *testing.T) {
	img := texturedPlane(320, 240, 2)
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rotated := image.NewGray(img.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rotated.Pix[(h-1-y)*rotated.Stride+(w-1-x)] = img.Pix[y*img.Stride+x]
		}
	}
	extractor := NewExtractor(NewDefaultConfig())
	original := extractor.Extract(img)
	turned := extractor.Extract(rotated)
	byPosition := make(map[image.Point]FeaturePoint, len(turned))
	for _, fp := range turned {
		byPosition[image.Pt(int(fp.Pt.X), int(fp.Pt.Y))] = fp
	}
	dists := make([]int, 0)
	for _, fp := range original {
		mapped := image.Pt(w-1-int(fp.Pt.X), h-1-int(fp.Pt.Y))
		other, ok := byPosition[mapped]
		if !ok {
			continue
		}
		dists = append(dists, fp.Desc.Distance(other.Desc))
	}
	if len(dists) < 20 {
		t.Fatalf("Expected at least 20 corresponding corners, got %d", len(dists))
	}
	sort.Ints(dists)
	if median := dists[len(dists)/2]; median > 30 {
		t.Errorf("Expected median descriptor distance under 30 after 180 degree turn, got %d", median)
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	img := texturedPlane(320, 240, 3)
	cfg := NewDefaultConfig()
	cfg.AdaptThreshold = true
	cfg.KeypointBudget = 5
	extractor := NewExtractor(cfg)
	before := extractor.GetThreshold()
	extractor.Extract(img)
	if after := extractor.GetThreshold(); after != before+cfg.ThresholdStep {
		t.Errorf("Expected threshold to rise to %d, got %d", before+cfg.ThresholdStep, after)
	}

	cfg.KeypointBudget = 100000
	extractor = NewExtractor(cfg)
	extractor.Extract(img)
	if after := extractor.GetThreshold(); after != before-cfg.ThresholdStep {
		t.Errorf("Expected threshold to drop to %d, got %d", before-cfg.ThresholdStep, after)
	}

	extractor.SetThreshold(1000)
	if got := extractor.GetThreshold(); got != cfg.MaxFASTThreshold {
		t.Errorf("Expected threshold clamped to %d, got %d", cfg.MaxFASTThreshold, got)
	}
}
