package pose

import (
	"sort"

	"github.com/arthurkushman/go-hungarian"
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
)

// detectorWorker extracts features from frames handed over by the
// coordinator, matches them against one target's repository and publishes
// new correspondences to that target.
type detectorWorker struct {
	slot          *frameSlot
	lookup        func(id uuid.UUID) *TrackingContext
	extractor     *Extractor
	flow          func() FlowTracker
	crossCheck    bool
	crossCheckErr float64
	done          chan struct{}
	logDebug      func(msg string, args ...interface{})
}

func newDetectorWorker(slot *frameSlot, lookup func(uuid.UUID) *TrackingContext, extractor *Extractor, flow func() FlowTracker, cfg Config) *detectorWorker {
	return &detectorWorker{
		slot:          slot,
		lookup:        lookup,
		extractor:     extractor,
		flow:          flow,
		crossCheck:    cfg.CrossCheckFlow,
		crossCheckErr: cfg.CrossCheckError,
		done:          make(chan struct{}),
		logDebug:      cfg.Logger.Debug,
	}
}

// run serves requests until the slot is closed
func (worker *detectorWorker) run() {
	defer close(worker.done)
	for {
		req, ok := worker.slot.Take()
		if !ok {
			return
		}
		worker.process(req)
		worker.slot.Done()
	}
}

// process runs one detection pass and returns number of published correspondences
func (worker *detectorWorker) process(req *detectionRequest) int {
	ctx := worker.lookup(req.target)
	if ctx == nil || ctx.isStopped() {
		return 0
	}
	features := worker.extractor.Extract(req.frame.Base())
	candidates := worker.match(ctx, features, req.frameIndex)
	if worker.crossCheck && req.prev != nil && len(candidates) > 0 {
		candidates = worker.verifyByFlow(req, candidates)
	}
	published := ctx.publish(candidates)
	worker.logDebug("detection pass", "target", req.target.String(), "frame", req.frameIndex, "features", len(features), "published", published)
	return published
}

// match queries repository for every feature and resolves many-to-one claims
// so that each reference point receives at most one scene feature.
func (worker *detectorWorker) match(ctx *TrackingContext, features []FeaturePoint, frameIndex uint64) []pendingMatch {
	repo := ctx.GetRepository()
	claims := make(map[int][]int)
	dists := make([]int, len(features))
	for i := range features {
		idx, dist, ok := repo.Match(features[i].Desc)
		if !ok || ctx.isClaimed(idx) {
			continue
		}
		dists[i] = dist
		claims[idx] = append(claims[idx], i)
	}
	refs := make([]int, 0, len(claims))
	for idx := range claims {
		refs = append(refs, idx)
	}
	sort.Ints(refs)

	candidates := make([]pendingMatch, 0, len(refs))
	conflicts := make([]int, 0)
	for _, idx := range refs {
		if len(claims[idx]) == 1 {
			candidates = append(candidates, newPendingMatch(repo, idx, features[claims[idx][0]], dists[claims[idx][0]], frameIndex))
			continue
		}
		conflicts = append(conflicts, idx)
	}
	for _, pair := range resolveClaims(conflicts, claims, dists) {
		idx, i := pair[0], pair[1]
		candidates = append(candidates, newPendingMatch(repo, idx, features[i], dists[i], frameIndex))
	}
	return candidates
}

func newPendingMatch(repo *Repository, idx int, scene FeaturePoint, dist int, frameIndex uint64) pendingMatch {
	scene.Distance = dist
	scene.RepositoryID = idx
	scene.ObjectID = repo.GetObjectID()
	return pendingMatch{
		reference:  repo.Point(idx),
		scene:      scene,
		frameIndex: frameIndex,
	}
}

// resolveClaims assigns contested reference points to scene features with
// the Hungarian method maximizing descriptor similarity. Returns pairs of
// (reference index, feature index).
func resolveClaims(refs []int, claims map[int][]int, dists []int) [][2]int {
	if len(refs) == 0 {
		return nil
	}
	rows := make([]int, 0)
	for _, idx := range refs {
		rows = append(rows, claims[idx]...)
	}
	size := maxInt(len(rows), len(refs))
	weights := make([][]float64, size)
	for r := range weights {
		weights[r] = make([]float64, size)
	}
	r := 0
	for c, idx := range refs {
		for range claims[idx] {
			weights[r][c] = 1 - float64(dists[rows[r]])/float64(DescriptorBits)
			r++
		}
	}
	pairs := make([][2]int, 0, len(refs))
	for row, assignment := range hungarian.SolveMax(weights) {
		for col, weight := range assignment {
			if row < len(rows) && col < len(refs) && weight > 0 {
				pairs = append(pairs, [2]int{refs[col], rows[row]})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i][0] < pairs[j][0]
	})
	return pairs
}

// verifyByFlow keeps candidates whose position survives forward-backward
// tracking against the previous frame within the configured error.
func (worker *detectorWorker) verifyByFlow(req *detectionRequest, candidates []pendingMatch) []pendingMatch {
	pts := make([]r2.Point, len(candidates))
	for i := range candidates {
		pts[i] = candidates[i].scene.Pt
	}
	_, errs := forwardBackwardError(worker.flow(), req.frame, req.prev, pts)
	kept := candidates[:0]
	for i := range candidates {
		if errs[i] < worker.crossCheckErr {
			kept = append(kept, candidates[i])
		}
	}
	return kept
}
