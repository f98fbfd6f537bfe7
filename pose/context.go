package pose

import (
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// pendingMatch is a correspondence published by the detector and not yet
// merged into the matched set.
type pendingMatch struct {
	reference  *FeaturePoint
	scene      FeaturePoint
	frameIndex uint64
}

// TrackingContext is per-target state: repository, correspondences, camera
// parameters and tracking state. The mutex guards the matched set,
// the pending list, the stopped flag and Tracked flags of repository points.
// Every method acquires the lock itself and releases it before returning.
type TrackingContext struct {
	mu          sync.Mutex
	id          uuid.UUID
	repository  *Repository
	matched     *MatchedSet
	pending     []pendingMatch
	camera      *CameraParameter
	state       State
	stopped     bool
	detections  int
	lastInliers int
	tracked     bool
	filter      *PositionFilter
	position    r3.Vector
}

// newTrackingContext wraps repository; state is StateTrained
func newTrackingContext(id uuid.UUID, repository *Repository, camera *CameraParameter, filter *PositionFilter) *TrackingContext {
	return &TrackingContext{
		id:         id,
		repository: repository,
		matched:    NewMatchedSet(),
		pending:    make([]pendingMatch, 0),
		camera:     camera,
		state:      StateTrained,
		filter:     filter,
	}
}

// GetID returns target handle
func (ctx *TrackingContext) GetID() uuid.UUID {
	return ctx.id
}

// GetRepository returns reference repository
func (ctx *TrackingContext) GetRepository() *Repository {
	return ctx.repository
}

// GetCamera returns camera parameters of the target
func (ctx *TrackingContext) GetCamera() *CameraParameter {
	return ctx.camera
}

// GetState returns tracking state
func (ctx *TrackingContext) GetState() State {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.state
}

func (ctx *TrackingContext) setState(state State) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.state = state
}

// GetDetections returns number of detection passes run for the target
func (ctx *TrackingContext) GetDetections() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.detections
}

// Len returns number of live correspondences
func (ctx *TrackingContext) Len() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.matched.Len()
}

// needsDetection reports whether the target has nothing to track
func (ctx *TrackingContext) needsDetection() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.matched.Len() == 0 && len(ctx.pending) == 0
}

// publish claims reference points for detector candidates and queues them
// for merging. Candidates whose reference point is already tracked are
// skipped. Returns number of queued correspondences.
func (ctx *TrackingContext) publish(candidates []pendingMatch) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.stopped {
		return 0
	}
	ctx.detections++
	accepted := 0
	for _, candidate := range candidates {
		if candidate.reference.Tracked {
			continue
		}
		candidate.reference.Tracked = true
		ctx.pending = append(ctx.pending, candidate)
		accepted++
	}
	return accepted
}

// isClaimed reports whether reference point i is tracked or queued
func (ctx *TrackingContext) isClaimed(i int) bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.stopped || ctx.repository.Point(i).Tracked
}

// takePending removes and returns queued correspondences. Their reference
// points stay claimed until merge or release.
func (ctx *TrackingContext) takePending() []pendingMatch {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if len(ctx.pending) == 0 {
		return nil
	}
	entries := ctx.pending
	ctx.pending = make([]pendingMatch, 0, len(entries))
	return entries
}

// merge appends correspondences to the matched set
func (ctx *TrackingContext) merge(entries []pendingMatch) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.stopped {
		for _, entry := range entries {
			entry.reference.Tracked = false
		}
		return 0
	}
	for _, entry := range entries {
		ctx.matched.Append(entry.reference, entry.scene)
	}
	return len(entries)
}

// release drops correspondences that will not be merged
func (ctx *TrackingContext) release(entries []pendingMatch) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for _, entry := range entries {
		entry.reference.Tracked = false
	}
}

// scenePoints returns copy of matched scene positions
func (ctx *TrackingContext) scenePoints() []r2.Point {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.matched.ScenePoints()
}

// applyFlow moves scene points to their tracked positions and drops lost
// ones from both arrays. pts and status must be aligned with the set as
// returned by scenePoints. Returns number of dropped correspondences.
func (ctx *TrackingContext) applyFlow(pts []r2.Point, status []bool) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if len(status) != ctx.matched.Len() {
		// Set changed since the snapshot; nothing but the foreground mutates it
		return 0
	}
	return ctx.matched.Retain(status, pts)
}

// correspondences returns copies of reference plane points, scene points and matcher distances
func (ctx *TrackingContext) correspondences() ([]r2.Point, []r2.Point, []int) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.matched.ReferencePoints(), ctx.matched.ScenePoints(), ctx.matched.Distances()
}

// applyInliers prunes outliers and clears the set when fewer than minKeep
// correspondences remain. Returns size of the set afterwards.
func (ctx *TrackingContext) applyInliers(inliers []bool, minKeep int) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if len(inliers) == ctx.matched.Len() {
		ctx.matched.MarkOutliers(inliers)
		ctx.matched.PruneOutliers()
	}
	if ctx.matched.Len() < minKeep {
		ctx.matched.Clear()
	}
	return ctx.matched.Len()
}

// clearBelow clears the matched set when it has fewer than minKeep entries
func (ctx *TrackingContext) clearBelow(minKeep int) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.matched.Len() < minKeep {
		ctx.matched.Clear()
	}
	return ctx.matched.Len()
}

// setOutcome stores per-frame result used for status reports
func (ctx *TrackingContext) setOutcome(tracked bool, inliers int, position r3.Vector) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.tracked = tracked
	ctx.lastInliers = inliers
	ctx.position = position
}

// stop marks context as removed and releases every claimed reference point.
// After stop returns the detector never modifies the context again.
func (ctx *TrackingContext) stop() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.stopped = true
	for _, entry := range ctx.pending {
		entry.reference.Tracked = false
	}
	ctx.pending = nil
	ctx.matched.Clear()
}

// isStopped reports whether the context was removed
func (ctx *TrackingContext) isStopped() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.stopped
}

// Status returns snapshot of the context
func (ctx *TrackingContext) Status() TargetStatus {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return TargetStatus{
		ID:        ctx.id,
		State:     ctx.state,
		Matches:   ctx.matched.Len(),
		Inliers:   ctx.lastInliers,
		Tracked:   ctx.tracked,
		Extrinsic: ctx.camera.GetExtrinsic(),
		Position:  ctx.position,
	}
}
