package pose

import (
	"image"
	"sort"
	"sync"

	"github.com/ausocean/utils/logging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// historySize is number of recent pyramids kept to advance late detector results
const historySize = 8

// TargetStatus is per-target outcome of one processed frame
type TargetStatus struct {
	ID        uuid.UUID
	State     State
	Matches   int
	Inliers   int
	Tracked   bool
	Extrinsic [16]float64
	// Position is camera centre in plane coordinates, smoothed when enabled
	Position r3.Vector
}

// Coordinator tracks one or more planar targets in a single video stream.
// ProcessFrame must be called from one goroutine; target registration and
// removal may happen concurrently with it.
type Coordinator struct {
	mu         sync.RWMutex
	cfg        Config
	logger     logging.Logger
	frameSize  image.Point
	intrinsics Intrinsics
	distortion Distortion

	extractor *Extractor
	estimator *Estimator
	flow      FlowTracker

	contexts map[uuid.UUID]*TrackingContext
	order    []uuid.UUID
	cursor   int
	passes   int

	frameIndex uint64
	prev       *Pyramid
	history    map[uint64]*Pyramid

	slot      *frameSlot
	worker    *detectorWorker
	closeOnce sync.Once
	closed    bool
}

// NewCoordinatorDefault creates coordinator with default configuration
func NewCoordinatorDefault(frameSize image.Point, intrinsics Intrinsics) (*Coordinator, error) {
	return NewCoordinator(frameSize, intrinsics, Distortion{}, NewDefaultConfig())
}

// NewCoordinator validates camera parameters and configuration and starts the
// background detector unless synchronous detection is configured.
func NewCoordinator(frameSize image.Point, intrinsics Intrinsics, distortion Distortion, cfg Config) (*Coordinator, error) {
	if frameSize.X <= 0 || frameSize.Y <= 0 {
		return nil, errors.Errorf("frame size must be positive, got %v", frameSize)
	}
	if intrinsics.Fx <= 0 || intrinsics.Fy <= 0 {
		return nil, errors.Wrapf(ErrCameraNotInitialized, "fx=%v fy=%v", intrinsics.Fx, intrinsics.Fy)
	}
	cfg.Validate()
	coordinator := &Coordinator{
		cfg:        cfg,
		logger:     cfg.Logger,
		frameSize:  frameSize,
		intrinsics: intrinsics,
		distortion: distortion,
		extractor:  NewExtractor(cfg),
		estimator:  NewEstimator(cfg),
		flow:       newFlowTracker(cfg),
		contexts:   make(map[uuid.UUID]*TrackingContext),
		order:      make([]uuid.UUID, 0),
		history:    make(map[uint64]*Pyramid),
		slot:       newFrameSlot(),
	}
	coordinator.worker = newDetectorWorker(coordinator.slot, coordinator.lookup, coordinator.extractor, coordinator.currentFlow, cfg)
	if !cfg.SynchronousDetection {
		go coordinator.worker.run()
	} else {
		close(coordinator.worker.done)
	}
	return coordinator, nil
}

func newFlowTracker(cfg Config) FlowTracker {
	if cfg.OpenCVFlow {
		return NewCVFlowTracker(cfg)
	}
	return NewLKTracker(cfg)
}

// AddTarget builds a repository from the reference image of physical size
// widthMM x heightMM and registers it. Returns handle of the new target.
func (coordinator *Coordinator) AddTarget(ref image.Image, widthMM, heightMM float64) (uuid.UUID, error) {
	coordinator.mu.RLock()
	cfg := coordinator.cfg
	coordinator.mu.RUnlock()
	id := uuid.New()
	repo, err := NewRepository(id, ref, widthMM, heightMM, coordinator.extractor, cfg)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "Can't build reference repository")
	}
	camera, err := NewCameraParameter(coordinator.intrinsics, coordinator.distortion)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "Can't initialize camera")
	}
	var filter *PositionFilter
	if cfg.SmoothPosition {
		filter = NewPositionFilter(cfg.FilterDt)
	}
	ctx := newTrackingContext(id, repo, camera, filter)

	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	if coordinator.closed {
		return uuid.Nil, ErrClosed
	}
	coordinator.contexts[id] = ctx
	coordinator.order = append(coordinator.order, id)
	coordinator.logger.Info("target added", "id", id.String(), "features", repo.Size())
	return id, nil
}

// RemoveTarget unregisters target. After it returns the background detector
// does not modify the target any more.
func (coordinator *Coordinator) RemoveTarget(id uuid.UUID) error {
	coordinator.mu.Lock()
	ctx, ok := coordinator.contexts[id]
	if !ok {
		coordinator.mu.Unlock()
		return errors.Wrapf(ErrUnknownTarget, "id %s", id)
	}
	delete(coordinator.contexts, id)
	for i := range coordinator.order {
		if coordinator.order[i] == id {
			coordinator.order = append(coordinator.order[:i], coordinator.order[i+1:]...)
			break
		}
	}
	coordinator.mu.Unlock()
	ctx.stop()
	coordinator.logger.Info("target removed", "id", id.String())
	return nil
}

// Targets returns handles in registration order
func (coordinator *Coordinator) Targets() []uuid.UUID {
	coordinator.mu.RLock()
	defer coordinator.mu.RUnlock()
	out := make([]uuid.UUID, len(coordinator.order))
	copy(out, coordinator.order)
	return out
}

// Context returns tracking context of target
func (coordinator *Coordinator) Context(id uuid.UUID) (*TrackingContext, error) {
	ctx := coordinator.lookup(id)
	if ctx == nil {
		return nil, errors.Wrapf(ErrUnknownTarget, "id %s", id)
	}
	return ctx, nil
}

// Status returns latest status of target
func (coordinator *Coordinator) Status(id uuid.UUID) (TargetStatus, error) {
	ctx, err := coordinator.Context(id)
	if err != nil {
		return TargetStatus{}, err
	}
	return ctx.Status(), nil
}

// SetFlowTracker replaces the frame-to-frame point tracker. A later
// UpdateConfig of a flow variable builds a new tracker from configuration.
func (coordinator *Coordinator) SetFlowTracker(flow FlowTracker) {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	coordinator.flow = flow
}

func (coordinator *Coordinator) currentFlow() FlowTracker {
	coordinator.mu.RLock()
	defer coordinator.mu.RUnlock()
	return coordinator.flow
}

// UpdateConfig applies runtime changes given as variable name/value pairs.
// Extraction threshold, estimator, detection interval and flow settings take
// effect on the next frame. Repository and filter settings apply to targets
// added afterwards. Fixed variables are ignored with a warning.
func (coordinator *Coordinator) UpdateConfig(vars map[string]string) {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	accepted := make(map[string]string, len(vars))
	for name, value := range vars {
		if isFixedVariable(name) {
			coordinator.logger.Warning("variable can't be changed at runtime", "name", name, "value", value)
			continue
		}
		accepted[name] = value
	}
	coordinator.cfg.Update(accepted)
	coordinator.cfg.Validate()
	if _, ok := accepted[KeyFASTThreshold]; ok {
		coordinator.extractor.SetThreshold(coordinator.cfg.FASTThreshold)
	}
	coordinator.estimator = NewEstimator(coordinator.cfg)
	for _, key := range []string{KeyFlowWindow, KeyFlowLevels, KeyFlowIterations, KeyFlowMinEigen, KeyOpenCVFlow} {
		if _, ok := accepted[key]; ok {
			coordinator.flow = newFlowTracker(coordinator.cfg)
			break
		}
	}
}

// Flush blocks until the background detector is idle
func (coordinator *Coordinator) Flush() {
	coordinator.slot.WaitIdle()
}

// Close stops the background detector and waits for it to exit
func (coordinator *Coordinator) Close() {
	coordinator.closeOnce.Do(func() {
		coordinator.mu.Lock()
		coordinator.closed = true
		coordinator.mu.Unlock()
		coordinator.slot.Close()
		<-coordinator.worker.done
	})
}

func (coordinator *Coordinator) lookup(id uuid.UUID) *TrackingContext {
	coordinator.mu.RLock()
	defer coordinator.mu.RUnlock()
	return coordinator.contexts[id]
}

// snapshot returns contexts in registration order plus the per-frame collaborators
func (coordinator *Coordinator) snapshot() ([]*TrackingContext, *Estimator, FlowTracker, Config, bool) {
	coordinator.mu.RLock()
	defer coordinator.mu.RUnlock()
	contexts := make([]*TrackingContext, 0, len(coordinator.order))
	for _, id := range coordinator.order {
		contexts = append(contexts, coordinator.contexts[id])
	}
	return contexts, coordinator.estimator, coordinator.flow, coordinator.cfg, coordinator.closed
}

// ProcessFrame advances every target by one frame and returns their statuses
// in registration order. Per-frame tracking failures are reported through
// the statuses; errors are returned only for a closed coordinator or a frame
// of unexpected size.
func (coordinator *Coordinator) ProcessFrame(frame image.Image) ([]TargetStatus, error) {
	contexts, estimator, flow, cfg, closed := coordinator.snapshot()
	if closed {
		return nil, ErrClosed
	}
	if frame.Bounds().Size() != coordinator.frameSize {
		return nil, errors.Wrapf(ErrFrameSize, "got %v, want %v", frame.Bounds().Size(), coordinator.frameSize)
	}
	index := coordinator.frameIndex
	pyr := NewPyramid(frame, cfg.FlowLevels)
	coordinator.remember(index, pyr)

	if coordinator.prev != nil {
		// Contributions published since the previous frame, positioned on it or earlier
		for _, ctx := range contexts {
			coordinator.mergePending(ctx, flow, index-1)
		}
		coordinator.advance(contexts, flow, coordinator.prev, pyr)
	}

	if len(contexts) > 0 && index%uint64(cfg.DetectionInterval) == 0 {
		target := coordinator.nextTarget(contexts)
		req := &detectionRequest{
			target:     target.GetID(),
			frameIndex: index,
			frame:      pyr,
			prev:       coordinator.prev,
		}
		if cfg.SynchronousDetection {
			coordinator.worker.process(req)
			coordinator.mergePending(target, flow, index)
		} else if coordinator.slot.Put(req) {
			coordinator.logger.Debug("detection request overwritten", "frame", index)
		}
	}

	statuses := make([]TargetStatus, 0, len(contexts))
	for _, ctx := range contexts {
		coordinator.estimate(ctx, estimator, cfg)
		statuses = append(statuses, ctx.Status())
	}

	coordinator.prev = pyr
	coordinator.frameIndex++
	return statuses, nil
}

func (coordinator *Coordinator) remember(index uint64, pyr *Pyramid) {
	coordinator.history[index] = pyr
	if index >= historySize {
		delete(coordinator.history, index-historySize)
	}
}

// mergePending moves detector contributions into the matched set of ctx so
// that every merged point is positioned on frame at. Contributions detected
// on older frames are advanced by optical flow first; those older than the
// kept history are dropped.
func (coordinator *Coordinator) mergePending(ctx *TrackingContext, flow FlowTracker, at uint64) {
	entries := ctx.takePending()
	if len(entries) == 0 {
		return
	}
	ready := make([]pendingMatch, 0, len(entries))
	stale := make(map[uint64][]pendingMatch)
	dropped := make([]pendingMatch, 0)
	for _, entry := range entries {
		switch {
		case entry.frameIndex == at:
			ready = append(ready, entry)
		case entry.frameIndex < at && coordinator.history[entry.frameIndex] != nil:
			stale[entry.frameIndex] = append(stale[entry.frameIndex], entry)
		default:
			dropped = append(dropped, entry)
		}
	}
	target := coordinator.history[at]
	frames := make([]uint64, 0, len(stale))
	for from := range stale {
		frames = append(frames, from)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	for _, from := range frames {
		group := stale[from]
		pts := make([]r2.Point, len(group))
		for i := range group {
			pts[i] = group[i].scene.Pt
		}
		moved, status := flow.Track(coordinator.history[from], target, pts)
		for i := range group {
			if !status[i] {
				dropped = append(dropped, group[i])
				continue
			}
			group[i].scene.Pt = moved[i]
			ready = append(ready, group[i])
		}
	}
	if len(dropped) > 0 {
		ctx.release(dropped)
	}
	ctx.merge(ready)
}

// advance tracks scene points of every context from prev to next with a
// single batched flow call and removes lost correspondences.
func (coordinator *Coordinator) advance(contexts []*TrackingContext, flow FlowTracker, prev, next *Pyramid) {
	offsets := make([]int, len(contexts)+1)
	all := make([]r2.Point, 0)
	for i, ctx := range contexts {
		pts := ctx.scenePoints()
		all = append(all, pts...)
		offsets[i+1] = len(all)
	}
	if len(all) == 0 {
		return
	}
	moved, status := flow.Track(prev, next, all)
	for i, ctx := range contexts {
		lo, hi := offsets[i], offsets[i+1]
		if lo == hi {
			continue
		}
		if lost := ctx.applyFlow(moved[lo:hi], status[lo:hi]); lost > 0 {
			coordinator.logger.Debug("points lost by optical flow", "target", ctx.GetID().String(), "lost", lost)
		}
	}
}

// nextTarget picks target for the detection pass. Strict round-robin on odd
// passes; on even passes targets with nothing to track go first.
func (coordinator *Coordinator) nextTarget(contexts []*TrackingContext) *TrackingContext {
	n := len(contexts)
	coordinator.passes++
	if coordinator.passes%2 == 0 {
		for k := 0; k < n; k++ {
			i := (coordinator.cursor + k) % n
			if contexts[i].needsDetection() {
				coordinator.cursor = i + 1
				return contexts[i]
			}
		}
	}
	i := coordinator.cursor % n
	coordinator.cursor = i + 1
	return contexts[i]
}

// estimate runs robust estimation for ctx and updates its pose, state and outcome
func (coordinator *Coordinator) estimate(ctx *TrackingContext, estimator *Estimator, cfg Config) {
	minKeep := cfg.MinCorrespondences / 2
	camera := ctx.GetCamera()
	fail := func(err error) {
		position := camera.Position()
		// Coast on the motion model until the target is lost
		if ctx.filter != nil && ctx.filter.Initialized() && ctx.GetState() != StateLost {
			position = ctx.filter.Predict()
		}
		ctx.setOutcome(false, 0, position)
		remaining := ctx.clearBelow(minKeep)
		coordinator.logger.Debug("pose not estimated", "target", ctx.GetID().String(), "error", err.Error(), "matches", remaining)
		coordinator.updateState(ctx, remaining)
	}

	if n := ctx.Len(); n < cfg.MinCorrespondences {
		fail(errors.Wrapf(ErrInsufficientCorrespondences, "%d of %d", n, cfg.MinCorrespondences))
		return
	}
	reference, scene, distances := ctx.correspondences()
	undistorted := make([]r2.Point, len(scene))
	for i := range scene {
		undistorted[i] = camera.Undistort(scene[i])
	}
	result, err := estimator.Estimate(reference, undistorted, distances, camera.GetIntrinsics())
	if err != nil || !result.OK {
		if err == nil {
			err = ErrDegenerateEstimate
		}
		fail(err)
		return
	}

	remaining := ctx.applyInliers(result.InlierMask, minKeep)
	if remaining == 0 {
		fail(errors.Wrapf(ErrTrackingLost, "%d inliers", result.Inliers))
		return
	}
	camera.SetPose(result.Rotation, result.Translation)
	position := cameraCentre(result.Rotation, result.Translation)
	if ctx.filter != nil {
		ctx.filter.Predict()
		smoothed, filterErr := ctx.filter.Update(position)
		if filterErr != nil {
			coordinator.logger.Warning("position filter failed", "target", ctx.GetID().String(), "error", filterErr.Error())
		} else {
			position = smoothed
		}
	}
	ctx.setOutcome(true, result.Inliers, position)
	coordinator.updateState(ctx, remaining)
}

// updateState applies state transitions after a frame
func (coordinator *Coordinator) updateState(ctx *TrackingContext, remaining int) {
	state := ctx.GetState()
	tracked := ctx.Status().Tracked
	next := state
	switch {
	case tracked:
		next = StateTracking
	case remaining == 0 && state == StateTracking:
		next = StateLost
	}
	if next == state {
		return
	}
	ctx.setState(next)
	if next == StateLost && ctx.filter != nil {
		ctx.filter.Reset()
	}
	coordinator.logger.Info("target state changed", "target", ctx.GetID().String(), "from", state.String(), "to", next.String())
}
