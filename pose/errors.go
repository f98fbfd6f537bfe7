package pose

import "github.com/pkg/errors"

// Per-frame conditions. They are absorbed by Coordinator.ProcessFrame and only
// surface through TargetStatus; direct callers of Estimator get them as errors.
var (
	// ErrInsufficientCorrespondences means the matched set is below the minimum count and estimation was skipped
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
	// ErrDegenerateEstimate means no sample produced a model reaching the minimal inlier count
	ErrDegenerateEstimate = errors.New("degenerate estimate")
	// ErrTrackingLost means the matched set emptied and the target waits for re-detection
	ErrTrackingLost = errors.New("tracking lost")
	// ErrTimeoutExceeded means the wall-clock budget ran out before any model was accepted
	ErrTimeoutExceeded = errors.New("estimation timeout exceeded")
)

// Setup-time errors.
var (
	ErrUnknownTarget        = errors.New("unknown target")
	ErrCameraNotInitialized = errors.New("camera parameters are not initialized")
	ErrEmptyReference       = errors.New("reference image is empty or produced no features")
	ErrFrameSize            = errors.New("frame size does not match coordinator frame size")
	ErrClosed               = errors.New("coordinator is closed")
)
