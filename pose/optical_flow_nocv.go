//go:build !withcv
// +build !withcv

package pose

// NewCVFlowTracker returns the pure Go tracker when built without OpenCV.
func NewCVFlowTracker(cfg Config) FlowTracker {
	return NewLKTracker(cfg)
}
