package pose

// State is tracking state of one target
type State uint8

const (
	// StateUninitialized means the target has no reference repository yet
	StateUninitialized State = iota
	// StateTrained means the repository is built and no pose was estimated yet
	StateTrained
	// StateTracking means the last estimation succeeded or correspondences are still alive
	StateTracking
	// StateLost means the matched set emptied; the target waits for re-detection
	StateLost
)

func (state State) String() string {
	switch state {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateTrained:
		return "TRAINED"
	case StateTracking:
		return "TRACKING"
	case StateLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}
