package pose

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PositionFilter smooths camera centre with a constant velocity Kalman filter.
// The underlying filter has four channels; x, y and z use three of them and
// the fourth is held at zero.
type PositionFilter struct {
	dt          float64
	tracker     *kalman_filter.KalmanBBox
	initialized bool
	position    r3.Vector
}

// NewPositionFilter creates filter with prediction step dt (in frames)
func NewPositionFilter(dt float64) *PositionFilter {
	return &PositionFilter{
		dt: dt,
	}
}

func (filter *PositionFilter) init(position r3.Vector) {
	stdDevA := 0.5
	stdDevM := 5.0
	filter.tracker = kalman_filter.NewKalmanBBox(
		filter.dt, 0, 0, 0, 0,
		stdDevA, stdDevM, stdDevM, stdDevM, stdDevM,
		kalman_filter.WithStateBBox(position.X, position.Y, position.Z, 0),
	)
	filter.position = position
	filter.initialized = true
}

// Predict executes prediction step and returns predicted position
func (filter *PositionFilter) Predict() r3.Vector {
	if !filter.initialized {
		return filter.position
	}
	filter.tracker.Predict()
	x, y, z, _ := filter.tracker.GetState()
	filter.position = r3.Vector{X: x, Y: y, Z: z}
	return filter.position
}

// Initialized reports whether the filter holds a state
func (filter *PositionFilter) Initialized() bool {
	return filter.initialized
}

// Update corrects the filter with measured position and returns smoothed position
func (filter *PositionFilter) Update(measured r3.Vector) (r3.Vector, error) {
	if !filter.initialized {
		filter.init(measured)
		return measured, nil
	}
	err := filter.tracker.Update(measured.X, measured.Y, measured.Z, 0)
	if err != nil {
		return measured, errors.Wrap(err, "Can't update position filter")
	}
	x, y, z, _ := filter.tracker.GetState()
	filter.position = r3.Vector{X: x, Y: y, Z: z}
	return filter.position, nil
}

// Position returns last predicted or smoothed position
func (filter *PositionFilter) Position() r3.Vector {
	return filter.position
}

// Reset forgets the state; next Update re-initializes the filter
func (filter *PositionFilter) Reset() {
	filter.tracker = nil
	filter.initialized = false
	filter.position = r3.Vector{}
}
