package pose

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const refineEvaluations = 600

// refinePose minimizes the sum of squared reprojection errors over a
// Rodrigues rotation and a translation with Nelder-Mead. The input pose is
// returned when the search does not improve it.
func refinePose(intr Intrinsics, rotation [9]float64, translation r3.Vector, reference, scene []r2.Point) ([9]float64, r3.Vector) {
	if len(reference) < sampleSize {
		return rotation, translation
	}
	unpack := func(x []float64) ([9]float64, r3.Vector) {
		return rotationFromRodrigues(r3.Vector{X: x[0], Y: x[1], Z: x[2]}), r3.Vector{X: x[3], Y: x[4], Z: x[5]}
	}
	residuals := make([]float64, 2*len(reference))
	cost := func(x []float64) float64 {
		rot, t := unpack(x)
		for i := range reference {
			projected, ok := projectPoint(intr, rot, t, r3.Vector{X: reference[i].X, Y: reference[i].Y})
			if !ok {
				return 1e18
			}
			residuals[2*i] = projected.X - scene[i].X
			residuals[2*i+1] = projected.Y - scene[i].Y
		}
		return floats.Dot(residuals, residuals)
	}

	w := rodriguesFromRotation(rotation)
	x0 := []float64{w.X, w.Y, w.Z, translation.X, translation.Y, translation.Z}
	initial := cost(x0)
	problem := optimize.Problem{Func: cost}
	settings := &optimize.Settings{
		FuncEvaluations: refineEvaluations,
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return rotation, translation
	}
	if result.F >= initial {
		return rotation, translation
	}
	refinedRotation, refinedTranslation := unpack(result.X)
	if refinedTranslation.Z <= 0 {
		return rotation, translation
	}
	return refinedRotation, refinedTranslation
}
