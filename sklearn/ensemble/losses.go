package ensemble

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// LossFunction is the loss optimised by GradientBoostingRegressor.
type LossFunction interface {
	// Name returns the loss name as accepted by NewLossFunction.
	Name() string

	// InitEstimate returns the constant that minimises the loss over y.
	InitEstimate(y []float64) float64

	// NegativeGradient writes the pseudo-residuals of the samples in idx.
	NegativeGradient(y, raw []float64, idx []int, out []float64)

	// LeafValue returns the line-search value of a leaf holding idx.
	LeafValue(y, raw []float64, idx []int) float64

	// Loss returns the mean loss over idx.
	Loss(y, raw []float64, idx []int) float64
}

// NewLossFunction returns the loss called name. alpha is used by huber and
// quantile.
func NewLossFunction(name string, alpha float64) (LossFunction, error) {
	switch name {
	case "squared_error":
		return squaredError{}, nil
	case "absolute_error":
		return absoluteError{}, nil
	case "huber":
		return &huberLoss{alpha: alpha}, nil
	case "quantile":
		return quantileLoss{alpha: alpha}, nil
	default:
		return nil, errors.NewValidationError("loss", "unknown loss function", name)
	}
}

// squaredError implements least squares regression.
type squaredError struct{}

func (squaredError) Name() string { return "squared_error" }

func (squaredError) InitEstimate(y []float64) float64 { return stat.Mean(y, nil) }

func (squaredError) NegativeGradient(y, raw []float64, idx []int, out []float64) {
	for _, i := range idx {
		out[i] = y[i] - raw[i]
	}
}

func (squaredError) LeafValue(y, raw []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += y[i] - raw[i]
	}
	return sum / float64(len(idx))
}

func (squaredError) Loss(y, raw []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		d := y[i] - raw[i]
		sum += d * d
	}
	return sum / float64(len(idx))
}

// absoluteError implements least absolute deviation regression.
type absoluteError struct{}

func (absoluteError) Name() string { return "absolute_error" }

func (absoluteError) InitEstimate(y []float64) float64 { return calculateMedian(y) }

func (absoluteError) NegativeGradient(y, raw []float64, idx []int, out []float64) {
	for _, i := range idx {
		if y[i]-raw[i] > 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
}

func (absoluteError) LeafValue(y, raw []float64, idx []int) float64 {
	return lowerPercentile(residuals(y, raw, idx), 0.5)
}

func (absoluteError) Loss(y, raw []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += math.Abs(y[i] - raw[i])
	}
	return sum / float64(len(idx))
}

// huberLoss combines squared error for small residuals with absolute error
// for large ones. The cut-off gamma is the alpha-quantile of the absolute
// residuals and is recomputed at every stage.
type huberLoss struct {
	alpha float64
	gamma float64
}

func (h *huberLoss) Name() string { return "huber" }

func (h *huberLoss) InitEstimate(y []float64) float64 { return calculateMedian(y) }

func (h *huberLoss) NegativeGradient(y, raw []float64, idx []int, out []float64) {
	abs := make([]float64, len(idx))
	for k, i := range idx {
		abs[k] = math.Abs(y[i] - raw[i])
	}
	h.gamma = calculateQuantile(abs, h.alpha)
	for _, i := range idx {
		d := y[i] - raw[i]
		if math.Abs(d) <= h.gamma {
			out[i] = d
		} else {
			out[i] = h.gamma * sign(d)
		}
	}
}

func (h *huberLoss) LeafValue(y, raw []float64, idx []int) float64 {
	diff := residuals(y, raw, idx)
	median := lowerPercentile(diff, 0.5)
	sum := 0.0
	for _, d := range diff {
		dm := d - median
		sum += sign(dm) * math.Min(math.Abs(dm), h.gamma)
	}
	return median + sum/float64(len(diff))
}

func (h *huberLoss) Loss(y, raw []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		d := math.Abs(y[i] - raw[i])
		if d <= h.gamma {
			sum += 0.5 * d * d
		} else {
			sum += h.gamma * (d - 0.5*h.gamma)
		}
	}
	return sum / float64(len(idx))
}

// quantileLoss implements quantile regression at level alpha.
type quantileLoss struct {
	alpha float64
}

func (q quantileLoss) Name() string { return "quantile" }

func (q quantileLoss) InitEstimate(y []float64) float64 { return calculateQuantile(y, q.alpha) }

func (q quantileLoss) NegativeGradient(y, raw []float64, idx []int, out []float64) {
	for _, i := range idx {
		if y[i] > raw[i] {
			out[i] = q.alpha
		} else {
			out[i] = q.alpha - 1
		}
	}
}

func (q quantileLoss) LeafValue(y, raw []float64, idx []int) float64 {
	return lowerPercentile(residuals(y, raw, idx), q.alpha)
}

func (q quantileLoss) Loss(y, raw []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		d := y[i] - raw[i]
		if d > 0 {
			sum += q.alpha * d
		} else {
			sum += (q.alpha - 1) * d
		}
	}
	return sum / float64(len(idx))
}

// Helper functions

func residuals(y, raw []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = y[i] - raw[i]
	}
	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func calculateMedian(values []float64) float64 {
	return calculateQuantile(values, 0.5)
}

// calculateQuantile linearly interpolates between the closest ranks.
func calculateQuantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// lowerPercentile returns the smallest value whose empirical CDF reaches q.
func lowerPercentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sort.Float64s(values)
	return stat.Quantile(q, stat.Empirical, values, nil)
}
