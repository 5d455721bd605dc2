package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

func TestRegressionMetrics(t *testing.T) {
	tests := []struct {
		name     string
		yTrue    []float64
		yPred    []float64
		wantMAE  float64
		wantMAPE float64
		wantRMSE float64
	}{
		{
			name:  "perfect prediction",
			yTrue: []float64{1, 2, 3, 4, 5},
			yPred: []float64{1, 2, 3, 4, 5},
		},
		{
			name:     "simple case",
			yTrue:    []float64{100, 200},
			yPred:    []float64{110, 180},
			wantMAE:  15,
			wantMAPE: (0.1 + 0.1) / 2,
			wantRMSE: math.Sqrt((100 + 400) / 2.0),
		},
		{
			name:     "larger errors",
			yTrue:    []float64{10, 20, 30},
			yPred:    []float64{12, 18, 33},
			wantMAE:  7.0 / 3,
			wantMAPE: (0.2 + 0.1 + 0.1) / 3,
			wantRMSE: math.Sqrt(17.0 / 3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := RegressionMetrics(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.Len(t, report, 3)
			assert.InDelta(t, tt.wantMAE, report[MAEName], 1e-10)
			assert.InDelta(t, tt.wantMAPE, report[MAPEName], 1e-10)
			assert.InDelta(t, tt.wantRMSE, report[RMSEName], 1e-10)
		})
	}
}

func TestRegressionMetricsZeroTrueValue(t *testing.T) {
	report, err := RegressionMetrics([]float64{0, 10}, []float64{1, 10})
	require.NoError(t, err)

	mape := report[MAPEName]
	assert.False(t, math.IsInf(mape, 0))
	assert.False(t, math.IsNaN(mape))
	assert.Greater(t, mape, 1e10)

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestRegressionMetricsErrors(t *testing.T) {
	_, err := RegressionMetrics(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = RegressionMetrics([]float64{1, 2, 3}, []float64{1, 2})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRMSENotLessThanMAE(t *testing.T) {
	yTrue := []float64{3, -0.5, 2, 7, 12}
	yPred := []float64{2.5, 0.0, 2, 8, 9}
	report, err := RegressionMetrics(yTrue, yPred)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report[RMSEName], report[MAEName])
}

func TestR2Score(t *testing.T) {
	r2, err := R2Score([]float64{3, -0.5, 2, 7}, []float64{2.5, 0.0, 2, 8})
	require.NoError(t, err)
	assert.InDelta(t, 0.9486081370449679, r2, 1e-12)

	_, err = R2Score([]float64{1, 1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestRegressionMetricsRejectsNonFinitePredictions(t *testing.T) {
	_, err := RegressionMetrics([]float64{1, 2}, []float64{1, math.NaN()})
	require.Error(t, err)
	var ni *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &ni))
}
