package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/metrics"
	"github.com/YuminosukeSato/propval/pkg/errors"
)

func TestPredictionScatterWritesPNG(t *testing.T) {
	yTrue := []float64{100, 200, 300, 400}
	yPred := []float64{110, 190, 320, 380}
	report, err := metrics.RegressionMetrics(yTrue, yPred)
	require.NoError(t, err)

	p, err := PredictionScatter(yTrue, yPred, report)
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "MAE 15")

	var buf bytes.Buffer
	require.NoError(t, WritePNG(p, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestPredictionScatterErrors(t *testing.T) {
	_, err := PredictionScatter(nil, nil, nil)
	assert.True(t, errors.IsValidation(err))

	_, err = PredictionScatter([]float64{1, 2}, []float64{1}, nil)
	assert.True(t, errors.IsValidation(err))
}
