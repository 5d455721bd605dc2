package dataset

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := FromRecords(
		[]string{"type", "sector", "net_area", "n_rooms", "price"},
		[][]string{
			{"casa", "vitacura", "120.5", "3", "15000"},
			{"departamento", "las condes", "", "2", "9000"},
			{"casa", "NA", "80", "4", "11000"},
		},
	)
	require.NoError(t, err)
	return f
}

func TestFromRecordsInfersKinds(t *testing.T) {
	f := sampleFrame(t)

	assert.Equal(t, []string{"type", "sector", "net_area", "n_rooms", "price"}, f.Columns())
	assert.Equal(t, 3, f.NRows())

	sector, ok := f.Column("sector")
	require.True(t, ok)
	assert.Equal(t, Categorical, sector.Kind)
	assert.Equal(t, []string{"vitacura", "las condes", ""}, sector.Strings)

	area, ok := f.Column("net_area")
	require.True(t, ok)
	assert.Equal(t, Numeric, area.Kind)
	assert.True(t, math.IsNaN(area.Floats[1]))
	assert.Equal(t, 120.5, area.Floats[0])
}

func TestFromRecordsRaggedRow(t *testing.T) {
	_, err := FromRecords([]string{"a", "b"}, [][]string{{"1"}})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestNewRejectsDuplicatesAndLengthMismatch(t *testing.T) {
	_, err := New(NewNumeric("a", []float64{1}), NewNumeric("a", []float64{2}))
	assert.True(t, errors.IsValidation(err))

	_, err = New(NewNumeric("a", []float64{1}), NewNumeric("b", []float64{2, 3}))
	assert.True(t, errors.IsValidation(err))
}

func TestSelectKeepsRequestedOrder(t *testing.T) {
	f := sampleFrame(t)

	sub, err := f.Select([]string{"n_rooms", "type"})
	require.NoError(t, err)
	assert.Equal(t, []string{"n_rooms", "type"}, sub.Columns())
	assert.Equal(t, 3, sub.NRows())

	_, err = f.Select([]string{"type", "latitude"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestTarget(t *testing.T) {
	f := sampleFrame(t)

	y, err := f.Target("price")
	require.NoError(t, err)
	assert.Equal(t, []float64{15000, 9000, 11000}, y)

	_, err = f.Target("sector")
	assert.True(t, errors.IsValidation(err))

	_, err = f.Target("net_area") // holds a NaN
	assert.True(t, errors.IsValidation(err))

	_, err = f.Target("missing")
	assert.True(t, errors.IsValidation(err))
}

func TestWithCategoricalCoercesNumbers(t *testing.T) {
	f := sampleFrame(t).WithCategorical([]string{"n_rooms", "unknown"})

	rooms, ok := f.Column("n_rooms")
	require.True(t, ok)
	assert.Equal(t, Categorical, rooms.Kind)
	assert.Equal(t, []string{"3", "2", "4"}, rooms.Strings)

	// original frame is untouched
	orig, _ := sampleFrame(t).Column("n_rooms")
	assert.Equal(t, Numeric, orig.Kind)
}

func TestAsFloats(t *testing.T) {
	s := NewCategorical("x", []string{"1.5", "", "2"})
	v, err := s.AsFloats()
	require.NoError(t, err)
	assert.Equal(t, 1.5, v[0])
	assert.True(t, math.IsNaN(v[1]))

	_, err = NewCategorical("x", []string{"casa"}).AsFloats()
	assert.True(t, errors.IsValidation(err))
}

func TestFromPayload(t *testing.T) {
	payload := map[string]any{
		"type":     "casa",
		"n_rooms":  3,
		"net_area": json.Number("140.5"),
		"latitude": -33.4,
		"extra":    "ignored",
	}

	f, err := FromPayload(payload, []string{"latitude", "type", "n_rooms", "net_area"})
	require.NoError(t, err)
	assert.Equal(t, []string{"latitude", "type", "n_rooms", "net_area"}, f.Columns())
	assert.Equal(t, 1, f.NRows())
	assert.Equal(t, map[string]any{"latitude": -33.4, "type": "casa", "n_rooms": 3.0, "net_area": 140.5}, f.Row(0))

	_, err = FromPayload(payload, []string{"sector"})
	assert.True(t, errors.IsMissingFeatures(err))

	_, err = FromPayload(map[string]any{"a": []int{1}}, []string{"a"})
	assert.True(t, errors.IsValidation(err))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "3", FormatFloat(3))
	assert.Equal(t, "0.1", FormatFloat(0.1))
	assert.Equal(t, "", FormatFloat(math.NaN()))
}
