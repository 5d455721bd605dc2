package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// FromRecords builds a frame from a header and string rows, inferring each
// column's kind: a column is numeric when every non-missing cell parses as a
// number, categorical otherwise. Missing cells in categorical columns are "".
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	for i, r := range rows {
		if len(r) != len(header) {
			return nil, errors.NewValidationError("row", fmt.Sprintf("row %d has %d fields, header has %d", i+1, len(r), len(header)), nil)
		}
	}

	cols := make([]*Series, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		floats := make([]float64, len(rows))
		numeric := true
		for i, r := range rows {
			f, ok := ParseFloat(r[j])
			if !ok {
				numeric = false
				break
			}
			floats[i] = f
		}
		if numeric {
			cols[j] = NewNumeric(name, floats)
			continue
		}
		strs := make([]string, len(rows))
		for i, r := range rows {
			v := strings.TrimSpace(r[j])
			if isMissing(v) {
				v = ""
			}
			strs[i] = v
		}
		cols[j] = NewCategorical(name, strs)
	}
	return New(cols...)
}

// FromPayload builds a one-row frame with the given columns, in that order,
// taking values from payload. Numbers become numeric columns, strings
// categorical ones, nil a missing numeric value.
func FromPayload(payload map[string]any, columns []string) (*Frame, error) {
	cols := make([]*Series, len(columns))
	for i, name := range columns {
		v, ok := payload[name]
		if !ok {
			return nil, errors.NewMissingFeaturesError([]string{name})
		}
		s, err := seriesFromValue(name, v)
		if err != nil {
			return nil, err
		}
		cols[i] = s
	}
	return New(cols...)
}

func seriesFromValue(name string, v any) (*Series, error) {
	switch x := v.(type) {
	case nil:
		return NewNumeric(name, []float64{math.NaN()}), nil
	case float64:
		return NewNumeric(name, []float64{x}), nil
	case float32:
		return NewNumeric(name, []float64{float64(x)}), nil
	case int:
		return NewNumeric(name, []float64{float64(x)}), nil
	case int32:
		return NewNumeric(name, []float64{float64(x)}), nil
	case int64:
		return NewNumeric(name, []float64{float64(x)}), nil
	case bool:
		if x {
			return NewNumeric(name, []float64{1}), nil
		}
		return NewNumeric(name, []float64{0}), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, errors.NewValidationError(name, "invalid number", x.String())
		}
		return NewNumeric(name, []float64{f}), nil
	case string:
		return NewCategorical(name, []string{x}), nil
	default:
		return nil, errors.NewValidationError(name, "unsupported value type", fmt.Sprintf("%T", v))
	}
}
