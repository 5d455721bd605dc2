package pipeline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/propval/core/model"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/preprocessing"
)

// ColumnTransformer target-encodes the categorical columns and passes every
// other column through unchanged. Output columns keep the input order:
// categorical columns are replaced in place by their encoding.
type ColumnTransformer struct {
	State       *model.StateManager
	Categorical []string
	Encoder     *preprocessing.TargetEncoder

	// Input columns seen during Fit, in order.
	Columns []string
}

// NewColumnTransformer returns an unfitted transformer for the given
// categorical columns.
func NewColumnTransformer(categorical []string) *ColumnTransformer {
	cats := make([]string, len(categorical))
	copy(cats, categorical)
	return &ColumnTransformer{
		State:       model.NewStateManager("ColumnTransformer"),
		Categorical: cats,
		Encoder:     preprocessing.NewTargetEncoder(),
	}
}

// Fit learns the target encoding of the categorical columns. Every other
// column must be numeric.
func (c *ColumnTransformer) Fit(X *dataset.Frame, y []float64) error {
	if X.NRows() == 0 {
		return errors.NewValueError("ColumnTransformer.Fit", errors.ErrEmptyData.Error())
	}
	if missing := X.Missing(c.Categorical); len(missing) > 0 {
		return errors.NewValidationError("categorical_columns", "not present in dataset", missing)
	}

	cats := c.categoricalSet()
	for _, name := range X.Columns() {
		if cats[name] {
			continue
		}
		col, _ := X.Column(name)
		if _, err := col.AsFloats(); err != nil {
			return errors.NewValidationError(name, "non-numeric column must be declared categorical", col.Kind.String())
		}
	}

	catFrame, err := X.Select(c.Categorical)
	if err != nil {
		return err
	}
	if c.Encoder == nil {
		c.Encoder = preprocessing.NewTargetEncoder()
	}
	if err := c.Encoder.Fit(catFrame.WithCategorical(c.Categorical), y); err != nil {
		return errors.Wrap(err, "failed to fit target encoder")
	}

	c.Columns = X.Columns()
	if c.State == nil {
		c.State = model.NewStateManager("ColumnTransformer")
	}
	c.State.SetFitted(len(c.Columns), X.NRows())
	return nil
}

// Transform builds the numeric matrix. Columns are looked up by name; extra
// columns in X are ignored.
func (c *ColumnTransformer) Transform(X *dataset.Frame) (*mat.Dense, error) {
	if c.State == nil {
		return nil, errors.NewNotFittedError("ColumnTransformer", "Transform")
	}
	if err := c.State.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	n := X.NRows()
	if n == 0 {
		return nil, errors.NewValueError("ColumnTransformer.Transform", errors.ErrEmptyData.Error())
	}
	if missing := X.Missing(c.Columns); len(missing) > 0 {
		return nil, errors.NewMissingFeaturesError(missing)
	}

	out := mat.NewDense(n, len(c.Columns), nil)
	catIndex := make(map[string]int, len(c.Encoder.Columns))
	for j, name := range c.Encoder.Columns {
		catIndex[name] = j
	}

	for j, name := range c.Columns {
		col, _ := X.Column(name)
		if k, ok := catIndex[name]; ok {
			for i := 0; i < n; i++ {
				out.Set(i, j, c.Encoder.Encode(k, col.StringAt(i)))
			}
			continue
		}
		values, err := col.AsFloats()
		if err != nil {
			return nil, errors.NewValidationError(name, "expected a numeric value", col.Kind.String())
		}
		out.SetCol(j, values)
	}
	return out, nil
}

func (c *ColumnTransformer) categoricalSet() map[string]bool {
	set := make(map[string]bool, len(c.Categorical))
	for _, name := range c.Categorical {
		set[name] = true
	}
	return set
}
