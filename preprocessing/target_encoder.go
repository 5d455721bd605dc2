package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/propval/core/model"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// Default smoothing parameters of TargetEncoder.
const (
	DefaultMinSamplesLeaf = 20
	DefaultSmoothing      = 10.0
)

// TargetEncoder は教師ありのカテゴリエンコーダー
// 各カテゴリを、そのカテゴリに属する訓練行の目的変数の平滑化平均で置き換える。
//
// For a category seen n times with target mean m the encoding is
//
//	s = 1 / (1 + exp(-(n - MinSamplesLeaf) / Smoothing))
//	enc = Prior*(1-s) + m*s
//
// where Prior is the mean of the whole training target. Categories seen only
// once encode to Prior. Unknown and empty categories encode to Prior at
// transform time.
type TargetEncoder struct {
	State *model.StateManager

	MinSamplesLeaf int
	Smoothing      float64

	// Learned during Fit.
	Columns  []string
	Mappings []map[string]float64
	Prior    float64
}

// NewTargetEncoder returns an encoder with the default smoothing.
//
// 使用例:
//
//	enc := preprocessing.NewTargetEncoder()
//	err := enc.Fit(trainFrame.WithCategorical(cats), y)
//	encoded, err := enc.Transform(testFrame)
func NewTargetEncoder() *TargetEncoder {
	return &TargetEncoder{
		State:          model.NewStateManager("TargetEncoder"),
		MinSamplesLeaf: DefaultMinSamplesLeaf,
		Smoothing:      DefaultSmoothing,
	}
}

// Fit learns one mapping per column of X from the target y. Every column is
// treated as categorical.
func (e *TargetEncoder) Fit(X *dataset.Frame, y []float64) error {
	n := X.NRows()
	if n == 0 {
		return errors.NewValueError("TargetEncoder.Fit", errors.ErrEmptyData.Error())
	}
	if len(y) != n {
		return errors.NewDimensionError("TargetEncoder.Fit", n, len(y), 0)
	}
	if !(e.Smoothing > 0) {
		return errors.NewValidationError("smoothing", "must be > 0", e.Smoothing)
	}

	e.Prior = stat.Mean(y, nil)
	e.Columns = X.Columns()
	e.Mappings = make([]map[string]float64, len(e.Columns))

	for j, name := range e.Columns {
		col, _ := X.Column(name)
		sums := map[string]float64{}
		counts := map[string]int{}
		for i := 0; i < n; i++ {
			cat := col.StringAt(i)
			if cat == "" {
				continue
			}
			sums[cat] += y[i]
			counts[cat]++
		}

		mapping := make(map[string]float64, len(counts))
		for cat, cnt := range counts {
			mapping[cat] = e.smooth(cnt, sums[cat]/float64(cnt))
		}
		e.Mappings[j] = mapping
	}

	if e.State == nil {
		e.State = model.NewStateManager("TargetEncoder")
	}
	e.State.SetFitted(len(e.Columns), n)

	log.GetLoggerWithName("preprocessing.target_encoder").Debug("TargetEncoder fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.CategoricalKey, e.Columns,
		"prior", e.Prior,
	)
	return nil
}

func (e *TargetEncoder) smooth(count int, mean float64) float64 {
	if count == 1 {
		return e.Prior
	}
	s := 1 / (1 + math.Exp(-float64(count-e.MinSamplesLeaf)/e.Smoothing))
	return e.Prior*(1-s) + mean*s
}

// Transform encodes the columns seen during Fit, looked up by name, into an
// n_samples × n_columns matrix.
func (e *TargetEncoder) Transform(X *dataset.Frame) (*mat.Dense, error) {
	if err := e.requireFitted("Transform"); err != nil {
		return nil, err
	}
	n := X.NRows()
	if n == 0 {
		return nil, errors.NewValueError("TargetEncoder.Transform", errors.ErrEmptyData.Error())
	}
	if missing := X.Missing(e.Columns); len(missing) > 0 {
		return nil, errors.NewMissingFeaturesError(missing)
	}

	out := mat.NewDense(n, len(e.Columns), nil)
	for j, name := range e.Columns {
		col, _ := X.Column(name)
		for i := 0; i < n; i++ {
			out.Set(i, j, e.lookup(j, col.StringAt(i)))
		}
	}
	return out, nil
}

// Encode returns the encoding of a single value of column j.
func (e *TargetEncoder) Encode(j int, category string) float64 {
	return e.lookup(j, category)
}

func (e *TargetEncoder) lookup(j int, category string) float64 {
	if v, ok := e.Mappings[j][category]; ok {
		return v
	}
	return e.Prior
}

func (e *TargetEncoder) requireFitted(method string) error {
	if e.State == nil {
		return errors.NewNotFittedError("TargetEncoder", method)
	}
	return e.State.RequireFitted(method)
}
