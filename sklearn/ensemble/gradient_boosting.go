// Package ensemble implements gradient-boosted regression trees with
// scikit-learn's GradientBoostingRegressor semantics.
package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/propval/core/model"
	"github.com/YuminosukeSato/propval/core/parallel"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// Params are the hyperparameters of GradientBoostingRegressor.
type Params struct {
	LearningRate    float64
	NEstimators     int
	MaxDepth        int
	Loss            string
	Subsample       float64
	MinSamplesSplit int
	MinSamplesLeaf  int
	Alpha           float64
	RandomState     int64
}

// DefaultParams returns scikit-learn's defaults.
func DefaultParams() Params {
	return Params{
		LearningRate:    0.1,
		NEstimators:     100,
		MaxDepth:        3,
		Loss:            "squared_error",
		Subsample:       1.0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Alpha:           0.9,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case !(p.LearningRate > 0):
		return errors.NewValidationError("learning_rate", "must be > 0", p.LearningRate)
	case p.NEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", p.NEstimators)
	case p.MaxDepth < 1:
		return errors.NewValidationError("max_depth", "must be >= 1", p.MaxDepth)
	case !(p.Subsample > 0 && p.Subsample <= 1):
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.MinSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", p.MinSamplesLeaf)
	case (p.Loss == "huber" || p.Loss == "quantile") && !(p.Alpha > 0 && p.Alpha < 1):
		return errors.NewValidationError("alpha", "must be in (0, 1)", p.Alpha)
	}
	_, err := NewLossFunction(p.Loss, p.Alpha)
	return err
}

// GradientBoostingRegressor builds an additive model in a forward
// stage-wise fashion: each stage fits a regression tree to the negative
// gradient of the loss.
//
// 使用例:
//
//	reg := ensemble.NewGradientBoostingRegressor(ensemble.DefaultParams())
//	err := reg.Fit(X, y)
//	pred, err := reg.Predict(XTest)
type GradientBoostingRegressor struct {
	Params
	State *model.StateManager

	// Learned during Fit.
	InitValue   float64
	Estimators  []Tree
	TrainScore  []float64 // in-bag loss after each stage
	Importances []float64
}

// NewGradientBoostingRegressor returns an unfitted regressor.
func NewGradientBoostingRegressor(params Params) *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		Params: params,
		State:  model.NewStateManager("GradientBoostingRegressor"),
	}
}

// Fit trains the ensemble. y must be an n×1 column. Rows of X may contain
// NaN; the target may not.
func (g *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	if err := g.Params.Validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewValueError("GradientBoostingRegressor.Fit", errors.ErrEmptyData.Error())
	}
	yRows, yCols := y.Dims()
	if yCols != 1 {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", 1, yCols, 1)
	}
	if yRows != rows {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", rows, yRows, 0)
	}

	target := mat.Col(nil, 0, y)
	for i, v := range target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError("y", "target must be finite", i)
		}
	}
	columns := make([][]float64, cols)
	for j := range columns {
		columns[j] = mat.Col(nil, j, X)
		for i, v := range columns[j] {
			if math.IsInf(v, 0) {
				return errors.NewValidationError("X", "features must not be infinite", [2]int{i, j})
			}
		}
	}

	loss, err := NewLossFunction(g.Loss, g.Alpha)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.gradient_boosting").With(
		log.ModelNameKey, "GradientBoostingRegressor",
		log.OperationKey, log.OperationFit,
	)
	start := time.Now()

	order := presort(columns)
	rng := rand.New(rand.NewPCG(uint64(g.RandomState), 0))
	nInBag := max(1, int(g.Subsample*float64(rows)))

	g.InitValue = loss.InitEstimate(target)
	raw := make([]float64, rows)
	floats.AddConst(g.InitValue, raw)
	residual := make([]float64, rows)

	g.Estimators = make([]Tree, 0, g.NEstimators)
	g.TrainScore = make([]float64, 0, g.NEstimators)
	importances := make([]float64, cols)
	params := treeParams{maxDepth: g.MaxDepth, minSamplesSplit: g.MinSamplesSplit, minSamplesLeaf: g.MinSamplesLeaf}
	sample := make([]float64, cols)

	for stage := 0; stage < g.NEstimators; stage++ {
		inBag, mask := subsample(rng, rows, nInBag)

		loss.NegativeGradient(target, raw, inBag, residual)

		root := nodeSamples{all: inBag, sorted: make([][]int, cols)}
		for j := range order {
			root.sorted[j] = filter(order[j], mask, nInBag)
		}
		b := newTreeBuilder(columns, residual, params)
		tree := b.build(root)

		// line search: replace leaf values with the loss-specific optimum
		for id, idx := range b.leaves {
			tree.Nodes[id].Value = loss.LeafValue(target, raw, idx)
		}

		for i := 0; i < rows; i++ {
			for j := range columns {
				sample[j] = columns[j][i]
			}
			raw[i] += g.LearningRate * tree.Predict(sample)
		}

		accumulateImportances(importances, tree)
		g.Estimators = append(g.Estimators, *tree)
		g.TrainScore = append(g.TrainScore, loss.Loss(target, raw, inBag))
		if err := errors.CheckScalar("GradientBoostingRegressor.Fit", g.TrainScore[stage], stage); err != nil {
			return err
		}

		if logger.Enabled(context.Background(), log.LevelDebug) && stage%50 == 0 {
			logger.Debug("Training progress",
				log.IterationKey, stage,
				log.LossKey, g.TrainScore[stage],
			)
		}
	}

	if total := floats.Sum(importances); total > 0 {
		floats.Scale(1/total, importances)
	}
	g.Importances = importances

	if g.State == nil {
		g.State = model.NewStateManager("GradientBoostingRegressor")
	}
	g.State.SetFitted(cols, rows)

	logger.Info("GradientBoostingRegressor fitted",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.LossKey, g.TrainScore[len(g.TrainScore)-1],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Predict returns an n×1 matrix of predictions. Rows are scored in parallel
// for large inputs.
func (g *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.requireFitted("Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := g.State.RequireFeatures("GradientBoostingRegressor.Predict", cols); err != nil {
		return nil, err
	}

	out := make([]float64, rows)
	err := parallel.ParallelizeWithThreshold(rows, parallel.DefaultThreshold, func(start, end int) error {
		sample := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(sample, i, X)
			out[i] = g.predictRow(sample)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewInferenceError("GradientBoostingRegressor.Predict", err)
	}
	return mat.NewDense(rows, 1, out), nil
}

func (g *GradientBoostingRegressor) predictRow(sample []float64) float64 {
	sum := 0.0
	for k := range g.Estimators {
		sum += g.Estimators[k].Predict(sample)
	}
	return g.InitValue + g.LearningRate*sum
}

// FeatureImportances returns the normalised total improvement contributed by
// each feature.
func (g *GradientBoostingRegressor) FeatureImportances() ([]float64, error) {
	if err := g.requireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	out := make([]float64, len(g.Importances))
	copy(out, g.Importances)
	return out, nil
}

func (g *GradientBoostingRegressor) requireFitted(method string) error {
	if g.State == nil {
		return errors.NewNotFittedError("GradientBoostingRegressor", method)
	}
	return g.State.RequireFitted(method)
}

// presort orders every column's row indices by value, NaN last.
func presort(columns [][]float64) [][]int {
	order := make([][]int, len(columns))
	for j, col := range columns {
		idx := make([]int, len(col))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			va, vb := col[idx[a]], col[idx[b]]
			if math.IsNaN(vb) {
				return !math.IsNaN(va)
			}
			return va < vb
		})
		order[j] = idx
	}
	return order
}

// subsample draws n of rows indices without replacement. With n == rows every
// row is used and the generator is not consumed.
func subsample(rng *rand.Rand, rows, n int) ([]int, []bool) {
	mask := make([]bool, rows)
	idx := make([]int, 0, n)
	if n >= rows {
		for i := 0; i < rows; i++ {
			mask[i] = true
			idx = append(idx, i)
		}
		return idx, mask
	}
	for _, i := range rng.Perm(rows)[:n] {
		mask[i] = true
	}
	for i := 0; i < rows; i++ {
		if mask[i] {
			idx = append(idx, i)
		}
	}
	return idx, mask
}

func filter(order []int, mask []bool, n int) []int {
	out := make([]int, 0, n)
	for _, i := range order {
		if mask[i] {
			out = append(out, i)
		}
	}
	return out
}

func accumulateImportances(dst []float64, tree *Tree) {
	total := 0.0
	for _, n := range tree.Nodes {
		if !n.IsLeaf() {
			total += n.Improvement
		}
	}
	if total == 0 {
		return
	}
	for _, n := range tree.Nodes {
		if !n.IsLeaf() {
			dst[n.Feature] += n.Improvement / total
		}
	}
}
