// Package pipeline chains a frame transformer and a regressor into one
// fitted unit, the way scikit-learn's Pipeline does.
package pipeline

import (
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/core/model"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
	"github.com/YuminosukeSato/propval/sklearn/ensemble"
)

// Step names used by Build.
const (
	StepPreprocessor = "preprocessor"
	StepModel        = "model"
)

func init() {
	gob.Register(&ColumnTransformer{})
	gob.Register(&ensemble.GradientBoostingRegressor{})
}

// Step represents a single step in the pipeline.
type Step struct {
	Name      string      // Name of this step (for identification)
	Estimator interface{} // model.FrameTransformer, model.Transformer or model.Regressor
}

// Pipeline chains transforms and a final regressor.
//
// The first step must be a model.FrameTransformer, intermediate steps
// model.Transformer and the last step a model.Regressor.
type Pipeline struct {
	Steps []Step
	State *model.StateManager
}

// New creates a new Pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{
		Steps: steps,
		State: model.NewStateManager("Pipeline"),
	}
}

// Build returns the unfitted two-stage pipeline used for property prices:
// target encoding of the categorical columns followed by gradient boosting.
//
// 使用例:
//
//	p := pipeline.Build([]string{"type", "sector"}, cfg.Model())
//	err := p.Fit(train, y)
//	prices, err := p.Predict(test)
func Build(categorical []string, cfg config.ModelConfig) *Pipeline {
	return New(
		Step{Name: StepPreprocessor, Estimator: NewColumnTransformer(categorical)},
		Step{Name: StepModel, Estimator: ensemble.NewGradientBoostingRegressor(ParamsFromConfig(cfg))},
	)
}

// ParamsFromConfig maps the configured hyperparameters onto the regressor.
func ParamsFromConfig(cfg config.ModelConfig) ensemble.Params {
	return ensemble.Params{
		LearningRate:    cfg.LearningRate,
		NEstimators:     cfg.NEstimators,
		MaxDepth:        cfg.MaxDepth,
		Loss:            cfg.Loss,
		Subsample:       cfg.Subsample,
		MinSamplesSplit: cfg.MinSamplesSplit,
		MinSamplesLeaf:  cfg.MinSamplesLeaf,
		Alpha:           cfg.Alpha,
		RandomState:     cfg.RandomState,
	}
}

// NamedStep returns the estimator of the step called name.
func (p *Pipeline) NamedStep(name string) (interface{}, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s.Estimator, true
		}
	}
	return nil, false
}

// Fit fits every transformer in turn on the output of the previous one, then
// fits the final regressor.
func (p *Pipeline) Fit(X *dataset.Frame, y []float64) error {
	if err := p.validateSteps(); err != nil {
		return err
	}
	if len(y) != X.NRows() {
		return errors.NewDimensionError("Pipeline.Fit", X.NRows(), len(y), 0)
	}

	logger := log.GetLoggerWithName("pipeline").With(log.OperationKey, log.OperationFit)
	start := time.Now()

	first := p.Steps[0]
	ft := first.Estimator.(model.FrameTransformer)
	if err := ft.Fit(X, y); err != nil {
		return errors.Wrapf(err, "failed to fit step '%s'", first.Name)
	}
	Xt, err := ft.Transform(X)
	if err != nil {
		return errors.Wrapf(err, "failed to transform at step '%s'", first.Name)
	}

	var cur mat.Matrix = Xt
	for _, step := range p.Steps[1 : len(p.Steps)-1] {
		t := step.Estimator.(model.Transformer)
		if err := t.Fit(cur); err != nil {
			return errors.Wrapf(err, "failed to fit step '%s'", step.Name)
		}
		if cur, err = t.Transform(cur); err != nil {
			return errors.Wrapf(err, "failed to transform at step '%s'", step.Name)
		}
	}

	final := p.Steps[len(p.Steps)-1]
	reg := final.Estimator.(model.Regressor)
	if err := reg.Fit(cur, mat.NewDense(len(y), 1, y)); err != nil {
		return errors.Wrapf(err, "failed to fit final step '%s'", final.Name)
	}

	if p.State == nil {
		p.State = model.NewStateManager("Pipeline")
	}
	p.State.SetFitted(X.NCols(), X.NRows())
	logger.Info("Pipeline fitted",
		log.SamplesKey, X.NRows(),
		log.FeaturesKey, X.NCols(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Predict applies the fitted transforms to X and returns one prediction per
// row. Predict does not modify the pipeline and is safe for concurrent use.
func (p *Pipeline) Predict(X *dataset.Frame) ([]float64, error) {
	if p.State == nil {
		return nil, errors.NewNotFittedError("Pipeline", "Predict")
	}
	if err := p.State.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	if err := p.validateSteps(); err != nil {
		return nil, err
	}

	Xt, err := p.Steps[0].Estimator.(model.FrameTransformer).Transform(X)
	if err != nil {
		return nil, err
	}
	var cur mat.Matrix = Xt
	for _, step := range p.Steps[1 : len(p.Steps)-1] {
		if cur, err = step.Estimator.(model.Transformer).Transform(cur); err != nil {
			return nil, err
		}
	}
	pred, err := p.Steps[len(p.Steps)-1].Estimator.(model.Regressor).Predict(cur)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, pred), nil
}

func (p *Pipeline) validateSteps() error {
	if len(p.Steps) < 2 {
		return errors.NewValidationError("steps", "pipeline needs a transformer and a regressor", len(p.Steps))
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if seen[s.Name] {
			return errors.NewValidationError("steps", "duplicate step name", s.Name)
		}
		seen[s.Name] = true

		var ok bool
		switch {
		case i == 0:
			_, ok = s.Estimator.(model.FrameTransformer)
		case i == len(p.Steps)-1:
			_, ok = s.Estimator.(model.Regressor)
		default:
			_, ok = s.Estimator.(model.Transformer)
		}
		if !ok {
			return errors.NewValidationError("steps", fmt.Sprintf("step %d has the wrong role", i), s.Name)
		}
	}
	return nil
}

// Save writes the fitted pipeline as a single versioned gob blob.
func (p *Pipeline) Save(w io.Writer) error {
	if p.State == nil || !p.State.IsFitted() {
		return errors.NewNotFittedError("Pipeline", "Save")
	}
	return model.SaveModelToWriter(p, w)
}

// Load reads a pipeline written by Save.
func Load(r io.Reader) (*Pipeline, error) {
	p := &Pipeline{}
	if err := model.LoadModelFromReader(p, r); err != nil {
		return nil, err
	}
	if err := p.validateSteps(); err != nil {
		return nil, errors.NewValueError("LoadModel", err.Error())
	}
	if p.State == nil || !p.State.IsFitted() {
		return nil, errors.NewValueError("LoadModel", "pipeline is not fitted")
	}
	return p, nil
}
