// Package training runs one training pipeline end to end: load the data,
// validate it, resolve the features, fit, evaluate and persist.
package training

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/propval/artifact"
	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/datasource"
	"github.com/YuminosukeSato/propval/features"
	"github.com/YuminosukeSato/propval/metrics"
	"github.com/YuminosukeSato/propval/pipeline"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
	"github.com/YuminosukeSato/propval/report"
)

// State of a training run.
type State string

const (
	StateLoading           State = "Loading"
	StateValidating        State = "Validating"
	StateFeatureResolution State = "FeatureResolution"
	StateFitting           State = "Fitting"
	StateEvaluating        State = "Evaluating"
	StatePersisting        State = "Persisting"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// StateError is returned by Run. It records the state the run failed in and
// wraps the underlying typed error.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("training failed in state %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// Result is returned by a successful run.
type Result struct {
	RunID     string
	Metrics   metrics.Report
	Features  []string
	Artifacts artifact.Paths
}

// Orchestrator drives a single training run. It is not safe for concurrent
// use and assumes exclusive access to the artifacts directory.
type Orchestrator struct {
	cfg    config.TrainingConfig
	source datasource.DataSource
	store  *artifact.Store
	logger log.Logger
	now    func() time.Time

	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDataSource overrides the data source built from the configuration.
func WithDataSource(ds datasource.DataSource) Option {
	return func(o *Orchestrator) { o.source = ds }
}

// WithStore overrides the artifact store.
func WithStore(s *artifact.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now for the manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator. Unless WithDataSource is given, the data source
// is constructed from cfg, so an unknown type fails here.
func New(cfg config.TrainingConfig, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.source == nil {
		ds, err := datasource.New(cfg.DataSource())
		if err != nil {
			return nil, err
		}
		o.source = ds
	}
	if o.store == nil {
		o.store = artifact.NewStore()
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("training")
	}
	return o, nil
}

// Run executes the pipeline synchronously. Any failure moves the run to
// Failed and is returned as a *StateError. Nothing is retried and nothing
// already written is cleaned up.
func Run(ctx context.Context, cfg config.TrainingConfig) (Result, error) {
	o, err := New(cfg)
	if err != nil {
		return Result{}, &StateError{State: StateLoading, Err: err}
	}
	return o.Run(ctx)
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// run is the working set carried between states.
type run struct {
	id      string
	started time.Time

	train, test   *dataset.Frame
	yTrain, yTest []float64
	features      []string
	xTrain, xTest *dataset.Frame

	model     *pipeline.Pipeline
	pred      []float64
	report    metrics.Report
	artifacts artifact.Paths
}

// Run executes the state machine once.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	r := &run{id: uuid.NewString(), started: o.now()}
	logger := o.logger.With(log.RunIDKey, r.id)
	logger.Info("Training run started",
		log.DataSourceKey, o.cfg.DataSource().Type,
		log.ArtifactPathKey, o.cfg.ArtifactsDir(),
	)

	steps := []struct {
		state State
		fn    func(context.Context, *run) error
	}{
		{StateLoading, o.load},
		{StateValidating, o.validate},
		{StateFeatureResolution, o.resolveFeatures},
		{StateFitting, o.fit},
		{StateEvaluating, o.evaluate},
		{StatePersisting, o.persist},
	}

	for _, step := range steps {
		o.state = step.state
		logger.Info("State entered", log.StateKey, string(step.state))
		start := time.Now()

		err := ctx.Err()
		if err == nil {
			err = step.fn(ctx, r)
		}
		if err != nil {
			o.state = StateFailed
			logger.Error("Training failed",
				err,
				log.StateKey, string(step.state),
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)
			return Result{}, &StateError{State: step.state, Err: err}
		}
		logger.Debug("State completed",
			log.StateKey, string(step.state),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}

	o.state = StateDone
	logger.Info("Training run finished",
		log.StateKey, string(StateDone),
		log.MAEKey, r.report[metrics.MAEName],
		log.MAPEKey, r.report[metrics.MAPEName],
		log.RMSEKey, r.report[metrics.RMSEName],
		log.DurationMsKey, time.Since(r.started).Milliseconds(),
	)
	return Result{
		RunID:     r.id,
		Metrics:   r.report,
		Features:  r.features,
		Artifacts: r.artifacts,
	}, nil
}

// ===========================================================================
//
//	各ステート
//
// ===========================================================================

func (o *Orchestrator) load(ctx context.Context, r *run) error {
	train, test, err := o.source.Load(ctx)
	if err != nil {
		return err
	}
	r.train, r.test = train, test
	o.logger.Info("Datasets loaded",
		log.RunIDKey, r.id,
		"train_rows", train.NRows(),
		"test_rows", test.NRows(),
	)
	return nil
}

// validate checks the target and categorical columns on both splits before
// anything is resolved, so the error names the exact split and columns.
func (o *Orchestrator) validate(_ context.Context, r *run) error {
	required := append([]string{o.cfg.Target()}, o.cfg.CategoricalColumns()...)
	for _, split := range []struct {
		name  string
		frame *dataset.Frame
	}{{"train", r.train}, {"test", r.test}} {
		if split.frame.NRows() == 0 {
			return errors.NewValidationError(split.name+" dataset", "has no rows", nil)
		}
		if missing := split.frame.Missing(required); len(missing) > 0 {
			return errors.NewValidationError(split.name+" dataset", "missing required columns: "+strings.Join(missing, ", "), nil)
		}
	}

	var err error
	if r.yTrain, err = r.train.Target(o.cfg.Target()); err != nil {
		return errors.Wrap(err, "train dataset")
	}
	if r.yTest, err = r.test.Target(o.cfg.Target()); err != nil {
		return errors.Wrap(err, "test dataset")
	}
	return nil
}

func (o *Orchestrator) resolveFeatures(_ context.Context, r *run) error {
	cats := o.cfg.CategoricalColumns()
	r.features = features.Resolve(r.train.Columns(), o.cfg.Target(), o.cfg.DropColumns())
	if err := features.RequireCategorical(r.features, cats); err != nil {
		return err
	}
	if len(r.features) == 0 {
		return errors.NewValidationError("features", "no feature columns left after excluding target and drop columns", nil)
	}
	if missing := r.test.Missing(r.features); len(missing) > 0 {
		return errors.NewValidationError("test dataset", "missing feature columns: "+strings.Join(missing, ", "), nil)
	}

	xTrain, err := r.train.Select(r.features)
	if err != nil {
		return err
	}
	xTest, err := r.test.Select(r.features)
	if err != nil {
		return err
	}
	r.xTrain = xTrain.WithCategorical(cats)
	r.xTest = xTest.WithCategorical(cats)

	o.logger.Info("Features resolved",
		log.RunIDKey, r.id,
		log.FeaturesKey, r.features,
		log.CategoricalKey, cats,
	)
	return nil
}

func (o *Orchestrator) fit(_ context.Context, r *run) error {
	mc := o.cfg.Model()
	o.logger.Info("Fitting pipeline",
		log.RunIDKey, r.id,
		log.SamplesKey, r.xTrain.NRows(),
		log.LearningRateKey, mc.LearningRate,
		log.RandomSeedKey, mc.RandomState,
		log.HyperParamsKey, map[string]interface{}{
			"n_estimators": mc.NEstimators,
			"max_depth":    mc.MaxDepth,
			"loss":         mc.Loss,
			"subsample":    mc.Subsample,
		},
	)
	p := pipeline.Build(o.cfg.CategoricalColumns(), mc)
	if err := p.Fit(r.xTrain, r.yTrain); err != nil {
		return err
	}
	r.model = p
	return nil
}

func (o *Orchestrator) evaluate(_ context.Context, r *run) error {
	pred, err := r.model.Predict(r.xTest)
	if err != nil {
		return err
	}
	rep, err := metrics.RegressionMetrics(r.yTest, pred)
	if err != nil {
		return err
	}
	r.pred, r.report = pred, rep

	fields := []any{
		log.RunIDKey, r.id,
		log.PhaseKey, log.PhaseEvaluation,
		log.MAEKey, rep[metrics.MAEName],
		log.MAPEKey, rep[metrics.MAPEName],
		log.RMSEKey, rep[metrics.RMSEName],
	}
	if r2, err := metrics.R2Score(r.yTest, pred); err == nil {
		fields = append(fields, "r2", r2)
	}
	o.logger.Info("Model evaluated", fields...)
	return nil
}

// persist writes model, schema and metrics, then the manifest, then the
// optional plot.
func (o *Orchestrator) persist(_ context.Context, r *run) error {
	paths, err := o.store.Persist(r.model, r.features, r.report, o.cfg)
	if err != nil {
		return err
	}
	paths.Manifest = o.cfg.ManifestPath()
	paths.Plot = o.cfg.PlotPath()

	manifest := artifact.Manifest{
		RunID:        r.id,
		StartedAt:    r.started.UTC(),
		FinishedAt:   o.now().UTC(),
		Config:       o.cfg.Snapshot(),
		FeatureCount: len(r.features),
		Features:     r.features,
		Metrics:      r.report,
		Artifacts:    paths,
	}
	if err := o.store.WriteManifest(paths.Manifest, manifest); err != nil {
		return err
	}

	if paths.Plot != "" {
		plt, err := report.PredictionScatter(r.yTest, r.pred, r.report)
		if err != nil {
			return err
		}
		if err := o.store.WriteFile(paths.Plot, "evaluation plot", func(w io.Writer) error {
			return report.WritePNG(plt, w)
		}); err != nil {
			return err
		}
	}
	r.artifacts = paths
	return nil
}
