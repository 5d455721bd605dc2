// Package service serves predictions from the artifacts of a training run.
package service

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YuminosukeSato/propval/artifact"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pipeline"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// ModelService owns a lazily loaded, read-only copy of the fitted pipeline
// and its feature schema. It is safe for concurrent use; the first caller of
// Load (directly or through Predict) reads the artifacts, everyone else
// shares the result.
type ModelService struct {
	modelPath  string
	schemaPath string
	store      *artifact.Store
	logger     log.Logger
	cache      *lru.Cache[string, float64]
	cacheSize  int

	mu        sync.Mutex
	loaded    atomic.Bool
	loadCount atomic.Int64
	model     *pipeline.Pipeline
	features  []string
}

// Option configures a ModelService.
type Option func(*ModelService)

// WithPredictionCache keeps up to size recent predictions keyed by the
// ordered feature values. size <= 0 disables the cache.
func WithPredictionCache(size int) Option {
	return func(s *ModelService) { s.cacheSize = size }
}

// WithStore overrides the artifact store.
func WithStore(store *artifact.Store) Option {
	return func(s *ModelService) { s.store = store }
}

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(s *ModelService) { s.logger = l }
}

// New returns an unloaded service for the given artifact paths. Nothing is
// read until Load or Predict is called.
func New(modelPath, schemaPath string, opts ...Option) *ModelService {
	s := &ModelService{modelPath: modelPath, schemaPath: schemaPath}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = artifact.NewStore()
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("service.model")
	}
	if s.cacheSize > 0 {
		// lru.New only fails for a non-positive size
		s.cache, _ = lru.New[string, float64](s.cacheSize)
	}
	return s
}

// Load reads the model and the feature schema once. Calling it again after a
// successful load is a no-op. A failed load leaves the service unloaded so a
// later call can retry.
func (s *ModelService) Load() error {
	if s.loaded.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded.Load() {
		return nil
	}

	s.loadCount.Add(1)
	model, err := s.store.LoadModel(s.modelPath)
	if err != nil {
		s.logger.Error("Failed to load model", err, log.ArtifactPathKey, s.modelPath)
		return err
	}
	features, err := s.store.LoadSchema(s.schemaPath)
	if err != nil {
		s.logger.Error("Failed to load feature schema", err, log.ArtifactPathKey, s.schemaPath)
		return err
	}
	if err := checkSchema(model, features); err != nil {
		s.logger.Error("Feature schema does not match model", err, log.ArtifactPathKey, s.schemaPath)
		return errors.NewMalformedArtifactError(s.schemaPath, "feature schema does not match model", err)
	}

	s.model = model
	s.features = features
	s.loaded.Store(true)
	s.logger.Info("Model loaded",
		log.ArtifactPathKey, s.modelPath,
		log.FeaturesKey, features,
	)
	return nil
}

// checkSchema compares the schema with the columns the pipeline was fitted on.
func checkSchema(model *pipeline.Pipeline, features []string) error {
	step, ok := model.NamedStep(pipeline.StepPreprocessor)
	if !ok {
		return nil
	}
	ct, ok := step.(*pipeline.ColumnTransformer)
	if !ok || slices.Equal(ct.Columns, features) {
		return nil
	}
	return errors.Newf("model expects %v, schema lists %v", ct.Columns, features)
}

// Loaded reports whether the artifacts have been loaded.
func (s *ModelService) Loaded() bool { return s.loaded.Load() }

// LoadCount returns how many times the artifacts were read.
func (s *ModelService) LoadCount() int64 { return s.loadCount.Load() }

// Features returns a copy of the feature schema, loading it if needed.
func (s *ModelService) Features() ([]string, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	return slices.Clone(s.features), nil
}

// Predict scores a single payload. Every schema feature must be present;
// extra keys are ignored. Values are taken in schema order.
func (s *ModelService) Predict(payload map[string]any) (float64, error) {
	if err := s.Load(); err != nil {
		return 0, err
	}

	var missing []string
	for _, f := range s.features {
		if _, ok := payload[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return 0, errors.NewMissingFeaturesError(missing)
	}

	var key string
	if s.cache != nil {
		key = cacheKey(payload, s.features)
		if v, ok := s.cache.Get(key); ok {
			s.logger.Debug("Prediction served from cache", log.PredictionKey, v, log.CacheHitKey, true)
			return v, nil
		}
	}

	row, err := dataset.FromPayload(payload, s.features)
	if err != nil {
		return 0, err
	}

	var pred []float64
	err = errors.SafeExecute("ModelService.Predict", func() error {
		var perr error
		pred, perr = s.model.Predict(row)
		return perr
	})
	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindValidation, errors.KindMissingFeatures:
			return 0, err
		}
		s.logger.Error("Inference failed", err, log.PhaseKey, log.PhaseInference)
		return 0, errors.NewInferenceError("ModelService.Predict", err)
	}
	if len(pred) != 1 {
		return 0, errors.NewInferenceError("ModelService.Predict", errors.Newf("expected 1 prediction, got %d", len(pred)))
	}
	if err := errors.CheckScalar("ModelService.Predict", pred[0], 0); err != nil {
		return 0, errors.NewInferenceError("ModelService.Predict", err)
	}

	if s.cache != nil {
		s.cache.Add(key, pred[0])
	}
	s.logger.Debug("Prediction computed", log.PredictionKey, pred[0], log.CacheHitKey, false)
	return pred[0], nil
}

func cacheKey(payload map[string]any, features []string) string {
	var b strings.Builder
	for _, f := range features {
		fmt.Fprintf(&b, "%T:%v\x1f", payload[f], payload[f])
	}
	return b.String()
}
