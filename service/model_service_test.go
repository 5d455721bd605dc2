package service

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/artifact"
	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pipeline"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

type artifacts struct {
	model, schema string
	pipeline      *pipeline.Pipeline
}

// writeArtifacts fits a small pipeline on columns sector (categorical) and
// area (numeric) and stores it under dir.
func writeArtifacts(t *testing.T, dir string) artifacts {
	t.Helper()
	n := 90
	sector := make([]string, n)
	area := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sector[i] = []string{"vitacura", "nunoa", "providencia"}[i%3]
		area[i] = float64(40 + i)
		y[i] = area[i]*100 + float64(i%3)*1000
	}
	f, err := dataset.New(
		dataset.NewCategorical("sector", sector),
		dataset.NewNumeric("area", area),
	)
	require.NoError(t, err)

	cfg := config.DefaultModelConfig()
	cfg.NEstimators = 30
	cfg.LearningRate = 0.1
	p := pipeline.Build([]string{"sector"}, cfg)
	require.NoError(t, p.Fit(f, y))

	store := artifact.NewStore()
	a := artifacts{
		model:    filepath.Join(dir, "model.joblib"),
		schema:   filepath.Join(dir, "feature_columns.json"),
		pipeline: p,
	}
	require.NoError(t, store.SaveModel(a.model, p))
	require.NoError(t, store.SaveSchema(a.schema, f.Columns()))
	return a
}

func TestPredictLoadsLazily(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)
	assert.False(t, svc.Loaded())
	assert.Equal(t, int64(0), svc.LoadCount())

	price, err := svc.Predict(map[string]any{"sector": "vitacura", "area": 60.0})
	require.NoError(t, err)
	assert.True(t, svc.Loaded())
	assert.Equal(t, int64(1), svc.LoadCount())

	row, err := dataset.FromPayload(map[string]any{"sector": "vitacura", "area": 60.0}, []string{"sector", "area"})
	require.NoError(t, err)
	want, err := a.pipeline.Predict(row)
	require.NoError(t, err)
	assert.Equal(t, want[0], price)
}

func TestLoadIsIdempotent(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)
	payload := map[string]any{"sector": "nunoa", "area": 75.0}

	require.NoError(t, svc.Load())
	first, err := svc.Predict(payload)
	require.NoError(t, err)

	require.NoError(t, svc.Load())
	second, err := svc.Predict(payload)
	require.NoError(t, err)

	assert.Equal(t, int64(1), svc.LoadCount())
	assert.Equal(t, first, second)
}

func TestConcurrentFirstLoad(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)

	const workers = 32
	var wg sync.WaitGroup
	results := make([]float64, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.Predict(map[string]any{"sector": "providencia", "area": 90.0})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, int64(1), svc.LoadCount())
}

func TestPredictMissingFeatures(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)

	_, err := svc.Predict(map[string]any{"sector": "nunoa"})
	require.Error(t, err)
	assert.True(t, errors.IsMissingFeatures(err))
	assert.Equal(t, "missing features in payload: area", err.Error())

	_, err = svc.Predict(map[string]any{"z": 1})
	require.Error(t, err)
	var mf *errors.MissingFeaturesError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, []string{"area", "sector"}, mf.Missing)
}

func TestPredictIgnoresExtraFields(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)

	base, err := svc.Predict(map[string]any{"sector": "nunoa", "area": 50.0})
	require.NoError(t, err)
	extra, err := svc.Predict(map[string]any{"sector": "nunoa", "area": 50.0, "z": 99})
	require.NoError(t, err)
	assert.Equal(t, base, extra)
}

func TestPredictUnseenCategory(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)

	_, err := svc.Predict(map[string]any{"sector": "quilicura", "area": 50.0})
	assert.NoError(t, err)
}

func TestPredictRejectsWrongValueType(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	svc := New(a.model, a.schema)

	_, err := svc.Predict(map[string]any{"sector": "nunoa", "area": "large"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Predict(map[string]any{"sector": "nunoa", "area": []int{1}})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	a := writeArtifacts(t, dir)

	svc := New(filepath.Join(dir, "absent.joblib"), a.schema)
	err := svc.Load()
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, svc.Loaded())

	svc = New(a.model, filepath.Join(dir, "absent.json"))
	assert.True(t, errors.IsNotFound(svc.Load()))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"columns": ["sector"]}`), 0o644))
	svc = New(a.model, bad)
	assert.True(t, errors.IsMalformedArtifact(svc.Load()))

	mismatch := filepath.Join(dir, "mismatch.json")
	require.NoError(t, os.WriteFile(mismatch, []byte(`{"features": ["area", "sector"]}`), 0o644))
	svc = New(a.model, mismatch)
	assert.True(t, errors.IsMalformedArtifact(svc.Load()))
}

func TestFailedLoadCanBeRetried(t *testing.T) {
	dir := t.TempDir()
	a := writeArtifacts(t, dir)
	schemaPath := filepath.Join(dir, "later.json")

	svc := New(a.model, schemaPath)
	require.Error(t, svc.Load())
	assert.Equal(t, int64(1), svc.LoadCount())

	require.NoError(t, artifact.NewStore().SaveSchema(schemaPath, []string{"sector", "area"}))
	require.NoError(t, svc.Load())
	assert.Equal(t, int64(2), svc.LoadCount())

	features, err := svc.Features()
	require.NoError(t, err)
	assert.Equal(t, []string{"sector", "area"}, features)
}

func TestPredictionCache(t *testing.T) {
	a := writeArtifacts(t, t.TempDir())
	logger, _ := log.NewTestLogger(log.LevelDebug)
	svc := New(a.model, a.schema, WithPredictionCache(8), WithLogger(logger))

	payload := map[string]any{"sector": "vitacura", "area": 65.0}
	first, err := svc.Predict(payload)
	require.NoError(t, err)
	second, err := svc.Predict(payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, logger.ContainsField(log.CacheHitKey, true))
	assert.Equal(t, 1, svc.cache.Len())
}
