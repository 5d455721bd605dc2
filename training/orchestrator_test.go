package training

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/artifact"
	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/metrics"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

const header = "id,type,sector,net_usable_area,net_area,n_rooms,n_bathrooms,latitude,longitude,price"

var sectors = []string{"vitacura", "las condes", "providencia", "nunoa", "la reina", "lo barnechea"}

func propertyRows(n, offset int) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := offset; i < offset+n; i++ {
		typ := "departamento"
		if i%3 == 0 {
			typ = "casa"
		}
		sector := sectors[i%len(sectors)]
		usable := 40 + float64((i*37)%200)
		area := usable * 1.2
		rooms := 1 + i%5
		baths := 1 + i%3
		lat := -33.40 - float64(i%10)*0.01
		lon := -70.55 - float64(i%7)*0.01
		price := usable*60 + float64(rooms)*800 + float64(i%len(sectors))*1500
		if typ == "casa" {
			price += 4000
		}
		fmt.Fprintf(&b, "%d,%s,%s,%g,%g,%d,%d,%g,%g,%g\n", i, typ, sector, usable, area, rooms, baths, lat, lon, price)
	}
	return b.String()
}

type fixture struct {
	dir       string
	trainPath string
	testPath  string
}

func newFixture(t *testing.T, train, test string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:       dir,
		trainPath: filepath.Join(dir, "train.csv"),
		testPath:  filepath.Join(dir, "test.csv"),
	}
	require.NoError(t, os.WriteFile(f.trainPath, []byte(train), 0o644))
	require.NoError(t, os.WriteFile(f.testPath, []byte(test), 0o644))
	return f
}

func (f fixture) document() config.Document {
	doc := config.DefaultDocument()
	doc.Target = "price"
	doc.CategoricalColumns = []string{"type", "sector"}
	doc.DropColumns = []string{"id"}
	doc.DataSource = config.DataSourceConfig{Type: "csv", TrainPath: f.trainPath, TestPath: f.testPath}
	doc.ArtifactsDir = filepath.Join(f.dir, "artifacts")
	doc.Model.NEstimators = 40
	doc.Model.LearningRate = 0.1
	doc.Model.MaxDepth = 3
	return doc
}

func mustConfig(t *testing.T, doc config.Document) config.TrainingConfig {
	t.Helper()
	cfg, err := config.NewTrainingConfig(doc)
	require.NoError(t, err)
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	fx := newFixture(t, propertyRows(240, 0), propertyRows(60, 1000))
	doc := fx.document()
	doc.PlotFilename = "evaluation.png"
	cfg := mustConfig(t, doc)

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Metrics, 3)
	for _, name := range []string{metrics.MAEName, metrics.MAPEName, metrics.RMSEName} {
		v, ok := res.Metrics[name]
		require.True(t, ok, name)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), name)
		assert.GreaterOrEqual(t, v, 0.0, name)
	}

	assert.Equal(t, []string{
		"type", "sector", "net_usable_area", "net_area", "n_rooms", "n_bathrooms", "latitude", "longitude",
	}, res.Features)
	assert.NotContains(t, res.Features, "price")
	assert.NotContains(t, res.Features, "id")

	for _, p := range []string{res.Artifacts.Model, res.Artifacts.Schema, res.Artifacts.Metrics, res.Artifacts.Manifest, res.Artifacts.Plot} {
		assert.FileExists(t, p)
	}

	store := artifact.NewStore()
	manifest, err := store.LoadManifest(cfg.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, manifest.RunID)
	assert.Equal(t, len(res.Features), manifest.FeatureCount)
	assert.Equal(t, res.Metrics, manifest.Metrics)
	assert.False(t, manifest.FinishedAt.Before(manifest.StartedAt))
}

func TestRunRoundTripReproducesMetrics(t *testing.T) {
	fx := newFixture(t, propertyRows(200, 0), propertyRows(40, 500))
	cfg := mustConfig(t, fx.document())

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	store := artifact.NewStore()
	model, err := store.LoadModel(res.Artifacts.Model)
	require.NoError(t, err)
	schema, err := store.LoadSchema(res.Artifacts.Schema)
	require.NoError(t, err)
	assert.Equal(t, res.Features, schema)

	test := loadTestSplit(t, fx.testPath)
	x, err := test.Select(schema)
	require.NoError(t, err)
	y, err := test.Target("price")
	require.NoError(t, err)

	pred, err := model.Predict(x.WithCategorical(cfg.CategoricalColumns()))
	require.NoError(t, err)
	rep, err := metrics.RegressionMetrics(y, pred)
	require.NoError(t, err)
	assert.Equal(t, res.Metrics, rep)
}

func loadTestSplit(t *testing.T, path string) *dataset.Frame {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	rows := make([][]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		rows = append(rows, strings.Split(l, ","))
	}
	f, err := dataset.FromRecords(strings.Split(lines[0], ","), rows)
	require.NoError(t, err)
	return f
}

func TestRunDeterministic(t *testing.T) {
	train, test := propertyRows(150, 0), propertyRows(30, 300)

	doc1 := newFixture(t, train, test).document()
	doc1.Model.Subsample = 0.8
	doc2 := newFixture(t, train, test).document()
	doc2.Model.Subsample = 0.8

	r1, err := Run(context.Background(), mustConfig(t, doc1))
	require.NoError(t, err)
	r2, err := Run(context.Background(), mustConfig(t, doc2))
	require.NoError(t, err)

	assert.Equal(t, r1.Metrics, r2.Metrics)
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestRunZeroTargetMAPEIsFinite(t *testing.T) {
	test := propertyRows(10, 700)
	lines := strings.Split(strings.TrimSpace(test), "\n")
	cells := strings.Split(lines[1], ",")
	cells[len(cells)-1] = "0"
	lines[1] = strings.Join(cells, ",")

	fx := newFixture(t, propertyRows(120, 0), strings.Join(lines, "\n")+"\n")
	res, err := Run(context.Background(), mustConfig(t, fx.document()))
	require.NoError(t, err)

	mape := res.Metrics[metrics.MAPEName]
	assert.False(t, math.IsInf(mape, 0) || math.IsNaN(mape))
	assert.Greater(t, mape, 1e6)
}

func TestRunFailureStates(t *testing.T) {
	good := propertyRows(60, 0)

	tests := []struct {
		name      string
		train     string
		test      string
		mutate    func(*config.Document, fixture)
		wantState State
		wantKind  errors.Kind
		wantMsg   string
	}{
		{
			name:  "missing train file",
			train: good, test: good,
			mutate: func(d *config.Document, f fixture) {
				d.DataSource.TrainPath = filepath.Join(f.dir, "nope.csv")
			},
			wantState: StateLoading,
			wantKind:  errors.KindNotFound,
		},
		{
			name:      "target missing from test split",
			train:     good,
			test:      strings.Replace(good, ",price\n", ",cost\n", 1),
			wantState: StateValidating,
			wantKind:  errors.KindValidation,
			wantMsg:   "price",
		},
		{
			name:  "categorical column missing",
			train: good, test: good,
			mutate: func(d *config.Document, _ fixture) {
				d.CategoricalColumns = []string{"type", "sector", "commune"}
			},
			wantState: StateValidating,
			wantKind:  errors.KindValidation,
			wantMsg:   "commune",
		},
		{
			name:      "test split lacks a feature column",
			train:     good,
			test:      dropColumn(good, "latitude"),
			wantState: StateFeatureResolution,
			wantKind:  errors.KindValidation,
			wantMsg:   "latitude",
		},
		{
			name:  "text column not declared categorical",
			train: good, test: good,
			mutate: func(d *config.Document, _ fixture) {
				d.CategoricalColumns = []string{"type"}
			},
			wantState: StateFitting,
			wantKind:  errors.KindValidation,
			wantMsg:   "sector",
		},
		{
			name:  "artifacts dir is a file",
			train: good, test: good,
			mutate: func(d *config.Document, f fixture) {
				d.ArtifactsDir = f.trainPath
			},
			wantState: StatePersisting,
			wantKind:  errors.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.train, tt.test)
			doc := fx.document()
			doc.Model.NEstimators = 5
			if tt.mutate != nil {
				tt.mutate(&doc, fx)
			}
			o, err := New(mustConfig(t, doc))
			require.NoError(t, err)

			_, err = o.Run(context.Background())
			require.Error(t, err)

			var se *StateError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantState, se.State)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))
			assert.Equal(t, StateFailed, o.State())
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func dropColumn(csv, name string) string {
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	cols := strings.Split(lines[0], ",")
	idx := -1
	for i, c := range cols {
		if c == name {
			idx = i
		}
	}
	for i, l := range lines {
		cells := strings.Split(l, ",")
		lines[i] = strings.Join(append(cells[:idx:idx], cells[idx+1:]...), ",")
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestNewRejectsUnknownDataSource(t *testing.T) {
	fx := newFixture(t, propertyRows(10, 0), propertyRows(5, 10))
	doc := fx.document()
	doc.DataSource.Type = "parquet"

	_, err := New(mustConfig(t, doc))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "csv, sqlite")
}

type stubSource struct {
	train, test *dataset.Frame
	err         error
}

func (s stubSource) Load(context.Context) (*dataset.Frame, *dataset.Frame, error) {
	return s.train, s.test, s.err
}

func TestRunLogsTransitions(t *testing.T) {
	fx := newFixture(t, propertyRows(80, 0), propertyRows(20, 100))
	cfg := mustConfig(t, fx.document())
	logger, _ := log.NewTestLogger(log.LevelDebug)

	train := loadTestSplit(t, fx.trainPath)
	test := loadTestSplit(t, fx.testPath)
	o, err := New(cfg, WithDataSource(stubSource{train: train, test: test}), WithLogger(logger))
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, o.State())

	for _, s := range []State{StateLoading, StateValidating, StateFeatureResolution, StateFitting, StateEvaluating, StatePersisting, StateDone} {
		assert.True(t, logger.ContainsField(log.StateKey, string(s)), s)
	}
	assert.False(t, logger.ContainsMessage("Training failed"))
}

func TestRunLogsFailure(t *testing.T) {
	fx := newFixture(t, propertyRows(10, 0), propertyRows(5, 10))
	logger, _ := log.NewTestLogger(log.LevelInfo)
	loadErr := errors.NewNotFoundError("training data", "s3://bucket/train.csv", nil)

	o, err := New(mustConfig(t, fx.document()), WithDataSource(stubSource{err: loadErr}), WithLogger(logger))
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, logger.ContainsMessage("Training failed"))
	assert.True(t, logger.ContainsField(log.StateKey, string(StateLoading)))
}

func TestRunHonoursCancelledContext(t *testing.T) {
	fx := newFixture(t, propertyRows(10, 0), propertyRows(5, 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, mustConfig(t, fx.document()))
	require.Error(t, err)
	var se *StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StateLoading, se.State)
	assert.True(t, errors.Is(err, context.Canceled))
}
