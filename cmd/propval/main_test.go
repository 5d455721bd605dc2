package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, path string, n, offset int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,type,sector,net_usable_area,n_rooms,price\n")
	for i := offset; i < offset+n; i++ {
		typ := []string{"casa", "departamento"}[i%2]
		sector := []string{"vitacura", "nunoa", "providencia"}[i%3]
		area := 40 + (i*13)%150
		rooms := 1 + i%4
		fmt.Fprintf(&b, "%d,%s,%s,%d,%d,%d\n", i, typ, sector, area, rooms, area*90+rooms*700+(i%3)*1500)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestRunTrain(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, filepath.Join(dir, "train.csv"), 120, 0)
	writeDataset(t, filepath.Join(dir, "test.csv"), 30, 500)

	cfg := fmt.Sprintf(`
target: price
categorical_columns: [type, sector]
drop_columns: [id]
data_source:
  type: csv
  train_path: %s
  test_path: %s
model:
  n_estimators: 20
  learning_rate: 0.1
artifacts_dir: %s
log_level: error
`, filepath.Join(dir, "train.csv"), filepath.Join(dir, "test.csv"), filepath.Join(dir, "artifacts"))
	cfgPath := filepath.Join(dir, "training.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"train", cfgPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Training completed")
	assert.Contains(t, out, "mae:")
	assert.Contains(t, out, "mape:")
	assert.Contains(t, out, "rmse:")
	for _, name := range []string{"model.joblib", "feature_columns.json", "metrics.json", "run_manifest.yaml"} {
		assert.FileExists(t, filepath.Join(dir, "artifacts", name))
	}
}

func TestRunTrainFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"train", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "not found")
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage:")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"evaluate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "evaluate"`)

	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
}

func TestRunServeRequiresAPIKey(t *testing.T) {
	t.Setenv("PROPERTY_FRIENDS_API_KEY", "")
	var stdout, stderr bytes.Buffer
	code := run([]string{"serve", "--env-file", filepath.Join(t.TempDir(), "none.env")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "api_key")
}
