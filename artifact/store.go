// Package artifact persists and loads the outputs of a training run: the
// fitted pipeline, the feature schema, the metrics and the run manifest.
package artifact

import (
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/metrics"
	"github.com/YuminosukeSato/propval/pipeline"
	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// Paths records where each artifact of a run was written.
type Paths struct {
	Model    string `yaml:"model" json:"model"`
	Schema   string `yaml:"feature_schema" json:"feature_schema"`
	Metrics  string `yaml:"metrics" json:"metrics"`
	Manifest string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	Plot     string `yaml:"plot,omitempty" json:"plot,omitempty"`
}

// Manifest is the audit record of one training run.
type Manifest struct {
	RunID        string          `yaml:"run_id"`
	StartedAt    time.Time       `yaml:"started_at"`
	FinishedAt   time.Time       `yaml:"finished_at"`
	Config       config.Document `yaml:"config"`
	FeatureCount int             `yaml:"feature_count"`
	Features     []string        `yaml:"features"`
	Metrics      metrics.Report  `yaml:"metrics"`
	Artifacts    Paths           `yaml:"artifacts"`
}

type schemaDocument struct {
	Features []string `json:"features"`
}

// Store reads and writes artifacts on the local filesystem. Every write goes
// to a temporary file in the target directory and is renamed into place, so
// readers never observe a partially written artifact.
type Store struct {
	logger log.Logger
}

// NewStore returns a Store.
func NewStore() *Store {
	return &Store{logger: log.GetLoggerWithName("artifact.store")}
}

// Persist writes the model, the feature schema and the metrics, in that
// order, to the locations named by cfg. The artifacts directory is created
// if needed.
func (s *Store) Persist(p *pipeline.Pipeline, features []string, report metrics.Report, cfg config.TrainingConfig) (Paths, error) {
	if err := os.MkdirAll(cfg.ArtifactsDir(), 0o755); err != nil {
		return Paths{}, errors.Wrapf(err, "failed to create artifacts directory %s", cfg.ArtifactsDir())
	}
	paths := Paths{
		Model:   cfg.ModelPath(),
		Schema:  cfg.FeatureStorePath(),
		Metrics: cfg.MetricsPath(),
	}

	if err := s.SaveModel(paths.Model, p); err != nil {
		return Paths{}, err
	}
	if err := s.SaveSchema(paths.Schema, features); err != nil {
		return Paths{}, err
	}
	if err := s.SaveMetrics(paths.Metrics, report); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// SaveModel writes the fitted pipeline as one opaque blob.
func (s *Store) SaveModel(path string, p *pipeline.Pipeline) error {
	return s.write(path, "model", p.Save)
}

// SaveSchema writes {"features": [...]}.
func (s *Store) SaveSchema(path string, features []string) error {
	if features == nil {
		features = []string{}
	}
	return s.writeJSON(path, "feature schema", schemaDocument{Features: features})
}

// SaveMetrics writes the flat metrics document.
func (s *Store) SaveMetrics(path string, report metrics.Report) error {
	return s.writeJSON(path, "metrics", report)
}

// WriteManifest writes the run manifest as YAML.
func (s *Store) WriteManifest(path string, m Manifest) error {
	return s.write(path, "manifest", func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	})
}

// WriteFile writes an arbitrary artifact through fn, atomically.
func (s *Store) WriteFile(path, resource string, fn func(io.Writer) error) error {
	return s.write(path, resource, fn)
}

// LoadModel reads a pipeline written by SaveModel.
func (s *Store) LoadModel(path string) (*pipeline.Pipeline, error) {
	f, err := open(path, "model artifact")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := pipeline.Load(f)
	if err != nil {
		return nil, errors.NewMalformedArtifactError(path, "cannot decode model", err)
	}
	return p, nil
}

// LoadSchema reads the ordered feature names.
func (s *Store) LoadSchema(path string) ([]string, error) {
	data, err := readFile(path, "feature schema")
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewMalformedArtifactError(path, "invalid JSON", err)
	}
	raw, ok := doc["features"]
	if !ok {
		return nil, errors.NewMalformedArtifactError(path, "missing 'features' key", nil)
	}
	var features []string
	if err := json.Unmarshal(raw, &features); err != nil || features == nil {
		return nil, errors.NewMalformedArtifactError(path, "'features' must be a list of strings", err)
	}
	return features, nil
}

// LoadMetrics reads a metrics document.
func (s *Store) LoadMetrics(path string) (metrics.Report, error) {
	data, err := readFile(path, "metrics")
	if err != nil {
		return nil, err
	}
	var report metrics.Report
	if err := json.Unmarshal(data, &report); err != nil || report == nil {
		return nil, errors.NewMalformedArtifactError(path, "metrics must be a map of name to number", err)
	}
	return report, nil
}

// LoadManifest reads a run manifest.
func (s *Store) LoadManifest(path string) (Manifest, error) {
	data, err := readFile(path, "manifest")
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, errors.NewMalformedArtifactError(path, "invalid YAML", err)
	}
	return m, nil
}

// ===========================================================================
//
//	ファイル操作
//
// ===========================================================================

func (s *Store) writeJSON(path, resource string, v interface{}) error {
	return s.write(path, resource, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// write streams fn into a temporary sibling of path and renames it into place.
func (s *Store) write(path, resource string, fn func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", resource)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fn(tmp); err != nil {
		return errors.Wrapf(err, "failed to write %s", resource)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %s", resource)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", resource)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to set permissions on %s", resource)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", resource)
	}

	if s.logger != nil {
		s.logger.Info("Artifact written", "resource", resource, log.ArtifactPathKey, path)
	}
	return nil
}

func open(path, resource string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotFoundError(resource, path, nil)
		}
		return nil, errors.Wrapf(err, "failed to open %s", resource)
	}
	return f, nil
}

func readFile(path, resource string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotFoundError(resource, path, nil)
		}
		return nil, errors.Wrapf(err, "failed to read %s", resource)
	}
	return data, nil
}
