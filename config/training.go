// Package config holds the validated configuration values of the trainer and
// the API server and loads them with viper.
package config

import (
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// Default artifact locations.
const (
	DefaultArtifactsDir         = "artifacts"
	DefaultModelFilename        = "model.joblib"
	DefaultMetricsFilename      = "metrics.json"
	DefaultFeatureStoreFilename = "feature_columns.json"
	DefaultManifestFilename     = "run_manifest.yaml"
)

// DataSourceConfig describes where the train/test datasets come from. Which
// fields are needed depends on Type.
type DataSourceConfig struct {
	Type       string `mapstructure:"type" yaml:"type" json:"type"`
	TrainPath  string `mapstructure:"train_path" yaml:"train_path,omitempty" json:"train_path,omitempty"`
	TestPath   string `mapstructure:"test_path" yaml:"test_path,omitempty" json:"test_path,omitempty"`
	DSN        string `mapstructure:"dsn" yaml:"dsn,omitempty" json:"dsn,omitempty"`
	TrainTable string `mapstructure:"train_table" yaml:"train_table,omitempty" json:"train_table,omitempty"`
	TestTable  string `mapstructure:"test_table" yaml:"test_table,omitempty" json:"test_table,omitempty"`
}

// Document is the decoded form of a training configuration file.
type Document struct {
	Target               string           `mapstructure:"target" yaml:"target" json:"target"`
	CategoricalColumns   []string         `mapstructure:"categorical_columns" yaml:"categorical_columns" json:"categorical_columns"`
	DropColumns          []string         `mapstructure:"drop_columns" yaml:"drop_columns" json:"drop_columns"`
	DataSource           DataSourceConfig `mapstructure:"data_source" yaml:"data_source" json:"data_source"`
	Model                ModelConfig      `mapstructure:"model" yaml:"model" json:"model"`
	ArtifactsDir         string           `mapstructure:"artifacts_dir" yaml:"artifacts_dir" json:"artifacts_dir"`
	ModelFilename        string           `mapstructure:"model_filename" yaml:"model_filename" json:"model_filename"`
	MetricsFilename      string           `mapstructure:"metrics_filename" yaml:"metrics_filename" json:"metrics_filename"`
	FeatureStoreFilename string           `mapstructure:"feature_store_filename" yaml:"feature_store_filename" json:"feature_store_filename"`
	ManifestFilename     string           `mapstructure:"manifest_filename" yaml:"manifest_filename" json:"manifest_filename"`
	PlotFilename         string           `mapstructure:"plot_filename" yaml:"plot_filename,omitempty" json:"plot_filename,omitempty"`
	LogLevel             string           `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
}

// DefaultDocument returns a document with every optional field defaulted.
func DefaultDocument() Document {
	return Document{
		DataSource:           DataSourceConfig{Type: "csv"},
		Model:                DefaultModelConfig(),
		ArtifactsDir:         DefaultArtifactsDir,
		ModelFilename:        DefaultModelFilename,
		MetricsFilename:      DefaultMetricsFilename,
		FeatureStoreFilename: DefaultFeatureStoreFilename,
		ManifestFilename:     DefaultManifestFilename,
		LogLevel:             "info",
	}
}

// TrainingConfig is the validated, immutable configuration of a training
// run. Build it with NewTrainingConfig.
type TrainingConfig struct {
	doc Document
}

// NewTrainingConfig validates doc field by field and returns the immutable
// configuration. Slices are copied.
func NewTrainingConfig(doc Document) (TrainingConfig, error) {
	doc.Target = strings.TrimSpace(doc.Target)
	if doc.Target == "" {
		return TrainingConfig{}, errors.NewConfigError("target", "must be provided")
	}
	if err := validateColumns("categorical_columns", doc.CategoricalColumns); err != nil {
		return TrainingConfig{}, err
	}
	if err := validateColumns("drop_columns", doc.DropColumns); err != nil {
		return TrainingConfig{}, err
	}
	for _, c := range doc.CategoricalColumns {
		if c == doc.Target {
			return TrainingConfig{}, errors.NewConfigErrorf("categorical_columns", "target column %q cannot be categorical", c)
		}
		for _, d := range doc.DropColumns {
			if c == d {
				return TrainingConfig{}, errors.NewConfigErrorf("categorical_columns", "column %q is also dropped", c)
			}
		}
	}
	if err := doc.DataSource.Validate(); err != nil {
		return TrainingConfig{}, err
	}
	if err := doc.Model.Validate(); err != nil {
		return TrainingConfig{}, err
	}
	for field, v := range map[string]string{
		"artifacts_dir":          doc.ArtifactsDir,
		"model_filename":         doc.ModelFilename,
		"metrics_filename":       doc.MetricsFilename,
		"feature_store_filename": doc.FeatureStoreFilename,
		"manifest_filename":      doc.ManifestFilename,
	} {
		if strings.TrimSpace(v) == "" {
			return TrainingConfig{}, errors.NewConfigError(field, "must not be empty")
		}
	}
	if _, err := log.ParseLevel(doc.LogLevel); err != nil {
		return TrainingConfig{}, errors.NewConfigErrorf("log_level", "unknown level %q", doc.LogLevel)
	}

	doc.CategoricalColumns = append([]string(nil), doc.CategoricalColumns...)
	doc.DropColumns = append([]string(nil), doc.DropColumns...)
	return TrainingConfig{doc: doc}, nil
}

func validateColumns(field string, cols []string) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if strings.TrimSpace(c) == "" {
			return errors.NewConfigError(field, "column names must not be empty")
		}
		if seen[c] {
			return errors.NewConfigErrorf(field, "duplicate column %q", c)
		}
		seen[c] = true
	}
	return nil
}

// Validate checks that the fields required by the source type are set.
// Unknown types are rejected by the data source registry.
func (d DataSourceConfig) Validate() error {
	switch d.Type {
	case "":
		return errors.NewConfigError("data_source.type", "must be provided")
	case "csv":
		if d.TrainPath == "" || d.TestPath == "" {
			return errors.NewConfigError("data_source", "train_path and test_path must be provided")
		}
	case "sqlite":
		if d.DSN == "" {
			return errors.NewConfigError("data_source.dsn", "must be provided")
		}
		if d.TrainTable == "" || d.TestTable == "" {
			return errors.NewConfigError("data_source", "train_table and test_table must be provided")
		}
	}
	return nil
}

func (c TrainingConfig) Target() string { return c.doc.Target }

// CategoricalColumns returns a copy of the declared categorical columns.
func (c TrainingConfig) CategoricalColumns() []string {
	return append([]string(nil), c.doc.CategoricalColumns...)
}

// DropColumns returns a copy of the columns excluded from the features.
func (c TrainingConfig) DropColumns() []string {
	return append([]string(nil), c.doc.DropColumns...)
}

func (c TrainingConfig) DataSource() DataSourceConfig { return c.doc.DataSource }
func (c TrainingConfig) Model() ModelConfig           { return c.doc.Model }
func (c TrainingConfig) ArtifactsDir() string         { return c.doc.ArtifactsDir }
func (c TrainingConfig) LogLevel() string             { return c.doc.LogLevel }

func (c TrainingConfig) ModelPath() string {
	return filepath.Join(c.doc.ArtifactsDir, c.doc.ModelFilename)
}

func (c TrainingConfig) MetricsPath() string {
	return filepath.Join(c.doc.ArtifactsDir, c.doc.MetricsFilename)
}

func (c TrainingConfig) FeatureStorePath() string {
	return filepath.Join(c.doc.ArtifactsDir, c.doc.FeatureStoreFilename)
}

func (c TrainingConfig) ManifestPath() string {
	return filepath.Join(c.doc.ArtifactsDir, c.doc.ManifestFilename)
}

// PlotPath returns "" when the evaluation plot is disabled.
func (c TrainingConfig) PlotPath() string {
	if c.doc.PlotFilename == "" {
		return ""
	}
	return filepath.Join(c.doc.ArtifactsDir, c.doc.PlotFilename)
}

// Snapshot returns a copy of the underlying document, for audit records.
func (c TrainingConfig) Snapshot() Document {
	doc := c.doc
	doc.CategoricalColumns = c.CategoricalColumns()
	doc.DropColumns = c.DropColumns()
	return doc
}
