package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// LoadTrainingConfig reads a YAML or JSON training document (chosen by file
// extension), applies defaults and validates it.
func LoadTrainingConfig(path string) (TrainingConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return TrainingConfig{}, errors.NewNotFoundError("training config", path, err)
	}

	v := viper.New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		return TrainingConfig{}, errors.NewConfigErrorf("config", "unsupported config file extension %q", filepath.Ext(path))
	}
	v.SetConfigFile(path)
	setTrainingDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return TrainingConfig{}, errors.NewConfigErrorf("config", "cannot parse %s: %v", path, err)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return TrainingConfig{}, errors.NewConfigErrorf("config", "cannot decode %s: %v", path, err)
	}
	return NewTrainingConfig(doc)
}

func setTrainingDefaults(v *viper.Viper) {
	d := DefaultDocument()
	v.SetDefault("drop_columns", []string{})
	v.SetDefault("data_source.type", d.DataSource.Type)
	v.SetDefault("model.learning_rate", d.Model.LearningRate)
	v.SetDefault("model.n_estimators", d.Model.NEstimators)
	v.SetDefault("model.max_depth", d.Model.MaxDepth)
	v.SetDefault("model.loss", d.Model.Loss)
	v.SetDefault("model.subsample", d.Model.Subsample)
	v.SetDefault("model.min_samples_split", d.Model.MinSamplesSplit)
	v.SetDefault("model.min_samples_leaf", d.Model.MinSamplesLeaf)
	v.SetDefault("model.alpha", d.Model.Alpha)
	v.SetDefault("model.random_state", d.Model.RandomState)
	v.SetDefault("artifacts_dir", d.ArtifactsDir)
	v.SetDefault("model_filename", d.ModelFilename)
	v.SetDefault("metrics_filename", d.MetricsFilename)
	v.SetDefault("feature_store_filename", d.FeatureStoreFilename)
	v.SetDefault("manifest_filename", d.ManifestFilename)
	v.SetDefault("plot_filename", d.PlotFilename)
	v.SetDefault("log_level", d.LogLevel)
}
