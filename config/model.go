package config

import (
	"github.com/YuminosukeSato/propval/pkg/errors"
)

// Supported loss functions of the gradient-boosted regressor.
const (
	LossAbsoluteError = "absolute_error"
	LossSquaredError  = "squared_error"
	LossHuber         = "huber"
	LossQuantile      = "quantile"
)

// ModelConfig holds the hyperparameters of the gradient-boosted regressor.
type ModelConfig struct {
	LearningRate    float64 `mapstructure:"learning_rate" yaml:"learning_rate" json:"learning_rate"`
	NEstimators     int     `mapstructure:"n_estimators" yaml:"n_estimators" json:"n_estimators"`
	MaxDepth        int     `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth"`
	Loss            string  `mapstructure:"loss" yaml:"loss" json:"loss"`
	Subsample       float64 `mapstructure:"subsample" yaml:"subsample" json:"subsample"`
	MinSamplesSplit int     `mapstructure:"min_samples_split" yaml:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf  int     `mapstructure:"min_samples_leaf" yaml:"min_samples_leaf" json:"min_samples_leaf"`
	Alpha           float64 `mapstructure:"alpha" yaml:"alpha" json:"alpha"`
	RandomState     int64   `mapstructure:"random_state" yaml:"random_state" json:"random_state"`
}

// DefaultModelConfig returns the default hyperparameters.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		LearningRate:    0.01,
		NEstimators:     300,
		MaxDepth:        5,
		Loss:            LossAbsoluteError,
		Subsample:       1.0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Alpha:           0.9,
		RandomState:     42,
	}
}

// Validate checks every hyperparameter and returns the first ConfigError.
func (m ModelConfig) Validate() error {
	switch {
	case !(m.LearningRate > 0):
		return errors.NewConfigErrorf("model.learning_rate", "must be > 0, got %v", m.LearningRate)
	case m.NEstimators < 1:
		return errors.NewConfigErrorf("model.n_estimators", "must be >= 1, got %d", m.NEstimators)
	case m.MaxDepth < 1:
		return errors.NewConfigErrorf("model.max_depth", "must be >= 1, got %d", m.MaxDepth)
	case !(m.Subsample > 0 && m.Subsample <= 1):
		return errors.NewConfigErrorf("model.subsample", "must be in (0, 1], got %v", m.Subsample)
	case m.MinSamplesSplit < 2:
		return errors.NewConfigErrorf("model.min_samples_split", "must be >= 2, got %d", m.MinSamplesSplit)
	case m.MinSamplesLeaf < 1:
		return errors.NewConfigErrorf("model.min_samples_leaf", "must be >= 1, got %d", m.MinSamplesLeaf)
	}
	switch m.Loss {
	case LossAbsoluteError, LossSquaredError:
	case LossHuber, LossQuantile:
		if !(m.Alpha > 0 && m.Alpha < 1) {
			return errors.NewConfigErrorf("model.alpha", "must be in (0, 1), got %v", m.Alpha)
		}
	default:
		return errors.NewConfigErrorf("model.loss", "unsupported loss %q", m.Loss)
	}
	return nil
}
