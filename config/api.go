package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// EnvPrefix prefixes every API setting in the environment, e.g.
// PROPERTY_FRIENDS_API_KEY.
const EnvPrefix = "PROPERTY_FRIENDS"

// APISettings configures the prediction server.
type APISettings struct {
	ModelPath           string `mapstructure:"model_path"`
	FeatureStorePath    string `mapstructure:"feature_store_path"`
	APIKey              string `mapstructure:"api_key"`
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	LogLevel            string `mapstructure:"log_level"`
	PredictionCacheSize int    `mapstructure:"prediction_cache_size"`
}

var apiDefaults = map[string]interface{}{
	"model_path":            DefaultArtifactsDir + "/" + DefaultModelFilename,
	"feature_store_path":    DefaultArtifactsDir + "/" + DefaultFeatureStoreFilename,
	"api_key":               "",
	"host":                  "0.0.0.0",
	"port":                  8000,
	"log_level":             "info",
	"prediction_cache_size": 0,
}

// LoadAPISettings reads the API settings from the environment. When envFile
// names an existing dotenv file its PROPERTY_FRIENDS_* entries are used as
// defaults; real environment variables win.
func LoadAPISettings(envFile string) (APISettings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for key, def := range apiDefaults {
		v.SetDefault(key, def)
		if err := v.BindEnv(key); err != nil {
			return APISettings{}, errors.Wrap(err, "bind env")
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := applyEnvFile(v, envFile); err != nil {
				return APISettings{}, err
			}
		}
	}

	var s APISettings
	if err := v.Unmarshal(&s); err != nil {
		return APISettings{}, errors.NewConfigErrorf("api", "cannot decode settings: %v", err)
	}
	return s, s.Validate()
}

func applyEnvFile(v *viper.Viper, path string) error {
	f := viper.New()
	f.SetConfigFile(path)
	f.SetConfigType("env")
	if err := f.ReadInConfig(); err != nil {
		return errors.NewConfigErrorf("env_file", "cannot parse %s: %v", path, err)
	}
	prefix := strings.ToLower(EnvPrefix) + "_"
	for key := range apiDefaults {
		if f.IsSet(prefix + key) {
			v.SetDefault(key, f.Get(prefix+key))
		}
	}
	return nil
}

// Validate checks the settings.
func (s APISettings) Validate() error {
	switch {
	case s.APIKey == "":
		return errors.NewConfigError("api_key", "must be provided via "+EnvPrefix+"_API_KEY")
	case s.ModelPath == "":
		return errors.NewConfigError("model_path", "must not be empty")
	case s.FeatureStorePath == "":
		return errors.NewConfigError("feature_store_path", "must not be empty")
	case s.Port < 1 || s.Port > 65535:
		return errors.NewConfigErrorf("port", "out of range: %d", s.Port)
	case s.PredictionCacheSize < 0:
		return errors.NewConfigErrorf("prediction_cache_size", "must be >= 0, got %d", s.PredictionCacheSize)
	}
	if _, err := log.ParseLevel(s.LogLevel); err != nil {
		return errors.NewConfigErrorf("log_level", "unknown level %q", s.LogLevel)
	}
	return nil
}
