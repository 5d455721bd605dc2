// Package datasource loads the raw train/test dataset pair of a training
// run. Backends register themselves under a type tag.
package datasource

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pkg/errors"
)

// DataSource provides a train/test dataset pair.
type DataSource interface {
	Load(ctx context.Context) (train, test *dataset.Frame, err error)
}

// Factory builds a DataSource from its configuration.
type Factory func(cfg config.DataSourceConfig) (DataSource, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a backend available under tag. Registering the same tag
// twice panics.
func Register(tag string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[tag]; dup {
		panic("datasource: Register called twice for " + tag)
	}
	registry[tag] = f
}

// Types returns the registered tags, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	tags := make([]string, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// New builds the data source for cfg.Type. An unknown type is a ConfigError.
func New(cfg config.DataSourceConfig) (DataSource, error) {
	mu.RLock()
	f, ok := registry[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, errors.NewConfigErrorf("data_source.type", "unsupported data source %q (supported: %s)", cfg.Type, strings.Join(Types(), ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return f(cfg)
}
