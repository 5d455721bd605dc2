// Package features derives the ordered feature columns of a training run.
package features

import (
	"strings"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// Resolve returns columns minus the target and the dropped columns, keeping
// the original order. Drop names that are not present are ignored.
func Resolve(columns []string, target string, drop []string) []string {
	excluded := make(map[string]struct{}, len(drop)+1)
	excluded[target] = struct{}{}
	for _, d := range drop {
		excluded[d] = struct{}{}
	}

	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, skip := excluded[c]; !skip {
			out = append(out, c)
		}
	}
	return out
}

// RequireCategorical fails with a ConfigError naming every categorical column
// that is not among the resolved features.
func RequireCategorical(features, categorical []string) error {
	present := make(map[string]struct{}, len(features))
	for _, f := range features {
		present[f] = struct{}{}
	}

	var missing []string
	for _, c := range categorical {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigErrorf("categorical_columns", "not among the feature columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
