package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

var columns = []string{"id", "type", "sector", "net_usable_area", "net_area", "n_rooms", "n_bathrooms", "latitude", "longitude", "price"}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		target string
		drop   []string
		want   []string
	}{
		{
			name:   "target and drop removed in order",
			target: "price",
			drop:   []string{"id"},
			want:   []string{"type", "sector", "net_usable_area", "net_area", "n_rooms", "n_bathrooms", "latitude", "longitude"},
		},
		{
			name:   "unknown drop ignored",
			target: "price",
			drop:   []string{"nope", "latitude", "longitude"},
			want:   []string{"id", "type", "sector", "net_usable_area", "net_area", "n_rooms", "n_bathrooms"},
		},
		{
			name:   "target in the middle",
			target: "sector",
			want:   []string{"id", "type", "net_usable_area", "net_area", "n_rooms", "n_bathrooms", "latitude", "longitude", "price"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(columns, tt.target, tt.drop))
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	first := Resolve(columns, "price", []string{"id"})
	second := Resolve(columns, "price", []string{"id"})
	assert.Equal(t, first, second)

	again := Resolve(first, "price", []string{"id"})
	assert.Equal(t, first, again)
}

func TestRequireCategorical(t *testing.T) {
	feats := Resolve(columns, "price", []string{"id"})
	require.NoError(t, RequireCategorical(feats, []string{"type", "sector"}))
	require.NoError(t, RequireCategorical(feats, nil))

	err := RequireCategorical(feats, []string{"type", "region", "id"})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "region, id")
}
