package host_test

import (
	"testing"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Domain = "doc.ic.ac.uk"
	cfg.Targets = []string{"gpu{25..27}", "ray01", "ray02.other.org"}

	targets, err := host.TargetsFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, []host.Target{
		{Name: "gpu25", Hostname: "gpu25.doc.ic.ac.uk"},
		{Name: "gpu26", Hostname: "gpu26.doc.ic.ac.uk"},
		{Name: "gpu27", Hostname: "gpu27.doc.ic.ac.uk"},
		{Name: "ray01", Hostname: "ray01.doc.ic.ac.uk"},
		{Name: "ray02.other.org", Hostname: "ray02.other.org"},
	}, targets)
}

func TestTargetsFromConfig_NoDomain(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Targets = []string{"gpu25"}

	targets, err := host.TargetsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []host.Target{{Name: "gpu25", Hostname: "gpu25"}}, targets)
}

func TestTargetsFromConfig_BadPattern(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Targets = []string{"gpu{30..25}"}

	_, err := host.TargetsFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFilter(t *testing.T) {
	all := []host.Target{
		{Name: "gpu25", Hostname: "gpu25.doc.ic.ac.uk"},
		{Name: "gpu26", Hostname: "gpu26.doc.ic.ac.uk"},
		{Name: "gpu27", Hostname: "gpu27.doc.ic.ac.uk"},
	}

	t.Run("empty filter keeps all", func(t *testing.T) {
		got, err := host.Filter(all, nil)
		require.NoError(t, err)
		assert.Equal(t, all, got)
	})

	t.Run("keeps configured order", func(t *testing.T) {
		got, err := host.Filter(all, []string{"gpu27", "gpu25.doc.ic.ac.uk"})
		require.NoError(t, err)
		assert.Equal(t, []host.Target{all[0], all[2]}, got)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := host.Filter(all, []string{"gpu25", "gpu99"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
		assert.Contains(t, err.Error(), "gpu99")
		assert.NotContains(t, err.Error(), "target: gpu25")
	})
}
