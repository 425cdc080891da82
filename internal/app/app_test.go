package app

import (
	"context"
	"path/filepath"
	"testing"

	"firstbuyers/internal/config"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithoutNodes(t *testing.T) {
	t.Setenv(config.EnvDBDSN, "")
	logger, _ := test.NewNullLogger()

	dir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Blockchain.Nodes = nil
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Output.Directory = filepath.Join(dir, "outputs")

	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)

	assert.NotNil(t, a.Analyzer)
	assert.NotNil(t, a.Publisher)
	assert.NotNil(t, a.store)
	assert.Nil(t, a.Exclusions)
	assert.Empty(t, a.Nodes.Status())

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, a.Close())
}

func TestNew_CacheDisabled(t *testing.T) {
	t.Setenv(config.EnvDBDSN, "")
	logger, _ := test.NewNullLogger()

	cfg := config.GetDefaultConfig()
	cfg.Blockchain.Nodes = nil
	cfg.Cache.Enabled = false
	cfg.Output.Directory = ""

	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)

	assert.Nil(t, a.store)
	assert.Nil(t, a.Publisher)
	require.NoError(t, a.Close())
}
