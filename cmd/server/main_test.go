package main

import (
	"path/filepath"
	"testing"

	"github.com/dkeye/Polyglot/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideConfig(t *testing.T) {
	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9191", "--mirror"}))

	cfg, err := config.Load(v, filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Port)
	assert.True(t, cfg.Mirror)

	o, err := buildOrchestrator(cfg, nil)
	require.NoError(t, err)
	defer o.Close()
	assert.True(t, o.Mirror())
}

func TestDefaultsWithoutFlags(t *testing.T) {
	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := config.Load(v, filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.Mirror)

	cfg.Policy = "shout"
	_, err = buildOrchestrator(cfg, nil)
	assert.Error(t, err)
}
