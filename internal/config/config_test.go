package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxnlabs/pal/fixtures"
	"github.com/fxnlabs/pal/internal/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "console", config.Logger.Encoding)
		assert.Equal(t, "threadpool", config.Device.Kind)
		assert.Equal(t, 8, config.Device.Threads)
		assert.True(t, config.Device.PinThreads)
		assert.Equal(t, 2, config.Accelerator.Rows)
		assert.Equal(t, 8, config.Accelerator.Cols)
		assert.Equal(t, "/tmp", config.Accelerator.WorkDir)
		assert.Equal(t, 500*time.Microsecond, config.Wait.PollInterval)
		assert.Equal(t, 10*time.Second, config.Wait.Timeout)
		assert.Equal(t, "0.0.0.0:9100", config.Metrics.ListenAddress)
	})

	t.Run("partial config keeps defaults", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/partial_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, 2, config.Device.Threads)
		assert.Equal(t, time.Minute, config.Wait.Timeout)
		assert.Equal(t, "auto", config.Device.Kind)
		assert.Equal(t, "info", config.Logger.Verbosity)
		assert.Equal(t, hal.DefaultPollInterval, config.Wait.PollInterval)
	})

	t.Run("unknown device kind", func(t *testing.T) {
		_, err := LoadConfig("../../fixtures/tests/config/bad_kind.yaml")
		assert.ErrorIs(t, err, hal.ErrInvalidArgument)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestTemplateMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, fixtures.ConfigTemplate, 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestOptions(t *testing.T) {
	config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
	require.NoError(t, err)

	opts, err := config.Options()
	require.NoError(t, err)
	assert.Equal(t, hal.Options{
		Kind:         hal.KindThreadPool,
		Threads:      8,
		PinThreads:   true,
		Rows:         2,
		Cols:         8,
		WorkDir:      "/tmp",
		PollInterval: 500 * time.Microsecond,
		WaitTimeout:  10 * time.Second,
	}, opts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threads", func(c *Config) { c.Device.Threads = -1 }},
		{"negative rows", func(c *Config) { c.Accelerator.Rows = -2 }},
		{"negative timeout", func(c *Config) { c.Wait.Timeout = -time.Second }},
		{"bad kind", func(c *Config) { c.Device.Kind = "fpga" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
