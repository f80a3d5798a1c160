package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fxnlabs/pal/internal/hal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"logger"`
	Device struct {
		Kind       string `yaml:"kind"`
		Threads    int    `yaml:"threads"`
		PinThreads bool   `yaml:"pinThreads"`
	} `yaml:"device"`
	Accelerator struct {
		Rows    int    `yaml:"rows"`
		Cols    int    `yaml:"cols"`
		WorkDir string `yaml:"workDir"`
	} `yaml:"accelerator"`
	Wait struct {
		PollInterval time.Duration `yaml:"pollInterval"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"wait"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var config Config
	config.Logger.Verbosity = "info"
	config.Logger.Encoding = "json"
	config.Device.Kind = "auto"
	config.Accelerator.Rows = hal.DefaultAccelRows
	config.Accelerator.Cols = hal.DefaultAccelCols
	config.Wait.PollInterval = hal.DefaultPollInterval
	config.Wait.Timeout = hal.DefaultWaitTimeout
	config.Metrics.ListenAddress = "127.0.0.1:9090"
	return &config
}

// LoadConfig reads a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// Validate checks values yaml cannot check on its own.
func (c *Config) Validate() error {
	if _, err := hal.ParseKind(c.Device.Kind); err != nil {
		return err
	}
	if c.Device.Threads < 0 {
		return fmt.Errorf("device.threads must not be negative, got %d", c.Device.Threads)
	}
	if c.Accelerator.Rows < 0 || c.Accelerator.Cols < 0 {
		return fmt.Errorf("accelerator grid %dx%d is invalid", c.Accelerator.Rows, c.Accelerator.Cols)
	}
	if c.Wait.PollInterval < 0 || c.Wait.Timeout < 0 {
		return fmt.Errorf("wait durations must not be negative")
	}
	return nil
}

// Options maps the configuration to device options.
func (c *Config) Options() (hal.Options, error) {
	kind, err := hal.ParseKind(c.Device.Kind)
	if err != nil {
		return hal.Options{}, err
	}
	return hal.Options{
		Kind:         kind,
		Threads:      c.Device.Threads,
		PinThreads:   c.Device.PinThreads,
		Rows:         c.Accelerator.Rows,
		Cols:         c.Accelerator.Cols,
		WorkDir:      c.Accelerator.WorkDir,
		PollInterval: c.Wait.PollInterval,
		WaitTimeout:  c.Wait.Timeout,
	}, nil
}
