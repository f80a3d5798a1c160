package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fxnlabs/pal/internal/config"
	"github.com/fxnlabs/pal/internal/hal"
	"github.com/fxnlabs/pal/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultConfigPath = "pal.yaml"

// env is filled by the Before hook and shared by every command.
type env struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	log        *zap.Logger
}

func (e *env) before(c *cli.Context) error {
	cfg, err := config.LoadConfig(e.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Logger.Verbosity = e.logLevel
	}
	zapLogger, err := logger.NewWithEncoding(cfg.Logger.Verbosity, cfg.Logger.Encoding)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = zapLogger.Named("pal")
	return nil
}

func (e *env) after(c *cli.Context) error {
	if e.log != nil {
		_ = e.log.Sync()
	}
	return nil
}

// openDevice opens a device from the loaded configuration.
func (e *env) openDevice(mutate func(*hal.Options)) (*hal.Device, error) {
	opts, err := e.cfg.Options()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&opts)
	}
	return hal.Open(opts, e.log)
}

func newApp(stdout io.Writer) *cli.App {
	e := &env{}
	return &cli.App{
		Name:   "pal",
		Usage:  "Launch programs on the processing elements of a compute device",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Value:       defaultConfigPath,
				Usage:       "Path to the pal config file",
				EnvVars:     []string{"PAL_CONFIG"},
				Destination: &e.configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Override logger.verbosity from the config file",
				EnvVars:     []string{"PAL_LOG_LEVEL"},
				Destination: &e.logLevel,
			},
		},
		Before: e.before,
		After:  e.after,
		Commands: []*cli.Command{
			initCommand(e),
			infoCommand(e),
			runCommand(e),
			benchCommand(e),
			serveCommand(e),
		},
	}
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
