package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fxnlabs/pal/internal/bench"
	"github.com/fxnlabs/pal/internal/hal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func benchCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Time Run calls of one or more kernels over the whole device",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "kernel", Aliases: []string{"k"}, Value: cli.NewStringSlice("noop"), Usage: "Kernel to benchmark, repeatable"},
			&cli.IntFlag{Name: "iterations", Aliases: []string{"n"}, Value: 100, Usage: "Timed runs per kernel"},
			&cli.IntFlag{Name: "warmup", Value: 3, Usage: "Untimed runs before measuring"},
			&cli.IntFlag{Name: "size", Usage: "Problem size passed as the first kernel argument, 0 for none"},
			&cli.StringFlag{Name: "csv", Usage: "Write the CSV report to this file instead of stdout"},
		},
		Action: func(c *cli.Context) error {
			dev, err := e.openDevice(nil)
			if err != nil {
				return err
			}
			defer dev.Close()

			nodes, err := dev.Query(hal.PropNodes)
			if err != nil {
				return err
			}
			team, err := dev.OpenTeam(0, nodes)
			if err != nil {
				return err
			}
			defer team.Close()

			h, err := bench.New(team, bench.Options{}, e.log)
			if err != nil {
				return err
			}

			size := c.Int("size")
			var args []string
			if size > 0 {
				args = []string{strconv.Itoa(size)}
			}
			var results []*bench.Result
			for _, name := range c.StringSlice("kernel") {
				prog, err := dev.LoadProgram(hal.ProgramDescriptor{Name: name})
				if err != nil {
					return err
				}
				res, err := h.Measure(c.Context, bench.Item{Name: name, Program: prog, Args: args, Size: size}, c.Int("warmup"), c.Int("iterations"))
				if err != nil {
					return err
				}
				results = append(results, res)
			}

			var out io.Writer = c.App.Writer
			if path := c.String("csv"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				defer f.Close()
				out = f
				e.log.Info("writing report", zap.String("path", path))
			}
			return bench.WriteCSV(out, results)
		},
	}
}
