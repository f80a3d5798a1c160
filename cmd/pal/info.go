package main

import (
	"errors"
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/pal/internal/hal"
	"github.com/urfave/cli/v2"
)

func infoCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Open the configured device and print its properties",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Skip the ASCII banner",
			},
		},
		Action: func(c *cli.Context) error {
			dev, err := e.openDevice(nil)
			if err != nil {
				return err
			}
			defer dev.Close()

			w := c.App.Writer
			if !c.Bool("no-banner") {
				fmt.Fprintln(w, figure.NewFigure("PAL", "", true).String())
			}
			info := dev.Info()
			fmt.Fprintf(w, "Device:  %s\n", info.Name)
			fmt.Fprintf(w, "Backend: %s\n", info.Kind)
			if info.Model != "" {
				fmt.Fprintf(w, "Model:   %s\n", info.Model)
			}
			if info.Driver != "" {
				fmt.Fprintf(w, "Driver:  %s\n", info.Driver)
			}
			if info.TotalMemory > 0 {
				fmt.Fprintf(w, "Memory:  %d MiB\n", info.TotalMemory>>20)
			}
			fmt.Fprintln(w)
			for _, prop := range hal.Properties {
				v, err := dev.Query(prop)
				switch {
				case err == nil:
					fmt.Fprintf(w, "%-9s %d\n", prop, v)
				case errors.Is(err, hal.ErrNotSupported):
					fmt.Fprintf(w, "%-9s n/a\n", prop)
				default:
					return err
				}
			}
			return nil
		},
	}
}
