package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxnlabs/pal/internal/hal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func runCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a program over a team and print the final slot states",
		ArgsUsage: "[program args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "Registered kernel name (thread pool)"},
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "Executable image path (accelerator)"},
			&cli.IntFlag{Name: "team-start", Usage: "First device PE of the team"},
			&cli.IntFlag{Name: "team-size", Usage: "Team size, 0 for every remaining PE"},
			&cli.IntFlag{Name: "start", Usage: "First team slot to run on"},
			&cli.IntFlag{Name: "size", Usage: "Slots to run on, 0 for the rest of the team"},
			&cli.BoolFlag{Name: "nonblocking", Usage: "Dispatch without waiting, then wait explicitly"},
			&cli.DurationFlag{Name: "timeout", Usage: "Wait timeout, 0 for the configured one"},
		},
		Action: func(c *cli.Context) error {
			desc, err := descriptorFromFlags(c)
			if err != nil {
				return err
			}
			timeout := c.Duration("timeout")
			dev, err := e.openDevice(func(o *hal.Options) {
				if timeout > 0 {
					o.WaitTimeout = timeout
				}
			})
			if err != nil {
				return err
			}
			defer dev.Close()

			prog, err := dev.LoadProgram(desc)
			if err != nil {
				return err
			}

			nodes, err := dev.Query(hal.PropNodes)
			if err != nil {
				return err
			}
			teamStart, teamSize := c.Int("team-start"), c.Int("team-size")
			if teamSize == 0 {
				teamSize = nodes - teamStart
			}
			team, err := dev.OpenTeam(teamStart, teamSize)
			if err != nil {
				return err
			}
			defer team.Close()

			start, size := c.Int("start"), c.Int("size")
			if size == 0 {
				size = team.Size() - start
			}
			log := e.log.With(zap.String("program", prog.Name()), zap.Int("start", start), zap.Int("size", size))

			began := time.Now()
			if c.Bool("nonblocking") {
				err = hal.Run(prog, team, start, size, c.Args().Slice(), hal.RunNonBlocking)
				if err == nil {
					log.Debug("dispatched")
				}
				// even a failed dispatch may have started slots
				if werr := hal.Wait(team, 0); err == nil {
					err = werr
				}
			} else {
				err = hal.Run(prog, team, start, size, c.Args().Slice(), 0)
			}
			elapsed := time.Since(began)

			printSlots(c.App.Writer, team)
			if err != nil {
				log.Error("run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
				return err
			}
			log.Info("run finished", zap.Duration("elapsed", elapsed))
			return nil
		},
	}
}

func descriptorFromFlags(c *cli.Context) (hal.ProgramDescriptor, error) {
	kernel, image := c.String("kernel"), c.String("image")
	switch {
	case kernel != "" && image != "":
		return hal.ProgramDescriptor{}, errors.New("--kernel and --image are mutually exclusive")
	case kernel != "":
		return hal.ProgramDescriptor{Name: kernel}, nil
	case image != "":
		return hal.ProgramDescriptor{Path: image}, nil
	}
	return hal.ProgramDescriptor{}, errors.New("one of --kernel or --image is required")
}

func printSlots(w io.Writer, team *hal.Team) {
	for _, st := range team.Snapshot() {
		if st.Status == hal.StatusError {
			fmt.Fprintf(w, "slot %d (pe %d): %s (%s)\n", st.Slot, team.Start()+st.Slot, st.Status, hal.FaultString(st.Fault))
			continue
		}
		fmt.Fprintf(w, "slot %d (pe %d): %s\n", st.Slot, team.Start()+st.Slot, st.Status)
	}
}
