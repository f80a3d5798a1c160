package hal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Environment variables set for every image started by the ProcessDriver.
const (
	EnvRank     = "PAL_RANK"
	EnvTeamSize = "PAL_TEAM_SIZE"
	EnvCoreRow  = "PAL_CORE_ROW"
	EnvCoreCol  = "PAL_CORE_COL"
)

// ProcessDriver is an accelerator driver whose cores are host processes: each
// load execs the image with the core coordinates in its environment.
type ProcessDriver struct {
	topo    Topology
	workDir string
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running map[int]*exec.Cmd
	wg      sync.WaitGroup
}

// NewProcessDriver returns a driver exposing a rows×cols core grid.
func NewProcessDriver(rows, cols int, workDir string, logger *zap.Logger) *ProcessDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessDriver{
		topo:    Topology{Rows: rows, Cols: cols},
		workDir: workDir,
		logger:  logger.Named("procdriver"),
	}
}

func (d *ProcessDriver) Name() string {
	return "process"
}

func (d *ProcessDriver) Probe() error {
	if d.topo.Rows <= 0 || d.topo.Cols <= 0 {
		return fmt.Errorf("invalid core grid %dx%d", d.topo.Rows, d.topo.Cols)
	}
	if d.workDir != "" {
		st, err := os.Stat(d.workDir)
		if err != nil {
			return err
		}
		if !st.IsDir() {
			return fmt.Errorf("work dir %s is not a directory", d.workDir)
		}
	}
	return nil
}

func (d *ProcessDriver) Open() (Topology, error) {
	if err := d.Probe(); err != nil {
		return Topology{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running == nil {
		d.ctx, d.cancel = context.WithCancel(context.Background())
		d.running = make(map[int]*exec.Cmd)
	}
	return d.topo, nil
}

func (d *ProcessDriver) Load(req LoadRequest) error {
	core := req.Row*d.topo.Cols + req.Col

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running == nil {
		return fmt.Errorf("driver is not open")
	}
	if _, busy := d.running[core]; busy {
		return fmt.Errorf("core (%d,%d) is busy", req.Row, req.Col)
	}

	cmd := exec.CommandContext(d.ctx, req.Image, req.Args...)
	cmd.Dir = d.workDir
	cmd.Env = append(os.Environ(),
		EnvRank+"="+strconv.Itoa(req.Rank),
		EnvTeamSize+"="+strconv.Itoa(req.TeamSize),
		EnvCoreRow+"="+strconv.Itoa(req.Row),
		EnvCoreCol+"="+strconv.Itoa(req.Col),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to load %s on core (%d,%d): %w", req.Image, req.Row, req.Col, err)
	}
	req.Reporter.Running()
	d.running[core] = cmd

	d.wg.Add(1)
	go d.reap(core, cmd, req.Reporter)
	return nil
}

func (d *ProcessDriver) reap(core int, cmd *exec.Cmd, report SlotReporter) {
	defer d.wg.Done()
	err := cmd.Wait()

	d.mu.Lock()
	delete(d.running, core)
	d.mu.Unlock()

	if err == nil {
		report.Done()
		return
	}
	code := FaultKernel
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if c := exitErr.ExitCode(); c > 0 {
			code = int32(c)
		} else {
			code = FaultKilled
		}
	}
	d.logger.Debug("core faulted", zap.Int("core", core), zap.Int32("fault", code), zap.Error(err))
	report.Fault(code)
}

// Close kills every running image and waits for them to be reaped.
func (d *ProcessDriver) Close() error {
	d.mu.Lock()
	if d.running == nil {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	d.running = nil
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
