package hal

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// accelBackend implements Backend on top of an accelerator Driver. PE n of
// the device is core (n / cols, n % cols) of the driver's grid.
type accelBackend struct {
	opts     Options
	driver   Driver
	logger   *zap.Logger
	probeErr error

	mu   sync.Mutex
	topo Topology
	open bool
}

func newAccelBackend(opts Options, logger *zap.Logger) *accelBackend {
	driver := opts.Driver
	if driver == nil {
		driver = NewProcessDriver(opts.Rows, opts.Cols, opts.WorkDir, logger)
	}
	b := &accelBackend{
		opts:   opts,
		driver: driver,
		logger: logger.Named("accel"),
	}
	b.probeErr = driver.Probe()
	return b
}

func (a *accelBackend) Kind() Kind {
	return KindAccelerator
}

func (a *accelBackend) IsAvailable() bool {
	if a.probeErr != nil {
		a.logger.Warn("accelerator not available", zap.String("driver", a.driver.Name()), zap.Error(a.probeErr))
		return false
	}
	return true
}

func (a *accelBackend) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return nil
	}
	topo, err := a.driver.Open()
	if err != nil {
		return fmt.Errorf("driver %s: %w", a.driver.Name(), err)
	}
	if topo.Cores() <= 0 {
		_ = a.driver.Close()
		return fmt.Errorf("driver %s reported an empty core grid", a.driver.Name())
	}
	a.topo = topo
	a.open = true
	a.logger.Info("accelerator opened",
		zap.String("driver", a.driver.Name()),
		zap.Int("rows", topo.Rows),
		zap.Int("cols", topo.Cols))
	return nil
}

func (a *accelBackend) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil
	}
	a.open = false
	if err := a.driver.Close(); err != nil {
		return fmt.Errorf("driver %s: %w", a.driver.Name(), err)
	}
	return nil
}

func (a *accelBackend) Query(prop Property) (int, error) {
	const op = "device query"
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return 0, newError(op, ErrInvalidState, "accelerator is not open")
	}
	switch prop {
	case PropType:
		return int(KindAccelerator), nil
	case PropNodes:
		return a.topo.Cores(), nil
	case PropTopology:
		return 1, nil
	case PropSIMD:
		return 0, nil
	case PropMemArch:
		return MemArchDistributedShared, nil
	case PropWhoAmI:
		return 0, newError(op, ErrNotSupported, "%s from the host", prop)
	}
	return 0, newError(op, ErrInvalidArgument, "unknown property %d", int(prop))
}

func (a *accelBackend) Info() DeviceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return DeviceInfo{
		Name:   fmt.Sprintf("Accelerator %dx%d", a.topo.Rows, a.topo.Cols),
		Kind:   KindAccelerator,
		Nodes:  a.topo.Cores(),
		Driver: a.driver.Name(),
	}
}

func (a *accelBackend) Load(desc ProgramDescriptor) (*Program, error) {
	return loadImageProgram(desc)
}

func (a *accelBackend) OpenTeam(team *Team) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return fmt.Errorf("accelerator is not open")
	}
	return nil
}

func (a *accelBackend) CloseTeam(*Team) {}

func (a *accelBackend) Launch(team *Team, prog *Program, slot int, args []string) error {
	a.mu.Lock()
	open, cols := a.open, a.topo.Cols
	a.mu.Unlock()
	if !open {
		return fmt.Errorf("accelerator is not open")
	}
	core := team.start + slot
	return a.driver.Load(LoadRequest{
		Image:    prog.path,
		Row:      core / cols,
		Col:      core % cols,
		Rank:     slot,
		TeamSize: team.size,
		Args:     args,
		Reporter: team.reg.reporter(slot),
	})
}

func (a *accelBackend) Wait(team *Team, timeout time.Duration) error {
	return pollWait(team.reg, a.opts.PollInterval, timeout, a.Kind())
}
