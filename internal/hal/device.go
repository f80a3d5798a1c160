package hal

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Device is a process-wide handle wrapping exactly one backend.
//
// A zero-backend Device is "uninitialized": Open brings it up, Close returns
// it to that state, and it can be opened again afterwards.
type Device struct {
	mu      sync.RWMutex
	opts    Options
	backend Backend
	teams   int
	logger  *zap.Logger
}

// NewDevice returns an uninitialized device. Call Open before use.
func NewDevice(opts Options, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{
		opts:   opts.withDefaults(),
		logger: logger.Named("device"),
	}
}

// Open creates a device and opens it.
func Open(opts Options, logger *zap.Logger) (*Device, error) {
	d := NewDevice(opts, logger)
	if err := d.Open(); err != nil {
		return nil, err
	}
	return d, nil
}

// Open selects and initializes the backend. Opening an already open device is
// a no-op.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend != nil {
		return nil
	}
	backend, err := d.detectAndOpen()
	if err != nil {
		return wrapError("device open", ErrInvalidState, err)
	}
	// only a fully opened backend becomes visible
	d.backend = backend
	d.logger.Info("device opened",
		zap.Stringer("kind", backend.Kind()),
		zap.String("name", backend.Info().Name),
		zap.Int("nodes", backend.Info().Nodes))
	return nil
}

func (d *Device) detectAndOpen() (Backend, error) {
	switch d.opts.Kind {
	case KindThreadPool:
		return openBackend(newPoolBackend(d.opts, d.logger))
	case KindAccelerator:
		accel := newAccelBackend(d.opts, d.logger)
		if !accel.IsAvailable() {
			return nil, fmt.Errorf("accelerator not available: %w", accel.probeErr)
		}
		return openBackend(accel)
	case KindAuto:
		// Try the accelerator first, only when a driver was configured.
		if d.opts.Driver != nil {
			accel := newAccelBackend(d.opts, d.logger)
			if accel.IsAvailable() {
				b, err := openBackend(accel)
				if err == nil {
					return b, nil
				}
				d.logger.Warn("accelerator open failed, falling back to thread pool", zap.Error(err))
			}
		}
		return openBackend(newPoolBackend(d.opts, d.logger))
	default:
		return nil, fmt.Errorf("unknown device kind %v", d.opts.Kind)
	}
}

func openBackend(b Backend) (Backend, error) {
	if err := b.Open(); err != nil {
		// If initialization failed, try cleanup
		_ = b.Close()
		return nil, fmt.Errorf("failed to open %s backend: %w", b.Kind(), err)
	}
	return b, nil
}

// Close releases the backend. Closing a closed device is a no-op. Closing a
// device that still has open teams fails with ErrInvalidState.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend == nil {
		return nil
	}
	if d.teams > 0 {
		return newError("device close", ErrInvalidState, "%d team(s) still open", d.teams)
	}
	b := d.backend
	// released exactly once even if the backend reports an error
	d.backend = nil
	if err := b.Close(); err != nil {
		return wrapError("device close", ErrIOFailure, err)
	}
	d.logger.Info("device closed", zap.Stringer("kind", b.Kind()))
	return nil
}

// IsOpen reports whether the device has an active backend.
func (d *Device) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.backend != nil
}

// Kind returns the kind of the active backend, or the requested kind when the
// device is not open.
func (d *Device) Kind() Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.backend == nil {
		return d.opts.Kind
	}
	return d.backend.Kind()
}

// Options returns the effective options of the device.
func (d *Device) Options() Options {
	return d.opts
}

// Query answers a device property.
func (d *Device) Query(prop Property) (int, error) {
	b, err := d.active("device query")
	if err != nil {
		return 0, err
	}
	v, err := b.Query(prop)
	if err != nil {
		var herr *Error
		if errors.As(err, &herr) {
			return 0, err
		}
		return 0, wrapError("device query", ErrIOFailure, err)
	}
	return v, nil
}

// Info returns device information from the active backend.
func (d *Device) Info() DeviceInfo {
	b, err := d.active("device info")
	if err != nil {
		return DeviceInfo{Name: "No backend available", Kind: d.opts.Kind}
	}
	return b.Info()
}

// LoadProgram resolves a descriptor into a program runnable on this device.
func (d *Device) LoadProgram(desc ProgramDescriptor) (*Program, error) {
	b, err := d.active("program load")
	if err != nil {
		return nil, err
	}
	return b.Load(desc)
}

// OpenTeam reserves count PEs starting at device PE start.
func (d *Device) OpenTeam(start, count int) (*Team, error) {
	const op = "team open"
	if start < 0 {
		return nil, newError(op, ErrInvalidArgument, "negative start %d", start)
	}
	if count <= 0 {
		return nil, newError(op, ErrInvalidArgument, "count must be positive, got %d", count)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend == nil {
		return nil, newError(op, ErrInvalidState, "device is not open")
	}
	nodes, err := d.backend.Query(PropNodes)
	if err != nil {
		return nil, wrapError(op, ErrIOFailure, err)
	}
	// compared without start+count, which can overflow
	if count > nodes || start > nodes-count {
		return nil, newError(op, ErrResourceExhausted, "%d PEs from %d exceed %d PEs", count, start, nodes)
	}

	team := newTeam(d, d.backend, start, count)
	if err := d.backend.OpenTeam(team); err != nil {
		return nil, wrapError(op, ErrResourceExhausted, err)
	}
	d.teams++
	teamOpened()
	d.logger.Debug("team opened", zap.Int("start", start), zap.Int("count", count))
	return team, nil
}

func (d *Device) releaseTeam(team *Team, b Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b.CloseTeam(team)
	d.teams--
	teamClosed()
	d.logger.Debug("team closed", zap.Int("start", team.start), zap.Int("count", team.size))
}

func (d *Device) active(op string) (Backend, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.backend == nil {
		return nil, newError(op, ErrInvalidState, "device is not open")
	}
	return d.backend, nil
}
