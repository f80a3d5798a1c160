package hal

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the kind of execution resource behind a device.
type Kind int

const (
	// KindAuto picks the accelerator when a usable driver is configured and
	// falls back to the thread pool otherwise.
	KindAuto Kind = iota
	KindThreadPool
	KindAccelerator
)

func (k Kind) String() string {
	switch k {
	case KindAuto:
		return "auto"
	case KindThreadPool:
		return "threadpool"
	case KindAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a device kind as written in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "threadpool", "thread-pool", "pthreads", "cpu":
		return KindThreadPool, nil
	case "accelerator", "accel":
		return KindAccelerator, nil
	}
	return KindAuto, newError("parse kind", ErrInvalidArgument, "unknown device kind %q", s)
}

// Property is a device query property id.
type Property int

const (
	PropType Property = iota
	PropNodes
	PropTopology
	PropSIMD
	PropMemArch
	PropWhoAmI
)

// Properties lists every property id, in id order.
var Properties = []Property{PropType, PropNodes, PropTopology, PropSIMD, PropMemArch, PropWhoAmI}

func (p Property) String() string {
	switch p {
	case PropType:
		return "type"
	case PropNodes:
		return "nodes"
	case PropTopology:
		return "topology"
	case PropSIMD:
		return "simd"
	case PropMemArch:
		return "memarch"
	case PropWhoAmI:
		return "whoami"
	default:
		return fmt.Sprintf("property(%d)", int(p))
	}
}

// Memory architecture ids reported for PropMemArch.
const (
	MemArchDistributedShared = 1
)

// DeviceInfo contains descriptive information about a device.
type DeviceInfo struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Nodes       int    `json:"nodes"`
	TotalMemory int64  `json:"totalMemory"` // in bytes, 0 when unknown
	Model       string `json:"model,omitempty"`
	Driver      string `json:"driver,omitempty"`
}

// Backend defines the interface implemented by every kind of execution
// resource. A Device owns exactly one Backend.
//
// Implementation notes:
// - Open must build all private state before returning nil; the Device only
//   publishes a backend whose Open succeeded
// - Open and Close are called with the Device lock held and at most once each
//   per backend instance
// - OpenTeam, CloseTeam and Launch may be called concurrently from several
//   teams; backends serialize their own bookkeeping
// - Launch must not block on kernel execution
type Backend interface {
	// Kind reports which kind of resource this backend drives.
	Kind() Kind

	// IsAvailable performs a quick check without heavy initialization.
	// Used by the Device when choosing a backend for KindAuto.
	IsAvailable() bool

	// Open prepares the backend for use: worker threads, driver handles.
	Open() error

	// Close releases everything acquired by Open.
	Close() error

	// Query answers a device property. Properties the backend legitimately
	// cannot answer return ErrNotSupported.
	Query(prop Property) (int, error)

	// Info returns descriptive information about the resource.
	Info() DeviceInfo

	// Load resolves a program descriptor into a program bound to this
	// backend kind.
	Load(desc ProgramDescriptor) (*Program, error)

	// OpenTeam and CloseTeam let the backend track reservations.
	OpenTeam(team *Team) error
	CloseTeam(team *Team)

	// Launch instructs the substrate to begin executing prog on one team
	// slot. The slot is already SCHEDULED and published.
	Launch(team *Team, prog *Program, slot int, args []string) error

	// Wait blocks until no slot of the team is pending or the timeout
	// expires.
	Wait(team *Team, timeout time.Duration) error
}
