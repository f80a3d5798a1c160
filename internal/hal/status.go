package hal

import (
	"fmt"
	"sync/atomic"
)

// Status is the execution state of one team slot.
type Status uint32

const (
	StatusIdle Status = iota
	StatusScheduled
	StatusRunning
	StatusDone
	// StatusError is DONE with a fault code attached.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusScheduled:
		return "scheduled"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Pending reports whether a slot in this state still has to be waited for.
func (s Status) Pending() bool {
	return s == StatusScheduled || s == StatusRunning
}

// Fault codes reported alongside StatusError. Positive values come from the
// program itself (kernel fault code or process exit status).
const (
	FaultNone   int32 = 0
	FaultKernel int32 = 1
	FaultLaunch int32 = -1
	FaultPanic  int32 = -2
	FaultKilled int32 = -3
)

// FaultString renders a fault code for logs and error messages.
func FaultString(code int32) string {
	switch code {
	case FaultNone:
		return "none"
	case FaultLaunch:
		return "launch failed"
	case FaultPanic:
		return "kernel panic"
	case FaultKilled:
		return "killed"
	default:
		return fmt.Sprintf("code %d", code)
	}
}

type cell struct {
	state atomic.Uint32
	fault atomic.Int32
}

// StatusRegister holds one state cell per team slot. It is shared without
// locks between the dispatching goroutine and the execution substrate.
type StatusRegister struct {
	cells []cell
	epoch atomic.Uint64
}

func newStatusRegister(n int) *StatusRegister {
	// zero value of every cell is StatusIdle / FaultNone
	return &StatusRegister{cells: make([]cell, n)}
}

// Len returns the number of slots.
func (r *StatusRegister) Len() int {
	return len(r.cells)
}

// Load returns the state of a slot and its fault code. The fault code is only
// meaningful when the state is StatusError.
func (r *StatusRegister) Load(slot int) (Status, int32) {
	c := &r.cells[slot]
	s := Status(c.state.Load())
	if s != StatusError {
		return s, FaultNone
	}
	return s, c.fault.Load()
}

// Epoch returns the number of dispatches published on this register.
func (r *StatusRegister) Epoch() uint64 {
	return r.epoch.Load()
}

func (r *StatusRegister) schedule(slot int) {
	c := &r.cells[slot]
	c.fault.Store(FaultNone)
	c.state.Store(uint32(StatusScheduled))
}

// publish orders every preceding schedule store before anything the caller
// does next. sync/atomic operations are sequentially consistent, so this
// read-modify-write acts as the store-load fence.
func (r *StatusRegister) publish() uint64 {
	return r.epoch.Add(1)
}

// abort marks slots [from, to) as faulted with FaultLaunch. Run calls it for
// slots that were scheduled but never handed to the substrate; it is the only
// transition to StatusError made by Run rather than the substrate.
func (r *StatusRegister) abort(from, to int) {
	for i := from; i < to; i++ {
		r.reporter(i).Fault(FaultLaunch)
	}
}

func (r *StatusRegister) reporter(slot int) *slotReporter {
	return &slotReporter{c: &r.cells[slot]}
}

// SlotReporter is how an execution substrate reports progress of one slot.
type SlotReporter interface {
	// Running moves the slot from SCHEDULED to RUNNING.
	Running()
	// Done moves the slot to DONE.
	Done()
	// Fault moves the slot to ERROR with the given code.
	Fault(code int32)
}

type slotReporter struct {
	c *cell
}

func (s *slotReporter) Running() {
	s.c.state.CompareAndSwap(uint32(StatusScheduled), uint32(StatusRunning))
}

func (s *slotReporter) Done() {
	s.c.state.Store(uint32(StatusDone))
}

func (s *slotReporter) Fault(code int32) {
	if code == FaultNone {
		code = FaultKernel
	}
	// fault first: a reader that sees StatusError must see its code
	s.c.fault.Store(code)
	s.c.state.Store(uint32(StatusError))
}

// SlotState is a point-in-time view of one slot.
type SlotState struct {
	Slot   int
	Status Status
	Fault  int32
}
