package hal

import "sync"

// Team is a reservation of a contiguous range of PEs on one device.
//
// Slots are numbered 0..Size()-1 within the team. Two active teams must not
// reserve the same PE and two overlapping Run calls must not target the same
// slot; neither is detected.
type Team struct {
	mu      sync.Mutex
	dev     *Device
	backend Backend
	start   int
	size    int
	reg     *StatusRegister
}

func newTeam(dev *Device, b Backend, start, size int) *Team {
	return &Team{
		dev:     dev,
		backend: b,
		start:   start,
		size:    size,
		reg:     newStatusRegister(size),
	}
}

// Start returns the device PE of slot 0.
func (t *Team) Start() int {
	return t.start
}

// Size returns the number of reserved slots.
func (t *Team) Size() int {
	return t.size
}

// Register returns the team's Status Register.
func (t *Team) Register() *StatusRegister {
	return t.reg
}

// Status returns the state and fault code of one slot.
func (t *Team) Status(slot int) (Status, int32) {
	return t.reg.Load(slot)
}

// Snapshot returns the state of every slot.
func (t *Team) Snapshot() []SlotState {
	out := make([]SlotState, t.reg.Len())
	for i := range out {
		s, code := t.reg.Load(i)
		out[i] = SlotState{Slot: i, Status: s, Fault: code}
	}
	return out
}

// Close releases the team. It does not affect the device beyond dropping the
// reservation. Closing a closed team is a no-op.
func (t *Team) Close() error {
	t.mu.Lock()
	dev, b := t.dev, t.backend
	t.dev, t.backend = nil, nil
	t.mu.Unlock()

	if dev == nil {
		return nil
	}
	dev.releaseTeam(t, b)
	return nil
}

func (t *Team) acquire(op string) (*Device, Backend, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil, nil, newError(op, ErrInvalidState, "team is closed")
	}
	return t.dev, t.backend, nil
}
