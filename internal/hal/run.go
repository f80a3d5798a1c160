package hal

import (
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RunFlag modifies Run.
type RunFlag uint32

const (
	// RunNonBlocking returns as soon as every slot is launched. The caller
	// must Wait on the team later. Without it Run waits internally.
	RunNonBlocking RunFlag = 1 << iota

	runFlagMask = RunNonBlocking
)

// Run launches prog on slots [start, start+size) of team.
//
// All targeted slots are moved to SCHEDULED and published before the first
// one is handed to the backend. If a launch fails, Run returns ErrIOFailure;
// slots launched before the failure keep running, the failing slot and the
// ones after it end in StatusError with FaultLaunch, and the caller must still
// Wait on the team. Those FaultLaunch stores are the only writes Run makes to
// the register besides scheduling; every other transition comes from the
// backend.
//
// The targeted slots must not be part of another Run that has not resolved.
func Run(prog *Program, team *Team, start, size int, args []string, flags RunFlag) error {
	const op = "run"
	if team == nil {
		return newError(op, ErrInvalidArgument, "nil team")
	}
	dev, b, err := team.acquire(op)
	if err != nil {
		return err
	}
	kind := b.Kind()
	if prog == nil {
		recordRun(kind, resultInvalid)
		return newError(op, ErrInvalidArgument, "nil program")
	}
	if prog.kind != kind {
		recordRun(kind, resultInvalid)
		return newError(op, ErrIncompatibleFormat, "%s cannot run on a %s device", prog, kind)
	}
	if flags&^runFlagMask != 0 {
		recordRun(kind, resultInvalid)
		return newError(op, ErrInvalidArgument, "unknown flags %#x", uint32(flags&^runFlagMask))
	}
	if start < 0 || size <= 0 || start > team.size || size > team.size-start {
		recordRun(kind, resultInvalid)
		return newError(op, ErrInvalidArgument, "%d slots from %d outside team of %d", size, start, team.size)
	}

	for slot := start; slot < start+size; slot++ {
		team.reg.schedule(slot)
	}
	epoch := team.reg.publish()

	log := dev.logger.With(zap.String("program", prog.Name()), zap.Uint64("epoch", epoch))
	for slot := start; slot < start+size; slot++ {
		if err := b.Launch(team, prog, slot, args); err != nil {
			team.reg.abort(slot, start+size)
			recordLaunchFailure(kind)
			recordRun(kind, resultIOFailure)
			log.Error("launch failed", zap.Int("slot", slot), zap.Error(err))
			return wrapError(op, ErrIOFailure, err)
		}
	}
	log.Debug("dispatched", zap.Int("start", start), zap.Int("size", size))

	if flags&RunNonBlocking != 0 {
		recordRun(kind, resultDispatched)
		return nil
	}
	err = Wait(team, 0)
	recordRun(kind, resultOf(err))
	return err
}

// Wait blocks until no slot of team is SCHEDULED or RUNNING. A timeout <= 0
// uses the device's WaitTimeout. It returns ErrTimeout when the bound is
// exceeded and ErrPartialFailure, carrying every faulted slot, when any slot
// ended in StatusError.
func Wait(team *Team, timeout time.Duration) error {
	const op = "wait"
	if team == nil {
		return newError(op, ErrInvalidArgument, "nil team")
	}
	dev, b, err := team.acquire(op)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = dev.opts.WaitTimeout
	}
	began := time.Now()
	err = b.Wait(team, timeout)
	observeWait(b.Kind(), time.Since(began))
	if err != nil {
		dev.logger.Debug("wait finished with error", zap.Duration("elapsed", time.Since(began)), zap.Error(err))
	}
	return err
}

// pollWait is the polling loop shared by every backend.
func pollWait(reg *StatusRegister, interval, timeout time.Duration, kind Kind) error {
	deadline := time.Now().Add(timeout)
	for {
		recordPoll(kind)
		pending := 0
		for i := 0; i < reg.Len(); i++ {
			if s, _ := reg.Load(i); s.Pending() {
				pending++
			}
		}
		if pending == 0 {
			break
		}
		if !time.Now().Before(deadline) {
			return newError("wait", ErrTimeout, "%d slot(s) still pending after %s", pending, timeout)
		}
		// No blocking notification from the substrate; bound CPU use.
		time.Sleep(interval)
	}

	var faults error
	for i := 0; i < reg.Len(); i++ {
		if s, code := reg.Load(i); s == StatusError {
			faults = multierr.Append(faults, &SlotFault{Slot: i, Code: code})
		}
	}
	if faults != nil {
		recordFaults(kind, len(multierr.Errors(faults)))
		return wrapError("wait", ErrPartialFailure, faults)
	}
	return nil
}
