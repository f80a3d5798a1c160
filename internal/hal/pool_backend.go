package hal

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

// simdFlags are CPU feature flags that count as SIMD support.
var simdFlags = []string{"sse2", "avx", "avx2", "avx512f", "neon", "asimd", "altivec", "vsx"}

// poolBackend implements Backend with one goroutine per PE, each locked to
// its own OS thread.
type poolBackend struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	workers  []*poolWorker
	reserved []int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	info     DeviceInfo
	simd     bool
}

type poolWorker struct {
	pe    int
	tasks chan poolTask
}

type poolTask struct {
	kernel Kernel
	kc     *KernelContext
	report SlotReporter
}

func newPoolBackend(opts Options, logger *zap.Logger) *poolBackend {
	return &poolBackend{
		opts:   opts,
		logger: logger.Named("pool"),
	}
}

func (p *poolBackend) Kind() Kind {
	return KindThreadPool
}

// IsAvailable is always true for the thread pool.
func (p *poolBackend) IsAvailable() bool {
	return true
}

// Open starts the workers. Everything is built locally first and only
// assigned to the backend once complete.
func (p *poolBackend) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers != nil {
		return nil
	}

	cpus := logicalCPUs()
	threads := p.opts.Threads
	if threads <= 0 {
		threads = cpus
	}
	if threads <= 0 {
		return fmt.Errorf("no processing elements available")
	}
	info, simd := describeHost(threads)

	ctx, cancel := context.WithCancel(context.Background())
	workers := make([]*poolWorker, threads)
	for i := range workers {
		workers[i] = &poolWorker{pe: i, tasks: make(chan poolTask, 1)}
	}
	for _, w := range workers {
		p.wg.Add(1)
		go p.work(ctx, w, cpus)
	}

	p.ctx, p.cancel = ctx, cancel
	p.workers = workers
	p.reserved = make([]int, threads)
	p.info, p.simd = info, simd
	p.logger.Info("thread pool started", zap.Int("threads", threads), zap.Bool("pinned", p.opts.PinThreads))
	return nil
}

// Close stops the workers and waits for running kernels to return.
func (p *poolBackend) Close() error {
	p.mu.Lock()
	if p.workers == nil {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.workers = nil
	p.reserved = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("thread pool stopped")
	return nil
}

func (p *poolBackend) work(ctx context.Context, w *poolWorker, cpus int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if p.opts.PinThreads && cpus > 0 {
		if err := pinThread(w.pe % cpus); err != nil {
			p.logger.Warn("failed to pin worker", zap.Int("pe", w.pe), zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-w.tasks:
			p.execute(w, t)
		}
	}
}

func (p *poolBackend) execute(w *poolWorker, t poolTask) {
	t.report.Running()
	err := callKernel(t.kernel, t.kc)
	if err == nil {
		t.report.Done()
		return
	}
	code := FaultKernel
	if fc, ok := err.(FaultCoder); ok {
		code = fc.FaultCode()
	}
	p.logger.Debug("kernel faulted",
		zap.Int("pe", w.pe),
		zap.Int("rank", t.kc.Rank),
		zap.Int32("fault", code),
		zap.Error(err))
	t.report.Fault(code)
}

func callKernel(k Kernel, kc *KernelContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Fault(FaultPanic, "kernel panic: %v", r)
		}
	}()
	return k(kc)
}

func (p *poolBackend) Query(prop Property) (int, error) {
	const op = "device query"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers == nil {
		return 0, newError(op, ErrInvalidState, "thread pool is not open")
	}
	switch prop {
	case PropType:
		return int(KindThreadPool), nil
	case PropNodes:
		return len(p.workers), nil
	case PropTopology:
		return 1, nil
	case PropSIMD:
		if p.simd {
			return 1, nil
		}
		return 0, nil
	case PropMemArch, PropWhoAmI:
		return 0, newError(op, ErrNotSupported, "%s on thread pool", prop)
	}
	return 0, newError(op, ErrInvalidArgument, "unknown property %d", int(prop))
}

func (p *poolBackend) Info() DeviceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *poolBackend) Load(desc ProgramDescriptor) (*Program, error) {
	return loadKernelProgram(desc)
}

// OpenTeam records the reservation. Overlaps are logged, not refused.
func (p *poolBackend) OpenTeam(team *Team) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers == nil {
		return fmt.Errorf("thread pool is not open")
	}
	for pe := team.start; pe < team.start+team.size; pe++ {
		if p.reserved[pe] > 0 {
			p.logger.Debug("PE reserved by more than one team", zap.Int("pe", pe))
		}
		p.reserved[pe]++
	}
	return nil
}

func (p *poolBackend) CloseTeam(team *Team) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved == nil {
		return
	}
	for pe := team.start; pe < team.start+team.size; pe++ {
		p.reserved[pe]--
	}
}

// Launch hands the slot to the worker of its PE without blocking.
func (p *poolBackend) Launch(team *Team, prog *Program, slot int, args []string) error {
	pe := team.start + slot
	p.mu.Lock()
	if p.workers == nil {
		p.mu.Unlock()
		return fmt.Errorf("thread pool is not open")
	}
	w, ctx := p.workers[pe], p.ctx
	p.mu.Unlock()

	t := poolTask{
		kernel: prog.kernel,
		kc: &KernelContext{
			Rank:     slot,
			TeamSize: team.size,
			PE:       pe,
			Args:     args,
			ctx:      ctx,
		},
		report: team.reg.reporter(slot),
	}
	select {
	case w.tasks <- t:
		return nil
	default:
		return fmt.Errorf("PE %d already has a pending launch", pe)
	}
}

func (p *poolBackend) Wait(team *Team, timeout time.Duration) error {
	return pollWait(team.reg, p.opts.PollInterval, timeout, p.Kind())
}

func logicalCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func describeHost(threads int) (DeviceInfo, bool) {
	info := DeviceInfo{
		Name:  fmt.Sprintf("Thread pool (%s/%s)", runtime.GOOS, runtime.GOARCH),
		Kind:  KindThreadPool,
		Nodes: threads,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = int64(vm.Total)
	}
	simd := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	if stats, err := cpu.Info(); err == nil && len(stats) > 0 {
		info.Model = stats[0].ModelName
		if len(stats[0].Flags) > 0 {
			simd = hasAnyFlag(stats[0].Flags, simdFlags)
		}
	}
	return info, simd
}

func hasAnyFlag(flags, want []string) bool {
	for _, f := range flags {
		for _, w := range want {
			if strings.EqualFold(f, w) {
				return true
			}
		}
	}
	return false
}
