package hal

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Kernel is a thread-pool program entry point. Returning a non-nil error ends
// the slot in StatusError; errors implementing FaultCoder choose the code.
type Kernel func(kc *KernelContext) error

// KernelContext is what a kernel sees of its launch.
type KernelContext struct {
	// Rank is the slot within the team.
	Rank int
	// TeamSize is the number of slots of the team.
	TeamSize int
	// PE is the device-wide processing element running the slot.
	PE   int
	Args []string

	ctx context.Context
}

// Context is cancelled when the device is closed.
func (kc *KernelContext) Context() context.Context {
	return kc.ctx
}

// FaultCoder lets a kernel error carry its own fault code.
type FaultCoder interface {
	FaultCode() int32
}

type kernelFault struct {
	code int32
	msg  string
}

func (f *kernelFault) Error() string    { return f.msg }
func (f *kernelFault) FaultCode() int32 { return f.code }

// Fault returns an error that ends a kernel with the given fault code.
func Fault(code int32, format string, args ...any) error {
	return &kernelFault{code: code, msg: fmt.Sprintf(format, args...)}
}

var (
	kernelsMu sync.RWMutex
	kernels   = make(map[string]Kernel)
)

// RegisterKernel makes a kernel loadable by name on thread-pool devices.
func RegisterKernel(name string, k Kernel) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernels[name] = k
}

// LookupKernel returns a registered kernel.
func LookupKernel(name string) (Kernel, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	k, ok := kernels[name]
	return k, ok
}

func init() {
	RegisterKernel("noop", noopKernel)
	RegisterKernel("sleep", sleepKernel)
	RegisterKernel("fault", faultKernel)
	RegisterKernel("spin", spinKernel)
	RegisterKernel("matmul", matmulKernel)
}

func noopKernel(*KernelContext) error {
	return nil
}

// sleepKernel sleeps for args[0] (a duration, default 1ms).
func sleepKernel(kc *KernelContext) error {
	d := time.Millisecond
	if len(kc.Args) > 0 {
		var err error
		if d, err = time.ParseDuration(kc.Args[0]); err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
	}
	select {
	case <-time.After(d):
	case <-kc.ctx.Done():
	}
	return nil
}

// faultKernel fails on the rank given in args[0] with code args[1] (default 1).
func faultKernel(kc *KernelContext) error {
	if len(kc.Args) == 0 {
		return Fault(FaultKernel, "fault requested")
	}
	rank, err := strconv.Atoi(kc.Args[0])
	if err != nil {
		return fmt.Errorf("fault: bad rank %q: %w", kc.Args[0], err)
	}
	if rank != kc.Rank {
		return nil
	}
	code := FaultKernel
	if len(kc.Args) > 1 {
		c, err := strconv.Atoi(kc.Args[1])
		if err != nil {
			return fmt.Errorf("fault: bad code %q: %w", kc.Args[1], err)
		}
		code = int32(c)
	}
	return Fault(code, "fault requested on rank %d", rank)
}

// spinKernel never returns on its own; it ends when the device closes.
func spinKernel(kc *KernelContext) error {
	<-kc.ctx.Done()
	return nil
}

// matmulKernel multiplies two random n×n matrices (n = args[0], default 64).
func matmulKernel(kc *KernelContext) error {
	n := 64
	if len(kc.Args) > 0 {
		var err error
		if n, err = strconv.Atoi(kc.Args[0]); err != nil || n <= 0 {
			return fmt.Errorf("matmul: bad size %q", kc.Args[0])
		}
	}
	rng := rand.New(rand.NewSource(int64(kc.PE) + 1))
	a := mat.NewDense(n, n, nil)
	b := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, rng.Float64())
			b.Set(i, j, rng.Float64())
		}
	}
	var c mat.Dense
	c.Mul(a, b)
	if r, cols := c.Dims(); r != n || cols != n {
		return Fault(FaultKernel, "matmul: result is %dx%d, want %dx%d", r, cols, n, n)
	}
	return nil
}
