package hal

import "time"

const (
	DefaultPollInterval = time.Millisecond
	DefaultWaitTimeout  = 30 * time.Second
	DefaultAccelRows    = 4
	DefaultAccelCols    = 4
)

// Options configures a Device.
type Options struct {
	Kind Kind

	// Threads is the thread-pool PE count. Zero means one per logical CPU.
	Threads int
	// PinThreads binds each pool worker to one CPU where the OS allows it.
	PinThreads bool

	// Driver drives the accelerator. When nil a ProcessDriver is built from
	// Rows, Cols and WorkDir for KindAccelerator.
	Driver  Driver
	Rows    int
	Cols    int
	WorkDir string

	// PollInterval is the sleep between two reads of a Status Register.
	PollInterval time.Duration
	// WaitTimeout bounds Wait calls that do not pass their own timeout,
	// including the internal wait of a blocking Run.
	WaitTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.Rows <= 0 {
		o.Rows = DefaultAccelRows
	}
	if o.Cols <= 0 {
		o.Cols = DefaultAccelCols
	}
	return o
}
