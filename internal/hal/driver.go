package hal

// Topology is the core grid exposed by an accelerator driver.
type Topology struct {
	Rows int
	Cols int
}

// Cores returns the number of cores of the grid.
func (t Topology) Cores() int {
	return t.Rows * t.Cols
}

// LoadRequest asks a driver to load an image on one core and start it.
type LoadRequest struct {
	Image    string
	Row, Col int
	Rank     int
	TeamSize int
	Args     []string
	// Reporter receives the core's progress. The driver must call Running
	// once the image executes and exactly one of Done or Fault afterwards.
	Reporter SlotReporter
}

// Driver is the vendor-facing side of the accelerator backend.
//
// A driver is owned by one accelerator backend: Open and Close are called
// once each, Load may be called concurrently for different cores.
type Driver interface {
	// Name identifies the driver in logs and device info.
	Name() string

	// Probe checks that the driver can be opened, without opening it.
	Probe() error

	// Open acquires the device and returns its core grid.
	Open() (Topology, error)

	// Load loads and starts an image on one core. It returns once the
	// image is started; completion is reported through req.Reporter.
	Load(req LoadRequest) error

	// Close stops every running core and releases the device.
	Close() error
}
