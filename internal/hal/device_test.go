package hal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openPool(t *testing.T, threads int) *Device {
	t.Helper()
	dev, err := Open(Options{Kind: KindThreadPool, Threads: threads}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return dev
}

func TestDeviceOpenClose(t *testing.T) {
	dev := NewDevice(Options{Kind: KindThreadPool, Threads: 2}, zaptest.NewLogger(t))
	assert.False(t, dev.IsOpen())

	require.NoError(t, dev.Open())
	assert.True(t, dev.IsOpen())
	// opening twice is a no-op
	require.NoError(t, dev.Open())
	assert.Equal(t, KindThreadPool, dev.Kind())

	require.NoError(t, dev.Close())
	assert.False(t, dev.IsOpen())
	require.NoError(t, dev.Close())

	// a closed device can be opened again
	require.NoError(t, dev.Open())
	require.NoError(t, dev.Close())
}

func TestDeviceNotOpen(t *testing.T) {
	dev := NewDevice(Options{Kind: KindThreadPool}, nil)

	_, err := dev.Query(PropNodes)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = dev.OpenTeam(0, 1)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = dev.LoadProgram(ProgramDescriptor{Name: "noop"})
	assert.ErrorIs(t, err, ErrInvalidState)

	info := dev.Info()
	assert.Equal(t, "No backend available", info.Name)
}

func TestDeviceQuery(t *testing.T) {
	dev := openPool(t, 4)
	defer dev.Close()

	typ, err := dev.Query(PropType)
	require.NoError(t, err)
	assert.Equal(t, int(KindThreadPool), typ)

	nodes, err := dev.Query(PropNodes)
	require.NoError(t, err)
	assert.Equal(t, 4, nodes)

	topo, err := dev.Query(PropTopology)
	require.NoError(t, err)
	assert.Equal(t, 1, topo)

	simd, err := dev.Query(PropSIMD)
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, simd)

	_, err = dev.Query(PropMemArch)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = dev.Query(PropWhoAmI)
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = dev.Query(Property(99))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeviceInfo(t *testing.T) {
	dev := openPool(t, 3)
	defer dev.Close()

	info := dev.Info()
	assert.Contains(t, info.Name, "Thread pool")
	assert.Equal(t, KindThreadPool, info.Kind)
	assert.Equal(t, 3, info.Nodes)
}

func TestDeviceAutoFallsBackToPool(t *testing.T) {
	dev, err := Open(Options{Kind: KindAuto, Threads: 2}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, KindThreadPool, dev.Kind())
}

func TestDeviceAcceleratorUnavailable(t *testing.T) {
	_, err := Open(Options{Kind: KindAccelerator, WorkDir: "/does/not/exist"}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOpenTeamBounds(t *testing.T) {
	dev := openPool(t, 4)
	defer dev.Close()

	_, err := dev.OpenTeam(-1, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = dev.OpenTeam(0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = dev.OpenTeam(2, 3)
	assert.ErrorIs(t, err, ErrResourceExhausted)
	_, err = dev.OpenTeam(math.MaxInt, 1)
	assert.ErrorIs(t, err, ErrResourceExhausted)
	_, err = dev.OpenTeam(1, math.MaxInt)
	assert.ErrorIs(t, err, ErrResourceExhausted)
	_, err = dev.OpenTeam(0, 5)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	team, err := dev.OpenTeam(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, team.Start())
	assert.Equal(t, 3, team.Size())
	for _, st := range team.Snapshot() {
		assert.Equal(t, StatusIdle, st.Status)
	}
	require.NoError(t, team.Close())
}

func TestDeviceCloseWithOpenTeam(t *testing.T) {
	dev := openPool(t, 2)
	team, err := dev.OpenTeam(0, 2)
	require.NoError(t, err)

	err = dev.Close()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, dev.IsOpen())

	require.NoError(t, team.Close())
	// closing a team twice is a no-op
	require.NoError(t, team.Close())
	require.NoError(t, dev.Close())
}

func TestLoadProgram(t *testing.T) {
	dev := openPool(t, 1)
	defer dev.Close()

	prog, err := dev.LoadProgram(ProgramDescriptor{Name: "noop"})
	require.NoError(t, err)
	assert.Equal(t, KindThreadPool, prog.Kind())
	assert.Equal(t, "noop", prog.Name())

	_, err = dev.LoadProgram(ProgramDescriptor{Name: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dev.LoadProgram(ProgramDescriptor{Path: "/bin/true"})
	assert.ErrorIs(t, err, ErrIncompatibleFormat)

	_, err = dev.LoadProgram(ProgramDescriptor{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	prog, err = dev.LoadProgram(ProgramDescriptor{Kernel: noopKernel})
	require.NoError(t, err)
	assert.Equal(t, "kernel", prog.Name())
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindAuto, false},
		{"auto", KindAuto, false},
		{"ThreadPool", KindThreadPool, false},
		{"pthreads", KindThreadPool, false},
		{"accelerator", KindAccelerator, false},
		{"gpu", KindAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
