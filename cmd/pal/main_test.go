package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxnlabs/pal/fixtures"
	"github.com/fxnlabs/pal/internal/config"
	"github.com/fxnlabs/pal/internal/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

// writeConfig writes a thread-pool config with two PEs and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pal.yaml")
	cfg := `logger:
  verbosity: error
device:
  kind: threadpool
  threads: 2
wait:
  timeout: 2s
metrics:
  listenAddress: 127.0.0.1:0
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"pal"}, args...))
	return out.String(), err
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "pal.yaml")

	_, err := runApp(t, "--config", path, "init")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	_, err = runApp(t, "--config", path, "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = runApp(t, "--config", path, "init", "--force")
	assert.NoError(t, err)
}

func TestInfoCommand(t *testing.T) {
	out, err := runApp(t, "--config", writeConfig(t), "info", "--no-banner")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: threadpool")
	assert.Contains(t, out, "nodes     2")
	assert.Contains(t, out, "whoami    n/a")
}

func TestRunCommand(t *testing.T) {
	cfg := writeConfig(t)

	t.Run("success", func(t *testing.T) {
		out, err := runApp(t, "--config", cfg, "run", "--kernel", "noop")
		require.NoError(t, err)
		assert.Equal(t, "slot 0 (pe 0): done\nslot 1 (pe 1): done\n", out)
	})

	t.Run("nonblocking subrange", func(t *testing.T) {
		out, err := runApp(t, "--config", cfg, "run", "--kernel", "sleep", "--nonblocking", "--start", "1", "--size", "1", "1ms")
		require.NoError(t, err)
		assert.Equal(t, "slot 0 (pe 0): idle\nslot 1 (pe 1): done\n", out)
	})

	t.Run("fault", func(t *testing.T) {
		out, err := runApp(t, "--config", cfg, "run", "--kernel", "fault", "1", "4")
		assert.ErrorIs(t, err, hal.ErrPartialFailure)
		assert.Contains(t, out, "slot 1 (pe 1): error (code 4)")
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := runApp(t, "--config", cfg, "run", "--kernel", "spin", "--timeout", "20ms")
		assert.ErrorIs(t, err, hal.ErrTimeout)
	})

	t.Run("missing program", func(t *testing.T) {
		_, err := runApp(t, "--config", cfg, "run")
		assert.ErrorContains(t, err, "--kernel or --image")
		_, err = runApp(t, "--config", cfg, "run", "--kernel", "noop", "--image", "/bin/true")
		assert.ErrorContains(t, err, "mutually exclusive")
		_, err = runApp(t, "--config", cfg, "run", "--kernel", "nope")
		assert.ErrorIs(t, err, hal.ErrNotFound)
	})
}

func TestBenchCommand(t *testing.T) {
	report := filepath.Join(t.TempDir(), "bench.csv")
	_, err := runApp(t, "--config", writeConfig(t), "bench", "-k", "noop", "-k", "matmul", "--size", "8", "-n", "3", "--warmup", "0", "--csv", report)
	require.NoError(t, err)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, ";name, size, duration (ns)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "noop, 8, "))
	assert.True(t, strings.HasPrefix(lines[2], "matmul, 8, "))
}

func TestServeLifecycle(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t))
	require.NoError(t, err)

	var dev *hal.Device
	var srv *http.Server
	app := fxtest.New(t, serveOptions(cfg, zaptest.NewLogger(t)), fx.Populate(&dev, &srv))
	app.RequireStart()
	assert.True(t, dev.IsOpen())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.NotNil(t, body.Device)
	assert.Equal(t, 2, body.Device.Nodes)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pal_teams_open")

	app.RequireStop()
	assert.False(t, dev.IsOpen())

	rec = httptest.NewRecorder()
	healthHandler(dev).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
