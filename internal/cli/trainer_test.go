package cli

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/config"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/logging"
)

func testEnv(t *testing.T) *env {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Sim.HTTPAddr = ""
	return &env{cfg: cfg, logger: logging.Discard(), file: nopWriteCloser{io.Discard}}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestIsRoutineFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "routine")
	require.NoError(t, os.WriteFile(plain, []byte("name: x"), 0o644))

	assert.True(t, isRoutineFile("missing.yaml"))
	assert.True(t, isRoutineFile("LEGS.YML"))
	assert.True(t, isRoutineFile(plain))
	assert.False(t, isRoutineFile(dir))
	assert.False(t, isRoutineFile("3f2a9c"))
}

func TestStartTrainer_Sim(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	tr, err := startTrainer(ctx, e)
	require.NoError(t, err)
	defer tr.Close()

	r, err := tr.resolveRoutine(ctx, writeRoutine(t))
	require.NoError(t, err)
	assert.Equal(t, "legs", r.ID)

	stored, err := tr.resolveRoutine(ctx, "legs")
	require.NoError(t, err)
	assert.Equal(t, "Leg Day", stored.Name)

	require.NoError(t, tr.session.EnterRoutineOverview(stored))
	require.NoError(t, tr.session.Sync(ctx))
	assert.Equal(t, "Leg Day", tr.session.Store().RoutineFlow().Get().Routine.Name)
}

func TestStartTrainer_UnknownDriver(t *testing.T) {
	e := testEnv(t)
	e.cfg.Device.Driver = "serial"
	_, err := startTrainer(context.Background(), e)
	assert.ErrorContains(t, err, "unknown device driver")
}

func TestMetricsRouter(t *testing.T) {
	srv := httptest.NewServer(metricsRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	resp2, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServeMetrics_StopsWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, addr, testEnv(t)) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestServeMetrics_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = serveMetrics(context.Background(), l.Addr().String(), testEnv(t))
	assert.ErrorContains(t, err, "metrics server")
}
