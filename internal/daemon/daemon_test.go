package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/tagqueue/internal/config"
	"github.com/harun/tagqueue/internal/logger"
	"github.com/harun/tagqueue/pkg/tagqueue"
	"github.com/harun/tagqueue/pkg/wsbridge"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDaemon creates a daemon listening on a random local port
func createTestDaemon(t *testing.T, mutate func(*config.Config)) *Daemon {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Server.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	log, err := logger.New(logger.Config{
		Level: "debug",
		File:  filepath.Join(tmpDir, "daemon.log"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	return d
}

func startTestDaemon(t *testing.T, mutate func(*config.Config)) *Daemon {
	t.Helper()
	d := createTestDaemon(t, mutate)
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		if d.Status().Running {
			_ = d.Stop(context.Background())
		}
	})
	return d
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestDaemon_StartStop(t *testing.T) {
	d := startTestDaemon(t, nil)

	status := d.Status()
	assert.True(t, status.Running)
	assert.False(t, status.StartTime.IsZero())
	require.NotNil(t, d.Addr())

	_, err := os.Stat(d.config.PIDFile())
	require.NoError(t, err)

	assert.Error(t, d.Start(), "second start")

	require.NoError(t, d.Stop(context.Background()))
	assert.False(t, d.Status().Running)
	_, err = os.Stat(d.config.PIDFile())
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, d.Stop(context.Background()), "stop when not running")
}

func TestDaemon_HTTPEndpoints(t *testing.T) {
	d := startTestDaemon(t, nil)
	base := fmt.Sprintf("http://%s", d.Addr())

	var health struct {
		Status string `json:"status"`
		Daemon Status `json:"daemon"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/healthz", &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Daemon.Running)
	assert.False(t, health.Daemon.Initialized)

	var dl struct {
		Entries  []any          `json:"entries"`
		Pending  int            `json:"pending"`
		Snapshot map[string]any `json:"snapshot"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/datalayer", &dl))
	assert.Empty(t, dl.Entries)
	assert.Empty(t, dl.Snapshot)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"/metrics", nil))

	resp, err := http.Post(base+"/datalayer", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDaemon_MetricsDisabled(t *testing.T) {
	d := startTestDaemon(t, func(c *config.Config) { c.Metrics.Enabled = false })
	assert.Equal(t, http.StatusNotFound, getJSON(t, fmt.Sprintf("http://%s/metrics", d.Addr()), nil))
}

func TestDaemon_ServesBridge(t *testing.T) {
	d := startTestDaemon(t, func(c *config.Config) { c.Bridge.SharedSecret = "s3cret" })
	url := fmt.Sprintf("ws://%s/bridge", d.Addr())
	quiet := zerolog.New(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := wsbridge.Dial(ctx, url, quiet)
	require.Error(t, err, "missing secret")

	client, err := wsbridge.Dial(ctx, url, quiet, wsbridge.WithSecret("s3cret"))
	require.NoError(t, err)
	defer client.Close()

	timer := tagqueue.NewManualTimer()
	q := tagqueue.New(client, tagqueue.WithTimer(timer), tagqueue.WithLogger(quiet))
	calls := []*tagqueue.Completion{
		q.Init("GTM-TEST", 1),
		q.PushEvent(map[string]any{"screen": "home"}),
		q.TrackPage("/home"),
	}
	for _, c := range calls {
		timer.Fire()
		_, err := c.Wait(ctx)
		require.NoError(t, err)
	}

	status := d.Status()
	assert.True(t, status.Initialized)
	assert.Equal(t, "GTM-TEST", status.ContainerID)
	assert.Equal(t, 1, status.Connections)

	var dl struct {
		Entries []any `json:"entries"`
		Pending int   `json:"pending"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("http://%s/datalayer", d.Addr()), &dl))
	assert.Len(t, dl.Entries, 3)
	assert.Zero(t, dl.Pending)

	t.Run("stop disconnects clients", func(t *testing.T) {
		require.NoError(t, d.Stop(context.Background()))
		select {
		case <-client.Done():
		case <-ctx.Done():
			t.Fatal("client was not disconnected")
		}

		pending := tagqueue.NewCompletion()
		client.Invoke(ctx, tagqueue.Invocation{Namespace: tagqueue.Namespace, Method: "dispatch", Args: []any{}}, pending)

		_, err := pending.Wait(ctx)
		assert.ErrorIs(t, err, wsbridge.ErrClosed)
	})
}

func TestDaemon_ApplyConfig(t *testing.T) {
	d := createTestDaemon(t, nil)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"
	d.applyConfig(cfg)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	cfg.Logging.Level = "loud"
	d.applyConfig(cfg)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestDaemon_WatchConfig(t *testing.T) {
	d := startTestDaemon(t, nil)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	path := filepath.Join(t.TempDir(), "tagqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))
	require.NoError(t, d.WatchConfig(config.NewLoader(path)))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0644))
	assert.Eventually(t, func() bool {
		return zerolog.GlobalLevel() == zerolog.ErrorLevel
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDaemon_InvalidDataLayer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DataLayer.Driver = "redis"

	log, err := logger.New(logger.Config{Level: "info", File: filepath.Join(cfg.DataDir, "daemon.log")})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(cfg, log)
	assert.Error(t, err)
}

func TestEventLoop(t *testing.T) {
	d := createTestDaemon(t, nil)
	loop := NewEventLoop(d, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.NoError(t, d.store.Push(ctx, map[string]any{"event": "x"}))
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop")
	}
	assert.Equal(t, defaultMaintenanceInterval, NewEventLoop(d, 0).interval)
}

func TestDaemon_AuditFile(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	d := startTestDaemon(t, func(c *config.Config) { c.Logging.AuditFile = auditPath })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply := tagqueue.NewCompletion()
	d.Bridge().Invoke(ctx, tagqueue.Invocation{
		CallID:    "c1",
		Namespace: tagqueue.Namespace,
		Method:    "initGTM",
		Args:      []any{"GTM-AUDIT", 1},
	}, reply)
	_, err := reply.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Stop(context.Background()))

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"call:initGTM"`)
	assert.Contains(t, string(data), `"actor":"GTM-AUDIT"`)
}
