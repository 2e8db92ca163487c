package daemon

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLifecycle(t *testing.T) *LifecycleManager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	return NewLifecycleManager(dir, filepath.Join(dir, "tagqueue.pid"), zerolog.New(io.Discard))
}

func TestLifecycleManagerStartStop(t *testing.T) {
	lm := newTestLifecycle(t)

	require.NoError(t, lm.Start())

	_, err := os.Stat(lm.PIDFile())
	assert.NoError(t, err)
	assert.True(t, lm.IsRunning())

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, lm.Stop())
	_, err = os.Stat(lm.PIDFile())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())

	assert.NoError(t, lm.Stop(), "stop is idempotent")
}

func TestLifecycleManagerGetPID(t *testing.T) {
	lm := newTestLifecycle(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(lm.PIDFile()), 0755))

	t.Run("missing file", func(t *testing.T) {
		_, err := lm.GetPID()
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid content", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lm.PIDFile(), []byte("not-a-pid"), 0644))
		_, err := lm.GetPID()
		assert.Error(t, err)
		assert.False(t, lm.IsRunning())
	})

	t.Run("trailing newline", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
		pid, err := lm.GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})
}

func TestLifecycleManagerStaleAndLive(t *testing.T) {
	lm := newTestLifecycle(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(lm.PIDFile()), 0755))

	t.Run("stale PID file is replaced", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lm.PIDFile(), []byte("0"), 0644))
		require.NoError(t, lm.Start())
		pid, err := lm.GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})

	t.Run("live PID file blocks start", func(t *testing.T) {
		// the parent process is alive for the duration of the test
		require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(os.Getppid())), 0644))
		assert.Error(t, lm.Start())
	})
}

func TestLifecycleManagerSignalStop(t *testing.T) {
	lm := newTestLifecycle(t)
	_, err := lm.SignalStop()
	assert.EqualError(t, err, "daemon is not running")
}
