package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "status")
	})

	t.Run("stopped", func(t *testing.T) {
		output, err := execute(t, "status", "--config", missingConfig(t))
		require.NoError(t, err)
		assert.Contains(t, output, "Status: stopped")
	})

	t.Run("running", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tagqueue.pid"), []byte(fmt.Sprint(os.Getpid())), 0644))

		resetFlags()
		cfgFile = missingConfig(t)
		cmd := GetRootCmd()
		t.Setenv("TAGQUEUE_DATA_DIR", dir)
		cfg, _, err := loadConfig(cmd)
		require.NoError(t, err)

		lm := lifecycleFor(cfg)
		assert.True(t, lm.IsRunning())
		pid, err := lm.GetPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
