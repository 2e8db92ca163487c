package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags clears flag state left behind by earlier executions of rootCmd
func resetFlags() {
	cfgFile = ""
	logLevel = "info"
	replayRemote = ""
	replayStep = false
	replayDump = false
	configForce = false
	stopTimeout = 30
	serveWatch = true

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// execute runs the CLI against an isolated data dir
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TAGQUEUE_DATA_DIR", filepath.Join(t.TempDir(), "data"))
	return run(context.Background(), args...)
}

func run(ctx context.Context, args ...string) (string, error) {
	resetFlags()

	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return output.String(), err
}

func commandNames() map[string]bool {
	names := make(map[string]bool)
	for _, c := range GetRootCmd().Commands() {
		names[c.Name()] = true
	}
	return names
}
