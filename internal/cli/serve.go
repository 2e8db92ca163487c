package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harun/tagqueue/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	serveWatch           bool
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the tag-manager bridge",
	Long: `Host the tag-manager bridge over WebSocket at /bridge.
Health is reported at /healthz, the data layer at /datalayer and metrics at
/metrics. Runs in the foreground until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload the log level when the config file changes")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for graceful shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	daemon.Version = version
	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	if serveWatch {
		if _, statErr := os.Stat(loader.GetConfigPath()); statErr == nil {
			if err := d.WatchConfig(loader); err != nil {
				zl := log.Zerolog()
				zl.Warn().Err(err).Msg("Config watching disabled")
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Bridge listening on ws://%s/bridge\n", d.Addr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d.Wait(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	return d.Stop(shutdownCtx)
}
