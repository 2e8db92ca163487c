package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harun/tagqueue/internal/config"
	"github.com/harun/tagqueue/internal/script"
	"github.com/harun/tagqueue/pkg/datalayer"
	"github.com/harun/tagqueue/pkg/gtm"
	"github.com/harun/tagqueue/pkg/tagqueue"
	"github.com/harun/tagqueue/pkg/wsbridge"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	replayRemote string
	replayStep   bool
	replayDump   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "Replay a scripted call sequence through the dispatcher",
	Long: `Replay a YAML or JSON call script through a dispatcher.
Calls are forwarded one per tick to the local tag-manager bridge, or to a
remote bridge when bridge.mode is remote or --remote is given. One result
line is printed per call once every call has completed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayRemote, "remote", "", "bridge URL to forward to (overrides bridge.url and selects remote mode)")
	replayCmd.Flags().BoolVar(&replayStep, "step", false, "tick back to back instead of on the configured interval")
	replayCmd.Flags().BoolVar(&replayDump, "dump", false, "print the local data layer after replaying")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if replayRemote != "" {
		cfg.Bridge.Mode = "remote"
		cfg.Bridge.URL = replayRemote
		if err := config.NewValidator().ValidateBridge(cfg.Bridge); err != nil {
			return err
		}
	}

	doc, err := script.Load(args[0])
	if err != nil {
		return err
	}
	calls, err := script.Decode(doc)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	zl := log.Zerolog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sink, store, closeSink, err := openSink(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeSink()

	var (
		timer  tagqueue.Timer
		manual *tagqueue.ManualTimer
	)
	if replayStep {
		manual = tagqueue.NewManualTimer()
		timer = manual
	} else {
		cron := tagqueue.NewCronTimer(zl)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = cron.Close(closeCtx)
		}()
		timer = cron
	}

	q := tagqueue.New(sink,
		tagqueue.WithTimer(timer),
		tagqueue.WithTickInterval(cfg.Dispatcher.TickInterval),
		tagqueue.WithLogger(zl),
	)

	completions := make([]*tagqueue.Completion, len(calls))
	for i, call := range calls {
		completions[i] = q.EnqueueContext(ctx, call)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Dispatcher.DrainTimeout)
	defer cancel()

	if manual != nil {
		step(waitCtx, manual, completions)
	}

	out := cmd.OutOrStdout()
	failed := report(waitCtx, out, calls, completions, manual != nil)

	if replayDump && store != nil {
		if err := dumpDataLayer(ctx, out, store); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(calls))
	}
	return nil
}

// openSink returns the bridge to forward to. store is nil for a remote bridge.
func openSink(ctx context.Context, cfg *config.Config, log zerolog.Logger) (tagqueue.Sink, datalayer.Store, func(), error) {
	if cfg.Bridge.Mode == "remote" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Bridge.DialTimeout)
		defer cancel()

		var opts []wsbridge.DialOption
		if cfg.Bridge.SharedSecret != "" {
			opts = append(opts, wsbridge.WithSecret(cfg.Bridge.SharedSecret))
		}
		client, err := wsbridge.Dial(dialCtx, cfg.Bridge.URL, log, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return client, nil, func() { client.Close() }, nil
	}

	store, err := datalayer.Open(datalayer.Config{
		Driver: cfg.DataLayer.Driver,
		Path:   cfg.DataLayer.Path,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open data layer: %w", err)
	}
	return gtm.NewBridge(store, log), store, func() { store.Close() }, nil
}

// step forwards one call per tick, waiting for each to resolve before the next.
// It stops once no tick is armed, which leaves the rest of the queue unforwarded.
func step(ctx context.Context, timer *tagqueue.ManualTimer, completions []*tagqueue.Completion) {
	for _, c := range completions {
		if timer.Fire() == 0 {
			return
		}
		select {
		case <-c.Done():
		case <-ctx.Done():
			return
		}
	}
}

// report prints one line per call and returns how many did not succeed. Stepped
// replays never wait: whatever is unresolved was not forwarded.
func report(ctx context.Context, out io.Writer, calls []tagqueue.Call, completions []*tagqueue.Completion, stepped bool) int {
	failed := 0
	for i, c := range completions {
		var (
			msg string
			err error
		)
		if stepped {
			res, ok := c.Result()
			if !ok {
				res.Err = fmt.Errorf("not forwarded")
			}
			msg, err = res.Message, res.Err
		} else {
			msg, err = c.Wait(ctx)
		}

		method := calls[i].Kind().Method()
		if err != nil {
			failed++
			fmt.Fprintf(out, "%d. %s: error: %v\n", i+1, method, err)
			continue
		}
		fmt.Fprintf(out, "%d. %s: ok: %s\n", i+1, method, msg)
	}
	return failed
}

func dumpDataLayer(ctx context.Context, out io.Writer, store datalayer.Store) error {
	entries, err := store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read data layer: %w", err)
	}
	data, err := json.MarshalIndent(map[string]any{
		"entries":  entries,
		"snapshot": datalayer.Snapshot(entries),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}
