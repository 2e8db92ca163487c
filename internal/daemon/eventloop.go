package daemon

import (
	"context"
	"time"

	"github.com/harun/tagqueue/pkg/datalayer"
)

const defaultMaintenanceInterval = 30 * time.Second

// EventLoop periodically reports bridge and data-layer state
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon, interval time.Duration) *EventLoop {
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	return &EventLoop{
		daemon:   d,
		interval: interval,
	}
}

// Run runs the event loop until ctx is done
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.log.Info().Dur("interval", e.interval).Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.log.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks logs the pending push backlog
func (e *EventLoop) processTasks(ctx context.Context) {
	entries, err := e.daemon.store.Entries(ctx)
	if err != nil {
		e.daemon.log.Warn().Err(err).Msg("Failed to read data layer")
		return
	}

	if pending := len(datalayer.Pending(entries)); pending > 0 || e.daemon.bridgeServer.Connections() > 0 {
		e.daemon.log.Debug().
			Int("entries", len(entries)).
			Int("pending", pending).
			Int("connections", e.daemon.bridgeServer.Connections()).
			Bool("initialized", e.daemon.bridge.Initialized()).
			Msg("Bridge stats")
	}
}
