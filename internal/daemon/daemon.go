package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/tagqueue/internal/config"
	"github.com/harun/tagqueue/internal/logger"
	"github.com/harun/tagqueue/internal/observability"
	"github.com/harun/tagqueue/internal/tracing"
	"github.com/harun/tagqueue/pkg/datalayer"
	"github.com/harun/tagqueue/pkg/gtm"
	"github.com/harun/tagqueue/pkg/wsbridge"
	"github.com/rs/zerolog"
)

// Version is reported to the tracer and on /healthz
var Version = "dev"

// Daemon hosts the tag-manager bridge behind the WebSocket transport
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	store        datalayer.Store
	bridge       *gtm.Bridge
	bridgeServer *wsbridge.Server
	httpServer   *http.Server
	listener     net.Listener
	lifecycle    *LifecycleManager
	eventLoop    *EventLoop
	watcher      *config.Watcher

	tracingEnabled bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a daemon from cfg. Nothing listens until Start.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.Component("daemon"),
	}

	if cfg.Tracing.Enabled {
		err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     Version,
			SampleRatio: cfg.Tracing.SampleRatio,
			Exporter:    tracing.NewLogExporter(log.Zerolog()),
		})
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			d.log.Info().Msg("Tracing initialized successfully")
		}
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			d.shutdownTracing(context.Background())
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	store, err := datalayer.Open(datalayer.Config{
		Driver: cfg.DataLayer.Driver,
		Path:   cfg.DataLayer.Path,
	})
	if err != nil {
		d.shutdownTracing(context.Background())
		_ = observability.ResetAuditLogger()
		return nil, fmt.Errorf("failed to open data layer: %w", err)
	}
	d.store = store
	d.bridge = gtm.NewBridge(store, log.Zerolog())

	var opts []wsbridge.HandlerOption
	if cfg.Bridge.SharedSecret != "" {
		opts = append(opts, wsbridge.RequireSecret(cfg.Bridge.SharedSecret))
	}
	d.bridgeServer = wsbridge.Handler(d.bridge, log.Zerolog(), opts...)

	d.lifecycle = NewLifecycleManager(cfg.DataDir, cfg.PIDFile(), d.log)
	d.eventLoop = NewEventLoop(d, defaultMaintenanceInterval)

	return d, nil
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/bridge", d.bridgeServer)
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/datalayer", d.handleDataLayer)
	if d.config.Metrics.Enabled {
		mux.Handle("/metrics", observability.MetricsHandler())
	}
	return mux
}

// Start binds the listen address and serves the bridge
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}

	traceID := tracing.NewTraceID()
	logger := d.log.With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting tagqueue daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	listener, err := net.Listen("tcp", d.config.Server.Addr())
	if err != nil {
		_ = d.lifecycle.Stop()
		d.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", d.config.Server.Addr(), err)
	}

	d.listener = listener
	d.httpServer = &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Bridge server stopped unexpectedly")
		}
	}()
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().
		Str("addr", listener.Addr().String()).
		Bool("secret", d.config.Bridge.SharedSecret != "").
		Str("dataLayer", d.config.DataLayer.Driver).
		Msg("Daemon started successfully")

	return nil
}

// WatchConfig reloads the logging level whenever the config file changes.
// Other settings take effect on the next start.
func (d *Daemon) WatchConfig(loader *config.Loader) error {
	w, err := config.NewWatcher(loader, 0, d.applyConfig, d.log)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()
	return nil
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		d.log.Warn().Err(err).Msg("Ignoring reloaded log level")
		return
	}
	observability.RecordConfigAudit(context.Background(), "reload", map[string]any{
		"level": cfg.Logging.Level,
	})
	d.log.Info().Str("level", cfg.Logging.Level).Msg("Config reloaded")
}

// Stop closes bridge connections, stops serving and releases the data layer
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	watcher := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.log.With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping tagqueue daemon")

	var errs []error

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	// Hijacked connections are not tracked by http.Server
	d.bridgeServer.Close()
	if err := d.httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown bridge server")
		errs = append(errs, err)
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-ctx.Done():
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close data layer")
		errs = append(errs, err)
	}
	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
		errs = append(errs, err)
	}
	d.shutdownTracing(ctx)
	if err := observability.ResetAuditLogger(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")
	return errors.Join(errs...)
}

func (d *Daemon) shutdownTracing(ctx context.Context) {
	if !d.tracingEnabled {
		return
	}
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.log.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Wait blocks until SIGINT, SIGTERM or ctx is done
func (d *Daemon) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.log.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
	}
}

// Addr returns the bound listen address, or nil before Start
func (d *Daemon) Addr() net.Addr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Bridge returns the hosted tag-manager bridge
func (d *Daemon) Bridge() *gtm.Bridge {
	return d.bridge
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running     bool          `json:"running"`
	Uptime      time.Duration `json:"uptime"`
	StartTime   time.Time     `json:"startTime"`
	Version     string        `json:"version"`
	Connections int           `json:"connections"`
	Initialized bool          `json:"initialized"`
	ContainerID string        `json:"containerId,omitempty"`
}

func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:     d.running,
		Version:     Version,
		Connections: d.bridgeServer.Connections(),
		Initialized: d.bridge.Initialized(),
		ContainerID: d.bridge.ContainerID(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"daemon": d.Status(),
	})
}

func (d *Daemon) handleDataLayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, err := d.store.Entries(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"pending":  len(datalayer.Pending(entries)),
		"snapshot": datalayer.Snapshot(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
