// Package gtm is an in-process tag-manager bridge. It executes forwarded calls against a
// data layer the way the mobile container bridge does, so a dispatcher can run without a
// native host attached.
package gtm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/tagqueue/internal/observability"
	"github.com/harun/tagqueue/internal/tracing"
	"github.com/harun/tagqueue/pkg/datalayer"
	"github.com/harun/tagqueue/pkg/tagqueue"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotInitialized is returned for calls made before initGTM or after exitGTM
	ErrNotInitialized = errors.New("not initialized")
	// ErrUnsupportedMethod is returned for methods the bridge does not implement
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// ContentNamePaymentResponse is the screen reported with every transaction
const ContentNamePaymentResponse = "Payment Response"

type handlerFunc func(ctx context.Context, args []any) (string, error)

// Bridge implements tagqueue.Sink on top of a data layer
type Bridge struct {
	store  datalayer.Store
	logger zerolog.Logger

	mu          sync.Mutex
	initialized bool
	containerID string
	period      int

	handlers map[string]handlerFunc
}

// NewBridge creates an uninitialized bridge writing to store
func NewBridge(store datalayer.Store, logger zerolog.Logger) *Bridge {
	observability.EnsureRegistered()

	b := &Bridge{
		store:  store,
		logger: logger.With().Str("component", "gtm").Logger(),
	}
	b.handlers = map[string]handlerFunc{
		"dispatch":           b.dispatch,
		"trackEvent":         b.trackEvent,
		"trackPage":          b.trackPage,
		"pushEvent":          b.pushEvent,
		"pushImpressions":    b.pushImpressions,
		"pushProductClick":   b.pushProductClick,
		"pushDetailView":     b.pushDetailView,
		"pushAddToCart":      b.pushAddToCart,
		"pushRemoveFromCart": b.pushRemoveFromCart,
		"pushCheckout":       b.pushCheckout,
		"pushTransaction":    b.pushTransaction,
	}
	return b
}

// Invoke executes inv against the data layer and resolves reply before returning. Store
// writes happen inside the dispatcher tick that forwarded inv.
func (b *Bridge) Invoke(ctx context.Context, inv tagqueue.Invocation, reply *tagqueue.Completion) {
	ctx, span := tracing.StartSpan(ctx, "gtm.invoke", attribute.String("method", inv.Method))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, b.logger)

	message, err := b.execute(ctx, inv)
	observability.RecordBridgeCall(inv.Method, err == nil)
	observability.RecordBridgeAudit(ctx, inv.Method, b.ContainerID(), err == nil, map[string]any{
		"callId": inv.CallID,
	})
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Bridge call failed")
		reply.Fail(err)
		return
	}

	logger.Debug().Str("result", message).Msg("Bridge call succeeded")
	reply.Succeed(message)
}

func (b *Bridge) execute(ctx context.Context, inv tagqueue.Invocation) (string, error) {
	if inv.Namespace != "" && inv.Namespace != tagqueue.Namespace {
		return "", fmt.Errorf("%w: %s.%s", ErrUnsupportedMethod, inv.Namespace, inv.Method)
	}

	switch inv.Method {
	case "initGTM":
		return b.initGTM(inv.Args)
	case "exitGTM":
		b.mu.Lock()
		b.initialized = false
		b.mu.Unlock()
		b.logger.Info().Msg("Tag manager exited")
		return "exitGTM", nil
	}

	handler, ok := b.handlers[inv.Method]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, inv.Method)
	}
	if !b.Initialized() {
		return "", fmt.Errorf("%s failed - %w", inv.Method, ErrNotInitialized)
	}

	message, err := handler(ctx, inv.Args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", inv.Method, err)
	}
	return message, nil
}

func (b *Bridge) initGTM(args []any) (string, error) {
	var (
		containerID string
		period      int
	)
	if err := decodeArgs(args, &containerID, &period); err != nil {
		return "", fmt.Errorf("initGTM: %w", err)
	}
	if containerID == "" {
		return "", errors.New("initGTM: container id is required")
	}

	b.mu.Lock()
	b.initialized = true
	b.containerID = containerID
	b.period = period
	b.mu.Unlock()

	b.logger.Info().Str("containerId", containerID).Int("period", period).Msg("Container loaded")
	return fmt.Sprintf("initGTM - id = %s; interval = %d seconds", containerID, period), nil
}

// Initialized reports whether initGTM has run without a later exitGTM
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// ContainerID returns the container loaded by the last initGTM
func (b *Bridge) ContainerID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.containerID
}

// Period returns the dispatch period passed to the last initGTM, in seconds
func (b *Bridge) Period() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.period
}

// Store returns the data layer the bridge writes to
func (b *Bridge) Store() datalayer.Store {
	return b.store
}
