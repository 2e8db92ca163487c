package tagqueue

import (
	"context"
	"sync"
	"time"

	"github.com/harun/tagqueue/internal/observability"
	"github.com/harun/tagqueue/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTickInterval is the drain cadence when none is configured
const DefaultTickInterval = time.Second

// queuedCall is one entry in the queue
type queuedCall struct {
	id         string
	enqueuedAt time.Time
	call       Call
	ctx        context.Context
	completion *Completion
}

// Dispatcher queues tag-manager calls and forwards one per tick to a Sink
type Dispatcher struct {
	sink     Sink
	timer    Timer
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu         sync.Mutex
	queue      []*queuedCall
	handle     TimerHandle
	generation int
	running    bool
	idleWarned bool
	lastStamp  time.Time

	// tickMu serializes ticks
	tickMu sync.Mutex
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithTimer sets the timer that drives ticks. Defaults to DefaultTimer().
func WithTimer(t Timer) Option {
	return func(d *Dispatcher) {
		d.timer = t
	}
}

// WithTickInterval sets the fixed drain cadence
func WithTickInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClock overrides the clock used to stamp queued calls
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates an inert dispatcher forwarding to sink. Nothing drains until Init.
func New(sink Sink, opts ...Option) *Dispatcher {
	observability.EnsureRegistered()

	d := &Dispatcher{
		sink:     sink,
		interval: DefaultTickInterval,
		logger:   log.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.timer == nil {
		d.timer = DefaultTimer()
	}
	d.logger = d.logger.With().Str("component", "tagqueue").Logger()

	return d
}

// Init queues a start call and arms the drain tick immediately, replacing any held tick
func (d *Dispatcher) Init(accountID string, period int) *Completion {
	return d.Enqueue(Init{AccountID: accountID, Period: period})
}

// TrackEvent queues an interaction event. A value of -1 means no value.
func (d *Dispatcher) TrackEvent(category, action, label string, value int) *Completion {
	return d.Enqueue(TrackEvent{Category: category, Action: action, Label: label, Value: value})
}

// TrackPage queues a page view
func (d *Dispatcher) TrackPage(pageURL string) *Completion {
	return d.Enqueue(TrackPage{PageURL: pageURL})
}

// PushImpressions queues a product list impression
func (d *Dispatcher) PushImpressions(items []Product) *Completion {
	return d.Enqueue(PushImpressions{Items: items})
}

// PushProductClick queues a click on item within list
func (d *Dispatcher) PushProductClick(item Product, list string) *Completion {
	return d.Enqueue(PushProductClick{Item: item, List: list})
}

// PushDetailView queues a product detail view
func (d *Dispatcher) PushDetailView(item Product) *Completion {
	return d.Enqueue(PushDetailView{Item: item})
}

// PushAddToCart queues an add-to-cart priced in currencyCode
func (d *Dispatcher) PushAddToCart(item Product, currencyCode string) *Completion {
	return d.Enqueue(PushAddToCart{Item: item, CurrencyCode: currencyCode})
}

// PushRemoveFromCart queues a cart removal
func (d *Dispatcher) PushRemoveFromCart(item Product) *Completion {
	return d.Enqueue(PushRemoveFromCart{Item: item})
}

// PushCheckout queues a checkout step. option and screenName may be empty.
func (d *Dispatcher) PushCheckout(step int, products []Product, option, screenName string) *Completion {
	return d.Enqueue(PushCheckout{Step: step, Products: products, Option: option, ScreenName: screenName})
}

// PushTransaction queues a completed purchase
func (d *Dispatcher) PushTransaction(tx Transaction, items []Product) *Completion {
	return d.Enqueue(PushTransaction{Transaction: tx, Items: items})
}

// PushEvent queues a raw data-layer push
func (d *Dispatcher) PushEvent(data map[string]any) *Completion {
	return d.Enqueue(PushEvent{Data: data})
}

// Dispatch queues a flush request. It is forwarded in order like any other call.
func (d *Dispatcher) Dispatch() *Completion {
	return d.Enqueue(Dispatch{})
}

// Exit queues a shutdown. Once it is forwarded the tick stops.
func (d *Dispatcher) Exit() *Completion {
	return d.Enqueue(Exit{})
}

// Enqueue appends call to the tail of the queue
func (d *Dispatcher) Enqueue(call Call) *Completion {
	return d.EnqueueContext(context.Background(), call)
}

// EnqueueContext appends call to the tail of the queue. ctx only carries tracing values
// to the forward; its cancellation does not affect the call.
func (d *Dispatcher) EnqueueContext(ctx context.Context, call Call) *Completion {
	if ctx == nil {
		ctx = context.Background()
	}
	method := call.Kind().Method()

	ctx, span := tracing.StartSpan(ctx, "tagqueue.enqueue", attribute.String("method", method))
	defer span.End()

	id := tracing.NewCallID()
	ctx = tracing.Detach(tracing.NewCallContext(ctx, id, method))
	logger := tracing.LoggerFromContext(ctx, d.logger)

	item := &queuedCall{
		id:         id,
		call:       call,
		ctx:        ctx,
		completion: NewCompletion(),
	}

	d.mu.Lock()
	if call.Kind() == KindInit {
		d.armLocked()
	}
	item.enqueuedAt = d.stampLocked()
	d.queue = append(d.queue, item)
	queueSize := len(d.queue)
	warnIdle := !d.running && !d.idleWarned
	if warnIdle {
		d.idleWarned = true
	}
	d.mu.Unlock()

	logger.Debug().
		Int("queueSize", queueSize).
		Msg("Call enqueued")
	if warnIdle {
		logger.Warn().
			Int("queueSize", queueSize).
			Msg("Call queued while dispatcher is not running; it drains after the next Init")
	}

	observability.RecordEnqueue(method, queueSize)
	return item.completion
}

// stampLocked returns a creation time that never goes backwards
func (d *Dispatcher) stampLocked() time.Time {
	now := d.now()
	if now.Before(d.lastStamp) {
		now = d.lastStamp
	}
	d.lastStamp = now
	return now
}

// armLocked replaces any held tick with a fresh one
func (d *Dispatcher) armLocked() {
	if d.handle != nil {
		d.handle.Release()
		d.handle = nil
	}

	handle, err := d.timer.Arm(d.interval, d.onTick)
	if err != nil {
		d.running = false
		observability.SetRunning(false)
		d.logger.Error().Err(err).Dur("interval", d.interval).Msg("Failed to arm drain tick")
		return
	}

	d.handle = handle
	d.generation++
	d.running = true
	d.idleWarned = false
	observability.RecordArm()
	d.logger.Info().Dur("interval", d.interval).Int("generation", d.generation).Msg("Drain tick armed")
}

func (d *Dispatcher) onTick() {
	d.Tick(context.Background())
}

// Tick drains at most one call. It reports whether a call was forwarded.
func (d *Dispatcher) Tick(ctx context.Context) bool {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		observability.RecordIdleTick()
		return false
	}
	item := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	remaining := len(d.queue)
	d.mu.Unlock()

	d.forward(ctx, item, remaining)

	if item.call.Kind() == KindExit {
		d.stop()
	}
	return true
}

func (d *Dispatcher) forward(ctx context.Context, item *queuedCall, remaining int) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.NewContext(ctx, tracing.FromContext(item.ctx))
	inv := invocationFor(item.id, item.call)

	ctx, span := tracing.StartSpan(
		ctx,
		"tagqueue.forward",
		attribute.String("method", inv.Method),
		attribute.String("call_id", item.id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, d.logger)
	logger.Debug().
		Str("kind", item.call.Kind().String()).
		Dur("queued", d.now().Sub(item.enqueuedAt)).
		Int("remaining", remaining).
		Msg("Forwarding call")

	observability.RecordForward(inv.Method, remaining)
	d.sink.Invoke(ctx, inv, item.completion)
}

// stop releases whichever tick is held when the exit is forwarded, including one
// armed by an Init queued behind the exit.
func (d *Dispatcher) stop() {
	d.mu.Lock()
	if d.handle == nil {
		d.mu.Unlock()
		return
	}
	handle := d.handle
	generation := d.generation
	d.handle = nil
	d.running = false
	d.idleWarned = false
	d.mu.Unlock()

	handle.Release()
	observability.SetRunning(false)
	d.logger.Info().Int("generation", generation).Msg("Drain tick stopped after exit")
}

// Running reports whether the drain tick is armed
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Len returns the number of calls waiting to be forwarded
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Pending returns the kinds of the queued calls, head first
func (d *Dispatcher) Pending() []Kind {
	d.mu.Lock()
	defer d.mu.Unlock()

	kinds := make([]Kind, len(d.queue))
	for i, item := range d.queue {
		kinds[i] = item.call.Kind()
	}
	return kinds
}

// Process-wide instance
var (
	sharedMu         sync.Mutex
	sharedDispatcher *Dispatcher
)

// Bootstrap creates the process-wide dispatcher on first call and returns it.
// Later calls return the same instance and ignore their arguments.
func Bootstrap(sink Sink, opts ...Option) *Dispatcher {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedDispatcher == nil {
		sharedDispatcher = New(sink, opts...)
	}
	return sharedDispatcher
}

// Shared returns the process-wide dispatcher, or nil before Bootstrap
func Shared() *Dispatcher {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return sharedDispatcher
}
