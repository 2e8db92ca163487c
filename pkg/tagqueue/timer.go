package tagqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrTimerClosed is returned when arming a timer that has been shut down
var ErrTimerClosed = errors.New("timer closed")

// Timer arms periodic ticks
type Timer interface {
	Arm(interval time.Duration, tick func()) (TimerHandle, error)
}

// TimerHandle owns one periodic tick registration. Release is idempotent.
type TimerHandle interface {
	Release()
}

// CronTimer schedules ticks on a robfig/cron scheduler. Intervals have second
// granularity: anything below one second runs every second.
type CronTimer struct {
	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	closed  bool
	logger  zerolog.Logger
}

// NewCronTimer creates a timer whose ticks never overlap: a tick that is still
// running when the next one is due causes that next one to be skipped.
func NewCronTimer(logger zerolog.Logger) *CronTimer {
	logger = logger.With().Str("component", "tagqueue-timer").Logger()
	cl := cronLogger{logger: logger}
	return &CronTimer{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger: logger,
	}
}

// Arm registers tick to run every interval
func (t *CronTimer) Arm(interval time.Duration, tick func()) (TimerHandle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", interval)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTimerClosed
	}

	id := t.cron.Schedule(cron.Every(interval), cron.FuncJob(tick))
	if !t.started {
		t.cron.Start()
		t.started = true
	}

	t.logger.Debug().Int("entryId", int(id)).Dur("interval", interval).Msg("Tick armed")
	return &cronHandle{timer: t, id: id}, nil
}

// Entries returns the number of registered ticks
func (t *CronTimer) Entries() int {
	return len(t.cron.Entries())
}

// Close stops the scheduler and waits for a running tick to return
func (t *CronTimer) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	stopped := t.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timer shutdown: %w", ctx.Err())
	}
}

type cronHandle struct {
	once  sync.Once
	timer *CronTimer
	id    cron.EntryID
}

func (h *cronHandle) Release() {
	h.once.Do(func() {
		h.timer.cron.Remove(h.id)
		h.timer.logger.Debug().Int("entryId", int(h.id)).Msg("Tick released")
	})
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var (
	defaultTimer     *CronTimer
	defaultTimerOnce sync.Once
)

// DefaultTimer returns the process-wide cron timer used when none is configured
func DefaultTimer() *CronTimer {
	defaultTimerOnce.Do(func() {
		defaultTimer = NewCronTimer(log.Logger)
	})
	return defaultTimer
}
