package tagqueue

import (
	"sort"
	"sync"
	"time"
)

// ManualTimer only ticks when Fire is called. Hosts that already own an event loop
// can drive the dispatcher with it; tests use it to step ticks deterministically.
type ManualTimer struct {
	mu     sync.Mutex
	nextID int
	arms   int
	active map[int]func()
}

// NewManualTimer creates a timer with no armed ticks
func NewManualTimer() *ManualTimer {
	return &ManualTimer{active: make(map[int]func())}
}

// Arm registers tick; the interval is ignored
func (t *ManualTimer) Arm(_ time.Duration, tick func()) (TimerHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.arms++
	t.active[t.nextID] = tick
	return &manualHandle{timer: t, id: t.nextID}, nil
}

// Fire runs every armed tick once, in arming order, and returns how many ran
func (t *ManualTimer) Fire() int {
	t.mu.Lock()
	ids := make([]int, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ticks := make([]func(), 0, len(ids))
	for _, id := range ids {
		ticks = append(ticks, t.active[id])
	}
	t.mu.Unlock()

	for _, tick := range ticks {
		tick()
	}
	return len(ticks)
}

// Active returns the number of armed ticks
func (t *ManualTimer) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Arms returns how many times Arm has been called
func (t *ManualTimer) Arms() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arms
}

type manualHandle struct {
	timer *ManualTimer
	id    int
}

func (h *manualHandle) Release() {
	h.timer.mu.Lock()
	defer h.timer.mu.Unlock()
	delete(h.timer.active, h.id)
}
