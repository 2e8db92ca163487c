package tagqueue

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTimer(t *testing.T) {
	timer := NewManualTimer()

	var a, b int
	ha, err := timer.Arm(time.Second, func() { a++ })
	require.NoError(t, err)
	_, err = timer.Arm(time.Second, func() { b++ })
	require.NoError(t, err)

	assert.Equal(t, 2, timer.Fire())
	ha.Release()
	ha.Release()
	assert.Equal(t, 1, timer.Fire())

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, timer.Active())
	assert.Equal(t, 2, timer.Arms())
}

func TestCronTimer_RejectsNonPositiveInterval(t *testing.T) {
	timer := NewCronTimer(zerolog.New(io.Discard))
	defer timer.Close(context.Background())

	_, err := timer.Arm(0, func() {})
	assert.Error(t, err)
}

func TestCronTimer_ArmAfterClose(t *testing.T) {
	timer := NewCronTimer(zerolog.New(io.Discard))
	require.NoError(t, timer.Close(context.Background()))

	_, err := timer.Arm(time.Second, func() {})
	assert.ErrorIs(t, err, ErrTimerClosed)
	assert.NoError(t, timer.Close(context.Background()))
}

func TestCronTimer_ReleaseRemovesEntry(t *testing.T) {
	timer := NewCronTimer(zerolog.New(io.Discard))
	defer timer.Close(context.Background())

	h, err := timer.Arm(time.Second, func() {})
	require.NoError(t, err)
	assert.Equal(t, 1, timer.Entries())

	h.Release()
	h.Release()
	assert.Eventually(t, func() bool { return timer.Entries() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCronTimer_Ticks(t *testing.T) {
	if testing.Short() {
		t.Skip("uses wall-clock ticks")
	}

	timer := NewCronTimer(zerolog.New(io.Discard))
	defer timer.Close(context.Background())

	var ticks atomic.Int32
	_, err := timer.Arm(time.Second, func() { ticks.Add(1) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
