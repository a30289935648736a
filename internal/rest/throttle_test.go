package rest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGlobalThrottleReplaysInOrder(t *testing.T) {
	timers := &manualTimers{}
	throttle := &GlobalThrottle{after: timers.after}

	var order []string
	require.False(t, throttle.Defer(func() { order = append(order, "before") }))

	throttle.Block(0)
	require.True(t, throttle.Blocked())
	require.Equal(t, time.Millisecond, timers.delays[0])

	for _, name := range []string{"A", "B", "C"} {
		name := name
		require.True(t, throttle.Defer(func() { order = append(order, name) }))
	}
	require.Equal(t, 3, throttle.Pending())
	require.Equal(t, []string{"before"}, order)

	timers.fire()
	require.False(t, throttle.Blocked())
	require.Equal(t, []string{"before", "A", "B", "C"}, order)
	require.Zero(t, throttle.Pending())
}

func TestGlobalThrottleBlockRearms(t *testing.T) {
	timers := &manualTimers{}
	throttle := &GlobalThrottle{after: timers.after}

	throttle.Block(2 * time.Second)
	throttle.Block(5 * time.Second)
	require.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second}, timers.delays)
	require.True(t, throttle.Blocked())
}
