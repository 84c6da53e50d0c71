package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	l := newLifecycle()
	require.Equal(t, StateIdle, l.State())

	hooks := 0
	hook := func(_, _ State) { hooks++ }

	from, ok := l.transition(startTransition, hook)
	require.True(t, ok)
	require.Equal(t, StateIdle, from)
	require.Equal(t, StateRunning, l.State())

	_, ok = l.transition(startTransition, hook)
	require.False(t, ok, "start is only valid from idle")

	from, ok = l.transition(closeTransition, hook)
	require.True(t, ok)
	require.Equal(t, StateRunning, from)
	require.Equal(t, StateDraining, l.State())

	_, ok = l.transition(closeTransition, hook)
	require.False(t, ok)

	from, ok = l.transition(stopTransition, hook)
	require.True(t, ok)
	require.Equal(t, StateDraining, from)
	require.Equal(t, StateStopped, l.State())

	for _, next := range []func(State) (State, bool){startTransition, closeTransition, stopTransition} {
		_, ok = l.transition(next, hook)
		require.False(t, ok, "stopped is terminal")
	}
	require.Equal(t, 3, hooks)
}

func TestLifecycleCloseFromIdleStops(t *testing.T) {
	l := newLifecycle()
	_, ok := l.transition(closeTransition, nil)
	require.True(t, ok)
	require.Equal(t, StateStopped, l.State())
}

func TestStateAccepting(t *testing.T) {
	require.True(t, StateRunning.Accepting())
	for _, s := range []State{StateIdle, StateDraining, StateStopped} {
		require.False(t, s.Accepting(), s)
	}
}
