package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAgentLeaseExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	standby := NewAgentService("standby-agent", h.store, h.stats)

	held, err := h.agent.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held)
	held, err = standby.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, held)

	alive, err := standby.Alive(ctx)
	require.NoError(t, err)
	require.True(t, alive)

	//续约
	h.clock.Advance(10 * time.Second)
	held, err = h.agent.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held)
	h.clock.Advance(10 * time.Second)
	held, err = standby.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, held)

	//过期之后被接管
	h.clock.Advance(6 * time.Second)
	held, err = standby.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held)
	require.ErrorIs(t, h.schedule.RunOnce(ctx), ErrAgentNotRunning)

	//只能释放自己的租约
	require.NoError(t, h.agent.Release(ctx))
	alive, err = h.agent.Alive(ctx)
	require.NoError(t, err)
	require.True(t, alive)

	require.NoError(t, standby.Release(ctx))
	alive, err = h.agent.Alive(ctx)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestStandbyDoesNotLaunch(t *testing.T) {
	h := newHarness(t)
	standby := NewAgentService("standby-agent", h.store, h.stats)
	held, err := standby.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, held)

	h.createJob("job1", map[string]string{})
	h.startJob("job1")
	require.ErrorIs(t, h.schedule.RunOnce(context.Background()), ErrAgentNotRunning)
	require.Empty(t, h.launcher.launched())
}
