package service

import (
	"context"
	"testing"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/stretchr/testify/require"
)

func waitAll(t *testing.T, h *harness, point string, pids ...int) {
	errs := make(chan error, len(pids))
	for _, pid := range pids {
		go func(pid int) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs <- h.barriers.WaitAtBarrier(ctx, pid, point)
		}(pid)
	}
	for range pids {
		require.NoError(t, <-errs)
	}
}

func TestBarrierReleasesParallelWorkers(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "2"})
	h.startJob("job1")
	h.cycle()
	pids := h.boundPids("job1")
	require.Len(t, pids, 2)

	waitAll(t, h, "checkpoint", pids...)

	workers, err := h.store.FetchWorkers(context.Background(), h.job("job1").ID)
	require.NoError(t, err)
	for _, w := range workers {
		require.Nil(t, w.TimerPoint)
	}

	//同一个名字可以再次使用
	waitAll(t, h, "checkpoint", pids...)
}

func TestBarrierTimeoutWithdrawsArrival(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "2"})
	h.startJob("job1")
	h.cycle()
	pids := h.boundPids("job1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := h.barriers.WaitAtBarrier(ctx, pids[0], "checkpoint")
	require.ErrorIs(t, err, ErrWaitTimeout)

	workers, err := h.store.FetchWorkers(context.Background(), h.job("job1").ID)
	require.NoError(t, err)
	require.Nil(t, workers[0].TimerPoint)

	count, err := h.store.CountAtTimerPoint(context.Background(), model.ScopeOf(h.job("job1")), "checkpoint")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestBarrierCanceled(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "2"})
	h.startJob("job1")
	h.cycle()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := h.barriers.WaitAtBarrier(ctx, h.boundPids("job1")[0], "checkpoint")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "Canceled", ErrorStatus(err))
}

func TestBarrierInvalidArguments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.ErrorIs(t, h.barriers.WaitAtBarrier(ctx, 1000, ""), ErrInvalidTimerPoint)
	require.ErrorIs(t, h.barriers.WaitAtBarrier(ctx, 1000, "  "), ErrInvalidTimerPoint)
	require.ErrorIs(t, h.barriers.WaitAtBarrier(ctx, 1000, constance.TimerPointReleased), ErrInvalidTimerPoint)
	require.ErrorIs(t, h.barriers.WaitAtBarrier(ctx, 1000, "checkpoint"), ErrWorkerNotFound)
}

func TestBarrierAcrossTaggedJobs(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"tag": "group"})
	h.createJob("job2", map[string]string{"tag": "group"})
	h.createJob("other", map[string]string{"tag": "solo", "parallel": "2"})
	h.startJob("job1")
	h.startJob("job2")
	h.startJob("other")
	h.cycle()

	p1 := h.boundPids("job1")[0]
	p2 := h.boundPids("job2")[0]

	//只有一个Job的worker到达时不能放行
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.barriers.WaitAtBarrier(ctx, p1, "sync"), ErrWaitTimeout)

	waitAll(t, h, "sync", p1, p2)
}

func TestBarrierTaggedIgnoresClosedJobs(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"tag": "group"})
	h.createJob("job2", map[string]string{"tag": "group", "parallel": "3"})
	h.startJob("job1")
	_, err := h.jobs.ShutdownJob(context.Background(), "job2")
	require.NoError(t, err)
	h.cycle()
	require.Equal(t, constance.JobStatusShutdowned, h.job("job2").Status)

	waitAll(t, h, "sync", h.boundPids("job1")[0])
}

func TestBarrierRegisteredWorkersUseActiveCount(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "4"})
	for _, pid := range []int{501, 502} {
		_, err := h.workers.RegisterWorker(context.Background(), "job1", pid)
		require.NoError(t, err)
	}
	require.Equal(t, 2, h.job("job1").Active)

	waitAll(t, h, "ready", 501, 502)
}
