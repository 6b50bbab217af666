package service

import (
	"context"
	"testing"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/stretchr/testify/require"
)

func TestCreateAndConfigureJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.jobs.CreateJob(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, constance.JobStatusSubmitted, job.Status)
	require.Equal(t, h.clock.Now(), job.SubmitTime)

	_, err = h.jobs.CreateJob(ctx, "job1")
	require.ErrorIs(t, err, ErrJobExists)
	_, err = h.jobs.CreateJob(ctx, "all")
	require.ErrorIs(t, err, ErrInvalidParam)
	_, err = h.jobs.CreateJob(ctx, " ")
	require.ErrorIs(t, err, ErrInvalidParam)

	job, err = h.jobs.ConfigureJob(ctx, "job1", map[string]string{"parallel": "3", "timeout": "1.5"})
	require.NoError(t, err)
	require.Equal(t, 3, job.Parallel)
	require.Equal(t, 1500*time.Millisecond, job.Timeout)

	_, err = h.jobs.ConfigureJob(ctx, "job1", map[string]string{"parallel": "2", "nonsense": "1"})
	require.ErrorIs(t, err, ErrUnknownParam)
	require.Equal(t, 3, h.job("job1").Parallel)

	_, err = h.jobs.ConfigureJob(ctx, "missing", map[string]string{"parallel": "2"})
	require.ErrorIs(t, err, ErrJobNotFound)

	h.startJob("job1")
	_, err = h.jobs.ConfigureJob(ctx, "job1", map[string]string{"parallel": "2"})
	require.ErrorIs(t, err, ErrJobNotSubmitted)
}

func TestTransitAllJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createJob("job1", map[string]string{})
	h.createJob("job2", map[string]string{})

	count, err := h.jobs.StartJob(ctx, "all")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	//已经start过的Job不受影响
	count, err = h.jobs.StartJob(ctx, "ALL")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	count, err = h.jobs.AbortJob(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = h.jobs.ShutdownJob(ctx, "all")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, constance.JobStatusWaitingForAbort, h.job("job1").Status)
	require.Equal(t, constance.JobStatusWaitingForShutdown, h.job("job2").Status)

	_, err = h.jobs.StartJob(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	jobs, err := h.jobs.ShowJob(ctx, "all")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}

func TestWaitJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createJob("job1", map[string]string{})
	h.createJob("idle", map[string]string{})

	require.ErrorIs(t, h.jobs.WaitJob(ctx, "missing", 0), ErrJobNotFound)
	//all不等待既没有start也没有startCron的Job
	require.NoError(t, h.jobs.WaitJob(ctx, "all", 0))

	h.startJob("job1")
	require.ErrorIs(t, h.jobs.WaitJob(ctx, "job1", 0), ErrAgentNotRunning)

	h.cycle()
	require.ErrorIs(t, h.jobs.WaitJob(ctx, "job1", 100*time.Millisecond), ErrWaitTimeout)

	h.launcher.exit(h.boundPids("job1")[0], 0, "")
	h.cycle()
	require.NoError(t, h.jobs.WaitJob(ctx, "job1", 0))
	require.NoError(t, h.jobs.WaitJob(ctx, "all", 0))

	//Agent的租约过期之后，等待未结束的Job立即报错
	h.createJob("job2", map[string]string{"startCron": "0 0 * * * *"})
	h.clock.Advance(time.Minute)
	require.ErrorIs(t, h.jobs.WaitJob(ctx, "all", 0), ErrAgentNotRunning)
}

func TestWaitJobReturnsWhenAgentFinishes(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{})
	h.startJob("job1")
	h.cycle()

	done := make(chan error, 1)
	go func() {
		done <- h.jobs.WaitJob(context.Background(), "job1", 5*time.Second)
	}()
	time.Sleep(50 * time.Millisecond)
	h.launcher.exit(h.boundPids("job1")[0], 0, "")
	h.cycle()
	require.NoError(t, <-done)
}

func TestShowWorkers(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "2", "loop": "2"})
	h.startJob("job1")
	h.cycle()
	h.launcher.exit(h.boundPids("job1")[0], 0, "")
	h.cycle()

	live, histories, err := h.jobs.ShowWorkers(context.Background(), "job1")
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Len(t, histories, 1)

	_, _, err = h.jobs.ShowWorkers(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}
