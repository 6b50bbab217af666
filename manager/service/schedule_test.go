package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/stretchr/testify/require"
)

func TestJobRunsAllIterations(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "2", "loop": "2"})
	h.startJob("job1")

	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, 2, job.Started)
	require.Equal(t, 2, job.Active)
	require.Equal(t, filepath.Join(h.scriptDir, "worker.sh"), job.ScriptFullPath)

	specs := h.launcher.launched()
	require.Len(t, specs, 2)
	require.True(t, strings.HasPrefix(specs[0].IdentityLabel, "job1-0-"))
	require.True(t, strings.HasPrefix(specs[1].IdentityLabel, "job1-1-"))
	require.Equal(t, job.ScriptFullPath, specs[0].ScriptPath)
	require.Equal(t, "user/pass", specs[0].Credentials)

	//进程还在跑，不会拉起新的
	h.cycle()
	require.Equal(t, 2, h.job("job1").Started)

	for _, pid := range h.boundPids("job1") {
		h.launcher.exit(pid, 0, "")
	}
	h.clock.Advance(time.Second)
	h.cycle()
	job = h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, 4, job.Started)
	require.Equal(t, 2, job.Finished)
	require.Equal(t, 2, job.Active)

	for _, pid := range h.boundPids("job1") {
		h.launcher.exit(pid, 0, "")
	}
	h.clock.Advance(time.Second)
	h.cycle()
	job = h.job("job1")
	require.Equal(t, constance.JobStatusFinished, job.Status)
	require.Equal(t, 4, job.Finished)
	require.Equal(t, 0, job.Failed)
	require.Equal(t, 0, job.Active)
	require.Equal(t, h.clock.Now(), job.EndTime)
	require.Empty(t, h.boundPids("job1"))

	histories := h.histories("job1")
	require.Len(t, histories, 4)
	for _, history := range histories {
		require.Equal(t, constance.FinishReasonNormal, history.FinishReason)
		require.Equal(t, 0, history.ExitCode)
	}

	//终态之后不再处理
	h.cycle()
	require.Len(t, h.launcher.launched(), 4)
}

func TestWorkerFailureRecorded(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{})
	h.startJob("job1")
	h.cycle()

	pid := h.boundPids("job1")[0]
	h.launcher.exit(pid, 3, "syntax error near line 7")
	h.cycle()

	job := h.job("job1")
	require.Equal(t, constance.JobStatusFinished, job.Status)
	require.Equal(t, 1, job.Finished)
	require.Equal(t, 1, job.Failed)
	require.Contains(t, job.ErrorMessage, "syntax error near line 7")
	require.Equal(t, 3, h.histories("job1")[0].ExitCode)
}

func TestBlowoutFailsJob(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "2", "loop": "5", "blowoutThreshold": "2"})
	h.startJob("job1")
	h.cycle()

	pids := h.boundPids("job1")
	require.Len(t, pids, 2)
	h.launcher.exit(pids[0], 1, "first")
	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, 1, job.Failed)

	//仍然有进程在跑时，blowout只停止拉起，等它结束
	h.launcher.exit(h.boundPids("job1")[0], 1, "second")
	h.cycle()
	job = h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, 2, job.Failed)
	require.Equal(t, 3, job.Started)

	h.launcher.exit(h.boundPids("job1")[0], 0, "")
	h.cycle()
	job = h.job("job1")
	require.Equal(t, constance.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "blowout")
	require.Equal(t, 3, job.Started)
	require.Equal(t, 3, job.Finished)
}

func TestWorkerTimeout(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"timeout": "10"})
	h.startJob("job1")
	h.cycle()
	pid := h.boundPids("job1")[0]

	h.clock.Advance(10 * time.Second)
	h.cycle()
	require.True(t, h.launcher.isAlive(pid))

	h.clock.Advance(time.Second)
	h.cycle()
	require.False(t, h.launcher.isAlive(pid))
	require.Contains(t, h.launcher.terminated, pid)

	job := h.job("job1")
	require.Equal(t, constance.JobStatusFinished, job.Status)
	require.Equal(t, 1, job.Failed)
	histories := h.histories("job1")
	require.Len(t, histories, 1)
	require.Equal(t, constance.FinishReasonTimeout, histories[0].FinishReason)
}

func TestShutdownWaitsForRunningWorkers(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"loop": "3"})
	h.startJob("job1")
	h.cycle()

	count, err := h.jobs.ShutdownJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusWaitingForShutdown, job.Status)
	require.Equal(t, 1, job.Active)

	h.launcher.exit(h.boundPids("job1")[0], 0, "")
	h.cycle()
	job = h.job("job1")
	require.Equal(t, constance.JobStatusShutdowned, job.Status)
	require.Equal(t, 1, job.Started)
	require.Equal(t, 1, job.Finished)
}

func TestShutdownSubmittedJob(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{})
	_, err := h.jobs.ShutdownJob(context.Background(), "job1")
	require.NoError(t, err)
	h.cycle()
	require.Equal(t, constance.JobStatusShutdowned, h.job("job1").Status)
	require.Empty(t, h.launcher.launched())
}

func TestAbortKillsLaunchedAndDetachesRegistered(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"loop": "5"})
	h.startJob("job1")
	h.cycle()
	launched := h.boundPids("job1")[0]

	h.launcher.adopt(4242)
	_, err := h.workers.RegisterWorker(context.Background(), "job1", 4242)
	require.NoError(t, err)
	require.Equal(t, 2, h.job("job1").Active)

	count, err := h.jobs.AbortJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	//abort之后shutdown不再生效
	count, err = h.jobs.ShutdownJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusAborted, job.Status)
	require.Equal(t, 0, job.Active)
	require.Equal(t, 1, job.Finished)
	require.Equal(t, 1, job.Failed)
	require.False(t, h.launcher.isAlive(launched))
	require.True(t, h.launcher.isAlive(4242))
	require.Equal(t, []int{launched}, h.launcher.terminated)

	reasons := map[constance.FinishReason]int{}
	for _, history := range h.histories("job1") {
		reasons[history.FinishReason]++
	}
	require.Equal(t, map[constance.FinishReason]int{
		constance.FinishReasonAborted:  1,
		constance.FinishReasonDetached: 1,
	}, reasons)
}

func TestStarterIntervalRampsUp(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"parallel": "3", "starterInterval": "5"})
	h.startJob("job1")

	h.cycle()
	require.Equal(t, 1, h.job("job1").Started)
	h.clock.Advance(4 * time.Second)
	h.cycle()
	require.Equal(t, 1, h.job("job1").Started)
	h.clock.Advance(time.Second)
	h.cycle()
	require.Equal(t, 2, h.job("job1").Started)
	h.clock.Advance(5 * time.Second)
	h.cycle()
	require.Equal(t, 3, h.job("job1").Started)
	require.Len(t, h.boundPids("job1"), 3)
}

func TestThinkTimeDelaysRelaunch(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"loop": "2", "thinkTime": "10"})
	h.startJob("job1")
	h.cycle()

	h.launcher.exit(h.boundPids("job1")[0], 0, "")
	h.cycle()
	job := h.job("job1")
	require.Equal(t, 1, job.Started)
	require.Equal(t, 1, job.Finished)

	h.clock.Advance(9 * time.Second)
	h.cycle()
	require.Equal(t, 1, h.job("job1").Started)

	h.clock.Advance(time.Second)
	h.cycle()
	require.Equal(t, 2, h.job("job1").Started)
}

func TestCronStartsSubmittedJob(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"startCron": "*/10 * * * * *"})

	h.cycle()
	require.Equal(t, constance.JobStatusSubmitted, h.job("job1").Status)

	h.clock.Advance(7 * time.Second)
	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, h.clock.Now(), job.StartTime)
	require.Equal(t, 0, job.Started)

	h.cycle()
	require.Equal(t, 1, h.job("job1").Started)
}

func TestMissingScriptFailsJob(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"script": "missing.sh"})
	h.startJob("job1")

	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "missing.sh")
	require.Empty(t, h.launcher.launched())
}

func TestLaunchFailureCountsAsFailedIteration(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{})
	h.startJob("job1")
	h.launcher.launchErr = errLaunch

	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, 1, job.Started)
	require.Equal(t, 1, job.Finished)
	require.Equal(t, 1, job.Failed)
	require.Equal(t, 0, job.Active)
	require.Contains(t, job.ErrorMessage, errLaunch.Error())

	h.cycle()
	require.Equal(t, constance.JobStatusFinished, h.job("job1").Status)
	require.Len(t, h.histories("job1"), 1)
}

func TestRegisteredWorkerExitOnlyReleasesSlot(t *testing.T) {
	h := newHarness(t)
	h.createJob("job1", map[string]string{"loop": "3"})
	h.startJob("job1")
	h.launcher.adopt(4242)
	_, err := h.workers.RegisterWorker(context.Background(), "job1", 4242)
	require.NoError(t, err)
	h.cycle()

	h.launcher.exit(4242, 0, "")
	h.cycle()
	job := h.job("job1")
	require.Equal(t, 1, job.Active)
	require.Equal(t, 1, job.Started)
	require.Equal(t, 0, job.Finished)
}

func TestScheduleLoopStops(t *testing.T) {
	h := newHarness(t)
	h.stats.Tunables().ScheduleInterval = 10 * time.Millisecond
	h.createJob("job1", map[string]string{})
	h.startJob("job1")

	go h.schedule.Schedule()
	require.Eventually(t, func() bool {
		return h.job("job1").Started == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.schedule.Stop()
	h.schedule.Stop()
	select {
	case <-h.schedule.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("schedule loop did not stop")
	}
}

func TestBlowoutClosesJobWithLiveRegistrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createJob("job1", map[string]string{"loop": "5", "blowoutThreshold": "1"})
	h.startJob("job1")
	h.launcher.adopt(777)
	_, err := h.workers.RegisterWorker(ctx, "job1", 777)
	require.NoError(t, err)
	h.cycle()

	for _, pid := range h.boundPids("job1") {
		if pid != 777 {
			h.launcher.exit(pid, 1, "boom")
		}
	}
	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusFailed, job.Status)
	require.Equal(t, 1, job.Failed)
	require.Equal(t, 0, job.Active)
	require.True(t, h.launcher.isAlive(777))
	require.Empty(t, h.boundPids("job1"))

	//wait不会被注册的worker卡住
	require.NoError(t, h.jobs.WaitJob(ctx, "job1", 2*time.Second))
}

func TestShutdownClosesJobWithLiveRegistrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createJob("job1", map[string]string{"loop": "5"})
	h.startJob("job1")
	h.launcher.adopt(777)
	_, err := h.workers.RegisterWorker(ctx, "job1", 777)
	require.NoError(t, err)
	h.cycle()
	launched := h.boundPids("job1")

	_, err = h.jobs.ShutdownJob(ctx, "job1")
	require.NoError(t, err)
	h.cycle()
	//Agent拉起的worker还在跑，继续等
	require.Equal(t, constance.JobStatusWaitingForShutdown, h.job("job1").Status)

	for _, pid := range launched {
		if pid != 777 {
			h.launcher.exit(pid, 0, "")
		}
	}
	h.cycle()
	job := h.job("job1")
	require.Equal(t, constance.JobStatusShutdowned, job.Status)
	require.Equal(t, 0, job.Active)
	require.True(t, h.launcher.isAlive(777))

	reasons := map[constance.FinishReason]int{}
	for _, history := range h.histories("job1") {
		reasons[history.FinishReason]++
	}
	require.Equal(t, map[constance.FinishReason]int{
		constance.FinishReasonNormal:   1,
		constance.FinishReasonDetached: 1,
	}, reasons)
}

func TestBrokenCountersAreNotPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createJob("job1", map[string]string{})
	h.startJob("job1")

	job := h.job("job1")
	job.Finished = 3
	require.NoError(t, h.store.UpdateJob(ctx, job))
	h.cycle()

	job = h.job("job1")
	require.Equal(t, constance.JobStatusRunning, job.Status)
	require.Equal(t, 0, job.Started)
	require.Empty(t, h.launcher.launched())
}
