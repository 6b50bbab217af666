// Package storetest 所有store_operator实现共用的行为测试
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/stretchr/testify/require"
)

// Run newOperator每次返回一个空的存储
func Run(t *testing.T, newOperator func(t *testing.T) store_operator.Operator) {
	t.Run("Job", func(t *testing.T) { testJob(t, newOperator(t)) })
	t.Run("Worker", func(t *testing.T) { testWorker(t, newOperator(t)) })
	t.Run("TimerPoint", func(t *testing.T) { testTimerPoint(t, newOperator(t)) })
	t.Run("TaggedTimerPoint", func(t *testing.T) { testTaggedTimerPoint(t, newOperator(t)) })
	t.Run("AgentLease", func(t *testing.T) { testAgentLease(t, newOperator(t)) })
	t.Run("NestedTx", func(t *testing.T) { testNestedTx(t, newOperator(t)) })
}

// 存储中的时间只保证到秒
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

func insertJob(t *testing.T, op store_operator.Operator, name, tag string, parallel int) *model.Job {
	job := model.NewJob(name, base)
	job.Tag = tag
	job.Parallel = parallel
	require.NoError(t, op.InsertJob(context.Background(), job))
	require.NotZero(t, job.ID)
	return job
}

func bindWorker(t *testing.T, op store_operator.Operator, jobID uint, slot, pid int) *model.Worker {
	worker := &model.Worker{JobID: jobID, SlotID: slot}
	worker.Bind(pid, "w", false, base.Add(time.Duration(pid)*time.Second))
	require.NoError(t, op.SaveWorker(context.Background(), worker))
	return worker
}

func testJob(t *testing.T, op store_operator.Operator) {
	ctx := context.Background()
	job := insertJob(t, op, "job-a", "", 2)
	other := insertJob(t, op, "job-b", "tag", 1)
	require.NotEqual(t, job.ID, other.ID)

	err := op.InsertJob(ctx, model.NewJob("job-a", base))
	require.True(t, errors.Is(err, store_operator.ErrAlreadyExists), "%v", err)

	fetched, err := op.FetchJobByName(ctx, "job-a")
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
	require.Equal(t, 2, fetched.Parallel)
	require.Equal(t, constance.JobStatusSubmitted, fetched.Status)
	require.True(t, base.Equal(fetched.SubmitTime))
	require.True(t, fetched.StartTime.IsZero())

	_, err = op.FetchJobByName(ctx, "missing")
	require.ErrorIs(t, err, store_operator.ErrNotFound)
	_, err = op.FetchJobByID(ctx, 9999)
	require.ErrorIs(t, err, store_operator.ErrNotFound)

	fetched.Status = constance.JobStatusRunning
	fetched.StartTime = base.Add(time.Minute)
	fetched.Started = 2
	fetched.Active = 2
	fetched.StarterInterval = 1500 * time.Millisecond
	fetched.ErrorMessage = "boom"
	require.NoError(t, op.UpdateJob(ctx, fetched))

	locked, err := op.LockJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constance.JobStatusRunning, locked.Status)
	require.True(t, base.Add(time.Minute).Equal(locked.StartTime))
	require.Equal(t, 2, locked.Started)
	require.Equal(t, 1500*time.Millisecond, locked.StarterInterval)
	require.Equal(t, "boom", locked.ErrorMessage)

	//零值也要覆盖
	locked.ErrorMessage = ""
	locked.Active = 0
	require.NoError(t, op.UpdateJob(ctx, locked))
	fetched, err = op.FetchJobByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "", fetched.ErrorMessage)
	require.Equal(t, 0, fetched.Active)

	all, err := op.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "job-a", all[0].Name)

	running, err := op.FindJobsByStatus(ctx, constance.JobStatusRunning, constance.JobStatusWaitingForAbort)
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, job.ID, running[0].ID)

	tagged, err := op.FindJobsByTag(ctx, "tag")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	require.Equal(t, "job-b", tagged[0].Name)
}

func testWorker(t *testing.T, op store_operator.Operator) {
	ctx := context.Background()
	job := insertJob(t, op, "job", "", 3)

	bindWorker(t, op, job.ID, 2, 302)
	first := bindWorker(t, op, job.ID, 0, 300)
	bindWorker(t, op, job.ID, 1, 301)

	workers, err := op.FetchWorkers(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, workers, 3)
	for i, w := range workers {
		require.Equal(t, i, w.SlotID)
	}

	found, err := op.FetchWorkerByProcessID(ctx, 300)
	require.NoError(t, err)
	require.Equal(t, 0, found.SlotID)
	require.Equal(t, job.ID, found.JobID)
	_, err = op.FetchWorkerByProcessID(ctx, 0)
	require.ErrorIs(t, err, store_operator.ErrNotFound)

	history := first.Archive(1, constance.FinishReasonTimeout, base.Add(time.Hour))
	require.NoError(t, op.InsertWorkerHistory(ctx, history))
	require.NotZero(t, history.ID)
	require.NoError(t, op.SaveWorker(ctx, first))

	_, err = op.FetchWorkerByProcessID(ctx, 300)
	require.ErrorIs(t, err, store_operator.ErrNotFound)
	workers, err = op.FetchWorkers(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, workers, 3)
	require.False(t, workers[0].Bound())
	require.True(t, base.Add(time.Hour).Equal(workers[0].EndTime))
	require.Equal(t, constance.FinishReasonTimeout, workers[0].FinishReason)

	histories, err := op.FetchWorkerHistory(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	require.Equal(t, 300, histories[0].ProcessID)
	require.Equal(t, 1, histories[0].ExitCode)
	require.Equal(t, constance.FinishReasonTimeout, histories[0].FinishReason)
}

func testTimerPoint(t *testing.T, op store_operator.Operator) {
	ctx := context.Background()
	job := insertJob(t, op, "job", "", 3)
	other := insertJob(t, op, "other", "", 1)
	for slot := 0; slot < 3; slot++ {
		bindWorker(t, op, job.ID, slot, 400+slot)
	}
	bindWorker(t, op, other.ID, 0, 500)
	scope := model.ScopeOf(job)
	point := "p1"

	require.ErrorIs(t, op.SetTimerPoint(ctx, job.ID, 9, &point), store_operator.ErrNotFound)
	require.NoError(t, op.SetTimerPoint(ctx, job.ID, 0, &point))
	require.NoError(t, op.SetTimerPoint(ctx, job.ID, 1, &point))
	//重复设置同样的值不算找不到
	require.NoError(t, op.SetTimerPoint(ctx, job.ID, 1, &point))
	require.NoError(t, op.SetTimerPoint(ctx, other.ID, 0, &point))

	count, err := op.CountAtTimerPoint(ctx, scope, point)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	released, err := op.ReleaseTimerPoint(ctx, scope, point)
	require.NoError(t, err)
	require.Equal(t, 2, released)
	released, err = op.ReleaseTimerPoint(ctx, scope, point)
	require.NoError(t, err)
	require.Zero(t, released)
	//放行不能改写调用方传入的变量
	require.Equal(t, "p1", point)
	unrelated, err := op.ReleaseTimerPoint(ctx, model.ScopeOf(other), "nothing-here")
	require.NoError(t, err)
	require.Zero(t, unrelated)
	require.Equal(t, "p1", point)

	w, err := op.FetchWorkerByProcessID(ctx, 400)
	require.NoError(t, err)
	require.True(t, w.Released())
	w, err = op.FetchWorkerByProcessID(ctx, 402)
	require.NoError(t, err)
	require.Nil(t, w.TimerPoint)
	w, err = op.FetchWorkerByProcessID(ctx, 500)
	require.NoError(t, err)
	require.True(t, w.AtTimerPoint(point))

	require.NoError(t, op.SetTimerPoint(ctx, job.ID, 0, nil))
	w, err = op.FetchWorkerByProcessID(ctx, 400)
	require.NoError(t, err)
	require.Nil(t, w.TimerPoint)
}

func testTaggedTimerPoint(t *testing.T, op store_operator.Operator) {
	ctx := context.Background()
	a := insertJob(t, op, "a", "shared", 1)
	b := insertJob(t, op, "b", "shared", 1)
	c := insertJob(t, op, "c", "", 1)
	bindWorker(t, op, a.ID, 0, 600)
	bindWorker(t, op, b.ID, 0, 601)
	bindWorker(t, op, c.ID, 0, 602)
	//没有绑定进程的slot不参与
	idle := bindWorker(t, op, b.ID, 1, 603)
	idle.Archive(0, constance.FinishReasonNormal, base)
	require.NoError(t, op.SaveWorker(ctx, idle))

	point := "sync"
	for _, w := range []struct {
		jobID uint
		slot  int
	}{{a.ID, 0}, {b.ID, 0}, {c.ID, 0}} {
		require.NoError(t, op.SetTimerPoint(ctx, w.jobID, w.slot, &point))
	}
	scope := model.ScopeOf(a)
	require.True(t, scope.Tagged())

	count, err := op.CountAtTimerPoint(ctx, scope, point)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	released, err := op.ReleaseTimerPoint(ctx, scope, point)
	require.NoError(t, err)
	require.Equal(t, 2, released)
	require.Equal(t, "sync", point)
	released, err = op.ReleaseTimerPoint(ctx, scope, point)
	require.NoError(t, err)
	require.Zero(t, released)

	w, err := op.FetchWorkerByProcessID(ctx, 602)
	require.NoError(t, err)
	require.True(t, w.AtTimerPoint(point))
}

func testAgentLease(t *testing.T, op store_operator.Operator) {
	ctx := context.Background()
	_, err := op.FetchAgentLease(ctx)
	require.ErrorIs(t, err, store_operator.ErrNotFound)

	require.NoError(t, op.SaveAgentLease(ctx, &model.AgentLease{InstanceID: "a", HeartbeatAt: base}))
	require.NoError(t, op.SaveAgentLease(ctx, &model.AgentLease{InstanceID: "a", HeartbeatAt: base.Add(time.Second)}))
	lease, err := op.FetchAgentLease(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", lease.InstanceID)
	require.True(t, base.Add(time.Second).Equal(lease.HeartbeatAt))

	//不能删除别人的租约
	require.NoError(t, op.DeleteAgentLease(ctx, "b"))
	_, err = op.FetchAgentLease(ctx)
	require.NoError(t, err)

	require.NoError(t, op.DeleteAgentLease(ctx, "a"))
	_, err = op.FetchAgentLease(ctx)
	require.ErrorIs(t, err, store_operator.ErrNotFound)
}

func testNestedTx(t *testing.T, op store_operator.Operator) {
	ctx, err := op.OnTxStart(context.Background())
	require.NoError(t, err)
	inner, err := op.OnTxStart(ctx)
	require.NoError(t, err)

	job := model.NewJob("tx", base)
	require.NoError(t, op.InsertJob(inner, job))
	require.NoError(t, op.OnTxFinish(inner))
	require.NoError(t, op.OnTxFinish(ctx))

	fetched, err := op.FetchJobByName(context.Background(), "tx")
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
}
