package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

// launchableSlots [0, parallel)中可以拉起的slot：从未运行过，或者空闲时间已经超过thinkTime
func launchableSlots(job *model.Job, workers []*model.Worker, now time.Time) []*model.Worker {
	bySlot := make(map[int]*model.Worker, len(workers))
	for _, w := range workers {
		bySlot[w.SlotID] = w
	}
	ret := make([]*model.Worker, 0, job.Parallel)
	for slot := 0; slot < job.Parallel; slot++ {
		w, ok := bySlot[slot]
		if !ok {
			ret = append(ret, &model.Worker{JobID: job.ID, SlotID: slot})
			continue
		}
		if idle, ok := w.IdleFor(now); ok && idle >= job.ThinkTime {
			ret = append(ret, w)
		}
	}
	return ret
}

// lastLaunchTime Agent拉起的worker中最近一次的拉起时间
func lastLaunchTime(job *model.Job, workers []*model.Worker) time.Time {
	var last time.Time
	for _, w := range workers {
		if w.SlotID < job.Parallel && !w.Registered && w.StartTime.After(last) {
			last = w.StartTime
		}
	}
	return last
}

// startWorkers 最多再拉起parallel*loop-started个。爬坡阶段（started<parallel）每starterInterval只拉起一个
func (s *ScheduleService) startWorkers(ctx context.Context, job *model.Job, workers []*model.Worker,
	now time.Time) error {
	budget := job.Planned() - job.Started
	if budget <= 0 {
		return nil
	}
	if job.Started < job.Parallel && job.StarterInterval > 0 {
		if last := lastLaunchTime(job, workers); !last.IsZero() && now.Sub(last) < job.StarterInterval {
			return nil
		}
		budget = 1
	}

	for _, worker := range launchableSlots(job, workers, now) {
		if budget <= 0 {
			break
		}
		budget--
		if err := s.launch(ctx, job, worker, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *ScheduleService) launch(ctx context.Context, job *model.Job, worker *model.Worker, now time.Time) error {
	tunables := s.statisticsService.Tunables()
	identity := newIdentity(job.Name, worker.SlotID)
	spec := &process_operator.LaunchSpec{
		ScriptPath:    job.ScriptFullPath,
		IdentityLabel: identity,
		Credentials:   tunables.Credentials,
		CommandMap:    tunables.CommandMap,
		Store:         tunables.StoreConf,
		TraceContext:  util.TraceCtx2String(ctx),
	}
	if tunables.LogDir != "" {
		spec.LogPath = filepath.Join(tunables.LogDir, fmt.Sprintf("%s_%d_%d.log", job.Name, worker.SlotID, job.Started+1))
	}

	job.Started++
	pid, err := s.launcher.Launch(spec)
	if err != nil {
		//拉起失败算作一次失败的执行，slot记录结束时间，thinkTime之后再试
		klog.Errorf("launch worker %v of job %v error:%v", identity, job.Name, err)
		s.statisticsService.OnLaunch(false)
		job.Finished++
		job.Failed++
		job.ErrorMessage = fmt.Sprintf("launch worker %v error: %v", identity, err)
		worker.Bind(0, identity, false, now)
		history := worker.Archive(constance.ExitCodeUnknown, constance.FinishReasonNormal, now)
		if err = s.storeOperator.InsertWorkerHistory(ctx, history); err != nil {
			return err
		}
		return s.storeOperator.SaveWorker(ctx, worker)
	}

	s.statisticsService.OnLaunch(true)
	worker.Bind(pid, identity, false, now)
	if err = s.storeOperator.SaveWorker(ctx, worker); err != nil {
		//进程已经起来了但是没有记录下来，杀掉避免变成无人监督的进程
		_ = s.launcher.Terminate(pid)
		s.launcher.Release(pid)
		return err
	}
	job.Active++
	klog.Debugf("job %v launched worker %v at slot %v, pid:%v", job.Name, identity, worker.SlotID, pid)
	return nil
}
