package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

// ScheduleService Agent的调度循环。只有持有租约的进程运行它，也是唯一负责拉起worker和决定Job终态的地方
type ScheduleService struct {
	shutdownCh        chan struct{}
	doneCh            chan struct{}
	stopOnce          sync.Once
	storeOperator     store_operator.Operator
	launcher          process_operator.Launcher
	statisticsService *StatisticsService
	jobService        *JobService
	agentService      *AgentService
	scriptService     *ScriptService
	lock              *ProcessLock
}

func NewScheduleService(storeOperator store_operator.Operator, launcher process_operator.Launcher,
	statisticsService *StatisticsService, jobService *JobService, agentService *AgentService,
	scriptService *ScriptService, lock *ProcessLock) *ScheduleService {
	return &ScheduleService{
		shutdownCh:        make(chan struct{}),
		doneCh:            make(chan struct{}),
		storeOperator:     storeOperator,
		launcher:          launcher,
		statisticsService: statisticsService,
		jobService:        jobService,
		agentService:      agentService,
		scriptService:     scriptService,
		lock:              lock,
	}
}

func (s *ScheduleService) Schedule() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.statisticsService.GetScheduleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			if err := s.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrAgentNotRunning) {
				klog.Errorf("Schedule Error:%v", err)
			}
		}
	}
}

// Stop 通知调度循环退出，Done()在当前这一轮结束后关闭
func (s *ScheduleService) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdownCh)
	})
}

func (s *ScheduleService) Done() <-chan struct{} {
	return s.doneCh
}

// RunOnce 一轮调度：续约，然后逐个处理未结束的Job，每个Job的全部写入在一个事务中提交
func (s *ScheduleService) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.statisticsService.OnCycle(time.Since(start))
	}()
	ctx, span := util.StartSpan(ctx, s.statisticsService.Tracer(), "ScheduleCycle")
	defer span.End()

	held, err := s.agentService.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("renew agent lease error:%w", err)
	}
	if !held {
		klog.Warnf("agent lease held by another instance, %v skip scheduling", s.agentService.InstanceID())
		return ErrAgentNotRunning
	}

	jobs, err := s.storeOperator.FindJobsByStatus(ctx, constance.NonTerminalJobStatuses()...)
	if err != nil {
		return fmt.Errorf("fetch jobs error:%w", err)
	}
	for _, job := range jobs {
		s.lock.Lock()
		err = inTx(ctx, s.storeOperator, func(ctx context.Context) error {
			return s.evaluate(ctx, job.ID)
		})
		s.lock.Unlock()
		if err != nil {
			//这个Job本轮的写入已经回滚，下一轮重新处理
			klog.Errorf("evaluate job %v error:%v", job.Name, err)
		}
	}
	return nil
}

func (s *ScheduleService) evaluate(ctx context.Context, jobID uint) error {
	job, err := s.storeOperator.LockJob(ctx, jobID)
	if err != nil {
		return err
	}
	before := *job
	now := s.statisticsService.Now()

	switch {
	case job.Status.IsTerminal():
		return nil
	case job.Status == constance.JobStatusSubmitted:
		return s.checkCronStart(ctx, job, now)
	}

	workers, err := s.storeOperator.FetchWorkers(ctx, job.ID)
	if err != nil {
		return err
	}
	pending, err := s.superviseWorkers(ctx, job, workers, now)
	if err != nil {
		return err
	}

	if err = s.resolveStatus(ctx, job, workers, pending, now); err != nil {
		return err
	}
	if err = job.CheckCounters(); err != nil {
		return err
	}
	if *job == before {
		return nil
	}
	return s.storeOperator.UpdateJob(ctx, job)
}

// checkCronStart startCron到期后自动start
func (s *ScheduleService) checkCronStart(ctx context.Context, job *model.Job, now time.Time) error {
	if job.StartCron == "" {
		return nil
	}
	next, err := job.NextCronStart()
	if err != nil {
		job.ErrorMessage = fmt.Sprintf("invalid startCron %q: %v", job.StartCron, err)
		return s.close(ctx, job, constance.JobStatusFailed, now)
	}
	if now.Before(next) {
		return nil
	}
	klog.Infof("job %v started by cron %q", job.Name, job.StartCron)
	return s.jobService.startLocked(ctx, job)
}

// superviseWorkers 检查每个绑定了进程的worker，返回仍然在运行的Agent拉起的worker个数。
// 手动注册的worker不阻止Job结束，Job结束时只解绑。
// 每次结束worker都会立即反映到计数中，同一轮内就能判断Job是否可以结束
func (s *ScheduleService) superviseWorkers(ctx context.Context, job *model.Job, workers []*model.Worker,
	now time.Time) (int, error) {
	pending := 0
	for _, worker := range workers {
		if !worker.Bound() {
			continue
		}
		alive, exitCode := s.launcher.Status(worker.ProcessID)
		var err error
		switch {
		case !alive:
			err = s.finishWorker(ctx, job, worker, exitCode, constance.FinishReasonNormal, now)
		case !worker.Registered && job.Timeout > 0 && now.Sub(worker.StartTime) > job.Timeout:
			klog.Infof("worker %v of job %v timeout after %v", worker.Identity, job.Name, now.Sub(worker.StartTime))
			err = s.terminateWorker(ctx, job, worker, constance.FinishReasonTimeout, now)
		case job.Status == constance.JobStatusWaitingForAbort && worker.Registered:
			//不是Agent拉起的进程，只解绑不杀
			err = s.finishWorker(ctx, job, worker, constance.ExitCodeUnknown, constance.FinishReasonDetached, now)
		case job.Status == constance.JobStatusWaitingForAbort:
			err = s.terminateWorker(ctx, job, worker, constance.FinishReasonAborted, now)
		case !worker.Registered:
			pending++
		}
		if err != nil {
			return 0, err
		}
	}
	return pending, nil
}

func (s *ScheduleService) terminateWorker(ctx context.Context, job *model.Job, worker *model.Worker,
	reason constance.FinishReason, now time.Time) error {
	if err := s.launcher.Terminate(worker.ProcessID); err != nil {
		klog.Warnf("terminate worker %v pid:%v error:%v", worker.Identity, worker.ProcessID, err)
	}
	_, exitCode := s.launcher.Status(worker.ProcessID)
	return s.finishWorker(ctx, job, worker, exitCode, reason, now)
}

// finishWorker 归档并清空slot。Agent拉起的worker计入finished，非0退出、超时、abort计入failed
func (s *ScheduleService) finishWorker(ctx context.Context, job *model.Job, worker *model.Worker, exitCode int,
	reason constance.FinishReason, now time.Time) error {
	pid := worker.ProcessID
	if !worker.Registered {
		job.Finished++
		if exitCode != 0 || reason != constance.FinishReasonNormal {
			job.Failed++
		}
		if exitCode != 0 && reason == constance.FinishReasonNormal {
			job.ErrorMessage = fmt.Sprintf("worker %v exit with code %v: %v",
				worker.Identity, exitCode, s.launcher.Output(pid))
		}
	}
	if job.Active > 0 {
		job.Active--
	}

	history := worker.Archive(exitCode, reason, now)
	if err := s.storeOperator.InsertWorkerHistory(ctx, history); err != nil {
		return err
	}
	if err := s.storeOperator.SaveWorker(ctx, worker); err != nil {
		return err
	}
	s.launcher.Release(pid)
	s.statisticsService.OnWorkerFinish(reason)
	return nil
}

// resolveStatus 按顺序判断：shutdown/abort收尾、blowout、脚本不可用、全部完成，最后才是拉起新的worker
func (s *ScheduleService) resolveStatus(ctx context.Context, job *model.Job, workers []*model.Worker,
	pending int, now time.Time) error {
	if pending == 0 {
		switch job.Status {
		case constance.JobStatusWaitingForShutdown:
			return s.close(ctx, job, constance.JobStatusShutdowned, now)
		case constance.JobStatusWaitingForAbort:
			return s.close(ctx, job, constance.JobStatusAborted, now)
		}
	}

	if job.BlownOut() {
		if pending == 0 {
			job.ErrorMessage = fmt.Sprintf("blowout: %v failures reached threshold %v, last error: %v",
				job.Failed, job.BlowoutThreshold, job.ErrorMessage)
			return s.close(ctx, job, constance.JobStatusFailed, now)
		}
		return nil
	}

	if job.AllFinished() {
		return s.close(ctx, job, constance.JobStatusFinished, now)
	}

	if job.Status != constance.JobStatusRunning {
		return nil
	}
	path, err := s.scriptService.Resolve(job.Script)
	if err != nil {
		if pending == 0 {
			job.ErrorMessage = err.Error()
			return s.close(ctx, job, constance.JobStatusFailed, now)
		}
		return nil
	}
	job.ScriptFullPath = path

	return s.startWorkers(ctx, job, workers, now)
}

// close 进入终态。还绑定着的手动注册worker只解绑
func (s *ScheduleService) close(ctx context.Context, job *model.Job, to constance.JobStatus, now time.Time) error {
	if err := job.Transit(to, now); err != nil {
		return err
	}
	workers, err := s.storeOperator.FetchWorkers(ctx, job.ID)
	if err != nil {
		return err
	}
	for _, worker := range workers {
		if worker.Bound() && worker.Registered {
			if err = s.finishWorker(ctx, job, worker, constance.ExitCodeUnknown, constance.FinishReasonDetached, now); err != nil {
				return err
			}
		}
	}
	s.statisticsService.OnJobClose(to)
	klog.Infof("job %v closed as %v, started:%v finished:%v failed:%v",
		job.Name, to, job.Started, job.Finished, job.Failed)
	return nil
}
