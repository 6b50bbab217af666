package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"golang.org/x/time/rate"
)

type JobService struct {
	storeOperator     store_operator.Operator
	statisticsService *StatisticsService
	scriptService     *ScriptService
	agentService      *AgentService
	lock              *ProcessLock
}

func NewJobService(storeOperator store_operator.Operator, statisticsService *StatisticsService,
	scriptService *ScriptService, agentService *AgentService, lock *ProcessLock) *JobService {
	return &JobService{
		storeOperator:     storeOperator,
		statisticsService: statisticsService,
		scriptService:     scriptService,
		agentService:      agentService,
		lock:              lock,
	}
}

func (s *JobService) CreateJob(ctx context.Context, name string) (*model.Job, error) {
	if s.storeOperator == nil {
		return nil, ErrManagerNotStarted
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, constance.AllJobs) {
		return nil, fmt.Errorf("%w: job name %q", ErrInvalidParam, name)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	job := model.NewJob(name, s.statisticsService.Now())
	err := inTx(ctx, s.storeOperator, func(ctx context.Context) error {
		if _, err := s.storeOperator.FetchJobByName(ctx, name); err == nil {
			return fmt.Errorf("%w: %v", ErrJobExists, name)
		} else if !errors.Is(err, store_operator.ErrNotFound) {
			return err
		}
		if err := s.storeOperator.InsertJob(ctx, job); err != nil {
			if errors.Is(err, store_operator.ErrAlreadyExists) {
				return fmt.Errorf("%w: %v", ErrJobExists, name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.Infof("job %v created with id:%v", job.Name, job.ID)
	return job, nil
}

// ConfigureJob 只允许修改Submitted状态的Job，参数全部合法时才写入
func (s *JobService) ConfigureJob(ctx context.Context, name string, params map[string]string) (*model.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var job *model.Job
	err := inTx(ctx, s.storeOperator, func(ctx context.Context) error {
		var err error
		if job, err = s.lockJobByName(ctx, name); err != nil {
			return err
		}
		if job.Status != constance.JobStatusSubmitted {
			return fmt.Errorf("%w: %v is %v", ErrJobNotSubmitted, name, job.Status)
		}
		if err = job.ApplyParams(params); err != nil {
			return err
		}
		return s.storeOperator.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobService) lockJobByName(ctx context.Context, name string) (*model.Job, error) {
	job, err := s.storeOperator.FetchJobByName(ctx, name)
	if err != nil {
		return nil, jobNotFound(name, err)
	}
	if job, err = s.storeOperator.LockJob(ctx, job.ID); err != nil {
		return nil, jobNotFound(name, err)
	}
	return job, nil
}

// resolveTargets name为all时返回全部Job
func (s *JobService) resolveTargets(ctx context.Context, target string) ([]*model.Job, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: empty job name", ErrInvalidParam)
	}
	if strings.EqualFold(target, constance.AllJobs) {
		return s.storeOperator.ListJobs(ctx)
	}
	job, err := s.storeOperator.FetchJobByName(ctx, target)
	if err != nil {
		return nil, jobNotFound(target, err)
	}
	return []*model.Job{job}, nil
}

// transitTargets 对每个目标Job单独开事务，from中的状态迁移到to，返回实际迁移的个数
func (s *JobService) transitTargets(ctx context.Context, target string, to constance.JobStatus,
	from ...constance.JobStatus) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	jobs, err := s.resolveTargets(ctx, target)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range jobs {
		transited := false
		err = inTx(ctx, s.storeOperator, func(ctx context.Context) error {
			locked, err := s.storeOperator.LockJob(ctx, job.ID)
			if err != nil {
				return err
			}
			if !statusIn(locked.Status, from) {
				return nil
			}
			if to == constance.JobStatusRunning {
				s.prepareStart(locked)
			}
			if err = locked.Transit(to, s.statisticsService.Now()); err != nil {
				return err
			}
			transited = true
			return s.storeOperator.UpdateJob(ctx, locked)
		})
		if err != nil {
			return count, err
		}
		if transited {
			count++
			klog.Infof("job %v -> %v", job.Name, to)
		}
	}
	return count, nil
}

// prepareStart 解析不到的脚本留给Agent处理，Job会在Agent中变为Failed
func (s *JobService) prepareStart(job *model.Job) {
	path, err := s.scriptService.Resolve(job.Script)
	if err != nil {
		klog.Warnf("job %v start with unresolvable script:%v", job.Name, err)
		job.ScriptFullPath = ""
		return
	}
	job.ScriptFullPath = path
}

// startLocked Agent处理startCron时调用，调用方已经持有锁和事务
func (s *JobService) startLocked(ctx context.Context, job *model.Job) error {
	s.prepareStart(job)
	if err := job.Transit(constance.JobStatusRunning, s.statisticsService.Now()); err != nil {
		return err
	}
	return s.storeOperator.UpdateJob(ctx, job)
}

func statusIn(status constance.JobStatus, statuses []constance.JobStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// StartJob Submitted -> Running，其他状态的Job不受影响
func (s *JobService) StartJob(ctx context.Context, target string) (int, error) {
	return s.transitTargets(ctx, target, constance.JobStatusRunning, constance.JobStatusSubmitted)
}

// ShutdownJob 不再拉起新的worker，等待已经在跑的worker结束
func (s *JobService) ShutdownJob(ctx context.Context, target string) (int, error) {
	return s.transitTargets(ctx, target, constance.JobStatusWaitingForShutdown,
		constance.JobStatusSubmitted, constance.JobStatusRunning)
}

// AbortJob 强制结束全部worker，abort优先于shutdown
func (s *JobService) AbortJob(ctx context.Context, target string) (int, error) {
	return s.transitTargets(ctx, target, constance.JobStatusWaitingForAbort,
		constance.JobStatusRunning, constance.JobStatusWaitingForShutdown)
}

// WaitJob 等待目标Job全部进入终态。all只等待已经start或者设置了startCron的Job。
// Agent不在、存储不可达、超时都会立即返回错误
func (s *JobService) WaitJob(ctx context.Context, target string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	waitAll := strings.EqualFold(strings.TrimSpace(target), constance.AllJobs)
	limiter := rate.NewLimiter(rate.Every(s.statisticsService.GetPollInterval()), 1)

	for {
		jobs, err := s.resolveTargets(ctx, target)
		if err != nil {
			return waitError(ctx, err, target)
		}
		done := true
		for _, job := range jobs {
			if job.Status.IsTerminal() {
				continue
			}
			if waitAll && job.Status == constance.JobStatusSubmitted && job.StartCron == "" {
				continue
			}
			done = false
			break
		}
		if done {
			return nil
		}

		alive, err := s.agentService.Alive(ctx)
		if err != nil {
			return waitError(ctx, err, target)
		}
		if !alive {
			return ErrAgentNotRunning
		}

		if err = pollWait(ctx, limiter); err != nil {
			return waitError(ctx, err, target)
		}
	}
}

func waitError(ctx context.Context, err error, target string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: job %v", ErrWaitTimeout, target)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *JobService) ShowJob(ctx context.Context, target string) ([]*model.Job, error) {
	return s.resolveTargets(ctx, target)
}

func (s *JobService) ListJobs(ctx context.Context) ([]*model.Job, error) {
	return s.storeOperator.ListJobs(ctx)
}

func (s *JobService) FetchJobByName(ctx context.Context, name string) (*model.Job, error) {
	job, err := s.storeOperator.FetchJobByName(ctx, name)
	if err != nil {
		return nil, jobNotFound(name, err)
	}
	return job, nil
}

// ShowWorkers 当前绑定了进程的worker以及该Job的全部归档
func (s *JobService) ShowWorkers(ctx context.Context, name string) ([]*model.Worker, []*model.WorkerHistory, error) {
	job, err := s.FetchJobByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	workers, err := s.storeOperator.FetchWorkers(ctx, job.ID)
	if err != nil {
		return nil, nil, err
	}
	live := make([]*model.Worker, 0, len(workers))
	for _, worker := range workers {
		if worker.Bound() {
			live = append(live, worker)
		}
	}
	histories, err := s.storeOperator.FetchWorkerHistory(ctx, job.ID)
	if err != nil {
		return nil, nil, err
	}
	return live, histories, nil
}
