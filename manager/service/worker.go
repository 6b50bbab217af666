package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/google/uuid"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
)

// WorkerService 不是由Agent拉起的进程通过它加入或者离开某个Job的worker池，以便参与timer point
type WorkerService struct {
	storeOperator     store_operator.Operator
	statisticsService *StatisticsService
	lock              *ProcessLock
}

func NewWorkerService(storeOperator store_operator.Operator, statisticsService *StatisticsService,
	lock *ProcessLock) *WorkerService {
	return &WorkerService{
		storeOperator:     storeOperator,
		statisticsService: statisticsService,
		lock:              lock,
	}
}

func newIdentity(jobName string, slotID int) string {
	return fmt.Sprintf("%s-%d-%s", jobName, slotID, uuid.NewString()[:8])
}

// RegisterWorker 手动注册的worker使用负数slot，调整parallel也不会和Agent拉起的slot冲突
func (s *WorkerService) RegisterWorker(ctx context.Context, jobName string, pid int) (*model.Worker, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("%w: pid %v", ErrInvalidParam, pid)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	var worker *model.Worker
	err := inTx(ctx, s.storeOperator, func(ctx context.Context) error {
		job, err := s.storeOperator.FetchJobByName(ctx, jobName)
		if err != nil {
			return jobNotFound(jobName, err)
		}
		if job, err = s.storeOperator.LockJob(ctx, job.ID); err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job %v is already %v", ErrInvalidParam, jobName, job.Status)
		}

		if existing, err := s.storeOperator.FetchWorkerByProcessID(ctx, pid); err == nil {
			if existing.JobID == job.ID {
				worker = existing
				return nil
			}
			return fmt.Errorf("%w: pid %v already bound to job %v", ErrInvalidParam, pid, existing.JobID)
		} else if !errors.Is(err, store_operator.ErrNotFound) {
			return err
		}

		workers, err := s.storeOperator.FetchWorkers(ctx, job.ID)
		if err != nil {
			return err
		}
		worker = pickRegisterSlot(job, workers)
		worker.Bind(pid, newIdentity(job.Name, worker.SlotID), true, s.statisticsService.Now())
		if err = s.storeOperator.SaveWorker(ctx, worker); err != nil {
			return err
		}
		job.Active++
		return s.storeOperator.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	klog.Infof("pid %v registered to job %v at slot %v", pid, jobName, worker.SlotID)
	return worker, nil
}

// pickRegisterSlot 优先复用空闲的注册slot，否则从-1往下追加
func pickRegisterSlot(job *model.Job, workers []*model.Worker) *model.Worker {
	next := -1
	for _, w := range workers {
		if w.SlotID >= 0 {
			continue
		}
		if !w.Bound() {
			return w
		}
		if w.SlotID <= next {
			next = w.SlotID - 1
		}
	}
	return &model.Worker{JobID: job.ID, SlotID: next}
}

// DeregisterWorker 归档为deregistered并清空slot，active随之减一
func (s *WorkerService) DeregisterWorker(ctx context.Context, pid int) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return inTx(ctx, s.storeOperator, func(ctx context.Context) error {
		worker, err := s.storeOperator.FetchWorkerByProcessID(ctx, pid)
		if err != nil {
			if errors.Is(err, store_operator.ErrNotFound) {
				return fmt.Errorf("%w: pid %v", ErrWorkerNotFound, pid)
			}
			return err
		}
		if !worker.Registered {
			return fmt.Errorf("%w: pid %v was launched by the agent", ErrInvalidParam, pid)
		}
		job, err := s.storeOperator.LockJob(ctx, worker.JobID)
		if err != nil {
			return err
		}

		history := worker.Archive(0, constance.FinishReasonDeregistered, s.statisticsService.Now())
		if err = s.storeOperator.InsertWorkerHistory(ctx, history); err != nil {
			return err
		}
		if err = s.storeOperator.SaveWorker(ctx, worker); err != nil {
			return err
		}
		if job.Active > 0 {
			job.Active--
		}
		s.statisticsService.OnWorkerFinish(constance.FinishReasonDeregistered)
		klog.Infof("pid %v deregistered from job %v", pid, job.Name)
		return s.storeOperator.UpdateJob(ctx, job)
	})
}
