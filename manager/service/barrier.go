package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/pkg/util"
	"golang.org/x/time/rate"
)

// BarrierService timer point：参与方只通过协调存储计数和改写自己的行来会合，本地不保存任何状态
type BarrierService struct {
	storeOperator     store_operator.Operator
	statisticsService *StatisticsService
}

func NewBarrierService(storeOperator store_operator.Operator, statisticsService *StatisticsService) *BarrierService {
	return &BarrierService{
		storeOperator:     storeOperator,
		statisticsService: statisticsService,
	}
}

func validTimerPoint(point string) bool {
	return strings.TrimSpace(point) != "" && point != constance.TimerPointReleased
}

// partySize 没有tag时为parallel（手动注册的worker为当前active），有tag时为同tag的未结束Job的parallel之和
func (s *BarrierService) partySize(ctx context.Context, job *model.Job, caller *model.Worker) (int, error) {
	if job.Tag == "" {
		if caller.Registered {
			return job.Active, nil
		}
		return job.Parallel, nil
	}
	jobs, err := s.storeOperator.FindJobsByTag(ctx, job.Tag)
	if err != nil {
		return 0, err
	}
	size := 0
	for _, j := range jobs {
		if !j.Status.IsTerminal() {
			size += j.Parallel
		}
	}
	return size, nil
}

func (s *BarrierService) WaitAtBarrier(ctx context.Context, pid int, point string) error {
	if !validTimerPoint(point) {
		return fmt.Errorf("%w: %q", ErrInvalidTimerPoint, point)
	}
	ctx, span := util.StartSpan(ctx, s.statisticsService.Tracer(), "WaitAtBarrier")
	defer span.End()

	caller, err := s.storeOperator.FetchWorkerByProcessID(ctx, pid)
	if err != nil {
		if errors.Is(err, store_operator.ErrNotFound) {
			return fmt.Errorf("%w: pid %v", ErrWorkerNotFound, pid)
		}
		return err
	}
	if err = s.storeOperator.SetTimerPoint(ctx, caller.JobID, caller.SlotID, &point); err != nil {
		return err
	}
	klog.Debugf("pid %v arrived at timer point %v", pid, point)

	limiter := rate.NewLimiter(rate.Every(s.statisticsService.GetPollInterval()), 1)
	for {
		released, err := s.poll(ctx, pid, point)
		if err != nil {
			s.leave(caller)
			return err
		}
		if released {
			klog.Debugf("pid %v released from timer point %v", pid, point)
			return nil
		}
		if err = pollWait(ctx, limiter); err != nil {
			s.leave(caller)
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: timer point %v", ErrWaitTimeout, point)
			}
			return err
		}
	}
}

// poll 一轮检查：人数到齐则放行全部参与方，自己被放行则清空并返回true
func (s *BarrierService) poll(ctx context.Context, pid int, point string) (bool, error) {
	self, err := s.storeOperator.FetchWorkerByProcessID(ctx, pid)
	if err != nil {
		if errors.Is(err, store_operator.ErrNotFound) {
			//所在Job已经结束，slot被Agent清空
			return false, fmt.Errorf("%w: pid %v left the job while waiting", ErrWorkerNotFound, pid)
		}
		return false, err
	}
	if self.Released() {
		return true, s.storeOperator.SetTimerPoint(ctx, self.JobID, self.SlotID, nil)
	}

	job, err := s.storeOperator.FetchJobByID(ctx, self.JobID)
	if err != nil {
		return false, err
	}
	size, err := s.partySize(ctx, job, self)
	if err != nil {
		return false, err
	}
	scope := model.ScopeOf(job)
	count, err := s.storeOperator.CountAtTimerPoint(ctx, scope, point)
	if err != nil {
		return false, err
	}
	if size <= 0 || count < size {
		return false, nil
	}

	released, err := s.storeOperator.ReleaseTimerPoint(ctx, scope, point)
	if err != nil {
		return false, err
	}
	s.statisticsService.OnTimerPointRelease(released)
	klog.Infof("timer point %v released %v workers, scope:%+v", point, released, scope)
	return s.pollReleased(ctx, pid)
}

func (s *BarrierService) pollReleased(ctx context.Context, pid int) (bool, error) {
	self, err := s.storeOperator.FetchWorkerByProcessID(ctx, pid)
	if err != nil {
		return false, err
	}
	if !self.Released() {
		return false, nil
	}
	return true, s.storeOperator.SetTimerPoint(ctx, self.JobID, self.SlotID, nil)
}

// leave 放弃等待时撤回自己的到达记录，避免影响后续的计数
func (s *BarrierService) leave(caller *model.Worker) {
	if err := s.storeOperator.SetTimerPoint(context.Background(), caller.JobID, caller.SlotID, nil); err != nil &&
		!errors.Is(err, store_operator.ErrNotFound) {
		klog.Warnf("clear timer point of pid %v error:%v", caller.ProcessID, err)
	}
}
