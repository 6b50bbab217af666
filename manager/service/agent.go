package service

import (
	"context"
	"errors"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
)

// AgentService 维护t_agent_lease。同一个协调存储上只有持有租约的进程运行调度循环
type AgentService struct {
	instanceID        string
	storeOperator     store_operator.Operator
	statisticsService *StatisticsService
}

func NewAgentService(instanceID string, storeOperator store_operator.Operator,
	statisticsService *StatisticsService) *AgentService {
	return &AgentService{
		instanceID:        instanceID,
		storeOperator:     storeOperator,
		statisticsService: statisticsService,
	}
}

func (s *AgentService) InstanceID() string {
	return s.instanceID
}

// Acquire 租约不存在、已过期或者本来就是自己的时候，写入自己的心跳。也用于每轮续约
func (s *AgentService) Acquire(ctx context.Context) (bool, error) {
	held := false
	err := inTx(ctx, s.storeOperator, func(ctx context.Context) error {
		now := s.statisticsService.Now()
		lease, err := s.storeOperator.FetchAgentLease(ctx)
		if err != nil && !errors.Is(err, store_operator.ErrNotFound) {
			return err
		}
		if lease != nil && lease.InstanceID != s.instanceID && !lease.Expired(now, s.statisticsService.GetLeaseTTL()) {
			return nil
		}
		if lease != nil && lease.InstanceID != s.instanceID {
			klog.Warnf("take over expired agent lease from %v, last heartbeat at %v", lease.InstanceID, lease.HeartbeatAt)
		}
		held = true
		return s.storeOperator.SaveAgentLease(ctx, &model.AgentLease{
			Name:        constance.AgentLeaseName,
			InstanceID:  s.instanceID,
			HeartbeatAt: now,
		})
	})
	if err != nil {
		return false, err
	}
	return held, nil
}

func (s *AgentService) Release(ctx context.Context) error {
	return s.storeOperator.DeleteAgentLease(ctx, s.instanceID)
}

// Alive 是否有Agent在按时续约
func (s *AgentService) Alive(ctx context.Context) (bool, error) {
	lease, err := s.storeOperator.FetchAgentLease(ctx)
	if err != nil {
		if errors.Is(err, store_operator.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !lease.Expired(s.statisticsService.Now(), s.statisticsService.GetLeaseTTL()), nil
}
