package app

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/dal"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/robotslacker/testcli-sub000/pkg/constance"
	"github.com/robotslacker/testcli-sub000/pkg/discovery"
	"github.com/robotslacker/testcli-sub000/pkg/session/trace"
)

type Manager struct {
	//config
	instanceID string
	enableOTel bool

	//infra
	providers       *trace.Providers
	dalClient       dal.Client
	discoveryClient discovery.Client
	registered      bool

	//operator
	storeOperator store_operator.Operator
	launcher      process_operator.Launcher

	//service
	statisticsService *service.StatisticsService
	agentService      *service.AgentService
	jobService        *service.JobService
	workerService     *service.WorkerService
	barrierService    *service.BarrierService
	scheduleService   *service.ScheduleService

	lock      sync.Mutex
	scheduled bool
	stopped   bool
}

func newManagerInner(
	//config
	instanceID string,
	enableOTel bool,

	//operator
	storeOperator store_operator.Operator,
	launcher process_operator.Launcher,

	//service
	statisticsService *service.StatisticsService,
	agentService *service.AgentService,
	jobService *service.JobService,
	workerService *service.WorkerService,
	barrierService *service.BarrierService,
	scheduleService *service.ScheduleService,
) *Manager {
	return &Manager{
		instanceID: instanceID,
		enableOTel: enableOTel,

		storeOperator: storeOperator,
		launcher:      launcher,

		statisticsService: statisticsService,
		agentService:      agentService,
		jobService:        jobService,
		workerService:     workerService,
		barrierService:    barrierService,
		scheduleService:   scheduleService,
	}
}

// Start 运行调度循环，返回是否已经拿到租约。没拿到时作为备用，每一轮都会尝试接管过期的租约
func (m *Manager) Start(ctx context.Context) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.stopped {
		return false, errors.New("manager already stopped")
	}

	held, err := m.agentService.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !m.scheduled {
		m.scheduled = true
		go m.scheduleService.Schedule()
	}
	if held {
		klog.Infof("JobManager %v started as agent", m.instanceID)
	} else {
		klog.Infof("JobManager %v started as standby, another instance holds the lease", m.instanceID)
	}
	return held, nil
}

// RegisterService 把本实例的HTTP入口注册到服务发现，供-remote的调用方找到Agent
func (m *Manager) RegisterService(serveConf *discovery.ServiceServeConf, healthCheckUrl string) error {
	if m.discoveryClient == nil {
		return nil
	}
	err := m.discoveryClient.Register(&discovery.ServiceInstance{
		ServiceName:              constance.ManagerServiceName,
		InstanceId:               m.instanceID,
		MiddlewareHealthCheckUrl: healthCheckUrl,
		ServiceServeConf:         *serveConf,
	})
	if err != nil {
		return err
	}
	m.registered = true
	return nil
}

func (m *Manager) Stop() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true

	if m.scheduled {
		m.scheduleService.Stop()
		<-m.scheduleService.Done()
		if err := m.agentService.Release(context.Background()); err != nil {
			klog.Warnf("release agent lease error:%v", err)
		}
	}
	if m.registered {
		if err := m.discoveryClient.DeRegister(m.instanceID); err != nil {
			klog.Warnf("deregister %v error:%v", m.instanceID, err)
		}
	}
	if m.enableOTel {
		m.providers.Shutdown(context.Background())
	}
	if m.dalClient != nil {
		if err := m.dalClient.Close(); err != nil {
			klog.Warnf("close store error:%v", err)
		}
	}
	klog.Infof("JobManager %v stopped", m.instanceID)
}

func (m *Manager) InstanceID() string {
	return m.instanceID
}

func (m *Manager) Jobs() *service.JobService {
	return m.jobService
}

func (m *Manager) Workers() *service.WorkerService {
	return m.workerService
}

func (m *Manager) Barriers() *service.BarrierService {
	return m.barrierService
}

func (m *Manager) GetStoreOperator() store_operator.Operator {
	return m.storeOperator
}

func (m *Manager) GetScheduleService() *service.ScheduleService {
	return m.scheduleService
}

func (m *Manager) GetStatisticsService() *service.StatisticsService {
	return m.statisticsService
}

func (m *Manager) GetAgentService() *service.AgentService {
	return m.agentService
}

var _ service.Orchestration = (*Manager)(nil)
