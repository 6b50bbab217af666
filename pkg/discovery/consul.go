package discovery

import (
	"strconv"
	"sync"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/go-kit/kit/sd/consul"
	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/consul/api/watch"
)

type ConsulDiscoverClient struct {
	Host         string
	Port         int
	client       consul.Client
	config       *api.Config
	mutex        sync.Mutex
	instancesMap sync.Map
	watching     map[string]*watch.Plan
}

func NewConsulDiscoverClient(consulHost string, consulPort int) (*ConsulDiscoverClient, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = consulHost + ":" + strconv.Itoa(consulPort)
	apiClient, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, err
	}
	return &ConsulDiscoverClient{
		Host:     consulHost,
		Port:     consulPort,
		config:   consulConfig,
		client:   consul.NewClient(apiClient),
		watching: make(map[string]*watch.Plan),
	}, nil
}

func (c *ConsulDiscoverClient) Register(instance *ServiceInstance) error {
	if instance.Meta == nil {
		instance.Meta = make(map[string]string)
	}
	instance.Meta[serviceProtocFieldName] = string(instance.Protoc)

	serviceRegistration := &api.AgentServiceRegistration{
		ID:      instance.InstanceId,
		Name:    instance.ServiceName,
		Address: instance.Host,
		Port:    instance.Port,
		Meta:    instance.Meta,
	}
	if instance.MiddlewareHealthCheckUrl != "" {
		serviceRegistration.Check = &api.AgentServiceCheck{
			DeregisterCriticalServiceAfter: "30s",
			HTTP:                           instance.MiddlewareHealthCheckUrl,
			Interval:                       "15s",
		}
	}
	return c.client.Register(serviceRegistration)
}

func (c *ConsulDiscoverClient) DeRegister(instanceId string) error {
	c.mutex.Lock()
	for name, plan := range c.watching {
		plan.Stop()
		delete(c.watching, name)
	}
	c.mutex.Unlock()
	return c.client.Deregister(&api.AgentServiceRegistration{ID: instanceId})
}

// DiscoverServices 首次查询时同步拉取一次，同时起一个watch持续刷新缓存
func (c *ConsulDiscoverClient) DiscoverServices(serviceName string) []*ServiceInstance {
	if instanceList, ok := c.instancesMap.Load(serviceName); ok {
		return instanceList.([]*ServiceInstance)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if instanceList, ok := c.instancesMap.Load(serviceName); ok {
		return instanceList.([]*ServiceInstance)
	}

	entries, _, err := c.client.Service(serviceName, "", true, nil)
	if err != nil {
		klog.Errorf("discover service %v error:%v", serviceName, err)
		return nil
	}
	instances := make([]*ServiceInstance, 0, len(entries))
	for _, entry := range entries {
		if instance := convertAgentServiceToServiceInstance(entry.Service); instance != nil {
			instances = append(instances, instance)
		}
	}
	c.instancesMap.Store(serviceName, instances)
	c.watch(serviceName)
	return instances
}

func (c *ConsulDiscoverClient) watch(serviceName string) {
	if _, ok := c.watching[serviceName]; ok {
		return
	}
	plan, err := watch.Parse(map[string]interface{}{
		"type":        "service",
		"service":     serviceName,
		"passingonly": true,
	})
	if err != nil {
		klog.Warnf("parse watch plan for %v error:%v", serviceName, err)
		return
	}
	plan.Handler = func(_ uint64, i interface{}) {
		v, ok := i.([]*api.ServiceEntry)
		if !ok {
			return
		}
		instances := make([]*ServiceInstance, 0, len(v))
		for _, entry := range v {
			if instance := convertAgentServiceToServiceInstance(entry.Service); instance != nil {
				instances = append(instances, instance)
			}
		}
		c.instancesMap.Store(serviceName, instances)
	}
	c.watching[serviceName] = plan
	go func() {
		if err := plan.Run(c.config.Address); err != nil {
			klog.Errorf("watch service %v error:%v", serviceName, err)
		}
	}()
}

func convertAgentServiceToServiceInstance(agentService *api.AgentService) *ServiceInstance {
	if agentService == nil || agentService.Meta == nil || agentService.Meta[serviceProtocFieldName] == "" {
		return nil
	}
	return &ServiceInstance{
		ServiceName: agentService.Service,
		InstanceId:  agentService.ID,
		ServiceServeConf: ServiceServeConf{
			Protoc: ProtocType(agentService.Meta[serviceProtocFieldName]),
			Host:   agentService.Address,
			Port:   agentService.Port,
		},
		Meta: agentService.Meta,
	}
}

var _ Client = (*ConsulDiscoverClient)(nil)
