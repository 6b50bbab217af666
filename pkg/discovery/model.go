package discovery

import (
	"net"
	"strconv"
)

const (
	serviceProtocFieldName = "X-Protoc-Type"
)

type ProtocType string

const (
	ProtocTypeHttp ProtocType = "Http"
)

type ServiceServeConf struct {
	Protoc ProtocType
	Host   string
	Port   int
}

// ServiceInstance 注册到服务发现中间件中的Agent实例
type ServiceInstance struct {
	ServiceName string
	InstanceId  string
	//如果使用的中间件检查健康，例如consul，那么应该填写这个字段，让consul检查
	MiddlewareHealthCheckUrl string
	ServiceServeConf
	Meta map[string]string
}

func (i *ServiceInstance) Address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

type Client interface {
	Register(instance *ServiceInstance) error
	DeRegister(instanceId string) error
	DiscoverServices(serviceName string) []*ServiceInstance
}
