package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"github.com/robotslacker/testcli-sub000/pkg/constance"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

// startManager的参数
const (
	ParamStore        = "store"
	ParamHost         = "host"
	ParamPort         = "port"
	ParamUser         = "user"
	ParamPassword     = "password"
	ParamDb           = "db"
	ParamPath         = "path"
	ParamPollInterval = "pollInterval"
)

// Engine 按照startManager/stopManager开启和关闭Manager，一个进程内同时最多一个
type Engine struct {
	lock         sync.Mutex
	manager      *Manager
	defaultStore *conf.StoreConf
	newBuilder   func() *ManagerBuilder
	runAgent     bool
}

// NewEngine newBuilder提供store以外的公共配置，runAgent为false时只作为API的调用方
func NewEngine(defaultStore *conf.StoreConf, newBuilder func() *ManagerBuilder, runAgent bool) *Engine {
	if newBuilder == nil {
		newBuilder = NewManagerBuilder
	}
	return &Engine{
		defaultStore: defaultStore,
		newBuilder:   newBuilder,
		runAgent:     runAgent,
	}
}

// Attach 使用已经创建好的Manager
func (e *Engine) Attach(manager *Manager) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.manager = manager
}

func (e *Engine) StartManager(ctx context.Context, params map[string]string) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.manager != nil {
		klog.Infof("JobManager %v already started", e.manager.InstanceID())
		return nil
	}

	storeConf, tunables, err := ParseStartParams(e.defaultStore, params)
	if err != nil {
		return err
	}
	builder := e.newBuilder().WithStore(storeConf)
	if tunables != nil {
		builder = builder.WithScheduleInterval(tunables.ScheduleInterval)
	}
	manager, err := builder.Build()
	if err != nil {
		return err
	}
	if e.runAgent {
		if _, err = manager.Start(ctx); err != nil {
			manager.Stop()
			return err
		}
	}
	e.manager = manager
	return nil
}

func (e *Engine) StopManager(ctx context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.manager == nil {
		return service.ErrManagerNotStarted
	}
	e.manager.Stop()
	e.manager = nil
	return nil
}

// Manager 当前的Manager，未开启时为nil
func (e *Engine) Manager() *Manager {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.manager
}

func (e *Engine) Current() service.Orchestration {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.manager == nil {
		return nil
	}
	return e.manager
}

// ParseStartParams 以defaultStore为基础，用参数覆盖出本次使用的存储配置
func ParseStartParams(defaultStore *conf.StoreConf, params map[string]string) (*conf.StoreConf, *service.Tunables, error) {
	storeConf := copyStoreConf(defaultStore)
	var tunables *service.Tunables

	if value, ok := params[ParamStore]; ok {
		storeType := constance.StoreType(strings.ToLower(strings.TrimSpace(value)))
		if !storeType.Valid() {
			return nil, nil, fmt.Errorf("%w: store %q", service.ErrInvalidParam, value)
		}
		storeConf.Type = storeType
	}
	for key, value := range params {
		switch key {
		case ParamStore:
		case ParamHost:
			storeConf.Mysql.Host = value
		case ParamPort:
			if _, err := strconv.Atoi(value); err != nil {
				return nil, nil, fmt.Errorf("%w: port %q", service.ErrInvalidParam, value)
			}
			storeConf.Mysql.Port = value
		case ParamUser:
			storeConf.Mysql.UserName = value
		case ParamPassword:
			storeConf.Mysql.Password = value
		case ParamDb:
			storeConf.Mysql.DbName = value
		case ParamPath:
			storeConf.Sqlite.Path = value
		case ParamPollInterval:
			interval, err := util.ParseSeconds(value)
			if err != nil || interval <= 0 {
				return nil, nil, fmt.Errorf("%w: pollInterval %q", service.ErrInvalidParam, value)
			}
			tunables = &service.Tunables{ScheduleInterval: interval}
		default:
			return nil, nil, fmt.Errorf("%w: %q", service.ErrUnknownParam, key)
		}
	}
	if err := storeConf.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", service.ErrInvalidParam, err)
	}
	return storeConf, tunables, nil
}

func copyStoreConf(src *conf.StoreConf) *conf.StoreConf {
	ret := &conf.StoreConf{
		Type:   constance.StoreTypeMemory,
		Mysql:  &conf.MysqlConf{},
		Sqlite: &conf.SqliteConf{},
	}
	if src == nil {
		return ret
	}
	ret.Type = src.Type
	if src.Mysql != nil {
		mysqlConf := *src.Mysql
		ret.Mysql = &mysqlConf
	}
	if src.Sqlite != nil {
		sqliteConf := *src.Sqlite
		ret.Sqlite = &sqliteConf
	}
	return ret
}

var _ service.Lifecycle = (*Engine)(nil)
