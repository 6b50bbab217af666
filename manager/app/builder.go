package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robotslacker/testcli-sub000/manager/dal"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator/gorm_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator/memory_operator"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"github.com/robotslacker/testcli-sub000/pkg/constance"
	"github.com/robotslacker/testcli-sub000/pkg/discovery"
	"github.com/robotslacker/testcli-sub000/pkg/session/trace"
)

type ManagerBuilder struct {
	instanceID      string
	storeOperator   store_operator.Operator
	storeConf       *conf.StoreConf
	dalClient       dal.Client
	launcher        process_operator.Launcher
	discoveryClient discovery.Client
	providers       *trace.Providers
	enableOTel      bool
	tunables        *service.Tunables
	interval        time.Duration
	err             error
}

func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{}
}

func (b *ManagerBuilder) setErr(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

func (b *ManagerBuilder) WithMysqlStore(config *conf.MysqlConf) *ManagerBuilder {
	mysqlCli, err := dal.NewMysqlClient(config)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.withGormStore(mysqlCli, &conf.StoreConf{Type: constance.StoreTypeMysql, Mysql: config})
}

func (b *ManagerBuilder) WithSqliteStore(config *conf.SqliteConf) *ManagerBuilder {
	sqliteCli, err := dal.NewSqliteClient(config)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.withGormStore(sqliteCli, &conf.StoreConf{Type: constance.StoreTypeSqlite, Sqlite: config})
}

func (b *ManagerBuilder) withGormStore(cli dal.Client, storeConf *conf.StoreConf) *ManagerBuilder {
	storeOperator, err := gorm_operator.NewGormStoreOperator(cli)
	if err != nil {
		_ = cli.Close()
		b.setErr(err)
		return b
	}
	b.dalClient = cli
	b.storeOperator = storeOperator
	b.storeConf = storeConf
	return b
}

// WithMemoryStore 只在本进程内可见，拉起的worker无法参与timer point
func (b *ManagerBuilder) WithMemoryStore() *ManagerBuilder {
	b.storeOperator = memory_operator.NewMemoryStoreOperator()
	b.storeConf = &conf.StoreConf{Type: constance.StoreTypeMemory}
	return b
}

// WithStore 按照配置中的类型选择存储
func (b *ManagerBuilder) WithStore(storeConf *conf.StoreConf) *ManagerBuilder {
	if err := storeConf.Validate(); err != nil {
		b.setErr(err)
		return b
	}
	switch storeConf.Type {
	case constance.StoreTypeMysql:
		return b.WithMysqlStore(storeConf.Mysql)
	case constance.StoreTypeSqlite:
		return b.WithSqliteStore(storeConf.Sqlite)
	default:
		return b.WithMemoryStore()
	}
}

func (b *ManagerBuilder) WithLauncher(launcher process_operator.Launcher) *ManagerBuilder {
	if launcher == nil {
		b.setErr(errors.New("nil launcher"))
	} else {
		b.launcher = launcher
	}
	return b
}

func (b *ManagerBuilder) WithInstanceID(instanceID string) *ManagerBuilder {
	if instanceID == "" {
		b.setErr(errors.New("empty instanceID"))
	} else {
		b.instanceID = instanceID
	}
	return b
}

func (b *ManagerBuilder) WithOTelConfig(oTelConfig *conf.OTelConf) *ManagerBuilder {
	if oTelConfig == nil || (!oTelConfig.EnableTrace && !oTelConfig.EnableMetrics) {
		return b
	}
	if b.instanceID == "" {
		b.instanceID = newInstanceID()
	}
	providers, err := trace.InitProvider(context.Background(), constance.ManagerServiceName, b.instanceID, oTelConfig)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.providers = providers
	b.enableOTel = true
	return b
}

func (b *ManagerBuilder) WithConsulDiscovery(consulConf *conf.ConsulConf) *ManagerBuilder {
	discoveryClient, err := discovery.NewConsulDiscoverClient(consulConf.Host, consulConf.Port)
	if err != nil {
		b.setErr(err)
	} else {
		b.discoveryClient = discoveryClient
	}
	return b
}

func (b *ManagerBuilder) WithTunables(tunables *service.Tunables) *ManagerBuilder {
	b.tunables = tunables
	return b
}

// WithScheduleInterval 只覆盖Agent的调度间隔，其他参数沿用WithTunables
func (b *ManagerBuilder) WithScheduleInterval(interval time.Duration) *ManagerBuilder {
	b.interval = interval
	return b
}

func newInstanceID() string {
	return fmt.Sprintf("JobManager-%v", uuid.New())
}

func (b *ManagerBuilder) Build() (*Manager, error) {
	if b.err != nil {
		b.cleanup()
		return nil, b.err
	}
	if b.storeOperator == nil {
		return nil, errors.New("no select store")
	}
	if b.instanceID == "" {
		b.instanceID = newInstanceID()
	}
	if b.launcher == nil {
		launcher, err := process_operator.NewShellLauncher("")
		if err != nil {
			b.cleanup()
			return nil, err
		}
		b.launcher = launcher
	}

	tunables := service.DefaultTunables()
	if b.tunables != nil {
		copied := *b.tunables
		tunables = &copied
	}
	if b.interval > 0 {
		tunables.ScheduleInterval = b.interval
	}
	//worker通过这个配置连回同一个存储
	if tunables.StoreConf == "" && b.storeConf.Shareable() {
		encoded, err := b.storeConf.Encode()
		if err != nil {
			b.cleanup()
			return nil, err
		}
		tunables.StoreConf = encoded
	}

	manager, err := genManager(b.instanceID, b.enableOTel, tunables, b.storeOperator, b.launcher)
	if err != nil {
		b.cleanup()
		return nil, err
	}
	manager.dalClient = b.dalClient
	manager.discoveryClient = b.discoveryClient
	manager.providers = b.providers
	return manager, nil
}

func (b *ManagerBuilder) cleanup() {
	if b.dalClient != nil {
		_ = b.dalClient.Close()
	}
	b.providers.Shutdown(context.Background())
}
