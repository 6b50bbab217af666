package conf

import (
	"fmt"
	"os"

	"github.com/robotslacker/testcli-sub000/pkg/constance"
	"gopkg.in/yaml.v3"
)

type Env string

const (
	Dev Env = "dev"
	K8s Env = "k8s"
)

type CommonConf struct {
	Store  *StoreConf  `yaml:"store"`
	OTel   *OTelConf   `yaml:"otel"`
	Consul *ConsulConf `yaml:"consul"`
}

func GetCommonConfig(env Env) *CommonConf {
	mysqlConf := *DevMysqlConfig
	sqliteConf := *DevSqliteConfig
	traceConf := *DevTraceConfig
	consulConf := *DevConsulConfig
	ret := &CommonConf{
		Store: &StoreConf{
			Type:   constance.StoreTypeSqlite,
			Mysql:  &mysqlConf,
			Sqlite: &sqliteConf,
		},
		OTel:   &traceConf,
		Consul: &consulConf,
	}
	if env == K8s {
		ret.Store.Type = constance.StoreTypeMysql
		ret.Store.Mysql.Host = "mysql-service"
		ret.Consul.Host = "consul-service"
	}
	return ret
}

// LoadFile 用yaml文件覆盖默认配置，文件中没有出现的字段保持原值
func LoadFile(path string, into *CommonConf) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %v:%w", path, err)
	}
	if err = yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config file %v:%w", path, err)
	}
	return nil
}
