package conf

import (
	"encoding/json"
	"fmt"

	"github.com/robotslacker/testcli-sub000/pkg/constance"
)

// StoreConf 协调存储的连接配置。Agent拉起worker时会把它编码进环境变量，worker据此连回同一个存储
type StoreConf struct {
	Type   constance.StoreType `yaml:"type" json:"type"`
	Mysql  *MysqlConf          `yaml:"mysql,omitempty" json:"mysql,omitempty"`
	Sqlite *SqliteConf         `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
}

func (c *StoreConf) Validate() error {
	if c == nil {
		return fmt.Errorf("nil store config")
	}
	switch c.Type {
	case constance.StoreTypeMysql:
		if c.Mysql == nil || c.Mysql.Host == "" || c.Mysql.DbName == "" {
			return fmt.Errorf("mysql store requires host and dbName")
		}
	case constance.StoreTypeSqlite:
		if c.Sqlite == nil || c.Sqlite.Path == "" {
			return fmt.Errorf("sqlite store requires path")
		}
	case constance.StoreTypeMemory:
	default:
		return fmt.Errorf("unknown store type:%q", c.Type)
	}
	return nil
}

// Shareable memory存储只在本进程内可见，不能交给子进程
func (c *StoreConf) Shareable() bool {
	return c != nil && c.Type != constance.StoreTypeMemory
}

func (c *StoreConf) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeStoreConf(s string) (*StoreConf, error) {
	c := new(StoreConf)
	if err := json.Unmarshal([]byte(s), c); err != nil {
		return nil, fmt.Errorf("decode store config:%w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
