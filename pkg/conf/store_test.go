package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robotslacker/testcli-sub000/pkg/constance"
	"github.com/stretchr/testify/require"
)

func TestStoreConfEncode(t *testing.T) {
	storeConf := &StoreConf{
		Type:   constance.StoreTypeSqlite,
		Sqlite: &SqliteConf{Path: "/tmp/jobs.db", BusyTimeoutMs: 1000},
	}
	require.NoError(t, storeConf.Validate())
	require.True(t, storeConf.Shareable())

	encoded, err := storeConf.Encode()
	require.NoError(t, err)
	decoded, err := DecodeStoreConf(encoded)
	require.NoError(t, err)
	require.Equal(t, storeConf, decoded)
}

func TestStoreConfValidate(t *testing.T) {
	require.Error(t, (*StoreConf)(nil).Validate())
	require.Error(t, (&StoreConf{Type: "redis"}).Validate())
	require.Error(t, (&StoreConf{Type: constance.StoreTypeMysql, Mysql: &MysqlConf{}}).Validate())
	require.Error(t, (&StoreConf{Type: constance.StoreTypeSqlite}).Validate())

	memory := &StoreConf{Type: constance.StoreTypeMemory}
	require.NoError(t, memory.Validate())
	require.False(t, memory.Shareable())
}

func TestLoadFile(t *testing.T) {
	cfg := GetCommonConfig(Dev)
	require.Equal(t, constance.StoreTypeSqlite, cfg.Store.Type)

	path := filepath.Join(t.TempDir(), "manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  type: mysql
  mysql:
    host: db.local
    dbName: jobs
consul:
  port: 18500
`), 0o644))
	require.NoError(t, LoadFile(path, cfg))
	require.Equal(t, constance.StoreTypeMysql, cfg.Store.Type)
	require.Equal(t, "db.local", cfg.Store.Mysql.Host)
	require.Equal(t, "jobs", cfg.Store.Mysql.DbName)
	require.Equal(t, 18500, cfg.Consul.Port)
	require.Equal(t, "localhost", cfg.Consul.Host)

	require.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg))
}

func TestK8sConfig(t *testing.T) {
	cfg := GetCommonConfig(K8s)
	require.Equal(t, constance.StoreTypeMysql, cfg.Store.Type)
	require.Equal(t, "mysql-service", cfg.Store.Mysql.Host)
	//默认配置不能被修改
	require.Equal(t, "localhost", DevMysqlConfig.Host)
}
