package sqlite

import (
	"fmt"
	"net/url"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultBusyTimeoutMs = 5000

// BuildDSN 多个进程共享同一个文件：WAL让读不阻塞写，写事务一律BEGIN IMMEDIATE，
// 抢不到写锁时按busy_timeout等待而不是立即报错
func BuildDSN(sqliteConf *conf.SqliteConf) string {
	busyTimeout := sqliteConf.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeoutMs
	}
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busyTimeout))
	params.Set("_journal_mode", "WAL")
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "1")
	return "file:" + sqliteConf.Path + "?" + params.Encode()
}

func InitSqlite(sqliteConf *conf.SqliteConf) (*gorm.DB, error) {
	if sqliteConf.Path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	db, err := gorm.Open(sqlite.Open(BuildDSN(sqliteConf)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to open sqlite at %v, error:%w", sqliteConf.Path, err)
	}
	klog.Infof("sqlite init success with path:%v", sqliteConf.Path)
	return db, nil
}
