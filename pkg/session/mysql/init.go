package mysql

import (
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/cloudwego/kitex/pkg/klog"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BuildDSN 通过驱动自带的Config拼DSN，避免密码中的特殊字符破坏格式
func BuildDSN(mysqlConf *conf.MysqlConf) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = mysqlConf.UserName
	cfg.Passwd = mysqlConf.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(mysqlConf.Host, mysqlConf.Port)
	cfg.DBName = mysqlConf.DbName
	cfg.ParseTime = true
	//UPDATE返回匹配的行数而不是实际修改的行数
	cfg.ClientFoundRows = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func initMysql(mysqlConf *conf.MysqlConf) (*gorm.DB, error) {
	var (
		err    error
		sqlDB  *sql.DB
		gormDB *gorm.DB
	)

	dsn := BuildDSN(mysqlConf)
	gormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		klog.Errorf("Failed to connect to mysql:%v, with addr:%v:%v", err, mysqlConf.Host, mysqlConf.Port)
		return nil, err
	}

	sqlDB, err = gormDB.DB()
	if err != nil {
		klog.Errorf("Failed to get mysql DB:%v", err)
		return nil, err
	}

	// 设置最大空闲连接数和最大打开连接数
	if mysqlConf.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(mysqlConf.MaxIdleConnections)
	}
	if mysqlConf.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(mysqlConf.MaxOpenConnections)
	}
	return gormDB, nil
}

func InitMysql(mysqlConf *conf.MysqlConf) (*gorm.DB, error) {
	db, err := initMysql(mysqlConf)
	if err != nil {
		return nil, fmt.Errorf("fail to connect mysql at %v:%v/%v, error:%w",
			mysqlConf.Host, mysqlConf.Port, mysqlConf.DbName, err)
	}
	klog.Infof("mysql init success with addr:%v:%v/%v", mysqlConf.Host, mysqlConf.Port, mysqlConf.DbName)
	return db, nil
}
