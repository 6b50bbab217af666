package dal

import (
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"github.com/robotslacker/testcli-sub000/pkg/session/mysql"
	"github.com/robotslacker/testcli-sub000/pkg/session/sqlite"
	"gorm.io/gorm"
)

// Client gorm实现的协调存储需要的连接
type Client interface {
	DB() *gorm.DB
	// SupportRowLock 是否支持SELECT ... FOR UPDATE
	SupportRowLock() bool
	Close() error
}

type MysqlClient struct {
	db *gorm.DB
}

func NewMysqlClient(mysqlConf *conf.MysqlConf) (*MysqlClient, error) {
	db, err := mysql.InitMysql(mysqlConf)
	if err != nil {
		return nil, err
	}
	return &MysqlClient{db: db}, nil
}

func (c *MysqlClient) DB() *gorm.DB {
	return c.db
}

func (c *MysqlClient) SupportRowLock() bool {
	return true
}

func (c *MysqlClient) Close() error {
	return closeDB(c.db)
}

// SqliteClient 写事务以BEGIN IMMEDIATE开始，整库串行化，不需要行锁
type SqliteClient struct {
	db *gorm.DB
}

func NewSqliteClient(sqliteConf *conf.SqliteConf) (*SqliteClient, error) {
	db, err := sqlite.InitSqlite(sqliteConf)
	if err != nil {
		return nil, err
	}
	return &SqliteClient{db: db}, nil
}

func (c *SqliteClient) DB() *gorm.DB {
	return c.db
}

func (c *SqliteClient) SupportRowLock() bool {
	return false
}

func (c *SqliteClient) Close() error {
	return closeDB(c.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ Client = (*MysqlClient)(nil)
	_ Client = (*SqliteClient)(nil)
)
