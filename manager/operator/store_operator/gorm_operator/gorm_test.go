package gorm_operator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/dal"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator/storetest"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"github.com/stretchr/testify/require"
)

func newSqliteOperator(t *testing.T, path string) *GormOperator {
	cli, err := dal.NewSqliteClient(&conf.SqliteConf{Path: path, BusyTimeoutMs: 5000})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cli.Close()
	})
	op, err := NewGormStoreOperator(cli)
	require.NoError(t, err)
	return op
}

func TestSqliteOperator(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store_operator.Operator {
		return newSqliteOperator(t, filepath.Join(t.TempDir(), "jobs.db"))
	})
}

func TestSqliteRollback(t *testing.T) {
	op := newSqliteOperator(t, filepath.Join(t.TempDir(), "jobs.db"))

	ctx, err := op.OnTxStart(context.Background())
	require.NoError(t, err)
	require.NoError(t, op.InsertJob(ctx, model.NewJob("rollback", time.Now())))
	require.NoError(t, op.OnTxFail(ctx))

	_, err = op.FetchJobByName(context.Background(), "rollback")
	require.ErrorIs(t, err, store_operator.ErrNotFound)

	require.Error(t, op.OnTxFinish(context.Background()))
}

// 两个进程打开同一个文件时看到同样的数据，AutoMigrate可以重复执行
func TestSqliteSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	first := newSqliteOperator(t, path)
	second := newSqliteOperator(t, path)

	job := model.NewJob("shared", time.Now())
	require.NoError(t, first.InsertJob(context.Background(), job))

	fetched, err := second.FetchJobByName(context.Background(), "shared")
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
}
