package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"golang.org/x/time/rate"
)

var (
	ErrManagerNotStarted = errors.New("job manager not started")
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownParam      = model.ErrUnknownParam
	ErrInvalidParam      = model.ErrInvalidParam
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrJobNotSubmitted   = errors.New("job is not in Submitted status")
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrAgentNotRunning   = errors.New("scheduling agent not running")
	ErrWaitTimeout       = errors.New("wait timeout")
	ErrInvalidTimerPoint = errors.New("invalid timer point")
)

// inTx fn中的所有写入在一个事务中提交，fn返回错误时整体回滚
func inTx(ctx context.Context, storeOperator store_operator.Operator, fn func(ctx context.Context) error) (err error) {
	txCtx, err := storeOperator.OnTxStart(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = storeOperator.OnTxFail(txCtx)
			panic(p)
		}
	}()

	if err = fn(txCtx); err != nil {
		if rollbackErr := storeOperator.OnTxFail(txCtx); rollbackErr != nil {
			klog.Warnf("rollback error:%v, cause:%v", rollbackErr, err)
		}
		return err
	}
	return storeOperator.OnTxFinish(txCtx)
}

func jobNotFound(name string, err error) error {
	if errors.Is(err, store_operator.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrJobNotFound, name)
	}
	return err
}

// pollWait 等待下一次轮询。剩余时间不足一个轮询间隔时limiter会直接报错，此时等到ctx结束
func pollWait(ctx context.Context, limiter *rate.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			<-ctx.Done()
		}
		return ctx.Err()
	}
	return nil
}
