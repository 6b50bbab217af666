package store_operator

import (
	"context"
	"errors"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Operator 协调存储。所有进程（Agent、API调用方、worker）只通过它交换状态
type Operator interface {
	//-------------------------------job
	//插入不带id的Job，插入后回填ID。name重复时返回ErrAlreadyExists
	InsertJob(ctx context.Context, job *model.Job) error
	//整行覆盖，包括零值字段
	UpdateJob(ctx context.Context, job *model.Job) error
	FetchJobByID(ctx context.Context, jobID uint) (*model.Job, error)
	FetchJobByName(ctx context.Context, name string) (*model.Job, error)
	//在事务中读取并锁住该行，直到事务结束。不支持行锁的存储退化为普通读取，由存储自身的写事务串行化
	LockJob(ctx context.Context, jobID uint) (*model.Job, error)
	//按id升序
	ListJobs(ctx context.Context) ([]*model.Job, error)
	FindJobsByStatus(ctx context.Context, statuses ...constance.JobStatus) ([]*model.Job, error)
	FindJobsByTag(ctx context.Context, tag string) ([]*model.Job, error)

	//-------------------------------worker
	//按slot升序
	FetchWorkers(ctx context.Context, jobID uint) ([]*model.Worker, error)
	//只查找绑定了进程的worker
	FetchWorkerByProcessID(ctx context.Context, processID int) (*model.Worker, error)
	//按(jobID, slotID)插入或覆盖
	SaveWorker(ctx context.Context, worker *model.Worker) error
	InsertWorkerHistory(ctx context.Context, history *model.WorkerHistory) error
	FetchWorkerHistory(ctx context.Context, jobID uint) ([]*model.WorkerHistory, error)

	//-------------------------------timer point
	SetTimerPoint(ctx context.Context, jobID uint, slotID int, point *string) error
	//统计scope内绑定了进程并且停在point上的worker数量
	CountAtTimerPoint(ctx context.Context, scope model.BarrierScope, point string) (int, error)
	//把scope内停在point上的worker全部改为放行标记，可以重复执行
	ReleaseTimerPoint(ctx context.Context, scope model.BarrierScope, point string) (int, error)

	//-------------------------------agent lease
	FetchAgentLease(ctx context.Context) (*model.AgentLease, error)
	SaveAgentLease(ctx context.Context, lease *model.AgentLease) error
	//只删除instanceID自己持有的租约
	DeleteAgentLease(ctx context.Context, instanceID string) error

	//-------------------------------tx
	//可以嵌套，只有最外层的OnTxFinish/OnTxFail真正提交或回滚
	OnTxStart(ctx context.Context) (context.Context, error)
	OnTxFail(ctx context.Context) error
	OnTxFinish(ctx context.Context) error
}
