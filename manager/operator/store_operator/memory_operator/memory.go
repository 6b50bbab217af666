package memory_operator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator/memory_operator/dao"
)

var _ store_operator.Operator = (*MemoryOperator)(nil)

// MemoryOperator 只在本进程内可见，用于测试以及不需要跨进程的场景。
// 不支持回滚，事务相关的方法都是空实现
type MemoryOperator struct {
	lock sync.RWMutex

	//job
	jobTree      *btree.BTree
	jobNames     map[string]uint
	jobIDCounter uint

	//worker，按(jobID, slotID)排序
	workerTree *btree.BTree

	//history
	histories        []*model.WorkerHistory
	historyIDCounter uint

	lease *model.AgentLease
}

func NewMemoryStoreOperator() *MemoryOperator {
	return &MemoryOperator{
		jobTree:    btree.New(5),
		jobNames:   make(map[string]uint),
		workerTree: btree.New(5),
	}
}

func (m *MemoryOperator) InsertJob(ctx context.Context, job *model.Job) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.jobNames[job.Name]; ok {
		return fmt.Errorf("job %v: %w", job.Name, store_operator.ErrAlreadyExists)
	}
	m.jobIDCounter++
	job.ID = m.jobIDCounter
	job.UpdatedAt = time.Now()
	m.jobTree.ReplaceOrInsert(dao.FromModelJob(job))
	m.jobNames[job.Name] = job.ID
	return nil
}

func (m *MemoryOperator) UpdateJob(ctx context.Context, job *model.Job) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	old := m.jobTree.Get(&dao.Job{Job: model.Job{ID: job.ID}})
	if old == nil {
		return store_operator.ErrNotFound
	}
	if oldName := old.(*dao.Job).Name; oldName != job.Name {
		delete(m.jobNames, oldName)
		m.jobNames[job.Name] = job.ID
	}
	job.UpdatedAt = time.Now()
	m.jobTree.ReplaceOrInsert(dao.FromModelJob(job))
	return nil
}

func (m *MemoryOperator) FetchJobByID(ctx context.Context, jobID uint) (*model.Job, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.fetchJobWithoutLock(jobID)
}

func (m *MemoryOperator) fetchJobWithoutLock(jobID uint) (*model.Job, error) {
	item := m.jobTree.Get(&dao.Job{Job: model.Job{ID: jobID}})
	if item == nil {
		return nil, store_operator.ErrNotFound
	}
	return item.(*dao.Job).ToModelJob(), nil
}

func (m *MemoryOperator) FetchJobByName(ctx context.Context, name string) (*model.Job, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	jobID, ok := m.jobNames[name]
	if !ok {
		return nil, store_operator.ErrNotFound
	}
	return m.fetchJobWithoutLock(jobID)
}

// LockJob 本进程内的调用已经由Manager的锁串行化
func (m *MemoryOperator) LockJob(ctx context.Context, jobID uint) (*model.Job, error) {
	return m.FetchJobByID(ctx, jobID)
}

func (m *MemoryOperator) ListJobs(ctx context.Context) ([]*model.Job, error) {
	return m.filterJobs(func(*model.Job) bool { return true }), nil
}

func (m *MemoryOperator) FindJobsByStatus(ctx context.Context, statuses ...constance.JobStatus) ([]*model.Job, error) {
	want := make(map[constance.JobStatus]struct{}, len(statuses))
	for _, status := range statuses {
		want[status] = struct{}{}
	}
	return m.filterJobs(func(job *model.Job) bool {
		_, ok := want[job.Status]
		return ok
	}), nil
}

func (m *MemoryOperator) FindJobsByTag(ctx context.Context, tag string) ([]*model.Job, error) {
	return m.filterJobs(func(job *model.Job) bool { return job.Tag == tag }), nil
}

func (m *MemoryOperator) filterJobs(filter func(*model.Job) bool) []*model.Job {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ret := make([]*model.Job, 0)
	m.jobTree.Ascend(func(item btree.Item) bool {
		if job := item.(*dao.Job); filter(&job.Job) {
			ret = append(ret, job.ToModelJob())
		}
		return true
	})
	return ret
}

func (m *MemoryOperator) FetchWorkers(ctx context.Context, jobID uint) ([]*model.Worker, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ret := make([]*model.Worker, 0)
	m.workerTree.AscendGreaterOrEqual(dao.WorkerKey(jobID, -1<<31), func(item btree.Item) bool {
		worker := item.(*dao.Worker)
		if worker.JobID != jobID {
			return false
		}
		ret = append(ret, worker.ToModelWorker())
		return true
	})
	return ret, nil
}

func (m *MemoryOperator) FetchWorkerByProcessID(ctx context.Context, processID int) (*model.Worker, error) {
	if processID == 0 {
		return nil, store_operator.ErrNotFound
	}
	m.lock.RLock()
	defer m.lock.RUnlock()

	var found *dao.Worker
	m.workerTree.Ascend(func(item btree.Item) bool {
		worker := item.(*dao.Worker)
		if worker.ProcessID == processID && (found == nil || worker.StartTime.After(found.StartTime)) {
			found = worker
		}
		return true
	})
	if found == nil {
		return nil, store_operator.ErrNotFound
	}
	return found.ToModelWorker(), nil
}

func (m *MemoryOperator) SaveWorker(ctx context.Context, worker *model.Worker) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.workerTree.ReplaceOrInsert(dao.FromModelWorker(worker))
	return nil
}

func (m *MemoryOperator) InsertWorkerHistory(ctx context.Context, history *model.WorkerHistory) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.historyIDCounter++
	history.ID = m.historyIDCounter
	copied := *history
	m.histories = append(m.histories, &copied)
	return nil
}

func (m *MemoryOperator) FetchWorkerHistory(ctx context.Context, jobID uint) ([]*model.WorkerHistory, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ret := make([]*model.WorkerHistory, 0)
	for _, history := range m.histories {
		if history.JobID == jobID {
			copied := *history
			ret = append(ret, &copied)
		}
	}
	return ret, nil
}

func (m *MemoryOperator) SetTimerPoint(ctx context.Context, jobID uint, slotID int, point *string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	item := m.workerTree.Get(dao.WorkerKey(jobID, slotID))
	if item == nil {
		return store_operator.ErrNotFound
	}
	worker := item.(*dao.Worker)
	if point == nil {
		worker.TimerPoint = nil
	} else {
		v := *point
		worker.TimerPoint = &v
	}
	return nil
}

// inScopeWithoutLock 调用方需要持有读锁
func (m *MemoryOperator) inScopeWithoutLock(scope model.BarrierScope) func(*dao.Worker) bool {
	if !scope.Tagged() {
		return func(w *dao.Worker) bool { return w.Bound() && w.JobID == scope.JobID }
	}
	jobIDs := make(map[uint]struct{})
	m.jobTree.Ascend(func(item btree.Item) bool {
		if job := item.(*dao.Job); job.Tag == scope.Tag {
			jobIDs[job.ID] = struct{}{}
		}
		return true
	})
	return func(w *dao.Worker) bool {
		_, ok := jobIDs[w.JobID]
		return ok && w.Bound()
	}
}

func (m *MemoryOperator) CountAtTimerPoint(ctx context.Context, scope model.BarrierScope, point string) (int, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	inScope := m.inScopeWithoutLock(scope)
	count := 0
	m.workerTree.Ascend(func(item btree.Item) bool {
		if worker := item.(*dao.Worker); inScope(worker) && worker.AtTimerPoint(point) {
			count++
		}
		return true
	})
	return count, nil
}

func (m *MemoryOperator) ReleaseTimerPoint(ctx context.Context, scope model.BarrierScope, point string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	inScope := m.inScopeWithoutLock(scope)
	released := 0
	m.workerTree.Ascend(func(item btree.Item) bool {
		if worker := item.(*dao.Worker); inScope(worker) && worker.AtTimerPoint(point) {
			sentinel := constance.TimerPointReleased
			worker.TimerPoint = &sentinel
			released++
		}
		return true
	})
	return released, nil
}

func (m *MemoryOperator) FetchAgentLease(ctx context.Context) (*model.AgentLease, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.lease == nil {
		return nil, store_operator.ErrNotFound
	}
	copied := *m.lease
	return &copied, nil
}

func (m *MemoryOperator) SaveAgentLease(ctx context.Context, lease *model.AgentLease) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	copied := *lease
	copied.Name = constance.AgentLeaseName
	m.lease = &copied
	return nil
}

func (m *MemoryOperator) DeleteAgentLease(ctx context.Context, instanceID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.lease != nil && m.lease.InstanceID == instanceID {
		m.lease = nil
	}
	return nil
}

func (m *MemoryOperator) OnTxStart(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (m *MemoryOperator) OnTxFail(ctx context.Context) error {
	return nil
}

func (m *MemoryOperator) OnTxFinish(ctx context.Context) error {
	return nil
}
