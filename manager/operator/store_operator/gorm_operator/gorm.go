package gorm_operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/dal"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator/gorm_operator/dao"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ store_operator.Operator = (*GormOperator)(nil)

// GormOperator mysql和sqlite共用的实现，区别只在于是否使用行锁
type GormOperator struct {
	db             dal.Client
	emptyJob       *dao.Job
	emptyWorker    *dao.Worker
	emptyHistory   *dao.WorkerHistory
	emptyLease     *dao.AgentLease
	workerConflict clause.OnConflict
	leaseConflict  clause.OnConflict
}

func NewGormStoreOperator(cli dal.Client) (*GormOperator, error) {
	ret := &GormOperator{
		db:           cli,
		emptyJob:     &dao.Job{},
		emptyWorker:  &dao.Worker{},
		emptyHistory: &dao.WorkerHistory{},
		emptyLease:   &dao.AgentLease{},
		workerConflict: clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "slot_id"}},
			UpdateAll: true,
		},
		leaseConflict: clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		},
	}

	//多个进程会同时打开同一个库，所以只建表不删表
	if err := cli.DB().AutoMigrate(ret.emptyJob, ret.emptyWorker, ret.emptyHistory, ret.emptyLease); err != nil {
		return nil, fmt.Errorf("failed to migrate store tables: %w", err)
	}
	return ret, nil
}

type txState struct {
	tx    *gorm.DB
	depth int
}

const transactionKey string = "transaction"

func (m *GormOperator) conn(ctx context.Context) *gorm.DB {
	state, ok := ctx.Value(transactionKey).(*txState)
	if !ok {
		return m.db.DB().WithContext(ctx)
	}
	return state.tx
}

func (m *GormOperator) OnTxStart(ctx context.Context) (context.Context, error) {
	//如果已经有事务了
	if state, ok := ctx.Value(transactionKey).(*txState); ok {
		state.depth++
		return ctx, nil
	}

	tx := m.db.DB().WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	return context.WithValue(ctx, transactionKey, &txState{tx: tx}), nil
}

func (m *GormOperator) OnTxFail(ctx context.Context) error {
	state, ok := ctx.Value(transactionKey).(*txState)
	if !ok {
		return errors.New("no transaction in context")
	}
	if state.depth > 0 {
		state.depth--
		return nil
	}
	return state.tx.Rollback().Error
}

func (m *GormOperator) OnTxFinish(ctx context.Context) error {
	state, ok := ctx.Value(transactionKey).(*txState)
	if !ok {
		return errors.New("no transaction in context")
	}
	if state.depth > 0 {
		state.depth--
		return nil
	}
	if err := state.tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *GormOperator) InsertJob(ctx context.Context, job *model.Job) error {
	dJob := dao.FromModelJob(job)
	if err := m.conn(ctx).Create(dJob).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("job %v: %w", job.Name, store_operator.ErrAlreadyExists)
		}
		//驱动没有翻译唯一键冲突时，再查一次
		if _, fetchErr := m.FetchJobByName(ctx, job.Name); fetchErr == nil {
			return fmt.Errorf("job %v: %w", job.Name, store_operator.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	job.ID = dJob.ID
	job.UpdatedAt = dJob.UpdatedAt
	return nil
}

func (m *GormOperator) UpdateJob(ctx context.Context, job *model.Job) error {
	dJob := dao.FromModelJob(job)
	result := m.conn(ctx).Model(dJob).Select("*").Where("id = ?", job.ID).Updates(dJob)
	if result.Error != nil {
		return fmt.Errorf("failed to update job: %w", result.Error)
	}
	job.UpdatedAt = dJob.UpdatedAt
	return nil
}

func (m *GormOperator) FetchJobByID(ctx context.Context, jobID uint) (*model.Job, error) {
	return m.fetchJob(m.conn(ctx).Where("id = ?", jobID))
}

func (m *GormOperator) FetchJobByName(ctx context.Context, name string) (*model.Job, error) {
	return m.fetchJob(m.conn(ctx).Where("name = ?", name))
}

func (m *GormOperator) LockJob(ctx context.Context, jobID uint) (*model.Job, error) {
	db := m.conn(ctx)
	if m.db.SupportRowLock() {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return m.fetchJob(db.Where("id = ?", jobID))
}

func (m *GormOperator) fetchJob(db *gorm.DB) (*model.Job, error) {
	dJob := new(dao.Job)
	err := db.Limit(1).Find(dJob).Error
	if err != nil {
		return nil, err
	}
	if dJob.ID == 0 {
		return nil, store_operator.ErrNotFound
	}
	return dao.ToModelJob(dJob), nil
}

func (m *GormOperator) ListJobs(ctx context.Context) ([]*model.Job, error) {
	return m.findJobs(m.conn(ctx))
}

func (m *GormOperator) FindJobsByStatus(ctx context.Context, statuses ...constance.JobStatus) ([]*model.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return m.findJobs(m.conn(ctx).Where("status IN ?", statuses))
}

func (m *GormOperator) FindJobsByTag(ctx context.Context, tag string) ([]*model.Job, error) {
	return m.findJobs(m.conn(ctx).Where("tag = ?", tag))
}

func (m *GormOperator) findJobs(db *gorm.DB) ([]*model.Job, error) {
	var dJobs []*dao.Job
	if err := db.Order("id").Find(&dJobs).Error; err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	ret := make([]*model.Job, 0, len(dJobs))
	for _, dJob := range dJobs {
		ret = append(ret, dao.ToModelJob(dJob))
	}
	return ret, nil
}

func (m *GormOperator) FetchWorkers(ctx context.Context, jobID uint) ([]*model.Worker, error) {
	var dWorkers []*dao.Worker
	if err := m.conn(ctx).Where("job_id = ?", jobID).Order("slot_id").Find(&dWorkers).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch workers: %w", err)
	}
	ret := make([]*model.Worker, 0, len(dWorkers))
	for _, dWorker := range dWorkers {
		ret = append(ret, dao.ToModelWorker(dWorker))
	}
	return ret, nil
}

func (m *GormOperator) FetchWorkerByProcessID(ctx context.Context, processID int) (*model.Worker, error) {
	if processID == 0 {
		return nil, store_operator.ErrNotFound
	}
	var dWorkers []*dao.Worker
	//pid可能被复用，取最近绑定的一个
	err := m.conn(ctx).Where("process_id = ?", processID).
		Order("start_time DESC").Limit(1).Find(&dWorkers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch worker: %w", err)
	}
	if len(dWorkers) == 0 {
		return nil, store_operator.ErrNotFound
	}
	return dao.ToModelWorker(dWorkers[0]), nil
}

func (m *GormOperator) SaveWorker(ctx context.Context, worker *model.Worker) error {
	if err := m.conn(ctx).Clauses(m.workerConflict).Create(dao.FromModelWorker(worker)).Error; err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

func (m *GormOperator) InsertWorkerHistory(ctx context.Context, history *model.WorkerHistory) error {
	dHistory := dao.FromModelWorkerHistory(history)
	if err := m.conn(ctx).Create(dHistory).Error; err != nil {
		return fmt.Errorf("failed to insert worker history: %w", err)
	}
	history.ID = dHistory.ID
	return nil
}

func (m *GormOperator) FetchWorkerHistory(ctx context.Context, jobID uint) ([]*model.WorkerHistory, error) {
	var dHistories []*dao.WorkerHistory
	if err := m.conn(ctx).Where("job_id = ?", jobID).Order("id").Find(&dHistories).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch worker history: %w", err)
	}
	ret := make([]*model.WorkerHistory, 0, len(dHistories))
	for _, dHistory := range dHistories {
		ret = append(ret, dao.ToModelWorkerHistory(dHistory))
	}
	return ret, nil
}

func (m *GormOperator) SetTimerPoint(ctx context.Context, jobID uint, slotID int, point *string) error {
	//按值写入，不能把调用方的指针交给gorm
	var value interface{}
	if point != nil {
		value = *point
	}
	result := m.conn(ctx).Model(&dao.Worker{}).
		Where("job_id = ? AND slot_id = ?", jobID, slotID).
		Update("timer_point", value)
	if result.Error != nil {
		return fmt.Errorf("failed to set timer point: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store_operator.ErrNotFound
	}
	return nil
}

func (m *GormOperator) scoped(ctx context.Context, scope model.BarrierScope) *gorm.DB {
	//每次调用都用新的model，gorm会把更新的列写回model
	db := m.conn(ctx).Model(&dao.Worker{}).Where("process_id <> 0")
	if scope.Tagged() {
		return db.Where("job_id IN (?)", m.conn(ctx).Model(&dao.Job{}).Select("id").Where("tag = ?", scope.Tag))
	}
	return db.Where("job_id = ?", scope.JobID)
}

func (m *GormOperator) CountAtTimerPoint(ctx context.Context, scope model.BarrierScope, point string) (int, error) {
	var count int64
	if err := m.scoped(ctx, scope).Where("timer_point = ?", point).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count timer point: %w", err)
	}
	return int(count), nil
}

func (m *GormOperator) ReleaseTimerPoint(ctx context.Context, scope model.BarrierScope, point string) (int, error) {
	result := m.scoped(ctx, scope).Where("timer_point = ?", point).
		Update("timer_point", constance.TimerPointReleased)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release timer point: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (m *GormOperator) FetchAgentLease(ctx context.Context) (*model.AgentLease, error) {
	db := m.conn(ctx)
	if m.db.SupportRowLock() {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var dLeases []*dao.AgentLease
	if err := db.Where("name = ?", constance.AgentLeaseName).Limit(1).Find(&dLeases).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch agent lease: %w", err)
	}
	if len(dLeases) == 0 {
		return nil, store_operator.ErrNotFound
	}
	return dao.ToModelAgentLease(dLeases[0]), nil
}

func (m *GormOperator) SaveAgentLease(ctx context.Context, lease *model.AgentLease) error {
	dLease := dao.FromModelAgentLease(lease)
	dLease.Name = constance.AgentLeaseName
	if err := m.conn(ctx).Clauses(m.leaseConflict).Create(dLease).Error; err != nil {
		return fmt.Errorf("failed to save agent lease: %w", err)
	}
	return nil
}

func (m *GormOperator) DeleteAgentLease(ctx context.Context, instanceID string) error {
	err := m.conn(ctx).Where("name = ? AND instance_id = ?", constance.AgentLeaseName, instanceID).
		Delete(&dao.AgentLease{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete agent lease: %w", err)
	}
	return nil
}
