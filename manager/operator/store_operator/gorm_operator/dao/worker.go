package dao

import (
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
)

type Worker struct {
	JobID        uint                   `gorm:"column:job_id;primaryKey;autoIncrement:false"`
	SlotID       int                    `gorm:"column:slot_id;primaryKey;autoIncrement:false"`
	ProcessID    int                    `gorm:"column:process_id;not null;index"`
	Identity     string                 `gorm:"column:identity;type:varchar(256)"`
	Registered   bool                   `gorm:"column:registered;not null"`
	StartTime    *time.Time             `gorm:"column:start_time"`
	EndTime      *time.Time             `gorm:"column:end_time"`
	ExitCode     int                    `gorm:"column:exit_code;not null"`
	FinishReason constance.FinishReason `gorm:"column:finish_reason;type:tinyint;not null"`
	TimerPoint   *string                `gorm:"column:timer_point;type:varchar(128);index"`
}

func (w *Worker) TableName() string {
	return "t_worker"
}

func FromModelWorker(mWorker *model.Worker) *Worker {
	return &Worker{
		JobID:        mWorker.JobID,
		SlotID:       mWorker.SlotID,
		ProcessID:    mWorker.ProcessID,
		Identity:     mWorker.Identity,
		Registered:   mWorker.Registered,
		StartTime:    toNullTime(mWorker.StartTime),
		EndTime:      toNullTime(mWorker.EndTime),
		ExitCode:     mWorker.ExitCode,
		FinishReason: mWorker.FinishReason,
		TimerPoint:   mWorker.TimerPoint,
	}
}

func ToModelWorker(dWorker *Worker) *model.Worker {
	return &model.Worker{
		JobID:        dWorker.JobID,
		SlotID:       dWorker.SlotID,
		ProcessID:    dWorker.ProcessID,
		Identity:     dWorker.Identity,
		Registered:   dWorker.Registered,
		StartTime:    fromNullTime(dWorker.StartTime),
		EndTime:      fromNullTime(dWorker.EndTime),
		ExitCode:     dWorker.ExitCode,
		FinishReason: dWorker.FinishReason,
		TimerPoint:   dWorker.TimerPoint,
	}
}

type WorkerHistory struct {
	ID           uint                   `gorm:"column:id;primarykey"`
	JobID        uint                   `gorm:"column:job_id;not null;index"`
	SlotID       int                    `gorm:"column:slot_id;not null"`
	ProcessID    int                    `gorm:"column:process_id;not null"`
	Identity     string                 `gorm:"column:identity;type:varchar(256)"`
	Registered   bool                   `gorm:"column:registered;not null"`
	StartTime    *time.Time             `gorm:"column:start_time"`
	EndTime      *time.Time             `gorm:"column:end_time"`
	ExitCode     int                    `gorm:"column:exit_code;not null"`
	FinishReason constance.FinishReason `gorm:"column:finish_reason;type:tinyint;not null"`
}

func (h *WorkerHistory) TableName() string {
	return "t_worker_history"
}

func FromModelWorkerHistory(mHistory *model.WorkerHistory) *WorkerHistory {
	return &WorkerHistory{
		ID:           mHistory.ID,
		JobID:        mHistory.JobID,
		SlotID:       mHistory.SlotID,
		ProcessID:    mHistory.ProcessID,
		Identity:     mHistory.Identity,
		Registered:   mHistory.Registered,
		StartTime:    toNullTime(mHistory.StartTime),
		EndTime:      toNullTime(mHistory.EndTime),
		ExitCode:     mHistory.ExitCode,
		FinishReason: mHistory.FinishReason,
	}
}

func ToModelWorkerHistory(dHistory *WorkerHistory) *model.WorkerHistory {
	return &model.WorkerHistory{
		ID:           dHistory.ID,
		JobID:        dHistory.JobID,
		SlotID:       dHistory.SlotID,
		ProcessID:    dHistory.ProcessID,
		Identity:     dHistory.Identity,
		Registered:   dHistory.Registered,
		StartTime:    fromNullTime(dHistory.StartTime),
		EndTime:      fromNullTime(dHistory.EndTime),
		ExitCode:     dHistory.ExitCode,
		FinishReason: dHistory.FinishReason,
	}
}
