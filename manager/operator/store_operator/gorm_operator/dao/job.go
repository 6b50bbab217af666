package dao

import (
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
)

type Job struct {
	ID               uint                `gorm:"column:id;primarykey"`
	UpdatedAt        time.Time           `gorm:"column:updated_at"`
	Name             string              `gorm:"column:name;type:varchar(128);uniqueIndex;not null"`
	Tag              string              `gorm:"column:tag;type:varchar(128);index;not null;default:''"`
	Status           constance.JobStatus `gorm:"column:status;type:tinyint;not null;index"`
	Parallel         int                 `gorm:"column:parallel;not null"`
	Loop             int                 `gorm:"column:loop_count;not null"`
	StarterInterval  time.Duration       `gorm:"column:starter_interval;not null"`
	ThinkTime        time.Duration       `gorm:"column:think_time;not null"`
	Timeout          time.Duration       `gorm:"column:timeout;not null"`
	BlowoutThreshold int                 `gorm:"column:blowout_threshold;not null"`
	Script           string              `gorm:"column:script;type:varchar(1024)"`
	ScriptFullPath   string              `gorm:"column:script_full_path;type:varchar(1024)"`
	StartCron        string              `gorm:"column:start_cron;type:varchar(128)"`
	Started          int                 `gorm:"column:started;not null"`
	Active           int                 `gorm:"column:active;not null"`
	Failed           int                 `gorm:"column:failed;not null"`
	Finished         int                 `gorm:"column:finished;not null"`
	ErrorMessage     string              `gorm:"column:error_message;type:text"`
	SubmitTime       time.Time           `gorm:"column:submit_time"`
	StartTime        *time.Time          `gorm:"column:start_time"`
	EndTime          *time.Time          `gorm:"column:end_time"`
}

func (j *Job) TableName() string {
	return "t_job"
}

func FromModelJob(mJob *model.Job) *Job {
	return &Job{
		ID:               mJob.ID,
		UpdatedAt:        mJob.UpdatedAt,
		Name:             mJob.Name,
		Tag:              mJob.Tag,
		Status:           mJob.Status,
		Parallel:         mJob.Parallel,
		Loop:             mJob.Loop,
		StarterInterval:  mJob.StarterInterval,
		ThinkTime:        mJob.ThinkTime,
		Timeout:          mJob.Timeout,
		BlowoutThreshold: mJob.BlowoutThreshold,
		Script:           mJob.Script,
		ScriptFullPath:   mJob.ScriptFullPath,
		StartCron:        mJob.StartCron,
		Started:          mJob.Started,
		Active:           mJob.Active,
		Failed:           mJob.Failed,
		Finished:         mJob.Finished,
		ErrorMessage:     mJob.ErrorMessage,
		SubmitTime:       mJob.SubmitTime,
		StartTime:        toNullTime(mJob.StartTime),
		EndTime:          toNullTime(mJob.EndTime),
	}
}

func ToModelJob(dJob *Job) *model.Job {
	return &model.Job{
		ID:               dJob.ID,
		UpdatedAt:        dJob.UpdatedAt,
		Name:             dJob.Name,
		Tag:              dJob.Tag,
		Status:           dJob.Status,
		Parallel:         dJob.Parallel,
		Loop:             dJob.Loop,
		StarterInterval:  dJob.StarterInterval,
		ThinkTime:        dJob.ThinkTime,
		Timeout:          dJob.Timeout,
		BlowoutThreshold: dJob.BlowoutThreshold,
		Script:           dJob.Script,
		ScriptFullPath:   dJob.ScriptFullPath,
		StartCron:        dJob.StartCron,
		Started:          dJob.Started,
		Active:           dJob.Active,
		Failed:           dJob.Failed,
		Finished:         dJob.Finished,
		ErrorMessage:     dJob.ErrorMessage,
		SubmitTime:       dJob.SubmitTime,
		StartTime:        fromNullTime(dJob.StartTime),
		EndTime:          fromNullTime(dJob.EndTime),
	}
}

// 零值时间在mysql严格模式下写不进datetime列，落库为NULL
func toNullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
