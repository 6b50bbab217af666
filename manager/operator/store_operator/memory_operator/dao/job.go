package dao

import (
	"github.com/google/btree"
	"github.com/robotslacker/testcli-sub000/manager/model"
)

// Job 按id排序放在b树中，ListJobs直接顺序遍历
type Job struct {
	model.Job
}

func (j *Job) Less(than btree.Item) bool {
	return j.ID < than.(*Job).ID
}

func FromModelJob(mJob *model.Job) *Job {
	return &Job{Job: *mJob}
}

func (j *Job) ToModelJob() *model.Job {
	ret := j.Job
	return &ret
}
