package dao

import (
	"github.com/google/btree"
	"github.com/robotslacker/testcli-sub000/manager/model"
)

// Worker 按(JobID, SlotID)排序，同一个Job的worker在b树中相邻
type Worker struct {
	model.Worker
}

func (w *Worker) Less(than btree.Item) bool {
	other := than.(*Worker)
	if w.JobID != other.JobID {
		return w.JobID < other.JobID
	}
	return w.SlotID < other.SlotID
}

func FromModelWorker(mWorker *model.Worker) *Worker {
	ret := &Worker{Worker: *mWorker}
	ret.TimerPoint = copyString(mWorker.TimerPoint)
	return ret
}

func (w *Worker) ToModelWorker() *model.Worker {
	ret := w.Worker
	ret.TimerPoint = copyString(w.TimerPoint)
	return &ret
}

// WorkerKey 只用于在b树中查找
func WorkerKey(jobID uint, slotID int) *Worker {
	return &Worker{Worker: model.Worker{JobID: jobID, SlotID: slotID}}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
