package model

import (
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
)

// Worker Job的一个并发slot，同一时刻最多绑定一个存活进程。
// 进程结束后归档到WorkerHistory并清空，slot留给下一轮复用
type Worker struct {
	JobID        uint
	SlotID       int
	ProcessID    int //0表示空闲
	Identity     string
	Registered   bool //通过registerWorker加入，不是Agent拉起的
	StartTime    time.Time
	EndTime      time.Time
	ExitCode     int
	FinishReason constance.FinishReason
	TimerPoint   *string
}

func (w *Worker) Bound() bool {
	return w.ProcessID != 0
}

// IdleFor slot空闲了多久，从未运行过的slot视为无限久
func (w *Worker) IdleFor(now time.Time) (time.Duration, bool) {
	if w.Bound() {
		return 0, false
	}
	if w.EndTime.IsZero() {
		return time.Duration(1<<63 - 1), true
	}
	return now.Sub(w.EndTime), true
}

func (w *Worker) AtTimerPoint(point string) bool {
	return w.TimerPoint != nil && *w.TimerPoint == point
}

func (w *Worker) Released() bool {
	return w.AtTimerPoint(constance.TimerPointReleased)
}

// Bind 把一个新进程绑定到slot上
func (w *Worker) Bind(processID int, identity string, registered bool, now time.Time) {
	w.ProcessID = processID
	w.Identity = identity
	w.Registered = registered
	w.StartTime = now
	w.EndTime = time.Time{}
	w.ExitCode = 0
	w.FinishReason = constance.FinishReasonMin
	w.TimerPoint = nil
}

// Archive 生成归档记录并清空slot
func (w *Worker) Archive(exitCode int, reason constance.FinishReason, now time.Time) *WorkerHistory {
	history := &WorkerHistory{
		JobID:        w.JobID,
		SlotID:       w.SlotID,
		ProcessID:    w.ProcessID,
		Identity:     w.Identity,
		Registered:   w.Registered,
		StartTime:    w.StartTime,
		EndTime:      now,
		ExitCode:     exitCode,
		FinishReason: reason,
	}
	w.ProcessID = 0
	w.EndTime = now
	w.ExitCode = exitCode
	w.FinishReason = reason
	w.TimerPoint = nil
	return history
}

// WorkerHistory 只追加的归档
type WorkerHistory struct {
	ID           uint
	JobID        uint
	SlotID       int
	ProcessID    int
	Identity     string
	Registered   bool
	StartTime    time.Time
	EndTime      time.Time
	ExitCode     int
	FinishReason constance.FinishReason
}
