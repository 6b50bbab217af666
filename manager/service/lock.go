package service

import "sync"

// ProcessLock 本进程内Agent和API调用方共享，串行化对同一个Job的复合读改写。
// 跨进程的顺序只依赖协调存储的事务
type ProcessLock struct {
	sync.Mutex
}

func NewProcessLock() *ProcessLock {
	return new(ProcessLock)
}
