package model

import "time"

// AgentLease 同一个协调存储上只允许一个Agent，Agent每轮调度续约
type AgentLease struct {
	Name        string
	InstanceID  string
	HeartbeatAt time.Time
}

func (l *AgentLease) Expired(now time.Time, ttl time.Duration) bool {
	return l == nil || l.InstanceID == "" || now.Sub(l.HeartbeatAt) > ttl
}
