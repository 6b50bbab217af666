package dao

import (
	"time"

	"github.com/robotslacker/testcli-sub000/manager/model"
)

type AgentLease struct {
	Name        string    `gorm:"column:name;type:varchar(64);primarykey"`
	InstanceID  string    `gorm:"column:instance_id;type:varchar(128);not null"`
	HeartbeatAt time.Time `gorm:"column:heartbeat_at;not null"`
}

func (l *AgentLease) TableName() string {
	return "t_agent_lease"
}

func FromModelAgentLease(mLease *model.AgentLease) *AgentLease {
	return &AgentLease{
		Name:        mLease.Name,
		InstanceID:  mLease.InstanceID,
		HeartbeatAt: mLease.HeartbeatAt,
	}
}

func ToModelAgentLease(dLease *AgentLease) *model.AgentLease {
	return &model.AgentLease{
		Name:        dLease.Name,
		InstanceID:  dLease.InstanceID,
		HeartbeatAt: dLease.HeartbeatAt,
	}
}
