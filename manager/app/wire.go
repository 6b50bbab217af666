//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/robotslacker/testcli-sub000/manager/service"
)

func genManager(instanceID string, enableOTel bool, tunables *service.Tunables, storeOperator store_operator.Operator, launcher process_operator.Launcher) (*Manager, error) {
	wire.Build(
		newManagerInner,

		//service
		service.NewAgentService,
		service.NewBarrierService,
		service.NewJobService,
		service.NewProcessLock,
		service.NewScheduleService,
		service.NewScriptService,
		service.NewStatisticsService,
		service.NewWorkerService,
	)

	return &Manager{}, nil
}
