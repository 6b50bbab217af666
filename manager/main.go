package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/app"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/handler/http"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/manager/service"
	pconstance "github.com/robotslacker/testcli-sub000/pkg/constance"
	"github.com/robotslacker/testcli-sub000/pkg/discovery"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

func main() {
	setupConfig := parseFlags()
	klog.SetLevel(klog.Level(setupConfig.LogLevel))

	if setupConfig.Action == "" {
		serve(setupConfig)
		return
	}
	resp := oneShot(setupConfig)
	out, _ := json.Marshal(resp)
	fmt.Println(string(out))
	if resp.Type == service.ResponseTypeError {
		os.Exit(1)
	}
}

func newBuilder(setupConfig *SetupConfig, withAgent bool) func() *app.ManagerBuilder {
	return func() *app.ManagerBuilder {
		builder := app.NewManagerBuilder()
		if setupConfig.InstanceID != "" {
			builder = builder.WithInstanceID(setupConfig.InstanceID)
		}
		if !withAgent {
			return builder
		}
		launcher, err := process_operator.NewShellLauncher(setupConfig.Interpreter)
		if err != nil {
			klog.Fatalf("invalid interpreter:%v", err)
		}
		builder = builder.WithLauncher(launcher).
			WithOTelConfig(setupConfig.Common.OTel).
			WithTunables(&service.Tunables{
				ScheduleInterval: time.Duration(setupConfig.ScheduleInterval * float64(time.Second)),
				ScriptBaseDir:    setupConfig.ScriptBaseDir,
				LogDir:           setupConfig.LogDir,
				Credentials:      setupConfig.Credentials,
			})
		if setupConfig.EnableConsul {
			builder = builder.WithConsulDiscovery(setupConfig.Common.Consul)
		}
		return builder
	}
}

func serve(setupConfig *SetupConfig) {
	engine := app.NewEngine(setupConfig.Common.Store, newBuilder(setupConfig, true), true)
	if err := engine.StartManager(context.Background(), nil); err != nil {
		klog.Fatalf("start job manager error:%v", err)
	}
	manager := engine.Manager()

	router := http.InitHttpHandler(engine, service.NewDispatcher(engine))
	go func() {
		klog.Infof("Start the server at %v", setupConfig.HttpPort)
		if err := router.Run(":" + strconv.Itoa(setupConfig.HttpPort)); err != nil {
			klog.Fatalf("failed to start HTTP server: %v", err)
		}
	}()

	healthCheckUrl := fmt.Sprintf("http://%s:%d%s", setupConfig.HttpHost, setupConfig.HttpPort, http.HealthCheckPath)
	if err := manager.RegisterService(&discovery.ServiceServeConf{
		Protoc: discovery.ProtocTypeHttp,
		Host:   setupConfig.HttpHost,
		Port:   setupConfig.HttpPort,
	}, healthCheckUrl); err != nil {
		klog.Errorf("register to discovery error:%v", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh
	if err := engine.StopManager(context.Background()); err != nil && !errors.Is(err, service.ErrManagerNotStarted) {
		klog.Errorf("stop job manager error:%v", err)
	}
}

// oneShot 供脚本调用：连上存储执行一个action后退出，不运行Agent
func oneShot(setupConfig *SetupConfig) *service.Response {
	ctx := util.String2TraceCtx(context.Background(), os.Getenv(pconstance.EnvJobTrace))
	req := &service.Request{
		Action:     setupConfig.Action,
		JobName:    setupConfig.JobName,
		Param:      setupConfig.Params,
		TimerPoint: setupConfig.TimerPoint,
	}
	action, ok := constance.ParseAction(req.Action)
	if ok && actsForProcess(action) {
		if _, exist := req.Param[service.ParamPid]; !exist {
			req.Param[service.ParamPid] = strconv.Itoa(setupConfig.Pid)
		}
	}

	if setupConfig.Remote {
		return remoteDispatch(ctx, setupConfig, req)
	}

	engine := app.NewEngine(setupConfig.Common.Store, newBuilder(setupConfig, false), false)
	dispatcher := service.NewDispatcher(engine)
	if ok && action.NeedStore() {
		if err := engine.StartManager(ctx, nil); err != nil {
			return &service.Response{Type: service.ResponseTypeError, Status: service.ErrorStatus(err), Message: err.Error()}
		}
	}
	defer func() {
		_ = engine.StopManager(context.Background())
	}()
	return dispatcher.Dispatch(ctx, req)
}

func actsForProcess(action constance.Action) bool {
	return action == constance.ActionTimer || action == constance.ActionRegister || action == constance.ActionDeregister
}

func remoteDispatch(ctx context.Context, setupConfig *SetupConfig, req *service.Request) *service.Response {
	discoveryClient, err := discovery.NewConsulDiscoverClient(setupConfig.Common.Consul.Host, setupConfig.Common.Consul.Port)
	if err != nil {
		return &service.Response{Type: service.ResponseTypeError, Status: "DiscoveryError", Message: err.Error()}
	}
	instances := discoveryClient.DiscoverServices(pconstance.ManagerServiceName)
	if len(instances) == 0 {
		return &service.Response{Type: service.ResponseTypeError, Status: service.ErrorStatus(service.ErrAgentNotRunning),
			Message: service.ErrAgentNotRunning.Error()}
	}
	resp, err := http.SendDispatch(ctx, instances[0].Address(), req)
	if err != nil {
		return &service.Response{Type: service.ResponseTypeError, Status: "DiscoveryError", Message: err.Error()}
	}
	return resp
}
