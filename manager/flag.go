package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"github.com/robotslacker/testcli-sub000/pkg/constance"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

// paramFlag 可以重复出现的-param k=v
type paramFlag map[string]string

func (p paramFlag) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("param should be key=value, got %q", value)
	}
	p[strings.TrimSpace(k)] = v
	return nil
}

type SetupConfig struct {
	InstanceID string
	HttpHost   string
	HttpPort   int
	LogLevel   int
	ConfigFile string

	//调度
	Interpreter      string
	ScheduleInterval float64
	ScriptBaseDir    string
	LogDir           string
	Credentials      string

	//服务发现
	EnableConsul bool

	//one-shot
	Action     string
	JobName    string
	Params     paramFlag
	TimerPoint string
	Pid        int
	Remote     bool

	Common *conf.CommonConf
}

// parseFlags 配置的优先级：命令行 > TESTCLI_JOB_STORE环境变量 > 配置文件 > 默认配置
func parseFlags() *SetupConfig {
	setupConfig := &SetupConfig{
		Params: make(paramFlag),
		Common: conf.GetCommonConfig(conf.Env(util.GetEnv())),
	}
	store := setupConfig.Common.Store
	var storeType string
	var consulConf conf.ConsulConf
	var oTelConf conf.OTelConf

	flag.StringVar(&setupConfig.InstanceID, "instanceID", "", "instance id, generated when empty")
	flag.StringVar(&setupConfig.HttpHost, "httpHost", "127.0.0.1", "advertised http host")
	flag.IntVar(&setupConfig.HttpPort, "httpPort", 8080, "http port")
	flag.IntVar(&setupConfig.LogLevel, "logLevel", int(klog.LevelInfo), "log level")
	flag.StringVar(&setupConfig.ConfigFile, "config", "", "yaml config file")

	flag.StringVar(&setupConfig.Interpreter, "interpreter", "/bin/sh", "command line used to run worker scripts")
	flag.Float64Var(&setupConfig.ScheduleInterval, "pollInterval", 3, "agent schedule interval in seconds")
	flag.StringVar(&setupConfig.ScriptBaseDir, "scriptBaseDir", "", "base dir of relative script paths")
	flag.StringVar(&setupConfig.LogDir, "logDir", "", "worker log dir")
	flag.StringVar(&setupConfig.Credentials, "credentials", "", "credentials passed to workers")

	flag.BoolVar(&setupConfig.EnableConsul, "enableConsul", false, "register to consul")
	flag.StringVar(&consulConf.Host, "consulHost", "", "consul host")
	flag.IntVar(&consulConf.Port, "consulPort", 0, "consul port")
	flag.BoolVar(&oTelConf.EnableTrace, "enableTrace", false, "enable otel trace")
	flag.BoolVar(&oTelConf.EnableMetrics, "enableMetrics", false, "enable otel metrics")
	flag.StringVar(&oTelConf.ExportEndpointHost, "otelEndpointHost", "", "otel collector host")
	flag.StringVar(&oTelConf.ExportEndpointPort, "otelEndpointPort", "", "otel collector port")

	flag.StringVar(&storeType, "store", "", "store type, mysql|sqlite|memory")
	var mysqlConf conf.MysqlConf
	var sqliteConf conf.SqliteConf
	flag.StringVar(&mysqlConf.Host, "mysqlHost", "", "MySQL host")
	flag.StringVar(&mysqlConf.Port, "mysqlPort", "", "MySQL port")
	flag.StringVar(&mysqlConf.UserName, "mysqlUsername", "", "MySQL username")
	flag.StringVar(&mysqlConf.Password, "mysqlPassword", "", "MySQL password")
	flag.StringVar(&mysqlConf.DbName, "mysqlDbname", "", "MySQL database name")
	flag.StringVar(&sqliteConf.Path, "sqlitePath", "", "sqlite file path")

	flag.StringVar(&setupConfig.Action, "action", "", "dispatch one action and exit, serve when empty")
	flag.StringVar(&setupConfig.JobName, "job", "", "job name")
	flag.Var(setupConfig.Params, "param", "action param key=value, repeatable")
	flag.StringVar(&setupConfig.TimerPoint, "point", "", "timer point name")
	flag.IntVar(&setupConfig.Pid, "pid", os.Getppid(), "process acting in register/deregister/timer, the calling script by default")
	flag.BoolVar(&setupConfig.Remote, "remote", false, "send the action to an agent found in consul")
	flag.Parse()

	if setupConfig.ConfigFile != "" {
		if err := conf.LoadFile(setupConfig.ConfigFile, setupConfig.Common); err != nil {
			klog.Fatalf("load config error:%v", err)
		}
	}
	//Agent拉起的worker直接连回Agent使用的存储
	if encoded := os.Getenv(constance.EnvJobStore); encoded != "" {
		inherited, err := conf.DecodeStoreConf(encoded)
		if err != nil {
			klog.Warnf("ignore invalid %v:%v", constance.EnvJobStore, err)
		} else {
			setupConfig.Common.Store = inherited
			store = inherited
		}
	}
	if store.Mysql == nil {
		store.Mysql = &conf.MysqlConf{}
	}
	if store.Sqlite == nil {
		store.Sqlite = &conf.SqliteConf{}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			store.Type = constance.StoreType(storeType)
		case "mysqlHost":
			store.Mysql.Host = mysqlConf.Host
		case "mysqlPort":
			store.Mysql.Port = mysqlConf.Port
		case "mysqlUsername":
			store.Mysql.UserName = mysqlConf.UserName
		case "mysqlPassword":
			store.Mysql.Password = mysqlConf.Password
		case "mysqlDbname":
			store.Mysql.DbName = mysqlConf.DbName
		case "sqlitePath":
			store.Sqlite.Path = sqliteConf.Path
		case "consulHost":
			setupConfig.Common.Consul.Host = consulConf.Host
		case "consulPort":
			setupConfig.Common.Consul.Port = consulConf.Port
		case "enableTrace":
			setupConfig.Common.OTel.EnableTrace = oTelConf.EnableTrace
		case "enableMetrics":
			setupConfig.Common.OTel.EnableMetrics = oTelConf.EnableMetrics
		case "otelEndpointHost":
			setupConfig.Common.OTel.ExportEndpointHost = oTelConf.ExportEndpointHost
		case "otelEndpointPort":
			setupConfig.Common.OTel.ExportEndpointPort = oTelConf.ExportEndpointPort
		}
	})
	if util.GetEnv() == "k8s" && setupConfig.InstanceID == "" {
		setupConfig.InstanceID = os.Getenv("HOSTNAME")
	}
	return setupConfig
}
