package service

import (
	"context"
	"sync"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tunables 调度相关的可调参数
type Tunables struct {
	ScheduleInterval time.Duration //Agent两轮调度之间的间隔
	PollInterval     time.Duration //waitJob和timer point的轮询间隔
	LeaseTTL         time.Duration //超过该时间没有续约，认为Agent已经不在了
	ScriptCacheTTL   time.Duration
	ScriptBaseDir    string //相对路径的脚本以此为基准，为空时使用当前目录
	LogDir           string //worker输出的日志目录，为空时不落盘
	Credentials      string
	CommandMap       map[string]string
	StoreConf        string //编码后的存储配置，交给worker进程
}

func DefaultTunables() *Tunables {
	return &Tunables{
		ScheduleInterval: 3 * time.Second,
		PollInterval:     500 * time.Millisecond,
		LeaseTTL:         15 * time.Second,
		ScriptCacheTTL:   10 * time.Second,
	}
}

// fillDefaults 未设置的字段使用默认值
func (t *Tunables) fillDefaults() {
	defaults := DefaultTunables()
	if t.ScheduleInterval <= 0 {
		t.ScheduleInterval = defaults.ScheduleInterval
	}
	if t.PollInterval <= 0 {
		t.PollInterval = defaults.PollInterval
	}
	if t.LeaseTTL <= 0 {
		t.LeaseTTL = defaults.LeaseTTL
	}
	if t.ScriptCacheTTL <= 0 {
		t.ScriptCacheTTL = defaults.ScriptCacheTTL
	}
}

type StatisticsService struct {
	instanceID string
	enableOTel bool
	tunables   *Tunables
	tracer     trace.Tracer

	clockLock sync.RWMutex
	now       func() time.Time

	meter                metric.Meter
	defaultMetricsOption metric.MeasurementOption
	cycleCounter         metric.Int64Counter
	launchCounter        metric.Int64Counter
	launchFailureCounter metric.Int64Counter
	workerFinishCounter  metric.Int64Counter
	jobCloseCounter      metric.Int64Counter
	barrierReleaseCount  metric.Int64Counter
	cycleHistogram       metric.Int64Histogram
}

func NewStatisticsService(instanceID string, enableOTel bool, tunables *Tunables) *StatisticsService {
	if tunables == nil {
		tunables = DefaultTunables()
	}
	tunables.fillDefaults()
	ret := &StatisticsService{
		instanceID: instanceID,
		enableOTel: enableOTel,
		tunables:   tunables,
		now:        time.Now,
	}
	if enableOTel {
		ret.tracer = otel.Tracer("JobManagerTracer")
		ret.meter = otel.Meter("JobManagerMeter")
		ret.defaultMetricsOption = metric.WithAttributes(
			attribute.Key("InstanceID").String(instanceID),
		)

		var err error
		ret.cycleCounter, err = ret.meter.Int64Counter("agent_cycles_total",
			metric.WithDescription("Total number of scheduling cycles"))
		if err != nil {
			panic(err)
		}

		ret.launchCounter, err = ret.meter.Int64Counter("worker_launch_total",
			metric.WithDescription("Total number of launched workers"))
		if err != nil {
			panic(err)
		}

		ret.launchFailureCounter, err = ret.meter.Int64Counter("worker_launch_failure_total",
			metric.WithDescription("Total number of worker launch failures"))
		if err != nil {
			panic(err)
		}

		ret.workerFinishCounter, err = ret.meter.Int64Counter("worker_finish_total",
			metric.WithDescription("Total number of archived workers"))
		if err != nil {
			panic(err)
		}

		ret.jobCloseCounter, err = ret.meter.Int64Counter("job_close_total",
			metric.WithDescription("Total number of jobs reaching a terminal status"))
		if err != nil {
			panic(err)
		}

		ret.barrierReleaseCount, err = ret.meter.Int64Counter("timer_point_release_total",
			metric.WithDescription("Total number of released timer point participants"))
		if err != nil {
			panic(err)
		}

		ret.cycleHistogram, err = ret.meter.Int64Histogram("agent.cycle_duration",
			metric.WithDescription("Time spent in one scheduling cycle"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			panic(err)
		}
	}

	return ret
}

// SetClock 测试用
func (s *StatisticsService) SetClock(now func() time.Time) {
	s.clockLock.Lock()
	defer s.clockLock.Unlock()
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *StatisticsService) Now() time.Time {
	s.clockLock.RLock()
	defer s.clockLock.RUnlock()
	return s.now()
}

func (s *StatisticsService) Tracer() trace.Tracer {
	return s.tracer
}

func (s *StatisticsService) Tunables() *Tunables {
	return s.tunables
}

func (s *StatisticsService) OnCycle(duration time.Duration) {
	if s.enableOTel {
		s.cycleCounter.Add(context.Background(), 1, s.defaultMetricsOption)
		s.cycleHistogram.Record(context.Background(), duration.Milliseconds(), s.defaultMetricsOption)
	}
}

func (s *StatisticsService) OnLaunch(success bool) {
	if !s.enableOTel {
		return
	}
	if success {
		s.launchCounter.Add(context.Background(), 1, s.defaultMetricsOption)
	} else {
		s.launchFailureCounter.Add(context.Background(), 1, s.defaultMetricsOption)
	}
}

func (s *StatisticsService) OnWorkerFinish(reason constance.FinishReason) {
	if s.enableOTel {
		s.workerFinishCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", reason.String())), s.defaultMetricsOption)
	}
}

func (s *StatisticsService) OnJobClose(status constance.JobStatus) {
	if s.enableOTel {
		s.jobCloseCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status.String())), s.defaultMetricsOption)
	}
}

func (s *StatisticsService) OnTimerPointRelease(count int) {
	if s.enableOTel && count > 0 {
		s.barrierReleaseCount.Add(context.Background(), int64(count), s.defaultMetricsOption)
	}
}

func (s *StatisticsService) GetScheduleInterval() time.Duration {
	return s.tunables.ScheduleInterval
}

func (s *StatisticsService) GetPollInterval() time.Duration {
	return s.tunables.PollInterval
}

func (s *StatisticsService) GetLeaseTTL() time.Duration {
	return s.tunables.LeaseTTL
}
