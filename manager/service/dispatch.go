package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

const (
	ResponseTypeResult = "result"
	ResponseTypeError  = "error"

	StatusOK = "OK"

	ParamTimeout = "timeout"
	ParamPid     = "pid"
)

// Request 调用方发来的唯一一种请求，action决定其余字段的含义
type Request struct {
	Action     string            `json:"action"`
	JobName    string            `json:"jobName,omitempty"`
	Param      map[string]string `json:"param,omitempty"`
	TimerPoint string            `json:"timerPoint,omitempty"`
}

type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Response type为result时status为OK，为error时status为错误的类别
type Response struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Rows    *Table `json:"rows,omitempty"`
	Message string `json:"message,omitempty"`
}

// Orchestration 一个已经连上协调存储的Job Manager
type Orchestration interface {
	Jobs() *JobService
	Workers() *WorkerService
	Barriers() *BarrierService
}

// Lifecycle 管理Orchestration的开启和关闭，未开启时Current返回nil
type Lifecycle interface {
	StartManager(ctx context.Context, params map[string]string) error
	StopManager(ctx context.Context) error
	Current() Orchestration
}

type Dispatcher struct {
	lifecycle Lifecycle
	pid       func() int
}

func NewDispatcher(lifecycle Lifecycle) *Dispatcher {
	return &Dispatcher{
		lifecycle: lifecycle,
		pid:       os.Getpid,
	}
}

// WithDefaultPid register/deregister/timer在没有pid参数时代表的进程
func (d *Dispatcher) WithDefaultPid(pid func() int) *Dispatcher {
	d.pid = pid
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	if req == nil {
		return errorResponse(fmt.Errorf("%w: empty request", ErrUnknownAction))
	}
	action, ok := constance.ParseAction(req.Action)
	if !ok {
		return errorResponse(fmt.Errorf("%w: %q", ErrUnknownAction, req.Action))
	}

	resp, err := d.dispatch(ctx, action, req)
	if err != nil {
		klog.Debugf("dispatch %v job:%v error:%v", action, req.JobName, err)
		return errorResponse(err)
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, action constance.Action, req *Request) (*Response, error) {
	switch action {
	case constance.ActionStartManager:
		if err := d.lifecycle.StartManager(ctx, req.Param); err != nil {
			return nil, err
		}
		return message("Job manager started."), nil
	case constance.ActionStopManager:
		if err := d.lifecycle.StopManager(ctx); err != nil {
			return nil, err
		}
		return message("Job manager stopped."), nil
	}

	orchestration := d.lifecycle.Current()
	if orchestration == nil {
		return nil, ErrManagerNotStarted
	}
	jobs := orchestration.Jobs()

	switch action {
	case constance.ActionCreate:
		return d.create(ctx, jobs, req)
	case constance.ActionSet:
		job, err := jobs.ConfigureJob(ctx, req.JobName, req.Param)
		if err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("Job %s updated.", job.Name)), nil
	case constance.ActionStart:
		count, err := jobs.StartJob(ctx, jobTarget(req))
		if err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("%d job(s) started.", count)), nil
	case constance.ActionShutdown:
		count, err := jobs.ShutdownJob(ctx, jobTarget(req))
		if err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("%d job(s) will shutdown.", count)), nil
	case constance.ActionAbort:
		count, err := jobs.AbortJob(ctx, jobTarget(req))
		if err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("%d job(s) will abort.", count)), nil
	case constance.ActionWait:
		timeout, err := timeoutParam(req.Param)
		if err != nil {
			return nil, err
		}
		if err = jobs.WaitJob(ctx, jobTarget(req), timeout); err != nil {
			return nil, err
		}
		return message("All jobs completed."), nil
	case constance.ActionTimer:
		pid, err := d.pidParam(req.Param)
		if err != nil {
			return nil, err
		}
		if err = orchestration.Barriers().WaitAtBarrier(ctx, pid, req.TimerPoint); err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("Timer point %s released.", req.TimerPoint)), nil
	case constance.ActionRegister:
		pid, err := d.pidParam(req.Param)
		if err != nil {
			return nil, err
		}
		worker, err := orchestration.Workers().RegisterWorker(ctx, req.JobName, pid)
		if err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("Worker %s registered.", worker.Identity)), nil
	case constance.ActionDeregister:
		pid, err := d.pidParam(req.Param)
		if err != nil {
			return nil, err
		}
		if err = orchestration.Workers().DeregisterWorker(ctx, pid); err != nil {
			return nil, err
		}
		return message(fmt.Sprintf("Process %d deregistered.", pid)), nil
	case constance.ActionShow:
		list, err := jobs.ShowJob(ctx, jobTarget(req))
		if err != nil {
			return nil, err
		}
		return &Response{Type: ResponseTypeResult, Status: StatusOK, Rows: JobTable(list)}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownAction, action)
}

// create 附带的参数先在一个临时Job上校验，避免创建出配置了一半的Job
func (d *Dispatcher) create(ctx context.Context, jobs *JobService, req *Request) (*Response, error) {
	if len(req.Param) > 0 {
		if err := model.NewJob(req.JobName, jobs.statisticsService.Now()).ApplyParams(req.Param); err != nil {
			return nil, err
		}
	}
	job, err := jobs.CreateJob(ctx, req.JobName)
	if err != nil {
		return nil, err
	}
	if len(req.Param) > 0 {
		if _, err = jobs.ConfigureJob(ctx, job.Name, req.Param); err != nil {
			return nil, err
		}
	}
	return message(fmt.Sprintf("Job %s created.", job.Name)), nil
}

func jobTarget(req *Request) string {
	if strings.TrimSpace(req.JobName) == "" {
		return constance.AllJobs
	}
	return req.JobName
}

func timeoutParam(params map[string]string) (timeout time.Duration, err error) {
	value, ok := params[ParamTimeout]
	if !ok {
		return 0, nil
	}
	if timeout, err = util.ParseSeconds(value); err != nil {
		return 0, fmt.Errorf("%w: timeout: %v", ErrInvalidParam, err)
	}
	return timeout, nil
}

func (d *Dispatcher) pidParam(params map[string]string) (int, error) {
	value, ok := params[ParamPid]
	if !ok {
		return d.pid(), nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: pid %q", ErrInvalidParam, value)
	}
	return pid, nil
}

func message(msg string) *Response {
	return &Response{Type: ResponseTypeResult, Status: StatusOK, Message: msg}
}

func errorResponse(err error) *Response {
	return &Response{Type: ResponseTypeError, Status: ErrorStatus(err), Message: err.Error()}
}

var errorStatuses = []struct {
	err    error
	status string
}{
	{ErrManagerNotStarted, "ManagerNotStarted"},
	{ErrUnknownAction, "UnknownAction"},
	{ErrUnknownParam, "UnknownParam"},
	{ErrInvalidParam, "InvalidParam"},
	{ErrJobNotFound, "JobNotFound"},
	{ErrJobExists, "JobExists"},
	{ErrJobNotSubmitted, "JobNotSubmitted"},
	{ErrWorkerNotFound, "WorkerNotFound"},
	{ErrAgentNotRunning, "AgentNotRunning"},
	{ErrWaitTimeout, "WaitTimeout"},
	{ErrInvalidTimerPoint, "InvalidTimerPoint"},
}

// ErrorStatus 错误的类别，不属于任何已知类别的（通常是存储错误）为StoreError
func ErrorStatus(err error) string {
	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	return "StoreError"
}

var jobColumns = []string{"id", "name", "tag", "status", "parallel", "loop", "starterInterval", "thinkTime",
	"timeout", "blowoutThreshold", "script", "startCron", "started", "active", "failed", "finished",
	"submitTime", "startTime", "endTime", "errorMessage"}

func JobTable(jobs []*model.Job) *Table {
	table := &Table{Columns: jobColumns, Rows: make([][]string, 0, len(jobs))}
	for _, job := range jobs {
		table.Rows = append(table.Rows, []string{
			strconv.FormatUint(uint64(job.ID), 10),
			job.Name,
			job.Tag,
			job.Status.String(),
			strconv.Itoa(job.Parallel),
			strconv.Itoa(job.Loop),
			util.FormatSeconds(job.StarterInterval),
			util.FormatSeconds(job.ThinkTime),
			util.FormatSeconds(job.Timeout),
			strconv.Itoa(job.BlowoutThreshold),
			job.Script,
			job.StartCron,
			strconv.Itoa(job.Started),
			strconv.Itoa(job.Active),
			strconv.Itoa(job.Failed),
			strconv.Itoa(job.Finished),
			util.FormatTime(job.SubmitTime),
			util.FormatTime(job.StartTime),
			util.FormatTime(job.EndTime),
			job.ErrorMessage,
		})
	}
	return table
}
