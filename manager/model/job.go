package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

var (
	ErrUnknownParam = errors.New("unknown job parameter")
	ErrInvalidParam = errors.New("invalid job parameter")
)

// SecondParser 精确到秒的parser
var SecondParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job 一次parallel*loop规模的脚本执行请求
type Job struct {
	ID        uint
	UpdatedAt time.Time
	Name      string
	Tag       string //相同tag的Job共享timer point
	Status    constance.JobStatus

	Parallel         int           //同时运行的worker上限
	Loop             int           //每个slot的执行轮数，总执行次数为Parallel*Loop
	StarterInterval  time.Duration //爬坡阶段两次拉起之间的间隔
	ThinkTime        time.Duration //slot上一轮结束后至少空闲多久才能再次拉起
	Timeout          time.Duration //单个worker的最长运行时间，0为不限
	BlowoutThreshold int           //失败数达到该值后Job直接Failed，0为不限
	Script           string
	ScriptFullPath   string
	StartCron        string //非空时，Submitted状态的Job在cron到期后自动start

	Started      int
	Active       int
	Failed       int
	Finished     int
	ErrorMessage string

	SubmitTime time.Time
	StartTime  time.Time
	EndTime    time.Time
}

func NewJob(name string, now time.Time) *Job {
	return &Job{
		Name:       name,
		Status:     constance.JobStatusSubmitted,
		Parallel:   1,
		Loop:       1,
		SubmitTime: now,
	}
}

// Planned 计划的总执行次数
func (j *Job) Planned() int {
	return j.Parallel * j.Loop
}

func (j *Job) BlownOut() bool {
	return j.BlowoutThreshold > 0 && j.Failed >= j.BlowoutThreshold
}

func (j *Job) AllFinished() bool {
	return j.Finished >= j.Planned()
}

// Transit 状态只能沿着允许的边前进，进入终态时记录EndTime
func (j *Job) Transit(to constance.JobStatus, now time.Time) error {
	if !constance.CanTransit(j.Status, to) {
		return fmt.Errorf("job %v can not transit from %v to %v", j.Name, j.Status, to)
	}
	j.Status = to
	if to == constance.JobStatusRunning && j.StartTime.IsZero() {
		j.StartTime = now
	}
	if to.IsTerminal() {
		j.EndTime = now
	}
	return nil
}

// NextCronStart 从SubmitTime开始计算的第一次cron触发时间
func (j *Job) NextCronStart() (time.Time, error) {
	if j.StartCron == "" {
		return time.Time{}, nil
	}
	schedule, err := SecondParser.Parse(j.StartCron)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(j.SubmitTime), nil
}

// CheckCounters 0 ≤ finished ≤ started ≤ parallel*loop
func (j *Job) CheckCounters() error {
	if j.Finished < 0 || j.Started < 0 || j.Active < 0 || j.Failed < 0 {
		return fmt.Errorf("job %v has negative counter", j.Name)
	}
	if j.Finished > j.Started {
		return fmt.Errorf("job %v finished(%v) > started(%v)", j.Name, j.Finished, j.Started)
	}
	if j.Started > j.Planned() {
		return fmt.Errorf("job %v started(%v) > planned(%v)", j.Name, j.Started, j.Planned())
	}
	return nil
}

// ApplyParams 先校验全部参数，全部合法后才写入，避免部分生效
func (j *Job) ApplyParams(params map[string]string) error {
	next := *j
	for name, value := range params {
		param, ok := constance.ParseJobParam(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		if err := next.applyParam(param, value); err != nil {
			return fmt.Errorf("%w: %v=%q, %v", ErrInvalidParam, param, value, err)
		}
	}
	*j = next
	return nil
}

func (j *Job) applyParam(param constance.JobParam, value string) error {
	value = strings.TrimSpace(value)
	switch param {
	case constance.JobParamParallel:
		return setPositiveInt(&j.Parallel, value)
	case constance.JobParamLoop:
		return setPositiveInt(&j.Loop, value)
	case constance.JobParamBlowoutThreshold:
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return errors.New("must be a non-negative integer")
		}
		j.BlowoutThreshold = v
	case constance.JobParamStarterInterval:
		return setSeconds(&j.StarterInterval, value)
	case constance.JobParamThinkTime:
		return setSeconds(&j.ThinkTime, value)
	case constance.JobParamTimeout:
		return setSeconds(&j.Timeout, value)
	case constance.JobParamScript:
		if value == "" {
			return errors.New("empty script")
		}
		j.Script = value
		j.ScriptFullPath = ""
	case constance.JobParamTag:
		j.Tag = value
	case constance.JobParamStartCron:
		if value != "" {
			if _, err := SecondParser.Parse(value); err != nil {
				return err
			}
		}
		j.StartCron = value
	default:
		return fmt.Errorf("unsupported parameter %v", param)
	}
	return nil
}

func setPositiveInt(dst *int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil || v < 1 {
		return errors.New("must be an integer >= 1")
	}
	*dst = v
	return nil
}

func setSeconds(dst *time.Duration, value string) error {
	d, err := util.ParseSeconds(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
