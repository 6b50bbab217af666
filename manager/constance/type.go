package constance

import (
	"strconv"
	"strings"
)

type JobStatus int8

const (
	JobStatusMin                JobStatus = iota
	JobStatusSubmitted                    //创建完成，等待start
	JobStatusRunning                      //Agent正在按照parallel/loop拉起worker
	JobStatusWaitingForShutdown           //不再拉起新的worker，等待已经在跑的worker自然结束
	JobStatusWaitingForAbort              //强制结束全部worker
	JobStatusShutdowned
	JobStatusAborted
	JobStatusFinished
	JobStatusFailed
	JobStatusMax
)

func (t JobStatus) String() string {
	switch t {
	case JobStatusSubmitted:
		return "Submitted"
	case JobStatusRunning:
		return "Running"
	case JobStatusWaitingForShutdown:
		return "WaitingForShutdown"
	case JobStatusWaitingForAbort:
		return "WaitingForAbort"
	case JobStatusShutdowned:
		return "Shutdowned"
	case JobStatusAborted:
		return "Aborted"
	case JobStatusFinished:
		return "Finished"
	case JobStatusFailed:
		return "Failed"
	default:
		return "UnknownJobStatus" + strconv.Itoa(int(t))
	}
}

func (t JobStatus) Valid() bool {
	return t > JobStatusMin && t < JobStatusMax
}

// IsTerminal 终态之后Agent不再处理该Job
func (t JobStatus) IsTerminal() bool {
	return t >= JobStatusShutdowned && t < JobStatusMax
}

// NonTerminalJobStatuses Agent每一轮需要检查的状态
func NonTerminalJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusSubmitted,
		JobStatusRunning,
		JobStatusWaitingForShutdown,
		JobStatusWaitingForAbort,
	}
}

var allowedTransitions = map[JobStatus]map[JobStatus]struct{}{
	JobStatusSubmitted: {
		JobStatusRunning:            {},
		JobStatusWaitingForShutdown: {},
		JobStatusFailed:             {},
	},
	JobStatusRunning: {
		JobStatusWaitingForShutdown: {},
		JobStatusWaitingForAbort:    {},
		JobStatusFinished:           {},
		JobStatusFailed:             {},
	},
	JobStatusWaitingForShutdown: {
		JobStatusWaitingForAbort: {},
		JobStatusShutdowned:      {},
		JobStatusFinished:        {},
		JobStatusFailed:          {},
	},
	JobStatusWaitingForAbort: {
		JobStatusAborted: {},
	},
	JobStatusShutdowned: {},
	JobStatusAborted:    {},
	JobStatusFinished:   {},
	JobStatusFailed:     {},
}

// CanTransit 状态只能前进，不能回退
func CanTransit(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

type FinishReason int8

const (
	FinishReasonMin          FinishReason = iota
	FinishReasonNormal                    //进程自己退出
	FinishReasonTimeout                   //超过Job的timeout，被Agent杀掉
	FinishReasonAborted                   //Job被abort，被Agent杀掉
	FinishReasonDeregistered              //手动注册的worker主动退出
	FinishReasonDetached                  //手动注册的worker所在Job结束，Agent不负责杀掉，只解绑
	FinishReasonMax
)

func (t FinishReason) String() string {
	switch t {
	case FinishReasonNormal:
		return "normal"
	case FinishReasonTimeout:
		return "timeout"
	case FinishReasonAborted:
		return "aborted"
	case FinishReasonDeregistered:
		return "deregistered"
	case FinishReasonDetached:
		return "detached"
	default:
		return "UnknownFinishReason" + strconv.Itoa(int(t))
	}
}

func (t FinishReason) Valid() bool {
	return t > FinishReasonMin && t < FinishReasonMax
}

type Action int8

const (
	ActionMin Action = iota
	ActionStartManager
	ActionStopManager
	ActionCreate
	ActionSet
	ActionStart
	ActionWait
	ActionShutdown
	ActionAbort
	ActionTimer
	ActionRegister
	ActionDeregister
	ActionShow
	ActionMax
)

var actionNames = map[Action]string{
	ActionStartManager: "startManager",
	ActionStopManager:  "stopManager",
	ActionCreate:       "create",
	ActionSet:          "set",
	ActionStart:        "start",
	ActionWait:         "wait",
	ActionShutdown:     "shutdown",
	ActionAbort:        "abort",
	ActionTimer:        "timer",
	ActionRegister:     "register",
	ActionDeregister:   "deregister",
	ActionShow:         "show",
}

func (t Action) String() string {
	if name, ok := actionNames[t]; ok {
		return name
	}
	return "UnknownAction" + strconv.Itoa(int(t))
}

func (t Action) Valid() bool {
	return t > ActionMin && t < ActionMax
}

// ParseAction 大小写不敏感，未知的action返回false
func ParseAction(s string) (Action, bool) {
	s = strings.TrimSpace(s)
	for action, name := range actionNames {
		if strings.EqualFold(name, s) {
			return action, true
		}
	}
	return ActionMin, false
}

// NeedStore 除了startManager以外，其他action都需要先连上协调存储
func (t Action) NeedStore() bool {
	return t != ActionStartManager
}

type JobParam int8

const (
	JobParamMin JobParam = iota
	JobParamParallel
	JobParamLoop
	JobParamStarterInterval
	JobParamThinkTime
	JobParamTimeout
	JobParamBlowoutThreshold
	JobParamScript
	JobParamTag
	JobParamStartCron
	JobParamMax
)

var jobParamNames = map[JobParam]string{
	JobParamParallel:         "parallel",
	JobParamLoop:             "loop",
	JobParamStarterInterval:  "starterInterval",
	JobParamThinkTime:        "thinkTime",
	JobParamTimeout:          "timeout",
	JobParamBlowoutThreshold: "blowoutThreshold",
	JobParamScript:           "script",
	JobParamTag:              "tag",
	JobParamStartCron:        "startCron",
}

func (t JobParam) String() string {
	if name, ok := jobParamNames[t]; ok {
		return name
	}
	return "UnknownJobParam" + strconv.Itoa(int(t))
}

func (t JobParam) Valid() bool {
	return t > JobParamMin && t < JobParamMax
}

func ParseJobParam(s string) (JobParam, bool) {
	s = strings.TrimSpace(s)
	for param, name := range jobParamNames {
		if strings.EqualFold(name, s) {
			return param, true
		}
	}
	return JobParamMin, false
}

const (
	// AllJobs start/shutdown/abort/wait/show的目标为全部Job
	AllJobs = "all"
	// TimerPointReleased 屏障放行标记，不允许作为用户的timer point名字
	TimerPointReleased = "__released__"
	// AgentLeaseName t_agent_lease中唯一的一行
	AgentLeaseName = "agent"
	// ExitCodeUnknown 不是本进程拉起的worker，无法拿到真实的退出码
	ExitCodeUnknown = -1
)
