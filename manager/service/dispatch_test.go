package service

import (
	"context"
	"errors"
	"testing"

	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator"
	"github.com/stretchr/testify/require"
)

type fakeLifecycle struct {
	h       *harness
	started bool
}

func (f *fakeLifecycle) StartManager(ctx context.Context, params map[string]string) error {
	for key := range params {
		if key != "store" {
			return ErrUnknownParam
		}
	}
	f.started = true
	return nil
}

func (f *fakeLifecycle) StopManager(ctx context.Context) error {
	if !f.started {
		return ErrManagerNotStarted
	}
	f.started = false
	return nil
}

func (f *fakeLifecycle) Current() Orchestration {
	if !f.started {
		return nil
	}
	return f.h
}

func TestDispatchEnvelope(t *testing.T) {
	h := newHarness(t)
	dispatcher := NewDispatcher(&fakeLifecycle{h: h}).WithDefaultPid(func() int { return 999 })
	ctx := context.Background()

	cases := []struct {
		name    string
		req     *Request
		status  string
		message string
	}{
		{name: "not started", req: &Request{Action: "show"}, status: "ManagerNotStarted"},
		{name: "unknown action", req: &Request{Action: "explode"}, status: "UnknownAction"},
		{name: "nil request", req: nil, status: "UnknownAction"},
		{name: "bad start param", req: &Request{Action: "startManager", Param: map[string]string{"color": "red"}},
			status: "UnknownParam"},
		{name: "start manager", req: &Request{Action: "StartManager"}, status: StatusOK, message: "Job manager started."},
		{name: "create", req: &Request{Action: "create", JobName: "job1", Param: map[string]string{"parallel": "2"}},
			status: StatusOK, message: "Job job1 created."},
		{name: "create again", req: &Request{Action: "create", JobName: "job1"}, status: "JobExists"},
		{name: "create unknown param", req: &Request{Action: "create", JobName: "job2",
			Param: map[string]string{"bogus": "1"}}, status: "UnknownParam"},
		{name: "not created on bad param", req: &Request{Action: "show", JobName: "job2"}, status: "JobNotFound"},
		{name: "create invalid param", req: &Request{Action: "create", JobName: "job3",
			Param: map[string]string{"parallel": "0"}}, status: "InvalidParam"},
		{name: "set", req: &Request{Action: "set", JobName: "job1", Param: map[string]string{"loop": "3"}},
			status: StatusOK, message: "Job job1 updated."},
		{name: "wait bad timeout", req: &Request{Action: "wait", JobName: "job1",
			Param: map[string]string{"timeout": "soon"}}, status: "InvalidParam"},
		{name: "empty timer point", req: &Request{Action: "timer"}, status: "InvalidTimerPoint"},
		{name: "timer unknown pid", req: &Request{Action: "timer", TimerPoint: "p1"}, status: "WorkerNotFound"},
		{name: "register bad pid", req: &Request{Action: "register", JobName: "job1",
			Param: map[string]string{"pid": "abc"}}, status: "InvalidParam"},
		{name: "register", req: &Request{Action: "register", JobName: "job1"}, status: StatusOK},
		{name: "deregister", req: &Request{Action: "deregister"}, status: StatusOK,
			message: "Process 999 deregistered."},
		{name: "deregister again", req: &Request{Action: "deregister", Param: map[string]string{"pid": "999"}},
			status: "WorkerNotFound"},
		{name: "start", req: &Request{Action: "start", JobName: "job1"}, status: StatusOK,
			message: "1 job(s) started."},
		{name: "set after start", req: &Request{Action: "set", JobName: "job1",
			Param: map[string]string{"loop": "1"}}, status: "JobNotSubmitted"},
		{name: "wait without agent", req: &Request{Action: "wait", JobName: "job1"}, status: "AgentNotRunning"},
		{name: "shutdown all", req: &Request{Action: "shutdown"}, status: StatusOK, message: "1 job(s) will shutdown."},
		{name: "abort", req: &Request{Action: "abort", JobName: "job1"}, status: StatusOK,
			message: "1 job(s) will abort."},
		{name: "stop manager", req: &Request{Action: "stopManager"}, status: StatusOK},
		{name: "stop manager again", req: &Request{Action: "stopManager"}, status: "ManagerNotStarted"},
	}
	for _, c := range cases {
		resp := dispatcher.Dispatch(ctx, c.req)
		require.Equal(t, c.status, resp.Status, "%s: %s", c.name, resp.Message)
		if c.status == StatusOK {
			require.Equal(t, ResponseTypeResult, resp.Type, c.name)
		} else {
			require.Equal(t, ResponseTypeError, resp.Type, c.name)
			require.NotEmpty(t, resp.Message, c.name)
		}
		if c.message != "" {
			require.Equal(t, c.message, resp.Message, c.name)
		}
	}
}

func TestDispatchShow(t *testing.T) {
	h := newHarness(t)
	lifecycle := &fakeLifecycle{h: h, started: true}
	dispatcher := NewDispatcher(lifecycle)
	h.createJob("job1", map[string]string{"parallel": "2", "loop": "3", "tag": "group", "thinkTime": "0.5"})
	h.createJob("job2", map[string]string{})

	resp := dispatcher.Dispatch(context.Background(), &Request{Action: "show", JobName: "job1"})
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Rows)
	require.Len(t, resp.Rows.Rows, 1)
	row := map[string]string{}
	for i, column := range resp.Rows.Columns {
		row[column] = resp.Rows.Rows[0][i]
	}
	require.Equal(t, "job1", row["name"])
	require.Equal(t, "group", row["tag"])
	require.Equal(t, "Submitted", row["status"])
	require.Equal(t, "2", row["parallel"])
	require.Equal(t, "3", row["loop"])
	require.Equal(t, "0.5", row["thinkTime"])
	require.Equal(t, "", row["startTime"])

	resp = dispatcher.Dispatch(context.Background(), &Request{Action: "show"})
	require.Equal(t, StatusOK, resp.Status)
	require.Len(t, resp.Rows.Rows, 2)
}

func TestErrorStatus(t *testing.T) {
	require.Equal(t, "StoreError", ErrorStatus(errors.New("connection refused")))
	require.Equal(t, "Canceled", ErrorStatus(context.Canceled))
	require.Equal(t, "WaitTimeout", ErrorStatus(ErrWaitTimeout))
	require.Equal(t, "JobNotFound", ErrorStatus(jobNotFound("job1", store_operator.ErrNotFound)))
}
