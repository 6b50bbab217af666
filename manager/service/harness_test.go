package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/robotslacker/testcli-sub000/manager/constance"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/operator/process_operator"
	"github.com/robotslacker/testcli-sub000/manager/operator/store_operator/memory_operator"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	alive    bool
	exitCode int
	output   string
}

// fakeLauncher 不拉起真实进程，由测试控制每个pid何时退出
type fakeLauncher struct {
	lock       sync.Mutex
	nextPid    int
	procs      map[int]*fakeProcess
	specs      []*process_operator.LaunchSpec
	launchErr  error
	terminated []int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPid: 1000, procs: make(map[int]*fakeProcess)}
}

func (f *fakeLauncher) Launch(spec *process_operator.LaunchSpec) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.launchErr != nil {
		return 0, f.launchErr
	}
	pid := f.nextPid
	f.nextPid++
	f.procs[pid] = &fakeProcess{alive: true}
	f.specs = append(f.specs, spec)
	return pid, nil
}

func (f *fakeLauncher) Status(pid int) (bool, int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return false, constance.ExitCodeUnknown
	}
	return p.alive, p.exitCode
}

func (f *fakeLauncher) Output(pid int) string {
	f.lock.Lock()
	defer f.lock.Unlock()
	if p, ok := f.procs[pid]; ok {
		return p.output
	}
	return ""
}

func (f *fakeLauncher) Terminate(pid int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.terminated = append(f.terminated, pid)
	if p, ok := f.procs[pid]; ok && p.alive {
		p.alive = false
		p.exitCode = -1
	}
	return nil
}

func (f *fakeLauncher) Release(pid int) {}

// adopt 模拟一个不是Agent拉起的存活进程
func (f *fakeLauncher) adopt(pid int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.procs[pid] = &fakeProcess{alive: true}
}

func (f *fakeLauncher) exit(pid int, exitCode int, output string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	p := f.procs[pid]
	p.alive = false
	p.exitCode = exitCode
	p.output = output
}

func (f *fakeLauncher) isAlive(pid int) bool {
	alive, _ := f.Status(pid)
	return alive
}

func (f *fakeLauncher) launched() []*process_operator.LaunchSpec {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]*process_operator.LaunchSpec{}, f.specs...)
}

type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t         *testing.T
	store     *memory_operator.MemoryOperator
	launcher  *fakeLauncher
	clock     *fakeClock
	scriptDir string

	stats    *StatisticsService
	agent    *AgentService
	jobs     *JobService
	workers  *WorkerService
	barriers *BarrierService
	schedule *ScheduleService
}

func newHarness(t *testing.T) *harness {
	scriptDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "worker.sh"), []byte("exit 0\n"), 0o644))

	h := &harness{
		t:         t,
		store:     memory_operator.NewMemoryStoreOperator(),
		launcher:  newFakeLauncher(),
		clock:     &fakeClock{now: time.Date(2023, 6, 1, 10, 0, 3, 0, time.Local)},
		scriptDir: scriptDir,
	}
	h.stats = NewStatisticsService("test-agent", false, &Tunables{
		PollInterval:  10 * time.Millisecond,
		ScriptBaseDir: scriptDir,
		Credentials:   "user/pass",
	})
	h.stats.SetClock(h.clock.Now)
	lock := NewProcessLock()
	script := NewScriptService(h.stats)
	h.agent = NewAgentService("test-agent", h.store, h.stats)
	h.jobs = NewJobService(h.store, h.stats, script, h.agent, lock)
	h.workers = NewWorkerService(h.store, h.stats, lock)
	h.barriers = NewBarrierService(h.store, h.stats)
	h.schedule = NewScheduleService(h.store, h.launcher, h.stats, h.jobs, h.agent, script, lock)
	return h
}

func (h *harness) Jobs() *JobService {
	return h.jobs
}

func (h *harness) Workers() *WorkerService {
	return h.workers
}

func (h *harness) Barriers() *BarrierService {
	return h.barriers
}

func (h *harness) createJob(name string, params map[string]string) *model.Job {
	_, err := h.jobs.CreateJob(context.Background(), name)
	require.NoError(h.t, err)
	if _, ok := params["script"]; !ok {
		params["script"] = "worker.sh"
	}
	job, err := h.jobs.ConfigureJob(context.Background(), name, params)
	require.NoError(h.t, err)
	return job
}

func (h *harness) startJob(name string) {
	count, err := h.jobs.StartJob(context.Background(), name)
	require.NoError(h.t, err)
	require.Equal(h.t, 1, count)
}

func (h *harness) cycle() {
	require.NoError(h.t, h.schedule.RunOnce(context.Background()))
}

func (h *harness) job(name string) *model.Job {
	job, err := h.jobs.FetchJobByName(context.Background(), name)
	require.NoError(h.t, err)
	return job
}

// boundPids 按slot顺序返回当前绑定了进程的pid
func (h *harness) boundPids(name string) []int {
	workers, err := h.store.FetchWorkers(context.Background(), h.job(name).ID)
	require.NoError(h.t, err)
	pids := make([]int, 0)
	for _, w := range workers {
		if w.Bound() {
			pids = append(pids, w.ProcessID)
		}
	}
	return pids
}

func (h *harness) histories(name string) []*model.WorkerHistory {
	histories, err := h.store.FetchWorkerHistory(context.Background(), h.job(name).ID)
	require.NoError(h.t, err)
	return histories
}

var _ Orchestration = (*harness)(nil)

var errLaunch = errors.New("exec format error")
