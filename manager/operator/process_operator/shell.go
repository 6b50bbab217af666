package process_operator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/armon/circbuf"
	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/mattn/go-shellwords"
	"github.com/robotslacker/testcli-sub000/manager/constance"
	pconstance "github.com/robotslacker/testcli-sub000/pkg/constance"
)

const (
	DefaultInterpreter = "/bin/sh"

	// maxBufSize 只保留输出的尾部，作为失败时Job的errorMessage
	maxBufSize = 4096

	terminateWaitTime = 2 * time.Second
)

// reportingWriter stdout和stderr共用，os/exec保证同一时刻只有一个goroutine写
type reportingWriter struct {
	lock   *sync.Mutex
	buffer *circbuf.Buffer
	log    io.Writer
}

func (p reportingWriter) Write(data []byte) (n int, err error) {
	p.lock.Lock()
	_, _ = p.buffer.Write(data)
	p.lock.Unlock()
	if p.log != nil {
		return p.log.Write(data)
	}
	return len(data), nil
}

type child struct {
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	lock     sync.Mutex
	output   *circbuf.Buffer
	logFile  *os.File
}

func (c *child) tail() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return string(c.output.Bytes())
}

// ShellLauncher 用解释器命令行加上脚本路径拉起worker，每个worker单独一个进程组
type ShellLauncher struct {
	interpreter []string
	lock        sync.Mutex
	children    map[int]*child
}

func NewShellLauncher(interpreter string) (*ShellLauncher, error) {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	args, err := shellwords.Parse(interpreter)
	if err != nil {
		return nil, fmt.Errorf("parse interpreter %q error:%w", interpreter, err)
	}
	if len(args) == 0 {
		return nil, errors.New("interpreter missing")
	}
	return &ShellLauncher{
		interpreter: args,
		children:    make(map[int]*child),
	}, nil
}

func (s *ShellLauncher) buildCmd(spec *LaunchSpec) (*exec.Cmd, error) {
	args := append(append([]string{}, s.interpreter[1:]...), spec.ScriptPath)
	cmd := exec.Command(s.interpreter[0], args...)
	cmd.Dir = filepath.Dir(spec.ScriptPath)
	//脚本退出后，残留的子进程不能一直占着输出管道
	cmd.WaitDelay = time.Second

	env := append(os.Environ(),
		pconstance.EnvJobIdentity+"="+spec.IdentityLabel,
		pconstance.EnvJobLog+"="+spec.LogPath,
		pconstance.EnvJobCredentials+"="+spec.Credentials,
	)
	if len(spec.CommandMap) != 0 {
		commandMap, err := json.Marshal(spec.CommandMap)
		if err != nil {
			return nil, err
		}
		env = append(env, pconstance.EnvJobCommandMap+"="+string(commandMap))
	}
	if spec.Store != "" {
		env = append(env, pconstance.EnvJobStore+"="+spec.Store)
	}
	if spec.TraceContext != "" {
		env = append(env, pconstance.EnvJobTrace+"="+spec.TraceContext)
	}
	cmd.Env = env
	configureProcess(cmd)
	return cmd, nil
}

func (s *ShellLauncher) Launch(spec *LaunchSpec) (int, error) {
	cmd, err := s.buildCmd(spec)
	if err != nil {
		return 0, err
	}
	output, _ := circbuf.NewBuffer(maxBufSize)
	c := &child{
		cmd:    cmd,
		done:   make(chan struct{}),
		output: output,
	}

	writer := reportingWriter{lock: &c.lock, buffer: output}
	if spec.LogPath != "" {
		if err = os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return 0, err
		}
		c.logFile, err = os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, err
		}
		writer.log = c.logFile
	}
	// use same writer for both channels
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err = cmd.Start(); err != nil {
		if c.logFile != nil {
			_ = c.logFile.Close()
		}
		return 0, err
	}
	pid := cmd.Process.Pid

	s.lock.Lock()
	s.children[pid] = c
	s.lock.Unlock()

	go s.reap(pid, c)
	klog.Debugf("launched worker %v with pid:%v, script:%v", spec.IdentityLabel, pid, spec.ScriptPath)
	return pid, nil
}

func (s *ShellLauncher) reap(pid int, c *child) {
	err := c.cmd.Wait()
	exitCode := 0
	if c.cmd.ProcessState != nil {
		exitCode = c.cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = constance.ExitCodeUnknown
	}
	if c.output.TotalWritten() > c.output.Size() {
		klog.Debugf("worker pid:%v generated %d bytes of output, truncated to %d", pid, c.output.TotalWritten(), c.output.Size())
	}
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
	c.exitCode = exitCode
	close(c.done)
}

func (s *ShellLauncher) get(pid int) (*child, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.children[pid]
	return c, ok
}

func (s *ShellLauncher) Status(pid int) (bool, int) {
	c, ok := s.get(pid)
	if !ok {
		//不是自己拉起的进程，只能探测是否还活着
		if processAlive(pid) {
			return true, 0
		}
		return false, constance.ExitCodeUnknown
	}
	select {
	case <-c.done:
		return false, c.exitCode
	default:
		return true, 0
	}
}

func (s *ShellLauncher) Output(pid int) string {
	c, ok := s.get(pid)
	if !ok {
		return ""
	}
	return c.tail()
}

func (s *ShellLauncher) Terminate(pid int) error {
	c, ok := s.get(pid)
	if !ok {
		return killProcessGroup(pid)
	}
	select {
	case <-c.done:
		return nil
	default:
	}
	if err := killProcessGroup(pid); err != nil {
		return err
	}
	select {
	case <-c.done:
	case <-time.After(terminateWaitTime):
		klog.Warnf("worker pid:%v not reaped after kill", pid)
	}
	return nil
}

func (s *ShellLauncher) Release(pid int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if c, ok := s.children[pid]; ok {
		select {
		case <-c.done:
			delete(s.children, pid)
		default:
		}
	}
}

var _ Launcher = (*ShellLauncher)(nil)
