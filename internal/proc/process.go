package proc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"
	"bootkeeper/internal/utils"
)

/**
 * Launch request
 * @property {string} name - Handle key, service or workflow name
 * @property {string} role - Role the process serves
 * @property {int} port - Port exported to the child as PORT
 * @property {string} command - Executable
 * @property {[]string} args - Arguments
 * @property {map[string]string} env - Overrides applied on top of the inherited environment
 * @property {string} dir - Working directory
 * @property {bool} detach - Leave the process running when the launcher shuts down
 * @property {string} logFile - Redirect stdout/stderr to this file, empty inherits the supervisor's
 */
type LaunchSpec struct {
	Name    string
	Role    string
	Port    int
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	Detach  bool
	LogFile string
}

/**
 * ManagedProcess is the launcher's handle on one spawned child
 * @description
 * - State moves starting -> running -> exited|failed, or starting -> failed on spawn error
 * - Exit is observed by a goroutine blocked in cmd.Wait, never polled
 */
type ManagedProcess struct {
	spec      LaunchSpec
	mutex     sync.Mutex
	state     models.ProcessState
	pid       int
	exitCode  *int
	startTime time.Time
	endTime   time.Time
	lastError string
	cmd       *exec.Cmd
	output    *os.File
	done      chan struct{}
	onExit    func(*ManagedProcess)
}

func newManagedProcess(spec LaunchSpec) *ManagedProcess {
	return &ManagedProcess{
		spec:  spec,
		state: models.ProcessStarting,
		done:  make(chan struct{}),
	}
}

func (mp *ManagedProcess) Name() string {
	return mp.spec.Name
}

func (mp *ManagedProcess) Pid() int {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	return mp.pid
}

func (mp *ManagedProcess) State() models.ProcessState {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	return mp.state
}

func (mp *ManagedProcess) Detached() bool {
	return mp.spec.Detach
}

// Done is closed once the process has exited or failed to spawn.
func (mp *ManagedProcess) Done() <-chan struct{} {
	return mp.done
}

func (mp *ManagedProcess) GetDetail() models.ProcessDetail {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	return mp.detailLocked()
}

func (mp *ManagedProcess) detailLocked() models.ProcessDetail {
	d := models.ProcessDetail{
		Name:      mp.spec.Name,
		Role:      mp.spec.Role,
		Port:      mp.spec.Port,
		Command:   mp.spec.Command,
		Args:      append([]string(nil), mp.spec.Args...),
		Pid:       mp.pid,
		State:     mp.state,
		Detached:  mp.spec.Detach,
		StartTime: mp.startTime,
		EndTime:   mp.endTime,
		LastError: mp.lastError,
	}
	if mp.exitCode != nil {
		code := *mp.exitCode
		d.ExitCode = &code
	}
	return d
}

func (mp *ManagedProcess) start() error {
	cmd := exec.Command(mp.spec.Command, mp.spec.Args...)
	cmd.Env = MergeEnv(os.Environ(), mp.spec.Env)
	cmd.Dir = mp.spec.Dir
	utils.SetNewPG(cmd)

	if mp.spec.LogFile != "" {
		f, err := openLogFile(mp.spec.LogFile)
		if err != nil {
			mp.fail(err)
			return err
		}
		cmd.Stdout = f
		cmd.Stderr = f
		mp.output = f
	} else if !mp.spec.Detach {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		if mp.output != nil {
			mp.output.Close()
		}
		mp.fail(err)
		return err
	}

	mp.mutex.Lock()
	mp.cmd = cmd
	mp.pid = cmd.Process.Pid
	mp.state = models.ProcessRunning
	mp.startTime = time.Now()
	mp.mutex.Unlock()
	return nil
}

func (mp *ManagedProcess) started() bool {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	return mp.cmd != nil
}

func (mp *ManagedProcess) fail(err error) {
	mp.mutex.Lock()
	mp.state = models.ProcessFailed
	mp.lastError = err.Error()
	mp.endTime = time.Now()
	mp.mutex.Unlock()
	close(mp.done)
}

// watch blocks in Wait and records how the process ended.
func (mp *ManagedProcess) watch() {
	err := mp.cmd.Wait()
	if mp.output != nil {
		mp.output.Close()
	}

	mp.mutex.Lock()
	code := -1
	if mp.cmd.ProcessState != nil {
		code = mp.cmd.ProcessState.ExitCode()
	}
	mp.exitCode = &code
	mp.endTime = time.Now()
	if err == nil && code == 0 {
		mp.state = models.ProcessExited
		logger.Infof("Process '%s' (PID: %d) exited normally", mp.spec.Name, mp.pid)
	} else {
		mp.state = models.ProcessFailed
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			mp.lastError = err.Error()
		} else if err != nil {
			mp.lastError = exitErr.String()
		}
		logger.Warnf("Process '%s' (PID: %d) exited with code %d: %v", mp.spec.Name, mp.pid, code, err)
	}
	onExit := mp.onExit
	mp.mutex.Unlock()

	close(mp.done)
	if onExit != nil {
		onExit(mp)
	}
}

/**
 * Terminate the process and wait for the exit to be observed
 * @param {context.Context} ctx - Bounds the whole termination
 * @param {time.Duration} grace - Delay between SIGTERM and SIGKILL
 * @returns {error} Signal errors, or ctx.Err() if the exit was not observed in time
 */
func (mp *ManagedProcess) Terminate(ctx context.Context, grace time.Duration) error {
	mp.mutex.Lock()
	pid := mp.pid
	state := mp.state
	mp.mutex.Unlock()
	if state.Terminal() || pid == 0 {
		return nil
	}

	if err := utils.TerminateProcessGroup(ctx, pid, grace); err != nil {
		return err
	}
	select {
	case <-mp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
