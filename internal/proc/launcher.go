package proc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"

	"github.com/sourcegraph/conc"
)

// Recorder persists process transitions so other processes (the CLI) can see them.
type Recorder interface {
	RecordProcess(detail models.ProcessDetail) error
}

/**
 * Launcher owns every process it spawned
 * @description
 * - Handles are keyed by LaunchSpec.Name, a relaunch replaces the previous handle
 * - Shutdown terminates attached handles and releases detached ones
 */
type Launcher struct {
	mutex     sync.Mutex
	processes map[string]*ManagedProcess
	recorder  Recorder
	grace     time.Duration
}

func NewLauncher(recorder Recorder, grace time.Duration) *Launcher {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Launcher{
		processes: make(map[string]*ManagedProcess),
		recorder:  recorder,
		grace:     grace,
	}
}

/**
 * Spawn a process without waiting for it to become ready
 * @param {LaunchSpec} spec - What to run
 * @returns {(*ManagedProcess, error)} The handle, also on spawn failure (state failed)
 * @description
 * - Returns as soon as the OS created the process
 * - The child gets the parent's environment plus spec.Env, overrides win
 * - Spawn errors (missing executable, permission) are returned synchronously
 * - Later crashes only show up as a failed state, nothing is retried here
 */
func (l *Launcher) Launch(spec LaunchSpec) (*ManagedProcess, error) {
	mp, err := l.Spawn(spec)
	l.Track(mp)
	return mp, err
}

/**
 * Start a process without recording it yet
 * @param {LaunchSpec} spec - What to run
 * @returns {(*ManagedProcess, error)} The registered handle
 * @description
 * - For callers holding the registry lock: nothing is written and no exit is observed
 *   until Track is called with the handle
 */
func (l *Launcher) Spawn(spec LaunchSpec) (*ManagedProcess, error) {
	if spec.Name == "" {
		spec.Name = spec.Role
	}
	mp := newManagedProcess(spec)
	mp.onExit = l.record

	l.mutex.Lock()
	l.processes[spec.Name] = mp
	l.mutex.Unlock()

	logger.Infof("Launching '%s': %s %s", spec.Name, spec.Command, strings.Join(spec.Args, " "))
	if err := mp.start(); err != nil {
		logger.Errorf("Failed to launch '%s': %v", spec.Name, err)
		return mp, fmt.Errorf("launch %s: %w", spec.Name, err)
	}
	logger.Infof("Process '%s' started (PID: %d, detached: %v)", spec.Name, mp.Pid(), spec.Detach)
	return mp, nil
}

// Track records the handle's current state, then starts observing its exit.
// The exit record therefore always follows the start record.
func (l *Launcher) Track(mp *ManagedProcess) {
	l.record(mp)
	if mp.started() {
		go mp.watch()
	}
}

func (l *Launcher) record(mp *ManagedProcess) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordProcess(mp.GetDetail()); err != nil {
		logger.Warnf("Failed to record process '%s': %v", mp.Name(), err)
	}
}

func (l *Launcher) Get(name string) (*ManagedProcess, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	mp, ok := l.processes[name]
	return mp, ok
}

// List returns handles sorted by name.
func (l *Launcher) List() []*ManagedProcess {
	l.mutex.Lock()
	list := make([]*ManagedProcess, 0, len(l.processes))
	for _, mp := range l.processes {
		list = append(list, mp)
	}
	l.mutex.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

/**
 * Stop everything this launcher owns
 * @param {context.Context} ctx - Deadline for the whole shutdown
 * @returns {error} First termination error
 * @description
 * - Attached processes are terminated concurrently (SIGTERM, grace, SIGKILL)
 * - Detached processes are dropped from the registry and keep running
 */
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mutex.Lock()
	var attached []*ManagedProcess
	for name, mp := range l.processes {
		if mp.Detached() {
			logger.Infof("Leaving detached process '%s' (PID: %d) running", name, mp.Pid())
			continue
		}
		attached = append(attached, mp)
	}
	l.processes = make(map[string]*ManagedProcess)
	l.mutex.Unlock()

	var (
		wg       conc.WaitGroup
		errMutex sync.Mutex
		firstErr error
	)
	for _, mp := range attached {
		mp := mp
		wg.Go(func() {
			if err := mp.Terminate(ctx, l.grace); err != nil {
				logger.Errorf("Failed to terminate '%s' (PID: %d): %v", mp.Name(), mp.Pid(), err)
				errMutex.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMutex.Unlock()
			}
		})
	}
	wg.Wait()
	return firstErr
}

/**
 * Merge environment overrides into a KEY=VALUE list
 * @param {[]string} base - Inherited environment, usually os.Environ()
 * @param {map[string]string} overrides - Values that replace or extend base
 * @returns {[]string} New list, base order kept, new keys appended sorted
 */
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if v, ok := overrides[key]; ok {
			if !seen[key] {
				out = append(out, key+"="+v)
				seen[key] = true
			}
			continue
		}
		out = append(out, kv)
	}
	var extra []string
	for k := range overrides {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
