package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/env"
	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"
	"bootkeeper/internal/proc"
	"bootkeeper/internal/store"
	"bootkeeper/internal/utils"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

/**
 * WorkflowManager runs the named operator commands
 * @description
 * - At most one live process per workflow: per-name mutex in this process,
 *   bolt write transaction across processes (CLI and supervisor share the registry)
 * - Workflow processes are always launched detached with output in <home>/logs/<name>.log
 * - Status never writes, it derives "running" from pid liveness
 */
type WorkflowManager struct {
	cfg      *config.AppConfig
	store    *store.Store
	launcher *proc.Launcher
	locks    map[string]*sync.Mutex
}

func NewWorkflowManager(cfg *config.AppConfig, st *store.Store, launcher *proc.Launcher) *WorkflowManager {
	m := &WorkflowManager{
		cfg:      cfg,
		store:    st,
		launcher: launcher,
		locks:    make(map[string]*sync.Mutex, len(cfg.Workflows)),
	}
	for _, wf := range cfg.Workflows {
		m.locks[wf.Name] = &sync.Mutex{}
	}
	return m
}

func (m *WorkflowManager) lookup(name string) (config.WorkflowConfig, *sync.Mutex, error) {
	wf, ok := m.cfg.Workflow(name)
	if !ok {
		return wf, nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return wf, m.locks[name], nil
}

func (m *WorkflowManager) launchSpec(wf config.WorkflowConfig) proc.LaunchSpec {
	spec := proc.LaunchSpec{
		Name:    "workflow/" + wf.Name,
		Role:    wf.Role,
		Dir:     wf.Dir,
		Detach:  true,
		LogFile: filepath.Join(env.LogDir(), wf.Name+".log"),
		Env:     map[string]string{"APP_MODE": m.cfg.Settings.Mode},
	}
	if runtime.GOOS == "windows" {
		spec.Command, spec.Args = "cmd", []string{"/C", wf.Command}
	} else {
		spec.Command, spec.Args = "sh", []string{"-c", wf.Command}
	}
	for k, v := range config.EnvMap(wf.Env) {
		spec.Env[k] = v
	}
	if role, ok := m.cfg.Ports.Role(wf.Role); ok {
		spec.Port = role.ResolvedPort
		spec.Env["PORT"] = strconv.Itoa(role.ResolvedPort)
		if role.EnvVar != "" {
			spec.Env[role.EnvVar] = strconv.Itoa(role.ResolvedPort)
		}
	}
	return spec
}

/**
 * Start a workflow unless it is already running
 * @param {context.Context} ctx - Bounds the liveness lookup
 * @param {string} name - Workflow name
 * @returns {(models.WorkflowDetail, error)} Current record
 * @description
 * - Running with a live pid created no later than the recorded start: no-op, the existing record is returned
 * - A recorded pid reused by another process counts as stopped and is never signalled
 * - Otherwise launches the command and records pid and status in one transaction
 * @throws
 * - ErrWorkflowNotFound, nothing is touched
 * - Spawn errors, the record is left as it was
 */
func (m *WorkflowManager) Start(ctx context.Context, name string) (models.WorkflowDetail, error) {
	wf, lock, err := m.lookup(name)
	if err != nil {
		return models.WorkflowDetail{}, err
	}
	lock.Lock()
	defer lock.Unlock()

	var (
		result  models.WorkflowDetail
		spawned *proc.ManagedProcess
	)
	err = m.store.UpdateWorkflow(name, func(rec *models.WorkflowDetail, exists bool) error {
		rec.Command = wf.Command
		if rec.Status == models.WorkflowRunning && owned(ctx, *rec) {
			logger.Infof("Workflow '%s' already running (PID: %d)", name, rec.LastPid)
			result = *rec
			return nil
		}

		// recorded by Track once the transaction released the registry
		spec := m.launchSpec(wf)
		mp, err := m.launcher.Spawn(spec)
		recordLaunch(spec.Name, err)
		spawned = mp
		if err != nil {
			return err
		}
		rec.Status = models.WorkflowRunning
		rec.LastPid = mp.Pid()
		rec.Port = spec.Port
		rec.StartTime = time.Now()
		result = *rec
		return nil
	})
	if spawned != nil {
		m.launcher.Track(spawned)
	}
	if err != nil {
		return models.WorkflowDetail{}, fmt.Errorf("start workflow %s: %w", name, err)
	}
	return result, nil
}

// owned reports whether the recorded pid is still the process this workflow launched.
func owned(ctx context.Context, rec models.WorkflowDetail) bool {
	return utils.IsLaunchedProcess(ctx, rec.LastPid, rec.StartTime)
}

// targets collects the recorded pid plus, when configured, every process matching wf.Match.
func (m *WorkflowManager) targets(ctx context.Context, wf config.WorkflowConfig, rec models.WorkflowDetail) []int {
	seen := map[int]bool{}
	var pids []int
	if owned(ctx, rec) {
		seen[rec.LastPid] = true
		pids = append(pids, rec.LastPid)
	}
	if wf.Match != "" {
		matched, err := utils.FindProcessesByCmdline(ctx, wf.Match)
		if err != nil {
			logger.Warnf("Workflow '%s': scanning processes for '%s' failed: %v", wf.Name, wf.Match, err)
		}
		for _, pid := range matched {
			if !seen[pid] {
				seen[pid] = true
				pids = append(pids, pid)
			}
		}
	}
	sort.Ints(pids)
	return pids
}

/**
 * Stop a workflow
 * @param {context.Context} ctx - Bounds signalling and waiting
 * @param {string} name - Workflow name
 * @returns {(models.WorkflowDetail, error)} Record after the stop
 * @description
 * - Terminates the recorded pid's process group
 * - Also terminates processes whose command line contains the workflow's match string
 * - Marks the workflow stopped only when nothing matching is left
 * @throws
 * - ErrWorkflowNotFound, nothing is touched
 * - Signal errors or survivors, the status is left unchanged
 */
func (m *WorkflowManager) Stop(ctx context.Context, name string) (models.WorkflowDetail, error) {
	wf, lock, err := m.lookup(name)
	if err != nil {
		return models.WorkflowDetail{}, err
	}
	lock.Lock()
	defer lock.Unlock()

	rec, _, err := m.store.GetWorkflow(name)
	if err != nil {
		return models.WorkflowDetail{}, err
	}

	var errs []error
	for _, pid := range m.targets(ctx, wf, rec) {
		logger.Infof("Workflow '%s': terminating PID %d", name, pid)
		if err := utils.TerminateProcessGroup(ctx, pid, m.cfg.Supervisor.ShutdownGrace); err != nil {
			errs = append(errs, err)
		}
	}
	if left := m.targets(ctx, wf, rec); len(left) > 0 {
		errs = append(errs, fmt.Errorf("processes still running: %v", left))
	}
	if len(errs) > 0 {
		return rec, fmt.Errorf("stop workflow %s: %w", name, errors.Join(errs...))
	}

	var result models.WorkflowDetail
	err = m.store.UpdateWorkflow(name, func(r *models.WorkflowDetail, exists bool) error {
		r.Command = wf.Command
		settleStopped(ctx, r, rec.LastPid)
		result = *r
		return nil
	})
	if err != nil {
		return models.WorkflowDetail{}, err
	}
	if result.Status == models.WorkflowRunning {
		logger.Infof("Workflow '%s' was restarted during stop (PID: %d)", name, result.LastPid)
		return result, nil
	}
	logger.Infof("Workflow '%s' stopped", name)
	return result, nil
}

// settleStopped marks r stopped unless a start recorded a different live process after stoppedPid was read.
func settleStopped(ctx context.Context, r *models.WorkflowDetail, stoppedPid int) {
	if r.Status == models.WorkflowRunning && r.LastPid != stoppedPid && owned(ctx, *r) {
		return
	}
	r.Status = models.WorkflowStopped
}

// StopAll stops every configured workflow and reports all failures together.
func (m *WorkflowManager) StopAll(ctx context.Context) ([]models.WorkflowDetail, error) {
	var (
		list []models.WorkflowDetail
		errs []error
	)
	for _, wf := range m.cfg.Workflows {
		rec, err := m.Stop(ctx, wf.Name)
		if err != nil {
			errs = append(errs, err)
		}
		list = append(list, rec)
	}
	return list, errors.Join(errs...)
}

/**
 * Report a workflow without changing anything
 * @param {context.Context} ctx - Bounds the liveness lookup
 * @param {string} name - Workflow name
 * @returns {(models.WorkflowDetail, error)} running only if the recorded pid is alive and still ours
 */
func (m *WorkflowManager) Status(ctx context.Context, name string) (models.WorkflowDetail, error) {
	wf, _, err := m.lookup(name)
	if err != nil {
		return models.WorkflowDetail{}, err
	}
	rec, found, err := m.store.GetWorkflow(name)
	if err != nil {
		return models.WorkflowDetail{}, err
	}
	if !found {
		rec = models.WorkflowDetail{Name: name, Status: models.WorkflowStopped}
	}
	rec.Command = wf.Command
	if rec.Status == models.WorkflowRunning && !owned(ctx, rec) {
		rec.Status = models.WorkflowStopped
	}
	if rec.Status == "" {
		rec.Status = models.WorkflowStopped
	}
	return rec, nil
}

// StatusAll reports every configured workflow in configuration order.
func (m *WorkflowManager) StatusAll(ctx context.Context) ([]models.WorkflowDetail, error) {
	list := make([]models.WorkflowDetail, 0, len(m.cfg.Workflows))
	for _, wf := range m.cfg.Workflows {
		rec, err := m.Status(ctx, wf.Name)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, nil
}
