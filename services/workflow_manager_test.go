//go:build !windows

package services

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/env"
	"bootkeeper/internal/models"
	"bootkeeper/internal/proc"
	"bootkeeper/internal/store"
	"bootkeeper/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYAML = `
supervisor:
  shutdown_grace: 1s
workflows:
  - name: sleeper
    command: exec sleep 30.7301
    match: sleep 30.7301
    role: frontend
  - name: napper
    command: exec sleep 30.7302
  - name: oneshot
    command: "true"
`

func loadTestConfig(t *testing.T, body string) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bootkeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	cfg, err := config.Load(path, func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	return cfg
}

func newTestWorkflows(t *testing.T) (*WorkflowManager, *store.Store) {
	t.Helper()
	home := env.HomeDir
	env.HomeDir = t.TempDir()
	t.Cleanup(func() { env.HomeDir = home })

	cfg := loadTestConfig(t, workflowYAML)
	st := store.New(filepath.Join(env.HomeDir, "state", "registry.db"), time.Second)
	m := NewWorkflowManager(cfg, st, proc.NewLauncher(st, time.Second))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.StopAll(ctx)
	})
	return m, st
}

func TestWorkflowStartIsIdempotent(t *testing.T) {
	m, _ := newTestWorkflows(t)
	ctx := context.Background()

	first, err := m.Start(ctx, "sleeper")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowRunning, first.Status)
	assert.NotZero(t, first.LastPid)
	assert.Equal(t, 5000, first.Port)

	second, err := m.Start(ctx, "sleeper")
	require.NoError(t, err)
	assert.Equal(t, first.LastPid, second.LastPid)

	pids, err := utils.FindProcessesByCmdline(ctx, "sleep 30.7301")
	require.NoError(t, err)
	assert.Equal(t, []int{first.LastPid}, pids)

	status, err := m.Status(ctx, "sleeper")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowRunning, status.Status)

	_, err = os.Stat(filepath.Join(env.LogDir(), "sleeper.log"))
	assert.NoError(t, err)
}

func TestWorkflowConcurrentStart(t *testing.T) {
	m, _ := newTestWorkflows(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mutex sync.Mutex
		pids  = map[int]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := m.Start(ctx, "napper")
			assert.NoError(t, err)
			mutex.Lock()
			pids[rec.LastPid] = true
			mutex.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, pids, 1)
	running, err := utils.FindProcessesByCmdline(ctx, "sleep 30.7302")
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestWorkflowStopAll(t *testing.T) {
	m, _ := newTestWorkflows(t)
	ctx := context.Background()

	sleeper, err := m.Start(ctx, "sleeper")
	require.NoError(t, err)
	_, err = m.Start(ctx, "napper")
	require.NoError(t, err)

	_, err = m.StopAll(ctx)
	require.NoError(t, err)

	list, err := m.StatusAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, wf := range list {
		assert.Equal(t, models.WorkflowStopped, wf.Status, wf.Name)
	}
	assert.False(t, utils.IsProcessAlive(ctx, sleeper.LastPid))
}

func TestWorkflowStopKillsMatchingStrays(t *testing.T) {
	m, _ := newTestWorkflows(t)
	ctx := context.Background()

	stray := exec.Command("sleep", "30.7301")
	utils.SetNewPG(stray)
	require.NoError(t, stray.Start())
	done := make(chan struct{})
	go func() {
		stray.Wait()
		close(done)
	}()

	rec, err := m.Stop(ctx, "sleeper")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStopped, rec.Status)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stray process survived stop")
	}
}

func TestWorkflowUnknownName(t *testing.T) {
	m, st := newTestWorkflows(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "nope")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	_, err = m.Stop(ctx, "nope")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	_, err = m.Status(ctx, "nope")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	list, err := st.ListWorkflows()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWorkflowStatusIsReadOnly(t *testing.T) {
	m, st := newTestWorkflows(t)
	ctx := context.Background()

	rec, err := m.Start(ctx, "oneshot")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !utils.IsProcessAlive(ctx, rec.LastPid)
	}, 5*time.Second, 20*time.Millisecond)

	status, err := m.Status(ctx, "oneshot")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStopped, status.Status)

	stored, found, err := st.GetWorkflow("oneshot")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.WorkflowRunning, stored.Status)

	// a dead pid does not block a restart
	again, err := m.Start(ctx, "oneshot")
	require.NoError(t, err)
	assert.NotEqual(t, rec.LastPid, again.LastPid)
}

func TestWorkflowIgnoresReusedPid(t *testing.T) {
	m, st := newTestWorkflows(t)
	ctx := context.Background()

	other := exec.Command("sleep", "30.7399")
	utils.SetNewPG(other)
	require.NoError(t, other.Start())
	done := make(chan struct{})
	go func() {
		other.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		other.Process.Kill()
		<-done
	})

	seedStale := func() {
		require.NoError(t, st.UpdateWorkflow("napper", func(rec *models.WorkflowDetail, exists bool) error {
			rec.Status = models.WorkflowRunning
			rec.LastPid = other.Process.Pid
			rec.StartTime = time.Now().Add(-48 * time.Hour)
			return nil
		}))
	}

	seedStale()
	status, err := m.Status(ctx, "napper")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStopped, status.Status)

	rec, err := m.Start(ctx, "napper")
	require.NoError(t, err)
	assert.NotEqual(t, other.Process.Pid, rec.LastPid)
	running, err := utils.FindProcessesByCmdline(ctx, "sleep 30.7302")
	require.NoError(t, err)
	assert.Equal(t, []int{rec.LastPid}, running)
	_, err = m.Stop(ctx, "napper")
	require.NoError(t, err)

	seedStale()
	stopped, err := m.Stop(ctx, "napper")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStopped, stopped.Status)
	select {
	case <-done:
		t.Fatal("stop signalled a process it did not launch")
	case <-time.After(300 * time.Millisecond):
	}
	assert.True(t, utils.IsProcessAlive(ctx, other.Process.Pid))
}

func TestSettleStoppedKeepsNewerStart(t *testing.T) {
	ctx := context.Background()
	self := os.Getpid()

	// a start landed after the stop read pid 1
	r := models.WorkflowDetail{Status: models.WorkflowRunning, LastPid: self, StartTime: time.Now()}
	settleStopped(ctx, &r, 1)
	assert.Equal(t, models.WorkflowRunning, r.Status)

	r = models.WorkflowDetail{Status: models.WorkflowRunning, LastPid: self, StartTime: time.Now()}
	settleStopped(ctx, &r, self)
	assert.Equal(t, models.WorkflowStopped, r.Status)

	r = models.WorkflowDetail{Status: models.WorkflowRunning, LastPid: self, StartTime: time.Now().Add(-48 * time.Hour)}
	settleStopped(ctx, &r, 1)
	assert.Equal(t, models.WorkflowStopped, r.Status)
}
