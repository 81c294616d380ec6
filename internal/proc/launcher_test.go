//go:build !windows

package proc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bootkeeper/internal/models"
	"bootkeeper/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mutex   sync.Mutex
	records []models.ProcessDetail
}

func (r *memRecorder) RecordProcess(d models.ProcessDetail) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records = append(r.records, d)
	return nil
}

func (r *memRecorder) last() models.ProcessDetail {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.records[len(r.records)-1]
}

func waitDone(t *testing.T, mp *ManagedProcess) {
	t.Helper()
	select {
	case <-mp.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process %s did not finish", mp.Name())
	}
}

func TestLaunchExitStates(t *testing.T) {
	rec := &memRecorder{}
	l := NewLauncher(rec, time.Second)

	ok, err := l.Launch(LaunchSpec{Name: "ok", Command: "sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)
	bad, err := l.Launch(LaunchSpec{Name: "bad", Command: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)

	waitDone(t, ok)
	waitDone(t, bad)

	assert.Equal(t, models.ProcessExited, ok.State())
	assert.Equal(t, models.ProcessFailed, bad.State())
	require.NotNil(t, bad.GetDetail().ExitCode)
	assert.Equal(t, 3, *bad.GetDetail().ExitCode)

	assert.Eventually(t, func() bool {
		return rec.last().State.Terminal()
	}, 2*time.Second, 20*time.Millisecond)
	assert.Len(t, l.List(), 2)
}

func TestSpawnThenTrackOrdersRecords(t *testing.T) {
	rec := &memRecorder{}
	l := NewLauncher(rec, time.Second)

	mp, err := l.Spawn(LaunchSpec{Name: "quick", Command: "sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)
	// exits meanwhile, but nothing is observed before Track
	time.Sleep(100 * time.Millisecond)
	rec.mutex.Lock()
	assert.Empty(t, rec.records)
	rec.mutex.Unlock()
	assert.Equal(t, models.ProcessRunning, mp.State())

	l.Track(mp)
	waitDone(t, mp)
	assert.Eventually(t, func() bool {
		rec.mutex.Lock()
		defer rec.mutex.Unlock()
		return len(rec.records) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, models.ProcessRunning, rec.records[0].State)
	assert.Equal(t, models.ProcessExited, rec.records[1].State)
}

func TestLaunchSpawnFailure(t *testing.T) {
	l := NewLauncher(nil, time.Second)

	mp, err := l.Launch(LaunchSpec{Name: "missing", Command: "/nonexistent/bootkeeper-binary"})
	require.Error(t, err)
	assert.Equal(t, models.ProcessFailed, mp.State())
	assert.Equal(t, 0, mp.Pid())
	assert.NotEmpty(t, mp.GetDetail().LastError)

	got, ok := l.Get("missing")
	assert.True(t, ok)
	assert.Same(t, mp, got)
}

func TestLaunchEnvironmentOverride(t *testing.T) {
	t.Setenv("PORT", "1111")
	t.Setenv("BOOTKEEPER_INHERITED", "yes")
	out := filepath.Join(t.TempDir(), "env.txt")
	l := NewLauncher(nil, time.Second)

	mp, err := l.Launch(LaunchSpec{
		Name:    "env",
		Command: "sh",
		Args:    []string{"-c", `echo "$PORT $BOOTKEEPER_INHERITED $SKIP_BROWSER_API" > "$OUT"`},
		Env:     map[string]string{"PORT": "8888", "SKIP_BROWSER_API": "true", "OUT": out},
	})
	require.NoError(t, err)
	waitDone(t, mp)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "8888 yes true", strings.TrimSpace(string(data)))
}

func TestLaunchLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "svc.log")
	l := NewLauncher(nil, time.Second)

	mp, err := l.Launch(LaunchSpec{Name: "log", Command: "sh", Args: []string{"-c", "echo hello"}, LogFile: logFile})
	require.NoError(t, err)
	waitDone(t, mp)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestShutdownTerminatesAttachedOnly(t *testing.T) {
	l := NewLauncher(nil, time.Second)

	attached, err := l.Launch(LaunchSpec{Name: "attached", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	detached, err := l.Launch(LaunchSpec{Name: "detached", Command: "sleep", Args: []string{"30"}, Detach: true})
	require.NoError(t, err)
	defer utils.TerminateProcessGroup(context.Background(), detached.Pid(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))

	waitDone(t, attached)
	assert.Equal(t, models.ProcessFailed, attached.State())
	assert.Equal(t, models.ProcessRunning, detached.State())
	assert.True(t, utils.IsProcessAlive(ctx, detached.Pid()))
	assert.Empty(t, l.List())
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"A=1", "PORT=1", "B=2", "PORT=3"}, map[string]string{"PORT": "9", "Z": "z", "C": "c"})
	assert.Equal(t, []string{"A=1", "PORT=9", "B=2", "C=c", "Z=z"}, got)
}
