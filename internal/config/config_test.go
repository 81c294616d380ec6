package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootkeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path, fixedEnv(nil))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ModeDevelopment, cfg.Settings.Mode)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "frontend", cfg.Server.FrontendRole)
	assert.Equal(t, []string{"/ready", "/api/health"}, cfg.Server.LivenessPaths)
	assert.Equal(t, 3, cfg.Health.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Health.Interval)
	assert.Equal(t, 2*time.Second, cfg.Proxy.DialTimeout)
	assert.Equal(t, 5000, cfg.Ports.Port("frontend"))
	assert.Len(t, cfg.Services, 3)
	assert.Len(t, cfg.Proxy.Routes, 2)
	assert.Len(t, cfg.Workflows, 2)
	for _, svc := range cfg.Services {
		assert.True(t, cfg.ShouldLaunch(svc), svc.Name)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
health:
  interval: 250ms
  failure_threshold: 5
supervisor:
  detach_children: true
roles:
  - name: web
    env_var: WEB_PORT
    default_port: 7000
    health: /healthz
  - name: api
    env_var: API_PORT
    default_port: 7001
server:
  frontend_role: web
services:
  - name: api
    role: api
    command: ./api
    args: ["--port", "{{.Port}}"]
    required: true
proxy:
  routes:
    - prefix: /
      target: api
workflows:
  - name: worker
    command: ./worker
    match: worker
`)

	cfg, err := Load(path, fixedEnv(map[string]string{"API_PORT": "9001", "APP_MODE": "Production"}))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Health.Interval)
	assert.Equal(t, 5, cfg.Health.FailureThreshold)
	assert.True(t, cfg.Supervisor.DetachChildren)
	assert.Equal(t, 7000, cfg.Ports.Port("web"))
	assert.Equal(t, 9001, cfg.Ports.Port("api"))
	assert.Equal(t, "/healthz", cfg.HealthPath("web"))
	assert.Equal(t, "/", cfg.HealthPath("api"))
	assert.True(t, cfg.IsProduction())

	wf, ok := cfg.Workflow("worker")
	assert.True(t, ok)
	assert.Equal(t, "worker", wf.Match)
	_, ok = cfg.Workflow("nope")
	assert.False(t, ok)
}

func TestLoadSkipFlags(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path, fixedEnv(map[string]string{
		"SKIP_BROWSER_API":     "true",
		"SKIP_SECONDARY_PROXY": "0",
	}))
	require.NoError(t, err)

	launched := map[string]bool{}
	for _, svc := range cfg.Services {
		launched[svc.Name] = cfg.ShouldLaunch(svc)
	}
	assert.Equal(t, map[string]bool{"backend": true, "browser-api": false, "compat-proxy": true}, launched)
}

func TestLoadUnknownRole(t *testing.T) {
	path := writeConfig(t, `
proxy:
  routes:
    - prefix: /
      target: nowhere
`)

	_, err := Load(path, fixedEnv(nil))
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), fixedEnv(nil))
	assert.Error(t, err)
}

func TestEnvMap(t *testing.T) {
	m := EnvMap([]string{"SKIP_BROWSER_API=true", "Mixed_Case=a=b", "EMPTY", " =x", "PADDED =1"})
	assert.Equal(t, map[string]string{
		"SKIP_BROWSER_API": "true",
		"Mixed_Case":       "a=b",
		"EMPTY":            "",
		"PADDED":           "1",
	}, m)
}
