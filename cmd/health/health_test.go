package health

import (
	"bytes"
	"testing"

	"bootkeeper/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRenderStatus(t *testing.T) {
	code := 1
	var buf bytes.Buffer
	renderStatus(&buf, models.SupervisorStatus{
		Mode:          "production",
		Uptime:        "1m0s",
		ListenPort:    5000,
		ListenerOwned: true,
		Health: []models.HealthRecord{
			{Role: "frontend", Port: 5000, Status: models.HealthUp},
			{Role: "backend", Port: 8888, Status: models.HealthDown, ConsecutiveFailures: 3, LastError: "connection refused"},
		},
		Services: []models.ServiceDetail{
			{Name: "backend", Role: "backend", Port: 8888, Process: &models.ProcessDetail{State: models.ProcessFailed, Pid: 77, ExitCode: &code}},
			{Name: "browser-api", Role: "browser-api", Port: 8000, Skipped: true},
		},
	})
	out := buf.String()

	assert.Contains(t, out, "Mode: production")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "down")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "77")
	assert.Contains(t, out, "skipped")
}
