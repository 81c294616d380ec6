package workflow

import (
	"io"
	"strconv"
	"time"

	"bootkeeper/cmd/root"
	"bootkeeper/internal/env"
	"bootkeeper/internal/models"
	"bootkeeper/internal/proc"
	"bootkeeper/internal/store"
	"bootkeeper/services"

	"github.com/jedib0t/go-pretty/v6/table"
)

// newManager works on the same registry file as a running supervisor.
func newManager() *services.WorkflowManager {
	cfg := root.AppConfig
	st := store.New(env.StatePath(), 2*time.Second)
	launcher := proc.NewLauncher(st, cfg.Supervisor.ShutdownGrace)
	return services.NewWorkflowManager(cfg, st, launcher)
}

/**
 * Print workflow records as a table
 * @param {io.Writer} w - Output
 * @param {[]models.WorkflowDetail} list - Records to print
 */
func renderWorkflows(w io.Writer, list []models.WorkflowDetail) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Status", "PID", "Port", "Started", "Command"})
	for _, wf := range list {
		pid, port, started := "-", "-", "-"
		if wf.LastPid > 0 {
			pid = strconv.Itoa(wf.LastPid)
		}
		if wf.Port > 0 {
			port = strconv.Itoa(wf.Port)
		}
		if !wf.StartTime.IsZero() {
			started = wf.StartTime.Format(time.DateTime)
		}
		t.AppendRow(table.Row{wf.Name, wf.Status, pid, port, started, wf.Command})
	}
	t.Render()
}
