package health

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"bootkeeper/cmd/root"
	"bootkeeper/internal/models"
	"bootkeeper/internal/rpc"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show role health as seen by the running supervisor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := rpc.NewHTTPClient(rpc.DefaultHTTPConfig(root.AppConfig))
		defer client.Close()

		var status models.SupervisorStatus
		if err := client.GetJSON("/api/supervisor/status", &status); err != nil {
			return fmt.Errorf("supervisor not reachable: %w", err)
		}
		renderStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

/**
 * Print supervisor status as two tables
 * @param {io.Writer} w - Output
 * @param {models.SupervisorStatus} status - Status fetched from the supervisor
 * @description
 * - Roles: port, health state, failure streak, last check and error
 * - Services: process state, pid and exit code, skipped services marked as such
 */
func renderStatus(w io.Writer, status models.SupervisorStatus) {
	fmt.Fprintf(w, "Mode: %s  Uptime: %s  Port: %d  Owned: %v\n", status.Mode, status.Uptime, status.ListenPort, status.ListenerOwned)

	roles := table.NewWriter()
	roles.SetOutputMirror(w)
	roles.SetStyle(table.StyleLight)
	roles.AppendHeader(table.Row{"Role", "Port", "Status", "Failures", "Last Check", "Last Error"})
	for _, h := range status.Health {
		checked := "-"
		if !h.LastCheckTime.IsZero() {
			checked = h.LastCheckTime.Format(time.TimeOnly)
		}
		roles.AppendRow(table.Row{h.Role, h.Port, h.Status, h.ConsecutiveFailures, checked, h.LastError})
	}
	roles.Render()

	services := table.NewWriter()
	services.SetOutputMirror(w)
	services.SetStyle(table.StyleLight)
	services.AppendHeader(table.Row{"Service", "Role", "Port", "State", "PID", "Exit"})
	for _, svc := range status.Services {
		state, pid, exit := "-", "-", "-"
		switch {
		case svc.Skipped:
			state = "skipped"
		case svc.Process != nil:
			state = string(svc.Process.State)
			pid = strconv.Itoa(svc.Process.Pid)
			if svc.Process.ExitCode != nil {
				exit = strconv.Itoa(*svc.Process.ExitCode)
			}
		}
		services.AppendRow(table.Row{svc.Name, svc.Role, svc.Port, state, pid, exit})
	}
	services.Render()
}

func init() {
	root.RootCmd.AddCommand(healthCmd)
}
