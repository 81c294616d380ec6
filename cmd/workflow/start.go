package workflow

import (
	"fmt"

	"bootkeeper/cmd/root"
	"bootkeeper/internal/models"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <workflow>",
	Short: "Start a workflow unless it is already running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := newManager().Start(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s is running (PID: %d)\n", rec.Name, rec.LastPid)
		renderWorkflows(cmd.OutOrStdout(), []models.WorkflowDetail{rec})
		return nil
	},
}

func init() {
	root.RootCmd.AddCommand(startCmd)

	startCmd.Example = `  bootkeeper start frontend`
}
