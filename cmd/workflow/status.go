package workflow

import (
	"bootkeeper/cmd/root"
	"bootkeeper/internal/models"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow]",
	Short: "Show whether workflows are running",
	Long:  "Shows every workflow, or only the named one. Nothing is started or stopped.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newManager()
		if len(args) == 0 {
			list, err := manager.StatusAll(cmd.Context())
			if err != nil {
				return err
			}
			renderWorkflows(cmd.OutOrStdout(), list)
			return nil
		}
		rec, err := manager.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderWorkflows(cmd.OutOrStdout(), []models.WorkflowDetail{rec})
		return nil
	},
}

func init() {
	root.RootCmd.AddCommand(statusCmd)
}
