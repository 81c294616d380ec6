package workflow

import (
	"fmt"

	"bootkeeper/cmd/root"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <workflow>",
	Short: "Stop a workflow and any stray process matching it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := newManager().Stop(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s is %s\n", rec.Name, rec.Status)
		return nil
	},
}

var stopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every workflow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newManager().StopAll(cmd.Context())
		renderWorkflows(cmd.OutOrStdout(), list)
		return err
	},
}

func init() {
	root.RootCmd.AddCommand(stopCmd)
	root.RootCmd.AddCommand(stopAllCmd)

	stopCmd.Example = `  bootkeeper stop frontend`
}
