package root

import (
	"bootkeeper/internal/config"
	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X bootkeeper/cmd/root.SoftwareVer=..."
var SoftwareVer = ""
var BuildTime = ""
var BuildTag = ""
var BuildCommitId = ""

var (
	configFile string
	// AppConfig is loaded once before any subcommand runs
	AppConfig *config.AppConfig
)

var RootCmd = &cobra.Command{
	Use:           "bootkeeper",
	Short:         "Startup and process supervisor for a multi-role web application",
	Long:          `bootkeeper binds the health-checked port at once, starts the application roles behind it and proxies them on one port`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return Setup(serverMode(cmd))
	},
}

// serverMode reports whether cmd is a long-running process whose logs go to stdout too.
func serverMode(cmd *cobra.Command) bool {
	return cmd.Annotations["server"] == "true"
}

/**
 * Load configuration and initialize logging
 * @param {bool} isServerMode - Mirror log output to stdout
 * @returns {error} Configuration errors
 */
func Setup(isServerMode bool) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	logger.InitLoggerWithMode(&cfg.Log, isServerMode)
	AppConfig = cfg
	return nil
}

func Version() models.VersionResponse {
	return models.VersionResponse{
		Version:   SoftwareVer,
		BuildTime: BuildTime,
		BuildTag:  BuildTag,
		CommitId:  BuildCommitId,
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./bootkeeper.yaml or <home>/bootkeeper.yaml)")
}
