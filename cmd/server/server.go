package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bootkeeper/cmd/root"
	"bootkeeper/controllers"
	"bootkeeper/internal/env"
	"bootkeeper/internal/logger"
	"bootkeeper/internal/store"
	"bootkeeper/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:         "serve",
	Aliases:     []string{"server"},
	Short:       "Bind the frontend port and supervise all roles",
	Annotations: map[string]string{"server": "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return startServer(ctx)
	},
}

/**
 * Run the supervisor until SIGINT/SIGTERM
 * @param {context.Context} ctx - Cancelled by a signal
 * @returns {error} Bind errors other than "address in use", required service spawn failures
 */
func startServer(ctx context.Context) error {
	env.Daemon = true
	cfg := root.AppConfig
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	st := store.New(env.StatePath(), 2*time.Second)
	sup, err := services.NewSupervisor(cfg, st)
	if err != nil {
		return err
	}

	version := root.Version()
	logger.Infof("bootkeeper %s starting in %s mode", version.Version, cfg.Settings.Mode)
	return sup.Run(ctx, func(s *services.Supervisor) http.Handler {
		return controllers.NewRouter(s, version)
	})
}

func init() {
	root.RootCmd.AddCommand(serverCmd)

	serverCmd.Example = `  # start with ./bootkeeper.yaml and the default roles
  FRONTEND_PORT=5000 APP_MODE=production bootkeeper serve`
}
