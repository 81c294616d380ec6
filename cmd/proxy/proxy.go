package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bootkeeper/cmd/root"
	"bootkeeper/controllers"
	"bootkeeper/internal/config"
	"bootkeeper/internal/listener"
	"bootkeeper/internal/logger"
	reverseproxy "bootkeeper/internal/proxy"
	"bootkeeper/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	listenRole string
	targetRole string
)

var proxyCmd = &cobra.Command{
	Use:         "proxy",
	Short:       "Forward one role's port to another role",
	Long:        `Serves the listen role's port with the same fast listener as serve and forwards every request to the target role. Used as the compatibility proxy for clients that still call the old port.`,
	Annotations: map[string]string{"server": "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runProxy(ctx, root.AppConfig, listenRole, targetRole)
	},
}

/**
 * Serve the listen role's port and forward to the target role until ctx ends
 * @param {context.Context} ctx - Cancelled by a signal
 * @param {*config.AppConfig} cfg - Resolved configuration
 * @param {string} listen - Role whose port is bound
 * @param {string} target - Role receiving the traffic
 * @returns {error} Unknown roles, bind errors, serve errors
 */
func runProxy(ctx context.Context, cfg *config.AppConfig, listen, target string) error {
	from, ok := cfg.Ports.Role(listen)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrUnknownRole, listen)
	}
	to, ok := cfg.Ports.Role(target)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrUnknownRole, target)
	}
	if from.Name == to.Name {
		return errors.New("listen and target role must differ")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	fl, err := listener.Start(cfg.Server.Host, from.ResolvedPort, cfg.Server.LivenessPaths)
	if err != nil {
		return err
	}
	p := reverseproxy.New([]reverseproxy.Route{{Prefix: "/", Target: to}}, reverseproxy.Options{
		DialTimeout:     cfg.Proxy.DialTimeout,
		ResponseTimeout: cfg.Proxy.ResponseTimeout,
		Observer:        services.ProxyMetrics{},
	})
	fl.Attach(controllers.NewProxyRouter(p))
	logger.Infof("Proxy %s:%d -> %s:%d", from.Name, from.ResolvedPort, to.Name, to.ResolvedPort)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.CloseIdleConnections()
	if err := fl.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return fl.Err()
}

func init() {
	root.RootCmd.AddCommand(proxyCmd)

	proxyCmd.Flags().StringVar(&listenRole, "listen-role", "compat-proxy", "role whose port is bound")
	proxyCmd.Flags().StringVar(&targetRole, "target-role", "backend", "role receiving the traffic")
	proxyCmd.Example = `  bootkeeper proxy --listen-role compat-proxy --target-role backend`
}
