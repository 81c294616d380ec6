package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/listener"
	"bootkeeper/internal/logger"
	"bootkeeper/internal/models"
	"bootkeeper/internal/proc"
	"bootkeeper/internal/proxy"
	"bootkeeper/internal/store"
	"bootkeeper/internal/utils"
)

// RouterFactory builds the application handler attached to the fast listener.
type RouterFactory func(s *Supervisor) http.Handler

/**
 * Supervisor is the composition root of the serve command
 * @description
 * - Order: fast listener, router attach, required services, optional services, health monitor
 * - "address in use" on the frontend port is not fatal, startup continues without owning it
 * - A required service that cannot be spawned aborts startup and undoes what was started
 */
type Supervisor struct {
	cfg        *config.AppConfig
	store      *store.Store
	launcher   *proc.Launcher
	health     *HealthMonitor
	workflows  *WorkflowManager
	proxy      *proxy.Proxy
	executable string
	startTime  time.Time

	mutex    sync.Mutex
	listener *listener.FastListener
}

func NewSupervisor(cfg *config.AppConfig, st *store.Store) (*Supervisor, error) {
	routes, err := proxy.RoutesFromConfig(cfg.Proxy.Routes, cfg.Ports)
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	launcher := proc.NewLauncher(st, cfg.Supervisor.ShutdownGrace)
	s := &Supervisor{
		cfg:      cfg,
		store:    st,
		launcher: launcher,
		proxy: proxy.New(routes, proxy.Options{
			DialTimeout:     cfg.Proxy.DialTimeout,
			ResponseTimeout: cfg.Proxy.ResponseTimeout,
			Observer:        ProxyMetrics{},
		}),
		workflows:  NewWorkflowManager(cfg, st, launcher),
		executable: exe,
	}
	s.health = NewHealthMonitor(s.healthTargets(), HealthOptions{
		Interval:         cfg.Health.Interval,
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
	}, HTTPProber{})
	return s, nil
}

// healthTargets skips roles whose only service the environment disabled.
func (s *Supervisor) healthTargets() []HealthTarget {
	skipped := map[string]bool{}
	for _, svc := range s.cfg.Services {
		if !s.cfg.ShouldLaunch(svc) {
			skipped[svc.Role] = true
		}
	}
	var targets []HealthTarget
	for _, t := range HealthTargetsFromConfig(s.cfg) {
		if !skipped[t.Role.Name] {
			targets = append(targets, t)
		}
	}
	return targets
}

func (s *Supervisor) Config() *config.AppConfig { return s.cfg }

func (s *Supervisor) Proxy() http.Handler { return s.proxy }

func (s *Supervisor) Health() *HealthMonitor { return s.health }

func (s *Supervisor) Workflows() *WorkflowManager { return s.workflows }

func (s *Supervisor) Launcher() *proc.Launcher { return s.launcher }

func (s *Supervisor) Store() *store.Store { return s.store }

// ListenerOwned reports whether this process serves the frontend port itself.
func (s *Supervisor) ListenerOwned() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.listener != nil
}

/**
 * Bring the system up
 * @param {context.Context} ctx - Lifetime of the health monitor
 * @param {RouterFactory} factory - Builds the router attached to the fast listener
 * @returns {error} Fatal bind errors and spawn failures of required services
 */
func (s *Supervisor) Start(ctx context.Context, factory RouterFactory) error {
	s.startTime = time.Now()
	port := s.cfg.Ports.Port(s.cfg.Server.FrontendRole)

	fl, err := listener.Start(s.cfg.Server.Host, port, s.cfg.Server.LivenessPaths)
	switch {
	case err == nil:
		s.mutex.Lock()
		s.listener = fl
		s.mutex.Unlock()
		fl.Attach(factory(s))
	case errors.Is(err, listener.ErrAddrInUse):
		logger.Warnf("Port %d already in use, assuming another instance answers health checks: %v", port, err)
		go s.verifyOccupant(port)
	default:
		return fmt.Errorf("fast listener: %w", err)
	}

	if err := s.launchServices(); err != nil {
		s.abort()
		return err
	}

	go func() {
		if err := s.health.Run(ctx); err != nil {
			logger.Errorf("Health monitor stopped: %v", err)
		}
	}()
	return nil
}

// verifyOccupant checks once that whoever owns the port answers liveness.
func (s *Supervisor) verifyOccupant(port int) {
	path := "/"
	if len(s.cfg.Server.LivenessPaths) > 0 {
		path = s.cfg.Server.LivenessPaths[0]
	}
	if err := listener.VerifyOccupant(port, path, s.cfg.Supervisor.BindVerifyTimeout); err != nil {
		logger.Warnf("Port %d is occupied but %s does not answer 200: %v", port, path, err)
		return
	}
	logger.Infof("Port %d is served by another healthy instance", port)
}

func (s *Supervisor) launchServices() error {
	for _, svc := range s.cfg.Services {
		if !s.cfg.ShouldLaunch(svc) {
			logger.Infof("Service '%s' skipped (%s is set)", svc.Name, svc.SkipEnv)
			continue
		}
		spec, err := s.serviceSpec(svc)
		if err == nil {
			_, err = s.launcher.Launch(spec)
		}
		recordLaunch(svc.Name, err)
		if err != nil {
			if svc.Required {
				return fmt.Errorf("required service %s: %w", svc.Name, err)
			}
			logger.Errorf("Service '%s' not started: %v", svc.Name, err)
		}
	}
	return nil
}

/**
 * Build the launch request of a service
 * @param {config.ServiceConfig} svc - Service definition
 * @returns {(proc.LaunchSpec, error)} Rendered command, arguments and environment
 * @description
 * - Every role's port variable is exported so children agree on the layout
 * - PORT is the service's own port, APP_MODE the resolved mode
 * - The service's own env entries win over everything else
 */
func (s *Supervisor) serviceSpec(svc config.ServiceConfig) (proc.LaunchSpec, error) {
	port := s.cfg.Ports.Port(svc.Role)
	data := utils.CommandData{
		Name:       svc.Name,
		Port:       port,
		Mode:       s.cfg.Settings.Mode,
		Executable: s.executable,
	}
	command, args, err := utils.GetCommandLine(svc.Command, svc.Args, data)
	if err != nil {
		return proc.LaunchSpec{}, err
	}
	extra, err := utils.RenderEnv(config.EnvMap(svc.Env), data)
	if err != nil {
		return proc.LaunchSpec{}, err
	}

	envs := map[string]string{}
	for _, role := range s.cfg.Ports.Roles() {
		if role.EnvVar != "" {
			envs[role.EnvVar] = strconv.Itoa(role.ResolvedPort)
		}
	}
	envs["PORT"] = strconv.Itoa(port)
	envs["APP_MODE"] = s.cfg.Settings.Mode
	for k, v := range extra {
		envs[k] = v
	}

	return proc.LaunchSpec{
		Name:    svc.Name,
		Role:    svc.Role,
		Port:    port,
		Command: command,
		Args:    args,
		Env:     envs,
		Dir:     svc.Dir,
		Detach:  s.cfg.Supervisor.DetachChildren,
	}, nil
}

func (s *Supervisor) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Supervisor.ShutdownGrace+2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Errorf("Cleanup after failed startup: %v", err)
	}
}

// Run starts the supervisor and blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, factory RouterFactory) error {
	if err := s.Start(ctx, factory); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("Supervisor shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Supervisor.ShutdownGrace+5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

/**
 * Stop serving and terminate attached children
 * @param {context.Context} ctx - Shutdown deadline
 * @returns {error} First listener or termination error
 */
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	fl := s.listener
	s.listener = nil
	s.mutex.Unlock()

	var errs []error
	if fl != nil {
		if err := fl.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.launcher.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.proxy.CloseIdleConnections()
	return errors.Join(errs...)
}

// Status collects the diagnostics served on /api/supervisor/status.
func (s *Supervisor) Status() models.SupervisorStatus {
	health := s.health.Snapshot()
	byRole := map[string]models.HealthRecord{}
	for _, h := range health {
		byRole[h.Role] = h
	}

	st := models.SupervisorStatus{
		StartTime:     s.startTime,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Mode:          s.cfg.Settings.Mode,
		ListenPort:    s.cfg.Ports.Port(s.cfg.Server.FrontendRole),
		ListenerOwned: s.ListenerOwned(),
		Health:        health,
	}
	for _, role := range s.cfg.Ports.Roles() {
		st.Roles = append(st.Roles, models.RoleEndpoint{
			Name:    role.Name,
			EnvVar:  role.EnvVar,
			Port:    role.ResolvedPort,
			URL:     "http://" + utils.LocalAddr(role.ResolvedPort),
			Healthy: byRole[role.Name].Status == models.HealthUp,
		})
	}
	for _, svc := range s.cfg.Services {
		d := models.ServiceDetail{
			Name:     svc.Name,
			Role:     svc.Role,
			Port:     s.cfg.Ports.Port(svc.Role),
			Skipped:  !s.cfg.ShouldLaunch(svc),
			Required: svc.Required,
		}
		if mp, ok := s.launcher.Get(svc.Name); ok {
			detail := mp.GetDetail()
			d.Process = &detail
		}
		if h, ok := byRole[svc.Role]; ok {
			d.Health = &h
		}
		st.Services = append(st.Services, d)
	}
	return st
}
