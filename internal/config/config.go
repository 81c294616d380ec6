package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bootkeeper/internal/env"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

/**
 * Server configuration parameters
 * @property {string} host - Interface the supervisor binds (empty means all interfaces)
 * @property {string} frontend_role - Role whose port is the externally health-checked port
 * @property {[]string} liveness_paths - Paths answered with 200 by the fast listener
 */
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	FrontendRole  string   `mapstructure:"frontend_role"`
	LivenessPaths []string `mapstructure:"liveness_paths"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, empty means <home>/logs/bootkeeper.log
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Supervisor lifecycle configuration
 * @property {bool} detach_children - Leave launched children running when the supervisor exits
 * @property {time.Duration} shutdown_grace - Time between SIGTERM and SIGKILL
 * @property {time.Duration} bind_verify_timeout - Probe timeout used after "address in use"
 */
type SupervisorConfig struct {
	DetachChildren    bool          `mapstructure:"detach_children"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	BindVerifyTimeout time.Duration `mapstructure:"bind_verify_timeout"`
}

type RouteConfig struct {
	Prefix      string `mapstructure:"prefix"`
	Target      string `mapstructure:"target"`
	StripPrefix bool   `mapstructure:"strip_prefix"`
}

type ProxyConfig struct {
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	Routes          []RouteConfig `mapstructure:"routes"`
}

type HealthConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

/**
 * Role definition
 * @property {string} name - Role name
 * @property {string} env_var - Port override variable
 * @property {int} default_port - Port used when env_var is unset or invalid
 * @property {string} health - Liveness path probed by the health monitor
 */
type RoleConfig struct {
	Name        string `mapstructure:"name"`
	EnvVar      string `mapstructure:"env_var"`
	DefaultPort int    `mapstructure:"default_port"`
	Health      string `mapstructure:"health"`
}

/**
 * Service launched by the supervisor
 * @property {string} name - Service name
 * @property {string} role - Role providing the port
 * @property {string} command - Executable, may use {{.Port}} {{.Mode}} {{.Executable}}
 * @property {[]string} args - Arguments, templated like command
 * @property {[]string} env - Extra environment overrides as KEY=VALUE, templated like command
 * @property {string} skip_env - Boolean variable that disables the launch when true
 * @property {bool} required - Spawn failure aborts the supervisor
 */
type ServiceConfig struct {
	Name     string   `mapstructure:"name"`
	Role     string   `mapstructure:"role"`
	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
	Env      []string `mapstructure:"env"`
	Dir      string   `mapstructure:"dir"`
	SkipEnv  string   `mapstructure:"skip_env"`
	Required bool     `mapstructure:"required"`
}

/**
 * Operator workflow
 * @property {string} name - Workflow name used by start/stop/status
 * @property {string} command - Shell command line
 * @property {string} role - Optional role whose port is exported as PORT
 * @property {string} match - Optional command-line substring used to find stray processes on stop
 */
type WorkflowConfig struct {
	Name    string   `mapstructure:"name"`
	Command string   `mapstructure:"command"`
	Dir     string   `mapstructure:"dir"`
	Role    string   `mapstructure:"role"`
	Match   string   `mapstructure:"match"`
	Env     []string `mapstructure:"env"`
}

// EnvMap turns KEY=VALUE entries into a map. Entries without '=' map to "".
// Keys keep their case, which viper would not do for a YAML map.
func EnvMap(entries []string) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, _ := strings.Cut(e, "=")
		k = strings.TrimSpace(k)
		if k != "" {
			m[k] = v
		}
	}
	return m
}

// Settings is the environment-derived behaviour switches, read once in Load.
type Settings struct {
	Mode string
	// keyed by the service's skip_env variable
	Skip map[string]bool
}

type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Health     HealthConfig     `mapstructure:"health"`
	Roles      []RoleConfig     `mapstructure:"roles"`
	Services   []ServiceConfig  `mapstructure:"services"`
	Workflows  []WorkflowConfig `mapstructure:"workflows"`

	Settings Settings      `mapstructure:"-"`
	Ports    *PortRegistry `mapstructure:"-"`
}

var ErrUnknownRole = errors.New("unknown role")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.frontend_role", "frontend")
	v.SetDefault("server.liveness_paths", []string{"/ready", "/api/health"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("supervisor.detach_children", false)
	v.SetDefault("supervisor.shutdown_grace", 5*time.Second)
	v.SetDefault("supervisor.bind_verify_timeout", 500*time.Millisecond)
	v.SetDefault("proxy.dial_timeout", 2*time.Second)
	v.SetDefault("proxy.response_timeout", 30*time.Second)
	v.SetDefault("health.interval", 10*time.Second)
	v.SetDefault("health.timeout", 2*time.Second)
	v.SetDefault("health.failure_threshold", 3)
}

func DefaultRoles() []RoleConfig {
	return []RoleConfig{
		{Name: "frontend", EnvVar: "FRONTEND_PORT", DefaultPort: 5000, Health: "/ready"},
		{Name: "backend", EnvVar: "BACKEND_PORT", DefaultPort: 8888, Health: "/api/health"},
		{Name: "browser-api", EnvVar: "BROWSER_API_PORT", DefaultPort: 8000, Health: "/health"},
		{Name: "compat-proxy", EnvVar: "COMPAT_PROXY_PORT", DefaultPort: 3000, Health: "/ready"},
	}
}

func DefaultServices() []ServiceConfig {
	return []ServiceConfig{
		{
			Name:     "backend",
			Role:     "backend",
			Command:  "npm",
			Args:     []string{"run", `{{if eq .Mode "production"}}start{{else}}dev{{end}}`},
			Env:      []string{"SKIP_BROWSER_API=true"},
			Required: true,
		},
		{
			Name:    "browser-api",
			Role:    "browser-api",
			Command: "python3",
			Args:    []string{"-m", "uvicorn", "browser_api.main:app", "--host", "127.0.0.1", "--port", "{{.Port}}"},
			SkipEnv: "SKIP_BROWSER_API",
		},
		{
			Name:    "compat-proxy",
			Role:    "compat-proxy",
			Command: "{{.Executable}}",
			Args:    []string{"proxy", "--listen-role", "compat-proxy", "--target-role", "backend"},
			SkipEnv: "SKIP_SECONDARY_PROXY",
		},
	}
}

func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Prefix: "/browser-api", Target: "browser-api", StripPrefix: true},
		{Prefix: "/", Target: "backend"},
	}
}

func DefaultWorkflows() []WorkflowConfig {
	return []WorkflowConfig{
		{Name: "frontend", Command: "npm run dev", Role: "frontend", Match: "vite"},
		{Name: "api-service", Command: "python3 -m uvicorn browser_api.main:app --host 127.0.0.1 --port $PORT", Role: "browser-api", Match: "browser_api.main:app"},
	}
}

func normalizeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod", "release":
		return ModeProduction
	default:
		return ModeDevelopment
	}
}

/**
 * Load application configuration
 * @param {string} path - Explicit config file, empty searches bootkeeper.yaml in . and the home dir
 * @param {LookupFunc} lookup - Environment lookup, os.LookupEnv when nil
 * @returns {*AppConfig} Immutable configuration with resolved ports and settings
 * @description
 * - Missing default config file is not an error, defaults apply
 * - Ports are resolved here, before anything binds
 * - Mode comes from APP_MODE, skip flags from each service's skip_env
 * @throws
 * - Unreadable or malformed config file
 * - Routes, services or workflows referring to undeclared roles
 */
func Load(path string, lookup LookupFunc) (*AppConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bootkeeper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(env.HomeDir)
	}
	v.SetEnvPrefix("BOOTKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	collectConfig(&cfg, lookup)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func collectConfig(cfg *AppConfig, lookup LookupFunc) {
	if len(cfg.Roles) == 0 {
		cfg.Roles = DefaultRoles()
	}
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}
	if len(cfg.Proxy.Routes) == 0 {
		cfg.Proxy.Routes = DefaultRoutes()
	}
	if len(cfg.Workflows) == 0 {
		cfg.Workflows = DefaultWorkflows()
	}
	if cfg.Health.FailureThreshold <= 0 {
		cfg.Health.FailureThreshold = 3
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = filepath.Join(env.LogDir(), "bootkeeper.log")
	}

	mode, _ := lookup("APP_MODE")
	cfg.Settings = Settings{
		Mode: normalizeMode(mode),
		Skip: make(map[string]bool),
	}
	for _, svc := range cfg.Services {
		if svc.SkipEnv == "" {
			continue
		}
		raw, _ := lookup(svc.SkipEnv)
		cfg.Settings.Skip[svc.SkipEnv] = cast.ToBool(strings.TrimSpace(raw))
	}
	cfg.Ports = NewPortRegistry(cfg.Roles, lookup)
}

func (cfg *AppConfig) validate() error {
	if _, ok := cfg.Ports.Role(cfg.Server.FrontendRole); !ok {
		return fmt.Errorf("server.frontend_role %q: %w", cfg.Server.FrontendRole, ErrUnknownRole)
	}
	for _, r := range cfg.Proxy.Routes {
		if _, ok := cfg.Ports.Role(r.Target); !ok {
			return fmt.Errorf("proxy route %q target %q: %w", r.Prefix, r.Target, ErrUnknownRole)
		}
	}
	for _, svc := range cfg.Services {
		if _, ok := cfg.Ports.Role(svc.Role); !ok {
			return fmt.Errorf("service %q role %q: %w", svc.Name, svc.Role, ErrUnknownRole)
		}
		if svc.Command == "" {
			return fmt.Errorf("service %q has no command", svc.Name)
		}
	}
	for _, wf := range cfg.Workflows {
		if wf.Role == "" {
			continue
		}
		if _, ok := cfg.Ports.Role(wf.Role); !ok {
			return fmt.Errorf("workflow %q role %q: %w", wf.Name, wf.Role, ErrUnknownRole)
		}
	}
	if cfg.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive, got %v", cfg.Health.Interval)
	}
	return nil
}

// ShouldLaunch reports whether the environment left the service enabled.
func (cfg *AppConfig) ShouldLaunch(svc ServiceConfig) bool {
	if svc.SkipEnv == "" {
		return true
	}
	return !cfg.Settings.Skip[svc.SkipEnv]
}

func (cfg *AppConfig) IsProduction() bool {
	return cfg.Settings.Mode == ModeProduction
}

func (cfg *AppConfig) Workflow(name string) (WorkflowConfig, bool) {
	for _, wf := range cfg.Workflows {
		if wf.Name == name {
			return wf, true
		}
	}
	return WorkflowConfig{}, false
}

// HealthPath returns the liveness path probed for a role, "/" when unset.
func (cfg *AppConfig) HealthPath(role string) string {
	for _, r := range cfg.Roles {
		if r.Name == role && r.Health != "" {
			return r.Health
		}
	}
	return "/"
}
