package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/pmdesk/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Service       ServiceConfig `mapstructure:"service" yaml:"service"`
	Backend       BackendConfig `mapstructure:"backend" yaml:"backend"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Library       LibraryConfig `mapstructure:"library" yaml:"library"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServiceConfig controls workspace defaults.
type ServiceConfig struct {
	HomeView          string             `mapstructure:"home_view" yaml:"home_view"`
	PlaceholderView   string             `mapstructure:"placeholder_view" yaml:"placeholder_view"`
	DefaultBreakpoint string             `mapstructure:"default_breakpoint" yaml:"default_breakpoint"`
	Breakpoints       []BreakpointConfig `mapstructure:"breakpoints" yaml:"breakpoints"`
	DefaultCell       CellConfig         `mapstructure:"default_cell" yaml:"default_cell"`
}

// BreakpointConfig describes one responsive tier.
type BreakpointConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Columns  int    `mapstructure:"columns" yaml:"columns"`
	MinWidth int    `mapstructure:"min_width" yaml:"min_width"`
}

// CellConfig is the grid footprint used by views that do not declare one.
type CellConfig struct {
	W    int `mapstructure:"w" yaml:"w"`
	H    int `mapstructure:"h" yaml:"h"`
	MinW int `mapstructure:"min_w" yaml:"min_w"`
	MinH int `mapstructure:"min_h" yaml:"min_h"`
}

// BackendConfig configures the CRUD backend used by view renderers.
type BackendConfig struct {
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Retries        int     `mapstructure:"retries" yaml:"retries"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string  `mapstructure:"addr" yaml:"addr"`
	BasePath    string  `mapstructure:"base_path" yaml:"base_path"`
	UserHeader  string  `mapstructure:"user_header" yaml:"user_header"`
	DefaultUser string  `mapstructure:"default_user" yaml:"default_user"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst   int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	HubHistory  int     `mapstructure:"hub_history" yaml:"hub_history"`
}

// SSHConfig configures the SSH console.
type SSHConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
}

// LibraryConfig configures the saved arrangement library.
type LibraryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	breakpoints := make([]BreakpointConfig, 0, 5)
	for _, bp := range schema.DefaultBreakpoints() {
		breakpoints = append(breakpoints, BreakpointConfig{Name: string(bp.Name), Columns: bp.Columns, MinWidth: bp.MinWidth})
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".pmdesk", "state"),
		Service: ServiceConfig{
			HomeView:          string(schema.ViewDashboard),
			PlaceholderView:   string(schema.ViewNewTab),
			DefaultBreakpoint: "lg",
			Breakpoints:       breakpoints,
			DefaultCell:       CellConfig{W: 6, H: 4, MinW: 4, MinH: 3},
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080/api",
			TimeoutSeconds: 15,
			Retries:        2,
			RateLimit:      20,
		},
		HTTP: HTTPConfig{
			Addr:        ":27580",
			BasePath:    "",
			UserHeader:  "X-Pmdesk-User",
			DefaultUser: "admin",
			RateLimit:   20,
			RateBurst:   40,
			HubHistory:  64,
		},
		SSH: SSHConfig{
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(home, ".pmdesk", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".pmdesk", "authorized_keys"),
		},
		Library: LibraryConfig{
			Path: filepath.Join(home, ".pmdesk", "state", "arrangements.sqlite"),
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pmdesk", "config.yaml"), nil
}

// ServiceConfig converts the file config into the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	breakpoints := make([]schema.BreakpointSpec, 0, len(c.Service.Breakpoints))
	for _, bp := range c.Service.Breakpoints {
		breakpoints = append(breakpoints, schema.BreakpointSpec{
			Name:     schema.BreakpointName(bp.Name),
			Columns:  bp.Columns,
			MinWidth: bp.MinWidth,
		})
	}
	return schema.ServiceConfig{
		StateDir:            c.StateDir,
		HomeView:            schema.ViewType(c.Service.HomeView),
		PlaceholderView:     schema.ViewType(c.Service.PlaceholderView),
		Breakpoints:         breakpoints,
		DefaultBreakpoint:   schema.BreakpointName(c.Service.DefaultBreakpoint),
		DisableAuditLogging: c.Logging.DisableAuditTrails,
	}
}
