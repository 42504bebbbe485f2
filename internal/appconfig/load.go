package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/pmdesk/schema"
)

// envOverrides are applied after the config file. The NEXT_PUBLIC_* names are
// shared with the web console so one environment drives both.
type envOverrides struct {
	APIURL     string `envconfig:"NEXT_PUBLIC_API_URL"`
	APIBaseURL string `envconfig:"NEXT_PUBLIC_API_BASE_URL"`
	BackendURL string `envconfig:"NEXT_PUBLIC_BACKEND_URL"`
	HTTPAddr   string `envconfig:"PMDESK_HTTP_ADDR"`
	SSHAddr    string `envconfig:"PMDESK_SSH_ADDR"`
	StateDir   string `envconfig:"PMDESK_STATE_DIR"`
}

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("service.home_view", cfg.Service.HomeView)
	v.SetDefault("service.placeholder_view", cfg.Service.PlaceholderView)
	v.SetDefault("service.default_breakpoint", cfg.Service.DefaultBreakpoint)
	v.SetDefault("service.breakpoints", cfg.Service.Breakpoints)
	v.SetDefault("service.default_cell.w", cfg.Service.DefaultCell.W)
	v.SetDefault("service.default_cell.h", cfg.Service.DefaultCell.H)
	v.SetDefault("service.default_cell.min_w", cfg.Service.DefaultCell.MinW)
	v.SetDefault("service.default_cell.min_h", cfg.Service.DefaultCell.MinH)
	v.SetDefault("backend.base_url", cfg.Backend.BaseURL)
	v.SetDefault("backend.timeout_seconds", cfg.Backend.TimeoutSeconds)
	v.SetDefault("backend.retries", cfg.Backend.Retries)
	v.SetDefault("backend.rate_limit", cfg.Backend.RateLimit)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.user_header", cfg.HTTP.UserHeader)
	v.SetDefault("http.default_user", cfg.HTTP.DefaultUser)
	v.SetDefault("http.rate_limit", cfg.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", cfg.HTTP.RateBurst)
	v.SetDefault("http.hub_history", cfg.HTTP.HubHistory)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("library.path", cfg.Library.Path)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	for _, candidate := range []string{env.APIURL, env.APIBaseURL, env.BackendURL} {
		if strings.TrimSpace(candidate) != "" {
			cfg.Backend.BaseURL = strings.TrimSpace(candidate)
			break
		}
	}
	if env.HTTPAddr != "" {
		cfg.HTTP.Addr = env.HTTPAddr
	}
	if env.SSHAddr != "" {
		cfg.SSH.Addr = env.SSHAddr
	}
	if env.StateDir != "" {
		cfg.StateDir = env.StateDir
	}
	return nil
}

func validate(cfg Config) error {
	if _, err := schema.NormalizeServiceConfig(cfg.ServiceConfig()); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	cell := cfg.Service.DefaultCell
	if cell.W <= 0 || cell.H <= 0 || cell.MinW < 0 || cell.MinH < 0 {
		return fmt.Errorf("service.default_cell must have positive w and h")
	}
	if err := validateBackendConfig(cfg.Backend); err != nil {
		return err
	}
	return validateHTTPConfig(cfg.HTTP)
}

func validateBackendConfig(cfg BackendConfig) error {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("backend.base_url must include scheme and host (e.g. https://api.example.com)")
		}
	}
	if cfg.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must not be negative")
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("backend.retries must not be negative")
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	if strings.TrimSpace(cfg.UserHeader) == "" {
		return fmt.Errorf("http.user_header is required")
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return fmt.Errorf("http.rate_limit and http.rate_burst must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
	cfg.Library.Path = expandEnv(cfg.Library.Path)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
